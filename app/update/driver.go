package update

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/feed"
	"github.com/civicboard/civicboard/app/github"
	"github.com/civicboard/civicboard/app/meetup"
	"github.com/civicboard/civicboard/app/naming"
	"github.com/civicboard/civicboard/app/sources"
)

// ErrorSink records error rows through whichever querier is current. The
// database holds a single connection, so a record written while an
// organization transaction is open has to go through that transaction. Rows
// recorded inside a transaction are kept pending so a rollback does not
// erase them; a throttling notice must outlive the organization that hit it.
type ErrorSink struct {
	db      *database.DB
	q       database.Querier
	pending []pendingRecord
}

type pendingRecord struct {
	message string
	at      time.Time
}

func NewErrorSink(db *database.DB) *ErrorSink {
	return &ErrorSink{db: db, q: db}
}

func (s *ErrorSink) Record(message string, at time.Time) error {
	if err := database.NewErrorRepository(s.q).Record(message, at); err != nil {
		return err
	}
	if s.q != database.Querier(s.db) {
		s.pending = append(s.pending, pendingRecord{message: message, at: at})
	}
	return nil
}

// begin scopes subsequent records to the given transaction.
func (s *ErrorSink) begin(tx database.Querier) {
	s.q = tx
	s.pending = nil
}

// end returns recording to the base connection. When the transaction rolled
// back, the rows it swallowed are written again outside it.
func (s *ErrorSink) end(committed bool) {
	s.q = s.db
	if !committed {
		for _, p := range s.pending {
			if err := database.NewErrorRepository(s.db).Record(p.message, p.at); err != nil {
				slog.Error("failed to re-record error row after rollback", "error", err)
			}
		}
	}
	s.pending = nil
}

// Driver runs one reconciliation pass: read the organization list, process
// each organization in its own transaction, and prune organizations that
// vanished from the sources.
type Driver struct {
	db         *database.DB
	reader     *sources.Reader
	feeds      *feed.Reader
	events     *meetup.Client
	github     *github.Client
	errors     *ErrorSink
	nameFilter string
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))
}

func NewDriver(db *database.DB, reader *sources.Reader, feeds *feed.Reader, events *meetup.Client, githubClient *github.Client, errors *ErrorSink, nameFilter string) *Driver {
	return &Driver{
		db:         db,
		reader:     reader,
		feeds:      feeds,
		events:     events,
		github:     githubClient,
		errors:     errors,
		nameFilter: nameFilter,
		now:        time.Now,
		shuffle:    rand.Shuffle,
	}
}

// Run performs one pass over the organization sources. An error means the
// pass aborted mid-way; organizations committed before the failure keep
// their fresh state.
func (d *Driver) Run(sourcesPath string) error {
	descriptors, err := d.reader.Load(sourcesPath)
	if err != nil {
		return err
	}

	// Shuffling spreads rate-limit pain evenly across organizations when
	// consecutive passes keep hitting the quota at different points.
	d.shuffle(len(descriptors), func(i, j int) {
		descriptors[i], descriptors[j] = descriptors[j], descriptors[i]
	})

	seen := map[string]bool{}

	for _, descriptor := range descriptors {
		name := strings.TrimSpace(descriptor["name"])
		if name == "" {
			slog.Warn("skipping descriptor without a name")
			continue
		}
		if d.nameFilter != "" && name != d.nameFilter {
			continue
		}

		if !naming.IsSafe(name) {
			message := fmt.Sprintf(`ValueError: Bad organization name: "%s"`, name)
			slog.Error("bad organization name", "name", name)
			if err := d.errors.Record(message, d.now()); err != nil {
				return err
			}
			continue
		}

		if d.github.Throttled() {
			// Still counts as seen so pruning below leaves it alone.
			seen[name] = true
			continue
		}

		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		d.errors.begin(tx)
		if err := d.processOrganization(tx, name, descriptor); err != nil {
			tx.Rollback()
			d.errors.end(false)
			return fmt.Errorf("failed to process organization %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			d.errors.end(false)
			return fmt.Errorf("failed to commit organization %s: %w", name, err)
		}
		d.errors.end(true)
		seen[name] = true
	}

	if d.nameFilter == "" {
		return d.pruneOrphans(seen)
	}
	return nil
}

func (d *Driver) processOrganization(tx database.Querier, name string, descriptor sources.Descriptor) error {
	orgs := database.NewOrganizationRepository(tx)
	projects := database.NewProjectRepository(tx)
	issues := database.NewIssueRepository(tx)
	events := database.NewEventRepository(tx)
	stories := database.NewStoryRepository(tx)

	enricher := NewEnricher(d.github, projects)
	enricher.now = d.now
	syncer := NewIssueSyncer(d.github, projects, issues)

	slog.Info("processing organization", "name", name)

	if err := events.MarkNotKeptForOrganization(name); err != nil {
		return err
	}
	if err := stories.MarkNotKeptForOrganization(name); err != nil {
		return err
	}
	if err := projects.MarkNotKeptForOrganization(name); err != nil {
		return err
	}
	if err := orgs.MarkNotKept(name); err != nil {
		return err
	}

	org := organizationFromDescriptor(name, descriptor)
	org.LogoURL = d.resolveLogo(descriptor, org.ProjectsListURL)
	if err := orgs.Upsert(org); err != nil {
		return err
	}

	if org.RSS != "" || org.Website != "" {
		for _, story := range d.feeds.Stories(org.RSS, org.Website) {
			err := stories.Upsert(&database.Story{
				Title:            story.Title,
				Link:             story.Link,
				Type:             story.Type,
				Keep:             true,
				OrganizationName: name,
			})
			if err != nil {
				return err
			}
		}
	}

	if org.ProjectsListURL != "" {
		for _, projectDescriptor := range d.projectDescriptors(org) {
			candidate := projectFromDescriptor(projectDescriptor, name)
			enriched, err := enricher.Enrich(candidate)
			if err != nil {
				return err
			}
			if enriched == nil {
				continue
			}
			if _, err := projects.Upsert(enriched); err != nil {
				return err
			}
		}

		// Issues are synced for every surviving project, not just the
		// freshly enriched ones: a project deferred by a repo 304 still
		// needs its issues re-kept before the sweep.
		persisted, err := projects.ForOrganization(name)
		if err != nil {
			return err
		}
		for i := range persisted {
			if !persisted[i].Keep {
				continue
			}
			if err := syncer.Sync(&persisted[i]); err != nil {
				return err
			}
		}
	}

	if org.EventsURL != "" {
		if err := d.syncEvents(orgs, events, org); err != nil {
			return err
		}
	}

	if _, err := events.SweepNotKept(); err != nil {
		return err
	}
	if _, err := stories.SweepNotKept(); err != nil {
		return err
	}
	if _, err := issues.SweepNotKept(); err != nil {
		return err
	}
	if _, err := projects.SweepNotKept(); err != nil {
		return err
	}
	if _, err := orgs.SweepNotKept(); err != nil {
		return err
	}
	return nil
}

func organizationFromDescriptor(name string, descriptor sources.Descriptor) *database.Organization {
	org := &database.Organization{
		Name:            name,
		Website:         descriptor["website"],
		EventsURL:       descriptor["events_url"],
		RSS:             descriptor["rss"],
		ProjectsListURL: descriptor["projects_list_url"],
		Type:            descriptor["type"],
		City:            descriptor["city"],
		Keep:            true,
	}
	if lat, err := strconv.ParseFloat(descriptor["latitude"], 64); err == nil {
		org.Latitude = lat
	}
	if lon, err := strconv.ParseFloat(descriptor["longitude"], 64); err == nil {
		org.Longitude = lon
	}
	return org
}

// resolveLogo prefers the descriptor's own logo field and otherwise derives
// one from the code-hosting account avatar when the project list points at
// an account page.
func (d *Driver) resolveLogo(descriptor sources.Descriptor, projectsListURL string) string {
	if logo := strings.TrimSpace(descriptor["logo_url"]); logo != "" {
		return logo
	}

	login, ok := github.UserFromURL(projectsListURL)
	if !ok || d.github.Throttled() {
		return ""
	}

	user, err := d.github.User(login)
	if err != nil || user == nil {
		return ""
	}
	return user.AvatarURL
}

// projectDescriptors expands the organization's project list into raw
// descriptors. The list URL may point at a code-hosting account (expanded
// into its repositories), a single repository, or a CSV/JSON list.
func (d *Driver) projectDescriptors(org *database.Organization) []sources.Descriptor {
	if login, ok := github.UserFromURL(org.ProjectsListURL); ok {
		if d.github.Throttled() {
			return nil
		}
		repos, err := d.github.UserRepos(login)
		if err != nil {
			slog.Warn("failed to list account repositories", "login", login, "error", err)
			return nil
		}
		descriptors := make([]sources.Descriptor, 0, len(repos))
		for _, repo := range repos {
			descriptors = append(descriptors, sources.Descriptor{
				"name":        repo.Name,
				"description": repo.Description,
				"code_url":    repo.HTMLURL,
				"link_url":    repo.Homepage,
			})
		}
		return descriptors
	}

	if _, ok := github.RepoPath(org.ProjectsListURL); ok {
		return []sources.Descriptor{{"code_url": org.ProjectsListURL}}
	}

	descriptors, err := d.reader.ReadSource(org.ProjectsListURL)
	if err != nil {
		slog.Warn("failed to read projects list", "url", org.ProjectsListURL, "error", err)
		return nil
	}
	return descriptors
}

func projectFromDescriptor(descriptor sources.Descriptor, organizationName string) *database.Project {
	return &database.Project{
		Name:             descriptor["name"],
		CodeURL:          descriptor["code_url"],
		LinkURL:          descriptor["link_url"],
		Description:      descriptor["description"],
		Type:             descriptor["type"],
		Categories:       descriptor["categories"],
		Tags:             splitTags(descriptor["tags"]),
		Status:           descriptor["status"],
		Keep:             true,
		OrganizationName: organizationName,
	}
}

func (d *Driver) syncEvents(orgs database.OrganizationRepository, events database.EventRepository, org *database.Organization) error {
	identifier, ok := meetup.GroupIdentifier(org.EventsURL)
	if !ok {
		slog.Error("unparseable events url", "name", org.Name, "url", org.EventsURL)
		return nil
	}

	upstream, err := d.events.GroupEvents(identifier)
	if err != nil {
		return err
	}
	for _, evt := range upstream {
		start := evt.Start
		event := &database.Event{
			Name:             evt.Name,
			Description:      evt.Description,
			EventURL:         evt.EventURL,
			Location:         evt.Location,
			Latitude:         evt.Latitude,
			Longitude:        evt.Longitude,
			StartTimeNoTZ:    &start,
			EndTimeNoTZ:      evt.End,
			UTCOffset:        evt.UTCOffset,
			RSVPs:            evt.RSVPs,
			Keep:             true,
			OrganizationName: org.Name,
		}
		if evt.Created != nil {
			event.CreatedAt = evt.Created.Format("2006-01-02 15:04:05")
		}
		if err := events.Upsert(event); err != nil {
			return err
		}
	}

	count, err := d.events.GroupMembers(identifier)
	if err != nil {
		return err
	}
	// A missing count never clears a stored one.
	if count != nil {
		return orgs.UpdateMemberCount(org.Name, *count)
	}
	return nil
}

// pruneOrphans deletes organizations that no longer appear in any source.
func (d *Driver) pruneOrphans(seen map[string]bool) error {
	orgs := database.NewOrganizationRepository(d.db)
	all, err := orgs.All()
	if err != nil {
		return err
	}

	for _, org := range all {
		if seen[org.Name] {
			continue
		}
		slog.Info("pruning organization absent from sources", "name", org.Name)
		if err := orgs.DeleteByName(org.Name); err != nil {
			return err
		}
	}
	return nil
}
