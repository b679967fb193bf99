package update

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/github"
)

const manifestName = "civic.json"

// participationWeeks is the number of weekly buckets the code host reports.
const participationWeeks = 50

// Enricher folds repository metadata and the civic.json manifest into a raw
// project descriptor, deciding whether the project is new, changed,
// unchanged, or gone.
type Enricher struct {
	client   *github.Client
	projects database.ProjectRepository
	now      func() time.Time
}

func NewEnricher(client *github.Client, projects database.ProjectRepository) *Enricher {
	return &Enricher{client: client, projects: projects, now: time.Now}
}

// Enrich returns the descriptor ready to upsert, or nil when the candidate
// should be discarded: either nothing changed since the last pass, or the
// upstream repository is gone and the stored project was deleted. Errors
// are pass-fatal.
func (e *Enricher) Enrich(incoming *database.Project) (*database.Project, error) {
	path, isRepo := github.RepoPath(incoming.CodeURL)
	if !isRepo {
		return e.enrichNonCode(incoming)
	}
	incoming.CodeURL = "https://github.com" + path

	existing, err := e.projects.FindByCodeURL(incoming.CodeURL, incoming.OrganizationName, incoming.Name)
	if err != nil {
		return nil, err
	}

	if e.client.Throttled() {
		return nil, e.keepExisting(existing)
	}

	merged, spreadsheetChanged := mergeSpreadsheet(existing, incoming)
	ifModifiedSince := ""
	if existing != nil {
		merged.LastUpdated = existing.LastUpdated
		merged.LastUpdatedIssues = existing.LastUpdatedIssues
		merged.LastUpdatedCivicJSON = existing.LastUpdatedCivicJSON
		merged.LastUpdatedRootFiles = existing.LastUpdatedRootFiles
		if existing.LastUpdated != nil {
			ifModifiedSince = existing.LastUpdated.UTC().Format(http.TimeFormat)
		}
	}

	result, err := e.client.Repo(path, ifModifiedSince)
	if err != nil {
		return nil, err
	}

	switch {
	case result.StatusCode == http.StatusNotFound:
		// The upstream repository is gone; remove the stored project
		// instead of leaving a stale row behind.
		if existing != nil {
			slog.Info("deleting project for missing repository", "code_url", merged.CodeURL)
			if err := e.projects.Delete(existing.ID); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case result.StatusCode == http.StatusForbidden && e.client.Throttled():
		return nil, e.keepExisting(existing)

	case result.StatusCode == http.StatusNotModified:
		civicChanged, err := e.resolveManifest(merged, path, spreadsheetChanged)
		if err != nil {
			return nil, err
		}
		if !spreadsheetChanged && !civicChanged {
			return nil, e.keepExisting(existing)
		}
		now := e.now()
		merged.LastUpdated = &now
		merged.Keep = true
		return merged, nil

	case result.StatusCode == http.StatusOK:
		return e.enrichFromRepo(merged, path, result.Repo)

	default:
		return nil, fmt.Errorf("unexpected status %d fetching repository %s", result.StatusCode, path)
	}
}

// enrichNonCode handles projects without a repository on the code host:
// pure field comparison, no network calls.
func (e *Enricher) enrichNonCode(incoming *database.Project) (*database.Project, error) {
	existing, err := e.projects.GetByNaturalKey(incoming.Name, incoming.OrganizationName)
	if err != nil {
		return nil, err
	}

	merged, changed := mergeSpreadsheet(existing, incoming)
	if existing == nil || changed {
		now := e.now()
		merged.LastUpdated = &now
	} else {
		merged.LastUpdated = existing.LastUpdated
		merged.LastUpdatedIssues = existing.LastUpdatedIssues
		merged.LastUpdatedCivicJSON = existing.LastUpdatedCivicJSON
		merged.LastUpdatedRootFiles = existing.LastUpdatedRootFiles
	}
	merged.Keep = true
	return merged, nil
}

func (e *Enricher) keepExisting(existing *database.Project) error {
	if existing == nil {
		return nil
	}
	return e.projects.SetKeep(existing.ID, true)
}

// enrichFromRepo extracts fresh repository metadata into the project.
func (e *Enricher) enrichFromRepo(merged *database.Project, path string, repo *github.Repo) (*database.Project, error) {
	details := &database.GitHubDetails{
		ContributorsURL:  repo.ContributorsURL,
		CreatedAt:        repo.CreatedAt,
		ForksCount:       repo.ForksCount,
		Homepage:         repo.Homepage,
		HTMLURL:          repo.HTMLURL,
		ID:               repo.ID,
		OpenIssues:       repo.OpenIssues,
		PushedAt:         repo.PushedAt,
		UpdatedAt:        repo.UpdatedAt,
		WatchersCount:    repo.WatchersCount,
		Name:             repo.Name,
		Description:      repo.Description,
		StargazersCount:  repo.StargazersCount,
		SubscribersCount: repo.SubscribersCount,
		Owner: database.Owner{
			AvatarURL: repo.Owner.AvatarURL,
			HTMLURL:   repo.Owner.HTMLURL,
			Login:     repo.Owner.Login,
			Type:      repo.Owner.Type,
		},
	}

	// Descriptor-supplied fields win; repo metadata only backfills.
	if merged.Name == "" {
		merged.Name = repo.Name
	}
	if merged.Description == "" {
		merged.Description = repo.Description
	}
	if merged.LinkURL == "" {
		merged.LinkURL = repo.Homepage
	}

	lastUpdated := e.latestRepoTimestamp(repo)
	merged.LastUpdated = &lastUpdated

	languages, err := e.client.Languages(repo.LanguagesURL)
	if err != nil {
		return nil, err
	}
	merged.Languages = languages

	if contributors, err := e.client.Contributors(repo.ContributorsURL); err == nil {
		for _, c := range contributors {
			details.Contributors = append(details.Contributors, database.Contributor{
				Login:         c.Login,
				URL:           c.URL,
				AvatarURL:     c.AvatarURL,
				HTMLURL:       c.HTMLURL,
				Contributions: c.Contributions,
				Owner:         c.Login == repo.Owner.Login,
			})
		}
	} else {
		slog.Debug("failed to fetch contributors", "code_url", merged.CodeURL, "error", err)
	}

	participation, err := e.client.Participation(repo.URL)
	if err != nil || len(participation) == 0 {
		participation = make([]int, participationWeeks)
	}
	details.Participation = participation

	merged.GitHubDetails = details

	if _, err := e.resolveManifest(merged, path, true); err != nil {
		return nil, err
	}

	if state, err := e.client.CommitStatus(path, repo.DefaultBranch); err == nil {
		merged.CommitStatus = state
	} else {
		slog.Debug("failed to fetch commit status", "code_url", merged.CodeURL, "error", err)
	}

	merged.Keep = true
	return merged, nil
}

// latestRepoTimestamp picks the later of the push and update timestamps.
func (e *Enricher) latestRepoTimestamp(repo *github.Repo) time.Time {
	pushed, pushedErr := time.Parse(time.RFC3339, repo.PushedAt)
	updated, updatedErr := time.Parse(time.RFC3339, repo.UpdatedAt)

	switch {
	case pushedErr == nil && updatedErr == nil:
		if pushed.After(updated) {
			return pushed
		}
		return updated
	case pushedErr == nil:
		return pushed
	case updatedErr == nil:
		return updated
	default:
		slog.Error("repository carries no usable timestamps", "html_url", repo.HTMLURL)
		return e.now()
	}
}

// resolveManifest checks the repository root for a civic.json file and
// applies its status/tags over the project. force drops the cache tokens so
// the listing and file are re-fetched even when unchanged upstream.
func (e *Enricher) resolveManifest(merged *database.Project, path string, force bool) (bool, error) {
	listingToken := merged.LastUpdatedRootFiles
	if force {
		listingToken = ""
	}

	listing, err := e.client.RootListing(path, listingToken)
	if err != nil {
		return false, err
	}
	if listing.StatusCode != http.StatusOK {
		return false, nil
	}
	merged.LastUpdatedRootFiles = listing.ETag

	found := false
	for _, entry := range listing.Entries {
		if entry.Name == manifestName {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	fileToken := merged.LastUpdatedCivicJSON
	if force {
		fileToken = ""
	}

	content, err := e.client.FileContents(path, manifestName, fileToken)
	if err != nil {
		return false, err
	}
	if content.StatusCode != http.StatusOK {
		return false, nil
	}
	merged.LastUpdatedCivicJSON = content.ETag

	return applyManifest(merged, parseManifest(content.Body)), nil
}
