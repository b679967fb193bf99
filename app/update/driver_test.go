package update

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/feed"
	"github.com/civicboard/civicboard/app/meetup"
	"github.com/civicboard/civicboard/app/sources"
)

// writeSources materializes an orgs.json plus a sources file pointing at it
// and returns the sources file path.
func writeSources(t *testing.T, orgsJSON string) string {
	t.Helper()

	dir := t.TempDir()
	orgsPath := filepath.Join(dir, "orgs.json")
	if err := os.WriteFile(orgsPath, []byte(orgsJSON), 0o644); err != nil {
		t.Fatalf("Failed to write orgs file: %v", err)
	}

	sourcesPath := filepath.Join(dir, "sources.txt")
	if err := os.WriteFile(sourcesPath, []byte(orgsPath+"\n"), 0o644); err != nil {
		t.Fatalf("Failed to write sources file: %v", err)
	}
	return sourcesPath
}

func newTestDriver(t *testing.T, db *database.DB, host *fakeHost, meetupURL string) *Driver {
	t.Helper()

	sink := NewErrorSink(db)
	driver := NewDriver(
		db,
		sources.NewReader(nil, ""),
		feed.NewReader(nil, ""),
		meetup.NewClient(nil, meetupURL, "test-key", ""),
		host.client(t, sink),
		sink,
		"",
	)
	driver.shuffle = func(int, func(int, int)) {}
	return driver
}

func TestDriverPassIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	host := newFakeHost(t, "/example/repo")
	sourcesPath := writeSources(t, `[{"name": "Example Org", "projects_list_url": "https://github.com/example/repo"}]`)
	driver := newTestDriver(t, db, host, "")

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	orgs := database.NewOrganizationRepository(db)
	projects := database.NewProjectRepository(db)

	org, err := orgs.GetByName("Example Org")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if org == nil {
		t.Fatal("organization missing after pass")
	}
	if org.ID != "Example-Org" {
		t.Errorf("slug = %q", org.ID)
	}

	first, err := projects.GetByNaturalKey("repo", "Example Org")
	if err != nil {
		t.Fatalf("GetByNaturalKey failed: %v", err)
	}
	if first == nil {
		t.Fatal("project missing after pass")
	}
	wantUpdated, _ := time.Parse(time.RFC3339, "2020-01-01T00:00:00Z")
	if first.LastUpdated == nil || !first.LastUpdated.Equal(wantUpdated) {
		t.Errorf("LastUpdated = %v", first.LastUpdated)
	}

	// Second pass with unchanged upstream data.
	host.notModified = true
	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	count, _ := projects.Count()
	if count != 1 {
		t.Errorf("project count = %d after second pass, want 1", count)
	}
	orgCount, _ := orgs.Count()
	if orgCount != 1 {
		t.Errorf("organization count = %d after second pass, want 1", orgCount)
	}

	second, _ := projects.GetByNaturalKey("repo", "Example Org")
	if second.ID != first.ID {
		t.Errorf("project id changed %d -> %d, row identity must survive", first.ID, second.ID)
	}
	if second.LastUpdated == nil || !second.LastUpdated.Equal(wantUpdated) {
		t.Errorf("LastUpdated re-stamped on unchanged pass: %v", second.LastUpdated)
	}
}

func TestDriverPrunesOrphanOrganizations(t *testing.T) {
	db := newTestDB(t)
	host := newFakeHost(t, "/example/repo")
	seedOrg(t, db, "Stale Org")

	sourcesPath := writeSources(t, `[{"name": "Example Org", "projects_list_url": "https://github.com/example/repo"}]`)
	driver := newTestDriver(t, db, host, "")

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	orgs := database.NewOrganizationRepository(db)
	stale, _ := orgs.GetByName("Stale Org")
	if stale != nil {
		t.Error("organization absent from sources must be pruned")
	}
	kept, _ := orgs.GetByName("Example Org")
	if kept == nil {
		t.Error("sourced organization must survive pruning")
	}
}

func TestDriverNameFilterSkipsPruning(t *testing.T) {
	db := newTestDB(t)
	host := newFakeHost(t, "/example/repo")
	seedOrg(t, db, "Stale Org")

	sourcesPath := writeSources(t, `[{"name": "Example Org", "projects_list_url": "https://github.com/example/repo"}]`)
	driver := newTestDriver(t, db, host, "")
	driver.nameFilter = "Example Org"

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	orgs := database.NewOrganizationRepository(db)
	stale, _ := orgs.GetByName("Stale Org")
	if stale == nil {
		t.Error("a filtered run must not prune other organizations")
	}
}

func TestDriverBadNameRecordedAndSkipped(t *testing.T) {
	db := newTestDB(t)
	host := newFakeHost(t, "/example/repo")
	sourcesPath := writeSources(t, `[
		{"name": "Bad?Name"},
		{"name": "Example Org", "projects_list_url": "https://github.com/example/repo"}
	]`)
	driver := newTestDriver(t, db, host, "")

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	orgs := database.NewOrganizationRepository(db)
	bad, _ := orgs.GetByName("Bad?Name")
	if bad != nil {
		t.Error("organization with an unsafe name must not be persisted")
	}
	good, _ := orgs.GetByName("Example Org")
	if good == nil {
		t.Error("siblings of a bad name must still be processed")
	}

	recent, err := database.NewErrorRepository(db).Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d error rows, want 1", len(recent))
	}
	if recent[0].Error != `ValueError: Bad organization name: "Bad?Name"` {
		t.Errorf("error = %q", recent[0].Error)
	}
}

func TestDriverStoriesAndEventsMarkSweep(t *testing.T) {
	db := newTestDB(t)
	host := newFakeHost(t, "/example/repo")

	feedItems := 2
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Blog</title>`)
		for i := 1; i <= feedItems; i++ {
			fmt.Fprintf(w, `<item><title>Post %d</title><link>https://example.org/post-%d</link></item>`, i, i)
		}
		fmt.Fprint(w, `</channel></rss>`)
	}))
	defer feedServer.Close()

	eventCount := 2
	membersAvailable := true
	meetupServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/events":
			fmt.Fprint(w, `{"results": [`)
			for i := 1; i <= eventCount; i++ {
				if i > 1 {
					fmt.Fprint(w, ",")
				}
				fmt.Fprintf(w, `{"name": "Hack Night %d", "event_url": "https://meetup.com/Test-Group/%d", "time": 1714600800000, "utc_offset": -18000000, "yes_rsvp_count": 12, "venue": {"name": "City Hall", "address_1": "1 Main St", "lat": 35.2, "lon": -80.8}}`, i, i)
			}
			fmt.Fprint(w, `], "meta": {"next": ""}}`)
		case "/2/groups":
			if !membersAvailable {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"results": [{"members": 1419}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer meetupServer.Close()

	orgsJSON := fmt.Sprintf(`[{"name": "Example Org", "rss": "%s/feed", "events_url": "https://www.meetup.com/Test-Group/"}]`, feedServer.URL)
	sourcesPath := writeSources(t, orgsJSON)
	driver := newTestDriver(t, db, host, meetupServer.URL)

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	stories := database.NewStoryRepository(db)
	events := database.NewEventRepository(db)
	orgs := database.NewOrganizationRepository(db)

	firstStories, _ := stories.ForOrganization("Example Org")
	if len(firstStories) != 2 {
		t.Fatalf("got %d stories, want 2", len(firstStories))
	}
	firstEvents, _ := events.ForOrganization("Example Org")
	if len(firstEvents) != 2 {
		t.Fatalf("got %d events, want 2", len(firstEvents))
	}
	if firstEvents[0].RSVPs != 12 {
		t.Errorf("RSVPs = %d, want 12", firstEvents[0].RSVPs)
	}
	if firstEvents[0].Location != "City Hall\n1 Main St" {
		t.Errorf("Location = %q", firstEvents[0].Location)
	}
	if firstEvents[0].Latitude == nil || *firstEvents[0].Latitude != 35.2 {
		t.Errorf("Latitude = %v", firstEvents[0].Latitude)
	}
	org, _ := orgs.GetByName("Example Org")
	if org.MemberCount == nil || *org.MemberCount != 1419 {
		t.Errorf("MemberCount = %v, want 1419", org.MemberCount)
	}

	var keptStoryID int64
	for _, story := range firstStories {
		if story.Link == "https://example.org/post-1" {
			keptStoryID = story.ID
		}
	}

	// The second pass sees fewer stories and events, and no member count.
	feedItems = 1
	eventCount = 1
	membersAvailable = false

	if err := driver.Run(sourcesPath); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	secondStories, _ := stories.ForOrganization("Example Org")
	if len(secondStories) != 1 {
		t.Fatalf("got %d stories after sweep, want 1", len(secondStories))
	}
	if secondStories[0].ID != keptStoryID {
		t.Errorf("surviving story id changed %d -> %d", keptStoryID, secondStories[0].ID)
	}

	secondEvents, _ := events.ForOrganization("Example Org")
	if len(secondEvents) != 1 {
		t.Errorf("got %d events after sweep, want 1", len(secondEvents))
	}

	org, _ = orgs.GetByName("Example Org")
	if org.MemberCount == nil || *org.MemberCount != 1419 {
		t.Errorf("an unavailable member count must not clear the stored one, got %v", org.MemberCount)
	}
}

func TestErrorSinkSurvivesRollback(t *testing.T) {
	db := newTestDB(t)
	sink := NewErrorSink(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	sink.begin(tx)
	if err := sink.Record("IOError: We done got throttled by GitHub", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	tx.Rollback()
	sink.end(false)

	recent, err := database.NewErrorRepository(db).Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d error rows after rollback, want 1", len(recent))
	}
	if recent[0].Error != "IOError: We done got throttled by GitHub" {
		t.Errorf("error = %q", recent[0].Error)
	}
}

func TestErrorSinkNoDuplicateOnCommit(t *testing.T) {
	db := newTestDB(t)
	sink := NewErrorSink(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	sink.begin(tx)
	if err := sink.Record("IOError: We done got throttled by GitHub", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sink.end(true)

	recent, err := database.NewErrorRepository(db).Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("got %d error rows after commit, want exactly 1", len(recent))
	}
}
