package update

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/github"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// fakeHost is a scriptable stand-in for the code-hosting API serving one
// repository.
type fakeHost struct {
	baseURL     string
	repoPath    string
	pushedAt    string
	updatedAt   string
	missing     bool
	notModified bool
	throttled   bool

	listing     []string
	listingETag string
	civic       string
	civicETag   string

	issues     []map[string]any
	issuesETag string

	requests int
}

func newFakeHost(t *testing.T, repoPath string) *fakeHost {
	t.Helper()

	h := &fakeHost{
		repoPath:    repoPath,
		pushedAt:    "2020-01-01T00:00:00Z",
		updatedAt:   "2019-01-01T00:00:00Z",
		listingETag: `"listing-v1"`,
		civicETag:   `"civic-v1"`,
		issuesETag:  `"issues-v1"`,
	}
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	h.baseURL = server.URL
	return h
}

func (h *fakeHost) client(t *testing.T, errors github.ErrorRecorder) *github.Client {
	t.Helper()
	return github.NewClient(http.DefaultClient, h.baseURL, "", "tests", errors)
}

func (h *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests++

	if h.throttled {
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	prefix := "/repos" + h.repoPath
	writeJSON := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case prefix:
		if h.missing {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if h.notModified && r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeJSON(map[string]any{
			"id":                101,
			"name":              "repo",
			"description":       "A fine repo",
			"homepage":          "https://example.org",
			"html_url":          "https://github.com" + h.repoPath,
			"url":               h.baseURL + prefix,
			"languages_url":     h.baseURL + prefix + "/languages",
			"contributors_url":  h.baseURL + prefix + "/contributors",
			"pushed_at":         h.pushedAt,
			"updated_at":        h.updatedAt,
			"default_branch":    "main",
			"forks_count":       3,
			"open_issues":       1,
			"watchers_count":    5,
			"stargazers_count":  5,
			"subscribers_count": 2,
			"owner": map[string]any{
				"login":      "example",
				"avatar_url": "https://avatars.example/u/1",
				"html_url":   "https://github.com/example",
				"type":       "Organization",
			},
		})

	case prefix + "/languages":
		writeJSON(map[string]int{"Go": 1200})

	case prefix + "/contributors":
		writeJSON([]map[string]any{
			{"login": "example", "contributions": 42, "avatar_url": "https://avatars.example/u/1"},
		})

	case prefix + "/stats/participation":
		// Stats are computed lazily upstream.
		w.WriteHeader(http.StatusAccepted)

	case prefix + "/commits/main/status":
		writeJSON(map[string]string{"state": "success"})

	case prefix + "/contents/":
		if r.Header.Get("If-None-Match") == h.listingETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", h.listingETag)
		entries := make([]map[string]string, 0, len(h.listing))
		for _, name := range h.listing {
			entries = append(entries, map[string]string{"name": name})
		}
		writeJSON(entries)

	case prefix + "/contents/civic.json":
		if r.Header.Get("If-None-Match") == h.civicETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", h.civicETag)
		w.Write([]byte(h.civic))

	case prefix + "/issues":
		if r.Header.Get("If-None-Match") == h.issuesETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", h.issuesETag)
		writeJSON(h.issues)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
