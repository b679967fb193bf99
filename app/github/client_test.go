package github

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedError struct {
	message string
	at      time.Time
}

type errorSink struct {
	records []recordedError
}

func (s *errorSink) Record(message string, at time.Time) error {
	s.records = append(s.records, recordedError{message, at})
	return nil
}

func TestRepoSendsAuthAndConditionalHeaders(t *testing.T) {
	var gotAuth, gotModified, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotModified = r.Header.Get("If-Modified-Since")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("ETag", `"abc123"`)
		fmt.Fprint(w, `{"name": "cfapi", "html_url": "https://github.com/codeforamerica/cfapi", "forks_count": 3}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "secret-token", "civicboard tests", nil)
	result, err := client.Repo("/codeforamerica/cfapi", "Thu, 01 May 2024 00:00:00 GMT")
	if err != nil {
		t.Fatalf("Repo() error: %v", err)
	}

	if gotAuth != "token secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModified != "Thu, 01 May 2024 00:00:00 GMT" {
		t.Errorf("If-Modified-Since = %q", gotModified)
	}
	if gotAgent != "civicboard tests" {
		t.Errorf("User-Agent = %q", gotAgent)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if result.ETag != `"abc123"` {
		t.Errorf("ETag = %q", result.ETag)
	}
	if result.Repo == nil || result.Repo.Name != "cfapi" || result.Repo.ForksCount != 3 {
		t.Errorf("Repo = %+v", result.Repo)
	}
}

func TestRepoNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	result, err := client.Repo("/codeforamerica/cfapi", "Thu, 01 May 2024 00:00:00 GMT")
	if err != nil {
		t.Fatalf("Repo() error: %v", err)
	}
	if result.StatusCode != http.StatusNotModified {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if result.Repo != nil {
		t.Errorf("Repo should be nil on 304, got %+v", result.Repo)
	}
}

func TestIssuesFollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"title": "Second", "html_url": "https://github.com/x/y/issues/2"}]`)
			return
		}
		w.Header().Set("ETag", `"issues-etag"`)
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/x/y/issues?page=2>; rel="next"`, server.URL))
		fmt.Fprint(w, `[{"title": "First", "html_url": "https://github.com/x/y/issues/1", "labels": [{"name": "bug", "color": "fc2929"}]}]`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	result, err := client.Issues("/x/y", "")
	if err != nil {
		t.Fatalf("Issues() error: %v", err)
	}

	if result.ETag != `"issues-etag"` {
		t.Errorf("ETag = %q", result.ETag)
	}
	if len(result.Issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(result.Issues))
	}
	if result.Issues[0].Title != "First" || result.Issues[1].Title != "Second" {
		t.Errorf("issues out of order: %+v", result.Issues)
	}
	if len(result.Issues[0].Labels) != 1 || result.Issues[0].Labels[0].Name != "bug" {
		t.Errorf("labels = %+v", result.Issues[0].Labels)
	}
}

func TestIssuesSendsETag(t *testing.T) {
	var gotETag string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	result, err := client.Issues("/x/y", `"stored-etag"`)
	if err != nil {
		t.Fatalf("Issues() error: %v", err)
	}
	if gotETag != `"stored-etag"` {
		t.Errorf("If-None-Match = %q", gotETag)
	}
	if result.StatusCode != http.StatusNotModified {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if len(result.Issues) != 0 {
		t.Errorf("issues should be empty on 304")
	}
}

func TestThrottleDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := &errorSink{}
	client := NewClient(server.Client(), server.URL, "", "", sink)

	if client.Throttled() {
		t.Fatal("client should start unthrottled")
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Repo("/x/y", ""); err != nil {
			t.Fatalf("Repo() error: %v", err)
		}
	}

	if !client.Throttled() {
		t.Error("client should be throttled after 403 with no quota")
	}
	if len(sink.records) != 1 {
		t.Fatalf("got %d error records, want exactly 1", len(sink.records))
	}
	if sink.records[0].message != "IOError: We done got throttled by GitHub" {
		t.Errorf("recorded message = %q", sink.records[0].message)
	}
}

func TestPlainForbiddenIsNotThrottling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "4999")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := &errorSink{}
	client := NewClient(server.Client(), server.URL, "", "", sink)

	result, err := client.Repo("/x/y", "")
	if err != nil {
		t.Fatalf("Repo() error: %v", err)
	}
	if result.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if client.Throttled() {
		t.Error("403 with quota left must not throttle the client")
	}
	if len(sink.records) != 0 {
		t.Errorf("no error should be recorded, got %d", len(sink.records))
	}
}

func TestFileContentsRequestsRawMedia(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("ETag", `"civic-etag"`)
		fmt.Fprint(w, `{"status": "Official", "tags": ["mapping"]}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	result, err := client.FileContents("/x/y", "civic.json", "")
	if err != nil {
		t.Fatalf("FileContents() error: %v", err)
	}
	if gotAccept != "application/vnd.github.v3.raw" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if result.ETag != `"civic-etag"` {
		t.Errorf("ETag = %q", result.ETag)
	}
	if string(result.Body) != `{"status": "Official", "tags": ["mapping"]}` {
		t.Errorf("Body = %q", result.Body)
	}
}

func TestCommitStatusParsesState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/x/y/commits/main/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"state": "success"}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	state, err := client.CommitStatus("/x/y", "main")
	if err != nil {
		t.Fatalf("CommitStatus() error: %v", err)
	}
	if state != "success" {
		t.Errorf("state = %q", state)
	}
}

func TestParticipationDegradesOnPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	weeks, err := client.Participation(server.URL + "/repos/x/y")
	if err != nil {
		t.Fatalf("Participation() error: %v", err)
	}
	if weeks != nil {
		t.Errorf("weeks = %v, want nil while stats are pending", weeks)
	}
}

func TestLanguagesReturnsNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Go": 10230, "Shell": 110}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "", "", nil)
	languages, err := client.Languages(server.URL + "/repos/x/y/languages")
	if err != nil {
		t.Fatalf("Languages() error: %v", err)
	}
	if len(languages) != 2 {
		t.Errorf("languages = %v", languages)
	}
}

func TestRepoPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/codeforamerica/cfapi", "/codeforamerica/cfapi", true},
		{"https://github.com/codeforamerica/cfapi/", "/codeforamerica/cfapi", true},
		{"https://github.com/codeforamerica/cfapi.git", "/codeforamerica/cfapi", true},
		{"https://www.github.com/codeforamerica/cfapi", "/codeforamerica/cfapi", true},
		{"https://github.com/codeforamerica/cfapi/tree/master/docs", "/codeforamerica/cfapi", true},
		{"  https://github.com/codeforamerica/cfapi  ", "/codeforamerica/cfapi", true},
		{"https://gitlab.com/group/project", "", false},
		{"https://github.com/codeforamerica", "", false},
		{"not a url at all ://", "", false},
	}

	for _, c := range cases {
		got, ok := RepoPath(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("RepoPath(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestUserFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/codeforamerica", "codeforamerica", true},
		{"https://github.com/codeforamerica/", "codeforamerica", true},
		{"https://github.com/orgs/codeforamerica", "codeforamerica", true},
		{"https://github.com/codeforamerica/cfapi", "", false},
		{"https://example.com/codeforamerica", "", false},
	}

	for _, c := range cases {
		got, ok := UserFromURL(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("UserFromURL(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
