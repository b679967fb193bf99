package database

import (
	"fmt"
	"time"
)

// Organization is a civic-tech organization keyed by its name. The Keep flag
// is the per-run mark-sweep tombstone; it is never exposed through the API.
type Organization struct {
	Name            string
	Website         string
	EventsURL       string
	RSS             string
	ProjectsListURL string
	Type            string
	City            string
	Latitude        float64
	Longitude       float64
	LastUpdated     int64 // unix seconds of the last successful refresh
	StartedOn       string
	MemberCount     *int
	LogoURL         string
	Keep            bool
	ID              string // URL-safe slug derived from Name
}

// Owner is the subset of repository-owner fields kept in GitHubDetails.
type Owner struct {
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Login     string `json:"login"`
	Type      string `json:"type"`
}

// Contributor is one entry of a repository's contributor list.
type Contributor struct {
	Login         string `json:"login"`
	URL           string `json:"url"`
	AvatarURL     string `json:"avatar_url"`
	HTMLURL       string `json:"html_url"`
	Contributions int    `json:"contributions"`
	Owner         bool   `json:"owner"`
}

// GitHubDetails is the structured repository-metadata blob stored on a
// project. Only the allow-listed fields from the repo endpoint are kept.
type GitHubDetails struct {
	ContributorsURL  string        `json:"contributors_url"`
	CreatedAt        string        `json:"created_at"`
	ForksCount       int           `json:"forks_count"`
	Homepage         string        `json:"homepage"`
	HTMLURL          string        `json:"html_url"`
	ID               int64         `json:"id"`
	OpenIssues       int           `json:"open_issues"`
	PushedAt         string        `json:"pushed_at"`
	UpdatedAt        string        `json:"updated_at"`
	WatchersCount    int           `json:"watchers_count"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	StargazersCount  int           `json:"stargazers_count"`
	SubscribersCount int           `json:"subscribers_count"`
	Owner            Owner         `json:"owner"`
	Contributors     []Contributor `json:"contributors"`
	Participation    []int         `json:"participation"`
}

// Project natural key is (Name, OrganizationName). The three cache tokens
// hold the ETags of the issue list, the civic.json file and the root
// directory listing from the previous run.
type Project struct {
	ID                   int64
	Name                 string
	CodeURL              string
	LinkURL              string
	Description          string
	Type                 string
	Categories           string
	Tags                 []string
	GitHubDetails        *GitHubDetails
	Status               string
	Languages            []string
	CommitStatus         string
	LastUpdated          *time.Time
	LastUpdatedIssues    string
	LastUpdatedCivicJSON string
	LastUpdatedRootFiles string
	Keep                 bool
	OrganizationName     string
}

// Issue natural key is (HTMLURL, ProjectID). Two issues with identical
// titles but different URLs are distinct rows.
type Issue struct {
	ID        int64
	Title     string
	HTMLURL   string
	Body      string
	Keep      bool
	ProjectID int64
}

type Label struct {
	ID      int64
	Name    string
	Color   string
	URL     string
	IssueID int64
}

// Event natural key is (EventURL, OrganizationName). Start and end times are
// stored naive alongside a UTC offset in seconds; they are combined only when
// rendered.
type Event struct {
	ID               int64
	Name             string
	Description      string
	EventURL         string
	Location         string
	Latitude         *float64
	Longitude        *float64
	CreatedAt        string
	StartTimeNoTZ    *time.Time
	EndTimeNoTZ      *time.Time
	UTCOffset        int
	RSVPs            int
	Keep             bool
	OrganizationName string
}

// StartTime renders the naive start time with its UTC offset applied,
// formatted as "2006-01-02 15:04:05 -0700". Empty when no start time is set.
func (e *Event) StartTime() string {
	return renderEventTime(e.StartTimeNoTZ, e.UTCOffset)
}

// EndTime renders the naive end time the same way as StartTime.
func (e *Event) EndTime() string {
	return renderEventTime(e.EndTimeNoTZ, e.UTCOffset)
}

func renderEventTime(notz *time.Time, utcOffset int) string {
	if notz == nil {
		return ""
	}
	zone := time.FixedZone("", utcOffset)
	t := time.Date(notz.Year(), notz.Month(), notz.Day(), notz.Hour(), notz.Minute(), notz.Second(), 0, zone)
	return t.Format("2006-01-02 15:04:05 -0700")
}

// Story natural key is (Link, OrganizationName).
type Story struct {
	ID               int64
	Title            string
	Link             string
	Type             string
	Keep             bool
	OrganizationName string
}

// Attendance summarizes event attendance per organization.
type Attendance struct {
	OrganizationURL  string
	OrganizationName string
	Total            int
	Weekly           map[string]int
}

// ErrorRecord is one row of the append-only error sink.
type ErrorRecord struct {
	ID    int64
	Error string
	Time  time.Time
}

func (e *ErrorRecord) String() string {
	return fmt.Sprintf("%s at %s", e.Error, e.Time.Format(time.RFC3339))
}
