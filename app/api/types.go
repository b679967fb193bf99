package api

import "github.com/civicboard/civicboard/app/database"

// OrganizationResponse is the public shape of an organization row. The keep
// flag never leaves the reconciliation layer.
type OrganizationResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Website         string  `json:"website,omitempty"`
	EventsURL       string  `json:"events_url,omitempty"`
	RSS             string  `json:"rss,omitempty"`
	ProjectsListURL string  `json:"projects_list_url,omitempty"`
	Type            string  `json:"type,omitempty"`
	City            string  `json:"city,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	MemberCount     *int    `json:"member_count,omitempty"`
	LogoURL         string  `json:"logo_url,omitempty"`
	StartedOn       string  `json:"started_on,omitempty"`
	LastUpdated     int64   `json:"last_updated"`
}

type ProjectResponse struct {
	ID               int64                   `json:"id"`
	Name             string                  `json:"name"`
	CodeURL          string                  `json:"code_url,omitempty"`
	LinkURL          string                  `json:"link_url,omitempty"`
	Description      string                  `json:"description,omitempty"`
	Type             string                  `json:"type,omitempty"`
	Categories       string                  `json:"categories,omitempty"`
	Tags             []string                `json:"tags,omitempty"`
	GitHubDetails    *database.GitHubDetails `json:"github_details,omitempty"`
	Status           string                  `json:"status,omitempty"`
	Languages        []string                `json:"languages,omitempty"`
	CommitStatus     string                  `json:"commit_status,omitempty"`
	LastUpdated      string                  `json:"last_updated,omitempty"`
	OrganizationName string                  `json:"organization_name"`
}

type IssueResponse struct {
	ID      int64           `json:"id"`
	Title   string          `json:"title"`
	HTMLURL string          `json:"html_url"`
	Body    string          `json:"body,omitempty"`
	Labels  []LabelResponse `json:"labels"`
	Project string          `json:"project_name,omitempty"`
}

type LabelResponse struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	URL   string `json:"url,omitempty"`
}

// EventResponse renders times as one offset-qualified string. Upstream they
// are stored naive with a separate UTC offset.
type EventResponse struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	EventURL         string   `json:"event_url"`
	Description      string   `json:"description,omitempty"`
	Location         string   `json:"location,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	StartTime        string   `json:"start_time,omitempty"`
	EndTime          string   `json:"end_time,omitempty"`
	UTCOffset        int      `json:"utc_offset"`
	RSVPs            int      `json:"rsvps"`
	OrganizationName string   `json:"organization_name"`
}

type StoryResponse struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Link             string `json:"link"`
	Type             string `json:"type,omitempty"`
	OrganizationName string `json:"organization_name"`
}

type AttendanceResponse struct {
	OrganizationURL  string         `json:"organization_url"`
	OrganizationName string         `json:"organization_name"`
	Total            int            `json:"total"`
	Weekly           map[string]int `json:"weekly"`
}
