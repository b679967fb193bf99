package github

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Owner is the subset of the repository owner used for logos and links.
type Owner struct {
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Login     string `json:"login"`
	Type      string `json:"type"`
}

// Repo is the subset of repository metadata the directory keeps.
type Repo struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Homepage         string `json:"homepage"`
	HTMLURL          string `json:"html_url"`
	URL              string `json:"url"`
	LanguagesURL     string `json:"languages_url"`
	ContributorsURL  string `json:"contributors_url"`
	CreatedAt        string `json:"created_at"`
	PushedAt         string `json:"pushed_at"`
	UpdatedAt        string `json:"updated_at"`
	ForksCount       int    `json:"forks_count"`
	OpenIssues       int    `json:"open_issues"`
	WatchersCount    int    `json:"watchers_count"`
	StargazersCount  int    `json:"stargazers_count"`
	SubscribersCount int    `json:"subscribers_count"`
	DefaultBranch    string `json:"default_branch"`
	Owner            Owner  `json:"owner"`
}

// RepoResult carries the repository response along with its status code so
// callers can distinguish fresh data (200) from not-modified (304), gone
// (404), and the rest.
type RepoResult struct {
	StatusCode int
	ETag       string
	Repo       *Repo
}

// Repo fetches repository metadata for an owner/name path such as
// "/codeforamerica/cfapi". ifModifiedSince, when non-empty, enables a
// conditional fetch.
func (c *Client) Repo(path, ifModifiedSince string) (*RepoResult, error) {
	headers := map[string]string{}
	if ifModifiedSince != "" {
		headers["If-Modified-Since"] = ifModifiedSince
	}

	resp, err := c.get(c.baseURL+"/repos"+path, headers)
	if err != nil {
		return nil, err
	}

	result := &RepoResult{StatusCode: resp.StatusCode, ETag: resp.ETag}
	if resp.StatusCode == http.StatusOK {
		repo := &Repo{}
		if err := json.Unmarshal(resp.Body, repo); err != nil {
			return nil, fmt.Errorf("failed to parse repository payload: %w", err)
		}
		result.Repo = repo
	}
	return result, nil
}

type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	URL   string `json:"url"`
}

type Issue struct {
	Title   string  `json:"title"`
	HTMLURL string  `json:"html_url"`
	Body    string  `json:"body"`
	Labels  []Label `json:"labels"`
}

type IssuesResult struct {
	StatusCode int
	ETag       string
	Issues     []Issue
}

// Issues fetches the open issues of a repository, following pagination.
// etag, when non-empty, enables a conditional fetch; a 304 result means the
// stored issues are still current.
func (c *Client) Issues(path, etag string) (*IssuesResult, error) {
	headers := map[string]string{}
	if etag != "" {
		headers["If-None-Match"] = etag
	}

	first, items, err := c.getPaginated(c.baseURL+"/repos"+path+"/issues", headers)
	if err != nil {
		return nil, err
	}

	result := &IssuesResult{StatusCode: first.StatusCode, ETag: first.ETag}
	for _, item := range items {
		var issue Issue
		if err := json.Unmarshal(item, &issue); err != nil {
			continue
		}
		result.Issues = append(result.Issues, issue)
	}
	return result, nil
}

// ContentResult is a raw file fetch. Body is the file contents verbatim for
// a 200 response.
type ContentResult struct {
	StatusCode int
	ETag       string
	Body       []byte
}

// FileContents fetches one file from the repository root in raw form.
func (c *Client) FileContents(path, name, etag string) (*ContentResult, error) {
	headers := map[string]string{"Accept": "application/vnd.github.v3.raw"}
	if etag != "" {
		headers["If-None-Match"] = etag
	}

	resp, err := c.get(c.baseURL+"/repos"+path+"/contents/"+name, headers)
	if err != nil {
		return nil, err
	}
	return &ContentResult{StatusCode: resp.StatusCode, ETag: resp.ETag, Body: resp.Body}, nil
}

type ListingEntry struct {
	Name string `json:"name"`
}

type ListingResult struct {
	StatusCode int
	ETag       string
	Entries    []ListingEntry
}

// RootListing fetches the repository's top-level directory listing.
func (c *Client) RootListing(path, etag string) (*ListingResult, error) {
	headers := map[string]string{}
	if etag != "" {
		headers["If-None-Match"] = etag
	}

	resp, err := c.get(c.baseURL+"/repos"+path+"/contents/", headers)
	if err != nil {
		return nil, err
	}

	result := &ListingResult{StatusCode: resp.StatusCode, ETag: resp.ETag}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(resp.Body, &result.Entries); err != nil {
			return nil, fmt.Errorf("failed to parse directory listing: %w", err)
		}
	}
	return result, nil
}

// CommitStatus fetches the combined status of the latest commit on a
// branch. Any failure degrades to an empty state.
func (c *Client) CommitStatus(path, branch string) (string, error) {
	if branch == "" {
		branch = "master"
	}

	resp, err := c.get(c.baseURL+"/repos"+path+"/commits/"+branch+"/status", nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var payload struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", nil
	}
	return payload.State, nil
}

type Contributor struct {
	Login         string `json:"login"`
	URL           string `json:"url"`
	AvatarURL     string `json:"avatar_url"`
	HTMLURL       string `json:"html_url"`
	Contributions int    `json:"contributions"`
	Owner         bool   `json:"owner"`
}

// Contributors fetches a repository's contributor list by the absolute URL
// found in its metadata.
func (c *Client) Contributors(url string) ([]Contributor, error) {
	first, items, err := c.getPaginated(url, nil)
	if err != nil {
		return nil, err
	}
	if first.StatusCode != http.StatusOK {
		return nil, nil
	}

	var contributors []Contributor
	for _, item := range items {
		var contributor Contributor
		if err := json.Unmarshal(item, &contributor); err != nil {
			continue
		}
		contributors = append(contributors, contributor)
	}
	return contributors, nil
}

// Participation fetches weekly commit counts for the last year. GitHub
// computes these lazily, so a 202 (or any non-200) yields nil.
func (c *Client) Participation(url string) ([]int, error) {
	resp, err := c.get(url+"/stats/participation", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload struct {
		All []int `json:"all"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, nil
	}
	return payload.All, nil
}

// Languages fetches the language names used in a repository by the absolute
// languages URL found in its metadata.
func (c *Client) Languages(url string) ([]string, error) {
	resp, err := c.get(url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var byBytes map[string]int64
	if err := json.Unmarshal(resp.Body, &byBytes); err != nil {
		return nil, nil
	}

	languages := make([]string, 0, len(byBytes))
	for name := range byBytes {
		languages = append(languages, name)
	}
	return languages, nil
}

// RepoListItem is the subset of a user's repository listing used to expand
// an organization link into individual projects.
type RepoListItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Homepage    string `json:"homepage"`
	Fork        bool   `json:"fork"`
}

// UserRepos lists the public repositories of a user or organization,
// following pagination.
func (c *Client) UserRepos(login string) ([]RepoListItem, error) {
	first, items, err := c.getPaginated(c.baseURL+"/users/"+login+"/repos", nil)
	if err != nil {
		return nil, err
	}
	if first.StatusCode != http.StatusOK {
		return nil, nil
	}

	var repos []RepoListItem
	for _, item := range items {
		var repo RepoListItem
		if err := json.Unmarshal(item, &repo); err != nil {
			continue
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// User fetches a user profile, used to resolve organization logos from an
// avatar.
func (c *Client) User(login string) (*Owner, error) {
	resp, err := c.get(c.baseURL+"/users/"+login, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	owner := &Owner{}
	if err := json.Unmarshal(resp.Body, owner); err != nil {
		return nil, fmt.Errorf("failed to parse user payload: %w", err)
	}
	return owner, nil
}
