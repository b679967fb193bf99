package github

import (
	"net/url"
	"regexp"
	"strings"
)

var userPathRe = regexp.MustCompile(`^(/orgs)?/(?P<name>[^/]+)/?$`)

func isCodeHost(host string) bool {
	return host == "github.com" || host == "www.github.com"
}

// IsRepoURL reports whether a project's code URL points at the code host.
// Projects hosted elsewhere keep their spreadsheet data untouched.
func IsRepoURL(codeURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(codeURL))
	if err != nil {
		return false
	}
	return isCodeHost(parsed.Host)
}

// RepoPath canonicalizes a code URL into the "/owner/name" form the API
// expects. Trailing slashes, a ".git" suffix, and any deeper path segments
// are dropped. ok is false when the URL does not name a repository on the
// code host.
func RepoPath(codeURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(codeURL))
	if err != nil || !isCodeHost(parsed.Host) {
		return "", false
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", false
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")
	if name == "" {
		return "", false
	}
	return "/" + owner + "/" + name, true
}

// UserFromURL extracts the user or organization login from a profile URL
// such as "https://github.com/codeforamerica" or ".../orgs/codeforamerica".
func UserFromURL(profileURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil || !isCodeHost(parsed.Host) {
		return "", false
	}

	match := userPathRe.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", false
	}
	return match[len(match)-1], true
}
