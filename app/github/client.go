// Package github is a thin client for the GitHub REST API with conditional
// fetch support and rate-limit detection. Throttle state is carried on the
// client value so each reconciliation pass starts with a clean slate.
package github

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ThrottledMessage is persisted verbatim to the error sink when the rate
// limit is exhausted. Kept byte-for-byte for compatibility with existing
// health-check consumers.
const ThrottledMessage = "IOError: We done got throttled by GitHub"

const DefaultBaseURL = "https://api.github.com"

// maxPages caps Link-header pagination so a pathological upstream cannot
// keep us following "next" forever.
const maxPages = 50

// ErrorRecorder is the append-only error sink the client writes the
// throttling notice to.
type ErrorRecorder interface {
	Record(message string, at time.Time) error
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	errors     ErrorRecorder
	throttled  bool
}

// NewClient creates a client. An empty token degrades to unauthenticated
// (and more tightly rate-limited) access. errors may be nil when no sink is
// available, e.g. in tests.
func NewClient(httpClient *http.Client, baseURL, token, userAgent string, errors ErrorRecorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
		errors:     errors,
	}
}

// Throttled reports whether the rate limit was exhausted during this
// client's lifetime. Callers must check it before work that depends on
// fresh data.
func (c *Client) Throttled() bool {
	return c.throttled
}

// Response is one raw API response. NextURL carries the Link header's
// "next" relation when the resource is paginated.
type Response struct {
	StatusCode int
	ETag       string
	Body       []byte
	NextURL    string
}

func (c *Client) get(url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	limitHit, remaining := hitRateLimit(resp.Header)
	slog.Debug("GitHub request", "url", url, "status", resp.StatusCode, "remaining", remaining)

	// A 403 with quota left is an ordinary forbidden response.
	if resp.StatusCode == http.StatusForbidden && limitHit {
		if !c.throttled {
			c.throttled = true
			slog.Error("GitHub rate limit exhausted", "remaining", remaining)
			if c.errors != nil {
				if err := c.errors.Record(ThrottledMessage, time.Now()); err != nil {
					return nil, fmt.Errorf("failed to record throttling error: %w", err)
				}
			}
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		Body:       body,
		NextURL:    nextLink(resp.Header),
	}, nil
}

// hitRateLimit reports whether the rate limit is exhausted and how many
// requests remain. Missing or malformed headers count as "not hit".
func hitRateLimit(headers http.Header) (bool, int) {
	remainingStr := headers.Get("X-Ratelimit-Remaining")
	if remainingStr == "" {
		return false, 0
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return false, 0
	}
	return remaining <= 0, remaining
}

// nextLink extracts the "next" relation from an RFC 5988 Link header.
func nextLink(headers http.Header) string {
	for _, link := range headers.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			section := strings.Split(part, ";")
			if len(section) < 2 {
				continue
			}
			url := strings.Trim(strings.TrimSpace(section[0]), "<>")
			for _, param := range section[1:] {
				if strings.TrimSpace(param) == `rel="next"` {
					return url
				}
			}
		}
	}
	return ""
}

// getPaginated follows "next" links and concatenates list responses. The
// first response's status and ETag are the ones that matter to callers.
func (c *Client) getPaginated(url string, headers map[string]string) (*Response, []json.RawMessage, error) {
	first, err := c.get(url, headers)
	if err != nil {
		return nil, nil, err
	}

	if first.StatusCode/100 != 2 {
		return first, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(first.Body, &items); err != nil {
		// Not a list; nothing to concatenate.
		return first, nil, nil
	}

	next := first.NextURL
	for page := 1; next != "" && page < maxPages; page++ {
		resp, err := c.get(next, headers)
		if err != nil {
			return nil, nil, err
		}
		if resp.StatusCode/100 != 2 {
			break
		}

		var pageItems []json.RawMessage
		if err := json.Unmarshal(resp.Body, &pageItems); err != nil {
			break
		}
		items = append(items, pageItems...)
		next = resp.NextURL
	}

	return first, items, nil
}
