// Package feed turns an organization's blog into story records. It prefers
// an explicitly configured feed URL, falls back to autodiscovery on the
// website, and degrades to no stories when neither works.
package feed

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// storyCount is how many of the newest entries become stories.
const storyCount = 2

// candidatePaths are tried against the website root when the page itself
// carries no alternate link.
var candidatePaths = []string{"/feed", "/feed/", "/rss", "/rss.xml", "/feed.xml", "/atom.xml", "/blog/feed"}

type Story struct {
	Title string
	Link  string
	Type  string
}

type Reader struct {
	httpClient *http.Client
	userAgent  string
	parser     *gofeed.Parser
}

func NewReader(httpClient *http.Client, userAgent string) *Reader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{
		httpClient: httpClient,
		userAgent:  userAgent,
		parser:     gofeed.NewParser(),
	}
}

// Stories resolves an organization's two newest blog entries. rssURL wins
// over websiteURL when both are set. Failures are logged and yield an
// empty slice.
func (r *Reader) Stories(rssURL, websiteURL string) []Story {
	for _, source := range []string{rssURL, websiteURL} {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if stories := r.storiesFrom(source); len(stories) > 0 {
			return stories
		}
	}
	return nil
}

func (r *Reader) storiesFrom(source string) []Story {
	body, err := r.fetch(source)
	if err != nil {
		slog.Debug("failed to fetch stories source", "url", source, "error", err)
		return nil
	}

	// The source may already be a feed.
	if stories, err := r.parseStories(body); err == nil {
		return stories
	}

	feedURL := discoverFeedURL(source, body)
	if feedURL == "" {
		feedURL = r.probeCandidates(source)
	}
	if feedURL == "" {
		return nil
	}

	feedBody, err := r.fetch(feedURL)
	if err != nil {
		slog.Debug("failed to fetch discovered feed", "url", feedURL, "error", err)
		return nil
	}
	stories, err := r.parseStories(feedBody)
	if err != nil {
		slog.Debug("failed to parse discovered feed", "url", feedURL, "error", err)
		return nil
	}
	return stories
}

func (r *Reader) fetch(rawURL string) ([]byte, error) {
	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

func (r *Reader) parseStories(data []byte) ([]Story, error) {
	parsed, err := r.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	stories := make([]Story, 0, storyCount)
	for _, item := range parsed.Items {
		if item.Title == "" && item.Link == "" {
			continue
		}
		stories = append(stories, Story{Title: item.Title, Link: item.Link, Type: "blog"})
		if len(stories) == storyCount {
			break
		}
	}
	return stories, nil
}

// discoverFeedURL looks for an alternate link in the page head and resolves
// it against the page URL.
func discoverFeedURL(pageURL string, body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	var found string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		linkType, _ := sel.Attr("type")
		if !strings.Contains(linkType, "rss") && !strings.Contains(linkType, "atom") && !strings.Contains(linkType, "xml") {
			return true
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found
}

// probeCandidates tries well-known feed paths off the site root.
func (r *Reader) probeCandidates(pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	root := url.URL{Scheme: base.Scheme, Host: base.Host}

	for _, path := range candidatePaths {
		candidate := root.String() + path
		body, err := r.fetch(candidate)
		if err != nil {
			continue
		}
		if _, err := r.parser.Parse(bytes.NewReader(body)); err == nil {
			return candidate
		}
	}
	return ""
}
