// Package meetup fetches upcoming events and member counts for an
// organization's event group. All upstream failures degrade to empty
// results so one broken group never stalls a reconciliation pass.
package meetup

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.meetup.com"

// maxPages caps meta.next pagination.
const maxPages = 10

var groupNameRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Event is one past or upcoming event with times kept naive alongside the
// venue's UTC offset, so the wall-clock time survives round trips through
// storage.
type Event struct {
	Name        string
	EventURL    string
	Description string
	Start       time.Time
	End         *time.Time
	Created     *time.Time
	UTCOffset   int
	Location    string
	Latitude    *float64
	Longitude   *float64
	RSVPs       int
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

func NewClient(httpClient *http.Client, baseURL, apiKey, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userAgent:  userAgent,
	}
}

func (c *Client) get(rawURL string) ([]byte, int, error) {
	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

type venuePayload struct {
	Name     string  `json:"name"`
	Address1 string  `json:"address_1"`
	Address2 string  `json:"address_2"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

type eventPayload struct {
	Name         string        `json:"name"`
	EventURL     string        `json:"event_url"`
	Description  string        `json:"description"`
	Time         int64         `json:"time"`
	Duration     int64         `json:"duration"`
	Created      int64         `json:"created"`
	UTCOffset    int64         `json:"utc_offset"`
	YesRSVPCount int           `json:"yes_rsvp_count"`
	Venue        *venuePayload `json:"venue"`
}

type eventsPage struct {
	Results []eventPayload `json:"results"`
	Meta    struct {
		Next string `json:"next"`
	} `json:"meta"`
}

// GroupEvents fetches the past and upcoming events of a group, following
// pagination. Missing groups and malformed payloads yield an empty slice.
func (c *Client) GroupEvents(identifier string) ([]Event, error) {
	pageURL := fmt.Sprintf("%s/2/events?status=past,upcoming&format=json&group_urlname=%s&key=%s&desc=true&page=200",
		c.baseURL, url.QueryEscape(identifier), url.QueryEscape(c.apiKey))

	var events []Event
	for page := 0; pageURL != "" && page < maxPages; page++ {
		body, status, err := c.get(pageURL)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			slog.Warn("no events found for group", "group", identifier, "status", status)
			return events, nil
		}

		var parsed eventsPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			slog.Warn("unparseable events payload", "group", identifier, "error", err)
			return events, nil
		}

		for _, payload := range parsed.Results {
			events = append(events, payloadToEvent(payload))
		}
		pageURL = parsed.Meta.Next
	}
	return events, nil
}

// payloadToEvent converts epoch milliseconds plus a millisecond UTC offset
// into the venue's naive wall-clock time and an offset in seconds.
func payloadToEvent(payload eventPayload) Event {
	start := time.UnixMilli(payload.Time + payload.UTCOffset).UTC()
	event := Event{
		Name:        payload.Name,
		EventURL:    payload.EventURL,
		Description: payload.Description,
		Start:       start,
		UTCOffset:   int(payload.UTCOffset / 1000),
		RSVPs:       payload.YesRSVPCount,
	}
	if payload.Duration > 0 {
		end := start.Add(time.Duration(payload.Duration) * time.Millisecond)
		event.End = &end
	}
	if payload.Created > 0 {
		created := time.UnixMilli(payload.Created + payload.UTCOffset).UTC()
		event.Created = &created
	}
	// Some events don't have venues.
	if payload.Venue != nil {
		event.Location = formatLocation(payload.Venue)
		lat, lon := payload.Venue.Lat, payload.Venue.Lon
		event.Latitude = &lat
		event.Longitude = &lon
	}
	return event
}

func formatLocation(venue *venuePayload) string {
	address := venue.Address1
	if venue.Address2 != "" {
		address += ", " + venue.Address2
	}
	return venue.Name + "\n" + address
}

type groupsPage struct {
	Results []struct {
		Members int `json:"members"`
	} `json:"results"`
}

// GroupMembers fetches a group's member count. A nil result means the count
// is unavailable; callers must not overwrite a stored count with it.
func (c *Client) GroupMembers(identifier string) (*int, error) {
	pageURL := fmt.Sprintf("%s/2/groups?group_urlname=%s&key=%s",
		c.baseURL, url.QueryEscape(identifier), url.QueryEscape(c.apiKey))

	body, status, err := c.get(pageURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}

	var parsed groupsPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	return &parsed.Results[0].Members, nil
}

// GroupIdentifier extracts the group's URL name from an event page URL such
// as "https://www.meetup.com/Code-for-Charlotte/". The identifier is the
// last non-empty path segment and must match the safe charset in full;
// anything else is rejected rather than truncated.
func GroupIdentifier(eventsURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(eventsURL))
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	if host != "meetup.com" {
		return "", false
	}

	var identifier string
	segments := strings.Split(parsed.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			identifier = segments[i]
			break
		}
	}
	if !groupNameRe.MatchString(identifier) {
		return "", false
	}
	return identifier, true
}
