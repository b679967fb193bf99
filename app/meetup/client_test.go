package meetup

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroupEventsFollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/events" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("offset") == "1" {
			fmt.Fprint(w, `{"results": [{"name": "Hack Night 2", "event_url": "https://meetup.com/x/2", "time": 1714600800000, "utc_offset": -18000000}], "meta": {"next": ""}}`)
			return
		}
		if got := r.URL.Query().Get("status"); got != "past,upcoming" {
			t.Errorf("status = %q, want past,upcoming", got)
		}
		fmt.Fprintf(w, `{"results": [{"name": "Hack Night 1", "event_url": "https://meetup.com/x/1", "time": 1714600800000, "utc_offset": -18000000, "duration": 7200000, "created": 1713996000000, "yes_rsvp_count": 24, "venue": {"name": "City Hall", "address_1": "1 Main St", "address_2": "Room 2", "lat": 35.2, "lon": -80.8}}], "meta": {"next": "%s/2/events?offset=1"}}`, server.URL)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "key", "")
	events, err := client.GroupEvents("Code-for-Charlotte")
	if err != nil {
		t.Fatalf("GroupEvents() error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	first := events[0]
	if first.Name != "Hack Night 1" {
		t.Errorf("Name = %q", first.Name)
	}
	// 1714600800000 ms is 2024-05-01 22:00:00 UTC; at UTC-5 the venue
	// clock reads 17:00.
	if got := first.Start.Format("2006-01-02 15:04:05"); got != "2024-05-01 17:00:00" {
		t.Errorf("Start = %q", got)
	}
	if first.UTCOffset != -18000 {
		t.Errorf("UTCOffset = %d", first.UTCOffset)
	}
	if first.End == nil {
		t.Fatal("End should be set when a duration is present")
	}
	if got := first.End.Format("2006-01-02 15:04:05"); got != "2024-05-01 19:00:00" {
		t.Errorf("End = %q", got)
	}
	if first.RSVPs != 24 {
		t.Errorf("RSVPs = %d", first.RSVPs)
	}
	if first.Location != "City Hall\n1 Main St, Room 2" {
		t.Errorf("Location = %q", first.Location)
	}
	if first.Latitude == nil || *first.Latitude != 35.2 {
		t.Errorf("Latitude = %v", first.Latitude)
	}
	if first.Longitude == nil || *first.Longitude != -80.8 {
		t.Errorf("Longitude = %v", first.Longitude)
	}
	if first.Created == nil {
		t.Fatal("Created should be set")
	}
	// 1713996000000 ms is 2024-04-24 22:00:00 UTC; the venue clock reads
	// 17:00 at UTC-5.
	if got := first.Created.Format("2006-01-02 15:04:05"); got != "2024-04-24 17:00:00" {
		t.Errorf("Created = %q", got)
	}
	if events[1].End != nil {
		t.Error("End should be nil without a duration")
	}
	second := events[1]
	if second.Location != "" || second.Latitude != nil || second.Longitude != nil {
		t.Error("Venue fields should stay empty for events without a venue")
	}
}

func TestGroupEventsMissingGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "key", "")
	events, err := client.GroupEvents("no-such-group")
	if err != nil {
		t.Fatalf("GroupEvents() error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestGroupEventsMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not json`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "key", "")
	events, err := client.GroupEvents("broken")
	if err != nil {
		t.Fatalf("GroupEvents() error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestGroupMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"members": 1419}]}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "key", "")
	count, err := client.GroupMembers("Code-for-Charlotte")
	if err != nil {
		t.Fatalf("GroupMembers() error: %v", err)
	}
	if count == nil || *count != 1419 {
		t.Errorf("count = %v, want 1419", count)
	}
}

func TestGroupMembersUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "key", "")
	count, err := client.GroupMembers("whoever")
	if err != nil {
		t.Fatalf("GroupMembers() error: %v", err)
	}
	if count != nil {
		t.Errorf("count = %v, want nil", count)
	}
}

func TestGroupIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.meetup.com/Code-for-Charlotte/", "Code-for-Charlotte", true},
		{"http://meetup.com/openhacknights", "openhacknights", true},
		// The identifier is the last non-empty segment, matched in full.
		{"https://www.meetup.com/cities/Code-for-Boston/", "Code-for-Boston", true},
		{"https://www.meetup.com/Group_Name/", "", false},
		{"https://www.eventbrite.com/o/code-for-boston", "", false},
		{"https://www.meetup.com/", "", false},
	}

	for _, c := range cases {
		got, ok := GroupIdentifier(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("GroupIdentifier(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
