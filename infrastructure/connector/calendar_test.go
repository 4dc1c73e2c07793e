package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
)

type fakeCalendarServer struct {
	server      *httptest.Server
	events      []calendarEvent
	lastTimeMin string
}

func newFakeCalendarServer(t *testing.T) *fakeCalendarServer {
	t.Helper()
	f := &fakeCalendarServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "primary"})
	})
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		f.lastTimeMin = r.URL.Query().Get("timeMin")
		_ = json.NewEncoder(w).Encode(calendarPage{Items: f.events})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCalendarServer) connector() *CalendarConnector {
	return NewCalendarConnector(f.server.URL, f.server.Client(), nil)
}

func TestCalendarConnector_Fetch_NormalizesEvents(t *testing.T) {
	fake := newFakeCalendarServer(t)
	fake.events = []calendarEvent{{
		ID:          "ev1",
		Status:      "confirmed",
		Summary:     "Quarterly planning",
		Description: "Review the roadmap",
		Location:    "Room 4",
		Start:       calendarTime{DateTime: "2026-03-12T10:00:00Z"},
		End:         calendarTime{DateTime: "2026-03-12T11:00:00Z"},
		Organizer:   calendarAttendee{Email: "sarah@example.com", DisplayName: "Sarah Johnson"},
		Attendees: []calendarAttendee{
			{DisplayName: "Sarah Johnson"},
			{Email: "marcus@example.com"},
		},
	}}

	docs, err := fake.connector().Fetch(context.Background(), FetchRequest{Token: "tok", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	require.Equal(t, "calendar_ev1", doc.DocumentID())
	require.Equal(t, document.SourceCalendar, doc.Source())
	require.Equal(t, document.TypeEvent, doc.Type())
	require.Equal(t, "Quarterly planning", doc.Title())
	require.Equal(t, "Sarah Johnson", doc.Author())
	require.Equal(t, time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC), doc.Timestamp())

	require.Contains(t, doc.Content(), "Quarterly planning")
	require.Contains(t, doc.Content(), "Review the roadmap")
	require.Contains(t, doc.Content(), "Location: Room 4")
	require.Contains(t, doc.Content(), "Attendees: Sarah Johnson, marcus@example.com")

	require.Equal(t, "Room 4", doc.Metadata().String("location"))
	require.Equal(t, "2026-03-12T11:00:00Z", doc.Metadata().String("end_time"))
	require.Equal(t, []string{"Sarah Johnson", "marcus@example.com"}, doc.Metadata().Strings("attendees"))
}

func TestCalendarConnector_Fetch_SkipsCancelledEvents(t *testing.T) {
	fake := newFakeCalendarServer(t)
	fake.events = []calendarEvent{
		{ID: "ev1", Status: "cancelled", Summary: "Cancelled standup", Start: calendarTime{DateTime: "2026-03-12T10:00:00Z"}},
		{ID: "ev2", Status: "confirmed", Summary: "Kept standup", Start: calendarTime{DateTime: "2026-03-12T10:15:00Z"}},
	}

	docs, err := fake.connector().Fetch(context.Background(), FetchRequest{Token: "tok", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "calendar_ev2", docs[0].DocumentID())
}

func TestCalendarConnector_Fetch_DropsEventsWithoutText(t *testing.T) {
	fake := newFakeCalendarServer(t)
	fake.events = []calendarEvent{{ID: "ev1", Status: "confirmed"}}

	docs, err := fake.connector().Fetch(context.Background(), FetchRequest{Token: "tok", UserID: "u1"})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestCalendarConnector_Fetch_AllDayEventDate(t *testing.T) {
	fake := newFakeCalendarServer(t)
	fake.events = []calendarEvent{{
		ID:      "ev1",
		Status:  "confirmed",
		Summary: "Company offsite",
		Start:   calendarTime{Date: "2026-04-02"},
	}}

	docs, err := fake.connector().Fetch(context.Background(), FetchRequest{Token: "tok", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), docs[0].Timestamp())
}

func TestCalendarConnector_Fetch_IncrementalTimeMin(t *testing.T) {
	fake := newFakeCalendarServer(t)

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := fake.connector().Fetch(context.Background(), FetchRequest{Token: "tok", UserID: "u1", Since: since})
	require.NoError(t, err)
	require.Equal(t, "2026-02-01T00:00:00Z", fake.lastTimeMin)
}

func TestCalendarConnector_Validate(t *testing.T) {
	fake := newFakeCalendarServer(t)
	require.NoError(t, fake.connector().Validate(context.Background(), "tok"))
}
