package connector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/recallhq/recall/domain/document"
)

const (
	defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	calendarPageSize       = 100
)

// CalendarConnector fetches events over a Google Calendar compatible
// REST API.
type CalendarConnector struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewCalendarConnector creates a CalendarConnector. An empty baseURL
// selects the public Calendar endpoint.
func NewCalendarConnector(baseURL string, client *http.Client, logger *slog.Logger) *CalendarConnector {
	if baseURL == "" {
		baseURL = defaultCalendarBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarConnector{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// Source identifies this connector.
func (c *CalendarConnector) Source() document.Source { return document.SourceCalendar }

// Validate checks the token against the calendar metadata endpoint.
func (c *CalendarConnector) Validate(ctx context.Context, token string) error {
	var cal struct {
		ID string `json:"id"`
	}
	if err := getJSON(ctx, c.client, c.baseURL+"/calendars/primary", token, &cal); err != nil {
		return fmt.Errorf("validate calendar connection: %w", err)
	}
	return nil
}

type calendarTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

func (t calendarTime) parse() (time.Time, bool) {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.UTC(), true
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

type calendarAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (a calendarAttendee) label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}

type calendarEvent struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Summary     string             `json:"summary"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	Start       calendarTime       `json:"start"`
	End         calendarTime       `json:"end"`
	Organizer   calendarAttendee   `json:"organizer"`
	Attendees   []calendarAttendee `json:"attendees"`
}

type calendarPage struct {
	Items         []calendarEvent `json:"items"`
	NextPageToken string          `json:"nextPageToken"`
}

// Fetch pages through the primary calendar's events and normalizes each
// into a document. Cancelled events and events with no usable text are
// dropped.
func (c *CalendarConnector) Fetch(ctx context.Context, req FetchRequest) ([]document.Document, error) {
	var docs []document.Document
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(calendarPageSize))
		params.Set("singleEvents", "true")
		params.Set("orderBy", "startTime")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		if !req.Since.IsZero() {
			params.Set("timeMin", req.Since.UTC().Format(time.RFC3339))
		}

		var page calendarPage
		eventsURL := c.baseURL + "/calendars/primary/events?" + params.Encode()
		if err := getJSON(ctx, c.client, eventsURL, req.Token, &page); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}

		for _, event := range page.Items {
			if event.Status == "cancelled" {
				continue
			}
			doc, ok := c.normalize(event, req.UserID)
			if !ok {
				c.logger.Warn("dropping event with no usable text", slog.String("event_id", event.ID))
				continue
			}
			docs = append(docs, doc)
		}
		req.progress(len(docs))

		if page.NextPageToken == "" {
			return docs, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *CalendarConnector) normalize(event calendarEvent, userID string) (document.Document, bool) {
	var lines []string
	if event.Summary != "" {
		lines = append(lines, event.Summary)
	}
	if event.Description != "" {
		lines = append(lines, event.Description)
	}
	if event.Location != "" {
		lines = append(lines, "Location: "+event.Location)
	}
	if names := attendeeNames(event.Attendees); len(names) > 0 {
		lines = append(lines, "Attendees: "+strings.Join(names, ", "))
	}

	content := strings.TrimSpace(strings.Join(lines, "\n"))
	if content == "" {
		return document.Document{}, false
	}

	timestamp, ok := event.Start.parse()
	if !ok {
		timestamp = time.Now().UTC()
	}

	metadata := document.Metadata{
		"location":  event.Location,
		"organizer": event.Organizer.label(),
		"attendees": attendeeNames(event.Attendees),
		"status":    event.Status,
	}
	if end, ok := event.End.parse(); ok {
		metadata["end_time"] = end.Format(time.RFC3339)
	}

	doc := document.New(
		document.DocumentID(document.SourceCalendar, event.ID),
		userID,
		document.SourceCalendar,
		document.TypeEvent,
		content,
		timestamp,
	).WithTitle(event.Summary).WithAuthor(event.Organizer.label()).WithMetadata(metadata)
	return doc, true
}

func attendeeNames(attendees []calendarAttendee) []string {
	names := make([]string, 0, len(attendees))
	for _, a := range attendees {
		if label := a.label(); label != "" {
			names = append(names, label)
		}
	}
	return names
}

// Interface check.
var _ Connector = (*CalendarConnector)(nil)
