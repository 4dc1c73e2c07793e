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
	defaultMusicBaseURL = "https://api.spotify.com/v1"
	musicPageSize       = 50
)

// MusicConnector fetches listening history over a Spotify-compatible
// REST API.
type MusicConnector struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewMusicConnector creates a MusicConnector. An empty baseURL selects
// the public Spotify endpoint.
func NewMusicConnector(baseURL string, client *http.Client, logger *slog.Logger) *MusicConnector {
	if baseURL == "" {
		baseURL = defaultMusicBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MusicConnector{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// Source identifies this connector.
func (c *MusicConnector) Source() document.Source { return document.SourceMusic }

// Validate checks the token against the profile endpoint.
func (c *MusicConnector) Validate(ctx context.Context, token string) error {
	var profile struct {
		ID string `json:"id"`
	}
	if err := getJSON(ctx, c.client, c.baseURL+"/me", token, &profile); err != nil {
		return fmt.Errorf("validate music connection: %w", err)
	}
	return nil
}

type musicArtist struct {
	Name string `json:"name"`
}

type musicTrack struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Artists []musicArtist `json:"artists"`
	Album   struct {
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
	} `json:"album"`
	DurationMs int `json:"duration_ms"`
}

type musicPlay struct {
	Track    musicTrack `json:"track"`
	PlayedAt string     `json:"played_at"`
}

type musicPage struct {
	Items   []musicPlay `json:"items"`
	Next    string      `json:"next"`
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
}

// Fetch pages through recently played tracks and normalizes each play
// into a document. The same track played twice yields two documents
// keyed by play time.
func (c *MusicConnector) Fetch(ctx context.Context, req FetchRequest) ([]document.Document, error) {
	var docs []document.Document
	pageURL := c.firstPageURL(req)

	for pageURL != "" {
		var page musicPage
		if err := getJSON(ctx, c.client, pageURL, req.Token, &page); err != nil {
			return nil, fmt.Errorf("list plays: %w", err)
		}

		for _, play := range page.Items {
			doc, ok := c.normalize(play, req.UserID)
			if !ok {
				c.logger.Warn("dropping play with no track data", slog.String("played_at", play.PlayedAt))
				continue
			}
			docs = append(docs, doc)
		}
		req.progress(len(docs))

		pageURL = page.Next
	}
	return docs, nil
}

func (c *MusicConnector) firstPageURL(req FetchRequest) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(musicPageSize))
	if !req.Since.IsZero() {
		params.Set("after", strconv.FormatInt(req.Since.UnixMilli(), 10))
	}
	return c.baseURL + "/me/player/recently-played?" + params.Encode()
}

func (c *MusicConnector) normalize(play musicPlay, userID string) (document.Document, bool) {
	track := play.Track
	if track.ID == "" || track.Name == "" {
		return document.Document{}, false
	}

	playedAt, err := time.Parse(time.RFC3339, play.PlayedAt)
	if err != nil {
		return document.Document{}, false
	}
	playedAt = playedAt.UTC()

	artists := artistNames(track.Artists)
	artistLine := strings.Join(artists, ", ")

	content := fmt.Sprintf("Listened to %q by %s", track.Name, artistLine)
	if track.Album.Name != "" {
		content += fmt.Sprintf(" from the album %q", track.Album.Name)
	}

	author := ""
	if len(artists) > 0 {
		author = artists[0]
	}

	// Plays of the same track are distinct documents, so the native id
	// carries the play time.
	nativeID := fmt.Sprintf("%s_%d", track.ID, playedAt.Unix())

	doc := document.New(
		document.DocumentID(document.SourceMusic, nativeID),
		userID,
		document.SourceMusic,
		document.TypeTrack,
		content,
		playedAt,
	).WithTitle(track.Name).WithAuthor(author).WithMetadata(document.Metadata{
		"track_id":     track.ID,
		"artists":      artists,
		"album":        track.Album.Name,
		"release_date": track.Album.ReleaseDate,
		"duration_ms":  track.DurationMs,
	})
	return doc, true
}

func artistNames(artists []musicArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Interface check.
var _ Connector = (*MusicConnector)(nil)
