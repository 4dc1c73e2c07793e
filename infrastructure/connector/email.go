package connector

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recallhq/recall/domain/document"
)

const (
	defaultMailBaseURL = "https://gmail.googleapis.com/gmail/v1"

	// mailPageSize is the id-list page size; mailSubBatchSize bounds how
	// many full messages are hydrated per wave, with mailFetchConcurrency
	// workers and mailSubBatchPause between waves.
	mailPageSize         = 100
	mailSubBatchSize     = 50
	mailFetchConcurrency = 5
	mailSubBatchPause    = 100 * time.Millisecond
)

// EmailConnector fetches mail over a Gmail-compatible REST API.
type EmailConnector struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewEmailConnector creates an EmailConnector. An empty baseURL selects
// the public Gmail endpoint.
func NewEmailConnector(baseURL string, client *http.Client, logger *slog.Logger) *EmailConnector {
	if baseURL == "" {
		baseURL = defaultMailBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailConnector{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// Source identifies this connector.
func (c *EmailConnector) Source() document.Source { return document.SourceEmail }

// Validate checks the token against the profile endpoint.
func (c *EmailConnector) Validate(ctx context.Context, token string) error {
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := getJSON(ctx, c.client, c.baseURL+"/users/me/profile", token, &profile); err != nil {
		return fmt.Errorf("validate mail connection: %w", err)
	}
	return nil
}

type mailIDPage struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type mailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type mailPart struct {
	MimeType string       `json:"mimeType"`
	Headers  []mailHeader `json:"headers"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []mailPart `json:"parts"`
}

type mailMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	Snippet      string   `json:"snippet"`
	InternalDate string   `json:"internalDate"`
	Payload      mailPart `json:"payload"`
}

// Fetch lists message ids page by page, then hydrates full messages in
// bounded-concurrency waves and normalizes each into a document.
func (c *EmailConnector) Fetch(ctx context.Context, req FetchRequest) ([]document.Document, error) {
	ids, err := c.listIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	var docs []document.Document
	for start := 0; start < len(ids); start += mailSubBatchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(mailSubBatchPause):
			}
		}

		end := min(start+mailSubBatchSize, len(ids))
		wave, err := c.fetchWave(ctx, req, ids[start:end])
		if err != nil {
			return nil, err
		}
		docs = append(docs, wave...)
		req.progress(len(docs))
	}
	return docs, nil
}

func (c *EmailConnector) listIDs(ctx context.Context, req FetchRequest) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(mailPageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		if !req.Since.IsZero() {
			params.Set("q", "after:"+strconv.FormatInt(req.Since.Unix(), 10))
		}

		var page mailIDPage
		listURL := c.baseURL + "/users/me/messages?" + params.Encode()
		if err := getJSON(ctx, c.client, listURL, req.Token, &page); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *EmailConnector) fetchWave(ctx context.Context, req FetchRequest, ids []string) ([]document.Document, error) {
	results := make([]document.Document, len(ids))
	fetched := make([]bool, len(ids))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(mailFetchConcurrency)

	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			var msg mailMessage
			msgURL := c.baseURL + "/users/me/messages/" + url.PathEscape(id) + "?format=full"
			if err := getJSON(groupCtx, c.client, msgURL, req.Token, &msg); err != nil {
				return fmt.Errorf("fetch message %s: %w", id, err)
			}

			doc, ok := c.normalize(msg, req.UserID)
			if !ok {
				c.logger.Warn("dropping message with empty body", slog.String("message_id", id))
				return nil
			}
			results[i] = doc
			fetched[i] = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(ids))
	for i := range results {
		if fetched[i] {
			docs = append(docs, results[i])
		}
	}
	return docs, nil
}

// normalize converts one raw message into a document. Messages whose
// body normalizes to empty text are dropped.
func (c *EmailConnector) normalize(msg mailMessage, userID string) (document.Document, bool) {
	body := extractBody(msg.Payload)
	body = stripSignature(body)
	body = strings.TrimSpace(body)
	if body == "" {
		return document.Document{}, false
	}

	headers := headerMap(msg.Payload)
	subject := headers["subject"]
	from := headers["from"]

	timestamp := time.Now().UTC()
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil && ms > 0 {
		timestamp = time.UnixMilli(ms).UTC()
	}

	doc := document.New(
		document.DocumentID(document.SourceEmail, msg.ID),
		userID,
		document.SourceEmail,
		document.TypeMessage,
		body,
		timestamp,
	).WithTitle(subject).WithAuthor(from).WithMetadata(document.Metadata{
		"from":      from,
		"to":        headers["to"],
		"subject":   subject,
		"thread_id": msg.ThreadID,
		"labels":    msg.LabelIDs,
		"snippet":   msg.Snippet,
	})
	return doc, true
}

// headerMap indexes the root part's headers by lowercased name. Headers
// repeat on sub-parts but the root set is authoritative.
func headerMap(payload mailPart) map[string]string {
	headers := map[string]string{}
	for _, h := range payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// extractBody walks the MIME tree preferring text/plain, falling back
// to stripped text/html.
func extractBody(part mailPart) string {
	if plain := findPart(part, "text/plain"); plain != "" {
		return plain
	}
	if htmlBody := findPart(part, "text/html"); htmlBody != "" {
		return stripHTML(htmlBody)
	}
	return ""
}

func findPart(part mailPart, mimeType string) string {
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody decodes the URL-safe base64 body encoding, tolerating
// missing padding.
func decodeBody(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}

// stripSignature cuts the conventional "-- " signature delimiter and
// everything after it.
func stripSignature(body string) string {
	if idx := strings.Index(body, "\n-- \n"); idx >= 0 {
		return body[:idx]
	}
	return body
}

// Interface check.
var _ Connector = (*EmailConnector)(nil)
