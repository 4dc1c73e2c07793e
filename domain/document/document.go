// Package document defines the unified document model the system stores
// and searches over, together with its persistence contracts.
package document

import (
	"fmt"
	"strings"
	"time"
)

// ContentMaxChars bounds stored document content. Longer content is
// truncated with TruncationMarker appended.
const ContentMaxChars = 32000

// TruncationMarker is appended to content cut at ContentMaxChars.
const TruncationMarker = "\n... [content truncated]"

// Source identifies the upstream system a document came from.
type Source string

// Known sources.
const (
	SourceEmail    Source = "email"
	SourceCalendar Source = "calendar"
	SourceMusic    Source = "music"
)

// ValidSource reports whether s is a known source.
func ValidSource(s Source) bool {
	switch s {
	case SourceEmail, SourceCalendar, SourceMusic:
		return true
	}
	return false
}

// Type identifies the kind of record a document represents.
type Type string

// Known document types.
const (
	TypeMessage Type = "message"
	TypeEvent   Type = "event"
	TypeTrack   Type = "track"
)

// Metadata is the source-specific structured blob attached to a document.
type Metadata map[string]any

// String returns the string value for key, or empty.
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns the string-slice value for key, tolerating []any blobs
// decoded from JSON.
func (m Metadata) Strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Document is one normalized record.
type Document struct {
	documentID string
	userID     string
	source     Source
	docType    Type
	content    string
	title      string
	author     string
	timestamp  time.Time
	metadata   Metadata

	embedding            []float32
	needsEmbedding       bool
	embeddingModel       string
	embeddingTokens      int
	embeddingGeneratedAt time.Time

	createdAt time.Time
	updatedAt time.Time
}

// New creates a Document. Content is truncated to ContentMaxChars and
// needs_embedding is set when content is non-empty.
func New(documentID, userID string, source Source, docType Type, content string, timestamp time.Time) Document {
	content = TruncateContent(content)
	return Document{
		documentID:     documentID,
		userID:         userID,
		source:         source,
		docType:        docType,
		content:        content,
		timestamp:      timestamp,
		needsEmbedding: content != "",
	}
}

// TruncateContent caps content at ContentMaxChars, appending the marker
// when it was cut.
func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= ContentMaxChars {
		return content
	}
	return string(runes[:ContentMaxChars]) + TruncationMarker
}

// DocumentID formats a document id from a source and its native id,
// e.g. "email_18c2f4a9".
func DocumentID(source Source, nativeID string) string {
	return fmt.Sprintf("%s_%s", source, nativeID)
}

// Validate checks the document satisfies its invariants.
func (d Document) Validate() error {
	if strings.TrimSpace(d.documentID) == "" {
		return fmt.Errorf("%w: empty document id", ErrValidation)
	}
	if strings.TrimSpace(d.userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrValidation)
	}
	if !ValidSource(d.source) {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, d.source)
	}
	if d.needsEmbedding && strings.TrimSpace(d.content) == "" {
		return fmt.Errorf("%w: document flagged for embedding with empty content", ErrValidation)
	}
	return nil
}

// WithTitle returns a copy with the title set.
func (d Document) WithTitle(title string) Document {
	d.title = title
	return d
}

// WithAuthor returns a copy with the author set.
func (d Document) WithAuthor(author string) Document {
	d.author = author
	return d
}

// WithMetadata returns a copy with the metadata blob set.
func (d Document) WithMetadata(metadata Metadata) Document {
	d.metadata = metadata
	return d
}

// WithEmbedding returns a copy carrying the given vector and provenance,
// with needs_embedding cleared.
func (d Document) WithEmbedding(vector []float32, model string, tokens int, generatedAt time.Time) Document {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	d.embedding = cp
	d.embeddingModel = model
	d.embeddingTokens = tokens
	d.embeddingGeneratedAt = generatedAt
	d.needsEmbedding = false
	return d
}

// WithTimestamps returns a copy with persistence timestamps set (used by
// the store when hydrating).
func (d Document) WithTimestamps(createdAt, updatedAt time.Time) Document {
	d.createdAt = createdAt
	d.updatedAt = updatedAt
	return d
}

// MarkStale returns a copy flagged for re-embedding.
func (d Document) MarkStale() Document {
	d.needsEmbedding = d.content != ""
	return d
}

// DocumentID returns the globally unique document id.
func (d Document) DocumentID() string { return d.documentID }

// UserID returns the owning principal.
func (d Document) UserID() string { return d.userID }

// Source returns the upstream source.
func (d Document) Source() Source { return d.source }

// Type returns the record kind.
func (d Document) Type() Type { return d.docType }

// Content returns the cleaned plain-text content.
func (d Document) Content() string { return d.content }

// Title returns the optional title.
func (d Document) Title() string { return d.title }

// Author returns the optional author.
func (d Document) Author() string { return d.author }

// Timestamp returns the instant the upstream record was created.
func (d Document) Timestamp() time.Time { return d.timestamp }

// Metadata returns the source-specific blob.
func (d Document) Metadata() Metadata { return d.metadata }

// Embedding returns a copy of the stored vector, or nil.
func (d Document) Embedding() []float32 {
	if d.embedding == nil {
		return nil
	}
	cp := make([]float32, len(d.embedding))
	copy(cp, d.embedding)
	return cp
}

// HasEmbedding reports whether a vector is present.
func (d Document) HasEmbedding() bool { return len(d.embedding) > 0 }

// NeedsEmbedding reports whether a vector must be produced.
func (d Document) NeedsEmbedding() bool { return d.needsEmbedding }

// EmbeddingModel returns the model that produced the stored vector.
func (d Document) EmbeddingModel() string { return d.embeddingModel }

// EmbeddingTokens returns the token estimate recorded at embed time.
func (d Document) EmbeddingTokens() int { return d.embeddingTokens }

// EmbeddingGeneratedAt returns when the stored vector was produced.
func (d Document) EmbeddingGeneratedAt() time.Time { return d.embeddingGeneratedAt }

// CreatedAt returns the persistence creation time.
func (d Document) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the persistence update time.
func (d Document) UpdatedAt() time.Time { return d.updatedAt }
