package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/rank"
)

const contextSentinel = "--- End of retrieved context ---"

// Citation points an answer back at a retrieved document.
type Citation struct {
	Index      int       `json:"index"`
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title,omitempty"`
	Source     string    `json:"source"`
	Author     string    `json:"author,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Similarity float64   `json:"similarity"`
}

// BuiltContext is the packed context block handed to the prompt,
// together with the citations for the documents it includes.
type BuiltContext struct {
	Text      string
	Citations []Citation
	Included  int
	Tokens    int
}

// ContextBuilder packs ranked documents into a numbered context block
// under a token budget.
type ContextBuilder struct {
	maxTokens int
}

// NewContextBuilder creates a ContextBuilder with the given token
// budget.
func NewContextBuilder(maxTokens int) *ContextBuilder {
	return &ContextBuilder{maxTokens: maxTokens}
}

// Build greedily packs results in rank order. A document whose block
// would blow the budget is skipped, not truncated, and packing
// continues with the next one.
func (b *ContextBuilder) Build(results []rank.Result) BuiltContext {
	var blocks []string
	var citations []Citation
	used := 0
	bySource := map[document.Source]int{}

	for _, res := range results {
		doc := res.Document()
		block := formatBlock(len(citations)+1, doc, res.Match().Similarity())
		tokens := document.EstimateTokens(block)
		if used+tokens > b.maxTokens {
			continue
		}

		blocks = append(blocks, block)
		used += tokens
		bySource[doc.Source()]++
		citations = append(citations, Citation{
			Index:      len(citations) + 1,
			DocumentID: doc.DocumentID(),
			Title:      doc.Title(),
			Source:     string(doc.Source()),
			Author:     doc.Author(),
			Timestamp:  doc.Timestamp(),
			Similarity: res.Match().Similarity(),
		})
	}

	if len(blocks) == 0 {
		return BuiltContext{}
	}

	text := strings.Join(blocks, "\n\n") + "\n\n" + footer(bySource) + "\n" + contextSentinel
	return BuiltContext{
		Text:      text,
		Citations: citations,
		Included:  len(citations),
		Tokens:    used,
	}
}

// formatBlock renders one document with a numbered header and
// source-specific metadata lines.
func formatBlock(index int, doc document.Document, similarity float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Document %d] (%s, similarity %.2f)\n", index, doc.Source(), similarity)

	if doc.Title() != "" {
		fmt.Fprintf(&b, "Title: %s\n", doc.Title())
	}

	switch doc.Source() {
	case document.SourceEmail:
		if doc.Author() != "" {
			fmt.Fprintf(&b, "From: %s\n", doc.Author())
		}
		if to := doc.Metadata().String("to"); to != "" {
			fmt.Fprintf(&b, "To: %s\n", to)
		}
	case document.SourceCalendar:
		if doc.Author() != "" {
			fmt.Fprintf(&b, "Organizer: %s\n", doc.Author())
		}
		if loc := doc.Metadata().String("location"); loc != "" {
			fmt.Fprintf(&b, "Location: %s\n", loc)
		}
	case document.SourceMusic:
		if doc.Author() != "" {
			fmt.Fprintf(&b, "Artist: %s\n", doc.Author())
		}
		if album := doc.Metadata().String("album"); album != "" {
			fmt.Fprintf(&b, "Album: %s\n", album)
		}
	}

	if !doc.Timestamp().IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", doc.Timestamp().Format("2006-01-02 15:04"))
	}
	b.WriteString(doc.Content())
	return b.String()
}

// footer summarizes how many documents of each source were included.
func footer(bySource map[document.Source]int) string {
	var parts []string
	for _, source := range []document.Source{document.SourceEmail, document.SourceCalendar, document.SourceMusic} {
		if n := bySource[source]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sourceNoun(source, n)))
		}
	}
	return "Sources: " + strings.Join(parts, ", ")
}

func sourceNoun(source document.Source, n int) string {
	var noun string
	switch source {
	case document.SourceEmail:
		noun = "email"
	case document.SourceCalendar:
		noun = "calendar event"
	case document.SourceMusic:
		noun = "listening record"
	default:
		noun = "document"
	}
	if n != 1 {
		noun += "s"
	}
	return noun
}
