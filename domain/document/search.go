package document

import "time"

// HybridKeywordBoost is added to similarity when any query keyword
// substring-matches the document in hybrid search.
const HybridKeywordBoost = 0.1

// Filters narrow a search to a subset of documents. All filters compose
// as parameterized SQL predicates.
type Filters struct {
	userID    string
	source    Source
	docType   Type
	author    string
	timeStart time.Time
	timeEnd   time.Time
}

// FiltersOption is a functional option for Filters.
type FiltersOption func(*Filters)

// FilterUser scopes the search to a principal.
func FilterUser(userID string) FiltersOption {
	return func(f *Filters) { f.userID = userID }
}

// FilterSource restricts results to one source.
func FilterSource(source Source) FiltersOption {
	return func(f *Filters) { f.source = source }
}

// FilterType restricts results to one document type.
func FilterType(docType Type) FiltersOption {
	return func(f *Filters) { f.docType = docType }
}

// FilterAuthor restricts results to documents by an author
// (case-insensitive substring).
func FilterAuthor(author string) FiltersOption {
	return func(f *Filters) { f.author = author }
}

// FilterTimeRange restricts results to a time window. Zero bounds are
// open ends.
func FilterTimeRange(start, end time.Time) FiltersOption {
	return func(f *Filters) {
		f.timeStart = start
		f.timeEnd = end
	}
}

// NewFilters builds Filters from options.
func NewFilters(opts ...FiltersOption) Filters {
	var f Filters
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// UserID returns the principal filter.
func (f Filters) UserID() string { return f.userID }

// Source returns the source filter, empty when unset.
func (f Filters) Source() Source { return f.source }

// Type returns the type filter, empty when unset.
func (f Filters) Type() Type { return f.docType }

// Author returns the author filter, empty when unset.
func (f Filters) Author() string { return f.author }

// TimeStart returns the window start, zero when open.
func (f Filters) TimeStart() time.Time { return f.timeStart }

// TimeEnd returns the window end, zero when open.
func (f Filters) TimeEnd() time.Time { return f.timeEnd }

// SearchOptions parameterize a vector search against the store.
type SearchOptions struct {
	limit         int
	minSimilarity float64
	filters       Filters
}

// NewSearchOptions creates SearchOptions. Limit is clamped to 1..100 and
// minSimilarity to 0..1.
func NewSearchOptions(limit int, minSimilarity float64, filters Filters) SearchOptions {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if minSimilarity < 0 {
		minSimilarity = 0
	}
	if minSimilarity > 1 {
		minSimilarity = 1
	}
	return SearchOptions{limit: limit, minSimilarity: minSimilarity, filters: filters}
}

// Limit returns the clamped result cap.
func (o SearchOptions) Limit() int { return o.limit }

// MinSimilarity returns the clamped similarity cut-off.
func (o SearchOptions) MinSimilarity() float64 { return o.minSimilarity }

// Filters returns the search filters.
func (o SearchOptions) Filters() Filters { return o.filters }

// WithMinSimilarity returns a copy with a different cut-off.
func (o SearchOptions) WithMinSimilarity(min float64) SearchOptions {
	return NewSearchOptions(o.limit, min, o.filters)
}

// Match is one search hit: a document with its similarity and, for
// hybrid search, the lexical boost that contributed to its ordering.
type Match struct {
	document     Document
	similarity   float64
	keywordBoost float64
}

// NewMatch creates a Match.
func NewMatch(doc Document, similarity, keywordBoost float64) Match {
	return Match{document: doc, similarity: similarity, keywordBoost: keywordBoost}
}

// Document returns the matched document.
func (m Match) Document() Document { return m.document }

// Similarity returns the cosine similarity (1 - distance).
func (m Match) Similarity() float64 { return m.similarity }

// KeywordBoost returns the lexical boost applied by hybrid search, zero
// for plain vector search.
func (m Match) KeywordBoost() float64 { return m.keywordBoost }

// CombinedScore returns similarity plus keyword boost, the hybrid
// ordering key.
func (m Match) CombinedScore() float64 { return m.similarity + m.keywordBoost }
