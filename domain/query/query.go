// Package query parses natural-language questions into a structured form
// the retrieval pipeline can act on: intent, keywords, entities, person,
// time range and search filters.
package query

import (
	"time"
)

// Intent classifies what the user is asking for.
type Intent string

// Defined intents, in detection order. The first matching pattern wins.
const (
	IntentSearchEmail     Intent = "search_email"
	IntentSearchCalendar  Intent = "search_calendar"
	IntentSearchMusic     Intent = "search_music"
	IntentPatternAnalysis Intent = "pattern_analysis"
	IntentRecommendation  Intent = "recommendation"
	IntentGeneralSearch   Intent = "general_search"
)

// Type groups intents into pipeline behaviours.
type Type string

// Type values.
const (
	TypeMemoryRecall   Type = "memory_recall"
	TypePattern        Type = "pattern"
	TypeRecommendation Type = "recommendation"
	TypeGeneral        Type = "general"
)

// TimeRange is a resolved time window with its originating label.
type TimeRange struct {
	start time.Time
	end   time.Time
	label string
}

// NewTimeRange creates a TimeRange.
func NewTimeRange(start, end time.Time, label string) TimeRange {
	return TimeRange{start: start, end: end, label: label}
}

// Start returns the window start.
func (r TimeRange) Start() time.Time { return r.start }

// End returns the window end.
func (r TimeRange) End() time.Time { return r.end }

// Label returns the recognized expression, e.g. "last week".
func (r TimeRange) Label() string { return r.label }

// IsZero reports whether no time range was extracted.
func (r TimeRange) IsZero() bool { return r.start.IsZero() && r.end.IsZero() }

// Filters is the search filter set assembled from a processed query.
type Filters struct {
	Source          string
	TimeStart       time.Time
	TimeEnd         time.Time
	Author          string
	PotentialAuthor string
}

// Processed is the structured form of an input query. It is owned by the
// request that produced it and never shared.
type Processed struct {
	original  string
	intent    Intent
	source    string
	keywords  []string
	entities  []string
	person    string
	timeRange TimeRange
	filters   Filters
	queryType Type
}

// Original returns the raw input.
func (p Processed) Original() string { return p.original }

// Intent returns the detected intent.
func (p Processed) Intent() Intent { return p.intent }

// Source returns the source hint ("email", "calendar", "music"), empty
// when the intent implies none.
func (p Processed) Source() string { return p.source }

// Keywords returns the ranked keywords.
func (p Processed) Keywords() []string { return p.keywords }

// Entities returns capitalized entities in order of appearance.
func (p Processed) Entities() []string { return p.entities }

// Person returns the extracted person name, empty when none.
func (p Processed) Person() string { return p.person }

// TimeRange returns the extracted window, zero when none.
func (p Processed) TimeRange() TimeRange { return p.timeRange }

// Filters returns the assembled search filters.
func (p Processed) Filters() Filters { return p.filters }

// QueryType returns the pipeline behaviour group.
func (p Processed) QueryType() Type { return p.queryType }

// Process parses a query relative to the current local time.
func Process(text string) Processed {
	return ProcessAt(text, time.Now())
}

// ProcessAt parses a query relative to a reference time. Time expressions
// resolve against the reference's location; week boundaries follow ISO
// convention (Monday through Sunday).
func ProcessAt(text string, now time.Time) Processed {
	intent := detectIntent(text)
	source := intentSource(intent)
	timeRange := extractTimeRange(text, now)
	person := extractPerson(text)
	entities := extractEntities(text)
	keywords := extractKeywords(text, defaultMaxKeywords)

	filters := Filters{Source: source}
	if !timeRange.IsZero() {
		filters.TimeStart = timeRange.Start()
		filters.TimeEnd = timeRange.End()
	}
	if person != "" {
		filters.Author = person
	} else if len(entities) > 0 {
		filters.PotentialAuthor = entities[0]
	}

	return Processed{
		original:  text,
		intent:    intent,
		source:    source,
		keywords:  keywords,
		entities:  entities,
		person:    person,
		timeRange: timeRange,
		filters:   filters,
		queryType: queryType(intent),
	}
}

func intentSource(intent Intent) string {
	switch intent {
	case IntentSearchEmail:
		return "email"
	case IntentSearchCalendar:
		return "calendar"
	case IntentSearchMusic:
		return "music"
	}
	return ""
}

func queryType(intent Intent) Type {
	switch intent {
	case IntentSearchEmail, IntentSearchCalendar, IntentSearchMusic:
		return TypeMemoryRecall
	case IntentPatternAnalysis:
		return TypePattern
	case IntentRecommendation:
		return TypeRecommendation
	}
	return TypeGeneral
}
