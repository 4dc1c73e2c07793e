// Package rank re-scores search hits with weighted signals and
// diversifies near-duplicate results.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/query"
)

// Weights are the linear combination coefficients for the five signals.
type Weights struct {
	vector  float64
	recency float64
	keyword float64
	source  float64
	length  float64
}

// NewWeights creates Weights.
func NewWeights(vector, recency, keyword, source, length float64) Weights {
	return Weights{vector: vector, recency: recency, keyword: keyword, source: source, length: length}
}

// DefaultWeights returns the default signal weights.
func DefaultWeights() Weights {
	return NewWeights(0.45, 0.15, 0.25, 0.10, 0.05)
}

// Vector returns the vector similarity weight.
func (w Weights) Vector() float64 { return w.vector }

// Recency returns the recency weight.
func (w Weights) Recency() float64 { return w.recency }

// Keyword returns the keyword weight.
func (w Weights) Keyword() float64 { return w.keyword }

// Source returns the source priority weight.
func (w Weights) Source() float64 { return w.source }

// Length returns the content length weight.
func (w Weights) Length() float64 { return w.length }

// DefaultSourcePriority is the default source priority table.
func DefaultSourcePriority() map[document.Source]float64 {
	return map[document.Source]float64{
		document.SourceEmail:    1.0,
		document.SourceCalendar: 0.95,
		document.SourceMusic:    0.80,
	}
}

const (
	defaultSourcePriority    = 0.5
	defaultDecayDays         = 60
	defaultDiversityOverlap  = 0.85
	defaultIntentBoost       = 1.3
	lengthWindowLow          = 200
	lengthWindowHigh         = 2000
	keywordTitleHit          = 0.4
	keywordAuthorHit         = 0.3
	keywordContentHit        = 0.2
	rawQueryBonus            = 0.5
	upstreamBoostBlendFactor = 0.5
	diversityPrefixChars     = 200
)

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights overrides the signal weights.
func WithWeights(w Weights) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithDecayDays sets the recency half-life in days.
func WithDecayDays(days int) Option {
	return func(r *Ranker) {
		if days > 0 {
			r.decayDays = float64(days)
		}
	}
}

// WithSourcePriority overrides the source priority table.
func WithSourcePriority(priority map[document.Source]float64) Option {
	return func(r *Ranker) {
		if priority != nil {
			r.sourcePriority = priority
		}
	}
}

// WithDiversityThreshold sets the Jaccard overlap above which a result is
// dropped as a near-duplicate.
func WithDiversityThreshold(threshold float64) Option {
	return func(r *Ranker) { r.diversityThreshold = threshold }
}

// WithDiversification toggles near-duplicate removal (on by default).
func WithDiversification(enabled bool) Option {
	return func(r *Ranker) { r.diversify = enabled }
}

// WithIntentBoost sets the multiplier applied to documents whose source
// matches the query intent.
func WithIntentBoost(boost float64) Option {
	return func(r *Ranker) {
		if boost > 0 {
			r.intentBoost = boost
		}
	}
}

// WithClock fixes the reference time for recency scoring (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// Ranker re-scores matches with the weighted signal combination.
type Ranker struct {
	weights            Weights
	decayDays          float64
	sourcePriority     map[document.Source]float64
	diversityThreshold float64
	diversify          bool
	intentBoost        float64
	now                func() time.Time
}

// NewRanker creates a Ranker with defaults and options applied.
func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{
		weights:            DefaultWeights(),
		decayDays:          defaultDecayDays,
		sourcePriority:     DefaultSourcePriority(),
		diversityThreshold: defaultDiversityOverlap,
		diversify:          true,
		intentBoost:        defaultIntentBoost,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Breakdown holds the per-signal sub-scores, each in [0, 1].
type Breakdown struct {
	Vector  float64
	Recency float64
	Keyword float64
	Source  float64
	Length  float64
}

// Result is a match with its final weighted score.
type Result struct {
	match       document.Match
	breakdown   Breakdown
	baseScore   float64
	finalScore  float64
	intentBoost float64
}

// Match returns the underlying search hit.
func (r Result) Match() document.Match { return r.match }

// Document returns the matched document.
func (r Result) Document() document.Document { return r.match.Document() }

// Breakdown returns the per-signal sub-scores.
func (r Result) Breakdown() Breakdown { return r.breakdown }

// Score returns the final score, intent boost included, clamped to [0,1].
func (r Result) Score() float64 { return r.finalScore }

// BaseScore returns the weighted combination before the intent boost.
func (r Result) BaseScore() float64 { return r.baseScore }

// Rank scores and orders matches for the given processed query,
// applying the intent boost and, when enabled, diversification.
func (r *Ranker) Rank(matches []document.Match, q query.Processed) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, r.score(m, q))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].finalScore > results[j].finalScore
	})

	if r.diversify {
		results = r.diversified(results)
	}
	return results
}

func (r *Ranker) score(m document.Match, q query.Processed) Result {
	doc := m.Document()

	b := Breakdown{
		Vector:  clamp01(m.Similarity()),
		Recency: r.recencyScore(doc.Timestamp()),
		Keyword: r.keywordScore(doc, q, m.KeywordBoost()),
		Source:  r.sourceScore(doc.Source()),
		Length:  lengthScore(len(doc.Content())),
	}

	base := clamp01(b.Vector*r.weights.vector +
		b.Recency*r.weights.recency +
		b.Keyword*r.weights.keyword +
		b.Source*r.weights.source +
		b.Length*r.weights.length)

	final := base
	boost := 1.0
	if q.Source() != "" && string(doc.Source()) == q.Source() {
		boost = r.intentBoost
		final = clamp01(base * boost)
	}

	return Result{match: m, breakdown: b, baseScore: base, finalScore: final, intentBoost: boost}
}

// recencyScore decays exponentially with half-life decayDays.
func (r *Ranker) recencyScore(ts time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	daysOld := r.now().Sub(ts).Hours() / 24
	if daysOld <= 0 {
		return 1
	}
	return clamp01(math.Exp(-daysOld * math.Ln2 / r.decayDays))
}

func (r *Ranker) keywordScore(doc document.Document, q query.Processed, upstreamBoost float64) float64 {
	keywords := q.Keywords()
	if len(keywords) == 0 {
		return clamp01(upstreamBoost * upstreamBoostBlendFactor)
	}

	title := strings.ToLower(doc.Title())
	author := strings.ToLower(doc.Author())
	content := strings.ToLower(doc.Content())

	var score float64
	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			score += keywordTitleHit
		}
		if strings.Contains(author, kw) {
			score += keywordAuthorHit
		}
		if strings.Contains(content, kw) {
			score += keywordContentHit
		}
	}

	if raw := strings.ToLower(strings.TrimSpace(q.Original())); raw != "" && strings.Contains(content, raw) {
		score += rawQueryBonus
	}

	score /= float64(len(keywords))
	score += upstreamBoost * upstreamBoostBlendFactor
	return clamp01(score)
}

func (r *Ranker) sourceScore(source document.Source) float64 {
	if p, ok := r.sourcePriority[source]; ok {
		return p
	}
	return defaultSourcePriority
}

// lengthScore is 1.0 inside the [200, 2000] character window, linear
// below and log-decaying above.
func lengthScore(chars int) float64 {
	switch {
	case chars <= 0:
		return 0
	case chars < lengthWindowLow:
		return float64(chars) / lengthWindowLow
	case chars <= lengthWindowHigh:
		return 1
	default:
		return clamp01(1 / (1 + math.Log10(float64(chars)/lengthWindowHigh)))
	}
}

// diversified keeps a result only when its content prefix overlaps every
// already-kept result by no more than the diversity threshold.
func (r *Ranker) diversified(results []Result) []Result {
	kept := make([]Result, 0, len(results))
	prefixes := make([]map[string]struct{}, 0, len(results))

	for _, res := range results {
		words := prefixWords(res.Document().Content())
		duplicate := false
		for _, seen := range prefixes {
			if jaccard(words, seen) > r.diversityThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, res)
		prefixes = append(prefixes, words)
	}
	return kept
}

func prefixWords(content string) map[string]struct{} {
	runes := []rune(content)
	if len(runes) > diversityPrefixChars {
		runes = runes[:diversityPrefixChars]
	}
	words := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(string(runes))) {
		words[w] = struct{}{}
	}
	return words
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
