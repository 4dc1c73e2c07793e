package query

import (
	"regexp"
	"sort"
	"strings"
)

const defaultMaxKeywords = 10

// stopWords are common words that carry no retrieval signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "has": {}, "have": {},
	"her": {}, "his": {}, "was": {}, "were": {}, "one": {}, "our": {},
	"out": {}, "with": {}, "from": {}, "they": {}, "them": {}, "that": {},
	"this": {}, "these": {}, "those": {}, "about": {}, "into": {},
	"over": {}, "after": {}, "before": {}, "between": {}, "last": {},
	"next": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"there": {}, "their": {}, "then": {}, "than": {}, "some": {},
	"any": {}, "did": {}, "does": {}, "been": {}, "being": {}, "get": {},
	"got": {}, "just": {}, "also": {}, "very": {}, "much": {}, "most": {},
	"more": {}, "please": {}, "show": {}, "find": {}, "tell": {},
	"give": {}, "list": {}, "week": {}, "month": {}, "year": {},
	"today": {}, "yesterday": {},
}

// interrogatives are question words dropped from keyword extraction.
var interrogatives = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "who": {}, "whom": {},
	"whose": {}, "why": {}, "how": {}, "which": {},
}

var wordToken = regexp.MustCompile(`[a-z0-9']+`)

// extractKeywords lower-cases and tokenizes the text, removes stop words,
// interrogatives and words shorter than three characters, ranks the rest
// by frequency (ties by first appearance) and returns up to max.
func extractKeywords(text string, max int) []string {
	tokens := wordToken.FindAllString(strings.ToLower(text), -1)

	counts := map[string]int{}
	firstSeen := map[string]int{}
	var order []string

	for i, tok := range tokens {
		tok = strings.Trim(tok, "'")
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, q := interrogatives[tok]; q {
			continue
		}
		if counts[tok] == 0 {
			firstSeen[tok] = i
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	if len(order) > max {
		order = order[:max]
	}
	return order
}
