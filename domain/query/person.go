package query

import (
	"regexp"
	"strings"
)

// Person patterns are anchored on prepositions and capture one or two
// Capitalized words. They are tried in order; the first accepted capture
// wins.
var personPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bdiscussed with\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	regexp.MustCompile(`\bfrom\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	regexp.MustCompile(`\bwith\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	regexp.MustCompile(`\bto\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
}

// rejectedNames are pronouns and articles a capitalized capture must not
// be mistaken for.
var rejectedNames = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "you": {}, "he": {}, "she": {}, "it": {},
	"we": {}, "they": {}, "them": {}, "him": {}, "her": {}, "us": {},
	"the": {}, "a": {}, "an": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "who": {}, "what": {}, "monday": {}, "tuesday": {},
	"wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
}

// trailingStopWords are prepositions stripped from the end of a capture,
// e.g. "Ravi About" from "from Ravi about budget".
var trailingStopWords = map[string]struct{}{
	"about": {}, "regarding": {}, "on": {}, "in": {}, "at": {}, "for": {},
	"last": {}, "this": {}, "yesterday": {}, "today": {},
}

// extractPerson returns the first accepted capitalized capture following
// a person preposition, or empty.
func extractPerson(text string) string {
	for _, p := range personPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		words := strings.Fields(m[1])
		for len(words) > 0 {
			last := strings.ToLower(words[len(words)-1])
			if _, stop := trailingStopWords[last]; !stop {
				break
			}
			words = words[:len(words)-1]
		}
		if len(words) == 0 {
			continue
		}

		if _, rejected := rejectedNames[strings.ToLower(words[0])]; rejected {
			continue
		}

		return strings.Join(words, " ")
	}
	return ""
}

// sentenceStarters are capitalized words that begin questions rather than
// name entities.
var sentenceStarters = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "who": {}, "why": {}, "how": {},
	"did": {}, "do": {}, "does": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "show": {}, "find": {}, "tell": {}, "give": {}, "list": {},
	"the": {}, "a": {}, "an": {}, "i": {}, "my": {}, "can": {}, "could": {},
	"please": {},
}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// extractEntities returns capitalized tokens outside the sentence-starter
// stop list, in order of appearance, without duplicates.
func extractEntities(text string) []string {
	var entities []string
	seen := map[string]struct{}{}

	for _, word := range capitalizedWord.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if _, starter := sentenceStarters[lower]; starter {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		entities = append(entities, word)
	}
	return entities
}
