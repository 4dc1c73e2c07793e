package query

import (
	"regexp"
	"strings"
)

// intentRule binds an intent to the patterns that detect it. Rules are
// evaluated in order and the first match wins.
type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

var intentRules = []intentRule{
	{
		intent: IntentSearchEmail,
		patterns: compile(
			`\bemails?\b`,
			`\bmail\b`,
			`\binbox\b`,
			`\bmessages?\s+from\b`,
			`\b(sent|received|wrote)\b.*\b(message|mail)\b`,
		),
	},
	{
		intent: IntentSearchCalendar,
		patterns: compile(
			`\bcalendar\b`,
			`\bmeetings?\b`,
			`\bevents?\b`,
			`\bappointments?\b`,
			`\bschedule[d]?\b`,
		),
	},
	{
		intent: IntentSearchMusic,
		patterns: compile(
			`\bmusic\b`,
			`\bsongs?\b`,
			`\btracks?\b`,
			`\bplaylists?\b`,
			`\b(listen(ed|ing)?|played?)\b.*\b(to|song|track|album|artist)\b`,
			`\balbums?\b`,
			`\bartists?\b`,
		),
	},
	{
		intent: IntentPatternAnalysis,
		patterns: compile(
			`\bhow\s+(often|many\s+times|frequently)\b`,
			`\bpatterns?\b`,
			`\btrends?\b`,
			`\busually\b`,
			`\bhabits?\b`,
			`\bmost\s+(common|frequent)\b`,
		),
	},
	{
		intent: IntentRecommendation,
		patterns: compile(
			`\brecommend(ation)?s?\b`,
			`\bsuggest(ion)?s?\b`,
			`\bwhat\s+should\s+i\b`,
			`\bsimilar\s+to\b`,
		),
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// detectIntent applies the ordered rule set; unmatched queries fall back
// to general search.
func detectIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(lower) {
				return rule.intent
			}
		}
	}
	return IntentGeneralSearch
}
