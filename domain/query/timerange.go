package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Week boundaries follow ISO convention: weeks run Monday 00:00 through
// the following Monday. This keeps time-range extraction deterministic
// across locales.

var (
	reLastN    = regexp.MustCompile(`\blast\s+(\d+)\s+(day|week|month)s?\b`)
	reAgo      = regexp.MustCompile(`\b(\d+)\s+(day|week)s?\s+ago\b`)
	reInMonth  = regexp.MustCompile(`\bin\s+(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	reOnDate   = regexp.MustCompile(`\bon\s+(\d{4})-(\d{2})-(\d{2})\b`)
	fixedOrder = []string{
		"today", "yesterday",
		"last week", "this week",
		"last month", "this month",
		"last year", "this year",
	}
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// extractTimeRange recognizes fixed labels and parametric forms, fixed
// labels first so "last week" is not swallowed by the parametric rules.
func extractTimeRange(text string, now time.Time) TimeRange {
	lower := strings.ToLower(text)

	for _, label := range fixedOrder {
		if strings.Contains(lower, label) {
			return fixedRange(label, now)
		}
	}

	if m := reLastN.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return lastNRange(n, m[2], now, m[0])
	}

	if m := reAgo.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return agoRange(n, m[2], now, m[0])
	}

	if m := reInMonth.FindStringSubmatch(lower); m != nil {
		month := monthsByName[m[1]]
		start := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
		return NewTimeRange(start, start.AddDate(0, 1, 0), m[0])
	}

	if m := reOnDate.FindStringSubmatch(lower); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		start := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location())
		return NewTimeRange(start, start.AddDate(0, 0, 1), m[0])
	}

	return TimeRange{}
}

func fixedRange(label string, now time.Time) TimeRange {
	day := startOfDay(now)
	week := startOfISOWeek(now)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	year := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	switch label {
	case "today":
		return NewTimeRange(day, day.AddDate(0, 0, 1), label)
	case "yesterday":
		return NewTimeRange(day.AddDate(0, 0, -1), day, label)
	case "this week":
		return NewTimeRange(week, week.AddDate(0, 0, 7), label)
	case "last week":
		return NewTimeRange(week.AddDate(0, 0, -7), week, label)
	case "this month":
		return NewTimeRange(month, month.AddDate(0, 1, 0), label)
	case "last month":
		return NewTimeRange(month.AddDate(0, -1, 0), month, label)
	case "this year":
		return NewTimeRange(year, year.AddDate(1, 0, 0), label)
	case "last year":
		return NewTimeRange(year.AddDate(-1, 0, 0), year, label)
	}
	return TimeRange{}
}

func lastNRange(n int, unit string, now time.Time, label string) TimeRange {
	switch unit {
	case "day":
		return NewTimeRange(startOfDay(now).AddDate(0, 0, -n), now, label)
	case "week":
		return NewTimeRange(startOfDay(now).AddDate(0, 0, -7*n), now, label)
	case "month":
		return NewTimeRange(startOfDay(now).AddDate(0, -n, 0), now, label)
	}
	return TimeRange{}
}

func agoRange(n int, unit string, now time.Time, label string) TimeRange {
	switch unit {
	case "day":
		start := startOfDay(now).AddDate(0, 0, -n)
		return NewTimeRange(start, start.AddDate(0, 0, 1), label)
	case "week":
		start := startOfISOWeek(now).AddDate(0, 0, -7*n)
		return NewTimeRange(start, start.AddDate(0, 0, 7), label)
	}
	return TimeRange{}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfISOWeek returns the Monday 00:00 of t's week.
func startOfISOWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
