// Package dates rewrites date phrasings in free text to ISO-8601 so the
// language model sees one unambiguous format.
package dates

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var months = map[string]int{
	"januar": 1, "februar": 2, "märz": 3, "maerz": 3, "april": 4, "mai": 5, "juni": 6,
	"juli": 7, "august": 8, "september": 9, "oktober": 10, "november": 11, "dezember": 12,
	"january": 1, "february": 2, "march": 3, "may": 5, "june": 6,
	"july": 7, "october": 10, "december": 12,
}

var monthAlternation = func() string {
	names := make([]string, 0, len(months))
	for n := range months {
		names = append(names, regexp.QuoteMeta(n))
	}
	// Longest first so the alternation never stops at a shorter prefix.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}()

var (
	// 15. Januar 2023, 15 January 2023
	dayMonthYearRe = regexp.MustCompile(`(?i)\b(\d{1,2})\.?\s+(` + monthAlternation + `)\s+(\d{4})\b`)
	// January 15, 2023
	monthDayYearRe = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\s+(\d{1,2}),?\s+(\d{4})\b`)
	// Januar 2023
	monthYearRe = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\s+(\d{4})\b`)
	// 15.01.2023
	dottedRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	isoRe    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// Normalize converts recognized dates in text to YYYY-MM-DD, or YYYY-MM when
// no day is given. Already-ISO dates pass through, so Normalize is
// idempotent.
func Normalize(text string) string {
	return NormalizeWithLogger(text, slog.Default())
}

// NormalizeWithLogger is Normalize with an explicit logger for the rewrite
// trace.
func NormalizeWithLogger(text string, logger *slog.Logger) string {
	out := dayMonthYearRe.ReplaceAllStringFunc(text, func(m string) string {
		g := dayMonthYearRe.FindStringSubmatch(m)
		return isoDay(m, g[3], months[strings.ToLower(g[2])], g[1])
	})
	out = monthDayYearRe.ReplaceAllStringFunc(out, func(m string) string {
		g := monthDayYearRe.FindStringSubmatch(m)
		return isoDay(m, g[3], months[strings.ToLower(g[1])], g[2])
	})
	out = monthYearRe.ReplaceAllStringFunc(out, func(m string) string {
		g := monthYearRe.FindStringSubmatch(m)
		month := months[strings.ToLower(g[1])]
		if month == 0 {
			return m
		}
		return fmt.Sprintf("%s-%02d", g[2], month)
	})
	out = dottedRe.ReplaceAllStringFunc(out, func(m string) string {
		g := dottedRe.FindStringSubmatch(m)
		month, _ := strconv.Atoi(g[2])
		return isoDay(m, g[3], month, g[1])
	})

	if out != text && logger != nil {
		logger.Debug("normalized dates", "before", text, "after", out)
	}
	return out
}

func isoDay(orig, year string, month int, day string) string {
	d, err := strconv.Atoi(day)
	if err != nil || month < 1 || month > 12 || d < 1 || d > 31 {
		return orig
	}
	return fmt.Sprintf("%s-%02d-%02d", year, month, d)
}

// Parse converts a single date string to YYYY-MM-DD. It reports false when
// the string is not a recognized full date.
func Parse(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if g := isoRe.FindStringSubmatch(s); g != nil {
		month, _ := strconv.Atoi(g[2])
		out := isoDay("", g[1], month, g[3])
		return out, out != ""
	}
	out := Normalize(s)
	if out == s || !isoRe.MatchString(out) {
		return "", false
	}
	return out, true
}
