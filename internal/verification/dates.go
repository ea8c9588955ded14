package verification

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseableDate is returned when no supported date layout matches.
var ErrUnparseableDate = errors.New("unparseable date of birth")

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var (
	numericDateRe = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{4}|\d{2})`)
	monthDayRe    = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})`)
	dayMonthRe    = regexp.MustCompile(`(\d{1,2})\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)
	isoDateRe     = regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`)
)

// NormalizeDate extracts a birth date from free text and canonicalizes it to
// YYYY-MM-DD. Accepted shapes: MM/DD/YYYY, MM/DD/YY (two-digit years above 30
// pivot to the 1900s), "Month DD, YYYY", "DD Month YYYY", and YYYY-MM-DD.
// The year must land between 1900 and last year.
func NormalizeDate(text string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(text))

	if m := numericDateRe.FindStringSubmatch(lower); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year > 30 {
				year += 1900
			} else {
				year += 2000
			}
		}
		if canonical, ok := canonicalDate(year, month, day); ok {
			return canonical, nil
		}
	}
	if m := monthDayRe.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if canonical, ok := canonicalDate(year, monthNumbers[m[1]], day); ok {
			return canonical, nil
		}
	}
	if m := dayMonthRe.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if canonical, ok := canonicalDate(year, monthNumbers[m[2]], day); ok {
			return canonical, nil
		}
	}
	if m := isoDateRe.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if canonical, ok := canonicalDate(year, month, day); ok {
			return canonical, nil
		}
	}

	return "", ErrUnparseableDate
}

// canonicalDate validates the components against the calendar and the
// plausible birth-year range.
func canonicalDate(year, month, day int) (string, bool) {
	if year < 1900 || year > time.Now().Year()-1 {
		return "", false
	}
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if parsed.Year() != year || parsed.Month() != time.Month(month) || parsed.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
