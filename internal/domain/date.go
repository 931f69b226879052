package domain

import (
	"fmt"
	"time"
)

// DateLayout is the day-granular wire format used for every signal and score date.
const DateLayout = "2006-01-02"

// DateRange is an inclusive [From, To] span of Date strings.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Contains reports whether date falls inside the range. Dates compare
// lexicographically because the layout is zero-padded year-first.
func (r DateRange) Contains(date string) bool {
	return date >= r.From && date <= r.To
}

// Empty reports whether the range selects no days at all.
func (r DateRange) Empty() bool {
	return r.From > r.To
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidArgument, s)
	}
	return t, nil
}

// FormatDate truncates t to its UTC calendar day.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ValidDate reports whether s is a well-formed Date string.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// addDays shifts a UTC midnight time by n calendar days.
func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// LookbackRange returns the inclusive window of windowWeeks*7 days ending on date.
func LookbackRange(date time.Time, windowWeeks int) DateRange {
	return DateRange{
		From: FormatDate(addDays(date, -windowWeeks*7)),
		To:   FormatDate(date),
	}
}
