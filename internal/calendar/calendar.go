// Package calendar answers two questions the supervisor and backfill
// driver need: is the US market open right now, and is a given date a
// trading day. Both are timezone-and-DST-sensitive (America/New_York)
// and holiday-aware, per spec.md's GLOSSARY entry for "market hours".
//
// No ecosystem holiday-calendar library appears anywhere in the example
// pack, so this one piece of domain logic is built directly on the
// standard library's tzdata-backed time.LoadLocation rather than an
// adapted dependency (documented in DESIGN.md).
package calendar

import (
	"fmt"
	"time"
)

var newYork *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("calendar: failed to load America/New_York: %v", err))
	}
	newYork = loc
}

// marketOpen and marketClose are wall-clock times within the exchange's
// timezone; DST is handled by time.LoadLocation, not by this package.
const (
	openHour, openMinute   = 9, 30
	closeHour, closeMinute = 16, 0
)

// IsMarketHours reports whether t falls within a regular trading
// session: Monday-Friday 09:30-16:00 America/New_York, excluding US
// federal market holidays.
func IsMarketHours(t time.Time) bool {
	local := t.In(newYork)
	if !IsTradingDay(local) {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, newYork)
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, newYork)
	return !local.Before(open) && local.Before(close)
}

// IsTradingDay reports whether t's calendar date (interpreted in
// America/New_York) is a weekday that is not a US federal market
// holiday.
func IsTradingDay(t time.Time) bool {
	local := t.In(newYork)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(local)
}

// NextTradingDay returns the earliest trading day strictly after t's
// calendar date if after is true, otherwise the earliest trading day on
// or after t's calendar date.
func NextTradingDay(t time.Time, after bool) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, newYork)
	if after {
		d = d.AddDate(0, 0, 1)
	}
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func isHoliday(t time.Time) bool {
	m, d := t.Month(), t.Day()
	if m == time.January && d == 1 {
		return true
	}
	if m == time.July && d == 4 {
		return true
	}
	if m == time.December && d == 25 {
		return true
	}
	if m == time.January && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 3 {
		return true // Martin Luther King Jr. Day
	}
	if m == time.February && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 3 {
		return true // Presidents' Day
	}
	if m == time.May && t.Weekday() == time.Monday && isLastWeekdayOfMonth(t) {
		return true // Memorial Day
	}
	if m == time.September && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 1 {
		return true // Labor Day
	}
	if m == time.November && t.Weekday() == time.Thursday && nthWeekdayOfMonth(t) == 4 {
		return true // Thanksgiving
	}
	return false
}

// nthWeekdayOfMonth returns which occurrence (1-based) of its weekday
// t is within its month.
func nthWeekdayOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// isLastWeekdayOfMonth reports whether t is the last occurrence of its
// weekday within its month.
func isLastWeekdayOfMonth(t time.Time) bool {
	next := t.AddDate(0, 0, 7)
	return next.Month() != t.Month()
}
