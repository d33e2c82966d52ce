// Package markethours provides US equity session helpers in Eastern Time.
package markethours

import (
	"fmt"
	"time"
)

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("markethours: cannot load America/New_York: %v", err))
	}
	return loc
}

// Eastern returns the US market time zone.
func Eastern() *time.Location {
	return eastern
}

// IsOpen reports whether the regular US equity session is open at t
// (Mon-Fri 09:30-16:00 ET, bounds inclusive).
func IsOpen(t time.Time) bool {
	et := t.In(eastern)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60
}

// ResolveExpiration turns a target expiration setting into a concrete
// YYYY-MM-DD date. "today" resolves to the current ET date while the
// session can still expire (before 16:00 ET), otherwise the next weekday.
// Anything else passes through unchanged.
func ResolveExpiration(target string, now time.Time) string {
	if target != "today" {
		return target
	}

	et := now.In(eastern)
	if et.Hour() >= 16 {
		et = NextWeekday(et)
	}
	return et.Format("2006-01-02")
}

// NextWeekday returns the next Mon-Fri date after t.
func NextWeekday(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ExpiryInstant returns the moment an option series expires: 16:00 ET on
// the expiration date.
func ExpiryInstant(expiration string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", expiration, eastern)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, eastern), nil
}

// DaysToExpiry returns whole calendar days from now's ET date to the
// expiration date. Same-day expiries return 0.
func DaysToExpiry(expiration string, now time.Time) (int, error) {
	day, err := time.ParseInLocation("2006-01-02", expiration, eastern)
	if err != nil {
		return 0, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}
	et := now.In(eastern)
	today := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, eastern)
	return int(day.Sub(today).Hours() / 24), nil
}
