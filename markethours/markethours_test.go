package markethours

import (
	"testing"
	"time"
)

func et(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Eastern())
}

func TestIsOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before the bell", et(2024, time.January, 3, 9, 29), false},
		{"opening bell", et(2024, time.January, 3, 9, 30), true},
		{"midday", et(2024, time.January, 3, 12, 0), true},
		{"closing bell", et(2024, time.January, 3, 16, 0), true},
		{"after close", et(2024, time.January, 3, 16, 1), false},
		{"saturday", et(2024, time.January, 6, 12, 0), false},
		{"sunday", et(2024, time.January, 7, 12, 0), false},
		{"utc input converts", time.Date(2024, time.January, 3, 14, 30, 0, 0, time.UTC), true},
		{"utc just before open", time.Date(2024, time.January, 3, 14, 29, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOpen(tt.t); got != tt.want {
				t.Errorf("IsOpen(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestResolveExpiration(t *testing.T) {
	tests := []struct {
		name   string
		target string
		now    time.Time
		want   string
	}{
		{"explicit date passes through", "2024-06-21", et(2024, time.January, 3, 10, 0), "2024-06-21"},
		{"today during session", "today", et(2024, time.January, 3, 10, 0), "2024-01-03"},
		{"today after expiry rolls forward", "today", et(2024, time.January, 3, 16, 30), "2024-01-04"},
		{"friday evening rolls to monday", "today", et(2024, time.January, 5, 17, 0), "2024-01-08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveExpiration(tt.target, tt.now); got != tt.want {
				t.Errorf("ResolveExpiration(%q, %v) = %q, want %q", tt.target, tt.now, got, tt.want)
			}
		})
	}
}

func TestNextWeekday(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"wednesday to thursday", et(2024, time.January, 3, 12, 0), et(2024, time.January, 4, 12, 0)},
		{"friday to monday", et(2024, time.January, 5, 12, 0), et(2024, time.January, 8, 12, 0)},
		{"saturday to monday", et(2024, time.January, 6, 12, 0), et(2024, time.January, 8, 12, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextWeekday(tt.from); !got.Equal(tt.want) {
				t.Errorf("NextWeekday(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestExpiryInstant(t *testing.T) {
	got, err := ExpiryInstant("2024-01-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, time.January, 5, 21, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ExpiryInstant = %v, want %v", got, want)
	}

	if _, err := ExpiryInstant("01/05/2024"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestDaysToExpiry(t *testing.T) {
	tests := []struct {
		name       string
		expiration string
		now        time.Time
		want       int
	}{
		{"same day", "2024-01-03", et(2024, time.January, 3, 15, 59), 0},
		{"two days out", "2024-01-05", et(2024, time.January, 3, 10, 0), 2},
		{"late evening still same count", "2024-01-05", et(2024, time.January, 3, 23, 30), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DaysToExpiry(tt.expiration, tt.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DaysToExpiry(%q, %v) = %d, want %d", tt.expiration, tt.now, got, tt.want)
			}
		})
	}

	if _, err := DaysToExpiry("bogus", time.Now()); err == nil {
		t.Error("expected error for malformed date")
	}
}
