package helper

import (
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04:05"

// NormalizeClock accepts HH:MM or HH:MM:SS and returns HH:MM:SS.
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	if _, err := time.Parse(clockLayout, s); err != nil {
		return "", fmt.Errorf("invalid time %q: %w", s, err)
	}
	return s, nil
}

// IsOpen reports whether now falls inside the daily window [openAt, closeAt)
// in the given timezone. An empty window means always open. A window whose
// close time is before its open time runs past midnight.
func IsOpen(openAt, closeAt, timezone string, now time.Time) (bool, error) {
	if openAt == "" || closeAt == "" {
		return true, nil
	}

	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return false, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	now = now.In(loc)

	openAt, err := NormalizeClock(openAt)
	if err != nil {
		return false, err
	}
	closeAt, err = NormalizeClock(closeAt)
	if err != nil {
		return false, err
	}

	openClock, _ := time.ParseInLocation(clockLayout, openAt, loc)
	closeClock, _ := time.ParseInLocation(clockLayout, closeAt, loc)

	openTime := time.Date(
		now.Year(), now.Month(), now.Day(),
		openClock.Hour(), openClock.Minute(), openClock.Second(),
		0, loc,
	)
	closeTime := time.Date(
		now.Year(), now.Month(), now.Day(),
		closeClock.Hour(), closeClock.Minute(), closeClock.Second(),
		0, loc,
	)

	// Overnight window, e.g. open 22:00 close 02:00
	if closeTime.Before(openTime) {
		closeTime = closeTime.Add(24 * time.Hour)
		if now.Before(openTime) {
			// still inside yesterday's window
			openTime = openTime.Add(-24 * time.Hour)
			closeTime = closeTime.Add(-24 * time.Hour)
		}
	}

	return !now.Before(openTime) && now.Before(closeTime), nil
}
