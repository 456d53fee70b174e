package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration with day (d) and week (w) units.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration string")
	}
	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	numStr, unit := s[:len(s)-1], s[len(s)-1:]
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration number: %s", numStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	switch unit {
	case "d":
		return time.Duration(num) * 24 * time.Hour, nil
	case "w":
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// ParseSince resolves a run-listing cutoff. It accepts an RFC3339 timestamp
// or a lookback duration such as "90m", "24h" or "7d", taken back from now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time string")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	dur, err := ParseDuration(strings.TrimPrefix(s, "-"))
	if err != nil {
		return time.Time{}, err
	}
	if dur < 0 {
		return time.Time{}, fmt.Errorf("negative lookback: %s", s)
	}
	return now.Add(-dur), nil
}
