// Package dateparse turns the date words accepted on the command line into
// calendar dates (YYYY-MM-DD), the form the store's date indexes use.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse resolves input against the current time.
//
// Accepted forms:
//   - calendar dates: "2024-03-01"
//   - keywords: "today", "yesterday", "tomorrow", "month-start", "last-month"
//   - offsets: "+7d", "-2w", "+1m" (days, weeks, months)
//   - weekday names: "friday" (next occurrence, for due dates)
func Parse(input string) (string, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom is Parse with an explicit reference time.
func ParseFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return "", fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.DateOnly, input); err == nil {
		return format(t), nil
	}

	year, month, _ := now.Date()
	switch input {
	case "today":
		return format(now), nil
	case "yesterday":
		return format(now.AddDate(0, 0, -1)), nil
	case "tomorrow":
		return format(now.AddDate(0, 0, 1)), nil
	case "month-start":
		return format(time.Date(year, month, 1, 0, 0, 0, 0, now.Location())), nil
	case "last-month":
		return format(time.Date(year, month-1, 1, 0, 0, 0, 0, now.Location())), nil
	}

	if sign := input[0]; (sign == '+' || sign == '-') && len(input) >= 3 {
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			if sign == '-' {
				n = -n
			}
			switch unit := input[len(input)-1]; unit {
			case 'd':
				return format(now.AddDate(0, 0, n)), nil
			case 'w':
				return format(now.AddDate(0, 0, 7*n)), nil
			case 'm':
				return format(now.AddDate(0, n, 0)), nil
			default:
				return "", fmt.Errorf("unknown unit %q in %q (use d, w or m)", string(unit), input)
			}
		}
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) != input {
			continue
		}
		ahead := (int(d) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return format(now.AddDate(0, 0, ahead)), nil
	}

	return "", fmt.Errorf("invalid date %q (use YYYY-MM-DD, today, yesterday, +7d, -1m or a weekday)", input)
}

func format(t time.Time) string {
	return t.Format(time.DateOnly)
}
