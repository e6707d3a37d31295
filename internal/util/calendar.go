package util

import (
	"fmt"
	"time"

	"stockbt/internal/domain"
)

// ParseDate parses a "2006-01-02" date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// TradingDates returns every calendar day in [start, end] in ascending order.
// Daily frequency skips weekends; other frequencies keep every day. Holidays
// are not skipped: a holiday simply yields a snapshot without bars.
func TradingDates(start, end time.Time, freq domain.Frequency) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if freq == domain.FrequencyDaily && IsWeekend(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
