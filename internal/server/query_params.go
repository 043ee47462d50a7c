package server

import (
	"strconv"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// parseLedgerWindow reads the start_date/end_date pair of a ledger listing.
// Dates without a time cover the whole UTC day. An inverted window is
// rejected here so the repository never sees it.
func parseLedgerWindow(start, end string) (*time.Time, *time.Time, error) {
	from, ok := parseLedgerDate(start, false)
	if !ok {
		return nil, nil, newValidationError("start_date", "invalid_start_date", "invalid start_date")
	}
	to, ok := parseLedgerDate(end, true)
	if !ok {
		return nil, nil, newValidationError("end_date", "invalid_end_date", "invalid end_date")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, newValidationError("end_date", "invalid_date_range", "end_date is before start_date")
	}
	return from, to, nil
}

func parseLedgerDate(value string, endOfDay bool) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, true
	}
	day, err := time.Parse(dateOnlyLayout, value)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, true
}

// parseAttemptLimit returns 0 when limit is absent so the service applies
// its default.
func parseAttemptLimit(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	return limit, nil
}
