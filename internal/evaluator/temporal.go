package evaluator

import (
	"strings"
	"time"

	"github.com/ehr/eligibility/internal/criterion"
)

// temporalPass applies a leaf's temporal_constraint as a client-side filter
// on a resource's effective/performed/occurrence date, the way a search
// layer applies predicates client-side when the server can't push them down.
//
// unknown is true when the constraint cannot be evaluated at all (missing or
// unparseable date); callers degrade the leaf to met=false with
// reason="temporal_unknown" rather than silently treating it as passing.
func temporalPass(tc *criterion.TemporalConstraint, dateStr string, now time.Time) (pass bool, unknown bool) {
	if tc == nil {
		return true, false
	}
	if dateStr == "" {
		return false, true
	}
	t, err := parseFHIRDate(dateStr)
	if err != nil {
		return false, true
	}

	elapsed := now.Sub(t)
	window := durationFor(tc.Value, tc.Unit)
	switch tc.Direction {
	case criterion.TemporalWithin:
		return elapsed >= 0 && elapsed <= window, false
	case criterion.TemporalAtLeastAgo:
		return elapsed >= window, false
	default:
		return false, true
	}
}

func durationFor(value float64, unit string) time.Duration {
	const day = 24 * time.Hour
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "week", "weeks":
		return time.Duration(value * float64(7*day))
	case "month", "months":
		return time.Duration(value * float64(30*day))
	case "year", "years":
		return time.Duration(value * float64(365*day))
	default: // "day", "days", and anything unrecognized
		return time.Duration(value * float64(day))
	}
}

// parseFHIRDate parses the handful of date/dateTime shapes FHIR R4 allows
// for effectiveDateTime/performedDateTime/occurrenceDateTime/birthDate.
func parseFHIRDate(s string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
