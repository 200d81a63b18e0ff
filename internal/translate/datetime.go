package translate

import (
	"fmt"
	"strings"
	"time"
)

// openBound marks an unbounded end of a CQL2 interval.
const openBound = ".."

// ParseDateTimeInterval parses a STAC datetime parameter which can be:
// - A single RFC3339 datetime: "2023-06-15T14:00:00Z"
// - An open-ended interval: "../2023-06-15T14:00:00Z" or "2023-06-15T14:00:00Z/.."
// - A closed interval: "2023-06-15T14:00:00Z/2023-06-16T14:00:00Z"
// Returns start and end times. Either may be nil for open-ended intervals.
func ParseDateTimeInterval(datetime string) (*time.Time, *time.Time, error) {
	datetime = strings.TrimSpace(datetime)
	if datetime == "" {
		return nil, nil, nil
	}

	if !strings.Contains(datetime, "/") {
		t, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDateTime, err)
		}
		return &t, &t, nil
	}

	parts := strings.Split(datetime, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: interval must be 'start/end'", ErrInvalidDateTime)
	}

	var start, end *time.Time
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == openBound {
			continue
		}
		t, err := time.Parse(time.RFC3339, part)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDateTime, err)
		}
		if i == 0 {
			start = &t
		} else {
			end = &t
		}
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateTime,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// DateTimeTerm converts a datetime parameter into a CQL2 temporal predicate
// on the item datetime. A fully open interval yields nil.
func DateTimeTerm(datetime string) (map[string]any, error) {
	if strings.TrimSpace(datetime) == "" {
		return nil, nil
	}
	start, end, err := ParseDateTimeInterval(datetime)
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil {
		return nil, nil
	}

	property := map[string]any{"property": "datetime"}
	if !strings.Contains(datetime, "/") {
		return map[string]any{
			"op":   "t_intersects",
			"args": []any{property, map[string]any{"timestamp": formatTime(start)}},
		}, nil
	}
	return map[string]any{
		"op":   "t_intersects",
		"args": []any{property, map[string]any{"interval": []any{formatTime(start), formatTime(end)}}},
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return openBound
	}
	return t.UTC().Format(time.RFC3339Nano)
}
