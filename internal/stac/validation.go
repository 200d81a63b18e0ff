package stac

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidateBBox validates a bounding box
func ValidateBBox(bbox []float64) error {
	if len(bbox) != 4 && len(bbox) != 6 {
		return fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bbox))
	}

	for i, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox coordinate at position %d must be finite, got %v", i, v)
		}
	}

	// [west, south, east, north] or [west, south, min_elev, east, north, max_elev]
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if len(bbox) == 6 {
		east, north = bbox[3], bbox[4]
		if bbox[2] > bbox[5] {
			return fmt.Errorf("minimum elevation (%f) must be less than or equal to maximum elevation (%f)", bbox[2], bbox[5])
		}
	}

	// Validate longitude bounds
	if west < -180 || west > 180 {
		return fmt.Errorf("west longitude must be between -180 and 180, got %f", west)
	}
	if east < -180 || east > 180 {
		return fmt.Errorf("east longitude must be between -180 and 180, got %f", east)
	}

	// Validate latitude bounds
	if south < -90 || south > 90 {
		return fmt.Errorf("south latitude must be between -90 and 90, got %f", south)
	}
	if north < -90 || north > 90 {
		return fmt.Errorf("north latitude must be between -90 and 90, got %f", north)
	}

	// Validate spatial relationships
	if west > east {
		return fmt.Errorf("west longitude (%f) must be less than or equal to east longitude (%f)", west, east)
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than or equal to north latitude (%f)", south, north)
	}

	return nil
}

// ParseFloatList parses a comma separated list of exactly n finite numbers.
func ParseFloatList(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate at position %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("coordinate at position %d must be finite", i)
		}
		out[i] = v
	}
	return out, nil
}
