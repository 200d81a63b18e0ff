package stac

import (
	"math"
	"testing"
)

func TestValidateBBox(t *testing.T) {
	tests := []struct {
		name    string
		bbox    []float64
		wantErr bool
	}{
		{"valid 2D", []float64{-10, -10, 10, 10}, false},
		{"valid 3D", []float64{-10, -10, 0, 10, 10, 100}, false},
		{"whole world", []float64{-180, -90, 180, 90}, false},
		{"degenerate point", []float64{5, 5, 5, 5}, false},
		{"wrong length", []float64{1, 2, 3}, true},
		{"west greater than east", []float64{10, -10, -10, 10}, true},
		{"south greater than north", []float64{-10, 10, 10, -10}, true},
		{"longitude out of range", []float64{-190, -10, 10, 10}, true},
		{"latitude out of range", []float64{-10, -95, 10, 10}, true},
		{"NaN", []float64{math.NaN(), 0, 1, 1}, true},
		{"infinity", []float64{0, 0, math.Inf(1), 1}, true},
		{"elevation inverted", []float64{-10, -10, 100, 10, 10, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBBox(tt.bbox)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBBox(%v) error = %v, wantErr %v", tt.bbox, err, tt.wantErr)
			}
		})
	}
}

func TestParseFloatList(t *testing.T) {
	got, err := ParseFloatList("1.5, -2,3,4", 4)
	if err != nil {
		t.Fatalf("ParseFloatList() error: %v", err)
	}
	want := []float64{1.5, -2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"1,2,3", "1,2,x,4", "1,2,NaN,4", "1,2,Inf,4"} {
		if _, err := ParseFloatList(bad, 4); err == nil {
			t.Errorf("ParseFloatList(%q) expected error", bad)
		}
	}
}
