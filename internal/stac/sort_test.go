package stac

import "testing"

func TestParseSortby(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedField string
		expectedDir   SortDirection
		expectError   bool
	}{
		{
			name:          "plus prefix",
			input:         "+num",
			expectedField: "num",
			expectedDir:   SortAsc,
		},
		{
			name:          "minus prefix",
			input:         "-num",
			expectedField: "num",
			expectedDir:   SortDesc,
		},
		{
			name:          "bare key defaults to ascending",
			input:         "num",
			expectedField: "num",
			expectedDir:   SortAsc,
		},
		{
			name:          "lastused",
			input:         "-lastused",
			expectedField: SortLastUsed,
			expectedDir:   SortDesc,
		},
		{
			name:          "surrounding whitespace",
			input:         "  -name ",
			expectedField: "name",
			expectedDir:   SortDesc,
		},
		{
			name:        "sign only",
			input:       "-",
			expectError: true,
		},
		{
			name:        "empty",
			input:       "",
			expectError: true,
		},
		{
			name:        "multiple keys",
			input:       "+num,-name",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := ParseSortby(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("ParseSortby(%q) expected error, got %+v", tt.input, item)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSortby(%q) unexpected error: %v", tt.input, err)
			}
			if item.Field != tt.expectedField {
				t.Errorf("field = %q, want %q", item.Field, tt.expectedField)
			}
			if item.Direction != tt.expectedDir {
				t.Errorf("direction = %q, want %q", item.Direction, tt.expectedDir)
			}
		})
	}
}

func TestSortbyItem_String(t *testing.T) {
	if got := (SortbyItem{Field: "num", Direction: SortDesc}).String(); got != "-num" {
		t.Errorf("String() = %q, want -num", got)
	}
	if got := (SortbyItem{Field: "num", Direction: SortAsc}).String(); got != "+num" {
		t.Errorf("String() = %q, want +num", got)
	}
}
