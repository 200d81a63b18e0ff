package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// SeedSearch is a mosaic registered at startup from a JSON file in the
// searches directory.
type SeedSearch struct {
	// File is the path the seed was loaded from.
	File     string          `json:"-"`
	Search   translate.Query `json:"search"`
	Metadata mosaic.Metadata `json:"metadata"`
}

// LoadSearches loads seed searches from JSON files in the specified directory.
// Files are returned in name order so registration order is reproducible.
// Only files with a .json extension are processed.
func LoadSearches(searchesDir string) ([]*SeedSearch, error) {
	info, err := os.Stat(searchesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access searches directory %q: %w", searchesDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("searches path %q is not a directory", searchesDir)
	}

	entries, err := os.ReadDir(searchesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read searches directory %q: %w", searchesDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no search files found in %q", searchesDir)
	}

	seeds := make([]*SeedSearch, 0, len(names))
	for _, name := range names {
		filePath := filepath.Join(searchesDir, name)
		seed, err := LoadSearchFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load search from %q: %w", filePath, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// LoadSearchFile loads a single seed search from a JSON file.
func LoadSearchFile(filePath string) (*SeedSearch, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	seed := SeedSearch{Metadata: mosaic.DefaultMetadata()}
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := seed.Metadata.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	seed.File = filePath
	return &seed, nil
}
