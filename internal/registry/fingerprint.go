// Package registry persists mosaic search definitions under deterministic
// fingerprint ids and lists them by metadata.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

// IDLength is the length of every registry id.
const IDLength = 32

// CanonicalJSON returns the serialization of def that is hashed into its id.
// Struct fields keep declaration order and map keys are sorted, so equal
// normalized definitions always encode to the same bytes.
func CanonicalJSON(def mosaic.SearchDefinition) ([]byte, error) {
	if def.FilterLang == "" {
		def.FilterLang = mosaic.FilterLangCQL2JSON
	}
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode search definition: %w", err)
	}
	return data, nil
}

// Fingerprint returns the registry id of def: the first 128 bits of the
// SHA-256 digest of its canonical encoding, hex encoded. Metadata is not
// part of the id.
func Fingerprint(def mosaic.SearchDefinition) (string, error) {
	data, err := CanonicalJSON(def)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:IDLength/2]), nil
}
