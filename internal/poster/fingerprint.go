package poster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the cache and dedup key for a request: a SHA-256 over
// the canonical JSON form of the normalized parameters. Field order is fixed
// by the struct below (alphabetical), so semantically identical requests
// always hash identically.
func Fingerprint(p Params) string {
	n := p.Normalized()
	canonical := struct {
		City     string `json:"city"`
		Country  string `json:"country"`
		Distance int    `json:"distance"`
		Theme    string `json:"theme"`
	}{
		City:     n.City,
		Country:  n.Country,
		Distance: n.Distance,
		Theme:    n.Theme,
	}

	// Marshal of a struct without custom marshalers cannot fail.
	payload, _ := json.Marshal(canonical)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
