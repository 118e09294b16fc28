package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Fingerprint returns a hex SHA-256 of the scenario's RFC 8785 canonical
// JSON. Two scenarios with equal fingerprints serialize identically
// regardless of map ordering.
func Fingerprint(s Scenario) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal scenario %d: %w", s.ID, err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize scenario %d: %w", s.ID, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
