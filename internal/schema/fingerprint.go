package schema

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the canonical JSON form of the schema with BLAKE3.
// Entry order is significant.
func (s *Schema) Fingerprint() ([32]byte, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

func (s *Schema) FingerprintHex() (string, error) {
	sum, err := s.Fingerprint()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}
