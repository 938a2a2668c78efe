package models

import (
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes the canonical JSON form of f. encoding/json sorts map
// keys, so equal field sets always produce equal fingerprints.
func Fingerprint(f Fields) ([32]byte, error) {
	if f == nil {
		f = Fields{}
	}
	b, err := json.Marshal(f.Clone())
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}

// SameFields reports whether a and b hold the same values once normalized
// through JSON (so int64(5) and float64(5) compare equal). Sets that cannot
// be encoded never compare equal.
func SameFields(a, b Fields) bool {
	fa, err := Fingerprint(a)
	if err != nil {
		return false
	}
	fb, err := Fingerprint(b)
	if err != nil {
		return false
	}
	return fa == fb
}
