package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainRow   = "jemnorm/row/v1"
	DomainInput = "jemnorm/input/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowHash returns the content hash of a row's canonical JSON.
// Two rows with the same fields and values always hash the same.
func RowHash(r Row) (string, error) {
	canonical, err := MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("RowHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// InputHash identifies the raw bytes of a source file.
func InputHash(data []byte) string {
	return hashWithDomain(DomainInput, data)
}

// MustRowHash is like RowHash but panics on error.
// Use only in tests or when the row is known to be serializable.
func MustRowHash(r Row) string {
	h, err := RowHash(r)
	if err != nil {
		panic(err)
	}
	return h
}
