package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuery     = "composer/query/v1"
	DomainArguments = "composer/arguments/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a structural identity for a query definition.
//
// Two definitions that encode to the same JSON (after NFC normalisation,
// so visually identical names compare equal) share a fingerprint. Sessions
// use it as the "has the query changed" check instead of comparing
// rendered text.
func Fingerprint(q *Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("Fingerprint: nil query")
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, norm.NFC.Bytes(data)), nil
}

// ArgumentsFingerprint computes a stable identity for parameter overrides.
// encoding/json sorts map keys, so equal maps hash equally.
func ArgumentsFingerprint(args map[string]string) (string, error) {
	if args == nil {
		args = map[string]string{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("ArgumentsFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainArguments, norm.NFC.Bytes(data)), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(q *Query) string {
	fp, err := Fingerprint(q)
	if err != nil {
		panic(err)
	}
	return fp
}
