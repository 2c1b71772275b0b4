package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRecord = "shelf/record/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentID computes a content-addressed identifier for a record.
// The _id field is excluded, so the same field values always produce the
// same identifier regardless of whether one was already assigned.
func ContentID(rec Object) (ID, error) {
	body := make(Object, len(rec))
	for k, v := range rec {
		if k == IDField {
			continue
		}
		body[k] = v
	}

	canonical, err := MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("ContentID: failed to marshal: %w", err)
	}

	return ID(hashWithDomain(DomainRecord, canonical)), nil
}
