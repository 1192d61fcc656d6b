package pii

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces salted one-way digests of normalized PII. The salt is a
// single process-wide secret: the same raw PII always hashes to the same
// value regardless of formatting, and raw PII is never retained.
type Hasher struct {
	salt string
	norm *Normalizer
}

// NewHasher builds a hasher around the given salt and normalizer.
func NewHasher(salt string, normalizer *Normalizer) *Hasher {
	return &Hasher{salt: salt, norm: normalizer}
}

// Hash digests salt || value with SHA-256 and returns 64 hex characters.
// An empty normalized value yields the empty string so that missing PII can
// never produce a usable match key.
func (h *Hasher) Hash(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(h.salt + normalized))
	return hex.EncodeToString(sum[:])
}

// Normalizer exposes the normalizer backing this hasher, for callers that
// need the normalized plaintext as well as the digest.
func (h *Hasher) Normalizer() *Normalizer {
	return h.norm
}

// HashEmail normalizes and hashes an email address.
func (h *Hasher) HashEmail(email string) string {
	return h.Hash(h.norm.NormalizeEmail(email))
}

// HashName normalizes and hashes a personal name.
func (h *Hasher) HashName(name string) string {
	return h.Hash(h.norm.NormalizeName(name))
}

// HashAddress normalizes and hashes a physical address.
func (h *Hasher) HashAddress(address string) string {
	return h.Hash(h.norm.NormalizeAddress(address))
}
