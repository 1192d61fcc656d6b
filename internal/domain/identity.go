package domain

import "time"

// IdentifierType enumerates the kinds of external identifiers a canonical
// identity can be linked to. Plaintext types carry the raw identifier value;
// *_hash types carry a salted SHA-256 digest of normalized PII.
type IdentifierType string

const (
	IdentifierEcommerceID IdentifierType = "ecommerce_id"
	IdentifierTicketingID IdentifierType = "ticketing_id"
	IdentifierEmail       IdentifierType = "email"
	IdentifierEmailHash   IdentifierType = "email_hash"
	IdentifierNameHash    IdentifierType = "name_hash"
	IdentifierAddressHash IdentifierType = "address_hash"
)

// IsHashed reports whether the type stores a PII digest rather than a raw value.
func (t IdentifierType) IsHashed() bool {
	switch t {
	case IdentifierEmailHash, IdentifierNameHash, IdentifierAddressHash:
		return true
	}
	return false
}

// Confidence scores assigned to PII hash links. Email is the strongest
// PII-only signal; address the weakest.
const (
	ConfidenceExact       = 1.0
	ConfidenceEmailHash   = 1.0
	ConfidenceNameHash    = 0.9
	ConfidenceAddressHash = 0.7
)

// CanonicalIdentity is the single unified record representing one real
// customer across systems. Identities are never hard-deleted; a merged
// identity is deactivated with MergedInto pointing at its survivor.
type CanonicalIdentity struct {
	ID           string
	PrimaryEmail string
	PrimaryName  string
	Active       bool
	MergedInto   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdentityLink is an edge from one typed identifier to exactly one canonical
// identity at any instant. Links are never deleted: a merge either re-points
// a link to the survivor or retires it as a superseded duplicate.
type IdentityLink struct {
	IDType      IdentifierType
	IDValue     string
	CanonicalID string
	Source      string
	Confidence  float64
	Verified    bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
