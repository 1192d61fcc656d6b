package dto

// ResolveRequest carries identity evidence for resolution or profile lookup.
// At least one field must be set.
type ResolveRequest struct {
	Identifier string `json:"identifier,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Address    string `json:"address,omitempty"`
}

// IsEmpty reports whether the request carries no evidence at all.
func (r ResolveRequest) IsEmpty() bool {
	return r.Identifier == "" && r.Email == "" && r.Name == "" && r.Address == ""
}

// ResolveResponse is the outcome of a resolution attempt.
type ResolveResponse struct {
	Found       bool   `json:"found"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

// AddLinkRequest attaches an identifier to a canonical identity.
type AddLinkRequest struct {
	IDType     string  `json:"id_type"`
	IDValue    string  `json:"id_value"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Verified   bool    `json:"verified,omitempty"`
}
