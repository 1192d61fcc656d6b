// Package pii canonicalizes and hashes personally-identifying information so
// customers can be matched across systems without storing raw PII.
package pii

import (
	"strings"
	"unicode"
)

// nameSuffixes are generational and professional suffix tokens stripped from
// names before matching.
var nameSuffixes = map[string]struct{}{
	"jr":  {},
	"sr":  {},
	"ii":  {},
	"iii": {},
	"iv":  {},
	"phd": {},
	"md":  {},
	"esq": {},
}

// addressAbbreviations expands common street abbreviations token-by-token so
// "6004 Twin Valley Cv." and "6004 Twin Valley Cove" normalize identically.
var addressAbbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"blvd": "boulevard",
	"rd":   "road",
	"dr":   "drive",
	"ct":   "court",
	"cv":   "cove",
	"ln":   "lane",
	"pl":   "place",
}

// addressUnitMarkers are apartment/unit tokens dropped from addresses.
var addressUnitMarkers = map[string]struct{}{
	"apt":  {},
	"unit": {},
	"ste":  {},
}

// Normalizer converts raw email/name/address strings into a single
// comparable form. All methods are pure, total, and idempotent: empty or
// nil-ish input yields the empty string, never an error.
type Normalizer struct {
	dotInsensitive map[string]struct{}
}

// NewNormalizer builds a normalizer. dotInsensitiveDomains lists email
// domains whose local part ignores dots (the gmail.com style).
func NewNormalizer(dotInsensitiveDomains []string) *Normalizer {
	set := make(map[string]struct{}, len(dotInsensitiveDomains))
	for _, d := range dotInsensitiveDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return &Normalizer{dotInsensitive: set}
}

// NormalizeEmail lower-cases and trims an email address, stripping dots from
// the local part for dot-insensitive domains.
func (n *Normalizer) NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}

	local, domain := email[:at], email[at+1:]
	if _, ok := n.dotInsensitive[domain]; ok {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + domain
}

// NormalizeName lower-cases a personal name, drops suffix tokens, and strips
// every non-alphanumeric character: "Molly Stevens, Jr." -> "mollystevens".
func (n *Normalizer) NormalizeName(name string) string {
	tokens := splitAlphanumeric(strings.ToLower(name))
	var b strings.Builder
	for _, tok := range tokens {
		if _, ok := nameSuffixes[tok]; ok {
			continue
		}
		b.WriteString(tok)
	}
	// A name consisting solely of suffix tokens keeps them; dropping
	// everything would make normalization non-idempotent.
	if b.Len() == 0 {
		return strings.Join(tokens, "")
	}
	return b.String()
}

// NormalizeAddress lower-cases a physical address, expands street
// abbreviations, drops unit markers, and strips every non-alphanumeric
// character.
func (n *Normalizer) NormalizeAddress(address string) string {
	tokens := splitAlphanumeric(strings.ToLower(address))
	// Abbreviation expansion and marker removal operate on word boundaries,
	// which a previously normalized (fully joined) address no longer has.
	// Passing a single token through untouched keeps normalization idempotent.
	if len(tokens) <= 1 {
		return strings.Join(tokens, "")
	}
	var b strings.Builder
	for _, tok := range tokens {
		if _, ok := addressUnitMarkers[tok]; ok {
			continue
		}
		if full, ok := addressAbbreviations[tok]; ok {
			tok = full
		}
		b.WriteString(tok)
	}
	return b.String()
}

// splitAlphanumeric breaks a string into runs of letters/digits, discarding
// punctuation and whitespace.
func splitAlphanumeric(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
