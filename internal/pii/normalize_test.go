package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer([]string{"gmail.com", "googlemail.com"})
}

func TestNormalizeEmail(t *testing.T) {
	n := newTestNormalizer()

	assert.Equal(t, "molly@example.com", n.NormalizeEmail("  Molly@Example.COM "))
	assert.Equal(t, "mollystevens@gmail.com", n.NormalizeEmail("Molly.Stevens@gmail.com"))
	assert.Equal(t, "molly.stevens@example.com", n.NormalizeEmail("molly.stevens@example.com"))
	assert.Equal(t, "", n.NormalizeEmail(""))
	assert.Equal(t, "", n.NormalizeEmail("   "))
	assert.Equal(t, "not-an-email", n.NormalizeEmail("Not-An-Email"))
}

func TestNormalizeName(t *testing.T) {
	n := newTestNormalizer()

	assert.Equal(t, "mollystevens", n.NormalizeName("Molly Stevens, Jr."))
	assert.Equal(t, "mollystevens", n.NormalizeName("molly stevens"))
	assert.Equal(t, "mollystevens", n.NormalizeName("Molly  Stevens III"))
	assert.Equal(t, "janedoe", n.NormalizeName("Dr. Jane Doe, PhD"))
	assert.Equal(t, "", n.NormalizeName(""))
}

func TestNormalizeAddress(t *testing.T) {
	n := newTestNormalizer()

	assert.Equal(t, "6004twinvalleycove", n.NormalizeAddress("6004 Twin Valley Cv."))
	assert.Equal(t, "6004twinvalleycove", n.NormalizeAddress("6004 Twin Valley Cove"))
	assert.Equal(t, "123mainstreet4", n.NormalizeAddress("123 Main St, Apt 4"))
	assert.Equal(t, "123mainstreet4", n.NormalizeAddress("123 Main Street #4"))
	assert.Equal(t, "", n.NormalizeAddress(""))
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer()

	emails := []string{"Molly.Stevens@gmail.com", "JANE@EXAMPLE.COM", "weird"}
	for _, raw := range emails {
		once := n.NormalizeEmail(raw)
		assert.Equal(t, once, n.NormalizeEmail(once), "email %q", raw)
	}

	names := []string{"Molly Stevens, Jr.", "Jane Doe", "M.D.", "Jr. Sr."}
	for _, raw := range names {
		once := n.NormalizeName(raw)
		assert.Equal(t, once, n.NormalizeName(once), "name %q", raw)
	}

	addresses := []string{"6004 Twin Valley Cv.", "123 Main St Apt 4", "C V", "1 St St"}
	for _, raw := range addresses {
		once := n.NormalizeAddress(raw)
		assert.Equal(t, once, n.NormalizeAddress(once), "address %q", raw)
	}
}
