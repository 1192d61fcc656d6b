package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministicAcrossFormatting(t *testing.T) {
	h := NewHasher("test-salt", newTestNormalizer())

	assert.Equal(t, h.HashEmail("Molly@Foo.com"), h.HashEmail("molly@foo.com"))
	assert.Equal(t, h.HashEmail("Molly.Stevens@gmail.com"), h.HashEmail("mollystevens@gmail.com"))
	assert.Equal(t, h.HashName("Molly Stevens, Jr."), h.HashName("molly stevens"))
	assert.Equal(t, h.HashAddress("6004 Twin Valley Cv."), h.HashAddress("6004 Twin Valley Cove"))
}

func TestHashShape(t *testing.T) {
	h := NewHasher("test-salt", newTestNormalizer())

	digest := h.HashEmail("molly@foo.com")
	require.Len(t, digest, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", digest)
}

func TestHashSaltChangesDigest(t *testing.T) {
	n := newTestNormalizer()
	a := NewHasher("salt-a", n)
	b := NewHasher("salt-b", n)

	assert.NotEqual(t, a.HashEmail("molly@foo.com"), b.HashEmail("molly@foo.com"))
}

func TestHashEmptyInput(t *testing.T) {
	h := NewHasher("test-salt", newTestNormalizer())

	assert.Equal(t, "", h.HashEmail(""))
	assert.Equal(t, "", h.HashName("  "))
	assert.Equal(t, "", h.HashAddress(""))
	assert.Equal(t, "", h.Hash(""))
}
