package identifiers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatesOrderAndUniqueness(t *testing.T) {
	list := Candidates()
	require.GreaterOrEqual(t, len(list), 30)

	seen := make(map[string]bool)
	for i, c := range list {
		assert.Equal(t, i, c.Priority)
		assert.False(t, seen[c.Hex()], "duplicate aid %s", c.Hex())
		seen[c.Hex()] = true

		assert.GreaterOrEqual(t, len(c.AID), 5, c.Hex())
		assert.LessOrEqual(t, len(c.AID), 16, c.Hex())
		assert.NotEqual(t, BrandUnknown, c.Brand, c.Hex())
	}

	// callers get a copy
	list[0].Brand = BrandUnknown
	assert.Equal(t, BrandMastercard, Candidates()[0].Brand)
}

func TestLookup(t *testing.T) {
	c, ok := Lookup(mustHex("A0000000031010"))
	require.True(t, ok)
	assert.Equal(t, BrandVisa, c.Brand)

	c, ok = Lookup(mustHex("A0000000049999"))
	require.True(t, ok)
	assert.Equal(t, BrandMastercard, c.Brand)

	_, ok = Lookup(mustHex("F0000000010203"))
	assert.False(t, ok)
}

func TestDirectoryHasNoBrand(t *testing.T) {
	assert.True(t, IsDirectory(PPSE))
	assert.True(t, IsDirectory(PSE))
	assert.Equal(t, BrandUnknown, BrandForAID(PPSE))
	assert.Equal(t, BrandUnknown, BrandForAID(PSE))
}

func TestExpiryLayoutFor(t *testing.T) {
	assert.Equal(t, ExpiryPlausible, ExpiryLayoutFor(BrandMastercard))
	assert.Equal(t, ExpiryYYMM, ExpiryLayoutFor(BrandVisa))
	assert.Equal(t, ExpiryYYMM, ExpiryLayoutFor(BrandUnknown))
}
