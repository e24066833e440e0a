package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVendorToken(t *testing.T) {
	first, err := NewVendorToken()
	require.NoError(t, err)
	assert.Len(t, first, 48)
	assert.True(t, ValidVendorToken(first))

	second, err := NewVendorToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestValidVendorToken(t *testing.T) {
	assert.False(t, ValidVendorToken(""))
	assert.False(t, ValidVendorToken("short"))
	assert.False(t, ValidVendorToken("ZZf00ba7c4d2e8a1b3c5d7e9f1a3b5c7d9e1f3a5b7c9d1e3"))
	assert.False(t, ValidVendorToken("f00ba7c4d2e8a1b3c5d7e9f1a3b5c7d9e1f3a5b7c9d1e3f5a7"))
	assert.True(t, ValidVendorToken("f00ba7c4d2e8a1b3c5d7e9f1a3b5c7d9e1f3a5b7c9d1e3f5"))
}

func TestNewOrderSuffix(t *testing.T) {
	suffix, err := NewOrderSuffix()
	require.NoError(t, err)
	assert.Len(t, suffix, 6)
}
