package tokengenerator

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionToken(t *testing.T) {
	g := NewCryptoTokenGenerator()

	token, err := g.GenerateSessionToken()
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, SessionTokenLength)
}

func TestGenerateCorrelationID(t *testing.T) {
	g := NewCryptoTokenGenerator()

	id, err := g.GenerateCorrelationID()
	require.NoError(t, err)

	decoded, err := hex.DecodeString(id)
	require.NoError(t, err)
	assert.Len(t, decoded, CorrelationIDLength)
}

func TestTokensAreUnique(t *testing.T) {
	g := NewCryptoTokenGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := g.GenerateSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}
