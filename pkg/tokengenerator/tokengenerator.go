package tokengenerator

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// SessionTokenLength is the number of random bytes in an impersonation session token
	SessionTokenLength = 32
	// CorrelationIDLength is the number of random bytes in an audit correlation id
	CorrelationIDLength = 16
)

// TokenGenerator produces opaque secrets for impersonation sessions.
// Session tokens are bearer credentials and must be unpredictable;
// correlation ids only need to be unique enough to link audit events.
type TokenGenerator interface {
	// GenerateSessionToken returns a new opaque bearer token
	GenerateSessionToken() (string, error)

	// GenerateCorrelationID returns a new opaque correlation identifier
	GenerateCorrelationID() (string, error)
}

// CryptoTokenGenerator implements TokenGenerator using crypto/rand
type CryptoTokenGenerator struct{}

// NewCryptoTokenGenerator creates a new CryptoTokenGenerator
func NewCryptoTokenGenerator() *CryptoTokenGenerator {
	return &CryptoTokenGenerator{}
}

// GenerateSessionToken creates a URL-safe token from SessionTokenLength random bytes
func (g *CryptoTokenGenerator) GenerateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateCorrelationID creates a hex correlation id from CorrelationIDLength random bytes
func (g *CryptoTokenGenerator) GenerateCorrelationID() (string, error) {
	bytes := make([]byte, CorrelationIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
