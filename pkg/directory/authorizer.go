package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authorizer resolves an admin bearer credential to an identity.
// A nil identity with a nil error means the credential did not resolve;
// a non-nil error means the resolution itself failed.
type Authorizer interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// StaticAuthorizer implements Authorizer with an in-memory credential table.
// Useful for demo environments and tests where no identity provider runs.
type StaticAuthorizer struct {
	mu          sync.RWMutex
	credentials map[string]uuid.UUID
	repo        Repository
}

// NewStaticAuthorizer creates a StaticAuthorizer backed by the given directory
func NewStaticAuthorizer(repo Repository) *StaticAuthorizer {
	return &StaticAuthorizer{
		credentials: make(map[string]uuid.UUID),
		repo:        repo,
	}
}

// Register associates a credential with a user ID
func (a *StaticAuthorizer) Register(credential string, userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.credentials[credential] = userID
}

// Revoke removes a credential
func (a *StaticAuthorizer) Revoke(credential string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.credentials, credential)
}

// Resolve maps a credential to its registered user's identity.
// The role always comes from the directory record, not the credential table.
func (a *StaticAuthorizer) Resolve(ctx context.Context, credential string) (*Identity, error) {
	a.mu.RLock()
	userID, ok := a.credentials[credential]
	a.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	return &Identity{UserID: user.ID, Role: user.Role}, nil
}

// JwtAuthorizer implements Authorizer for HS256-signed bearer tokens issued by
// the platform's authentication provider. The subject claim carries the user ID.
type JwtAuthorizer struct {
	secret []byte
	repo   Repository
}

// NewJwtAuthorizer creates a new JwtAuthorizer
func NewJwtAuthorizer(secret string, repo Repository) *JwtAuthorizer {
	return &JwtAuthorizer{
		secret: []byte(secret),
		repo:   repo,
	}
}

// Resolve parses and validates the token, then loads the user from the
// directory. An invalid or expired token resolves to nothing rather than an
// error so callers treat it the same as an unknown credential.
func (a *JwtAuthorizer) Resolve(ctx context.Context, credential string) (*Identity, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		slog.Debug("Failed to parse admin credential", "err", err)
		return nil, nil
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, nil
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, nil
	}

	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	return &Identity{UserID: user.ID, Role: user.Role}, nil
}
