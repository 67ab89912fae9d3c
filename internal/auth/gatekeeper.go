package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenMissing is returned when the handshake carries no credential.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid is returned when the credential fails verification.
	ErrTokenInvalid = errors.New("token invalid")
)

// Identity is the verified user bound to a connection.
type Identity struct {
	UserID string
	Name   string
}

// Gatekeeper verifies bearer credentials presented at connect time.
type Gatekeeper struct {
	jwtConfig *JWTConfig
}

// NewGatekeeper creates a gatekeeper that verifies tokens with jwtConfig.
func NewGatekeeper(jwtConfig *JWTConfig) *Gatekeeper {
	return &Gatekeeper{jwtConfig: jwtConfig}
}

// Authenticate validates token and returns the identity it asserts.
// Errors wrap ErrTokenMissing or ErrTokenInvalid.
func (g *Gatekeeper) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenMissing
	}

	claims, err := ValidateToken(g.jwtConfig, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Identity{UserID: claims.Subject, Name: name}, nil
}
