package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthenticate_ValidToken(t *testing.T) {
	req := require.New(t)
	cfg := testJWTConfig()
	gk := NewGatekeeper(cfg)

	token, err := GenerateToken(cfg, "user-1", "Alice")
	req.NoError(err)

	id, err := gk.Authenticate(token)
	req.NoError(err)
	req.Equal(Identity{UserID: "user-1", Name: "Alice"}, id)
}

func TestAuthenticate_NameDefaultsToSubject(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "user-2", "")
	require.NoError(t, err)

	id, err := NewGatekeeper(cfg).Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, "user-2", id.Name)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	_, err := NewGatekeeper(testJWTConfig()).Authenticate("")
	if !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("missing token must not be reported as invalid")
	}
}

func TestAuthenticate_InvalidTokens(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	valid := func() Claims {
		return Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "test",
			Audience:  jwt.ClaimStrings{"test"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExp := valid()
	noExp.ExpiresAt = nil

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := valid()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noSubject := valid()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signClaims(t, jwt.SigningMethodHS256, []byte("other-secret"), valid())},
		{"wrong algorithm", signClaims(t, jwt.SigningMethodHS512, cfg.Secret, valid())},
		{"expired", signClaims(t, jwt.SigningMethodHS256, cfg.Secret, expired)},
		{"no expiry", signClaims(t, jwt.SigningMethodHS256, cfg.Secret, noExp)},
		{"wrong issuer", signClaims(t, jwt.SigningMethodHS256, cfg.Secret, wrongIssuer)},
		{"wrong audience", signClaims(t, jwt.SigningMethodHS256, cfg.Secret, wrongAudience)},
		{"no subject", signClaims(t, jwt.SigningMethodHS256, cfg.Secret, noSubject)},
	}

	gk := NewGatekeeper(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gk.Authenticate(tt.token)
			require.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}
