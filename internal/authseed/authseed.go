// Package authseed produces the bearer token seeded into localStorage so the
// app under test boots as a signed-in service provider.
package authseed

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
)

// PlaceholderToken is seeded when neither a static token nor a signing secret
// is configured. Scenarios that mock the profile endpoint accept any token.
const PlaceholderToken = "fake-jwt-token"

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 32

// DefaultLifetime is how long minted tokens stay valid.
const DefaultLifetime = time.Hour

var (
	ErrSecretTooShort = errors.New("authseed: secret must be at least 32 bytes")
	ErrInvalidToken   = errors.New("authseed: invalid token")
)

// Claims are the claims of a seeded SP session token.
type Claims struct {
	jwt.Claims
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ServiceProvider returns claims for the provider profile the built-in
// scenarios mock.
func ServiceProvider(id, email, name string, now time.Time) Claims {
	return Claims{
		Claims: jwt.Claims{
			Subject:   id,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(DefaultLifetime)),
		},
		Role:  "SERVICE_PROVIDER",
		Email: email,
		Name:  name,
	}
}

// Mint signs claims with HS256.
func Mint(claims Claims, secret []byte) (string, error) {
	if len(secret) < MinSecretLength {
		return "", ErrSecretTooShort
	}
	signerOpts := jose.SignerOptions{}
	signerOpts.WithType("JWT")

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, &signerOpts)
	if err != nil {
		return "", fmt.Errorf("authseed: create signer: %w", err)
	}
	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("authseed: sign token: %w", err)
	}
	return token, nil
}

// Verify parses token, checks its signature and time claims, and returns
// its claims.
func Verify(token string, secret []byte, now time.Time) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := &Claims{}
	if err := parsed.Claims(secret, claims); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed", ErrInvalidToken)
	}
	if err := claims.Validate(jwt.Expected{Time: now}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Resolve picks the token to seed: a static token wins, then a token minted
// from secret, then PlaceholderToken.
func Resolve(static, secret string, claims Claims) (string, error) {
	switch {
	case static != "":
		return static, nil
	case secret != "":
		return Mint(claims, []byte(secret))
	default:
		return PlaceholderToken, nil
	}
}
