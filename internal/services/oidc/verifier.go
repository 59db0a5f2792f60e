package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrMissingSubject is returned for a valid token without a "sub" claim
var ErrMissingSubject = errors.New("token missing subject claim")

// Claims are the token claims the API uses. The subject names the timeline.
type Claims struct {
	Sub   string
	Iss   string
	Email string
	Name  string
}

// Verifier verifies JWT tokens against one issuer
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
	jwksURL     string
}

// NewVerifier creates a new JWT verifier
func NewVerifier(jwksManager *JWKSManager, issuer, jwksURL string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      issuer,
		jwksURL:     jwksURL,
	}
}

// Verify verifies a JWT token and extracts claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := v.parse(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if token.Subject() == "" {
		return nil, ErrMissingSubject
	}

	claims := &Claims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if name, ok := token.Get("name"); ok {
		claims.Name, _ = name.(string)
	}
	return claims, nil
}

func (v *Verifier) parse(ctx context.Context, tokenString string) (jwt.Token, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	return token, nil
}
