// ABOUTME: JWT access tokens for password-protected public views
// ABOUTME: Uses HS256 signing with configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultAccessTTL is how long a verified password unlocks a view.
const DefaultAccessTTL = 12 * time.Hour

// ViewTokens issues and verifies HS256 access tokens scoped to a single
// view. A token proves the holder passed that view's password check.
type ViewTokens struct {
	secret []byte
}

// NewViewTokens creates a token issuer/verifier with the given secret
func NewViewTokens(secret []byte) *ViewTokens {
	return &ViewTokens{secret: secret}
}

// Issue creates a new access token for the given view id with expiration
func (v *ViewTokens) Issue(viewID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   viewID,
		"scope": "view",
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify validates the token and extracts the view id from the "sub"
// claim. The token must carry the "view" scope.
func (v *ViewTokens) Verify(tokenString string) (viewID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if scope, ok := claims["scope"].(string); !ok || scope != "view" {
		return "", fmt.Errorf("%w: scope", ErrMissingClaim)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
