// ABOUTME: User session tokens: HS256 JWTs whose subject is the user ID
// ABOUTME: Tokens are scoped to the fastapi-users audience so existing cookies stay valid

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is the "aud" claim carried by user tokens.
const DefaultAudience = "fastapi-users:auth"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier resolves a bearer token or session cookie to a user ID.
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

type userClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier signs and checks user tokens with a shared secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		secret:   secret,
		audience: DefaultAudience,
		parser: jwt.NewParser(
			jwt.WithAudience(DefaultAudience),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		),
	}
}

func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	var claims userClaims
	_, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.Subject == "":
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate mints a token for userID that expires after lifetime.
func (v *JWTVerifier) Generate(userID string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := userClaims{jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{v.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
