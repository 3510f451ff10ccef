package httpapi

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorClaims are the claims carried by management-API tokens issued to
// the enrollment console.
type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// tokenIssuer mints and validates HS256 bearer tokens for the management
// endpoints. A nil issuer (no configured secret) disables auth entirely,
// which is the dev default.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &tokenIssuer{secret: []byte(secret), ttl: ttl}
}

// authorize checks the shared operator secret presented on token exchange.
func (t *tokenIssuer) authorize(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), t.secret) == 1
}

func (t *tokenIssuer) issue() (string, int64, error) {
	expires := time.Now().Add(t.ttl)

	claims := &operatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, expires.Unix(), nil
}

func (t *tokenIssuer) validate(tokenString string) (*operatorClaims, error) {
	claims := &operatorClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
