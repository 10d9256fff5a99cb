// Package auth provides bearer-token issuance/validation and password
// hashing for the proximity API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of an issued access token.
const TokenTTL = 30 * time.Minute

// DefaultLeeway tolerates small clock skew during validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptyUserID is returned when a token is requested for an empty user ID.
var ErrEmptyUserID = errors.New("userID cannot be empty")

// Claims are the JWT claims carried by access tokens. The subject is the
// user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 bearer tokens with a
// process-wide secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenService creates a token service with the default TTL and leeway.
func NewTokenService(secret string) *TokenService {
	return NewTokenServiceWithTTL(secret, TokenTTL, DefaultLeeway)
}

// NewTokenServiceWithTTL creates a token service with explicit TTL and
// validation leeway. Tests use this to exercise expiry without sleeping.
func NewTokenServiceWithTTL(secret string, ttl, leeway time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, leeway: leeway}
}

// Issue creates a signed token whose subject is userID, expiring after
// the service TTL.
func (s *TokenService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses and verifies a token, returning its claims. Tokens
// signed with any method other than HS256 are rejected.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
