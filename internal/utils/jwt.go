package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned by Decode for every rejected token, whatever
// the underlying reason (bad signature, malformed, expired, wrong alg).
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Access tokens are sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the payload carried by access tokens.  Subject holds the
// user ID in decimal form; Email is optional.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies access tokens with a single secret and
// HMAC algorithm fixed at construction.  It keeps no session state: a
// token is valid until it expires.
type TokenSigner struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner builds a signer for the named HMAC algorithm (HS256,
// HS384 or HS512).  ttl is the default lifetime used by Issue.
func NewTokenSigner(secret, algorithm string, ttl time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	return &TokenSigner{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue signs a token for subject with the default TTL.
func (s *TokenSigner) Issue(subject, email string) (AccessToken, error) {
	return s.IssueWithTTL(subject, email, s.ttl)
}

// IssueWithTTL signs a token whose exp is now+ttl.  A negative ttl
// produces a token that is already expired.
func (s *TokenSigner) IssueWithTTL(subject, email string, ttl time.Duration) (AccessToken, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Decode verifies the signature, algorithm and expiry of raw and returns
// its claims.  Any failure is reported as ErrInvalidToken.
func (s *TokenSigner) Decode(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
