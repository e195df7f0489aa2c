// Package auth implements the access token codec: short-lived HMAC-signed
// JWTs whose subject is the user id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is written into the iss claim when none is configured.
const DefaultIssuer = "lexivault"

// registered claims are owned by the codec; extra claims cannot override them.
var registeredClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "iat": {}, "exp": {}, "nbf": {}, "aud": {}, "jti": {},
}

// Claims is the verified content of an access token.
type Claims struct {
	Issuer    string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Codec signs and verifies access tokens. It keeps no state between calls;
// secret, algorithm, issuer and TTL are fixed at construction.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithIssuer overrides DefaultIssuer.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithAlgorithm selects HS256, HS384 or HS512.
func WithAlgorithm(alg string) Option {
	return func(c *Codec) {
		if m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); ok {
			c.method = m
		} else {
			c.method = nil
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	c := &Codec{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		issuer: DefaultIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(c.secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	if c.method == nil {
		return nil, errors.New("jwt algorithm must be one of HS256, HS384, HS512")
	}
	if c.ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive, got %s", c.ttl)
	}
	return c, nil
}

// TTL is the lifetime given to every new access token.
func (c *Codec) TTL() time.Duration { return c.ttl }

// CreateAccessToken signs {iss, sub, iat, exp} plus extra and returns the
// token together with its expiry.
func (c *Codec) CreateAccessToken(userID string, extra map[string]any) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	claims := jwt.MapClaims{}
	for k, v := range extra {
		if _, reserved := registeredClaims[k]; !reserved {
			claims[k] = v
		}
	}
	claims["iss"] = c.issuer
	claims["sub"] = userID
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(expiresAt)

	token, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyAccessToken checks signature, algorithm, issuer and expiry. Any
// failure yields (nil, false); callers cannot tell which check failed.
func (c *Codec) VerifyAccessToken(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}

	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, false
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, false
	}

	out := &Claims{Issuer: c.issuer, Subject: sub, ExpiresAt: exp.Time, Extra: map[string]any{}}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	for k, v := range mc {
		if _, reserved := registeredClaims[k]; !reserved {
			out.Extra[k] = v
		}
	}
	return out, true
}
