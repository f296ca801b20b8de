package iam

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

// Identity is what the auth stage of the request pipeline attaches to a
// request once a bearer token or API key is accepted.
type Identity struct {
	Principal string   // a user/service-account email, or "anonymous"
	Scopes    []string
}

func anonymous() *Identity { return &Identity{Principal: "anonymous"} }

// claims is the JWT payload this emulator mints and accepts. Signature
// validation is HMAC-only and checks expiry; no asymmetric keys.
type claims struct {
	jwt.RegisteredClaims
	Principal string   `json:"principal"`
	Scopes    []string `json:"scopes,omitempty"`
}

// TokenIssuer mints and verifies the opaque bearer tokens behind
// POST /token and the Authorization header. Constructor-injected clock
// keeps expiry testable.
type TokenIssuer struct {
	secret string
	clock  cmn.Clock
	ttl    time.Duration
}

func NewTokenIssuer(secret string, clock cmn.Clock, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, clock: clock, ttl: ttl}
}

// Issue backs POST /token: a synthetic opaque token for principal,
// expiring after ttl.
func (ti *TokenIssuer) Issue(principal string, scopes []string) (string, time.Time, error) {
	now := ti.clock.Now()
	exp := now.Add(ti.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Principal: principal,
		Scopes:    scopes,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := tok.SignedString([]byte(ti.secret))
	if err != nil {
		return "", time.Time{}, cmn.WrapInternal(err, "sign token for %s", principal)
	}
	return s, exp, nil
}

// Verify decodes and validates a bearer token string, rejecting anything
// not signed with HMAC (defends against an "alg":"none" forged token) and
// anything expired. Expiry is judged by the injected clock; the jwt
// library's own wall-clock claim checks are switched off.
func (ti *TokenIssuer) Verify(tokenStr string) (*Identity, error) {
	parsed, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, cmn.NewUnauthenticated("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(ti.secret), nil
	})
	if err != nil {
		return nil, cmn.NewUnauthenticated("invalid bearer token: %v", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, cmn.NewUnauthenticated("invalid bearer token")
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Time.Before(ti.clock.Now()) {
		return nil, cmn.NewUnauthenticated("token expired")
	}
	return &Identity{Principal: c.Principal, Scopes: c.Scopes}, nil
}

// RevocationList backs POST /token/revoke; this emulator has no token
// store beyond the JWT itself, so revocation is tracked by raw token
// string (not by a jti claim) for process lifetime.
type RevocationList struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

func NewRevocationList() *RevocationList { return &RevocationList{revoked: map[string]struct{}{}} }

func (rl *RevocationList) Revoke(tokenStr string) {
	rl.mu.Lock()
	rl.revoked[tokenStr] = struct{}{}
	rl.mu.Unlock()
}

func (rl *RevocationList) IsRevoked(tokenStr string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	_, ok := rl.revoked[tokenStr]
	return ok
}
