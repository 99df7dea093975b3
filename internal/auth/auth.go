// Package auth implements the gating pipeline's final stage: bearer
// token or JWT verification, per spec section 4.2.
//
// Author: momentics <momentics@gmail.com>
package auth

import (
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Mode selects which verification scheme Authenticator applies.
type Mode string

const (
	ModeToken Mode = "token"
	ModeJWT   Mode = "jwt"
)

// Claims is the subset of a verified JWT surfaced to callers.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// Authenticator verifies the Authorization header of an inbound request.
type Authenticator struct {
	mode  Mode
	token string

	publicKey        *rsa.PublicKey
	algorithm        string
	expectedIssuer   string
	expectedAudience string
	clockSkew        time.Duration
	requireExp       bool
}

// NewBearer builds a constant-time shared-secret Authenticator.
func NewBearer(token string) *Authenticator {
	return &Authenticator{mode: ModeToken, token: token}
}

// NewJWT builds an RS256/384/512 Authenticator verifying against pubKey.
func NewJWT(pubKey *rsa.PublicKey, algorithm, issuer, audience string, clockSkew time.Duration, requireExp bool) *Authenticator {
	return &Authenticator{
		mode:             ModeJWT,
		publicKey:        pubKey,
		algorithm:        algorithm,
		expectedIssuer:   issuer,
		expectedAudience: audience,
		clockSkew:        clockSkew,
		requireExp:       requireExp,
	}
}

// Verify checks the raw Authorization header value ("Bearer <token>").
// It returns the parsed claims for JWT mode (nil for bearer mode) or an
// error describing why authentication failed.
func (a *Authenticator) Verify(authHeader string) (*Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, fmt.Errorf("auth: missing bearer prefix")
	}
	raw := strings.TrimSpace(authHeader[len(prefix):])
	if raw == "" {
		return nil, fmt.Errorf("auth: empty token")
	}

	switch a.mode {
	case ModeToken:
		return nil, a.verifyBearer(raw)
	case ModeJWT:
		return a.verifyJWT(raw)
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", a.mode)
	}
}

// verifyBearer compares the candidate against the configured shared
// secret with crypto/subtle's constant-time comparison to avoid timing
// side channels.
func (a *Authenticator) verifyBearer(candidate string) error {
	want := []byte(a.token)
	got := []byte(candidate)
	if len(want) != len(got) {
		// Still run a comparison of equal-length padding to avoid a
		// length-driven timing short-circuit.
		subtle.ConstantTimeCompare(want, want)
		return fmt.Errorf("auth: invalid token")
	}
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return fmt.Errorf("auth: invalid token")
	}
	return nil
}

func (a *Authenticator) verifyJWT(raw string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods(allowedMethods(a.algorithm)))

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: jwt parse: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: jwt invalid")
	}

	now := time.Now()
	if a.requireExp {
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return nil, fmt.Errorf("auth: jwt missing exp")
		}
		if now.After(exp.Add(a.clockSkew)) {
			return nil, fmt.Errorf("auth: jwt expired")
		}
	}
	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil {
		if now.Before(nbf.Add(-a.clockSkew)) {
			return nil, fmt.Errorf("auth: jwt not yet valid")
		}
	}
	if a.expectedIssuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != a.expectedIssuer {
			return nil, fmt.Errorf("auth: jwt issuer mismatch")
		}
	}
	if a.expectedAudience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, a.expectedAudience) {
			return nil, fmt.Errorf("auth: jwt audience mismatch")
		}
	}

	sub, _ := claims.GetSubject()
	iss, _ := claims.GetIssuer()
	aud, _ := claims.GetAudience()
	var expTime time.Time
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		expTime = exp.Time
	}
	return &Claims{Subject: sub, Issuer: iss, Audience: aud, ExpiresAt: expTime}, nil
}

func allowedMethods(algorithm string) []string {
	switch algorithm {
	case "RS384":
		return []string{"RS384"}
	case "RS512":
		return []string{"RS512"}
	default:
		return []string{"RS256"}
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
