// Package auth implements the request trust boundary: verification of
// signed bearer credentials and the capability gate evaluated in front of
// privileged surfaces.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rejection reasons. The HTTP boundary maps every one of these to the same
// unauthenticated outcome; the specific reason is only ever logged.
var (
	ErrMalformed        = errors.New("malformed credential")
	ErrBadSignature     = errors.New("bad signature")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrExpired          = errors.New("credential expired")
	ErrNotYetValid      = errors.New("credential not yet valid")
)

// Claims is the payload section of a credential token.
type Claims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`

	TenantID     string   `json:"tenant_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

// Config holds verifier configuration. Secret, Issuer and Audience are
// loaded once at startup and never mutated; rotation means constructing a
// new Verifier.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Verifier validates bearer credentials against a symmetric signing secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
}

// NewVerifier creates a Verifier. An empty secret is a configuration fault
// and fails here rather than per-request.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("auth: expected issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("auth: expected audience is required")
	}
	if cfg.ClockSkew < 0 {
		return nil, errors.New("auth: clock skew must not be negative")
	}
	return &Verifier{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		skew:     cfg.ClockSkew,
	}, nil
}

// Verify checks a raw credential and returns the authenticated Identity.
// Checks run in a fixed order: shape, signature, issuer, audience, lifetime.
// Pure function of its inputs and now; no side effects.
func (v *Verifier) Verify(raw string, now time.Time) (*Identity, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}
	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, ErrMalformed
	}
	if hdr.Alg != "HS256" {
		return nil, ErrMalformed
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrMalformed
	}

	signature, err := base64URLDecode(parts[2])
	if err != nil {
		return nil, ErrMalformed
	}
	if !hmac.Equal(signature, sign(v.secret, parts[0]+"."+parts[1])) {
		return nil, ErrBadSignature
	}

	if claims.Issuer != v.issuer {
		return nil, ErrIssuerMismatch
	}
	if claims.Audience != v.audience {
		return nil, ErrAudienceMismatch
	}

	// Subject, issued-at and expiry are required claims.
	if claims.Subject == "" || claims.IssuedAt == 0 || claims.ExpiresAt == 0 {
		return nil, ErrMalformed
	}

	if now.After(time.Unix(claims.ExpiresAt, 0).Add(v.skew)) {
		return nil, ErrExpired
	}
	notBefore := claims.IssuedAt
	if claims.NotBefore > notBefore {
		notBefore = claims.NotBefore
	}
	if now.Before(time.Unix(notBefore, 0).Add(-v.skew)) {
		return nil, ErrNotYetValid
	}

	return &Identity{
		Subject:      claims.Subject,
		TenantID:     claims.TenantID,
		Capabilities: claims.Capabilities,
	}, nil
}

// Sign creates a signed credential token. Used by tests and the token CLI;
// production tokens come from the external identity issuer.
func Sign(secret []byte, claims Claims) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: signing secret is required")
	}

	headerJSON, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	message := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return message + "." + base64URLEncode(sign(secret, message)), nil
}

func sign(secret []byte, message string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
