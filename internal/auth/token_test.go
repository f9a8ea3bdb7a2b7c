package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret")

const (
	testIssuer   = "assetica-identity"
	testAudience = "platform-core"
)

func newTestVerifier(t *testing.T, skew time.Duration) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Secret:    testSecret,
		Issuer:    testIssuer,
		Audience:  testAudience,
		ClockSkew: skew,
	})
	require.NoError(t, err)
	return v
}

func signClaims(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := Sign(testSecret, claims)
	require.NoError(t, err)
	return token
}

func baseClaims(now time.Time) Claims {
	return Claims{
		Issuer:       testIssuer,
		Subject:      "user-42",
		Audience:     testAudience,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
		TenantID:     "tenant-a",
		Capabilities: []string{"admin"},
	}
}

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				Secret:   testSecret,
				Issuer:   testIssuer,
				Audience: testAudience,
			},
		},
		{
			name: "missing secret",
			config: Config{
				Issuer:   testIssuer,
				Audience: testAudience,
			},
			wantErr: "signing secret is required",
		},
		{
			name: "missing issuer",
			config: Config{
				Secret:   testSecret,
				Audience: testAudience,
			},
			wantErr: "expected issuer is required",
		},
		{
			name: "missing audience",
			config: Config{
				Secret: testSecret,
				Issuer: testIssuer,
			},
			wantErr: "expected audience is required",
		},
		{
			name: "negative clock skew",
			config: Config{
				Secret:    testSecret,
				Issuer:    testIssuer,
				Audience:  testAudience,
				ClockSkew: -time.Second,
			},
			wantErr: "clock skew must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, v)
			} else {
				require.NoError(t, err)
				require.NotNil(t, v)
			}
		})
	}
}

func TestVerifier_Verify_ValidToken(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, 0)

	token := signClaims(t, baseClaims(now))

	identity, err := v.Verify(token, now)
	require.NoError(t, err)
	require.NotNil(t, identity)

	assert.Equal(t, "user-42", identity.Subject)
	assert.Equal(t, "tenant-a", identity.TenantID)
	assert.Equal(t, []string{"admin"}, identity.Capabilities)
}

func TestVerifier_Verify_Rejections(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		skew    time.Duration
		wantErr error
	}{
		{
			name:    "empty token",
			token:   func(t *testing.T) string { return "" },
			wantErr: ErrMalformed,
		},
		{
			name:    "wrong number of segments",
			token:   func(t *testing.T) string { return "only.two" },
			wantErr: ErrMalformed,
		},
		{
			name: "header is not base64",
			token: func(t *testing.T) string {
				parts := strings.Split(signClaims(t, baseClaims(now)), ".")
				return "!!!." + parts[1] + "." + parts[2]
			},
			wantErr: ErrMalformed,
		},
		{
			name: "header is not json",
			token: func(t *testing.T) string {
				parts := strings.Split(signClaims(t, baseClaims(now)), ".")
				return base64.RawURLEncoding.EncodeToString([]byte("not json")) + "." + parts[1] + "." + parts[2]
			},
			wantErr: ErrMalformed,
		},
		{
			name: "unexpected algorithm",
			token: func(t *testing.T) string {
				parts := strings.Split(signClaims(t, baseClaims(now)), ".")
				hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
				return hdr + "." + parts[1] + "." + parts[2]
			},
			wantErr: ErrMalformed,
		},
		{
			name: "claims are not json",
			token: func(t *testing.T) string {
				parts := strings.Split(signClaims(t, baseClaims(now)), ".")
				return parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte("{broken")) + "." + parts[2]
			},
			wantErr: ErrMalformed,
		},
		{
			name: "signature byte flipped",
			token: func(t *testing.T) string {
				token := signClaims(t, baseClaims(now))
				parts := strings.Split(token, ".")
				sig, err := base64.RawURLEncoding.DecodeString(parts[2])
				require.NoError(t, err)
				sig[0] ^= 0xFF
				return parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)
			},
			wantErr: ErrBadSignature,
		},
		{
			name: "signed with different secret",
			token: func(t *testing.T) string {
				token, err := Sign([]byte("some-other-secret"), baseClaims(now))
				require.NoError(t, err)
				return token
			},
			wantErr: ErrBadSignature,
		},
		{
			name: "tampered claims keep original signature",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				original := signClaims(t, claims)
				claims.Capabilities = []string{"admin", "superuser"}
				tampered := signClaims(t, claims)

				originalParts := strings.Split(original, ".")
				tamperedParts := strings.Split(tampered, ".")
				return tamperedParts[0] + "." + tamperedParts[1] + "." + originalParts[2]
			},
			wantErr: ErrBadSignature,
		},
		{
			name: "issuer mismatch",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.Issuer = "someone-else"
				return signClaims(t, claims)
			},
			wantErr: ErrIssuerMismatch,
		},
		{
			name: "audience mismatch",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.Audience = "another-service"
				return signClaims(t, claims)
			},
			wantErr: ErrAudienceMismatch,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.Subject = ""
				return signClaims(t, claims)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.ExpiresAt = 0
				return signClaims(t, claims)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "missing issued-at",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.IssuedAt = 0
				return signClaims(t, claims)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.ExpiresAt = now.Add(-time.Minute).Unix()
				return signClaims(t, claims)
			},
			wantErr: ErrExpired,
		},
		{
			name: "issued in the future",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.IssuedAt = now.Add(time.Minute).Unix()
				return signClaims(t, claims)
			},
			wantErr: ErrNotYetValid,
		},
		{
			name: "not-before in the future",
			token: func(t *testing.T) string {
				claims := baseClaims(now)
				claims.NotBefore = now.Add(time.Minute).Unix()
				return signClaims(t, claims)
			},
			wantErr: ErrNotYetValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, tt.skew)

			identity, err := v.Verify(tt.token(t), now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, identity)
		})
	}
}

func TestVerifier_Verify_ClockSkew(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	t.Run("expired token accepted within skew", func(t *testing.T) {
		claims := baseClaims(now)
		claims.ExpiresAt = now.Add(-10 * time.Second).Unix()
		token := signClaims(t, claims)

		strict := newTestVerifier(t, 0)
		_, err := strict.Verify(token, now)
		assert.ErrorIs(t, err, ErrExpired)

		lenient := newTestVerifier(t, 30*time.Second)
		identity, err := lenient.Verify(token, now)
		require.NoError(t, err)
		assert.Equal(t, "user-42", identity.Subject)
	})

	t.Run("future token accepted within skew", func(t *testing.T) {
		claims := baseClaims(now)
		claims.IssuedAt = now.Add(10 * time.Second).Unix()
		claims.ExpiresAt = now.Add(time.Hour).Unix()
		token := signClaims(t, claims)

		strict := newTestVerifier(t, 0)
		_, err := strict.Verify(token, now)
		assert.ErrorIs(t, err, ErrNotYetValid)

		lenient := newTestVerifier(t, 30*time.Second)
		identity, err := lenient.Verify(token, now)
		require.NoError(t, err)
		assert.Equal(t, "user-42", identity.Subject)
	})
}

func TestVerifier_Verify_CheckOrder(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, 0)

	// A token that is expired AND carries the wrong issuer AND a bad
	// signature must be rejected for the signature: nothing behind the
	// signature check is trusted before it passes.
	claims := baseClaims(now)
	claims.Issuer = "someone-else"
	claims.ExpiresAt = now.Add(-time.Hour).Unix()
	token, err := Sign([]byte("wrong-secret"), claims)
	require.NoError(t, err)

	_, err = v.Verify(token, now)
	assert.ErrorIs(t, err, ErrBadSignature)

	// With a valid signature, the issuer check fires before the lifetime
	// checks.
	token = signClaims(t, claims)
	_, err = v.Verify(token, now)
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestSign(t *testing.T) {
	t.Run("empty secret", func(t *testing.T) {
		_, err := Sign(nil, Claims{Subject: "user-42"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signing secret is required")
	})

	t.Run("round trip", func(t *testing.T) {
		now := time.Now()
		token := signClaims(t, baseClaims(now))
		assert.Len(t, strings.Split(token, "."), 3)

		v := newTestVerifier(t, 0)
		identity, err := v.Verify(token, now)
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", identity.TenantID)
	})
}
