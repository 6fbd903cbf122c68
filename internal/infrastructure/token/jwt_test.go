package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/avi-health/identity-service/internal/core/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newCodec(t *testing.T) *JWTCodec {
	t.Helper()
	c, err := NewJWTCodec(Config{Secret: testSecret, TTL: time.Hour, Issuer: "avi-health"})
	require.NoError(t, err)
	return c
}

func TestJWTCodec_IssueAndVerify(t *testing.T) {
	c := newCodec(t)

	tok, err := c.Issue("id-1", domain.RoleUser, t0)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(tok, "."))

	claims, err := c.Verify(tok, t0)
	require.NoError(t, err)
	require.Equal(t, "id-1", claims.Subject)
	require.Equal(t, domain.RoleUser, claims.Role)
	require.True(t, claims.IssuedAt.Equal(t0))
	require.True(t, claims.ExpiresAt.Equal(t0.Add(time.Hour)))
}

func TestJWTCodec_ValidityWindow(t *testing.T) {
	c := newCodec(t)
	tok, err := c.Issue("id-1", domain.RoleAdmin, t0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"at issue", t0, nil},
		{"mid window", t0.Add(30 * time.Minute), nil},
		{"last nanosecond", t0.Add(time.Hour - time.Nanosecond), nil},
		{"exactly at expiry", t0.Add(time.Hour), domain.ErrTokenExpired},
		{"after expiry", t0.Add(2 * time.Hour), domain.ErrTokenExpired},
		{"before issue", t0.Add(-time.Second), domain.ErrTokenInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Verify(tok, tc.at)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestJWTCodec_SubSecondIssueWindowIsWholeSeconds(t *testing.T) {
	c := newCodec(t)
	issued := t0.Add(750 * time.Millisecond)
	tok, err := c.Issue("id-1", domain.RoleUser, issued)
	require.NoError(t, err)

	claims, err := c.Verify(tok, issued)
	require.NoError(t, err)
	require.True(t, claims.IssuedAt.Equal(t0))
	require.True(t, claims.ExpiresAt.Equal(t0.Add(time.Hour)))

	// The window is [floor(issued), floor(issued)+TTL), up to one second
	// ahead of [issued, issued+TTL).
	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"start of the issuing second", t0, nil},
		{"last nanosecond of the whole-second window", t0.Add(time.Hour - time.Nanosecond), nil},
		{"expiry falls on the whole second", t0.Add(time.Hour), domain.ErrTokenExpired},
		{"inside issued+TTL but past the whole second", issued.Add(time.Hour - time.Millisecond), domain.ErrTokenExpired},
		{"just before the issuing second", t0.Add(-time.Nanosecond), domain.ErrTokenInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Verify(tok, tc.at)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestJWTCodec_TamperedPayloadIsInvalid(t *testing.T) {
	c := newCodec(t)
	tok, err := c.Issue("id-1", domain.RoleUser, t0)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	payload := []byte(parts[1])
	for i := range payload {
		mutated := make([]byte, len(payload))
		copy(mutated, payload)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		forged := parts[0] + "." + string(mutated) + "." + parts[2]

		_, err := c.Verify(forged, t0)
		require.ErrorIs(t, err, domain.ErrTokenInvalid, "byte %d", i)
	}
}

func TestJWTCodec_ForgedRoleIsInvalid(t *testing.T) {
	c := newCodec(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-1",
			Issuer:    "avi-health",
			IssuedAt:  jwt.NewNumericDate(t0),
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("another-secret-another-secret-00"))
	require.NoError(t, err)

	_, err = c.Verify(signed, t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestJWTCodec_RejectsOtherAlgorithms(t *testing.T) {
	c := newCodec(t)
	claims := accessClaims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-1",
			Issuer:    "avi-health",
			IssuedAt:  jwt.NewNumericDate(t0),
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = c.Verify(hs512, t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Verify(none, t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestJWTCodec_RejectsUnknownRoleAndMissingClaims(t *testing.T) {
	c := newCodec(t)

	sign := func(cl accessClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	base := jwt.RegisteredClaims{
		Subject:   "id-1",
		Issuer:    "avi-health",
		IssuedAt:  jwt.NewNumericDate(t0),
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}

	_, err := c.Verify(sign(accessClaims{Role: "superuser", RegisteredClaims: base}), t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	noSub := base
	noSub.Subject = ""
	_, err = c.Verify(sign(accessClaims{Role: "user", RegisteredClaims: noSub}), t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	noExp := base
	noExp.ExpiresAt = nil
	_, err = c.Verify(sign(accessClaims{Role: "user", RegisteredClaims: noExp}), t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	otherIssuer := base
	otherIssuer.Issuer = "someone-else"
	_, err = c.Verify(sign(accessClaims{Role: "user", RegisteredClaims: otherIssuer}), t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestJWTCodec_Malformed(t *testing.T) {
	c := newCodec(t)
	for _, s := range []string{"", "not-a-token", "a.b.c", "...", "Bearer x.y.z"} {
		_, err := c.Verify(s, t0)
		require.ErrorIs(t, err, domain.ErrTokenInvalid, "input %q", s)
	}
}

func TestJWTCodec_SecretRotationInvalidates(t *testing.T) {
	old := newCodec(t)
	tok, err := old.Issue("id-1", domain.RoleUser, t0)
	require.NoError(t, err)

	rotated, err := NewJWTCodec(Config{Secret: strings.Repeat("z", 32), TTL: time.Hour, Issuer: "avi-health"})
	require.NoError(t, err)
	_, err = rotated.Verify(tok, t0)
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestNewJWTCodec_SecretPolicy(t *testing.T) {
	_, err := NewJWTCodec(Config{})
	require.True(t, errors.Is(err, ErrSecretMissing))

	_, err = NewJWTCodec(Config{Secret: "   "})
	require.True(t, errors.Is(err, ErrSecretMissing))

	_, err = NewJWTCodec(Config{Secret: "short"})
	require.True(t, errors.Is(err, ErrSecretTooShort))

	c, err := NewJWTCodec(Config{Secret: "short", MinSecretBytes: 4})
	require.NoError(t, err)
	require.Equal(t, DefaultTTL, c.TTL())
}

func TestJWTCodec_IssueRejectsBadInput(t *testing.T) {
	c := newCodec(t)

	_, err := c.Issue("", domain.RoleUser, t0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.Issue("id-1", domain.Role("root"), t0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
