// Package token implements the access-token codec on top of HS256 JWTs.
//
// Tokens carry the identity id as "sub", the role as "role", and whole-second
// "iat"/"exp" timestamps. A token is valid for iat <= now < exp, with no
// leeway. Issue truncates now to the second, so a token issued at t0 is valid
// on [floor(t0), floor(t0)+TTL) rather than [t0, t0+TTL). The signing secret is fixed for the process lifetime; rotating it
// invalidates every outstanding token.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avi-health/identity-service/internal/core/domain"
)

const (
	DefaultTTL            = 24 * time.Hour
	DefaultMinSecretBytes = 32
)

var (
	ErrSecretMissing  = errors.New("token signing secret missing")
	ErrSecretTooShort = errors.New("token signing secret too short")
)

// Config configures a JWTCodec.
type Config struct {
	Secret         string
	MinSecretBytes int
	TTL            time.Duration
	Issuer         string
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTCodec implements ports.TokenCodec.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewJWTCodec validates the secret and returns a codec. A missing or short
// secret is a startup failure.
func NewJWTCodec(cfg Config) (*JWTCodec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrSecretMissing
	}
	minBytes := cfg.MinSecretBytes
	if minBytes <= 0 {
		minBytes = DefaultMinSecretBytes
	}
	if len(secret) < minBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, minBytes)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTCodec{secret: []byte(secret), ttl: ttl, issuer: cfg.Issuer}, nil
}

// TTL returns the lifetime of issued tokens.
func (c *JWTCodec) TTL() time.Duration { return c.ttl }

// Issue signs a token for subject valid from now (truncated to the second)
// for the configured TTL.
func (c *JWTCodec) Issue(subject string, role domain.Role, now time.Time) (string, error) {
	if subject == "" || !role.Valid() {
		return "", fmt.Errorf("%w: subject and a known role are required", domain.ErrInvalidInput)
	}
	issued := now.UTC().Truncate(time.Second)

	claims := accessClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(c.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Verify checks signature, algorithm, issuer and time window. Expired tokens
// yield domain.ErrTokenExpired; every other failure wraps domain.ErrTokenInvalid.
func (c *JWTCodec) Verify(token string, now time.Time) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Claims{}, domain.ErrTokenExpired
		}
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return domain.Claims{}, domain.ErrTokenInvalid
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.IssuedAt == nil {
		return domain.Claims{}, fmt.Errorf("%w: missing or unknown claims", domain.ErrTokenInvalid)
	}

	return domain.Claims{
		Subject:   claims.Subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
