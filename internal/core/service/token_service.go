package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/realfinance/estate-api/internal/core/domain"
	"github.com/realfinance/estate-api/internal/core/ports"
)

const (
	// HS256 needs a key at least as long as its 256-bit output.
	minSigningKeyBytes = 32
	defaultTokenTTL    = 24 * time.Hour
)

// ErrTokenConfig marks an unusable token configuration. It is fatal at startup.
var ErrTokenConfig = errors.New("invalid token configuration")

// TokenConfig is the single source for both issuing and validating tokens.
type TokenConfig struct {
	Issuer string
	// Audience defaults to Issuer when empty.
	Audience  string
	Key       []byte
	TTL       time.Duration
	ClockSkew time.Duration
}

type tokenClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens. It holds no mutable
// state after construction and is safe for concurrent use.
type TokenService struct {
	issuer   string
	audience string
	key      []byte
	keyID    string
	ttl      time.Duration
	parser   *jwt.Parser
	now      func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrTokenConfig)
	}
	if len(cfg.Key) < minSigningKeyBytes {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes, got %d",
			ErrTokenConfig, minSigningKeyBytes, len(cfg.Key))
	}
	if cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("%w: clock skew cannot be negative", ErrTokenConfig)
	}

	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = issuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	key := bytes.Clone(cfg.Key)
	sum := sha256.Sum256(key)

	s := &TokenService{
		issuer:   issuer,
		audience: audience,
		key:      key,
		keyID:    hex.EncodeToString(sum[:8]),
		ttl:      ttl,
		now:      time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// KeyID identifies the signing key without revealing it.
func (s *TokenService) KeyID() string { return s.keyID }

// Issue signs a token for user carrying its email and role claims.
func (s *TokenService) Issue(user *domain.User) (ports.IssuedToken, error) {
	if user == nil || user.ID == "" {
		return ports.IssuedToken{}, errors.New("issue token: user id is required")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl).Truncate(jwt.TimePrecision)
	claims := tokenClaims{
		Email: user.Email,
		Roles: append([]string(nil), user.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.keyID
	signed, err := t.SignedString(s.key)
	if err != nil {
		return ports.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}
	return ports.IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Validate checks issuer, audience, signature and the nbf/exp window. Any
// failing check yields an error wrapping domain.ErrInvalidToken together with
// the underlying jwt error.
func (s *TokenService) Validate(raw string) (*ports.TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	var claims tokenClaims
	tkn, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}

	out := &ports.TokenClaims{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Roles:    claims.Roles,
		Issuer:   claims.Issuer,
		Audience: s.audience,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
