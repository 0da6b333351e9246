package service

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/realfinance/estate-api/internal/core/domain"
)

const (
	testIssuer = "https://estate.example.com"
	testKey    = "0123456789abcdef0123456789abcdef"
	otherKey   = "fedcba9876543210fedcba9876543210"
)

func newTestTokenService(t *testing.T, key string) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{Issuer: testIssuer, Key: []byte(key), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func testUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "ceo@example.com", Roles: []string{domain.RoleAdmin}}
}

// signRaw signs arbitrary claims, bypassing Issue, so single fields can be altered.
func signRaw(t *testing.T, method jwt.SigningMethod, claims tokenClaims, key string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func validClaims() tokenClaims {
	now := time.Now()
	return tokenClaims{
		Email: "ceo@example.com",
		Roles: []string{domain.RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{testIssuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestNewTokenService_ConfigErrors(t *testing.T) {
	cases := map[string]TokenConfig{
		"empty issuer":  {Issuer: " ", Key: []byte(testKey)},
		"short key":     {Issuer: testIssuer, Key: []byte("too-short")},
		"negative skew": {Issuer: testIssuer, Key: []byte(testKey), ClockSkew: -time.Second},
	}
	for name, cfg := range cases {
		if _, err := NewTokenService(cfg); !errors.Is(err, ErrTokenConfig) {
			t.Fatalf("%s: expected ErrTokenConfig, got %v", name, err)
		}
	}
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newTestTokenService(t, testKey)

	issued, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.Token == "" {
		t.Fatalf("expected token")
	}

	claims, err := svc.Validate(issued.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "ceo@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != domain.RoleAdmin {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if claims.Issuer != testIssuer || claims.Audience != testIssuer {
		t.Fatalf("audience should default to issuer, got %+v", claims)
	}
	if !claims.ExpiresAt.Equal(issued.ExpiresAt) {
		t.Fatalf("expiry mismatch: %v vs %v", claims.ExpiresAt, issued.ExpiresAt)
	}
}

func TestTokenService_HeaderCarriesKeyIDNotKey(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	issued, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(issued.Token, &tokenClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if parsed.Header["kid"] != svc.KeyID() {
		t.Fatalf("expected kid %s, got %v", svc.KeyID(), parsed.Header["kid"])
	}
	if strings.Contains(issued.Token, testKey) {
		t.Fatalf("token must not embed the signing key")
	}
}

func TestTokenService_Issue_RequiresUserID(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	if _, err := svc.Issue(&domain.User{Email: "x@example.com"}); err == nil {
		t.Fatalf("expected error for user without id")
	}
}

func TestTokenService_Validate_RejectsSingleAlteredField(t *testing.T) {
	svc := newTestTokenService(t, testKey)

	if _, err := svc.Validate(signRaw(t, jwt.SigningMethodHS256, validClaims(), testKey)); err != nil {
		t.Fatalf("baseline token rejected: %v", err)
	}

	cases := []struct {
		name   string
		token  func() string
		jwtErr error
	}{
		{"issuer", func() string {
			c := validClaims()
			c.Issuer = "https://evil.example.com"
			return signRaw(t, jwt.SigningMethodHS256, c, testKey)
		}, jwt.ErrTokenInvalidIssuer},
		{"audience", func() string {
			c := validClaims()
			c.Audience = jwt.ClaimStrings{"another-api"}
			return signRaw(t, jwt.SigningMethodHS256, c, testKey)
		}, jwt.ErrTokenInvalidAudience},
		{"signature", func() string {
			return signRaw(t, jwt.SigningMethodHS256, validClaims(), otherKey)
		}, jwt.ErrTokenSignatureInvalid},
		{"expiry", func() string {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return signRaw(t, jwt.SigningMethodHS256, c, testKey)
		}, jwt.ErrTokenExpired},
		{"not before", func() string {
			c := validClaims()
			c.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
			return signRaw(t, jwt.SigningMethodHS256, c, testKey)
		}, jwt.ErrTokenNotValidYet},
		{"missing expiry", func() string {
			c := validClaims()
			c.ExpiresAt = nil
			return signRaw(t, jwt.SigningMethodHS256, c, testKey)
		}, jwt.ErrTokenRequiredClaimMissing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(tc.token())
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
			if !errors.Is(err, tc.jwtErr) {
				t.Fatalf("expected %v, got %v", tc.jwtErr, err)
			}
		})
	}
}

func TestTokenService_Validate_RejectsOtherAlgorithm(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	token := signRaw(t, jwt.SigningMethodHS512, validClaims(), testKey)
	if _, err := svc.Validate(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected HS512 token to be rejected, got %v", err)
	}
}

func TestTokenService_Validate_RejectsSwappedPayload(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	issued, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	forged := validClaims()
	forged.Subject = "user-2"
	other := signRaw(t, jwt.SigningMethodHS256, forged, otherKey)

	orig := strings.Split(issued.Token, ".")
	swapped := strings.Split(other, ".")
	tampered := orig[0] + "." + swapped[1] + "." + orig[2]

	if _, err := svc.Validate(tampered); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestTokenService_KeyMismatchRejectsOtherwiseValidToken(t *testing.T) {
	issuer := newTestTokenService(t, testKey)
	validator := newTestTokenService(t, otherKey)

	issued, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := validator.Validate(issued.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected rejection with K2, got %v", err)
	}
}

func TestTokenService_ExpiryFollowsClock(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	issued, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.now = func() time.Time { return start.Add(59 * time.Minute) }
	if _, err := svc.Validate(issued.Token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	svc.now = func() time.Time { return start.Add(61 * time.Minute) }
	if _, err := svc.Validate(issued.Token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestTokenService_Validate_Garbage(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := svc.Validate(raw); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestTokenService_ConcurrentValidate(t *testing.T) {
	svc := newTestTokenService(t, testKey)
	issued, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Validate(issued.Token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent validate failed: %v", err)
	}
}
