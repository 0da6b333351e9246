package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/realfinance/estate-api/internal/api/metrics"
	"github.com/realfinance/estate-api/internal/core/ports"
)

// Context keys set by Auth for downstream handlers.
const (
	ContextKeyClaims = "claims"
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
	ContextKeyRoles  = "roles"
)

// Auth validates the bearer token and injects its claims into the context.
// Every rejection is a 401 carrying a WWW-Authenticate challenge.
func Auth(tokens ports.TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				metrics.TokenValidationsTotal.WithLabelValues("missing").Inc()
				return unauthorized(c, `Bearer`, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				metrics.TokenValidationsTotal.WithLabelValues("malformed").Inc()
				return unauthorized(c, `Bearer error="invalid_request"`, "invalid authorization header")
			}

			claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				metrics.TokenValidationsTotal.WithLabelValues(failureReason(err)).Inc()
				return unauthorized(c, `Bearer error="invalid_token"`, "invalid token")
			}
			metrics.TokenValidationsTotal.WithLabelValues("ok").Inc()

			c.Set(ContextKeyClaims, claims)
			c.Set(ContextKeyUserID, claims.Subject)
			c.Set(ContextKeyEmail, claims.Email)
			c.Set(ContextKeyRoles, claims.Roles)

			return next(c)
		}
	}
}

func unauthorized(c echo.Context, challenge, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}

// failureReason buckets a validation error for the metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return "bad_claims"
	default:
		return "malformed"
	}
}
