package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/realfinance/estate-api/internal/api/middleware"
	"github.com/realfinance/estate-api/internal/core/ports"
)

// ctxClaims returns the claims injected by the Auth middleware. Missing claims
// mean the route was wired without Auth, which is reported as 401.
func ctxClaims(c echo.Context) (*ports.TokenClaims, error) {
	claims, _ := c.Get(middleware.ContextKeyClaims).(*ports.TokenClaims)
	if claims == nil || claims.Subject == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return claims, nil
}

// bindAndValidate decodes the body into req and runs the struct validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
