package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type AccountHandler struct{}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

// Me returns the identity carried by the caller's token.
//
// @Summary      Current account
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/account/me [get]
func (h *AccountHandler) Me(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, accountResponse{
		ID:        claims.Subject,
		Email:     claims.Email,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt,
	})
}
