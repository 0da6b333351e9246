package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/realfinance/estate-api/internal/core/domain"
)

// RoleLister is the read side of the credential store used by RoleHandler.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]domain.Role, error)
}

type RoleHandler struct {
	roles RoleLister
}

func NewRoleHandler(roles RoleLister) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List returns every role.
//
// @Summary      List roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   roleResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /v1/roles [get]
func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.roles.ListRoles(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		resp = append(resp, roleResponse{ID: r.ID, Name: r.Name})
	}
	return c.JSON(http.StatusOK, resp)
}
