package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/realfinance/estate-api/internal/core/ports"
)

type NotificationHandler struct {
	sender ports.EmailSender
}

func NewNotificationHandler(sender ports.EmailSender) *NotificationHandler {
	return &NotificationHandler{sender: sender}
}

// SendEmail delivers one email synchronously. Delivery failures surface as 502.
//
// @Summary      Send an email
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      sendEmailRequest  true  "Recipient, subject and plain-text body"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      502   {object}  errorResponse
// @Router       /v1/notifications/email [post]
func (h *NotificationHandler) SendEmail(c echo.Context) error {
	var req sendEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.sender.Send(c.Request().Context(), req.To, req.Subject, req.Body); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "sent"})
}
