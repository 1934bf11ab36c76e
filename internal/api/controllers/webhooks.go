package controllers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/transcribebridge/bridge/internal/app"
	"github.com/transcribebridge/bridge/internal/domain"
)

// WebhookController receives inbound transcription-provider callbacks.
type WebhookController struct {
	App *app.Context
}

// Receive handles POST /webhooks/provider. The provider's signature header
// name mirrors ElevenLabs' own convention.
func (ctrl *WebhookController) Receive(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		ve := domain.NewValidationError("unreadable request body", nil)
		return c.JSON(ve.HTTPStatus(), errorResponse(ve))
	}

	signature := c.Request().Header.Get("ElevenLabs-Signature")
	segmentIDHint := c.QueryParam("segmentId")

	if err := ctrl.App.Inbound.Handle(c.Request().Context(), body, signature, segmentIDHint); err != nil {
		ae := domain.AsAppError(err)
		return c.JSON(ae.HTTPStatus(), errorResponse(ae))
	}

	// §4.6/§7: unknown requestId, stale callbacks, and anything else not
	// explicitly rejected above is acknowledged 200 so the provider never
	// retries a callback we've already handled or never will.
	return c.NoContent(http.StatusOK)
}
