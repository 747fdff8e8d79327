package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// handleWebhookVerify answers Meta's subscription handshake: echo the
// challenge when mode and token match, 403 otherwise.
func (s *Server) handleWebhookVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken {
		return c.String(http.StatusOK, challenge)
	}
	return c.NoContent(http.StatusForbidden)
}

// handleWebhookDelivery accepts a message delivery. It always returns 200:
// the platform retries non-2xx responses, and a retry storm on a payload we
// cannot parse helps nobody. Failures are logged and, for enqueue errors,
// left to the platform's own redelivery.
func (s *Server) handleWebhookDelivery(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read webhook body")
		return c.NoContent(http.StatusOK)
	}

	in, ok, err := whatsapp.ParseInbound(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("unparseable webhook payload")
		return c.NoContent(http.StatusOK)
	}
	if !ok {
		// Status update (sent/delivered/read), nothing to process.
		return c.NoContent(http.StatusOK)
	}

	if err := s.queue.EnqueueInbound(c.Request().Context(), in); err != nil {
		s.log.Error().Err(err).
			Str("phone", in.From).
			Str("message_id", in.PlatformMessageID).
			Msg("failed to enqueue inbound message")
	}
	return c.NoContent(http.StatusOK)
}
