package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gfrancoarq/franco-orrego/internal/calendar"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/store"
)

type conversationView struct {
	PhoneNumber      string     `json:"phone_number"`
	ControlMode      string     `json:"control_mode"`
	Temperature      string     `json:"temperature"`
	QuoteSent        bool       `json:"quote_sent"`
	AssignedOperator string     `json:"assigned_operator,omitempty"`
	Pinned           bool       `json:"pinned"`
	LastInboundAt    *time.Time `json:"last_inbound_at,omitempty"`
	LastOutboundAt   *time.Time `json:"last_outbound_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toConversationView(c lead.Conversation) conversationView {
	return conversationView{
		PhoneNumber:      c.PhoneNumber,
		ControlMode:      string(c.ControlMode),
		Temperature:      string(c.Temperature),
		QuoteSent:        c.QuoteSent,
		AssignedOperator: c.AssignedOperator,
		Pinned:           c.Pinned,
		LastInboundAt:    c.LastInboundAt,
		LastOutboundAt:   c.LastOutboundAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (s *Server) handleListConversations(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	convs, err := s.conversations.List(c.Request().Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list conversations")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	views := make([]conversationView, len(convs))
	for i, conv := range convs {
		views[i] = toConversationView(conv)
	}
	return c.JSON(http.StatusOK, views)
}

type messageView struct {
	Role      string    `json:"role"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListMessages(c echo.Context) error {
	phone := c.Param("phone")
	limit := 200
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.messages.Recent(c.Request().Context(), phone, limit)
	if err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("failed to list messages")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	views := make([]messageView, len(msgs))
	for i, msg := range msgs {
		views[i] = messageView{
			Role:      string(msg.Role),
			Kind:      string(msg.Kind),
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, views)
}

type manualSendRequest struct {
	Body string `json:"body"`
}

// handleManualSend delivers an operator-authored message immediately, no
// pacing, and records it on the thread. Sending does not flip control mode;
// takeover is a separate, explicit action.
func (s *Server) handleManualSend(c echo.Context) error {
	phone := c.Param("phone")
	var req manualSendRequest
	if err := c.Bind(&req); err != nil || req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "body required")
	}

	ctx := c.Request().Context()
	if err := s.sender.SendText(ctx, phone, req.Body); err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("manual send failed")
		return echo.NewHTTPError(http.StatusBadGateway, "delivery failed")
	}
	if err := s.messages.InsertOutbound(ctx, phone, lead.RoleAgent, lead.KindText, req.Body); err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("failed to record manual message")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTakeover(c echo.Context) error {
	phone := c.Param("phone")
	operator, _ := c.Get(operatorContextKey).(string)

	if err := s.tracker.Takeover(c.Request().Context(), phone, operator); err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		s.log.Error().Err(err).Str("phone", phone).Msg("takeover failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "takeover failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRelease(c echo.Context) error {
	phone := c.Param("phone")

	if err := s.tracker.Release(c.Request().Context(), phone); err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		s.log.Error().Err(err).Str("phone", phone).Msg("release failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "release failed")
	}
	return c.NoContent(http.StatusNoContent)
}

type temperatureRequest struct {
	Temperature string `json:"temperature"`
}

func (s *Server) handleSetTemperature(c echo.Context) error {
	phone := c.Param("phone")
	var req temperatureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	temp := lead.Temperature(req.Temperature)
	switch temp {
	case lead.TemperatureCold, lead.TemperatureWarm, lead.TemperatureHot:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "temperature must be cold, warm, or hot")
	}

	if err := s.tracker.SetTemperature(c.Request().Context(), phone, temp); err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		s.log.Error().Err(err).Str("phone", phone).Msg("temperature update failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "temperature update failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// handleAvailability returns the agenda's free intervals in a range, for
// operators scheduling an escalated lead. Only opaque intervals leave the
// server; event details never do.
func (s *Server) handleAvailability(c echo.Context) error {
	if s.agenda == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "agenda not configured")
	}

	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil || !to.After(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339 and after from")
	}

	busy, err := s.agenda.ListBusyIntervals(c.Request().Context(), from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to query agenda")
		return echo.NewHTTPError(http.StatusBadGateway, "agenda unavailable")
	}

	free := calendar.FreeWithin(from, to, calendar.Merge(busy))
	return c.JSON(http.StatusOK, map[string][]calendar.Interval{"free": free})
}

func (s *Server) handleListTemplates(c echo.Context) error {
	templates, err := s.templates.List(c.Request().Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list templates")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list templates")
	}
	return c.JSON(http.StatusOK, templates)
}

type createTemplateRequest struct {
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

func (s *Server) handleCreateTemplate(c echo.Context) error {
	var req createTemplateRequest
	if err := c.Bind(&req); err != nil || req.Label == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "label and content required")
	}
	if req.Kind == "" {
		req.Kind = "text"
	}
	if req.Kind != "text" && req.Kind != "audio" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be text or audio")
	}

	created, err := s.templates.Create(c.Request().Context(), store.Template{
		Label:   req.Label,
		Kind:    req.Kind,
		Content: req.Content,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create template")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create template")
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleDeleteTemplate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template id")
	}
	if err := s.templates.Delete(c.Request().Context(), id); err != nil {
		s.log.Error().Err(err).Int64("template_id", id).Msg("failed to delete template")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete template")
	}
	return c.NoContent(http.StatusNoContent)
}
