// Package api exposes the HTTP surface: the platform webhook pair and the
// operator console endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gfrancoarq/franco-orrego/internal/calendar"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/store"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// Enqueuer hands parsed inbound messages to the processing queue.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, in whatsapp.Inbound) error
}

// ConversationDirectory is the console's read/write view of conversations.
type ConversationDirectory interface {
	Get(ctx context.Context, phone string) (lead.Conversation, error)
	List(ctx context.Context, limit int) ([]lead.Conversation, error)
}

// MessageDirectory is the console's view of message history.
type MessageDirectory interface {
	Recent(ctx context.Context, phone string, limit int) ([]lead.Message, error)
	InsertOutbound(ctx context.Context, phone string, role lead.Role, kind lead.MessageKind, body string) error
}

// TemplateDirectory manages the console's canned reply snippets.
type TemplateDirectory interface {
	List(ctx context.Context) ([]store.Template, error)
	Create(ctx context.Context, t store.Template) (store.Template, error)
	Delete(ctx context.Context, id int64) error
}

// ManualSender is the direct send path operators use; it bypasses the pacer.
type ManualSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Server is the API server.
type Server struct {
	echo          *echo.Echo
	port          int
	verifyToken   string
	queue         Enqueuer
	tracker       *lead.Tracker
	conversations ConversationDirectory
	messages      MessageDirectory
	templates     TemplateDirectory
	operators     OperatorDirectory
	sender        ManualSender
	agenda        calendar.BusyProvider
	tokens        *TokenService
	log           zerolog.Logger
}

// Deps carries the server's collaborators.
type Deps struct {
	Port          int
	VerifyToken   string
	Queue         Enqueuer
	Tracker       *lead.Tracker
	Conversations ConversationDirectory
	Messages      MessageDirectory
	Templates     TemplateDirectory
	Operators     OperatorDirectory
	Sender        ManualSender
	// Agenda is optional; availability endpoints 503 without it.
	Agenda calendar.BusyProvider
	Tokens *TokenService
	Log    zerolog.Logger
}

// NewServer creates the server and registers routes.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:          e,
		port:          deps.Port,
		verifyToken:   deps.VerifyToken,
		queue:         deps.Queue,
		tracker:       deps.Tracker,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		templates:     deps.Templates,
		operators:     deps.Operators,
		sender:        deps.Sender,
		agenda:        deps.Agenda,
		tokens:        deps.Tokens,
		log:           deps.Log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Platform webhook pair. GET is Meta's subscription handshake, POST is
	// message delivery.
	s.echo.GET("/webhook", s.handleWebhookVerify)
	s.echo.POST("/webhook", s.handleWebhookDelivery)

	s.echo.POST("/api/v1/login", s.handleLogin)

	v1 := s.echo.Group("/api/v1", RequireAuth(s.tokens))
	v1.GET("/conversations", s.handleListConversations)
	v1.GET("/conversations/:phone/messages", s.handleListMessages)
	v1.POST("/conversations/:phone/send", s.handleManualSend)
	v1.POST("/conversations/:phone/takeover", s.handleTakeover)
	v1.POST("/conversations/:phone/release", s.handleRelease)
	v1.PUT("/conversations/:phone/temperature", s.handleSetTemperature)
	v1.GET("/availability", s.handleAvailability)
	v1.GET("/templates", s.handleListTemplates)
	v1.POST("/templates", s.handleCreateTemplate)
	v1.DELETE("/templates/:id", s.handleDeleteTemplate)
}

// Start runs the server until an interrupt, then drains for up to 10s.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
