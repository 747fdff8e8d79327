package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SenderConfig configures the Graph API client.
type SenderConfig struct {
	BaseURL     string  `koanf:"base_url"` // default Graph API host
	PhoneID     string  `koanf:"phone_id"`
	Token       string  `koanf:"token"`
	VerifyToken string  `koanf:"verify_token"` // webhook handshake secret
	RatePerSec  float64 `koanf:"rate_per_sec"` // outbound throughput cap
	Burst       int     `koanf:"burst"`

	// TestAccount is the reserved pinned conversation; sends to it are
	// persisted but never forwarded to the platform.
	TestAccount string `koanf:"test_account"`
}

// DefaultSenderConfig returns the production Graph endpoint and a modest
// outbound rate.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		BaseURL:     "https://graph.facebook.com/v22.0",
		RatePerSec:  10,
		Burst:       5,
		TestAccount: "test_account",
	}
}

// Sender posts messages through the Cloud API. It implements the pacer's
// sender contract and adds audio and template payloads for the canned paths.
type Sender struct {
	cfg    SenderConfig
	http   *http.Client
	limit  *rate.Limiter
	log    zerolog.Logger
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig, log zerolog.Logger) *Sender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSenderConfig().BaseURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultSenderConfig().RatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultSenderConfig().Burst
	}
	return &Sender{
		cfg:   cfg,
		http:  &http.Client{Timeout: 30 * time.Second},
		limit: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:   log.With().Str("component", "whatsapp_sender").Logger(),
	}
}

// SendText delivers a plain text bubble.
func (s *Sender) SendText(ctx context.Context, to, body string) error {
	return s.post(ctx, to, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"text":              map[string]string{"body": body},
	})
}

// SendAudioLink delivers a pre-recorded audio by public URL (the welcome
// payload is one of these).
func (s *Sender) SendAudioLink(ctx context.Context, to, link string) error {
	return s.post(ctx, to, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "audio",
		"audio":             map[string]string{"link": link},
	})
}

// SendTemplate delivers an approved template message. Templates are the only
// payload the platform accepts once the 24-hour service window has closed,
// so this is the fallback delivery path.
func (s *Sender) SendTemplate(ctx context.Context, to, templateName, langCode string) error {
	if langCode == "" {
		langCode = "es_CL"
	}
	return s.post(ctx, to, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     templateName,
			"language": map[string]string{"code": langCode},
		},
	})
}

func (s *Sender) post(ctx context.Context, to string, payload map[string]any) error {
	// The reserved test conversation never reaches the platform.
	if s.cfg.TestAccount != "" && to == s.cfg.TestAccount {
		s.log.Debug().Str("to", to).Msg("skipping platform delivery for test account")
		return nil
	}

	if err := s.limit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, s.cfg.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send message to %s: status %d: %s", to, resp.StatusCode, string(detail))
	}

	s.log.Debug().Str("to", to).Int("status", resp.StatusCode).Msg("message delivered")
	return nil
}

// VerifyToken exposes the webhook handshake secret for the HTTP layer.
func (s *Sender) VerifyToken() string { return s.cfg.VerifyToken }
