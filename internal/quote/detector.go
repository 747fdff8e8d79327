// Package quote decides whether a price quote has already been communicated
// on a conversation.
package quote

import (
	"strings"

	"github.com/gfrancoarq/franco-orrego/internal/lead"
)

// DetectorConfig lists the textual markers that count as a quote. The
// markers exist for history written before the explicit quote flag; the flag
// on the conversation is authoritative once set.
type DetectorConfig struct {
	CurrencyMarkers []string `koanf:"currency_markers"`
	SessionKeywords []string `koanf:"session_keywords"`
}

// DefaultDetectorConfig matches the studio's Spanish-language replies.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CurrencyMarkers: []string{"$"},
		SessionKeywords: []string{"sesión", "sesion"},
	}
}

// Detector is a total, side-effect-free function over a conversation and its
// agent-authored history.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if len(cfg.CurrencyMarkers) == 0 && len(cfg.SessionKeywords) == 0 {
		cfg = DefaultDetectorConfig()
	}
	return &Detector{cfg: cfg}
}

// Sent reports whether a quote was delivered on this conversation: either the
// conversation carries the explicit flag, or some agent message contains a
// currency marker or session keyword. O(n) in message count.
func (d *Detector) Sent(conv lead.Conversation, history []lead.Message) bool {
	if conv.QuoteSent {
		return true
	}
	for _, msg := range history {
		if msg.Role != lead.RoleAgent {
			continue
		}
		if d.matches(msg.Body) {
			return true
		}
	}
	return false
}

func (d *Detector) matches(body string) bool {
	for _, marker := range d.cfg.CurrencyMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	lower := strings.ToLower(body)
	for _, kw := range d.cfg.SessionKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
