// Package escalation decides when a conversation leaves automation and is
// handed to a human operator.
package escalation

import "strings"

// Config holds the intent-to-proceed lexicon and the fixed handoff notice.
type Config struct {
	// Lexicon terms are matched case-insensitively as substrings of the
	// inbound text. Operating language is Chilean Spanish.
	Lexicon []string `koanf:"lexicon"`
	// HandoffNotice is the single fixed message sent to the customer on
	// escalation, instead of any model-generated text.
	HandoffNotice string `koanf:"handoff_notice"`
}

// DefaultConfig returns the studio's production lexicon and notice.
func DefaultConfig() Config {
	return Config{
		Lexicon: []string{"interesa", "quiero", "hacerlo", "agendar", "fecha", "reserva"},
		HandoffNotice: "¡Excelente! Como ya tienes el presupuesto, le aviso a Mari " +
			"para que vea la agenda contigo ahora mismo. 🤘",
	}
}

// Engine is a total function over its inputs; it never fails.
type Engine struct {
	cfg     Config
	lexicon []string // pre-lowered
}

// NewEngine creates an engine from config, falling back to defaults when the
// lexicon is empty.
func NewEngine(cfg Config) *Engine {
	if len(cfg.Lexicon) == 0 {
		cfg.Lexicon = DefaultConfig().Lexicon
	}
	if cfg.HandoffNotice == "" {
		cfg.HandoffNotice = DefaultConfig().HandoffNotice
	}
	lowered := make([]string, len(cfg.Lexicon))
	for i, term := range cfg.Lexicon {
		lowered[i] = strings.ToLower(term)
	}
	return &Engine{cfg: cfg, lexicon: lowered}
}

// ShouldEscalate reports whether this inbound message hands the thread to a
// human: only after a quote was delivered, and only when the text shows
// intent to proceed. Interest before a quote stays with the bot, which still
// has to deliver the price.
func (e *Engine) ShouldEscalate(quoteSent bool, inbound string) bool {
	if !quoteSent {
		return false
	}
	lower := strings.ToLower(inbound)
	for _, term := range e.lexicon {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// HandoffNotice returns the fixed customer-facing handoff message.
func (e *Engine) HandoffNotice() string {
	return e.cfg.HandoffNotice
}
