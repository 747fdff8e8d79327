// Package compose splits a generated reply into ordered chunks and paces
// their delivery to read like a human typing.
package compose

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers one text payload to a recipient. Implemented by the
// WhatsApp transport; tests use a recording fake.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Config carries the pacing parameters. All of them are externally
// configurable; the delays emulate typing cadence.
type Config struct {
	// StartDelay runs once before the first chunk so the reply does not land
	// the instant the customer hits send.
	StartDelay time.Duration `koanf:"start_delay"`
	// ChunkDelay separates consecutive chunks.
	ChunkDelay time.Duration `koanf:"chunk_delay"`
	// MaxChunks caps how many messages one reply may become; overflow is
	// folded into the final chunk.
	MaxChunks int `koanf:"max_chunks"`
}

// DefaultConfig mirrors observed production pacing: ~3.5s before the first
// send, 3s between chunks, at most 3 bubbles per turn.
func DefaultConfig() Config {
	return Config{
		StartDelay: 3500 * time.Millisecond,
		ChunkDelay: 3 * time.Second,
		MaxChunks:  3,
	}
}

// Result summarizes one paced delivery.
type Result struct {
	Chunks    int
	Delivered int
	Failed    int
	// FirstErr keeps the first send error for the caller's system note.
	FirstErr error
}

// Pacer delivers chunked replies strictly in order.
type Pacer struct {
	sender Sender
	cfg    Config
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

// NewPacer creates a pacer around the given sender.
func NewPacer(sender Sender, cfg Config, log zerolog.Logger) *Pacer {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultConfig().MaxChunks
	}
	return &Pacer{
		sender: sender,
		cfg:    cfg,
		log:    log.With().Str("component", "pacer").Logger(),
		sleep:  sleepCtx,
	}
}

// Split breaks a reply on paragraph boundaries into a non-empty ordered
// sequence of chunks, folding overflow past max into the last chunk.
func Split(body string, max int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")

	chunks := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			chunks = append(chunks, p)
		}
	}
	if len(chunks) == 0 {
		chunks = []string{strings.TrimSpace(body)}
	}
	if max > 0 && len(chunks) > max {
		tail := strings.Join(chunks[max-1:], "\n\n")
		chunks = append(chunks[:max-1], tail)
	}
	return chunks
}

// Deliver sends the reply to the recipient. Chunk N+1 is never attempted
// before chunk N's send call returns; a failed chunk is logged and delivery
// continues best-effort with the rest.
func (p *Pacer) Deliver(ctx context.Context, to, body string) Result {
	chunks := Split(body, p.cfg.MaxChunks)
	result := Result{Chunks: len(chunks)}

	if p.cfg.StartDelay > 0 {
		p.sleep(ctx, p.cfg.StartDelay)
	}

	for i, chunk := range chunks {
		if i > 0 && p.cfg.ChunkDelay > 0 {
			p.sleep(ctx, p.cfg.ChunkDelay)
		}

		if err := p.sender.SendText(ctx, to, chunk); err != nil {
			p.log.Error().Err(err).Str("to", to).Int("chunk", i+1).Int("of", len(chunks)).
				Msg("chunk delivery failed, continuing with remaining chunks")
			result.Failed++
			if result.FirstErr == nil {
				result.FirstErr = err
			}
			continue
		}
		result.Delivered++
	}

	return result
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
