package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gfrancoarq/franco-orrego/internal/retry"
)

// ErrAllProvidersFailed means both providers were exhausted; the caller
// degrades to a fixed canned reply rather than leaving the customer hanging.
var ErrAllProvidersFailed = errors.New("llm: all providers failed")

// Failover runs the primary provider with a single retry, then falls back to
// the secondary provider once.
type Failover struct {
	primary  Client
	fallback Client
	cfg      retry.Config
	log      zerolog.Logger
}

// NewFailover wires the two providers. fallback may be nil.
func NewFailover(primary, fallback Client, log zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		cfg:      retry.GenerationConfig(),
		log:      log.With().Str("component", "llm_failover").Logger(),
	}
}

// Generate produces a reply, honoring PreferFallback for turns the primary
// provider cannot handle.
func (f *Failover) Generate(ctx context.Context, req Request) (string, error) {
	if req.PreferFallback && f.fallback != nil {
		out, err := f.fallback.Generate(ctx, req.System, req.History, req.UserText)
		if err == nil {
			return out, nil
		}
		f.log.Warn().Err(err).Msg("preferred fallback provider failed")
		return "", fmt.Errorf("%w: %s", ErrAllProvidersFailed, err)
	}

	var out string
	result := retry.Do(ctx, f.cfg, f.log, func() error {
		var err error
		out, err = f.primary.Generate(ctx, req.System, req.History, req.UserText)
		return err
	})
	if result.Success {
		return out, nil
	}
	f.log.Warn().Err(result.LastError).Int("attempts", result.Attempts).
		Msg("primary provider failed, trying fallback")

	if f.fallback == nil {
		return "", fmt.Errorf("%w: %s", ErrAllProvidersFailed, result.LastError)
	}

	out, err := f.fallback.Generate(ctx, req.System, req.History, req.UserText)
	if err != nil {
		f.log.Error().Err(err).Msg("fallback provider failed as well")
		return "", fmt.Errorf("%w: %s", ErrAllProvidersFailed, err)
	}
	return out, nil
}
