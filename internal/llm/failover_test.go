package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfrancoarq/franco-orrego/internal/retry"
)

type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedClient) Generate(_ context.Context, _ string, _ []Turn, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("script exhausted")
}

func newTestFailover(primary, fallback Client) *Failover {
	f := NewFailover(primary, fallback, zerolog.Nop())
	// No real backoff waits in tests.
	f.cfg = retry.Config{MaxRetries: 1, BaseDelay: 0, MaxDelay: 0, Multiplier: 1}
	return f
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	primary := &scriptedClient{replies: []string{"hola!"}}
	fallback := &scriptedClient{}
	f := newTestFailover(primary, fallback)

	out, err := f.Generate(context.Background(), Request{UserText: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "hola!", out)
	assert.Zero(t, fallback.calls)
}

func TestGenerate_RetriesPrimaryOnceThenFallsBack(t *testing.T) {
	primary := &scriptedClient{errs: []error{
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
	}}
	fallback := &scriptedClient{replies: []string{"respuesta de respaldo"}}
	f := newTestFailover(primary, fallback)

	out, err := f.Generate(context.Background(), Request{UserText: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "respuesta de respaldo", out)
	assert.Equal(t, 2, primary.calls) // initial + one retry
	assert.Equal(t, 1, fallback.calls)
}

func TestGenerate_NonRetryableSkipsRetry(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("invalid api key")}}
	fallback := &scriptedClient{replies: []string{"ok"}}
	f := newTestFailover(primary, fallback)

	out, err := f.Generate(context.Background(), Request{UserText: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, primary.calls)
}

func TestGenerate_BothFail(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("boom"), errors.New("boom")}}
	fallback := &scriptedClient{errs: []error{errors.New("also boom")}}
	f := newTestFailover(primary, fallback)

	_, err := f.Generate(context.Background(), Request{UserText: "hola"})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestGenerate_PreferFallbackSkipsPrimary(t *testing.T) {
	primary := &scriptedClient{replies: []string{"no debería usarse"}}
	fallback := &scriptedClient{replies: []string{"visión"}}
	f := newTestFailover(primary, fallback)

	out, err := f.Generate(context.Background(), Request{UserText: "[IMAGEN]", PreferFallback: true})
	require.NoError(t, err)
	assert.Equal(t, "visión", out)
	assert.Zero(t, primary.calls)
}

func TestGenerate_NoFallbackConfigured(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("boom")}}
	f := newTestFailover(primary, nil)

	_, err := f.Generate(context.Background(), Request{UserText: "hola"})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}
