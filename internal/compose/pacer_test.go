package compose

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	sent    []string
	failOn  map[int]error // 1-based call index -> error
	calls   int
}

func (f *fakeSender) SendText(_ context.Context, _, body string) error {
	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return err
	}
	f.sent = append(f.sent, body)
	return nil
}

func newTestPacer(sender Sender, cfg Config) (*Pacer, *[]time.Duration) {
	p := NewPacer(sender, cfg, zerolog.Nop())
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	return p, &slept
}

func TestSplit_ParagraphBoundaries(t *testing.T) {
	chunks := Split("Hola!\n\n¿Qué zona tienes pensada?\n\nMándame una foto de referencia.", 5)
	assert.Equal(t, []string{
		"Hola!",
		"¿Qué zona tienes pensada?",
		"Mándame una foto de referencia.",
	}, chunks)
}

func TestSplit_SingleParagraph(t *testing.T) {
	assert.Equal(t, []string{"una sola línea"}, Split("una sola línea", 3))
}

func TestSplit_NeverEmpty(t *testing.T) {
	chunks := Split("", 3)
	assert.Len(t, chunks, 1)
}

func TestSplit_CollapsesBlankParagraphs(t *testing.T) {
	chunks := Split("a\n\n\n\n  \n\nb", 5)
	assert.Equal(t, []string{"a", "b"}, chunks)
}

func TestSplit_FoldsOverflowIntoLastChunk(t *testing.T) {
	chunks := Split("1\n\n2\n\n3\n\n4\n\n5", 3)
	assert.Equal(t, []string{"1", "2", "3\n\n4\n\n5"}, chunks)
}

func TestDeliver_SequentialWithDelays(t *testing.T) {
	sender := &fakeSender{}
	p, slept := newTestPacer(sender, Config{
		StartDelay: time.Second,
		ChunkDelay: 2 * time.Second,
		MaxChunks:  3,
	})

	result := p.Deliver(context.Background(), "+56912345678", "uno\n\ndos\n\ntres")

	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 3, result.Delivered)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{"uno", "dos", "tres"}, sender.sent)
	// Start delay, then one inter-chunk delay per remaining chunk.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}, *slept)
}

func TestDeliver_FailedChunkDoesNotAbort(t *testing.T) {
	boom := errors.New("delivery refused")
	sender := &fakeSender{failOn: map[int]error{2: boom}}
	p, _ := newTestPacer(sender, Config{MaxChunks: 3})

	result := p.Deliver(context.Background(), "+56912345678", "uno\n\ndos\n\ntres")

	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.FirstErr, boom)
	// The failure of chunk 2 must not stop chunk 3.
	assert.Equal(t, []string{"uno", "tres"}, sender.sent)
}

func TestDeliver_NoStartDelayConfigured(t *testing.T) {
	sender := &fakeSender{}
	p, slept := newTestPacer(sender, Config{MaxChunks: 3})

	p.Deliver(context.Background(), "+56912345678", "hola")

	assert.Empty(t, *slept)
	assert.Equal(t, []string{"hola"}, sender.sent)
}
