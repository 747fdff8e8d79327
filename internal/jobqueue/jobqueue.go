// Package jobqueue runs inbound message processing on a River queue backed
// by Postgres. The webhook handler acknowledges the platform immediately and
// enqueues; workers run the conversation flow with River's retry and
// uniqueness guarantees.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"

	"github.com/gfrancoarq/franco-orrego/internal/orchestrator"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// Handler processes one inbound message. Implemented by the orchestrator.
type Handler interface {
	Handle(ctx context.Context, in whatsapp.Inbound) (orchestrator.Outcome, error)
}

// InboundJobArgs carries one inbound message through the queue.
type InboundJobArgs struct {
	From              string    `json:"from"`
	PlatformMessageID string    `json:"platform_message_id"`
	Type              string    `json:"type"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
}

// Kind returns the job kind for River.
func (InboundJobArgs) Kind() string { return "inbound_message" }

// InsertOpts dedupes at the queue level: a replayed webhook delivery for the
// same platform message id never becomes a second job. The orchestrator's
// store-level insert is the authoritative guard; this just cuts wasted work.
func (InboundJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// InboundWorker runs the conversation flow for one queued message.
type InboundWorker struct {
	river.WorkerDefaults[InboundJobArgs]
	handler Handler
	log     zerolog.Logger
}

// Timeout bounds one turn end to end, including paced delivery.
func (w *InboundWorker) Timeout(*river.Job[InboundJobArgs]) time.Duration {
	return 2 * time.Minute
}

// Work handles the message. Errors are returned to River for retry; the
// orchestrator's own idempotency makes retries safe.
func (w *InboundWorker) Work(ctx context.Context, job *river.Job[InboundJobArgs]) error {
	args := job.Args
	in := whatsapp.Inbound{
		From:              args.From,
		PlatformMessageID: args.PlatformMessageID,
		Type:              args.Type,
		Text:              args.Text,
		Timestamp:         args.Timestamp,
	}

	outcome, err := w.handler.Handle(ctx, in)
	if err != nil {
		w.log.Error().Err(err).
			Str("phone", args.From).
			Str("message_id", args.PlatformMessageID).
			Int("attempt", job.Attempt).
			Msg("inbound processing failed")
		return fmt.Errorf("process inbound %s: %w", args.PlatformMessageID, err)
	}

	w.log.Info().
		Str("phone", args.From).
		Str("message_id", args.PlatformMessageID).
		Str("action", string(outcome.Action)).
		Int("delivered", outcome.Delivered).
		Int("failed", outcome.Failed).
		Msg("inbound processed")
	return nil
}

// Config holds the queue tunables.
type Config struct {
	// MaxWorkers bounds concurrent turns. Turns for the same phone contend on
	// the conversation's version column, so modest parallelism is plenty.
	MaxWorkers int `koanf:"max_workers"`
	// MaxRetries caps delivery attempts per message before River discards it.
	MaxRetries int `koanf:"max_retries"`
}

// DefaultConfig matches a single-studio deployment.
func DefaultConfig() Config {
	return Config{MaxWorkers: 4, MaxRetries: 5}
}

// JobQueue wraps the River client.
type JobQueue struct {
	client *river.Client[pgx.Tx]
}

// New builds the queue over an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool, handler Handler, cfg Config, log zerolog.Logger) (*JobQueue, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &InboundWorker{
		handler: handler,
		log:     log.With().Str("component", "inbound_worker").Logger(),
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:     workers,
		MaxAttempts: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	return &JobQueue{client: client}, nil
}

// Start launches the workers.
func (q *JobQueue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop drains in-flight jobs and shuts down.
func (q *JobQueue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// EnqueueInbound queues one inbound message for processing.
func (q *JobQueue) EnqueueInbound(ctx context.Context, in whatsapp.Inbound) error {
	_, err := q.client.Insert(ctx, InboundJobArgs{
		From:              in.From,
		PlatformMessageID: in.PlatformMessageID,
		Type:              in.Type,
		Text:              in.Text,
		Timestamp:         in.Timestamp,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue inbound %s: %w", in.PlatformMessageID, err)
	}
	return nil
}
