package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gfrancoarq/franco-orrego/internal/lead"
)

// Messages is the append-only conversation log.
type Messages struct {
	pool *pgxpool.Pool
}

// NewMessages creates the repo.
func NewMessages(pool *pgxpool.Pool) *Messages {
	return &Messages{pool: pool}
}

// Insert appends one message. The (phone, platform id) unique constraint is
// the anti-replay guarantee: a redelivered webhook inserts nothing and
// inserted comes back false, so the caller skips all side effects too.
func (r *Messages) Insert(ctx context.Context, msg lead.Message) (inserted bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO messages (phone_number, platform_message_id, role, kind, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone_number, platform_message_id) DO NOTHING`,
		msg.PhoneNumber, msg.PlatformMessageID, msg.Role, msg.Kind, msg.Body,
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertOutbound records an agent or system message. Outbound messages have
// no platform id of their own, so one is minted to satisfy the key.
func (r *Messages) InsertOutbound(ctx context.Context, phone string, role lead.Role, kind lead.MessageKind, body string) error {
	_, err := r.Insert(ctx, lead.Message{
		PhoneNumber:       phone,
		PlatformMessageID: "out-" + uuid.NewString(),
		Role:              role,
		Kind:              kind,
		Body:              body,
	})
	return err
}

// InsertSystemNote attaches an operator-visible diagnostic to the thread,
// e.g. a delivery failure.
func (r *Messages) InsertSystemNote(ctx context.Context, phone, note string) error {
	return r.InsertOutbound(ctx, phone, lead.RoleSystem, lead.KindText, note)
}

// Recent returns the latest limit messages in chronological order.
func (r *Messages) Recent(ctx context.Context, phone string, limit int) ([]lead.Message, error) {
	if limit <= 0 {
		limit = 6
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone_number, platform_message_id, role, kind, body, created_at
		FROM messages
		WHERE phone_number = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []lead.Message
	for rows.Next() {
		var m lead.Message
		if err := rows.Scan(&m.ID, &m.PhoneNumber, &m.PlatformMessageID, &m.Role, &m.Kind, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for prompt assembly.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountByRole counts messages from one author on a thread (temperature
// thresholds use the customer count).
func (r *Messages) CountByRole(ctx context.Context, phone string, role lead.Role) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE phone_number = $1 AND role = $2`,
		phone, role,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
