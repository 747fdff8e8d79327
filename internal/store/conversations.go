package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gfrancoarq/franco-orrego/internal/lead"
)

// Conversations implements lead.Store on Postgres.
type Conversations struct {
	pool      *pgxpool.Pool
	budgetCap int
}

// NewConversations creates the repo. budgetCap seeds new conversations.
func NewConversations(pool *pgxpool.Pool, budgetCap int) *Conversations {
	if budgetCap <= 0 {
		budgetCap = 1
	}
	return &Conversations{pool: pool, budgetCap: budgetCap}
}

const conversationColumns = `
	id, phone_number, control_mode, temperature, automation_budget, quote_sent,
	assigned_operator, pinned, last_inbound_at, last_outbound_at, last_greeted_on,
	version, updated_at`

func scanConversation(row pgx.Row) (lead.Conversation, error) {
	var c lead.Conversation
	err := row.Scan(
		&c.ID, &c.PhoneNumber, &c.ControlMode, &c.Temperature, &c.AutomationBudget,
		&c.QuoteSent, &c.AssignedOperator, &c.Pinned, &c.LastInboundAt,
		&c.LastOutboundAt, &c.LastGreetedOn, &c.Version, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return lead.Conversation{}, lead.ErrNotFound
	}
	if err != nil {
		return lead.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}

// Upsert returns the conversation, creating the default record on first
// contact. The no-op DO UPDATE lets RETURNING yield the existing row.
func (r *Conversations) Upsert(ctx context.Context, phone string) (lead.Conversation, error) {
	query := `
		INSERT INTO conversations (phone_number, automation_budget)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING` + conversationColumns

	return scanConversation(r.pool.QueryRow(ctx, query, phone, r.budgetCap))
}

// Get returns the conversation or lead.ErrNotFound.
func (r *Conversations) Get(ctx context.Context, phone string) (lead.Conversation, error) {
	query := `SELECT` + conversationColumns + ` FROM conversations WHERE phone_number = $1`
	return scanConversation(r.pool.QueryRow(ctx, query, phone))
}

// Commit applies the patch guarded by the version read earlier. Zero rows
// affected means a concurrent writer got there first.
func (r *Conversations) Commit(ctx context.Context, conv lead.Conversation, patch lead.Patch) error {
	sets, args := patchClauses(patch)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	args = append(args, conv.PhoneNumber, conv.Version)
	query := fmt.Sprintf(
		"UPDATE conversations SET %s WHERE phone_number = $%d AND version = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("commit conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lead.ErrStaleWrite
	}
	return nil
}

// ConsumeBudget does the check and the decrement in one statement so two
// concurrent workers can never both pass a budget of one.
func (r *Conversations) ConsumeBudget(ctx context.Context, phone string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET automation_budget = automation_budget - 1,
		    version = version + 1,
		    updated_at = now()
		WHERE phone_number = $1 AND automation_budget > 0`, phone)
	if err != nil {
		return false, fmt.Errorf("consume budget: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns conversations for the operator console: the pinned test
// thread first, then most recently active.
func (r *Conversations) List(ctx context.Context, limit int) ([]lead.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT` + conversationColumns + `
		FROM conversations
		ORDER BY pinned DESC, updated_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []lead.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// patchClauses renders the non-nil patch fields as SET clauses.
func patchClauses(patch lead.Patch) ([]string, []any) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ControlMode != nil {
		add("control_mode", *patch.ControlMode)
	}
	if patch.Temperature != nil {
		add("temperature", *patch.Temperature)
	}
	if patch.AutomationBudget != nil {
		add("automation_budget", *patch.AutomationBudget)
	}
	if patch.QuoteSent != nil {
		add("quote_sent", *patch.QuoteSent)
	}
	if patch.AssignedOperator != nil {
		add("assigned_operator", *patch.AssignedOperator)
	}
	if patch.Pinned != nil {
		add("pinned", *patch.Pinned)
	}
	if patch.LastInboundAt != nil {
		add("last_inbound_at", *patch.LastInboundAt)
	}
	if patch.LastOutboundAt != nil {
		add("last_outbound_at", *patch.LastOutboundAt)
	}
	if patch.LastGreetedOn != nil {
		add("last_greeted_on", *patch.LastGreetedOn)
	}

	return sets, args
}
