package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Template is an operator-curated canned payload ("disparador"): fixed text
// or a link to pre-recorded audio.
type Template struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"` // text | audio
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Templates is the canned payload repo.
type Templates struct {
	pool *pgxpool.Pool
}

// NewTemplates creates the repo.
func NewTemplates(pool *pgxpool.Pool) *Templates {
	return &Templates{pool: pool}
}

// List returns all templates, oldest first.
func (r *Templates) List(ctx context.Context) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, label, kind, content, created_at FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Label, &t.Kind, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create stores a new template and returns it with its id.
func (r *Templates) Create(ctx context.Context, t Template) (Template, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO templates (label, kind, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		t.Label, t.Kind, t.Content,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Template{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// Delete removes a template.
func (r *Templates) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
