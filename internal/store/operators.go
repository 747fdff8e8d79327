package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Operator is a console account.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
}

// ErrOperatorNotFound is returned for unknown usernames.
var ErrOperatorNotFound = errors.New("store: operator not found")

// Operators is the console account repo.
type Operators struct {
	pool *pgxpool.Pool
}

// NewOperators creates the repo.
func NewOperators(pool *pgxpool.Pool) *Operators {
	return &Operators{pool: pool}
}

// GetByUsername looks up one account.
func (r *Operators) GetByUsername(ctx context.Context, username string) (Operator, error) {
	var op Operator
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash FROM operators WHERE username = $1`,
		username,
	).Scan(&op.ID, &op.Username, &op.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operator{}, ErrOperatorNotFound
	}
	if err != nil {
		return Operator{}, fmt.Errorf("get operator: %w", err)
	}
	return op, nil
}

// Create registers an account with an already-hashed password.
func (r *Operators) Create(ctx context.Context, username, passwordHash string) (Operator, error) {
	var op Operator
	op.Username = username
	op.PasswordHash = passwordHash
	err := r.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash)
		VALUES ($1, $2)
		RETURNING id`,
		username, passwordHash,
	).Scan(&op.ID)
	if err != nil {
		return Operator{}, fmt.Errorf("create operator: %w", err)
	}
	return op, nil
}
