// Package llm wraps the completion providers behind a small client
// interface, with provider failover and structured extraction of pricing
// fields from free-form customer text.
package llm

import "context"

// TurnRole identifies who authored a history turn.
type TurnRole string

const (
	RoleCustomer TurnRole = "customer"
	RoleAgent    TurnRole = "agent"
)

// Turn is one prior message given to the model as context.
type Turn struct {
	Role    TurnRole
	Content string
}

// Request is one completion invocation.
type Request struct {
	System   string
	History  []Turn
	UserText string
	// PreferFallback routes the turn straight to the fallback provider
	// (image turns: only the fallback model handles vision context).
	PreferFallback bool
}

// Client generates a reply from system instructions, history, and the
// latest customer text. Providers are treated as unreliable; callers must
// be prepared to degrade to canned text.
type Client interface {
	Generate(ctx context.Context, system string, history []Turn, userText string) (string, error)
}
