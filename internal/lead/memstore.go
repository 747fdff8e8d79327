package lead

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and local development runs.
// It honors the same optimistic-concurrency semantics as the Postgres store.
type MemStore struct {
	mu        sync.Mutex
	byPhone   map[string]*Conversation
	nextID    int64
	BudgetCap int
}

// NewMemStore creates an empty in-memory store. New conversations start with
// budgetCap automated replies.
func NewMemStore(budgetCap int) *MemStore {
	return &MemStore{byPhone: map[string]*Conversation{}, nextID: 1, BudgetCap: budgetCap}
}

func (s *MemStore) Upsert(_ context.Context, phone string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byPhone[phone]; ok {
		return *c, nil
	}
	c := &Conversation{
		ID:               s.nextID,
		PhoneNumber:      phone,
		ControlMode:      ControlAutomated,
		Temperature:      TemperatureCold,
		AutomationBudget: s.BudgetCap,
		Version:          1,
		UpdatedAt:        time.Now(),
	}
	s.nextID++
	s.byPhone[phone] = c
	return *c, nil
}

func (s *MemStore) Get(_ context.Context, phone string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPhone[phone]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemStore) Commit(_ context.Context, conv Conversation, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPhone[conv.PhoneNumber]
	if !ok {
		return ErrNotFound
	}
	if c.Version != conv.Version {
		return ErrStaleWrite
	}

	if patch.ControlMode != nil {
		c.ControlMode = *patch.ControlMode
	}
	if patch.Temperature != nil {
		c.Temperature = *patch.Temperature
	}
	if patch.AutomationBudget != nil {
		c.AutomationBudget = *patch.AutomationBudget
	}
	if patch.QuoteSent != nil {
		c.QuoteSent = *patch.QuoteSent
	}
	if patch.AssignedOperator != nil {
		c.AssignedOperator = *patch.AssignedOperator
	}
	if patch.Pinned != nil {
		c.Pinned = *patch.Pinned
	}
	if patch.LastInboundAt != nil {
		c.LastInboundAt = patch.LastInboundAt
	}
	if patch.LastOutboundAt != nil {
		c.LastOutboundAt = patch.LastOutboundAt
	}
	if patch.LastGreetedOn != nil {
		c.LastGreetedOn = patch.LastGreetedOn
	}

	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) ConsumeBudget(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPhone[phone]
	if !ok {
		return false, ErrNotFound
	}
	if c.AutomationBudget <= 0 {
		return false, nil
	}
	c.AutomationBudget--
	c.Version++
	c.UpdatedAt = time.Now()
	return true, nil
}
