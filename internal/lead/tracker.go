package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is the persistence contract the tracker needs. Implemented by the
// Postgres store; tests use an in-memory fake.
type Store interface {
	// Upsert returns the conversation for phone, creating a default record on
	// first contact.
	Upsert(ctx context.Context, phone string) (Conversation, error)
	// Get returns the conversation or ErrNotFound.
	Get(ctx context.Context, phone string) (Conversation, error)
	// Commit applies patch if the stored version still equals conv.Version,
	// otherwise returns ErrStaleWrite.
	Commit(ctx context.Context, conv Conversation, patch Patch) error
	// ConsumeBudget atomically decrements the automation budget. It reports
	// false when the budget was already exhausted; the check and the decrement
	// are a single statement so two concurrent workers cannot both pass.
	ConsumeBudget(ctx context.Context, phone string) (bool, error)
}

// TrackerConfig carries the tracker's tunables.
type TrackerConfig struct {
	// BudgetCap is the automation budget assigned to new conversations.
	BudgetCap int `koanf:"budget_cap"`
	// WarmAfterMessages raises a cold lead to warm once the customer has sent
	// this many messages.
	WarmAfterMessages int `koanf:"warm_after_messages"`
}

// DefaultTrackerConfig mirrors the studio's production settings: one
// automated reply budget refill per inbound, warm after a short exchange.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{BudgetCap: 1, WarmAfterMessages: 3}
}

// Tracker is the lead state machine over a Store.
//
// Transitions:
//
//	automated -> human: escalation, budget exhaustion, or operator takeover
//	human -> automated: operator release only, never automatic
type Tracker struct {
	store Store
	cfg   TrackerConfig
	log   zerolog.Logger
}

// NewTracker creates a tracker.
func NewTracker(store Store, cfg TrackerConfig, log zerolog.Logger) *Tracker {
	if cfg.BudgetCap <= 0 {
		cfg.BudgetCap = DefaultTrackerConfig().BudgetCap
	}
	return &Tracker{store: store, cfg: cfg, log: log.With().Str("component", "lead_tracker").Logger()}
}

// BudgetCap exposes the configured cap (used when refilling on new turns).
func (t *Tracker) BudgetCap() int { return t.cfg.BudgetCap }

// Load returns the conversation, creating a default record on first contact.
func (t *Tracker) Load(ctx context.Context, phone string) (Conversation, error) {
	conv, err := t.store.Upsert(ctx, phone)
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation %s: %w", phone, err)
	}
	return conv, nil
}

// Commit applies a patch with one stale-write retry. On a second stale write
// the turn is abandoned: the next inbound message re-evaluates from fresh
// state, which is safer than double-firing.
func (t *Tracker) Commit(ctx context.Context, conv Conversation, patch Patch) error {
	err := t.store.Commit(ctx, conv, patch)
	if err == nil {
		return nil
	}
	if err != ErrStaleWrite {
		return fmt.Errorf("commit conversation %s: %w", conv.PhoneNumber, err)
	}

	fresh, rerr := t.store.Get(ctx, conv.PhoneNumber)
	if rerr != nil {
		return fmt.Errorf("re-read after stale write for %s: %w", conv.PhoneNumber, rerr)
	}
	if err := t.store.Commit(ctx, fresh, patch); err != nil {
		t.log.Warn().Str("phone", conv.PhoneNumber).Err(err).
			Msg("abandoning commit after stale-write retry")
		return fmt.Errorf("commit retry for %s: %w", conv.PhoneNumber, err)
	}
	return nil
}

// ConsumeBudget atomically spends one automated reply. A false result means
// automation must fall silent and control passes to a human.
func (t *Tracker) ConsumeBudget(ctx context.Context, phone string) (bool, error) {
	ok, err := t.store.ConsumeBudget(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("consume budget for %s: %w", phone, err)
	}
	if !ok {
		t.log.Info().Str("phone", phone).Msg("automation budget exhausted, handing to human")
		if err := t.forceHuman(ctx, phone); err != nil {
			return false, err
		}
	}
	return ok, nil
}

// Escalate moves the conversation to human control at hot temperature.
// Human control is sticky: only Release undoes it.
func (t *Tracker) Escalate(ctx context.Context, conv Conversation) error {
	mode := ControlHuman
	temp := TemperatureHot
	return t.Commit(ctx, conv, Patch{ControlMode: &mode, Temperature: &temp})
}

// Takeover is the explicit operator action claiming the thread.
func (t *Tracker) Takeover(ctx context.Context, phone, operator string) error {
	conv, err := t.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	mode := ControlHuman
	return t.Commit(ctx, conv, Patch{ControlMode: &mode, AssignedOperator: &operator})
}

// Release returns the thread to automation and refills the budget. This is
// the only human-to-automated transition.
func (t *Tracker) Release(ctx context.Context, phone string) error {
	conv, err := t.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	mode := ControlAutomated
	budget := t.cfg.BudgetCap
	nobody := ""
	return t.Commit(ctx, conv, Patch{ControlMode: &mode, AutomationBudget: &budget, AssignedOperator: &nobody})
}

// RaiseTemperature applies an automatic, monotone temperature bump. Lowering
// is only possible through SetTemperature (operator override).
func (t *Tracker) RaiseTemperature(ctx context.Context, conv Conversation, temp Temperature) error {
	if !temp.Hotter(conv.Temperature) {
		return nil
	}
	return t.Commit(ctx, conv, Patch{Temperature: &temp})
}

// SetTemperature is the operator override; it may move in either direction.
func (t *Tracker) SetTemperature(ctx context.Context, phone string, temp Temperature) error {
	conv, err := t.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	return t.Commit(ctx, conv, Patch{Temperature: &temp})
}

// TemperatureForTurn computes the automatic classification for a turn:
// price-interest wording makes a lead warm immediately, otherwise enough
// back-and-forth does.
func (t *Tracker) TemperatureForTurn(conv Conversation, customerMessages int, priceInterest bool) Temperature {
	if priceInterest {
		return TemperatureWarm
	}
	if t.cfg.WarmAfterMessages > 0 && customerMessages >= t.cfg.WarmAfterMessages {
		return TemperatureWarm
	}
	return conv.Temperature
}

// TouchInbound stamps the customer's latest message time and returns the
// refreshed conversation.
func (t *Tracker) TouchInbound(ctx context.Context, conv Conversation, at time.Time) (Conversation, error) {
	if err := t.Commit(ctx, conv, Patch{LastInboundAt: &at}); err != nil {
		return Conversation{}, err
	}
	return t.store.Get(ctx, conv.PhoneNumber)
}

// TouchOutbound stamps the latest delivery time.
func (t *Tracker) TouchOutbound(ctx context.Context, phone string, at time.Time) error {
	conv, err := t.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	return t.Commit(ctx, conv, Patch{LastOutboundAt: &at})
}

// MarkQuoteSent records that a priced reply was actually delivered, so the
// escalation path no longer depends on re-parsing generated text.
func (t *Tracker) MarkQuoteSent(ctx context.Context, conv Conversation) error {
	sent := true
	return t.Commit(ctx, conv, Patch{QuoteSent: &sent})
}

func (t *Tracker) forceHuman(ctx context.Context, phone string) error {
	conv, err := t.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	if conv.ControlMode == ControlHuman {
		return nil
	}
	mode := ControlHuman
	return t.Commit(ctx, conv, Patch{ControlMode: &mode})
}
