// Package lead owns the per-conversation sales state: who controls the
// thread, how qualified the lead is, and how many automated replies remain.
package lead

import (
	"errors"
	"time"
)

// ControlMode says who may currently answer a conversation.
type ControlMode string

const (
	ControlAutomated ControlMode = "automated"
	ControlHuman     ControlMode = "human"
)

// Temperature is the lead qualification level.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// rank orders temperatures for monotone escalation.
func (t Temperature) rank() int {
	switch t {
	case TemperatureWarm:
		return 1
	case TemperatureHot:
		return 2
	default:
		return 0
	}
}

// Hotter reports whether t is strictly above other.
func (t Temperature) Hotter(other Temperature) bool {
	return t.rank() > other.rank()
}

// Role identifies the author of a message.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// MessageKind is the payload type of a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
)

// Conversation is one customer thread, keyed by phone number.
type Conversation struct {
	ID               int64
	PhoneNumber      string
	ControlMode      ControlMode
	Temperature      Temperature
	AutomationBudget int
	QuoteSent        bool
	AssignedOperator string
	Pinned           bool

	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	// LastGreetedOn is the civil date (location-local, truncated to day) of the
	// most recent welcome or night notice, so first-contact payloads go out at
	// most once per day.
	LastGreetedOn *time.Time

	// Version is bumped on every committed write; commits carry the version
	// they read so concurrent writers cannot silently overwrite each other.
	Version   int64
	UpdatedAt time.Time
}

// Automated reports whether automation may reply on this conversation.
func (c Conversation) Automated() bool {
	return c.ControlMode == ControlAutomated
}

// Message is one row of the append-only conversation log.
type Message struct {
	ID                int64
	PhoneNumber       string
	PlatformMessageID string
	Role              Role
	Kind              MessageKind
	Body              string
	CreatedAt         time.Time
}

// Patch is a partial conversation update. Nil fields are left untouched.
type Patch struct {
	ControlMode      *ControlMode
	Temperature      *Temperature
	AutomationBudget *int
	QuoteSent        *bool
	AssignedOperator *string
	Pinned           *bool
	LastInboundAt    *time.Time
	LastOutboundAt   *time.Time
	LastGreetedOn    *time.Time
}

// ErrStaleWrite is returned by Store.Commit when the conversation changed
// since it was read. Callers re-read and retry once, then abandon the turn.
var ErrStaleWrite = errors.New("lead: conversation modified concurrently")

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("lead: conversation not found")
