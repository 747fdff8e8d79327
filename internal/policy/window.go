// Package policy computes the day/night operating phase and the platform's
// 24-hour customer service window. Both are pure functions of timestamps so
// the orchestrator's branching stays testable.
package policy

import (
	"fmt"
	"time"
)

// Phase classifies the business's local civil time.
type Phase string

const (
	PhaseDay   Phase = "day"
	PhaseNight Phase = "night"
)

// Config holds the operating-hours window and timezone.
type Config struct {
	// OpenHour/CloseHour bound the day phase as [OpenHour, CloseHour) in
	// local civil time.
	OpenHour  int    `koanf:"open_hour"`
	CloseHour int    `koanf:"close_hour"`
	Timezone  string `koanf:"timezone"`

	// ReplyWindow is the messaging platform's reply window measured from the
	// customer's last inbound message.
	ReplyWindow time.Duration `koanf:"reply_window"`
}

// DefaultConfig returns the studio's hours: 09:00-20:00 Santiago time, with
// WhatsApp's 24-hour service window.
func DefaultConfig() Config {
	return Config{
		OpenHour:    9,
		CloseHour:   20,
		Timezone:    "America/Santiago",
		ReplyWindow: 24 * time.Hour,
	}
}

// Clock abstracts time.Now so policies can be tested at fixed instants.
type Clock func() time.Time

// Policy evaluates phases and messaging windows.
type Policy struct {
	cfg Config
	loc *time.Location
	now Clock
}

// New creates a policy. The timezone must resolve; a service replying on the
// wrong civil day is worse than failing at startup.
func New(cfg Config, now Clock) (*Policy, error) {
	if cfg.ReplyWindow <= 0 {
		cfg.ReplyWindow = DefaultConfig().ReplyWindow
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultConfig().Timezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Policy{cfg: cfg, loc: loc, now: now}, nil
}

// PhaseAt classifies an instant against the operating hours.
func (p *Policy) PhaseAt(t time.Time) Phase {
	hour := t.In(p.loc).Hour()
	if hour >= p.cfg.OpenHour && hour < p.cfg.CloseHour {
		return PhaseDay
	}
	return PhaseNight
}

// PhaseNow classifies the current instant.
func (p *Policy) PhaseNow() Phase {
	return p.PhaseAt(p.now())
}

// CivilDate truncates an instant to its local civil date, for once-per-day
// first-contact payloads.
func (p *Policy) CivilDate(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

// Window describes the remaining reply window for a conversation.
type Window struct {
	Remaining time.Duration
	// Open is true while remaining time is strictly positive; once it hits
	// zero the standard channel is blocked and delivery must fall back.
	Open bool
}

// MessagingWindow computes the window from the customer's last inbound
// message. A conversation with no inbound yet has no open window: the
// platform only permits replies. Evaluated at send time, not decision time.
func (p *Policy) MessagingWindow(lastInbound *time.Time) Window {
	if lastInbound == nil || lastInbound.IsZero() {
		return Window{Remaining: 0, Open: false}
	}
	remaining := p.cfg.ReplyWindow - p.now().Sub(*lastInbound)
	return Window{Remaining: remaining, Open: remaining > 0}
}
