// Package orchestrator sequences the per-message decision flow: dedupe,
// control-mode gate, escalation, day/night behavior, generation or pricing,
// and paced delivery under the platform's reply window.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gfrancoarq/franco-orrego/internal/compose"
	"github.com/gfrancoarq/franco-orrego/internal/escalation"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/llm"
	"github.com/gfrancoarq/franco-orrego/internal/policy"
	"github.com/gfrancoarq/franco-orrego/internal/pricing"
	"github.com/gfrancoarq/franco-orrego/internal/prompts"
	"github.com/gfrancoarq/franco-orrego/internal/quote"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// Action says how a turn was resolved.
type Action string

const (
	ActionDuplicate   Action = "duplicate"    // replayed delivery, no side effects
	ActionSilent      Action = "silent"       // human-controlled or budget exhausted
	ActionEscalated   Action = "escalated"    // handed to a human, notice sent
	ActionNightNotice Action = "night_notice" // closed-for-the-night canned reply
	ActionWelcome     Action = "welcome"      // first-contact payload for the day
	ActionReplied     Action = "replied"      // automated reply delivered
	ActionFallback    Action = "fallback"     // reply window closed, template path
)

// Outcome reports what one inbound turn did.
type Outcome struct {
	Action       Action
	Reason       string
	QuoteSent    bool // a priced reply went out this turn
	WindowClosed bool
	Delivered    int
	Failed       int
}

// MessageLog is the slice of the store the orchestrator needs.
type MessageLog interface {
	Insert(ctx context.Context, msg lead.Message) (bool, error)
	InsertOutbound(ctx context.Context, phone string, role lead.Role, kind lead.MessageKind, body string) error
	InsertSystemNote(ctx context.Context, phone, note string) error
	Recent(ctx context.Context, phone string, limit int) ([]lead.Message, error)
	CountByRole(ctx context.Context, phone string, role lead.Role) (int, error)
}

// Generator produces a model reply with failover already applied.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// PriceExtractor turns free-form customer text into a pricing request.
type PriceExtractor interface {
	PriceRequest(ctx context.Context, customerText string) (pricing.Request, error)
}

// Delivery is the paced multi-chunk path.
type Delivery interface {
	Deliver(ctx context.Context, to, body string) compose.Result
}

// CannedSender covers the single-shot canned payloads and the fallback
// template path.
type CannedSender interface {
	SendText(ctx context.Context, to, body string) error
	SendAudioLink(ctx context.Context, to, link string) error
	SendTemplate(ctx context.Context, to, templateName, langCode string) error
}

// Texts are the fixed customer-facing payloads.
type Texts struct {
	WelcomeText     string
	WelcomeAudioURL string
	NightNotice     string
	ReopenTemplate  string
	NeedInfoText    string
	DegradedText    string
}

// Config carries the orchestrator's own knobs.
type Config struct {
	Prompts       *prompts.Builder
	HistoryWindow int
	Texts         Texts
}

// Orchestrator is the root decision engine. All collaborators are explicit
// dependencies so tests can substitute doubles.
type Orchestrator struct {
	tracker   *lead.Tracker
	messages  MessageLog
	detector  *quote.Detector
	escalator *escalation.Engine
	policy    *policy.Policy
	generator Generator
	extractor PriceExtractor
	calc      *pricing.Calculator
	pacer     Delivery
	canned    CannedSender
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// New wires the orchestrator.
func New(
	tracker *lead.Tracker,
	messages MessageLog,
	detector *quote.Detector,
	escalator *escalation.Engine,
	pol *policy.Policy,
	generator Generator,
	extractor PriceExtractor,
	calc *pricing.Calculator,
	pacer Delivery,
	canned CannedSender,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.NewBuilder("", pricing.DefaultConfig())
	}
	return &Orchestrator{
		tracker:   tracker,
		messages:  messages,
		detector:  detector,
		escalator: escalator,
		policy:    pol,
		generator: generator,
		extractor: extractor,
		calc:      calc,
		pacer:     pacer,
		canned:    canned,
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
	}
}

// Handle processes one inbound message end to end. It is idempotent on the
// platform message id: a replayed delivery stores nothing and sends nothing.
func (o *Orchestrator) Handle(ctx context.Context, in whatsapp.Inbound) (Outcome, error) {
	log := o.log.With().Str("phone", in.From).Str("message_id", in.PlatformMessageID).Logger()

	body := in.Text
	kind := lead.KindText
	switch in.Type {
	case "image":
		kind = lead.KindImage
		body = "[IMAGEN]"
	case "audio":
		kind = lead.KindAudio
		body = "[AUDIO]"
	}

	inserted, err := o.messages.Insert(ctx, lead.Message{
		PhoneNumber:       in.From,
		PlatformMessageID: in.PlatformMessageID,
		Role:              lead.RoleCustomer,
		Kind:              kind,
		Body:              body,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("persist inbound: %w", err)
	}
	if !inserted {
		log.Info().Msg("duplicate delivery ignored")
		return Outcome{Action: ActionDuplicate}, nil
	}

	conv, err := o.tracker.Load(ctx, in.From)
	if err != nil {
		return Outcome{}, err
	}
	conv, err = o.tracker.TouchInbound(ctx, conv, in.Timestamp)
	if err != nil {
		return Outcome{}, err
	}

	// Sticky human control: no automated component may emit anything.
	if !conv.Automated() {
		log.Debug().Msg("conversation under human control, staying silent")
		return Outcome{Action: ActionSilent, Reason: "human_control"}, nil
	}

	history, err := o.messages.Recent(ctx, in.From, o.cfg.HistoryWindow)
	if err != nil {
		return Outcome{}, fmt.Errorf("load history: %w", err)
	}
	quoteSent := o.detector.Sent(conv, history)

	// Escalation runs before any generation attempt, image or not: an
	// escalating message must never also trigger an automated reply.
	if o.escalator.ShouldEscalate(quoteSent, in.Text) {
		return o.escalate(ctx, conv, log)
	}

	// First contact of the civil day gets the canned day/night payload.
	today := o.policy.CivilDate(o.now())
	if conv.LastGreetedOn == nil || conv.LastGreetedOn.Before(today) {
		if o.policy.PhaseNow() == policy.PhaseNight {
			return o.nightNotice(ctx, conv, today)
		}
		return o.welcome(ctx, conv, today)
	}

	// Spend one automated reply; exhaustion hands the thread to a human.
	ok, err := o.tracker.ConsumeBudget(ctx, in.From)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		log.Info().Msg("automation budget exhausted")
		return Outcome{Action: ActionSilent, Reason: "budget_exhausted"}, nil
	}

	// Quoting path when the customer gave dimensions; model path otherwise.
	if !quoteSent && hasMeasurements(in.Text) {
		if outcome, handled := o.tryQuote(ctx, conv, in, log); handled {
			return outcome, nil
		}
	}

	reply, err := o.generator.Generate(ctx, llm.Request{
		System:         o.cfg.Prompts.System(prompts.TurnState{QuoteSent: quoteSent, CustomerPhone: in.From}),
		History:        toTurns(history),
		UserText:       body,
		PreferFallback: kind == lead.KindImage,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generation failed on all providers, degrading to canned text")
		reply = o.cfg.Texts.DegradedText
	}

	return o.deliverReply(ctx, conv, reply, quoteSentThisTurn(reply, o.detector))
}

// escalate flips the thread to human control and sends the single fixed
// handoff notice in place of any generated text.
func (o *Orchestrator) escalate(ctx context.Context, conv lead.Conversation, log zerolog.Logger) (Outcome, error) {
	if err := o.tracker.Escalate(ctx, conv); err != nil {
		return Outcome{}, err
	}
	log.Info().Msg("lead escalated to human control")

	notice := o.escalator.HandoffNotice()
	if err := o.sendCannedText(ctx, conv.PhoneNumber, notice); err != nil {
		// The state flip already happened; the operator sees the failure.
		return Outcome{Action: ActionEscalated, Failed: 1}, nil
	}
	return Outcome{Action: ActionEscalated, Delivered: 1}, nil
}

func (o *Orchestrator) nightNotice(ctx context.Context, conv lead.Conversation, today time.Time) (Outcome, error) {
	if err := o.tracker.Commit(ctx, conv, lead.Patch{LastGreetedOn: &today}); err != nil {
		return Outcome{}, err
	}
	if err := o.sendCannedText(ctx, conv.PhoneNumber, o.cfg.Texts.NightNotice); err != nil {
		return Outcome{Action: ActionNightNotice, Failed: 1}, nil
	}
	return Outcome{Action: ActionNightNotice, Delivered: 1}, nil
}

func (o *Orchestrator) welcome(ctx context.Context, conv lead.Conversation, today time.Time) (Outcome, error) {
	if err := o.tracker.Commit(ctx, conv, lead.Patch{LastGreetedOn: &today}); err != nil {
		return Outcome{}, err
	}

	if link := o.cfg.Texts.WelcomeAudioURL; link != "" {
		if err := o.canned.SendAudioLink(ctx, conv.PhoneNumber, link); err != nil {
			o.noteDeliveryFailure(ctx, conv.PhoneNumber, err)
			return Outcome{Action: ActionWelcome, Failed: 1}, nil
		}
		o.recordOutbound(ctx, conv.PhoneNumber, lead.KindAudio, "[AUDIO: bienvenida]")
		return Outcome{Action: ActionWelcome, Delivered: 1}, nil
	}

	if err := o.sendCannedText(ctx, conv.PhoneNumber, o.cfg.Texts.WelcomeText); err != nil {
		return Outcome{Action: ActionWelcome, Failed: 1}, nil
	}
	return Outcome{Action: ActionWelcome, Delivered: 1}, nil
}

// tryQuote runs the deterministic pricing path. handled is false when the
// extractor could not produce anything usable and the model path should run
// instead.
func (o *Orchestrator) tryQuote(ctx context.Context, conv lead.Conversation, in whatsapp.Inbound, log zerolog.Logger) (Outcome, bool) {
	req, err := o.extractor.PriceRequest(ctx, in.Text)
	if err != nil {
		log.Warn().Err(err).Msg("price extraction failed, falling through to generation")
		return Outcome{}, false
	}

	q, err := o.calc.Quote(req)
	if err != nil {
		// Never fabricate a number: ask for what is missing.
		outcome, derr := o.deliverReply(ctx, conv, o.cfg.Texts.NeedInfoText, false)
		if derr != nil {
			return Outcome{}, false
		}
		return outcome, true
	}

	outcome, derr := o.deliverReply(ctx, conv, o.quoteMessage(q), true)
	if derr != nil {
		return Outcome{}, false
	}
	return outcome, true
}

// deliverReply sends an automated reply through the paced path, honoring the
// reply window at send time, and records the outcome.
func (o *Orchestrator) deliverReply(ctx context.Context, conv lead.Conversation, reply string, quoted bool) (Outcome, error) {
	phone := conv.PhoneNumber

	window := o.policy.MessagingWindow(conv.LastInboundAt)
	if !window.Open {
		// Standard channel is blocked; only an approved template may go out.
		if err := o.canned.SendTemplate(ctx, phone, o.cfg.Texts.ReopenTemplate, ""); err != nil {
			o.noteDeliveryFailure(ctx, phone, err)
			return Outcome{Action: ActionFallback, WindowClosed: true, Failed: 1}, nil
		}
		o.messages.InsertSystemNote(ctx, phone,
			"Ventana de 24h cerrada: se envió plantilla de reapertura en lugar de la respuesta.")
		return Outcome{Action: ActionFallback, WindowClosed: true, Delivered: 1}, nil
	}

	result := o.pacer.Deliver(ctx, phone, reply)
	if result.FirstErr != nil {
		o.noteDeliveryFailure(ctx, phone, result.FirstErr)
	}

	outcome := Outcome{
		Action:    ActionReplied,
		QuoteSent: quoted,
		Delivered: result.Delivered,
		Failed:    result.Failed,
	}
	if result.Delivered == 0 {
		return outcome, nil
	}

	o.recordOutbound(ctx, phone, lead.KindText, reply)
	if quoted {
		if fresh, err := o.tracker.Load(ctx, phone); err == nil {
			if err := o.tracker.MarkQuoteSent(ctx, fresh); err != nil {
				o.log.Warn().Err(err).Str("phone", phone).Msg("failed to persist quote flag")
			}
		}
	}
	o.bumpTemperature(ctx, phone, reply)
	return outcome, nil
}

// sendCannedText sends one fixed text bubble and records it.
func (o *Orchestrator) sendCannedText(ctx context.Context, phone, body string) error {
	if err := o.canned.SendText(ctx, phone, body); err != nil {
		o.noteDeliveryFailure(ctx, phone, err)
		return err
	}
	o.recordOutbound(ctx, phone, lead.KindText, body)
	return nil
}

func (o *Orchestrator) recordOutbound(ctx context.Context, phone string, kind lead.MessageKind, body string) {
	if err := o.messages.InsertOutbound(ctx, phone, lead.RoleAgent, kind, body); err != nil {
		o.log.Error().Err(err).Str("phone", phone).Msg("failed to record outbound message")
	}
	if err := o.tracker.TouchOutbound(ctx, phone, o.now()); err != nil {
		o.log.Warn().Err(err).Str("phone", phone).Msg("failed to stamp outbound time")
	}
}

// noteDeliveryFailure makes a send failure visible to operators on the
// thread itself. No automatic retry: a duplicate bubble is worse than a gap.
func (o *Orchestrator) noteDeliveryFailure(ctx context.Context, phone string, cause error) {
	note := "Fallo de entrega: " + cause.Error()
	if err := o.messages.InsertSystemNote(ctx, phone, note); err != nil {
		o.log.Error().Err(err).Str("phone", phone).Msg("failed to record delivery failure note")
	}
}

func (o *Orchestrator) bumpTemperature(ctx context.Context, phone, lastReply string) {
	conv, err := o.tracker.Load(ctx, phone)
	if err != nil {
		return
	}
	count, err := o.messages.CountByRole(ctx, phone, lead.RoleCustomer)
	if err != nil {
		return
	}
	temp := o.tracker.TemperatureForTurn(conv, count, strings.Contains(lastReply, "$"))
	if err := o.tracker.RaiseTemperature(ctx, conv, temp); err != nil {
		o.log.Warn().Err(err).Str("phone", phone).Msg("failed to raise temperature")
	}
}

// quoteMessage renders the calculator's breakdown as a customer-facing
// reply. Single-session tiers read as one price; projects read per session.
func (o *Orchestrator) quoteMessage(q pricing.Quote) string {
	if q.TotalSessions == 1 {
		return fmt.Sprintf(
			"Tu proyecto queda en una sesión de %s 🤘\n\nAseguras el valor con el abono y coordinamos fecha. ¿Te tinca?",
			formatCLP(q.TotalPrice))
	}
	return fmt.Sprintf(
		"Tu proyecto queda en %d sesiones de %s cada una (total %s).\n\nNo pagas todo de una: puedes hacer una sesión al mes para que sea liviano. ¿Te tinca?",
		q.TotalSessions, formatCLP(q.PricePerSession), formatCLP(q.TotalPrice))
}

// formatCLP renders Chilean pesos with dot thousand separators: $150.000.
func formatCLP(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	b.WriteByte('$')
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return b.String()
}

var measurementsRe = regexp.MustCompile(`(?i)\d+\s*(?:cm)?\s*[x×]\s*\d+|\d+\s*cm`)

// hasMeasurements reports whether the text carries explicit dimensions
// ("30x20", "15 cm"), which routes the turn to the deterministic quoting
// path instead of free generation.
func hasMeasurements(text string) bool {
	return measurementsRe.MatchString(text)
}

func toTurns(history []lead.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case lead.RoleCustomer:
			turns = append(turns, llm.Turn{Role: llm.RoleCustomer, Content: msg.Body})
		case lead.RoleAgent:
			turns = append(turns, llm.Turn{Role: llm.RoleAgent, Content: msg.Body})
		}
	}
	return turns
}

// quoteSentThisTurn applies the same textual heuristic to a generated reply
// so model-authored quotes also set the explicit flag.
func quoteSentThisTurn(reply string, detector *quote.Detector) bool {
	return detector.Sent(lead.Conversation{}, []lead.Message{{Role: lead.RoleAgent, Body: reply}})
}
