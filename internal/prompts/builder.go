// Package prompts assembles the system instructions sent to the completion
// providers. The persona text is configurable; the pricing facts and
// per-turn state are injected here so the model never improvises them.
package prompts

import (
	"fmt"
	"strings"

	"github.com/gfrancoarq/franco-orrego/internal/pricing"
)

// Builder renders system prompts for conversation turns.
type Builder struct {
	persona string
	pricing pricing.Config
}

// NewBuilder creates a builder. An empty persona falls back to the baseline
// studio assistant.
func NewBuilder(persona string, pricingCfg pricing.Config) *Builder {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}
	return &Builder{persona: persona, pricing: pricingCfg}
}

const defaultPersona = `Eres Alicia, la asistente del estudio de tatuajes de Franco Orrego en Santiago de Chile.
Hablas en chileno, cercana y breve. Respondes en una o dos frases cortas.
Nunca inventas precios: si el cliente no da medidas, pides alto y ancho en centímetros.
Nunca prometes fechas ni horas; de la agenda se encarga Mari.`

// TurnState is the per-turn context injected under the persona.
type TurnState struct {
	// QuoteSent tells the model not to re-quote a price already delivered.
	QuoteSent bool
	// CustomerPhone identifies the thread so the model does not mix leads up.
	CustomerPhone string
}

// System renders the full system prompt for one turn.
func (b *Builder) System(state TurnState) string {
	var sb strings.Builder
	sb.WriteString(b.persona)
	sb.WriteString("\n\n")
	sb.WriteString(b.pricingFacts())
	sb.WriteString("\n\n")
	sb.WriteString(b.turnFacts(state))
	return sb.String()
}

// pricingFacts states the deposit and tier structure as fixed facts. Prices
// come from configuration so a rate change never needs a prompt edit.
func (b *Builder) pricingFacts() string {
	t := b.pricing.Tiers
	return fmt.Sprintf(
		"DATOS FIJOS (no los alteres):\n"+
			"- Abono para reservar: %s (se descuenta del total).\n"+
			"- Hasta %dcm² es una sesión de %s; hasta %dcm² es una sesión de %s.\n"+
			"- Proyectos más grandes se dividen en sesiones de %s cada una.",
		formatCLP(b.pricing.DepositCLP),
		int(t.StandardMaxCM2), formatCLP(t.StandardPrice),
		int(t.ExtendedMaxCM2), formatCLP(t.ExtendedPrice),
		formatCLP(t.BlockPrice),
	)
}

func (b *Builder) turnFacts(state TurnState) string {
	quoted := "NO"
	if state.QuoteSent {
		quoted = "SÍ"
	}
	return fmt.Sprintf("ESTADO: cotización ya enviada: %s. Cliente: %s.",
		quoted, state.CustomerPhone)
}

// formatCLP renders Chilean pesos with dot thousand separators.
func formatCLP(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	var sb strings.Builder
	sb.WriteByte('$')
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(d)
	}
	return sb.String()
}
