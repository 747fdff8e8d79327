package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/gfrancoarq/franco-orrego/internal/pricing"
)

// extractionInstructions make the model emit machine-readable pricing fields
// instead of prose. Models still produce broken JSON often enough that the
// parse path runs a repair pass.
const extractionInstructions = `Extrae los datos de cotización del mensaje del cliente.
Responde SOLO con JSON, sin texto adicional, con esta forma:
{"region":"","width_cm":0,"height_cm":0,"complexity":"low|medium|high","build":"average|heavy"}
Usa region solo para zonas completas (full_sleeve, full_back, full_leg, large_thigh, full_forearm).
Deja los campos que no se mencionan en cero o vacíos.`

type extractedFields struct {
	Region     string  `json:"region"`
	WidthCM    float64 `json:"width_cm"`
	HeightCM   float64 `json:"height_cm"`
	Complexity string  `json:"complexity"`
	Build      string  `json:"build"`
}

// Extractor pulls a pricing.Request out of free-form customer text.
type Extractor struct {
	client Client
}

// NewExtractor creates an extractor over any completion client.
func NewExtractor(client Client) *Extractor {
	return &Extractor{client: client}
}

// PriceRequest asks the model for structured fields and parses them,
// repairing malformed JSON when needed.
func (e *Extractor) PriceRequest(ctx context.Context, customerText string) (pricing.Request, error) {
	raw, err := e.client.Generate(ctx, extractionInstructions, nil, customerText)
	if err != nil {
		return pricing.Request{}, fmt.Errorf("extract price request: %w", err)
	}
	return ParsePriceRequest(raw)
}

// ParsePriceRequest parses model output into a pricing request. It tolerates
// markdown fences and malformed JSON via a repair pass.
func ParsePriceRequest(raw string) (pricing.Request, error) {
	cleaned := stripCodeFences(raw)

	var fields extractedFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(cleaned)
		if rerr != nil {
			return pricing.Request{}, fmt.Errorf("parse extraction output: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
			return pricing.Request{}, fmt.Errorf("parse repaired extraction output: %w", err)
		}
	}

	return pricing.Request{
		Region:     fields.Region,
		WidthCM:    fields.WidthCM,
		HeightCM:   fields.HeightCM,
		Complexity: parseComplexity(fields.Complexity),
		Build:      parseBuild(fields.Build),
	}, nil
}

func parseComplexity(s string) pricing.Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "baja":
		return pricing.ComplexityLow
	case "high", "alta":
		return pricing.ComplexityHigh
	default:
		return pricing.ComplexityMedium
	}
}

func parseBuild(s string) pricing.Build {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heavy", "grande", "corpulento":
		return pricing.BuildHeavy
	default:
		return pricing.BuildAverage
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
