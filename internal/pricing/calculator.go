// Package pricing implements the studio's quoting engine: a deterministic
// mapping from body-area measurements (or named anatomical regions),
// complexity class, and client build to a session/price breakdown.
package pricing

import (
	"errors"
	"math"
	"strings"
)

// Complexity classifies the design's workload.
type Complexity string

const (
	ComplexityLow    Complexity = "low"    // botanical, line work
	ComplexityMedium Complexity = "medium" // default
	ComplexityHigh   Complexity = "high"   // realism, intricate geometry
)

// Build is the client's stature/build modifier for anatomical references.
type Build string

const (
	BuildAverage Build = "average"
	BuildHeavy   Build = "heavy"
)

// Basis records which pricing path produced a quote.
type Basis string

const (
	BasisMeasured   Basis = "measured"
	BasisAnatomical Basis = "anatomical"
)

// ErrInvalidMeasurement is returned when a measured request has missing or
// non-positive dimensions. Callers must surface a clarifying question to the
// customer, never a fabricated price.
var ErrInvalidMeasurement = errors.New("pricing: width and height must be positive")

// Request describes a single quoting invocation.
type Request struct {
	// WidthCM and HeightCM are explicit measurements in centimeters.
	// Ignored when Region names an anatomical reference.
	WidthCM  float64
	HeightCM float64

	// Region optionally names an anatomical reference ("full_sleeve",
	// "full_back", ...). When set the calculator uses the reference table
	// instead of measurements.
	Region string

	Complexity Complexity
	Build      Build
}

// Quote is the computed breakdown.
type Quote struct {
	TotalSessions   int
	PricePerSession int64 // CLP
	TotalPrice      int64 // CLP
	Basis           Basis
}

// Tiers holds the measured-path tier boundaries and session fees.
// Boundaries are inclusive below: area exactly at a boundary resolves to the
// cheaper tier.
type Tiers struct {
	StandardMaxCM2 float64 `koanf:"standard_max_cm2"` // default 600
	ExtendedMaxCM2 float64 `koanf:"extended_max_cm2"` // default 900
	BlockCM2       float64 `koanf:"block_cm2"`        // default 600

	StandardPrice int64 `koanf:"standard_price"` // P1, single standard session
	ExtendedPrice int64 `koanf:"extended_price"` // P2, single extended session
	BlockPrice    int64 `koanf:"block_price"`    // P3, per session on large projects
}

// Reference is one row of the anatomical reference table.
type Reference struct {
	AreaCM2     float64 `koanf:"area_cm2"`
	MinSessions int     `koanf:"min_sessions"`
}

// Config carries every pricing constant. Prices and boundaries are
// configuration, not logic: changing them must never require touching the
// calculator.
type Config struct {
	Tiers      Tiers                `koanf:"tiers"`
	References map[string]Reference `koanf:"references"`

	LowMultiplier  float64 `koanf:"low_multiplier"`  // default 0.6
	HighMultiplier float64 `koanf:"high_multiplier"` // default 1.4

	// HeavyBuildExtraSessions is added on anatomical projects for heavy-build
	// clients (larger real surface than the reference assumes).
	HeavyBuildExtraSessions int `koanf:"heavy_build_extra_sessions"`

	// DepositCLP is the booking deposit ("abono"), exposed for prompt assembly.
	DepositCLP int64 `koanf:"deposit_clp"`
}

// DefaultConfig returns the studio's current campaign pricing.
func DefaultConfig() Config {
	return Config{
		Tiers: Tiers{
			StandardMaxCM2: 600,
			ExtendedMaxCM2: 900,
			BlockCM2:       600,
			StandardPrice:  150_000,
			ExtendedPrice:  200_000,
			BlockPrice:     125_000,
		},
		References: map[string]Reference{
			"full_sleeve":  {AreaCM2: 2400, MinSessions: 4},
			"full_back":    {AreaCM2: 2700, MinSessions: 4},
			"full_leg":     {AreaCM2: 3600, MinSessions: 6},
			"large_thigh":  {AreaCM2: 1200, MinSessions: 2},
			"full_forearm": {AreaCM2: 1050, MinSessions: 2},
		},
		LowMultiplier:           0.6,
		HighMultiplier:          1.4,
		HeavyBuildExtraSessions: 1,
		DepositCLP:              40_000,
	}
}

// Calculator computes quotes. It is pure and safe for concurrent use.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a calculator from the given pricing configuration.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Quote computes the breakdown for one request.
func (c *Calculator) Quote(req Request) (Quote, error) {
	if region := normalizeRegion(req.Region); region != "" {
		if ref, ok := c.cfg.References[region]; ok {
			return c.anatomicalQuote(ref, req), nil
		}
	}
	return c.measuredQuote(req)
}

func (c *Calculator) measuredQuote(req Request) (Quote, error) {
	if req.WidthCM <= 0 || req.HeightCM <= 0 {
		return Quote{}, ErrInvalidMeasurement
	}

	area := req.WidthCM * req.HeightCM * c.multiplier(req.Complexity)
	t := c.cfg.Tiers

	switch {
	case area <= t.StandardMaxCM2:
		return Quote{
			TotalSessions:   1,
			PricePerSession: t.StandardPrice,
			TotalPrice:      t.StandardPrice,
			Basis:           BasisMeasured,
		}, nil
	case area <= t.ExtendedMaxCM2:
		return Quote{
			TotalSessions:   1,
			PricePerSession: t.ExtendedPrice,
			TotalPrice:      t.ExtendedPrice,
			Basis:           BasisMeasured,
		}, nil
	default:
		sessions := int(math.Ceil(area / t.BlockCM2))
		return Quote{
			TotalSessions:   sessions,
			PricePerSession: t.BlockPrice,
			TotalPrice:      int64(sessions) * t.BlockPrice,
			Basis:           BasisMeasured,
		}, nil
	}
}

func (c *Calculator) anatomicalQuote(ref Reference, req Request) Quote {
	area := ref.AreaCM2 * c.multiplier(req.Complexity)

	sessions := int(math.Ceil(area / c.cfg.Tiers.BlockCM2))
	if req.Build == BuildHeavy {
		sessions += c.cfg.HeavyBuildExtraSessions
	}
	// The configured minimum overrides the computed count when larger.
	if sessions < ref.MinSessions {
		sessions = ref.MinSessions
	}
	if sessions < 1 {
		sessions = 1
	}

	return Quote{
		TotalSessions:   sessions,
		PricePerSession: c.cfg.Tiers.BlockPrice,
		TotalPrice:      int64(sessions) * c.cfg.Tiers.BlockPrice,
		Basis:           BasisAnatomical,
	}
}

func (c *Calculator) multiplier(cx Complexity) float64 {
	switch cx {
	case ComplexityLow:
		return c.cfg.LowMultiplier
	case ComplexityHigh:
		return c.cfg.HighMultiplier
	default:
		return 1.0
	}
}

func normalizeRegion(region string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	return strings.ReplaceAll(region, " ", "_")
}
