package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator() *Calculator {
	return NewCalculator(DefaultConfig())
}

func TestQuote_SmallBotanicalPiece(t *testing.T) {
	// 30x20 at low complexity: 600 * 0.6 = 360 -> standard single session.
	c := newTestCalculator()

	q, err := c.Quote(Request{WidthCM: 30, HeightCM: 20, Complexity: ComplexityLow})
	require.NoError(t, err)

	assert.Equal(t, 1, q.TotalSessions)
	assert.Equal(t, int64(150_000), q.PricePerSession)
	assert.Equal(t, int64(150_000), q.TotalPrice)
	assert.Equal(t, BasisMeasured, q.Basis)
}

func TestQuote_LargeRealismPiece(t *testing.T) {
	// 40x20 at high complexity: 800 * 1.4 = 1120 -> ceil(1120/600) = 2 blocks.
	c := newTestCalculator()

	q, err := c.Quote(Request{WidthCM: 40, HeightCM: 20, Complexity: ComplexityHigh})
	require.NoError(t, err)

	assert.Equal(t, 2, q.TotalSessions)
	assert.Equal(t, int64(125_000), q.PricePerSession)
	assert.Equal(t, int64(250_000), q.TotalPrice)
}

func TestQuote_TierBoundariesAreInclusiveBelow(t *testing.T) {
	c := newTestCalculator()

	// Exactly 600 cm2 stays in the standard tier.
	q, err := c.Quote(Request{WidthCM: 30, HeightCM: 20, Complexity: ComplexityMedium})
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalSessions)
	assert.Equal(t, int64(150_000), q.TotalPrice)

	// Exactly 900 cm2 stays in the extended tier.
	q, err = c.Quote(Request{WidthCM: 30, HeightCM: 30, Complexity: ComplexityMedium})
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalSessions)
	assert.Equal(t, int64(200_000), q.TotalPrice)

	// One cm2 over the extended boundary moves to per-block pricing.
	q, err = c.Quote(Request{WidthCM: 53, HeightCM: 17, Complexity: ComplexityMedium})
	require.NoError(t, err)
	assert.Equal(t, 2, q.TotalSessions)
	assert.Equal(t, int64(125_000), q.PricePerSession)
}

func TestQuote_LowComplexityIsCheaperThanMedium(t *testing.T) {
	c := newTestCalculator()

	for _, dims := range []struct{ w, h float64 }{
		{35, 20}, {40, 25}, {50, 30}, {60, 40},
	} {
		low, err := c.Quote(Request{WidthCM: dims.w, HeightCM: dims.h, Complexity: ComplexityLow})
		require.NoError(t, err)
		med, err := c.Quote(Request{WidthCM: dims.w, HeightCM: dims.h, Complexity: ComplexityMedium})
		require.NoError(t, err)

		assert.LessOrEqual(t, low.TotalPrice, med.TotalPrice,
			"low complexity must never cost more than medium for %vx%v", dims.w, dims.h)
	}

	// And strictly less once the multiplier changes the tier.
	low, err := c.Quote(Request{WidthCM: 40, HeightCM: 20, Complexity: ComplexityLow})
	require.NoError(t, err)
	med, err := c.Quote(Request{WidthCM: 40, HeightCM: 20, Complexity: ComplexityMedium})
	require.NoError(t, err)
	assert.Less(t, low.TotalPrice, med.TotalPrice)
}

func TestQuote_FullSleeveMinimumSessions(t *testing.T) {
	c := newTestCalculator()

	for _, cx := range []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh} {
		q, err := c.Quote(Request{Region: "full_sleeve", Complexity: cx})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q.TotalSessions, 4, "complexity %s", cx)
		assert.Equal(t, BasisAnatomical, q.Basis)
		assert.Equal(t, int64(125_000), q.PricePerSession)
	}
}

func TestQuote_HeavyBuildAddsSession(t *testing.T) {
	c := newTestCalculator()

	avg, err := c.Quote(Request{Region: "full_back", Complexity: ComplexityHigh})
	require.NoError(t, err)
	heavy, err := c.Quote(Request{Region: "full_back", Complexity: ComplexityHigh, Build: BuildHeavy})
	require.NoError(t, err)

	assert.Equal(t, avg.TotalSessions+1, heavy.TotalSessions)
}

func TestQuote_RegionNameNormalization(t *testing.T) {
	c := newTestCalculator()

	q, err := c.Quote(Request{Region: "  Full Sleeve "})
	require.NoError(t, err)
	assert.Equal(t, BasisAnatomical, q.Basis)
}

func TestQuote_UnknownRegionFallsBackToMeasurements(t *testing.T) {
	c := newTestCalculator()

	// Unknown region with valid measurements prices as measured.
	q, err := c.Quote(Request{Region: "earlobe", WidthCM: 10, HeightCM: 10})
	require.NoError(t, err)
	assert.Equal(t, BasisMeasured, q.Basis)

	// Unknown region without measurements is an invalid request.
	_, err = c.Quote(Request{Region: "earlobe"})
	assert.ErrorIs(t, err, ErrInvalidMeasurement)
}

func TestQuote_InvalidMeasurements(t *testing.T) {
	c := newTestCalculator()

	for _, req := range []Request{
		{},
		{WidthCM: 30},
		{HeightCM: 20},
		{WidthCM: -5, HeightCM: 20},
		{WidthCM: 30, HeightCM: 0},
	} {
		_, err := c.Quote(req)
		assert.ErrorIs(t, err, ErrInvalidMeasurement)
	}
}

func TestQuote_TotalIsSessionsTimesPerSession(t *testing.T) {
	c := newTestCalculator()

	q, err := c.Quote(Request{WidthCM: 60, HeightCM: 40, Complexity: ComplexityHigh})
	require.NoError(t, err)
	assert.Equal(t, int64(q.TotalSessions)*q.PricePerSession, q.TotalPrice)
	assert.GreaterOrEqual(t, q.TotalSessions, 1)
}
