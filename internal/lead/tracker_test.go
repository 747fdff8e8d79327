package lead

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, cap int) (*Tracker, *MemStore) {
	t.Helper()
	store := NewMemStore(cap)
	return NewTracker(store, TrackerConfig{BudgetCap: cap, WarmAfterMessages: 3}, zerolog.Nop()), store
}

func TestLoad_CreatesDefaultConversation(t *testing.T) {
	tracker, _ := newTestTracker(t, 1)

	conv, err := tracker.Load(context.Background(), "+56911111111")
	require.NoError(t, err)

	assert.Equal(t, ControlAutomated, conv.ControlMode)
	assert.Equal(t, TemperatureCold, conv.Temperature)
	assert.Equal(t, 1, conv.AutomationBudget)
	assert.False(t, conv.QuoteSent)
}

func TestLoad_IsIdempotent(t *testing.T) {
	tracker, _ := newTestTracker(t, 1)
	ctx := context.Background()

	first, err := tracker.Load(ctx, "+56911111111")
	require.NoError(t, err)
	second, err := tracker.Load(ctx, "+56911111111")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestEscalate_SetsHumanAndHot(t *testing.T) {
	tracker, store := newTestTracker(t, 1)
	ctx := context.Background()

	conv, err := tracker.Load(ctx, "+56922222222")
	require.NoError(t, err)
	require.NoError(t, tracker.Escalate(ctx, conv))

	got, err := store.Get(ctx, "+56922222222")
	require.NoError(t, err)
	assert.Equal(t, ControlHuman, got.ControlMode)
	assert.Equal(t, TemperatureHot, got.Temperature)
}

func TestHumanControlIsSticky(t *testing.T) {
	tracker, store := newTestTracker(t, 5)
	ctx := context.Background()

	conv, err := tracker.Load(ctx, "+56933333333")
	require.NoError(t, err)
	require.NoError(t, tracker.Escalate(ctx, conv))

	// Budget consumption and temperature bumps never reopen automation.
	_, err = tracker.ConsumeBudget(ctx, "+56933333333")
	require.NoError(t, err)
	got, err := store.Get(ctx, "+56933333333")
	require.NoError(t, err)
	assert.Equal(t, ControlHuman, got.ControlMode)

	// Only an explicit release flips it back.
	require.NoError(t, tracker.Release(ctx, "+56933333333"))
	got, err = store.Get(ctx, "+56933333333")
	require.NoError(t, err)
	assert.Equal(t, ControlAutomated, got.ControlMode)
	assert.Equal(t, 5, got.AutomationBudget)
}

func TestConsumeBudget_ExhaustionForcesHuman(t *testing.T) {
	tracker, store := newTestTracker(t, 1)
	ctx := context.Background()

	_, err := tracker.Load(ctx, "+56944444444")
	require.NoError(t, err)

	ok, err := tracker.ConsumeBudget(ctx, "+56944444444")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.ConsumeBudget(ctx, "+56944444444")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "+56944444444")
	require.NoError(t, err)
	assert.Equal(t, ControlHuman, got.ControlMode)
}

func TestConsumeBudget_ConcurrentWorkersCannotBothPass(t *testing.T) {
	tracker, _ := newTestTracker(t, 1)
	ctx := context.Background()

	_, err := tracker.Load(ctx, "+56955555555")
	require.NoError(t, err)

	const workers = 8
	granted := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.ConsumeBudget(ctx, "+56955555555")
			require.NoError(t, err)
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	passes := 0
	for ok := range granted {
		if ok {
			passes++
		}
	}
	assert.Equal(t, 1, passes, "exactly one worker may spend a budget of 1")
}

func TestCommit_RetriesOnceOnStaleWrite(t *testing.T) {
	tracker, store := newTestTracker(t, 1)
	ctx := context.Background()

	conv, err := tracker.Load(ctx, "+56966666666")
	require.NoError(t, err)

	// Another writer bumps the version underneath us.
	other, err := store.Get(ctx, "+56966666666")
	require.NoError(t, err)
	warm := TemperatureWarm
	require.NoError(t, store.Commit(ctx, other, Patch{Temperature: &warm}))

	// The stale commit still lands via the re-read retry.
	hot := TemperatureHot
	require.NoError(t, tracker.Commit(ctx, conv, Patch{Temperature: &hot}))

	got, err := store.Get(ctx, "+56966666666")
	require.NoError(t, err)
	assert.Equal(t, TemperatureHot, got.Temperature)
}

func TestRaiseTemperature_IsMonotone(t *testing.T) {
	tracker, store := newTestTracker(t, 1)
	ctx := context.Background()

	conv, err := tracker.Load(ctx, "+56977777777")
	require.NoError(t, err)
	require.NoError(t, tracker.Escalate(ctx, conv))

	// An automatic warm bump cannot cool a hot lead.
	conv, err = store.Get(ctx, "+56977777777")
	require.NoError(t, err)
	require.NoError(t, tracker.RaiseTemperature(ctx, conv, TemperatureWarm))

	got, err := store.Get(ctx, "+56977777777")
	require.NoError(t, err)
	assert.Equal(t, TemperatureHot, got.Temperature)

	// The operator override may.
	require.NoError(t, tracker.SetTemperature(ctx, "+56977777777", TemperatureCold))
	got, err = store.Get(ctx, "+56977777777")
	require.NoError(t, err)
	assert.Equal(t, TemperatureCold, got.Temperature)
}

func TestTemperatureForTurn(t *testing.T) {
	tracker, _ := newTestTracker(t, 1)
	conv := Conversation{Temperature: TemperatureCold}

	assert.Equal(t, TemperatureWarm, tracker.TemperatureForTurn(conv, 1, true))
	assert.Equal(t, TemperatureCold, tracker.TemperatureForTurn(conv, 2, false))
	assert.Equal(t, TemperatureWarm, tracker.TemperatureForTurn(conv, 3, false))
}
