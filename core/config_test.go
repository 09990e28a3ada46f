package core_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsheriff/sheriff/core"
)

func TestNewSheriffAppliesDefaults(t *testing.T) {
	s, err := core.NewSheriff(core.WithBus(newFakeBus()))
	require.NoError(t, err)

	cfg := s.Config()
	assert.Equal(t, "sheriff", cfg.Name)
	assert.Equal(t, time.Second, cfg.OrdersInterval)
	assert.Equal(t, 30*time.Second, cfg.ObserverStaleThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.ScriptActionRateLimit)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Clock)
	assert.NotNil(t, cfg.Tracer)
}

func TestWithNameRejectsEmpty(t *testing.T) {
	_, err := core.NewSheriff(core.WithBus(newFakeBus()), core.WithName(""))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestWithOrdersIntervalRejectsNonPositive(t *testing.T) {
	_, err := core.NewSheriff(core.WithBus(newFakeBus()), core.WithOrdersInterval(0))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestWithClockRejectsNil(t *testing.T) {
	_, err := core.NewSheriff(core.WithBus(newFakeBus()), core.WithClock(nil))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestWithLoggerTagsComponentAwareLogger(t *testing.T) {
	var buf bytes.Buffer
	base := core.NewProductionLogger("test", "text", false, &buf)
	s, err := core.NewSheriff(core.WithBus(newFakeBus()), core.WithLogger(base))
	require.NoError(t, err)
	require.NotNil(t, s.Config().Logger)

	s.Config().Logger.Info("hello", nil)
	assert.Contains(t, buf.String(), "[test/core/sheriff]")
}

func TestWithNilLoggerFallsBackToNoOp(t *testing.T) {
	s, err := core.NewSheriff(core.WithBus(newFakeBus()), core.WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, s.Config().Logger)
}

func TestOptionsApplyInOrderAndLaterWins(t *testing.T) {
	s, err := core.NewSheriff(
		core.WithBus(newFakeBus()),
		core.WithName("first"),
		core.WithName("second"),
	)
	require.NoError(t, err)
	assert.Equal(t, "second", s.Config().Name)
}
