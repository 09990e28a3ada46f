package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsheriff/sheriff/core"
)

func TestStopCommandSetsForceQuitAndBroadcastsOnce(t *testing.T) {
	s, b := newTestSheriff(t)
	require.NoError(t, s.HandleInfoFrame(core.InfoFrame{UTime: 1000, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, ActualRunID: 1, PID: 123}}}))
	c, _, err := s.GetCommandByID(1)
	require.NoError(t, err)

	require.NoError(t, s.StopCommand(c))

	assert.Equal(t, 1, c.ForceQuit)
	assert.Equal(t, core.StatusTryingToStop, c.Status())
	assert.Len(t, b.publishedOrders(), 1)
}

func TestRestartCommandAlwaysIncrementsDesiredRunID(t *testing.T) {
	s, _ := newTestSheriff(t)
	require.NoError(t, s.HandleInfoFrame(core.InfoFrame{UTime: 1000, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, ActualRunID: 5, PID: 123}}}))
	c, _, err := s.GetCommandByID(1)
	require.NoError(t, err)

	require.NoError(t, s.RestartCommand(c))

	assert.Equal(t, uint32(6), c.DesiredRunID)
}

func TestScheduleCommandForRemovalMarksWhenDeputyHasReported(t *testing.T) {
	s, _ := newTestSheriff(t)
	require.NoError(t, s.HandleInfoFrame(core.InfoFrame{UTime: 1000, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, ActualRunID: 1, PID: 123}}}))
	c, _, err := s.GetCommandByID(1)
	require.NoError(t, err)

	require.NoError(t, s.ScheduleCommandForRemoval(c))

	still, _, err := s.GetCommandByID(1)
	require.NoError(t, err)
	assert.True(t, still.ScheduledForRemoval)
}

func TestSetGroupRenormalizesGroupPath(t *testing.T) {
	s, _ := newTestSheriff(t)
	c, err := s.AddCommand("host-a", "/bin/true", "nick", "web", false)
	require.NoError(t, err)

	require.NoError(t, s.SetGroup(c, "//new/group/"))

	assert.Equal(t, "new/group", c.Group)
}

func TestMoveCommandPreservesIdentityUnderFreshID(t *testing.T) {
	s, _ := newTestSheriff(t)
	c, err := s.AddCommand("host-a", "/bin/server", "api", "web", true)
	require.NoError(t, err)
	originalID := c.SheriffID

	moved, err := s.MoveCommand(c, "host-b")
	require.NoError(t, err)

	assert.NotEqual(t, originalID, moved.SheriffID)
	assert.Equal(t, "api", moved.Nickname)
	assert.Equal(t, "web", moved.Group)
	assert.True(t, moved.AutoRespawn)

	onB := s.CommandsByNickname("api")
	require.Len(t, onB, 1)
}

func TestAllMutatorsFailInObserverMode(t *testing.T) {
	s, _ := newTestSheriff(t, core.WithObserverMode(true))
	c := &core.DeputyCommand{SheriffID: 1}

	assert.ErrorIs(t, s.StartCommand(c), core.ErrObserverMode)
	assert.ErrorIs(t, s.StopCommand(c), core.ErrObserverMode)
	assert.ErrorIs(t, s.RestartCommand(c), core.ErrObserverMode)
	assert.ErrorIs(t, s.ScheduleCommandForRemoval(c), core.ErrObserverMode)
	assert.ErrorIs(t, s.SetGroup(c, "x"), core.ErrObserverMode)
	_, err := s.MoveCommand(c, "host-b")
	assert.ErrorIs(t, err, core.ErrObserverMode)
	_, err = s.AddCommand("host-a", "/bin/true", "n", "", false)
	assert.ErrorIs(t, err, core.ErrObserverMode)
}
