package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsheriff/sheriff/core"
)

// newTestSheriff wires a fake bus and a fake clock pinned near the small,
// hard-coded UTime values most tests use on InfoFrame/OrdersFrame literals,
// so the non-observer staleness check in HandleInfoFrame doesn't reject
// them against the real wall clock. Tests exercising staleness explicitly
// override the clock via opts.
func newTestSheriff(t *testing.T, opts ...core.Option) (*core.Sheriff, *fakeBus) {
	t.Helper()
	b := newFakeBus()
	allOpts := append([]core.Option{core.WithBus(b), core.WithClock(newFakeClock(1000))}, opts...)
	s, err := core.NewSheriff(allOpts...)
	require.NoError(t, err)
	return s, b
}

func TestNewSheriffRequiresBus(t *testing.T) {
	_, err := core.NewSheriff()
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestAddCommandAssignsUniqueNonZeroIDs(t *testing.T) {
	s, _ := newTestSheriff(t)

	seen := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		c, err := s.AddCommand("host-a", "/bin/true", "nick", "", false)
		require.NoError(t, err)
		assert.NotZero(t, c.SheriffID)
		assert.False(t, seen[c.SheriffID], "sheriff_id %d was assigned twice", c.SheriffID)
		seen[c.SheriffID] = true
	}
}

func TestObserverModeRejectsMutators(t *testing.T) {
	s, _ := newTestSheriff(t, core.WithObserverMode(true))

	_, err := s.AddCommand("host-a", "/bin/true", "nick", "", false)
	assert.ErrorIs(t, err, core.ErrObserverMode)

	err = s.SendOrders()
	assert.ErrorIs(t, err, core.ErrObserverMode)
}

func TestHandleInfoFrameCreatesDeputyAndMergesCommands(t *testing.T) {
	s, _ := newTestSheriff(t)

	err := s.HandleInfoFrame(core.InfoFrame{
		UTime: 1000, Host: "host-a",
		Cmds: []core.InfoCmd{{SheriffID: 1, Name: "/bin/true", ActualRunID: 1, PID: 42}},
	})
	require.NoError(t, err)

	d, err := s.FindDeputy("host-a")
	require.NoError(t, err)
	c, ok := d.CommandByID(1)
	require.True(t, ok)
	assert.Equal(t, core.StatusRunning, c.Status())
}

func TestFirstContactAdoptsPreExistingCommandOntoReportedSheriffID(t *testing.T) {
	s, _ := newTestSheriff(t)

	local, err := s.AddCommand("host-a", "/bin/true", "nick", "group/a", false)
	require.NoError(t, err)
	originalID := local.SheriffID

	err = s.HandleInfoFrame(core.InfoFrame{
		UTime: 1000, Host: "host-a",
		Cmds: []core.InfoCmd{{
			SheriffID: originalID + 12345, Name: "/bin/true", Nickname: "nick",
			Group: "group/a", ActualRunID: 1, PID: 99,
		}},
	})
	require.NoError(t, err)

	d, _ := s.FindDeputy("host-a")
	assert.Equal(t, 1, len(d.Commands()), "adoption must re-key the existing command rather than create a duplicate")
	adopted, ok := d.CommandByID(originalID + 12345)
	require.True(t, ok)
	assert.Equal(t, "nick", adopted.Nickname)
}

func TestNonObserverModeDropsStaleInfoFrames(t *testing.T) {
	clock := newFakeClock(1_000_000_000)
	s, _ := newTestSheriff(t, core.WithClock(clock), core.WithObserverStaleThreshold(30_000_000_000))

	staleUTime := clock.Now().UnixMicro() - 60_000_000 // 60s old, microseconds
	err := s.HandleInfoFrame(core.InfoFrame{UTime: staleUTime, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, PID: 1}}})
	require.NoError(t, err)

	d, err := s.FindDeputy("host-a")
	assert.Error(t, err, "a stale frame should be dropped before any deputy is created")
	assert.Nil(t, d)
}

func TestObserverModeAcceptsStaleInfoFrames(t *testing.T) {
	clock := newFakeClock(1_000_000_000)
	s, _ := newTestSheriff(t, core.WithObserverMode(true), core.WithClock(clock), core.WithObserverStaleThreshold(30_000_000_000))

	staleUTime := clock.Now().UnixMicro() - 60_000_000 // 60s old, microseconds
	err := s.HandleInfoFrame(core.InfoFrame{UTime: staleUTime, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, PID: 1}}})
	require.NoError(t, err)

	d, err := s.FindDeputy("host-a")
	require.NoError(t, err, "an observer must accept old frames since it replays historical recordings")
	assert.NotNil(t, d)
}

func TestStartCommandBroadcastsOrdersForItsDeputy(t *testing.T) {
	s, b := newTestSheriff(t)
	require.NoError(t, s.HandleInfoFrame(core.InfoFrame{UTime: 1000, Host: "host-a", Cmds: []core.InfoCmd{{SheriffID: 1, ActualRunID: 1, PID: 0}}}))
	c, _, err := s.GetCommandByID(1)
	require.NoError(t, err)

	require.NoError(t, s.StartCommand(c))

	orders := b.publishedOrders()
	require.NotEmpty(t, orders)
	assert.Equal(t, "host-a", orders[len(orders)-1].Host)
}

func TestScheduleCommandForRemovalDeletesImmediatelyIfNeverContacted(t *testing.T) {
	s, _ := newTestSheriff(t)
	c, err := s.AddCommand("host-a", "/bin/true", "nick", "", false)
	require.NoError(t, err)

	require.NoError(t, s.ScheduleCommandForRemoval(c))

	_, _, err = s.GetCommandByID(c.SheriffID)
	assert.ErrorIs(t, err, core.ErrCommandNotFound)
}

func TestPurgeUselessDeputiesRemovesEmptyDeputies(t *testing.T) {
	s, _ := newTestSheriff(t)
	require.NoError(t, s.HandleInfoFrame(core.InfoFrame{UTime: 1000, Host: "host-a", Cmds: nil}))

	s.PurgeUselessDeputies()

	_, err := s.FindDeputy("host-a")
	assert.ErrorIs(t, err, core.ErrDeputyNotFound)
}

func TestHandleOrdersFrameIsIgnoredOutsideObserverMode(t *testing.T) {
	s, _ := newTestSheriff(t)

	err := s.HandleOrdersFrame(core.OrdersFrame{Host: "host-a", Cmds: []core.OrdersCmd{{SheriffID: 1, DesiredRunID: 1}}})
	require.NoError(t, err)

	_, err = s.FindDeputy("host-a")
	assert.ErrorIs(t, err, core.ErrDeputyNotFound, "a non-observer sheriff must not create state from an orders frame")
}

func TestHandleOrdersFrameMergesDesiredStateInObserverMode(t *testing.T) {
	s, _ := newTestSheriff(t, core.WithObserverMode(true))

	err := s.HandleOrdersFrame(core.OrdersFrame{Host: "host-a", Cmds: []core.OrdersCmd{{SheriffID: 1, DesiredRunID: 3}}})
	require.NoError(t, err)

	d, err := s.FindDeputy("host-a")
	require.NoError(t, err)
	c, ok := d.CommandByID(1)
	require.True(t, ok)
	assert.Equal(t, uint32(3), c.DesiredRunID)
}

func TestSendOrdersSkipsDeputiesThatHaveNeverReported(t *testing.T) {
	s, b := newTestSheriff(t)
	_, err := s.AddCommand("host-a", "/bin/true", "nick", "", false)
	require.NoError(t, err)

	require.NoError(t, s.SendOrders())

	assert.Empty(t, b.publishedOrders(), "a deputy with last_update_utime == 0 must not receive an orders frame")
}

func TestCommandsByGroupUsesPrefixMatching(t *testing.T) {
	s, _ := newTestSheriff(t)
	_, err := s.AddCommand("host-a", "/bin/a", "a", "web/api", false)
	require.NoError(t, err)
	_, err = s.AddCommand("host-a", "/bin/b", "b", "web/apiv2", false)
	require.NoError(t, err)

	matches := s.CommandsByGroup("web/api")
	assert.Len(t, matches, 1)
}

func TestAddScriptRejectsDuplicateName(t *testing.T) {
	s, _ := newTestSheriff(t)
	_, err := s.AddScript("deploy", nil)
	require.NoError(t, err)

	_, err = s.AddScript("deploy", nil)
	assert.ErrorIs(t, err, core.ErrScriptAlreadyExists)
}

func TestLoadConfigRoundTripsThroughSaveConfig(t *testing.T) {
	s, _ := newTestSheriff(t)
	tree := &core.ConfigTree{
		Root: &core.ConfigGroupNode{
			Groups: []*core.ConfigGroupNode{
				{Name: "web", Commands: []*core.ConfigCommandNode{
					{Host: "host-a", Exec: "/bin/server", Nickname: "api", AutoRespawn: true},
				}},
			},
		},
		Scripts: []*core.ConfigScriptNode{
			{Name: "restart-all", Actions: []core.Action{{Kind: core.ActionRestart, IdentType: core.IdentEverything}}},
		},
	}

	require.NoError(t, s.LoadConfig(tree, false))

	matches := s.CommandsByNickname("api")
	require.Len(t, matches, 1)
	assert.Equal(t, "web", matches[0].Group)
	assert.True(t, matches[0].AutoRespawn)

	script, ok := s.ScriptByName("restart-all")
	require.True(t, ok)
	assert.Len(t, script.Actions, 1)

	saved := s.SaveConfig()
	require.Len(t, saved.Root.Groups, 1)
	assert.Equal(t, "web", saved.Root.Groups[0].Name)
	require.Len(t, saved.Root.Groups[0].Commands, 1)
	assert.Equal(t, "api", saved.Root.Groups[0].Commands[0].Nickname)
}

func TestLoadConfigMergeSkipsIdenticalExistingCommands(t *testing.T) {
	s, _ := newTestSheriff(t)
	_, err := s.AddCommand("host-a", "/bin/server", "api", "web", false)
	require.NoError(t, err)

	tree := &core.ConfigTree{Root: &core.ConfigGroupNode{
		Groups: []*core.ConfigGroupNode{
			{Name: "web", Commands: []*core.ConfigCommandNode{{Host: "host-a", Exec: "/bin/server", Nickname: "api"}}},
		},
	}}

	require.NoError(t, s.LoadConfig(tree, true))

	assert.Len(t, s.CommandsByNickname("api"), 1, "merge_with_existing should skip a candidate identical to an existing command")
}
