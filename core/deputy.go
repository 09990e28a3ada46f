package core

// StatusChange is a (command, old_status, new_status) tuple emitted by a
// merge operation, per spec.md §4.2. Either status may be absent — Added
// is true when the command is new (old_status is None in spec.md), Removed
// is true when the command ceased to exist (new_status is None).
type StatusChange struct {
	Command *DeputyCommand
	Old     Status
	New     Status
	Added   bool
	Removed bool
}

// Deputy is a collection of DeputyCommand entries keyed by sheriff_id, plus
// per-host telemetry (spec.md §3).
type Deputy struct {
	Name string

	commands map[uint32]*DeputyCommand

	LastUpdateUTime   int64 // microseconds; 0 until first info received
	CPULoad           float64
	PhysMemTotalBytes uint64
	PhysMemFreeBytes  uint64

	Variables map[string]string
}

// NewDeputy constructs an empty Deputy for the given host name.
func NewDeputy(name string) *Deputy {
	return &Deputy{
		Name:      name,
		commands:  make(map[uint32]*DeputyCommand),
		Variables: make(map[string]string),
	}
}

// Commands returns the live command map. Iteration order is irrelevant per
// spec.md §3; callers must not mutate the returned map's keys.
func (d *Deputy) Commands() map[uint32]*DeputyCommand {
	return d.commands
}

// CommandByID looks up a command by sheriff_id.
func (d *Deputy) CommandByID(sheriffID uint32) (*DeputyCommand, bool) {
	c, ok := d.commands[sheriffID]
	return c, ok
}

// addCommand inserts a pre-built command, keyed by its sheriff_id. Callers
// (Sheriff.AddCommand, merge code) are responsible for sheriff_id
// uniqueness across the whole fleet.
func (d *Deputy) addCommand(c *DeputyCommand) {
	d.commands[c.SheriffID] = c
}

// removeCommand deletes a command by sheriff_id.
func (d *Deputy) removeCommand(sheriffID uint32) {
	delete(d.commands, sheriffID)
}

// IsEmpty reports whether the deputy has no commands, or only commands
// scheduled for removal (spec.md §4.3 "purge useless deputies").
func (d *Deputy) IsEmpty() bool {
	for _, c := range d.commands {
		if !c.ScheduledForRemoval {
			return false
		}
	}
	return true
}

// IsStale reports whether this deputy has not sent an info frame within
// threshold of now. Supplements the original's sheriff_gtk staleness
// indicator (SPEC_FULL.md §9) without any UI attached.
func (d *Deputy) IsStale(now int64, thresholdMicros int64) bool {
	if d.LastUpdateUTime == 0 {
		return true
	}
	return now-d.LastUpdateUTime > thresholdMicros
}

// mergeInfo applies an inbound info frame (spec.md §4.2 "On inbound info
// frame"). Returns the ordered list of status-change tuples, in the order
// commands appear in the frame (spec.md §5 ordering guarantee).
func (d *Deputy) mergeInfo(frame InfoFrame) []StatusChange {
	var changes []StatusChange
	seen := make(map[uint32]bool, len(frame.Cmds))

	for _, ic := range frame.Cmds {
		seen[ic.SheriffID] = true

		existing, ok := d.commands[ic.SheriffID]
		if ok {
			oldStatus := existing.Status()
			existing.PID = ic.PID
			existing.ActualRunID = ic.ActualRunID
			existing.ExitCode = ic.ExitCode
			existing.CPUUsage = ic.CPUUsage
			existing.MemVsizeBytes = ic.MemVsizeBytes
			existing.MemRSSBytes = ic.MemRSSBytes
			existing.UpdatedFromInfo = true
			applyPinningRule(existing)
			newStatus := existing.Status()
			if oldStatus != newStatus {
				changes = append(changes, StatusChange{Command: existing, Old: oldStatus, New: newStatus})
			}
			continue
		}

		// Unknown sheriff_id: adopt the deputy's state as desired.
		created := &DeputyCommand{
			SheriffID:       ic.SheriffID,
			Name:            ic.Name,
			Nickname:        ic.Nickname,
			Group:           NormalizeGroup(ic.Group),
			AutoRespawn:     ic.AutoRespawn,
			DesiredRunID:    ic.ActualRunID,
			ActualRunID:     ic.ActualRunID,
			PID:             ic.PID,
			ExitCode:        ic.ExitCode,
			CPUUsage:        ic.CPUUsage,
			MemVsizeBytes:   ic.MemVsizeBytes,
			MemRSSBytes:     ic.MemRSSBytes,
			UpdatedFromInfo: true,
		}
		applyPinningRule(created)
		d.addCommand(created)
		changes = append(changes, StatusChange{Command: created, Added: true, New: created.Status()})
	}

	// Remove commands confirmed gone: scheduled for removal AND absent
	// from this frame (spec.md §4.2 step 2).
	for id, c := range d.commands {
		if c.ScheduledForRemoval && !seen[id] {
			changes = append(changes, StatusChange{Command: c, Old: c.Status(), Removed: true})
			d.removeCommand(id)
		}
	}

	d.CPULoad = frame.CPULoad
	d.PhysMemTotalBytes = frame.PhysMemTotalBytes
	d.PhysMemFreeBytes = frame.PhysMemFreeBytes
	mergeVariables(d.Variables, frame.Variables)

	return changes
}

// applyPinningRule implements spec.md §4.2's post-update rule: a completed,
// non-respawn, non-force-quit command is pinned so a deputy restart does
// not silently re-run it.
func applyPinningRule(c *DeputyCommand) {
	if c.PID == 0 && c.ActualRunID == c.DesiredRunID && !c.AutoRespawn && c.ForceQuit == 0 {
		c.ForceQuit = 1
	}
}

// mergeOrders applies an inbound orders frame from another sheriff
// (spec.md §4.2 "On inbound orders frame"), meaningful only in observer
// mode. Overwrites desired-state fields rather than actual-state fields.
func (d *Deputy) mergeOrders(frame OrdersFrame) []StatusChange {
	var changes []StatusChange
	seen := make(map[uint32]bool, len(frame.Cmds))

	for _, oc := range frame.Cmds {
		seen[oc.SheriffID] = true

		existing, ok := d.commands[oc.SheriffID]
		if ok {
			oldStatus := existing.Status()
			existing.Name = oc.Name
			existing.Nickname = oc.Nickname
			existing.Group = NormalizeGroup(oc.Group)
			existing.DesiredRunID = oc.DesiredRunID
			existing.ForceQuit = oc.ForceQuit
			existing.AutoRespawn = oc.AutoRespawn
			newStatus := existing.Status()
			if oldStatus != newStatus {
				changes = append(changes, StatusChange{Command: existing, Old: oldStatus, New: newStatus})
			}
			continue
		}

		created := &DeputyCommand{
			SheriffID:    oc.SheriffID,
			Name:         oc.Name,
			Nickname:     oc.Nickname,
			Group:        NormalizeGroup(oc.Group),
			DesiredRunID: oc.DesiredRunID,
			ForceQuit:    oc.ForceQuit,
			AutoRespawn:  oc.AutoRespawn,
		}
		d.addCommand(created)
		changes = append(changes, StatusChange{Command: created, Added: true, New: created.Status()})
	}

	// Any local command absent from the frame is marked for removal, not
	// deleted outright (spec.md §4.2).
	for id, c := range d.commands {
		if !seen[id] && !c.ScheduledForRemoval {
			oldStatus := c.Status()
			c.ScheduledForRemoval = true
			newStatus := c.Status()
			if oldStatus != newStatus {
				changes = append(changes, StatusChange{Command: c, Old: oldStatus, New: newStatus})
			}
		}
	}

	mergeVariables(d.Variables, frame.varsMap())
	return changes
}

// varsMap reconstructs a name->value map from the parallel VarNames/VarVals
// slices carried on the wire (spec.md §6).
func (f OrdersFrame) varsMap() map[string]string {
	m := make(map[string]string, len(f.VarNames))
	for i, name := range f.VarNames {
		if i < len(f.VarVals) {
			m[name] = f.VarVals[i]
		}
	}
	return m
}

// mergeVariables applies last-writer-wins overwrite of inbound variables
// into dst. spec.md §9 flags variable-propagation semantics as an open
// question the source never resolved ("TODO update variables"); this is
// the documented decision (see SPEC_FULL.md §11).
func mergeVariables(dst map[string]string, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// scheduleForRemoval marks a command for removal, or deletes it
// immediately if this deputy has never been heard from (spec.md §4.2
// "Schedule for removal (local)").
func (d *Deputy) scheduleForRemoval(sheriffID uint32) bool {
	c, ok := d.commands[sheriffID]
	if !ok {
		return false
	}
	if d.LastUpdateUTime == 0 {
		d.removeCommand(sheriffID)
		return true
	}
	c.ScheduledForRemoval = true
	return true
}

// buildOrders constructs the outbound orders frame for this deputy
// (spec.md §4.2 "Build orders frame"): every command not scheduled for
// removal, projecting the desired-state fields.
func (d *Deputy) buildOrders(utime int64, sheriffName string) OrdersFrame {
	frame := OrdersFrame{
		UTime:       utime,
		Host:        d.Name,
		SheriffName: sheriffName,
	}
	for _, c := range d.commands {
		if c.ScheduledForRemoval {
			continue
		}
		frame.Cmds = append(frame.Cmds, OrdersCmd{
			SheriffID:    c.SheriffID,
			Name:         c.Name,
			Nickname:     c.Nickname,
			Group:        c.Group,
			DesiredRunID: c.DesiredRunID,
			ForceQuit:    c.ForceQuit,
			AutoRespawn:  c.AutoRespawn,
		})
	}
	frame.NCmds = len(frame.Cmds)
	for name, val := range d.Variables {
		frame.VarNames = append(frame.VarNames, name)
		frame.VarVals = append(frame.VarVals, val)
	}
	return frame
}
