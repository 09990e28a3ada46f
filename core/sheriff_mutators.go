package core

import (
	"context"
	"fmt"
)

// AddCommand creates a new command on the named deputy (creating the
// deputy if needed) and assigns it a fresh, globally unique sheriff_id.
// Fails in observer mode (spec.md §4.3, §8 scenario 1).
func (s *Sheriff) AddCommand(deputyName, name, nickname, group string, autoRespawn bool) (*DeputyCommand, error) {
	if err := s.requireNotObserver("Sheriff.AddCommand"); err != nil {
		return nil, err
	}
	id, err := s.allocateCommandID()
	if err != nil {
		return nil, err
	}
	c := &DeputyCommand{
		SheriffID:   id,
		Name:        name,
		Nickname:    nickname,
		Group:       NormalizeGroup(group),
		AutoRespawn: autoRespawn,
	}
	d := s.deputyOrCreate(deputyName)
	d.addCommand(c)

	s.cfg.Logger.Info("command added", map[string]interface{}{
		"deputy": deputyName, "sheriff_id": id, "nickname": nickname,
	})
	s.events.Emit(EventCommandAdded, d, c)
	return c, nil
}

// StartCommand requests (re)start (spec.md §4.1 "start"), emits
// command-status-changed if the derived status changed, and then
// broadcasts the owning deputy's orders (spec.md §5: "a local mutator
// emits its status-change event before broadcasting orders").
func (s *Sheriff) StartCommand(c *DeputyCommand) error {
	if err := s.requireNotObserver("Sheriff.StartCommand"); err != nil {
		return err
	}
	before := c.Status()
	c.Start()
	s.afterLocalMutation(c, before)
	return nil
}

// StopCommand requests the deputy stop the command.
func (s *Sheriff) StopCommand(c *DeputyCommand) error {
	if err := s.requireNotObserver("Sheriff.StopCommand"); err != nil {
		return err
	}
	before := c.Status()
	c.Stop()
	s.afterLocalMutation(c, before)
	return nil
}

// RestartCommand unconditionally requests a new run.
func (s *Sheriff) RestartCommand(c *DeputyCommand) error {
	if err := s.requireNotObserver("Sheriff.RestartCommand"); err != nil {
		return err
	}
	before := c.Status()
	c.Restart()
	s.afterLocalMutation(c, before)
	return nil
}

// afterLocalMutation emits command-status-changed if the mutation changed
// the derived status, then broadcasts the owning deputy's orders —
// matching spec.md §5's ordering guarantee.
func (s *Sheriff) afterLocalMutation(c *DeputyCommand, before Status) {
	after := c.Status()
	if before != after {
		s.events.Emit(EventCommandStatusChanged, c, before, after)
		s.cfg.Tracer.RecordStatusChange(s.deputyNameOf(c), before, after)
	}
	if d, err := s.GetCommandDeputy(c); err == nil {
		_ = s.sendOrdersFor(d)
	}
}

func (s *Sheriff) deputyNameOf(c *DeputyCommand) string {
	if d, err := s.GetCommandDeputy(c); err == nil {
		return d.Name
	}
	return ""
}

// ScheduleCommandForRemoval marks a command for removal, or deletes it
// immediately if its deputy has never reported in (spec.md §4.2, §4.3).
func (s *Sheriff) ScheduleCommandForRemoval(c *DeputyCommand) error {
	if err := s.requireNotObserver("Sheriff.ScheduleCommandForRemoval"); err != nil {
		return err
	}
	d, err := s.GetCommandDeputy(c)
	if err != nil {
		return err
	}
	before := c.Status()
	removedImmediately := d.LastUpdateUTime == 0
	d.scheduleForRemoval(c.SheriffID)
	if removedImmediately {
		s.events.Emit(EventCommandRemoved, d, c, before)
		s.purgeDeputyIfUseless(d)
		return nil
	}
	after := c.Status()
	if before != after {
		s.events.Emit(EventCommandStatusChanged, c, before, after)
	}
	return s.sendOrdersFor(d)
}

// SetGroup renames a command's group and emits command-group-changed.
func (s *Sheriff) SetGroup(c *DeputyCommand, group string) error {
	if err := s.requireNotObserver("Sheriff.SetGroup"); err != nil {
		return err
	}
	c.Group = NormalizeGroup(group)
	s.events.Emit(EventCommandGroupChanged, c)
	if d, err := s.GetCommandDeputy(c); err == nil {
		return s.sendOrdersFor(d)
	}
	return nil
}

// MoveCommand relocates a command to a different deputy. Implemented as
// schedule-for-removal + add-command with the same identity fields
// (spec.md §4.3 "Move command to deputy"); the new command receives a
// fresh sheriff_id.
func (s *Sheriff) MoveCommand(c *DeputyCommand, newDeputyName string) (*DeputyCommand, error) {
	if err := s.requireNotObserver("Sheriff.MoveCommand"); err != nil {
		return nil, err
	}
	name, nickname, group, autoRespawn := c.Name, c.Nickname, c.Group, c.AutoRespawn
	if err := s.ScheduleCommandForRemoval(c); err != nil {
		return nil, err
	}
	return s.AddCommand(newDeputyName, name, nickname, group, autoRespawn)
}

// PurgeUselessDeputies deletes every deputy whose command map is empty or
// consists entirely of commands scheduled for removal (spec.md §4.3).
func (s *Sheriff) PurgeUselessDeputies() {
	for name, d := range s.deputies {
		if d.IsEmpty() {
			delete(s.deputies, name)
		}
	}
}

func (s *Sheriff) purgeDeputyIfUseless(d *Deputy) {
	if d.IsEmpty() {
		delete(s.deputies, d.Name)
	}
}

// sendOrdersFor publishes one deputy's orders frame (used by mutators, so
// local intent is broadcast immediately, and by SendOrders). Like the
// periodic broadcast, it publishes nothing for a deputy that has never
// reported in (last_update_utime == 0, spec.md §4.3).
func (s *Sheriff) sendOrdersFor(d *Deputy) error {
	if s.cfg.IsObserver {
		return newError("Sheriff.sendOrdersFor", "observer", d.Name, ErrObserverMode)
	}
	if d.LastUpdateUTime == 0 {
		return nil // nothing has ever heard from this deputy; nothing to send yet
	}
	frame := d.buildOrders(s.Now().UnixMicro(), s.identity)
	ctx, end := s.cfg.Tracer.StartSpan(context.Background(), fmt.Sprintf("sheriff.PublishOrders.%s", d.Name))
	defer end()
	return s.cfg.Bus.PublishOrders(ctx, frame)
}
