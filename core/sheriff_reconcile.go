package core

import (
	"context"
	"fmt"
	"time"
)

// HandleInfoFrame merges an inbound PMD_INFO frame into the reported
// deputy's state (spec.md §4.2), performing first-contact adoption
// (spec.md §4.3) before the merge if this is the deputy's first info
// frame, and emitting the events documented in spec.md §4.3.
//
// Malformed frames are the Bus/wire layer's concern (spec.md §7: "logged
// and dropped; the handler returns cleanly") — by the time a frame reaches
// here it has already decoded successfully. A failure merging one
// deputy's frame must never block others (spec.md §7); HandleInfoFrame
// only ever touches the single named deputy, so that property holds by
// construction as long as callers invoke it once per inbound frame.
func (s *Sheriff) HandleInfoFrame(frame InfoFrame) error {
	_, end := s.cfg.Tracer.StartSpan(context.Background(), "sheriff.HandleInfoFrame")
	defer end()

	if !s.cfg.IsObserver {
		age := s.Now().Sub(time.UnixMicro(frame.UTime))
		if age > s.cfg.ObserverStaleThreshold {
			s.cfg.Logger.Debug("dropping stale info frame", map[string]interface{}{
				"host": frame.Host, "age_ms": age.Milliseconds(),
			})
			return nil
		}
	}

	d := s.deputyOrCreate(frame.Host)
	if d.LastUpdateUTime == 0 {
		s.adoptPreExistingCommands(d, frame)
	}

	changes := d.mergeInfo(frame)
	d.LastUpdateUTime = frame.UTime

	s.emitStatusChanges(d, changes)
	s.events.Emit(EventDeputyInfoReceived, d)
	return nil
}

// adoptPreExistingCommands implements spec.md §4.3 "First-contact
// adoption": for each locally-queued command on this deputy (created via
// config load or AddCommand while the deputy was offline), find a reported
// command with an identical (name, nickname, group, auto_respawn) tuple
// whose sheriff_id is not already in use elsewhere, and re-key the local
// command onto that sheriff_id. This prevents a duplicate entry from being
// created for the same logical command when mergeInfo runs immediately
// after.
func (s *Sheriff) adoptPreExistingCommands(d *Deputy, frame InfoFrame) {
	if len(d.commands) == 0 {
		return
	}

	type identity struct{ name, nickname, group string; autoRespawn bool }
	reportedByIdentity := make(map[identity]InfoCmd, len(frame.Cmds))
	for _, ic := range frame.Cmds {
		reportedByIdentity[identity{ic.Name, ic.Nickname, NormalizeGroup(ic.Group), ic.AutoRespawn}] = ic
	}

	for oldID, local := range d.commands {
		key := identity{local.Name, local.Nickname, local.Group, local.AutoRespawn}
		reported, ok := reportedByIdentity[key]
		if !ok {
			continue
		}
		if reported.SheriffID == oldID {
			continue
		}
		if s.isIDInUse(reported.SheriffID) {
			continue
		}
		delete(d.commands, oldID)
		local.SheriffID = reported.SheriffID
		d.commands[reported.SheriffID] = local
	}
}

// emitStatusChanges translates the ordered StatusChange list from a merge
// into the named events of spec.md §4.3, in frame order.
func (s *Sheriff) emitStatusChanges(d *Deputy, changes []StatusChange) {
	for _, ch := range changes {
		switch {
		case ch.Added:
			s.events.Emit(EventCommandAdded, d, ch.Command)
		case ch.Removed:
			s.events.Emit(EventCommandRemoved, d, ch.Command, ch.Old)
		case ch.Old != ch.New:
			s.events.Emit(EventCommandStatusChanged, ch.Command, ch.Old, ch.New)
			s.cfg.Tracer.RecordStatusChange(d.Name, ch.Old, ch.New)
		}
	}
}

// HandleOrdersFrame merges an inbound PMD_ORDERS frame from another
// sheriff. Meaningful only in observer mode (spec.md §4.2, §4.3); silently
// ignored otherwise.
func (s *Sheriff) HandleOrdersFrame(frame OrdersFrame) error {
	if !s.cfg.IsObserver {
		return nil
	}
	_, end := s.cfg.Tracer.StartSpan(context.Background(), "sheriff.HandleOrdersFrame")
	defer end()

	d := s.deputyOrCreate(frame.Host)
	changes := d.mergeOrders(frame)
	s.emitStatusChanges(d, changes)
	return nil
}

// SendOrders publishes an orders frame to every deputy that has reported
// in at least once (spec.md §4.3: "only to those with
// last_update_utime > 0"). Fails in observer mode.
func (s *Sheriff) SendOrders() error {
	if err := s.requireNotObserver("Sheriff.SendOrders"); err != nil {
		return err
	}
	var firstErr error
	for _, d := range s.deputies {
		if d.LastUpdateUTime == 0 {
			continue
		}
		if err := s.sendOrdersFor(d); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sending orders to %q: %w", d.Name, err)
		}
	}
	return firstErr
}
