package core

import "time"

// AddScript registers a named script. Fails in observer mode or if a
// script with this name already exists (spec.md §7 "duplicate script
// name").
func (s *Sheriff) AddScript(name string, actions []Action) (*Script, error) {
	if err := s.requireNotObserver("Sheriff.AddScript"); err != nil {
		return nil, err
	}
	if _, exists := s.scripts[name]; exists {
		return nil, newError("Sheriff.AddScript", "script", name, ErrScriptAlreadyExists)
	}
	script := &Script{Name: name, Actions: append([]Action(nil), actions...)}
	s.scripts[name] = script
	s.scriptNames = append(s.scriptNames, name)
	s.events.Emit(EventScriptAdded, script)
	return script, nil
}

// RemoveScript deletes a script by name. Fails in observer mode or while
// that script is the currently-active one (spec.md §7 "script-during-
// mutation").
func (s *Sheriff) RemoveScript(name string) error {
	if err := s.requireNotObserver("Sheriff.RemoveScript"); err != nil {
		return err
	}
	script, exists := s.scripts[name]
	if !exists {
		return newError("Sheriff.RemoveScript", "script", name, ErrScriptNotFound)
	}
	if s.activeScriptContext != nil && s.activeScriptName == name {
		return newError("Sheriff.RemoveScript", "script", name, ErrScriptActive)
	}
	delete(s.scripts, name)
	for i, n := range s.scriptNames {
		if n == name {
			s.scriptNames = append(s.scriptNames[:i], s.scriptNames[i+1:]...)
			break
		}
	}
	s.events.Emit(EventScriptRemoved, script)
	return nil
}

// ScriptByName looks up a script by name.
func (s *Sheriff) ScriptByName(name string) (*Script, bool) {
	script, ok := s.scripts[name]
	return script, ok
}

// Scripts returns all scripts in insertion order.
func (s *Sheriff) Scripts() []*Script {
	out := make([]*Script, 0, len(s.scriptNames))
	for _, name := range s.scriptNames {
		out = append(out, s.scripts[name])
	}
	return out
}

// replaceAllScripts discards every script and installs a new set, in
// order, without the duplicate-name or observer-mode gating AddScript
// applies. Used by LoadConfig, which replaces scripts unconditionally
// (spec.md §4.3 "all scripts are replaced unconditionally").
func (s *Sheriff) replaceAllScripts(scripts []*Script) {
	s.scripts = make(map[string]*Script, len(scripts))
	s.scriptNames = s.scriptNames[:0]
	for _, script := range scripts {
		s.scripts[script.Name] = script
		s.scriptNames = append(s.scriptNames, script.Name)
	}
}

// --- Script-engine bookkeeping exposed to the script package ---
//
// Sheriff stores the active ScriptExecutionContext opaquely (as
// interface{}) specifically so core never imports the script package;
// script imports core, not the reverse. These accessors are the seam.

// ActiveScriptContext returns the opaque active ScriptExecutionContext (nil
// if no script is running) and its script name.
func (s *Sheriff) ActiveScriptContext() (ctx interface{}, scriptName string) {
	return s.activeScriptContext, s.activeScriptName
}

// SetActiveScriptContext installs (or clears, with ctx == nil) the active
// script-execution context.
func (s *Sheriff) SetActiveScriptContext(ctx interface{}, scriptName string) {
	s.activeScriptContext = ctx
	s.activeScriptName = scriptName
	if ctx == nil {
		s.activeScriptName = ""
	}
}

// WaitState returns the current wait-for-status bookkeeping (spec.md §3:
// waiting_on_commands, waiting_for_status, last_script_action_time).
func (s *Sheriff) WaitState() (onCommands map[uint32]bool, forStatus WaitStatus, lastActionAt time.Time) {
	return s.waitingOnCommands, s.waitingForStatus, s.lastScriptActionAt
}

// SetWaitState installs a new wait condition and records the time of the
// action that installed it (spec.md §4.4 "record last_script_action_time
// = now").
func (s *Sheriff) SetWaitState(onCommands map[uint32]bool, forStatus WaitStatus, actionTime time.Time) {
	s.waitingOnCommands = onCommands
	s.waitingForStatus = forStatus
	s.lastScriptActionAt = actionTime
}

// ClearWaitState clears any installed wait condition.
func (s *Sheriff) ClearWaitState() {
	s.waitingOnCommands = make(map[uint32]bool)
	s.waitingForStatus = WaitNone
}
