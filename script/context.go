// Package script implements the hierarchical action interpreter of
// spec.md §4.4: a resumable cursor over a script's actions that recurses
// into sub-scripts, and an Engine that drives a Sheriff through
// start/stop/restart/wait actions using the reconciliation engine's event
// stream.
package script

import "github.com/fleetsheriff/sheriff/core"

// scriptLookup resolves a script by name; satisfied by
// (*core.Sheriff).ScriptByName.
type scriptLookup func(name string) (*core.Script, bool)

// executionContext is a resumable cursor over one script's actions,
// recursing into a child executionContext for run_script actions
// (spec.md §4.4 "ScriptExecutionContext"). The cursor starts at -1 so the
// first call to next() executes action index 0.
type executionContext struct {
	script        *core.Script
	currentAction int
	child         *executionContext
}

func newExecutionContext(script *core.Script) *executionContext {
	return &executionContext{script: script, currentAction: -1}
}

// next advances the cursor and returns the next action to execute, or
// false at end-of-script. When the cursor reaches a run_script action it
// constructs a child context for the named script and recurses into it;
// once the child is exhausted, it falls through to the parent's next
// action — run_script is never itself returned as an executable action.
func (c *executionContext) next(lookup scriptLookup) (core.Action, bool) {
	if c.child != nil {
		if action, ok := c.child.next(lookup); ok {
			return action, true
		}
		c.child = nil
	}

	c.currentAction++
	if c.currentAction >= len(c.script.Actions) {
		return core.Action{}, false
	}

	action := c.script.Actions[c.currentAction]
	if action.Kind != core.ActionRunScript {
		return action, true
	}

	sub, ok := lookup(action.ScriptName)
	if !ok {
		// Preflight guarantees this doesn't happen for a script that
		// passed CheckScriptForErrors; skip forward defensively if it's
		// executed without having been checked.
		return c.next(lookup)
	}
	c.child = newExecutionContext(sub)
	return c.next(lookup)
}
