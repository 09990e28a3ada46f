package script

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsheriff/sheriff/core"
)

// Engine drives a Sheriff's active script through the cooperative,
// single-threaded "trampoline" model of spec.md §4.4 and §5: each call
// into the engine advances the cursor as far as it can go without
// blocking, then returns. Blocking conditions (wait_status, wait_ms) are
// resumed by a later Tick once their condition is satisfied, rather than
// by a dedicated goroutine — there is exactly one logical thread of
// control, matching the rest of the reconciliation engine.
type Engine struct {
	sheriff *core.Sheriff
	logger  core.Logger

	waitMsDeadline    time.Time
	hasWaitMsDeadline bool

	// executionID correlates one ExecuteScript run's log lines; regenerated
	// on every ExecuteScript call.
	executionID string

	// actionsExecuted counts actions dispatched since the last
	// ExecuteScript, used as RecordScriptAction's action index.
	actionsExecuted int
}

// NewEngine wraps a Sheriff. The engine does not subscribe to the
// Sheriff's event registry itself — advancing a blocked wait_status
// condition only needs to be checked when Tick is called, which the
// caller is expected to do on the same cadence as (or piggybacked onto)
// Sheriff.Run's ticker.
func NewEngine(sheriff *core.Sheriff) *Engine {
	logger := sheriff.Config().Logger
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("script/engine")
	}
	return &Engine{sheriff: sheriff, logger: logger}
}

func (e *Engine) lookup(name string) (*core.Script, bool) {
	return e.sheriff.ScriptByName(name)
}

// ExecuteScript starts a script, aborting any currently active script
// first (spec.md §4.4 Execution loop step 1), then preflights and runs
// the new one as far as it can go without blocking. Fails if the named
// script does not exist or if preflight finds problems (spec.md §4.4
// "Preflight").
func (e *Engine) ExecuteScript(name string) error {
	if active, _ := e.sheriff.ActiveScriptContext(); active != nil {
		e.AbortScript()
	}
	s, ok := e.sheriff.ScriptByName(name)
	if !ok {
		return fmt.Errorf("script engine: %q: %w", name, core.ErrScriptNotFound)
	}
	if problems := CheckScriptForErrors(e.sheriff, s); len(problems) > 0 {
		return fmt.Errorf("script engine: %q: %w: %s", name, core.ErrScriptPreflight, strings.Join(problems, "; "))
	}

	e.executionID = uuid.NewString()
	e.actionsExecuted = 0
	e.hasWaitMsDeadline = false
	e.sheriff.ClearWaitState()
	e.sheriff.SetActiveScriptContext(newExecutionContext(s), name)

	e.logger.Info("script started", map[string]interface{}{
		"script": name, "execution_id": e.executionID,
	})
	e.sheriff.Events().Emit(core.EventScriptStarted, name)

	return e.stepUntilBlocked(e.sheriff.Now())
}

// AbortScript halts the active script without waiting for it to reach a
// natural end. A no-op if no script is active.
func (e *Engine) AbortScript() {
	_, name := e.sheriff.ActiveScriptContext()
	if name == "" {
		return
	}
	e.sheriff.SetActiveScriptContext(nil, "")
	e.sheriff.ClearWaitState()
	e.hasWaitMsDeadline = false
	e.logger.Info("script aborted", map[string]interface{}{
		"script": name, "execution_id": e.executionID,
	})
	e.sheriff.Events().Emit(core.EventScriptFinished, name, true /* aborted */)
}

// Tick gives the engine a chance to resume a blocked script: it checks
// whether an outstanding wait_ms deadline has elapsed or a wait_status
// condition is now satisfied, and if so resumes stepping. The caller
// should invoke Tick on a steady cadence (e.g. alongside the reconciler's
// own ticker); Tick is cheap and a no-op when no script is active.
func (e *Engine) Tick(now time.Time) error {
	ctxRaw, _ := e.sheriff.ActiveScriptContext()
	if ctxRaw == nil {
		return nil
	}

	onCommands, waitFor, lastActionAt := e.sheriff.WaitState()
	if waitFor != core.WaitNone {
		if now.Sub(lastActionAt) < e.sheriff.Config().ScriptActionRateLimit {
			return nil
		}
		if !e.waitStatusSatisfied(onCommands, waitFor) {
			// Re-record the poll time so the rate limit applies between
			// polls, not just once at the action's start.
			e.sheriff.SetWaitState(onCommands, waitFor, now)
			return nil
		}
		e.sheriff.ClearWaitState()
	} else if e.hasWaitMsDeadline {
		if now.Before(e.waitMsDeadline) {
			return nil
		}
		e.hasWaitMsDeadline = false
	} else {
		return nil
	}

	return e.stepUntilBlocked(now)
}

func (e *Engine) waitStatusSatisfied(onCommands map[uint32]bool, waitFor core.WaitStatus) bool {
	for id := range onCommands {
		c, _, err := e.sheriff.GetCommandByID(id)
		if err != nil {
			// The command vanished (e.g. removed while waiting); treat its
			// contribution to the wait condition as satisfied rather than
			// blocking a script forever on a target that no longer exists.
			continue
		}
		if !waitFor.Matches(c.Status()) {
			return false
		}
	}
	return true
}

// stepUntilBlocked advances the active script's cursor, executing
// non-blocking actions immediately and in order, until it hits an action
// that blocks (wait_status, a start/stop/restart with a wait clause, or
// wait_ms) or reaches the end of the script.
func (e *Engine) stepUntilBlocked(now time.Time) error {
	for {
		ctxRaw, name := e.sheriff.ActiveScriptContext()
		if ctxRaw == nil {
			return nil
		}
		ec := ctxRaw.(*executionContext)

		action, ok := ec.next(e.lookup)
		if !ok {
			e.sheriff.SetActiveScriptContext(nil, "")
			e.sheriff.ClearWaitState()
			e.logger.Info("script finished", map[string]interface{}{
				"script": name, "execution_id": e.executionID,
			})
			e.sheriff.Events().Emit(core.EventScriptFinished, name, false /* aborted */)
			return nil
		}

		e.sheriff.Events().Emit(core.EventScriptActionExecuting, name, action)

		dispatchStart := time.Now()
		blocked, err := e.executeAction(name, action, now)
		if err != nil {
			return err
		}
		e.sheriff.Config().Tracer.RecordScriptAction(name, e.actionsExecuted, float64(time.Since(dispatchStart).Microseconds())/1000)
		e.actionsExecuted++
		if blocked {
			return nil
		}
	}
}

// executeAction runs one action and reports whether it leaves the script
// blocked (waiting on a condition) rather than ready to continue.
func (e *Engine) executeAction(scriptName string, action core.Action, now time.Time) (blocked bool, err error) {
	switch action.Kind {
	case core.ActionStart, core.ActionStop, core.ActionRestart:
		targets := e.resolveTargets(action)
		for _, c := range targets {
			if mutErr := e.applyMutator(action.Kind, c); mutErr != nil {
				return false, fmt.Errorf("script %q: %w", scriptName, mutErr)
			}
		}
		if action.WaitFor == core.WaitNone {
			return false, nil
		}
		e.sheriff.SetWaitState(idSet(targets), action.WaitFor, now)
		return true, nil

	case core.ActionWaitStatus:
		targets := e.resolveTargets(action)
		e.sheriff.SetWaitState(idSet(targets), action.WaitFor, now)
		return true, nil

	case core.ActionWaitMs:
		e.waitMsDeadline = now.Add(time.Duration(action.DelayMS) * time.Millisecond)
		e.hasWaitMsDeadline = true
		return true, nil

	default:
		// run_script is never surfaced by executionContext.next (it is
		// transparent, spec.md §4.4), so this should be unreachable.
		return false, fmt.Errorf("script %q: unexpected action kind %q reached executor", scriptName, action.Kind)
	}
}

func (e *Engine) applyMutator(kind core.ActionKind, c *core.DeputyCommand) error {
	switch kind {
	case core.ActionStart:
		return e.sheriff.StartCommand(c)
	case core.ActionStop:
		return e.sheriff.StopCommand(c)
	case core.ActionRestart:
		return e.sheriff.RestartCommand(c)
	default:
		return fmt.Errorf("not a mutator action kind: %q", kind)
	}
}

// resolveTargets resolves an action's ident to the concrete commands it
// applies to (spec.md §4.4: cmd -> nickname lookup, group -> prefix
// match, everything -> every command).
func (e *Engine) resolveTargets(action core.Action) []*core.DeputyCommand {
	switch action.IdentType {
	case core.IdentCmd:
		return e.sheriff.CommandsByNickname(action.Ident)
	case core.IdentGroup:
		return e.sheriff.CommandsByGroup(action.Ident)
	case core.IdentEverything:
		return e.sheriff.AllCommands()
	default:
		return nil
	}
}

func idSet(commands []*core.DeputyCommand) map[uint32]bool {
	out := make(map[uint32]bool, len(commands))
	for _, c := range commands {
		out[c.SheriffID] = true
	}
	return out
}
