package script

import (
	"fmt"

	"github.com/fleetsheriff/sheriff/core"
)

// CheckScriptForErrors validates a script before it is allowed to run
// (spec.md §4.4 "Preflight"): every cmd/group ident must resolve to at
// least one command, every wait_ms delay must be non-negative, and every
// run_script target must exist and must not introduce a cycle through the
// script currently being checked. It returns every problem found rather
// than stopping at the first, so a caller can report them all at once.
func CheckScriptForErrors(sheriff *core.Sheriff, s *core.Script) []string {
	var problems []string
	checkScript(sheriff, s, []string{s.Name}, &problems)
	return problems
}

func checkScript(sheriff *core.Sheriff, s *core.Script, ancestors []string, problems *[]string) {
	for i, action := range s.Actions {
		switch action.Kind {
		case core.ActionStart, core.ActionStop, core.ActionRestart, core.ActionWaitStatus:
			checkIdent(sheriff, s.Name, i, action, problems)

		case core.ActionWaitMs:
			if action.DelayMS < 0 {
				*problems = append(*problems, fmt.Sprintf(
					"script %q action %d: wait_ms delay_ms must be >= 0, got %d", s.Name, i, action.DelayMS))
			}

		case core.ActionRunScript:
			checkRunScript(sheriff, s.Name, i, action, ancestors, problems)

		default:
			*problems = append(*problems, fmt.Sprintf(
				"script %q action %d: unknown action kind %q", s.Name, i, action.Kind))
		}
	}
}

func checkIdent(sheriff *core.Sheriff, scriptName string, i int, action core.Action, problems *[]string) {
	switch action.IdentType {
	case core.IdentEverything:
		return
	case core.IdentCmd:
		if len(sheriff.CommandsByNickname(action.Ident)) == 0 {
			*problems = append(*problems, fmt.Sprintf(
				"script %q action %d: no command with nickname %q", scriptName, i, action.Ident))
		}
	case core.IdentGroup:
		if len(sheriff.CommandsByGroup(action.Ident)) == 0 {
			*problems = append(*problems, fmt.Sprintf(
				"script %q action %d: no command in group %q", scriptName, i, action.Ident))
		}
	default:
		*problems = append(*problems, fmt.Sprintf(
			"script %q action %d: unknown ident type %q", scriptName, i, action.IdentType))
	}
}

func checkRunScript(sheriff *core.Sheriff, scriptName string, i int, action core.Action, ancestors []string, problems *[]string) {
	target, ok := sheriff.ScriptByName(action.ScriptName)
	if !ok {
		*problems = append(*problems, fmt.Sprintf(
			"script %q action %d: run_script target %q does not exist", scriptName, i, action.ScriptName))
		return
	}

	for _, a := range ancestors {
		if a == action.ScriptName {
			*problems = append(*problems, fmt.Sprintf(
				"script %q action %d: run_script %q would cycle back through %v",
				scriptName, i, action.ScriptName, append(append([]string(nil), ancestors...), action.ScriptName)))
			return
		}
	}

	checkScript(sheriff, target, append(ancestors, action.ScriptName), problems)
}
