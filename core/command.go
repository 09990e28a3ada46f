package core

import "strconv"

// Status is the derived state of a DeputyCommand, computed purely from its
// fields per the table in spec.md §4.1. It is never stored directly.
type Status int

const (
	StatusUnknown Status = iota
	StatusTryingToStart
	StatusRunning
	StatusTryingToStop
	StatusRestarting
	StatusRemoving
	StatusStoppedOK
	StatusStoppedError
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusTryingToStart:
		return "TRYING_TO_START"
	case StatusRunning:
		return "RUNNING"
	case StatusTryingToStop:
		return "TRYING_TO_STOP"
	case StatusRestarting:
		return "RESTARTING"
	case StatusRemoving:
		return "REMOVING"
	case StatusStoppedOK:
		return "STOPPED_OK"
	case StatusStoppedError:
		return "STOPPED_ERROR"
	default:
		return "UNKNOWN"
	}
}

// runIDWrap is the 31-bit wraparound boundary for desired_runid/actual_runid
// (spec.md §3, §9 "Wrap-around of desired_runid").
const runIDWrap = 1 << 31

// okToFailSignals mirrors the original sheriff.py's set of signals that
// still count as a clean stop when force_quit is set: SIGINT(2), SIGTERM(15),
// SIGKILL(9). exit_code is in POSIX wait() encoding: a process terminated by
// signal N reports (N) in the low byte with the high byte zero, and WIFEXITED
// is false for that encoding (status & 0x7f != 0).
var okToFailSignals = map[int]bool{2: true, 9: true, 15: true}

// DeputyCommand is a single managed command entry. It owns its own status
// fields; Status() derives the state-machine value on read (spec.md §4.1).
type DeputyCommand struct {
	SheriffID uint32 // 31-bit non-zero, unique across all deputies of one sheriff
	Name      string // program invocation
	Nickname  string // user-facing identifier, may collide
	Group     string // normalized forward-slash path, "" means no group

	DesiredRunID uint32
	ActualRunID  uint32
	ForceQuit    int // 0 or 1
	AutoRespawn  bool

	PID           int
	ExitCode      int
	CPUUsage      float64
	MemVsizeBytes uint64
	MemRSSBytes   uint64

	ScheduledForRemoval bool
	UpdatedFromInfo     bool
}

// Status computes the derived state from (U, D, A, P, F, S, E) per the
// table in spec.md §4.1. The table's rows are evaluated in order; the first
// matching row wins, which resolves the apparent overlap between
// "D != A and F" and the earlier "D != A and not F" rows.
func (c *DeputyCommand) Status() Status {
	if !c.UpdatedFromInfo {
		return StatusUnknown
	}
	desiredMatchesActual := c.DesiredRunID == c.ActualRunID
	forced := c.ForceQuit != 0

	if !desiredMatchesActual && forced {
		return StatusUnknown
	}
	if !desiredMatchesActual && !forced {
		if c.PID == 0 {
			return StatusTryingToStart
		}
		return StatusRestarting
	}
	// desiredMatchesActual
	if c.PID > 0 {
		if !forced && !c.ScheduledForRemoval {
			return StatusRunning
		}
		return StatusTryingToStop
	}
	// PID == 0
	if c.ScheduledForRemoval {
		return StatusRemoving
	}
	if c.ExitCode == 0 {
		return StatusStoppedOK
	}
	if forced && exitedBySignal(c.ExitCode, okToFailSignals) {
		return StatusStoppedOK
	}
	return StatusStoppedError
}

// exitedBySignal decodes a POSIX wait()-encoded exit_code and reports
// whether the process was terminated by one of the given signal numbers.
func exitedBySignal(waitStatus int, signals map[int]bool) bool {
	sig := waitStatus & 0x7f
	if sig == 0 || sig == 0x7f {
		return false // exited normally, or stopped (not terminated)
	}
	return signals[sig]
}

// FormatExitStatus renders a POSIX wait()-encoded exit_code for display,
// distinguishing a normal exit from signal termination. Grounded on the
// original sheriff.py's status-formatting helpers (see SPEC_FULL.md §9).
func FormatExitStatus(waitStatus int) string {
	sig := waitStatus & 0x7f
	if sig == 0 {
		return "exited with code " + strconv.Itoa(waitStatus>>8)
	}
	if sig == 0x7f {
		return "stopped"
	}
	return "killed by signal " + strconv.Itoa(sig)
}

// incRunID applies the request-a-(re)start increment with 31-bit wraparound
// (spec.md §3: "wraps to 1 when exceeding 2^31").
func incRunID(runID uint32) uint32 {
	next := runID + 1
	if next >= runIDWrap {
		return 1
	}
	return next
}

// Start requests (re)start of the command (spec.md §4.1). If the command
// is already running and not force-quit, this is a no-op: none of the
// command's fields change.
func (c *DeputyCommand) Start() {
	if c.PID > 0 && c.ForceQuit == 0 {
		return
	}
	c.DesiredRunID = incRunID(c.DesiredRunID)
	c.ForceQuit = 0
}

// Restart unconditionally requests a new run, even if already running.
func (c *DeputyCommand) Restart() {
	c.DesiredRunID = incRunID(c.DesiredRunID)
	c.ForceQuit = 0
}

// Stop requests the deputy not run this command.
func (c *DeputyCommand) Stop() {
	c.ForceQuit = 1
}
