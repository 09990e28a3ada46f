package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"
)

// maxIDAllocationAttempts bounds the random sheriff_id draw before it is
// considered exhausted (spec.md §4.3).
const maxIDAllocationAttempts = 1 << 16

// sheriffIDSpace is the half-open interval [0, 2^31) random IDs are drawn
// from (spec.md §4.3: "a random integer in [0, 2^31)").
const sheriffIDSpace = 1 << 31

// Sheriff owns the set of deputies, the script library, and the event
// registry, and enforces the observer-mode invariants (spec.md §3).
//
// Sheriff is NOT safe for concurrent use by multiple goroutines; the
// single-threaded cooperative model of spec.md §5 means every mutator,
// merge, and script step is expected to run on the same goroutine (either
// the one driving Run, or the caller's goroutine in tests).
type Sheriff struct {
	cfg *Config

	identity string
	deputies map[string]*Deputy

	scriptNames []string // insertion order
	scripts     map[string]*Script

	events *EventRegistry

	// Script-engine bookkeeping. The concrete ScriptExecutionContext type
	// lives in the script package; Sheriff stores it opaquely so core
	// never imports script (script imports core, not the reverse).
	activeScriptContext interface{}
	activeScriptName    string
	waitingOnCommands   map[uint32]bool
	waitingForStatus    WaitStatus
	lastScriptActionAt  time.Time
}

// NewSheriff constructs a Sheriff. A Bus is required via WithBus.
func NewSheriff(opts ...Option) (*Sheriff, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	identity := fmt.Sprintf("%s:%d:%d", host, os.Getpid(), time.Now().UnixMicro())
	// A short random suffix (uuid) disambiguates two sheriffs that start
	// within the same microsecond on the same host. The timestamp comes
	// from time.Now, not from the configured Clock.
	identity = identity + ":" + uuid.NewString()[:8]

	return &Sheriff{
		cfg:               cfg,
		identity:          identity,
		deputies:          make(map[string]*Deputy),
		scripts:           make(map[string]*Script),
		events:            NewEventRegistry(),
		waitingOnCommands: make(map[uint32]bool),
	}, nil
}

// Identity returns this sheriff's identity string (spec.md §3):
// "hostname:pid:timestamp_microseconds" followed by ":" and the first 8
// characters of a random uuid.
func (s *Sheriff) Identity() string { return s.identity }

// IsObserver reports whether this sheriff is in observer mode.
func (s *Sheriff) IsObserver() bool { return s.cfg.IsObserver }

// Events returns the event registry subscribers register callbacks on
// (spec.md §4.3, §6 "Event subscription API").
func (s *Sheriff) Events() *EventRegistry { return s.events }

// Now returns the sheriff's clock time (overridable via WithClock).
func (s *Sheriff) Now() time.Time { return s.cfg.Clock.Now() }

// Config returns the sheriff's resolved configuration.
func (s *Sheriff) Config() *Config { return s.cfg }

func (s *Sheriff) requireNotObserver(op string) error {
	if s.cfg.IsObserver {
		return newError(op, "observer", "", ErrObserverMode)
	}
	return nil
}

// FindDeputy looks up a deputy by host name.
func (s *Sheriff) FindDeputy(name string) (*Deputy, error) {
	d, ok := s.deputies[name]
	if !ok {
		return nil, newError("Sheriff.FindDeputy", "lookup", name, ErrDeputyNotFound)
	}
	return d, nil
}

// deputyOrCreate returns the named deputy, creating an empty one if it
// does not yet exist.
func (s *Sheriff) deputyOrCreate(name string) *Deputy {
	d, ok := s.deputies[name]
	if !ok {
		d = NewDeputy(name)
		s.deputies[name] = d
	}
	return d
}

// Deputies returns a snapshot slice of all deputies. Order is arbitrary.
func (s *Sheriff) Deputies() []*Deputy {
	out := make([]*Deputy, 0, len(s.deputies))
	for _, d := range s.deputies {
		out = append(out, d)
	}
	return out
}

// GetCommandByID finds a command and its owning deputy by sheriff_id
// across the whole fleet.
func (s *Sheriff) GetCommandByID(sheriffID uint32) (*DeputyCommand, *Deputy, error) {
	for _, d := range s.deputies {
		if c, ok := d.CommandByID(sheriffID); ok {
			return c, d, nil
		}
	}
	return nil, nil, newError("Sheriff.GetCommandByID", "lookup", fmt.Sprint(sheriffID), ErrCommandNotFound)
}

// GetCommandDeputy returns the Deputy that owns the given command.
func (s *Sheriff) GetCommandDeputy(c *DeputyCommand) (*Deputy, error) {
	_, d, err := s.GetCommandByID(c.SheriffID)
	return d, err
}

// CommandsByNickname returns every command (across all deputies) with the
// given nickname. Nicknames may collide, hence the list return.
func (s *Sheriff) CommandsByNickname(nickname string) []*DeputyCommand {
	var out []*DeputyCommand
	for _, d := range s.deputies {
		for _, c := range d.commands {
			if c.Nickname == nickname {
				out = append(out, c)
			}
		}
	}
	return out
}

// CommandsByGroup returns every command whose normalized group matches the
// query by prefix (spec.md §4.3).
func (s *Sheriff) CommandsByGroup(group string) []*DeputyCommand {
	var out []*DeputyCommand
	for _, d := range s.deputies {
		for _, c := range d.commands {
			if groupMatches(c.Group, group) {
				out = append(out, c)
			}
		}
	}
	return out
}

// AllCommands returns every command across every deputy.
func (s *Sheriff) AllCommands() []*DeputyCommand {
	var out []*DeputyCommand
	for _, d := range s.deputies {
		for _, c := range d.commands {
			out = append(out, c)
		}
	}
	return out
}

// isIDInUse reports whether sheriffID is held by any command on any
// deputy.
func (s *Sheriff) isIDInUse(sheriffID uint32) bool {
	for _, d := range s.deputies {
		if _, ok := d.CommandByID(sheriffID); ok {
			return true
		}
	}
	return false
}

// allocateCommandID draws a random, currently-unused, non-zero 31-bit
// sheriff_id. Implements the "open question" resolution documented in
// SPEC_FULL.md §9: find a non-colliding draw, then re-roll once more and
// require that draw to also be non-colliding before returning the first.
func (s *Sheriff) allocateCommandID() (uint32, error) {
	var candidate uint32
	haveCandidate := false

	for attempt := 0; attempt < maxIDAllocationAttempts; attempt++ {
		id, err := randomSheriffID()
		if err != nil {
			return 0, newError("Sheriff.allocateCommandID", "id", "", err)
		}
		collision := id == 0 || s.isIDInUse(id)

		if !haveCandidate {
			if !collision {
				candidate = id
				haveCandidate = true
			}
			continue
		}
		if !collision {
			return candidate, nil
		}
		// The re-roll collided; keep the original candidate and re-roll
		// again next iteration (mirrors the original's retry loop).
	}
	return 0, newError("Sheriff.allocateCommandID", "id", "", ErrIDSpaceExhausted)
}

func randomSheriffID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(sheriffIDSpace))
	if err != nil {
		return 0, err
	}
	return uint32(n.Uint64()), nil
}
