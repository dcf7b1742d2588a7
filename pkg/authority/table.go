package authority

import (
	"sync"

	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/rake"
	"github.com/vctt94/econcore/pkg/statemachine"
)

// PolicySnapshot is the frozen rake configuration a table carries for the
// duration of one hand (spec §4.10's Rake Policy Guard). Config is the
// actual value in effect when the hand started, captured by StartHand —
// settlement evaluates against this snapshot, never against whatever the
// club's live policy has become by the time the hand ends.
type PolicySnapshot struct {
	PolicyID   string
	PolicyHash string
	Config     rake.Config
}

// transition is the pending request a Table's current StateFn consumes on
// the next Dispatch — the generic statemachine package is push/pull driven
// (a StateFn reads its entity and returns the next StateFn), so a
// transition request has to be staged on the entity itself rather than
// passed as a Dispatch argument.
type transition int

const (
	transitionNone transition = iota
	transitionStartHand
	transitionEndHand
	transitionPause
	transitionResume
	transitionClose
)

// Table is one club table's authority-owned state: membership at the table,
// hand lifecycle, and the frozen rake policy.
type Table struct {
	mu sync.Mutex

	TableID    econtypes.TableID
	ClubID     econtypes.ClubID
	HostID     econtypes.PlayerID
	MaxSeats   int
	MinToStart int

	CurrentHandID econtypes.HandID
	Seats         map[econtypes.PlayerID]bool
	RakePolicy    *PolicySnapshot

	status  string // "open" | "active" | "paused" | "closed"
	pending transition
	sm      *statemachine.StateMachine[Table]

	CreatedAt int64
	UpdatedAt int64
}

// NewTable creates an Open table with no seats occupied.
func NewTable(tableID econtypes.TableID, clubID econtypes.ClubID, hostID econtypes.PlayerID, maxSeats, minToStart int, now int64) *Table {
	t := &Table{
		TableID:    tableID,
		ClubID:     clubID,
		HostID:     hostID,
		MaxSeats:   maxSeats,
		MinToStart: minToStart,
		Seats:      make(map[econtypes.PlayerID]bool),
		status:     "open",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.sm = statemachine.NewStateMachine(t, openState)
	return t
}

// Status returns the table's current lifecycle state.
func (t *Table) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// request stages a transition and dispatches the state machine once. It
// returns whether the transition was accepted (i.e. the status actually
// changed to what the caller intended) — state functions silently refuse
// transitions that do not apply to the current state, matching the diagram
// in spec §4.10.
func (t *Table) request(tr transition, now int64) bool {
	t.mu.Lock()
	before := t.status
	t.pending = tr
	t.mu.Unlock()

	t.sm.Dispatch(nil)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.UpdatedAt = now
	return t.status != before
}

// ForceRecover clears a stuck hand-in-progress lock and returns the table to
// Open regardless of its current status, bypassing the normal state machine
// guards (spec §6 force_action: an operator override for a hand engine that
// has crashed or desynced mid-hand).
func (t *Table) ForceRecover(now int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CurrentHandID = ""
	t.RakePolicy = nil
	t.status = "open"
	t.sm = statemachine.NewStateMachine(t, openState)
	t.UpdatedAt = now
}

func openState(t *Table, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Table] {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.pending {
	case transitionStartHand:
		if len(t.Seats) >= t.MinToStart {
			t.status = "active"
			return activeState
		}
	case transitionPause:
		t.status = "paused"
		return pausedState
	case transitionClose:
		if t.CurrentHandID == "" {
			t.status = "closed"
			return closedState
		}
	}
	return openState
}

func activeState(t *Table, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Table] {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.pending {
	case transitionEndHand:
		t.CurrentHandID = ""
		t.RakePolicy = nil
		t.status = "open"
		return openState
	case transitionPause:
		t.status = "paused"
		return pausedState
	}
	return activeState
}

func pausedState(t *Table, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Table] {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.pending {
	case transitionResume:
		if t.CurrentHandID != "" {
			t.status = "active"
			return activeState
		}
		t.status = "open"
		return openState
	case transitionClose:
		if t.CurrentHandID == "" {
			t.status = "closed"
			return closedState
		}
	}
	return pausedState
}

func closedState(t *Table, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Table] {
	// Closed is terminal: every transition is refused.
	return closedState
}
