package authority

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vctt94/econcore/pkg/econtypes"
)

func TestNewTableStartsOpenWithNoSeats(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 100)
	require.Equal(t, "open", tbl.Status())
	require.Empty(t, tbl.Seats)
}

func TestStartHandTransitionsToActiveWhenMinSeatsMet(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true
	tbl.Seats["b"] = true

	ok := tbl.request(transitionStartHand, 10)
	require.True(t, ok)
	require.Equal(t, "active", tbl.Status())
}

func TestStartHandRefusedBelowMinToStart(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true

	ok := tbl.request(transitionStartHand, 10)
	require.False(t, ok)
	require.Equal(t, "open", tbl.Status())
}

func TestEndHandReturnsToOpenAndClearsRakePolicy(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true
	tbl.Seats["b"] = true
	require.True(t, tbl.request(transitionStartHand, 0))

	tbl.RakePolicy = &PolicySnapshot{PolicyID: "p"}
	require.True(t, tbl.request(transitionEndHand, 20))

	require.Equal(t, "open", tbl.Status())
	require.Nil(t, tbl.RakePolicy)
	require.Equal(t, econtypes.HandID(""), tbl.CurrentHandID)
}

func TestPauseFromOpenAndResumeBackToOpen(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	require.True(t, tbl.request(transitionPause, 0))
	require.Equal(t, "paused", tbl.Status())

	require.True(t, tbl.request(transitionResume, 0))
	require.Equal(t, "open", tbl.Status())
}

func TestPauseFromActiveResumesToActiveWhenHandInProgress(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true
	tbl.Seats["b"] = true
	require.True(t, tbl.request(transitionStartHand, 0))
	tbl.CurrentHandID = "h1"

	require.True(t, tbl.request(transitionPause, 0))
	require.Equal(t, "paused", tbl.Status())

	require.True(t, tbl.request(transitionResume, 0))
	require.Equal(t, "active", tbl.Status())
}

func TestCloseRefusedWhileHandInProgress(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true
	tbl.Seats["b"] = true
	require.True(t, tbl.request(transitionStartHand, 0))

	ok := tbl.request(transitionClose, 0)
	require.False(t, ok)
	require.Equal(t, "active", tbl.Status())
}

func TestForceRecoverClearsHandAndReenablesTransitions(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	tbl.Seats["a"] = true
	tbl.Seats["b"] = true
	require.True(t, tbl.request(transitionStartHand, 0))
	tbl.CurrentHandID = "h1"
	require.True(t, tbl.request(transitionPause, 0))
	require.Equal(t, "paused", tbl.Status())

	tbl.ForceRecover(1)
	require.Equal(t, "open", tbl.Status())
	require.Equal(t, econtypes.HandID(""), tbl.CurrentHandID)
	require.Nil(t, tbl.RakePolicy)

	// The state machine was reset too, not just the status field — a
	// subsequent transition must be driven by the new state, not the stale
	// pausedState closure.
	require.True(t, tbl.request(transitionClose, 1))
	require.Equal(t, "closed", tbl.Status())
}

func TestCloseFromOpenIsTerminal(t *testing.T) {
	tbl := NewTable("t1", "c1", "host", 6, 2, 0)
	require.True(t, tbl.request(transitionClose, 0))
	require.Equal(t, "closed", tbl.Status())

	ok := tbl.request(transitionResume, 0)
	require.False(t, ok)
	require.Equal(t, "closed", tbl.Status())
}
