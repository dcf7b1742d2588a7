package econtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableHandKeyIsStableAndDistinguishesPairs(t *testing.T) {
	k1 := TableHandKey("t1", "h1")
	k2 := TableHandKey("t1", "h1")
	require.Equal(t, k1, k2)

	k3 := TableHandKey("t1", "h2")
	require.NotEqual(t, k1, k3)

	k4 := TableHandKey("t2", "h1")
	require.NotEqual(t, k1, k4)
}

func TestFixedClockAlwaysReturnsSameInstant(t *testing.T) {
	c := FixedClock(12345)
	require.Equal(t, int64(12345), c.NowMillis())
	require.Equal(t, int64(12345), c.NowMillis())
}

func TestSystemClockReturnsPositiveMillis(t *testing.T) {
	var c SystemClock
	require.Greater(t, c.NowMillis(), int64(0))
}
