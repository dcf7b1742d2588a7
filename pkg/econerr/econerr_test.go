package econerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaltsOnlyForFatalKind(t *testing.T) {
	require.True(t, LedgerIntegrity("tampered", nil).Halts())
	require.True(t, ChipConservation("imbalance", nil).Halts())
	require.False(t, InvalidAmount("bad amount", nil).Halts())
	require.False(t, InsufficientBalance(10, 20).Halts())
	require.False(t, DuplicateSettlement("t:h").Halts())
}

func TestErrorStringIncludesCodeAndMessage(t *testing.T) {
	err := InsufficientBalance(10, 20)
	require.Equal(t, "INSUFFICIENT_BALANCE: insufficient available balance", err.Error())
}

func TestKindStringNames(t *testing.T) {
	require.Equal(t, "validation", KindValidation.String())
	require.Equal(t, "precondition", KindPrecondition.String())
	require.Equal(t, "idempotency", KindIdempotency.String())
	require.Equal(t, "authorization", KindAuthorization.String())
	require.Equal(t, "fatal", KindFatal.String())
}

func TestConstructedErrorsCarryDetails(t *testing.T) {
	err := InsufficientBalance(10, 20)
	require.Equal(t, int64(10), err.Details["available"])
	require.Equal(t, int64(20), err.Details["requested"])
}
