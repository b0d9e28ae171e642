package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsUnwrap(t *testing.T) {
	underlying := stderrors.New("disk read failed")
	err := Corrupt("snapshot.read", underlying)

	assert.Equal(t, KindCorrupt, err.Kind)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "snapshot.read")
}

func TestIsMatchesKindThroughWrapChain(t *testing.T) {
	err := NotReady("search")
	assert.True(t, Is(err, KindNotReady))
	assert.False(t, Is(err, KindCorrupt))
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		if attempts < 2 {
			return IoTransient("socket.write", stderrors.New("EAGAIN"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustsAfterThreeRetries(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		return IoTransient("socket.write", stderrors.New("EAGAIN"))
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial try + 3 retries
	assert.True(t, Is(err, KindIoTransient))
}

func TestRetryDoesNotRetryNonTransientErrors(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		return InvalidRequest("parse", stderrors.New("bad json"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, Is(err, KindInvalidRequest))
}
