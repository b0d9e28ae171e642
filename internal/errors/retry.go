package errors

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ioTransientSteps is the exact bounded-backoff policy used for
// IoTransient: three retries after the first attempt, waiting 10ms, 100ms,
// 500ms before each. Grounded on
// AKJUS-bsc-erigon's go.mod dependency on cenkalti/backoff/v4; no call site
// was retrieved from that repo, so this wraps the library's documented
// BackOff interface around a fixed step sequence rather than its default
// exponential curve.
var ioTransientSteps = []time.Duration{10 * time.Millisecond, 100 * time.Millisecond, 500 * time.Millisecond}

type stepBackOff struct {
	steps []time.Duration
	next  int
}

func (s *stepBackOff) NextBackOff() time.Duration {
	if s.next >= len(s.steps) {
		return backoff.Stop
	}
	d := s.steps[s.next]
	s.next++
	return d
}

func (s *stepBackOff) Reset() { s.next = 0 }

// Retry runs fn, retrying on IoTransient errors per the bounded policy (3
// retries, 10/100/500ms, so at most 4 calls of fn). Any other error, or
// exhaustion of the retry budget, is returned immediately.
func Retry(fn func() error) error {
	var lastErr error
	op := func() error {
		err := fn()
		lastErr = err
		if err == nil {
			return nil
		}
		if Is(err, KindIoTransient) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}
	bo := &stepBackOff{steps: ioTransientSteps}
	if err := backoff.Retry(op, bo); err != nil {
		if permErr, ok := err.(*backoff.PermanentError); ok {
			return permErr.Err
		}
		return lastErr
	}
	return nil
}
