package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(now *time.Time, opts ...BreakerOption) *CircuitBreaker {
	base := []BreakerOption{
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithRecoveryTimeout(time.Minute),
		WithClock(func() time.Time { return *now }),
	}
	return NewCircuitBreaker(append(base, opts...)...)
}

func TestCircuitBreakerOpening(t *testing.T) {
	t.Run("opens after failure threshold", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)

		for i := 0; i < 3; i++ {
			require.NoError(t, cb.Allow())
			cb.RecordFailure()
		}
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("open breaker rejects without invoking the operation", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		calls := 0
		err := cb.Execute(context.Background(), func() error {
			calls++
			return nil
		})

		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, 0, calls)
		assert.Equal(t, StateOpen, openErr.State)
	})

	t.Run("success resets the failure count", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)

		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordSuccess()
		cb.RecordFailure()
		cb.RecordFailure()

		// Two failures after the reset: still below the threshold of 3.
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestCircuitBreakerRecovery(t *testing.T) {
	t.Run("transitions to half-open after recovery timeout", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		require.Equal(t, StateOpen, cb.GetState())

		assert.Error(t, cb.Allow(), "before timeout")

		now = now.Add(61 * time.Second)
		assert.NoError(t, cb.Allow(), "after timeout")
		assert.Equal(t, StateHalfOpen, cb.GetState())
	})

	t.Run("half-open admits exactly one probe", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		now = now.Add(61 * time.Second)

		require.NoError(t, cb.Allow())

		// Second concurrent call is rejected while the probe is in flight.
		err := cb.Allow()
		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, StateHalfOpen, openErr.State)
	})

	t.Run("consecutive successes close the breaker", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		now = now.Add(61 * time.Second)

		require.NoError(t, cb.Allow())
		cb.RecordSuccess()
		assert.Equal(t, StateHalfOpen, cb.GetState(), "one success is not enough")

		require.NoError(t, cb.Allow())
		cb.RecordSuccess()
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("half-open failure reopens immediately", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		now = now.Add(61 * time.Second)

		require.NoError(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, StateOpen, cb.GetState())

		// And the fresh failure timestamp restarts the recovery window.
		err := cb.Allow()
		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
	})
}

func TestCircuitBreakerExecute(t *testing.T) {
	t.Run("closed breaker passes results through", func(t *testing.T) {
		cb := NewCircuitBreaker()

		err := cb.Execute(context.Background(), func() error { return nil })
		assert.NoError(t, err)

		cause := errors.New("downstream")
		err = cb.Execute(context.Background(), func() error { return cause })
		assert.Equal(t, cause, err)
	})

	t.Run("cancelled context skips the call", func(t *testing.T) {
		cb := NewCircuitBreaker()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := cb.Execute(ctx, func() error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

type recordingListener struct {
	mu          sync.Mutex
	transitions []string
	notified    chan struct{}
}

func (l *recordingListener) OnStateChange(from, to State, reason string) {
	l.mu.Lock()
	l.transitions = append(l.transitions, from.String()+"->"+to.String())
	l.mu.Unlock()
	select {
	case l.notified <- struct{}{}:
	default:
	}
}

func TestCircuitBreakerListeners(t *testing.T) {
	t.Run("notified on open transition", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		listener := &recordingListener{notified: make(chan struct{}, 1)}
		cb.AddListener(listener)

		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		select {
		case <-listener.notified:
		case <-time.After(time.Second):
			t.Fatal("listener was not notified")
		}

		listener.mu.Lock()
		defer listener.mu.Unlock()
		assert.Contains(t, listener.transitions, "closed->open")
	})
}

func TestCircuitBreakerConcurrency(t *testing.T) {
	t.Run("racing callers never double-close a half-open breaker", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		now = now.Add(61 * time.Second)

		var admitted int32
		var wg sync.WaitGroup
		var mu sync.Mutex
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if cb.Allow() == nil {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, int32(1), admitted, "exactly one probe admitted")
	})
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Run("returns to closed with zeroed counters", func(t *testing.T) {
		now := time.Now()
		cb := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		require.Equal(t, StateOpen, cb.GetState())

		cb.Reset()
		assert.Equal(t, StateClosed, cb.GetState())
		assert.NoError(t, cb.Allow())

		metrics := cb.Metrics()
		assert.Equal(t, 0, metrics.CurrentFailures)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
