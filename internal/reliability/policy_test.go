package reliability

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noJitterPolicy() Policy {
	p := DefaultPolicy()
	p.JitterFactor = 0
	p.MinRetryDelay = 0
	return p
}

func TestNextDelay(t *testing.T) {
	t.Run("exponential attempt 3 with factor 2 gives 400ms", func(t *testing.T) {
		p := noJitterPolicy()
		p.RetryDelay = 100 * time.Millisecond
		p.BackoffFactor = 2.0

		assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
		assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
		assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
	})

	t.Run("linear grows with attempt", func(t *testing.T) {
		p := noJitterPolicy()
		p.Strategy = StrategyLinear
		p.RetryDelay = 100 * time.Millisecond

		assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
		assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
		assert.Equal(t, 300*time.Millisecond, p.NextDelay(3))
	})

	t.Run("fixed stays constant", func(t *testing.T) {
		p := noJitterPolicy()
		p.Strategy = StrategyFixed
		p.RetryDelay = 250 * time.Millisecond

		for attempt := 1; attempt <= 5; attempt++ {
			assert.Equal(t, 250*time.Millisecond, p.NextDelay(attempt))
		}
	})

	t.Run("clamped to max delay", func(t *testing.T) {
		p := noJitterPolicy()
		p.RetryDelay = 100 * time.Millisecond
		p.MaxRetryDelay = 300 * time.Millisecond

		assert.Equal(t, 300*time.Millisecond, p.NextDelay(3))
		assert.Equal(t, 300*time.Millisecond, p.NextDelay(10))
	})

	t.Run("clamped to min delay", func(t *testing.T) {
		p := noJitterPolicy()
		p.RetryDelay = 10 * time.Millisecond
		p.MinRetryDelay = 50 * time.Millisecond

		assert.Equal(t, 50*time.Millisecond, p.NextDelay(1))
	})

	t.Run("jitter stays within symmetric bounds", func(t *testing.T) {
		p := DefaultPolicy()
		p.RetryDelay = 1 * time.Second
		p.JitterFactor = 0.2
		p.MinRetryDelay = 0
		p.MaxRetryDelay = time.Hour

		sawDifferent := false
		first := p.NextDelay(1)
		for i := 0; i < 20; i++ {
			d := p.NextDelay(1)
			assert.GreaterOrEqual(t, d, 800*time.Millisecond)
			assert.LessOrEqual(t, d, 1200*time.Millisecond)
			if d != first {
				sawDifferent = true
			}
		}
		assert.True(t, sawDifferent, "jitter should perturb delays")
	})
}

func TestShouldRetry(t *testing.T) {
	t.Run("respects max retries", func(t *testing.T) {
		p := DefaultPolicy()
		p.MaxRetries = 2
		err := MarkRetryable(errors.New("transient"))

		assert.True(t, p.ShouldRetry(err, 1))
		assert.True(t, p.ShouldRetry(err, 2))
		assert.False(t, p.ShouldRetry(err, 3))
	})

	t.Run("custom predicate wins", func(t *testing.T) {
		p := DefaultPolicy()
		p.RetryIf = func(err error) bool { return err.Error() == "special" }

		assert.True(t, p.ShouldRetry(errors.New("special"), 1))
		assert.False(t, p.ShouldRetry(errors.New("other"), 1))
	})

	t.Run("retryable category is honored", func(t *testing.T) {
		p := DefaultPolicy()

		assert.True(t, p.ShouldRetry(MarkRetryable(errors.New("flaky")), 1))
		assert.False(t, p.ShouldRetry(MarkPermanent(errors.New("fatal")), 1))
	})

	t.Run("retryable HTTP status codes", func(t *testing.T) {
		p := DefaultPolicy()

		assert.True(t, p.ShouldRetry(&HTTPError{StatusCode: 503}, 1))
		assert.True(t, p.ShouldRetry(&HTTPError{StatusCode: 429}, 1))
		assert.False(t, p.ShouldRetry(&HTTPError{StatusCode: 404}, 1))
		assert.False(t, p.ShouldRetry(&HTTPError{StatusCode: 401}, 1))
	})

	t.Run("network timeouts are transient", func(t *testing.T) {
		p := DefaultPolicy()
		var timeoutErr net.Error = &net.DNSError{IsTimeout: true}

		assert.True(t, p.ShouldRetry(timeoutErr, 1))
	})

	t.Run("plain errors are not retried", func(t *testing.T) {
		p := DefaultPolicy()
		assert.False(t, p.ShouldRetry(errors.New("unclassified"), 1))
	})
}

func TestRetryableError(t *testing.T) {
	t.Run("unwraps and preserves message", func(t *testing.T) {
		base := errors.New("base")
		err := MarkRetryable(base)

		assert.Equal(t, "base", err.Error())
		assert.ErrorIs(t, err, base)
	})
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "exponential", StrategyExponential.String())
	assert.Equal(t, "linear", StrategyLinear.String())
	assert.Equal(t, "fixed", StrategyFixed.String())
}
