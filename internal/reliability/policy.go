package reliability

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"
)

// Strategy selects the base backoff formula for a policy.
type Strategy int

const (
	// StrategyExponential grows the delay by BackoffFactor per attempt.
	StrategyExponential Strategy = iota
	// StrategyLinear grows the delay proportionally to the attempt number.
	StrategyLinear
	// StrategyFixed uses the same delay for every attempt.
	StrategyFixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyExponential:
		return "exponential"
	case StrategyLinear:
		return "linear"
	case StrategyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Policy configures retry behavior for one protected operation class.
type Policy struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
	BackoffFactor float64
	Strategy      Strategy
	JitterFactor  float64
	// RetryIf, when set, is consulted first; returning true forces a retry
	// regardless of the built-in classification.
	RetryIf func(error) bool
	// RetryableStatusCodes lists HTTP status codes considered transient.
	RetryableStatusCodes []int
}

// DefaultPolicy returns a policy with exponential backoff and the usual
// transient HTTP status codes.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:           3,
		RetryDelay:           100 * time.Millisecond,
		MinRetryDelay:        50 * time.Millisecond,
		MaxRetryDelay:        30 * time.Second,
		BackoffFactor:        2.0,
		Strategy:             StrategyExponential,
		JitterFactor:         0.1,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// failure. attempt is 1-based: the first failed attempt passes attempt=1.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxRetries {
		return false
	}
	if p.RetryIf != nil && p.RetryIf(err) {
		return true
	}
	return p.classifyRetryable(err)
}

// NextDelay computes the wait before the given attempt. attempt is 1-based;
// with exponential strategy the delay is RetryDelay*Factor^(attempt-1),
// perturbed by symmetric jitter and clamped to [MinRetryDelay, MaxRetryDelay].
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay float64
	switch p.Strategy {
	case StrategyLinear:
		delay = float64(p.RetryDelay) * float64(attempt)
	case StrategyFixed:
		delay = float64(p.RetryDelay)
	default:
		factor := p.BackoffFactor
		if factor <= 0 {
			factor = 1
		}
		delay = float64(p.RetryDelay) * math.Pow(factor, float64(attempt-1))
	}

	if p.JitterFactor > 0 {
		// Symmetric: delay ± delay*JitterFactor.
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFactor
	}

	if p.MaxRetryDelay > 0 && delay > float64(p.MaxRetryDelay) {
		delay = float64(p.MaxRetryDelay)
	}
	if delay < float64(p.MinRetryDelay) {
		delay = float64(p.MinRetryDelay)
	}
	return time.Duration(delay)
}

func (p Policy) classifyRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Explicit category wins.
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Transient HTTP status codes.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		for _, code := range p.RetryableStatusCodes {
			if httpErr.StatusCode == code {
				return true
			}
		}
		return false
	}

	// Transient network faults: timeouts and DNS hiccups.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	return false
}

// RetryableError wraps an error with an explicit retryability category.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (r RetryableError) Error() string {
	return r.Err.Error()
}

// IsRetryable reports the wrapped category.
func (r RetryableError) IsRetryable() bool {
	return r.Retryable
}

func (r RetryableError) Unwrap() error {
	return r.Err
}

// MarkRetryable wraps err as retryable.
func MarkRetryable(err error) error {
	return RetryableError{Err: err, Retryable: true}
}

// MarkPermanent wraps err as not retryable.
func MarkPermanent(err error) error {
	return RetryableError{Err: err, Retryable: false}
}

// HTTPError carries a response status code through the error chain so the
// retry classification can match it against the policy's status codes.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}
