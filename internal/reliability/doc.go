// Package reliability provides the resilience layer for pipeline
// operations: retry policies with configurable backoff, a three-state
// circuit breaker, and an executor that combines both.
//
// The breaker gate is checked before every attempt. An open breaker fails
// fast with CircuitOpenError: no attempt is made and no delay is computed.
// After the recovery timeout a single probing attempt is allowed; its
// outcome decides whether the breaker reopens or moves toward closed.
//
// Retry waiting is non-blocking with respect to other operations: the
// executor sleeps on a timer raced against the caller's context, so
// cancelling the context interrupts the wait at the next attempt boundary.
package reliability
