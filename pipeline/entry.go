package pipeline

import (
	"context"

	"github.com/apivet/apivet-go/contracts"
)

// RequestHandler processes a request-phase payload. It receives its own
// clone of the request and returns the (possibly replaced) request for the
// next entry. Returning nil leaves the payload unchanged.
type RequestHandler func(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error)

// ResponseHandler processes a response-phase payload.
type ResponseHandler func(ctx context.Context, ec *ExecutionContext, resp *contracts.Response) (*contracts.Response, error)

// ErrorHandler processes an error-phase payload. It may transform the error
// or produce a recovery response; returning a nil outcome leaves the current
// error unchanged.
type ErrorHandler func(ctx context.Context, ec *ExecutionContext, cause error) (*contracts.ErrorOutcome, error)

// Condition gates an entry per invocation. A nil condition always passes.
type Condition func(ec *ExecutionContext) bool

// Entry describes one interceptor registration. Priority is the primary
// sort key (higher runs first); among equal priorities registration order is
// preserved.
type Entry struct {
	ID        string
	Name      string
	Phase     Phase
	Priority  int
	Enabled   bool
	Critical  bool
	Group     string
	Condition Condition
}

// Registration bundles an entry with its handler so callers (plugins in
// particular) can declare interceptors without touching the registry
// directly. Exactly one handler field must be set and it must match
// Entry.Phase.
type Registration struct {
	Entry    Entry
	Request  RequestHandler
	Response ResponseHandler
	Error    ErrorHandler
}

// handler is the closed per-phase dispatch variant: exactly one field is
// non-nil, matching the entry's phase.
type handler struct {
	request  RequestHandler
	response ResponseHandler
	err      ErrorHandler
}

// MetadataEquals returns a condition that passes when an execution context
// metadata value equals the expected value.
func MetadataEquals(key string, expected interface{}) Condition {
	return func(ec *ExecutionContext) bool {
		v, ok := ec.Get(key)
		return ok && v == expected
	}
}

// Not inverts a condition.
func Not(c Condition) Condition {
	return func(ec *ExecutionContext) bool {
		return c == nil || !c(ec)
	}
}

// AllOf combines conditions with AND logic.
func AllOf(conditions ...Condition) Condition {
	return func(ec *ExecutionContext) bool {
		for _, c := range conditions {
			if c != nil && !c(ec) {
				return false
			}
		}
		return true
	}
}

// AnyOf combines conditions with OR logic.
func AnyOf(conditions ...Condition) Condition {
	return func(ec *ExecutionContext) bool {
		for _, c := range conditions {
			if c != nil && c(ec) {
				return true
			}
		}
		return false
	}
}
