package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/apivet/apivet-go/contracts"
)

const defaultCallTimeout = 30 * time.Second

// Executor runs phase chains against the registry. Interceptors within one
// chain run strictly sequentially; many chains may run concurrently against
// the same registry.
type Executor struct {
	registry    *Registry
	callTimeout time.Duration
	logger      *slog.Logger
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithCallTimeout sets the per-interceptor call budget.
func WithCallTimeout(timeout time.Duration) ExecutorOption {
	return func(x *Executor) {
		if timeout > 0 {
			x.callTimeout = timeout
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(x *Executor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// NewExecutor creates an executor over a registry.
func NewExecutor(registry *Registry, options ...ExecutorOption) *Executor {
	x := &Executor{
		registry:    registry,
		callTimeout: defaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(x)
	}
	return x
}

// RunRequestChain runs the enabled request-phase entries in priority order
// and returns the possibly replaced request. A critical failure aborts the
// chain; non-critical failures leave the payload unchanged and continue.
func (x *Executor) RunRequestChain(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	current := req
	for _, reg := range x.registry.snapshot(PhaseRequest) {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		if !x.conditionHolds(reg, ec) {
			continue
		}

		start := time.Now()
		result, err := x.invokeRequest(ctx, reg, ec, current)
		if err != nil {
			if aborted, chainErr := x.recordFailure(ctx, reg, start, err); aborted {
				return current, chainErr
			}
			continue
		}
		x.registry.stats.recordSuccess(reg.entry.ID, time.Since(start))
		if result != nil {
			current = result
		}
		if ec.ShortCircuited() {
			x.logger.Debug("request chain short-circuited",
				"interceptor", reg.entry.Name,
				"correlationId", ec.CorrelationID(),
			)
			break
		}
	}
	return current, nil
}

// RunResponseChain runs the enabled response-phase entries in priority
// order and returns the possibly replaced response.
func (x *Executor) RunResponseChain(ctx context.Context, ec *ExecutionContext, resp *contracts.Response) (*contracts.Response, error) {
	current := resp
	for _, reg := range x.registry.snapshot(PhaseResponse) {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		if !x.conditionHolds(reg, ec) {
			continue
		}

		start := time.Now()
		result, err := x.invokeResponse(ctx, reg, ec, current)
		if err != nil {
			if aborted, chainErr := x.recordFailure(ctx, reg, start, err); aborted {
				return current, chainErr
			}
			continue
		}
		x.registry.stats.recordSuccess(reg.entry.ID, time.Since(start))
		if result != nil {
			current = result
		}
		if ec.ShortCircuited() {
			break
		}
	}
	return current, nil
}

// RunErrorChain runs the enabled error-phase entries against a failure.
// Error-phase handlers are always treated as non-critical: their own
// failures are logged and swallowed so error handling never cascades. A
// handler may transform the error for the entries after it, or produce a
// recovery response, which stops the chain.
func (x *Executor) RunErrorChain(ctx context.Context, ec *ExecutionContext, cause error) *contracts.ErrorOutcome {
	current := cause
	for _, reg := range x.registry.snapshot(PhaseError) {
		if ctx.Err() != nil {
			break
		}
		if !x.conditionHolds(reg, ec) {
			continue
		}

		start := time.Now()
		outcome, err := x.invokeError(ctx, reg, ec, current)
		if err != nil {
			// Never aborts, regardless of the Critical flag.
			x.registry.stats.recordFailure(reg.entry.ID, time.Since(start), err, isTimeout(err))
			x.logger.Warn("error-phase interceptor failed",
				"interceptor", reg.entry.Name,
				"correlationId", ec.CorrelationID(),
				"error", err,
			)
			continue
		}
		x.registry.stats.recordSuccess(reg.entry.ID, time.Since(start))
		if outcome != nil {
			if outcome.Recovered() {
				return outcome
			}
			if outcome.Err != nil {
				current = outcome.Err
			}
		}
		if ec.ShortCircuited() {
			break
		}
	}
	return &contracts.ErrorOutcome{Err: current}
}

func (x *Executor) conditionHolds(reg *registered, ec *ExecutionContext) bool {
	if reg.entry.Condition == nil || reg.entry.Condition(ec) {
		return true
	}
	x.registry.stats.recordSkip(reg.entry.ID)
	return false
}

// recordFailure records a failed step and decides whether the chain aborts.
// Caller cancellation always aborts; otherwise only critical entries do.
func (x *Executor) recordFailure(ctx context.Context, reg *registered, start time.Time, err error) (bool, error) {
	x.registry.stats.recordFailure(reg.entry.ID, time.Since(start), err, isTimeout(err))

	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	if reg.entry.Critical {
		return true, &CriticalInterceptorError{
			Name:  reg.entry.Name,
			Phase: reg.entry.Phase,
			Err:   err,
		}
	}
	x.logger.Warn("interceptor failed, continuing chain",
		"interceptor", reg.entry.Name,
		"phase", reg.entry.Phase.String(),
		"error", err,
	)
	return false, nil
}

// invokeRequest races the handler against the per-call budget. On timeout
// the handler's eventual result is discarded; it received its own clone of
// the payload, so a late mutation cannot tear the chain's copy.
func (x *Executor) invokeRequest(ctx context.Context, reg *registered, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	callCtx, cancel := context.WithTimeout(ctx, x.callTimeout)
	defer cancel()

	type result struct {
		req *contracts.Request
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := reg.handler.request(callCtx, ec, req.Clone())
		done <- result{req: out, err: err}
	}()

	select {
	case res := <-done:
		return res.req, res.err
	case <-callCtx.Done():
		return nil, x.deadlineError(ctx, reg)
	}
}

func (x *Executor) invokeResponse(ctx context.Context, reg *registered, ec *ExecutionContext, resp *contracts.Response) (*contracts.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, x.callTimeout)
	defer cancel()

	type result struct {
		resp *contracts.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := reg.handler.response(callCtx, ec, resp.Clone())
		done <- result{resp: out, err: err}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-callCtx.Done():
		return nil, x.deadlineError(ctx, reg)
	}
}

func (x *Executor) invokeError(ctx context.Context, reg *registered, ec *ExecutionContext, cause error) (*contracts.ErrorOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, x.callTimeout)
	defer cancel()

	type result struct {
		outcome *contracts.ErrorOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		out, err := reg.handler.err(callCtx, ec, cause)
		done <- result{outcome: out, err: err}
	}()

	select {
	case res := <-done:
		return res.outcome, res.err
	case <-callCtx.Done():
		return nil, x.deadlineError(ctx, reg)
	}
}

func (x *Executor) deadlineError(ctx context.Context, reg *registered) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return &InterceptorTimeoutError{
		Name:    reg.entry.Name,
		Phase:   reg.entry.Phase,
		Timeout: x.callTimeout,
	}
}

func isTimeout(err error) bool {
	var timeoutErr *InterceptorTimeoutError
	return errors.As(err, &timeoutErr)
}
