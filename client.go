package apivet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/apivet/apivet-go/config"
	"github.com/apivet/apivet-go/contracts"
	"github.com/apivet/apivet-go/health"
	"github.com/apivet/apivet-go/internal/reliability"
	"github.com/apivet/apivet-go/pipeline"
	"github.com/apivet/apivet-go/plugin"
)

var (
	// ErrNilTransport is returned by NewClient without a transport.
	ErrNilTransport = errors.New("apivet: transport is required")
	// ErrNilRequest is returned by Execute for a nil request.
	ErrNilRequest = errors.New("apivet: request is nil")
)

// Transport sends a prepared request and returns the raw response. The
// client never retries inside a Transport; retries and circuit breaking
// happen around it.
type Transport interface {
	Do(ctx context.Context, req *contracts.Request) (*contracts.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *contracts.Request) (*contracts.Response, error)

// Do implements Transport.
func (f TransportFunc) Do(ctx context.Context, req *contracts.Request) (*contracts.Response, error) {
	return f(ctx, req)
}

// Client ties the interceptor pipeline, the plugin manager, and the
// resilience layer together around a Transport.
type Client struct {
	logger    *slog.Logger
	cfg       *config.Config
	transport Transport
	variables plugin.VariableStore

	registry *pipeline.Registry
	chain    *pipeline.Executor
	plugins  *plugin.Manager
	retrier  *reliability.Executor
	checks   *health.Registry

	retryable map[int]struct{}
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithVariables sets the variable store shared with plugins.
func WithVariables(store plugin.VariableStore) Option {
	return func(c *Client) {
		if store != nil {
			c.variables = store
		}
	}
}

// NewClient creates a client around the given transport.
func NewClient(transport Transport, options ...Option) (*Client, error) {
	c := &Client{
		logger:    slog.Default(),
		cfg:       config.Default(),
		transport: transport,
		variables: plugin.NewMemoryVariableStore(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.transport == nil {
		return nil, ErrNilTransport
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	registryOpts := []pipeline.RegistryOption{pipeline.WithRegistryLogger(c.logger)}
	if c.cfg.Pipeline.AllowDuplicates {
		registryOpts = append(registryOpts, pipeline.WithAllowDuplicates(true))
	}
	c.registry = pipeline.NewRegistry(registryOpts...)

	c.chain = pipeline.NewExecutor(c.registry,
		pipeline.WithCallTimeout(c.cfg.Pipeline.CallTimeout),
		pipeline.WithExecutorLogger(c.logger),
	)

	c.plugins = plugin.NewManager(c.registry,
		plugin.WithManagerLogger(c.logger),
		plugin.WithServices(plugin.Services{Variables: c.variables}),
		plugin.WithHookTimeout(c.cfg.Plugins.HookTimeout),
		plugin.WithHealthCheckTimeout(c.cfg.Plugins.HealthCheckTimeout),
		plugin.WithHealthCheckInterval(c.cfg.Plugins.HealthCheckInterval),
	)

	breaker := reliability.NewCircuitBreaker(
		reliability.WithBreakerName("transport"),
		reliability.WithFailureThreshold(c.cfg.Breaker.FailureThreshold),
		reliability.WithSuccessThreshold(c.cfg.Breaker.SuccessThreshold),
		reliability.WithRecoveryTimeout(c.cfg.Breaker.RecoveryTimeout),
	)
	c.retrier = reliability.NewExecutor(retryPolicy(c.cfg.Retry),
		reliability.WithBreaker(breaker),
		reliability.WithExecutorLogger(c.logger),
	)

	c.retryable = make(map[int]struct{}, len(c.cfg.Retry.RetryableStatusCodes))
	for _, code := range c.cfg.Retry.RetryableStatusCodes {
		c.retryable[code] = struct{}{}
	}

	c.checks = health.NewRegistry()
	c.checks.Register(health.NewPluginChecker(c.plugins))
	c.checks.Register(health.NewBreakerChecker("transport_breaker", breaker))
	c.checks.Register(health.NewRuntimeChecker(500, 1000))

	return c, nil
}

// Execute runs one request through the full pipeline: request chain,
// transport with retries and circuit breaking, response chain. Transport
// failures that exhaust the resilience layer flow through the error chain,
// which may still recover a response.
func (c *Client) Execute(ctx context.Context, req *contracts.Request) (*contracts.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	ec := pipeline.NewExecutionContext()
	log := c.logger.With("correlationId", ec.CorrelationID())

	prepared, err := c.chain.RunRequestChain(ctx, ec, req)
	if err != nil {
		return c.recover(ctx, ec, err)
	}

	if cached, ok := ec.CachedResult(); ok {
		if resp, ok := cached.(*contracts.Response); ok {
			log.Debug("serving cached response",
				"method", prepared.Method,
				"url", prepared.URL,
			)
			resp.CorrelationID = ec.CorrelationID()
			return resp, nil
		}
	}

	first := true
	resp, _, err := reliability.ExecuteFunc(ctx, c.retrier, func(opCtx context.Context) (*contracts.Response, error) {
		if !first {
			ec.NextAttempt()
		}
		first = false

		r, doErr := c.transport.Do(opCtx, prepared)
		if doErr != nil {
			return nil, doErr
		}
		if _, retry := c.retryable[r.StatusCode]; retry {
			return nil, &reliability.HTTPError{
				StatusCode: r.StatusCode,
				Status:     http.StatusText(r.StatusCode),
			}
		}
		return r, nil
	})
	if err != nil {
		return c.recover(ctx, ec, err)
	}

	resp.CorrelationID = ec.CorrelationID()
	final, err := c.chain.RunResponseChain(ctx, ec, resp)
	if err != nil {
		return c.recover(ctx, ec, err)
	}
	return final, nil
}

// recover routes a failure through the error chain. A recovery response
// resolves the call successfully.
func (c *Client) recover(ctx context.Context, ec *pipeline.ExecutionContext, cause error) (*contracts.Response, error) {
	outcome := c.chain.RunErrorChain(ctx, ec, cause)
	if outcome.Recovered() {
		c.logger.Info("error chain recovered a response",
			"correlationId", ec.CorrelationID(),
			"cause", cause,
		)
		outcome.Recovery.CorrelationID = ec.CorrelationID()
		return outcome.Recovery, nil
	}
	return nil, outcome.Err
}

// Use registers an interceptor directly, outside any plugin.
func (c *Client) Use(reg pipeline.Registration) (string, error) {
	return c.registry.Apply(reg)
}

// Registry exposes the interceptor registry.
func (c *Client) Registry() *pipeline.Registry {
	return c.registry
}

// Plugins exposes the plugin manager.
func (c *Client) Plugins() *plugin.Manager {
	return c.plugins
}

// Statistics returns per-interceptor execution statistics.
func (c *Client) Statistics() []pipeline.EntryStats {
	return c.registry.Stats().All()
}

// Summary returns aggregated interceptor statistics.
func (c *Client) Summary() pipeline.Summary {
	return c.registry.Stats().Summary()
}

// CheckHealth runs all component health checks.
func (c *Client) CheckHealth(ctx context.Context) health.OverallHealth {
	return c.checks.Check(ctx)
}

// Close stops background work and unloads every plugin. Teardown hook
// failures are logged by the manager and do not abort the shutdown.
func (c *Client) Close(ctx context.Context) error {
	// Not running is fine.
	_ = c.plugins.StopHealthChecks()

	var firstErr error
	for _, info := range c.plugins.List() {
		if err := c.plugins.Unregister(ctx, info.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// retryPolicy maps the configuration onto the resilience policy.
func retryPolicy(rc config.RetryConfig) reliability.Policy {
	p := reliability.Policy{
		MaxRetries:           rc.MaxRetries,
		RetryDelay:           rc.RetryDelay,
		MinRetryDelay:        rc.MinRetryDelay,
		MaxRetryDelay:        rc.MaxRetryDelay,
		BackoffFactor:        rc.BackoffFactor,
		JitterFactor:         rc.JitterFactor,
		RetryableStatusCodes: rc.RetryableStatusCodes,
	}
	switch rc.Strategy {
	case "linear":
		p.Strategy = reliability.StrategyLinear
	case "fixed":
		p.Strategy = reliability.StrategyFixed
	default:
		p.Strategy = reliability.StrategyExponential
	}
	return p
}
