// Package pipeline provides the interceptor registry and chain executor at
// the heart of the request processing core.
//
// Interceptors are registered per phase (request, response, error) with a
// priority; a chain run executes the enabled entries of one phase in
// descending priority order, ties broken by registration order. This package
// provides:
//   - Registry for registering, enabling and removing interceptors
//   - Executor running phase chains with per-call timeout enforcement
//   - Short-circuit support for cache hits and early rejections
//   - Per-entry execution statistics
//   - Built-in interceptors for common concerns
//
// Built-in interceptors:
//   - LoggingInterceptor: logs request and response traffic with timing
//   - HeaderInjector: stamps static headers (auth tokens) onto requests
//   - RequestValidator: rejects structurally invalid requests
//   - ResponseCache: serves cached responses, short-circuiting the chain
//   - CorrelationStamper: propagates the correlation id as a header
//
// Example usage:
//
//	registry := pipeline.NewRegistry(pipeline.WithRegistryLogger(logger))
//	executor := pipeline.NewExecutor(registry)
//
//	registry.RegisterRequest(pipeline.Entry{
//		Name:     "auth",
//		Priority: 100,
//		Enabled:  true,
//	}, injector.Handle)
//
//	ec := pipeline.NewExecutionContext()
//	req, err := executor.RunRequestChain(ctx, ec, req)
//
// A handler that sets ec.ShortCircuit() stops the chain after its own step;
// remaining entries are skipped and the current payload is returned as-is.
package pipeline
