package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apivet/apivet-go/contracts"
)

// Built-in interceptors

// LoggingInterceptor logs request and response traffic with timing.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// HandleRequest implements RequestHandler.
func (i *LoggingInterceptor) HandleRequest(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	i.logger.Info("sending request",
		"method", req.Method,
		"url", req.URL,
		"correlationId", ec.CorrelationID(),
		"attempt", ec.Attempt(),
	)
	return req, nil
}

// HandleResponse implements ResponseHandler.
func (i *LoggingInterceptor) HandleResponse(ctx context.Context, ec *ExecutionContext, resp *contracts.Response) (*contracts.Response, error) {
	i.logger.Info("received response",
		"status", resp.StatusCode,
		"duration", resp.Duration,
		"correlationId", ec.CorrelationID(),
	)
	return resp, nil
}

// HeaderInjector stamps static headers onto every request. Typical use is
// attaching an authorization token.
type HeaderInjector struct {
	headers map[string]string
}

// NewHeaderInjector creates an injector for the given headers.
func NewHeaderInjector(headers map[string]string) *HeaderInjector {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &HeaderInjector{headers: copied}
}

// Handle implements RequestHandler.
func (i *HeaderInjector) Handle(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	for k, v := range i.headers {
		req.SetHeader(k, v)
	}
	return req, nil
}

// RequestValidator rejects structurally invalid requests. Register it as a
// critical entry so a malformed request aborts the chain before transport.
type RequestValidator struct{}

// NewRequestValidator creates a new request validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

// Handle implements RequestHandler.
func (v *RequestValidator) Handle(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	if req.Method == "" {
		return nil, errors.New("request method is required")
	}
	if req.URL == "" {
		return nil, errors.New("request URL is required")
	}
	return req, nil
}

// CorrelationStamper propagates the invocation correlation id as a request
// header.
type CorrelationStamper struct {
	header string
}

// NewCorrelationStamper creates a stamper writing to the given header,
// defaulting to X-Correlation-ID.
func NewCorrelationStamper(header string) *CorrelationStamper {
	if header == "" {
		header = "X-Correlation-ID"
	}
	return &CorrelationStamper{header: header}
}

// Handle implements RequestHandler.
func (s *CorrelationStamper) Handle(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	req.SetHeader(s.header, ec.CorrelationID())
	return req, nil
}

// ResponseCache serves previously seen responses and short-circuits the
// request chain on a hit. Entries expire after the configured TTL.
type ResponseCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time
	data map[string]cachedResponse
}

type cachedResponse struct {
	resp      *contracts.Response
	expiresAt time.Time
}

// NewResponseCache creates a cache with the given TTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]cachedResponse),
	}
}

// HandleRequest implements RequestHandler. On a cache hit it stores the
// cached response on the execution context and short-circuits the chain.
func (c *ResponseCache) HandleRequest(ctx context.Context, ec *ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
	key := cacheKey(req)

	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		cached := entry.resp.Clone()
		cached.FromCache = true
		ec.SetCachedResult(cached)
		ec.ShortCircuit()
		return req, nil
	}

	// Miss: remember the request identity so HandleResponse can store the
	// response under the right key.
	ec.Set(metaCacheMethod, req.Method)
	ec.Set(metaCacheURL, req.URL)
	return req, nil
}

// HandleResponse implements ResponseHandler, storing successful responses.
func (c *ResponseCache) HandleResponse(ctx context.Context, ec *ExecutionContext, resp *contracts.Response) (*contracts.Response, error) {
	if !resp.IsSuccess() || resp.FromCache {
		return resp, nil
	}
	method, _ := ec.GetString(metaCacheMethod)
	url, _ := ec.GetString(metaCacheURL)
	if method == "" || url == "" {
		return resp, nil
	}

	c.mu.Lock()
	c.data[method+" "+url] = cachedResponse{
		resp:      resp.Clone(),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return resp, nil
}

// Invalidate drops a cached entry.
func (c *ResponseCache) Invalidate(req *contracts.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, cacheKey(req))
}

// Len returns the number of cached entries, expired ones included.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

const (
	metaCacheMethod = "cache:method"
	metaCacheURL    = "cache:url"
)

func cacheKey(req *contracts.Request) string {
	return fmt.Sprintf("%s %s", req.Method, req.URL)
}
