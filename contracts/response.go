package contracts

import (
	"time"
)

// Response describes the outcome of one transported API call.
type Response struct {
	StatusCode    int               `json:"statusCode"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          []byte            `json:"body,omitempty"`
	Duration      time.Duration     `json:"duration"`
	CorrelationID string            `json:"correlationId,omitempty"`
	FromCache     bool              `json:"fromCache,omitempty"`
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := &Response{
		StatusCode:    r.StatusCode,
		Duration:      r.Duration,
		CorrelationID: r.CorrelationID,
		FromCache:     r.FromCache,
	}
	clone.Headers = copyStringMap(r.Headers)
	if r.Body != nil {
		clone.Body = make([]byte, len(r.Body))
		copy(clone.Body, r.Body)
	}
	return clone
}

// ErrorOutcome is the result of running the error-phase chain. Exactly one
// of the two fields is meaningful: a non-nil Recovery means an error-phase
// interceptor produced a substitute response and the operation succeeds;
// otherwise Err carries the (possibly transformed) failure.
type ErrorOutcome struct {
	Err      error
	Recovery *Response
}

// Recovered reports whether the outcome carries a recovery response.
func (o *ErrorOutcome) Recovered() bool {
	return o != nil && o.Recovery != nil
}
