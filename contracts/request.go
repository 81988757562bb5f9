package contracts

import (
	"time"
)

// Request describes one API call before it reaches the transport.
type Request struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewRequest creates a request with initialized header and metadata maps.
func NewRequest(method, url string) *Request {
	return &Request{
		Method:      method,
		URL:         url,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
		Metadata:    make(map[string]string),
	}
}

// SetHeader sets a header, initializing the map if needed.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// Header returns a header value and whether it is present.
func (r *Request) Header(key string) (string, bool) {
	v, ok := r.Headers[key]
	return v, ok
}

// Clone returns a deep copy of the request. Maps and the body are copied
// so the clone can be mutated freely by a pipeline stage.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := &Request{
		Method:  r.Method,
		URL:     r.URL,
		Timeout: r.Timeout,
	}
	clone.Headers = copyStringMap(r.Headers)
	clone.QueryParams = copyStringMap(r.QueryParams)
	clone.Metadata = copyStringMap(r.Metadata)
	if r.Body != nil {
		clone.Body = make([]byte, len(r.Body))
		copy(clone.Body, r.Body)
	}
	return clone
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
