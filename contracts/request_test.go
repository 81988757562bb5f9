package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestClone(t *testing.T) {
	t.Run("clone is a deep copy", func(t *testing.T) {
		req := NewRequest("GET", "https://api.example.com/users")
		req.SetHeader("Authorization", "Bearer token")
		req.QueryParams["page"] = "1"
		req.Body = []byte(`{"q":"test"}`)
		req.Timeout = 5 * time.Second

		clone := req.Clone()

		assert.Equal(t, req.Method, clone.Method)
		assert.Equal(t, req.URL, clone.URL)
		assert.Equal(t, req.Headers, clone.Headers)
		assert.Equal(t, req.Body, clone.Body)
		assert.Equal(t, req.Timeout, clone.Timeout)

		// Mutating the clone must not touch the original
		clone.SetHeader("Authorization", "Bearer other")
		clone.Body[0] = 'X'
		clone.QueryParams["page"] = "2"

		auth, _ := req.Header("Authorization")
		assert.Equal(t, "Bearer token", auth)
		assert.Equal(t, byte('{'), req.Body[0])
		assert.Equal(t, "1", req.QueryParams["page"])
	})

	t.Run("nil request clones to nil", func(t *testing.T) {
		var req *Request
		assert.Nil(t, req.Clone())
	})

	t.Run("nil maps stay nil", func(t *testing.T) {
		req := &Request{Method: "GET", URL: "https://example.com"}
		clone := req.Clone()
		assert.Nil(t, clone.Headers)
		assert.Nil(t, clone.Body)
	})

	t.Run("SetHeader initializes map", func(t *testing.T) {
		req := &Request{}
		req.SetHeader("X-Test", "1")
		v, ok := req.Header("X-Test")
		assert.True(t, ok)
		assert.Equal(t, "1", v)
	})
}

func TestResponseClone(t *testing.T) {
	t.Run("clone is a deep copy", func(t *testing.T) {
		resp := &Response{
			StatusCode:    200,
			Headers:       map[string]string{"Content-Type": "application/json"},
			Body:          []byte(`{"ok":true}`),
			Duration:      10 * time.Millisecond,
			CorrelationID: "abc",
		}

		clone := resp.Clone()
		clone.Headers["Content-Type"] = "text/plain"
		clone.Body[0] = 'X'

		assert.Equal(t, "application/json", resp.Headers["Content-Type"])
		assert.Equal(t, byte('{'), resp.Body[0])
		assert.Equal(t, resp.CorrelationID, clone.CorrelationID)
	})

	t.Run("IsSuccess covers 2xx only", func(t *testing.T) {
		assert.True(t, (&Response{StatusCode: 200}).IsSuccess())
		assert.True(t, (&Response{StatusCode: 299}).IsSuccess())
		assert.False(t, (&Response{StatusCode: 199}).IsSuccess())
		assert.False(t, (&Response{StatusCode: 404}).IsSuccess())
		assert.False(t, (&Response{StatusCode: 500}).IsSuccess())
	})
}

func TestErrorOutcome(t *testing.T) {
	t.Run("recovered when recovery response present", func(t *testing.T) {
		outcome := &ErrorOutcome{Recovery: &Response{StatusCode: 200}}
		assert.True(t, outcome.Recovered())
	})

	t.Run("not recovered for plain error", func(t *testing.T) {
		outcome := &ErrorOutcome{Err: assert.AnError}
		assert.False(t, outcome.Recovered())
	})

	t.Run("nil outcome is not recovered", func(t *testing.T) {
		var outcome *ErrorOutcome
		assert.False(t, outcome.Recovered())
	})
}
