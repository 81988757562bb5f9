// Package contracts defines the request and response payloads that flow
// through the interceptor pipeline.
//
// Payloads are passed by value between pipeline stages: every interceptor
// receives its own clone, so mutating headers or metadata inside one stage
// never aliases the caller's original. Use Clone to copy a payload before
// handing it to concurrent work.
package contracts
