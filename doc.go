// Package apivet is the request processing core of an API test
// automation client.
//
// A Client wires three layers around a user supplied Transport:
//
//   - an interceptor pipeline (package pipeline) that transforms
//     requests, responses, and errors through prioritized chains,
//   - a plugin manager (package plugin) that loads interceptor bundles
//     with lifecycle hooks and health probes,
//   - a resilience layer that retries transport failures with backoff
//     and fails fast behind a circuit breaker.
//
// Minimal usage:
//
//	client, err := apivet.NewClient(transport)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	resp, err := client.Execute(ctx, contracts.NewRequest("GET", "https://api.example.com/users"))
package apivet
