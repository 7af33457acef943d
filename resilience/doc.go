// Package resilience holds the fault-tolerance primitives the engine uses:
//
//   - Retry: bounded retries with exponential backoff for nodes whose error
//     policy is "retry"
//   - Bulkhead: caps how many nodes of one dependency level run at once
//   - CircuitBreaker and RateLimiter: guard calls into a capability provider
package resilience
