// Package github implements the version-control provider port on top of the
// go-github SDK.
//
// # Architecture
//
// The package comprises the following components:
//
//   - Client: typed wrapper over the GitHub REST API, one per credential
//   - Factory: creates clients per connection per cycle so tokens never go stale
//   - RateLimiter: dual-strategy rate limiting shared by all calls
//
// # Authentication
//
// Clients authenticate with a personal access token or an OAuth token via
// an oauth2 static token source. Authenticated users get 5,000 API requests
// per hour; unauthenticated access is not supported.
//
// # Rate Limiting
//
// The client implements a dual-strategy rate limiting approach:
//
//  1. Proactive throttling: a token bucket limits requests to approximately
//     1.2 requests per second, staying well under the 5,000/hour limit
//     whilst maximising throughput.
//
//  2. Reactive handling: the client monitors X-RateLimit-Remaining and
//     X-RateLimit-Reset headers. When limits are exhausted, it waits until
//     the reset time before continuing.
//
// # Error Handling
//
// API failures map to typed errors so callers can branch without inspecting
// response objects:
//
//   - Rate limit errors: carry the reset time, retryable
//   - Not-found errors: the repository, PR or commit is gone
//   - Auth errors: the token is invalid or lacks scope, reported immediately
//
// # Limitations
//
//   - File patches larger than the API's diff cap arrive truncated
//   - Merged-PR listing pages through closed PRs and filters client-side,
//     as the REST API has no merged-since query
package github
