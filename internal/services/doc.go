// Package services implements the transport to the Sender.net email-marketing API.
//
// # Service Interface
//
// [Service] is the provider surface the sync engine consumes. [SenderClient] implements it over
// the Sender.net v2 REST API.
//
// # Transport
//
// Requests go through three layers:
//   - an oauth2 static token source that injects the API key as a bearer token
//   - [RetryClient], which retries 429/5xx and network failures with exponential backoff and full jitter
//   - [Throttle], which paces requests with a token bucket that shrinks on 429 responses and pauses on
//     Retry-After or exhausted X-RateLimit-Remaining headers
//
// # Error Handling
//
// Non-2xx responses surface as [*APIError], which unwraps to:
//   - [shared.ErrAPIRequest] : any failed request
//   - [ErrNotFound] : 404, a valid negative lookup result
//   - [shared.ErrRateLimited] : 429 after retries are exhausted
//
// A 2xx body missing its expected keys yields [ErrUnexpectedResponse] carrying the raw body.
// [ErrUnsupportedMethod] is reserved for programming errors.
//
// # API Mappings
//
// Wire types ([SenderSubscriber], [SenderGroup]) convert to models.Subscriber and models.Group.
// IDs may arrive as JSON strings or numbers and are normalized to strings.
package services
