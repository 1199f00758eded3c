// Package httputil provides HTTP helpers shared by the remote clients.
//
// # Retry
//
// [Retry] re-runs an operation on transient failures. Only errors wrapped in
// [RetryableError] are retried; everything else (404, decode errors) is
// returned immediately. Clients wrap network errors and 5xx responses:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return client.Get(ctx, url, &v)
//	})
//
// [DefaultPolicy] makes 3 attempts with a 1 second initial delay, doubling
// after each failure and capped at 30 seconds. A Retry-After header on a 503
// overrides the backoff for that attempt (see [RetryAfter]).
//
// # Byte counting
//
// [CountingReader] tallies bytes as a body streams through it, so large
// downloads can be checked against their Content-Length without buffering.
package httputil
