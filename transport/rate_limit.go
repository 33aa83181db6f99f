package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

// RateLimitedDoer holds each request until the token bucket admits it.
// Waiting honours the request context.
type RateLimitedDoer struct {
	next    HTTPDoer
	limiter *rate.Limiter
}

// NewRateLimitedDoer wraps next with a limit of requestsPerSecond. A
// non-positive rate returns next unchanged.
func NewRateLimitedDoer(next HTTPDoer, requestsPerSecond float64, burst int) HTTPDoer {
	if next == nil {
		next = &http.Client{Timeout: DefaultTimeout}
	}
	if requestsPerSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedDoer{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (d *RateLimitedDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return nil, wrapError(err, goerrors.CategoryRateLimit, "transport: rate limit wait",
			http.StatusTooManyRequests, map[string]any{"url": req.URL.String()})
	}
	return d.next.Do(req)
}

var _ HTTPDoer = (*RateLimitedDoer)(nil)
