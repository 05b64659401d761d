package source

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const fetchTimeout = 30 * time.Second

// client is a rate-limited HTTP client shared by the adapters. The
// limiter throttles outbound requests per origin; the timeout applies
// per fetch call, not per cycle.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(perSecond float64) *client {
	if perSecond <= 0 {
		perSecond = 2
	}
	return &client{
		http:    &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// do waits for rate-limit clearance, then performs the request with the
// caller's context attached.
func (c *client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Do(req.WithContext(ctx))
}
