package salesforce

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// HeaderLimitInfo reports org API usage, e.g. "api-usage=25/15000".
	HeaderLimitInfo = "Sforce-Limit-Info"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"

	// DefaultPause is how long requests stop after a limit response
	// without a Retry-After header.
	DefaultPause = 30 * time.Second
)

// RateLimiter combines proactive throttling with a reactive pause.
type RateLimiter struct {
	bucket *rate.Limiter

	mu         sync.Mutex
	used       int
	max        int
	pauseUntil time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second.
// rps <= 0 disables throttling.
func NewRateLimiter(rps float64) *RateLimiter {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &RateLimiter{bucket: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	until := r.pauseUntil
	r.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// UpdateFromResponse records usage and pauses after a limit response.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if used, limit, ok := parseLimitInfo(resp.Header.Get(HeaderLimitInfo)); ok {
		r.used, r.max = used, limit
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		r.pauseLocked(retryAfter(resp))
	}
}

// Pause stops all requests for d.
func (r *RateLimiter) Pause(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseLocked(d)
}

func (r *RateLimiter) pauseLocked(d time.Duration) {
	if until := time.Now().Add(d); until.After(r.pauseUntil) {
		r.pauseUntil = until
	}
}

// Usage returns the last reported API usage of the org.
func (r *RateLimiter) Usage() (used, limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used, r.max
}

// parseLimitInfo parses "api-usage=25/15000".
func parseLimitInfo(h string) (used, limit int, ok bool) {
	for _, part := range strings.Split(h, ",") {
		v, found := strings.CutPrefix(strings.TrimSpace(part), "api-usage=")
		if !found {
			continue
		}
		a, b, found := strings.Cut(v, "/")
		if !found {
			return 0, 0, false
		}
		u, err1 := strconv.Atoi(a)
		m, err2 := strconv.Atoi(b)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return u, m, true
	}
	return 0, 0, false
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get(HeaderRetryAfter); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultPause
}
