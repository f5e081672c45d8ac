package web_fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter spaces out requests to the same host. A zero rate disables it.
type hostLimiter struct {
	rps float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiter(rps float64) *hostLimiter {
	return &hostLimiter{rps: rps, limiters: make(map[string]*rate.Limiter)}
}

func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.rps <= 0 {
		return nil
	}
	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(h.rps), 1)
		h.limiters[host] = lim
	}
	h.mu.Unlock()
	return lim.Wait(ctx)
}
