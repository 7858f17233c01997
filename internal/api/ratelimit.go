package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for model-backed endpoints, keyed
// by client address.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter allows limit calls per window per client. Idle clients are
// forgotten by a background sweep until Close is called.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Allow records a call for key and reports whether it fits the window.
func (r *RateLimiter) Allow(key string) bool {
	ok, _ := r.reserve(key, time.Now())
	return ok
}

// reserve is Allow with the time until the oldest call leaves the window
// when the key is over its limit.
func (r *RateLimiter) reserve(key string, now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recent := prune(r.requests[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false, recent[0].Add(r.window).Sub(now)
	}
	r.requests[key] = append(recent, now)
	return true, 0
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *RateLimiter) sweep() {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evict()
		}
	}
}

func (r *RateLimiter) evict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-r.window)
	for key, times := range r.requests {
		if fresh := prune(times, cutoff); len(fresh) > 0 {
			r.requests[key] = fresh
		} else {
			delete(r.requests, key)
		}
	}
}

// prune drops timestamps at or before cutoff. times is in call order.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == len(times) {
		return nil
	}
	return times[i:]
}

// Middleware answers 429 with a Retry-After hint once a client is over the
// limit. Clients are keyed by remote IP so opening new cases does not reset
// the budget.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ok, wait := r.reserve(clientKey(req), time.Now())
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
