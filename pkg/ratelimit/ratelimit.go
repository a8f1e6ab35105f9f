// Package ratelimit implements the fixed-window per-IP limiter fronting
// /mcp (spec.md §4.6): clamped bounds, TRUSTED_PROXIES-aware client IP
// extraction, Retry-After computation, and idle-entry eviction.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minMaxRequests = 1
	maxMaxRequests = 10000
	minWindow      = time.Second
	maxWindow      = time.Hour
)

// window pairs a fixed reset time with a golang.org/x/time/rate.Limiter
// used purely as a thread-safe token counter: burst is set to maxRequests
// and the refill rate is zero, so it behaves as a hard per-window quota
// rather than rate.Limiter's native sliding token bucket. The window's
// own resetAt/lastUsed drive the fixed-window rollover and Retry-After
// computation that x/time/rate doesn't provide on its own.
type window struct {
	limiter  *rate.Limiter
	resetAt  time.Time
	lastUsed time.Time
}

// Limiter is a fixed-window per-IP rate limiter.
type Limiter struct {
	mu             sync.Mutex
	windows        map[string]*window
	maxRequests    int
	windowDuration time.Duration

	trustedProxies map[string]bool

	stop chan struct{}
	once sync.Once
}

// New constructs a Limiter, clamping maxRequests to [1, 10000] and
// windowDuration to [1s, 1h] per spec.md §4.6.
func New(maxRequests int, windowDuration time.Duration, trustedProxies []string) *Limiter {
	if maxRequests < minMaxRequests {
		maxRequests = minMaxRequests
	}
	if maxRequests > maxMaxRequests {
		maxRequests = maxMaxRequests
	}
	if windowDuration < minWindow {
		windowDuration = minWindow
	}
	if windowDuration > maxWindow {
		windowDuration = maxWindow
	}

	trusted := make(map[string]bool, len(trustedProxies))
	for _, p := range trustedProxies {
		trusted[strings.TrimSpace(p)] = true
	}

	l := &Limiter{
		windows:        make(map[string]*window),
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		trustedProxies: trusted,
		stop:           make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Result is the outcome of Allow.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration // valid only when !Allowed
}

// Allow registers a request for ip and reports whether it is within the
// current fixed window.
func (l *Limiter) Allow(ip string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[ip]
	if !ok || now.After(w.resetAt) {
		w = &window{
			limiter: rate.NewLimiter(0, l.maxRequests),
			resetAt: now.Add(l.windowDuration),
		}
		l.windows[ip] = w
	}
	w.lastUsed = now

	if !w.limiter.AllowN(now, 1) {
		return Result{Allowed: false, RetryAfter: ceilDuration(w.resetAt.Sub(now))}
	}
	return Result{Allowed: true}
}

func ceilDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	secs := math.Ceil(d.Seconds())
	return time.Duration(secs) * time.Second
}

// ClientIP extracts the caller's IP per spec.md §4.6: X-Real-IP, or the
// first X-Forwarded-For hop, but only when the socket peer is a trusted
// proxy (or the trusted set is empty); otherwise the socket peer itself.
func (l *Limiter) ClientIP(r *http.Request) string {
	peer := socketIP(r.RemoteAddr)

	trustPeer := len(l.trustedProxies) == 0 || l.trustedProxies[peer]
	if !trustPeer {
		return peer
	}

	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		first := strings.TrimSpace(parts[0])
		if first != "" {
			return first
		}
	}
	return peer
}

func socketIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// cleanupLoop removes windows idle for more than an hour, checked
// periodically on the window duration (but never more often than once a
// minute, to avoid a tight loop for sub-minute windows).
func (l *Limiter) cleanupLoop() {
	period := l.windowDuration
	if period < time.Minute {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, w := range l.windows {
		if now.After(w.resetAt) && now.Sub(w.lastUsed) > time.Hour {
			delete(l.windows, ip)
		}
	}
}

// Close stops the cleanup loop.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
