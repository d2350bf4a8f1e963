package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttleIdleTimeout = 10 * time.Minute

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ipThrottle is a token bucket per client IP for websocket handshakes.
// Event-level limits live in the ratelimit package.
type ipThrottle struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

func newIPThrottle(perSecond float64, burst int) *ipThrottle {
	return &ipThrottle{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	l, ok := t.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[ip] = l
	}
	l.lastAccess = now

	return l.limiter.AllowN(now, 1)
}

// sweep drops limiters not used for longer than idle.
func (t *ipThrottle) sweep(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for ip, l := range t.limiters {
		if now.Sub(l.lastAccess) > idle {
			delete(t.limiters, ip)
			removed++
		}
	}
	return removed
}

func (t *ipThrottle) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep(throttleIdleTimeout)
		case <-t.done:
			return
		}
	}
}

func (t *ipThrottle) stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
