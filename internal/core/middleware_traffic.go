package core

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"weatherforecast/internal/types"
)

const (
	// defaultLimiterIdleTTL is how long an idle client's bucket is retained.
	defaultLimiterIdleTTL = 10 * time.Minute
	// defaultMaxClients bounds the bucket map between sweeps.
	defaultMaxClients = 10000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps one token bucket per client key. Idle buckets are
// swept lazily during Allow, so no background goroutine is needed. Once
// maxClients keys are tracked, a new key evicts the least recently seen one.
type ClientRateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	maxClients int
	lastSweep  time.Time
	now        func() time.Time
}

// NewClientRateLimiter returns a limiter allowing rps sustained requests
// with the given burst per client. It returns nil when rps is not positive,
// which the RateLimit middleware treats as disabled.
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientRateLimiter{
		clients:    make(map[string]*clientLimiter),
		limit:      rate.Limit(rps),
		burst:      burst,
		idleTTL:    defaultLimiterIdleTTL,
		maxClients: defaultMaxClients,
		now:        time.Now,
	}
}

// WithMaxClients sets the bucket cap. Values below one are ignored. It is
// safe to call on a nil (disabled) limiter.
func (l *ClientRateLimiter) WithMaxClients(n int) *ClientRateLimiter {
	if l != nil && n > 0 {
		l.maxClients = n
	}
	return l
}

// Allow reports whether key may make a request now, consuming a token if so.
func (l *ClientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.evictOldestLocked()
		}
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *ClientRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ClientRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idleTTL {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

func (l *ClientRateLimiter) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, c := range l.clients {
		if !found || c.lastSeen.Before(oldest) {
			oldestKey, oldest, found = key, c.lastSeen, true
		}
	}
	if found {
		delete(l.clients, oldestKey)
	}
}

// ClientIPResolver derives the client address used as the rate-limit key.
// X-Forwarded-For is consulted only when the direct peer is a trusted
// proxy; the chain is then walked right to left and the first untrusted
// hop wins. A nil resolver trusts nothing.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver parses CIDR ranges (bare addresses are accepted as
// single-host ranges).
func NewClientIPResolver(cidrs []string) (*ClientIPResolver, error) {
	res := &ClientIPResolver{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		res.trusted = append(res.trusted, prefix.Masked())
	}
	return res, nil
}

func (c *ClientIPResolver) isTrusted(ip string) bool {
	if c == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client that sent r.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !c.isTrusted(peer) {
		return peer
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		if _, err := netip.ParseAddr(hops[i]); err != nil {
			break
		}
		client = hops[i]
		if !c.isTrusted(client) {
			break
		}
	}
	return client
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RateLimit rejects requests from clients that exhausted their bucket with
// 429 and Retry-After. It is a pass-through when s.RateLimiter is nil.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := s.ClientIP.ClientIP(r)
		if !s.RateLimiter.Allow(ip) {
			types.LoggerFromContext(r.Context(), s.Logger).Warn("rate limit exceeded", "ip", ip)
			w.Header().Set("Retry-After", "1")
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "too many requests", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
