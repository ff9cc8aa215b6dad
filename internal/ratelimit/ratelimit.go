// Package ratelimit provides a per-IP token-bucket limiter shared by every
// listener (the TCP hub's LOGIN frame, the HTTP bridge's /api/auth/login)
// that needs to bound login attempts ahead of credential verification.
package ratelimit

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter enforces a per-IP token-bucket rate limit. Limiters are
// cached by IP with TTL expiration so idle IPs don't leak memory.
type IPRateLimiter struct {
	cache *cache.Cache
	rate  rate.Limit
	burst int
}

// NewIPRateLimiter builds a limiter allowing r requests/sec with burst b.
// Each per-IP limiter expires ttl after it was first created (lookups do
// not extend it); the cache purges expired entries every 2*ttl.
func NewIPRateLimiter(r rate.Limit, b int, ttl time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		cache: cache.New(ttl, 2*ttl),
		rate:  r,
		burst: b,
	}
}

// Allow reports whether a request from ip is currently permitted.
func (l *IPRateLimiter) Allow(ip string) bool {
	v, found := l.cache.Get(ip)
	if !found {
		v = rate.NewLimiter(l.rate, l.burst)
		l.cache.Set(ip, v, cache.DefaultExpiration)
	}
	return v.(*rate.Limiter).Allow()
}
