package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginThrottle limits login attempts per email with a token bucket
type LoginThrottle struct {
	mu      sync.Mutex
	buckets map[string]*throttleBucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	calls   int
}

type throttleBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ThrottleOption configures a LoginThrottle
type ThrottleOption func(*LoginThrottle)

// WithThrottleClock sets the time source, used by tests
func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *LoginThrottle) {
		if now != nil {
			t.now = now
		}
	}
}

// WithThrottleIdleTTL sets how long an unused bucket is kept
func WithThrottleIdleTTL(d time.Duration) ThrottleOption {
	return func(t *LoginThrottle) {
		if d > 0 {
			t.idleTTL = d
		}
	}
}

// NewLoginThrottle allows burst attempts per email, refilled at one attempt
// every interval.
func NewLoginThrottle(burst int, interval time.Duration, opts ...ThrottleOption) *LoginThrottle {
	if burst <= 0 {
		burst = 5
	}
	if interval <= 0 {
		interval = time.Minute
	}

	t := &LoginThrottle{
		buckets: make(map[string]*throttleBucket),
		limit:   rate.Every(interval),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Allow consumes one attempt for email and reports whether it is allowed.
// A nil throttle allows everything.
func (t *LoginThrottle) Allow(email string) bool {
	if t == nil {
		return true
	}

	key := NormalizeEmail(email)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if t.calls%64 == 0 {
		t.pruneLocked(now)
	}

	b, ok := t.buckets[key]
	if !ok {
		b = &throttleBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.seen = now

	return b.lim.AllowN(now, 1)
}

// Reset forgets the attempts recorded for email, called after a successful login
func (t *LoginThrottle) Reset(email string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.buckets, NormalizeEmail(email))
	t.mu.Unlock()
}

// Len returns the number of tracked emails
func (t *LoginThrottle) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func (t *LoginThrottle) pruneLocked(now time.Time) {
	for k, b := range t.buckets {
		if now.Sub(b.seen) > t.idleTTL {
			delete(t.buckets, k)
		}
	}
}
