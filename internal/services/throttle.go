package services

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// ThrottleOpts configures [NewThrottle].
type ThrottleOpts struct {
	// Floor is the minimum spacing enforced by [Throttle.Pace] between mutating calls.
	Floor time.Duration
	// Rate is the steady request rate in requests per second. Zero disables the token bucket.
	Rate float64
	// MinRate bounds how far 429 responses can shrink the rate. Defaults to Rate/8.
	MinRate float64
	Logger  *log.Logger
}

// Throttle paces calls to the Sender.net API.
//
// It combines a fixed floor between mutating calls with a token bucket whose rate adapts to what the API reports:
// a 429 halves the rate and honours Retry-After, an exhausted X-RateLimit-Remaining pauses until the reset, and
// each success recovers a quarter of the lost rate.
type Throttle struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	base        rate.Limit
	min         rate.Limit
	floor       time.Duration
	lastPace    time.Time
	pausedUntil time.Time
	logger      *log.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a [Throttle]. A nil logger discards throttle events.
func NewThrottle(opts ThrottleOpts) *Throttle {
	t := &Throttle{
		floor:  opts.Floor,
		logger: opts.Logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
	if opts.Rate > 0 {
		t.base = rate.Limit(opts.Rate)
		t.min = rate.Limit(opts.MinRate)
		if t.min <= 0 || t.min > t.base {
			t.min = t.base / 8
		}
		t.limiter = rate.NewLimiter(t.base, 1)
	}
	return t
}

// WithClock replaces the time source and sleeper, for tests.
func (t *Throttle) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Throttle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.sleep = sleep
	return t
}

// Wait blocks until a request may be sent: any active pause has passed and the token bucket allows it.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	delay := time.Duration(0)
	if t.pausedUntil.After(now) {
		delay = t.pausedUntil.Sub(now)
	}
	if t.limiter != nil {
		r := t.limiter.ReserveN(now.Add(delay), 1)
		if r.OK() {
			delay += r.DelayFrom(now.Add(delay))
		}
	}
	sleep := t.sleep
	t.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, delay)
}

// Pace enforces the fixed floor after a mutating call: it sleeps until Floor has passed since the previous Pace
// returned, or for the whole Floor on first use.
func (t *Throttle) Pace(ctx context.Context) error {
	if t == nil || t.floor <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	var delay time.Duration
	if !t.lastPace.IsZero() {
		delay = t.floor - now.Sub(t.lastPace)
	} else {
		delay = t.floor
	}
	sleep := t.sleep
	t.mu.Unlock()

	if delay > 0 {
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.lastPace = t.now()
	t.mu.Unlock()
	return nil
}

// Observe feeds a response's status and headers back into the throttle.
func (t *Throttle) Observe(status int, header http.Header) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	if status == http.StatusTooManyRequests {
		if t.limiter != nil {
			next := t.limiter.Limit() / 2
			if next < t.min {
				next = t.min
			}
			t.limiter.SetLimitAt(now, next)
		}
		if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
			t.pauseUntil(now.Add(d))
		}
		if t.logger != nil {
			t.logger.Warn("rate limited by Sender.net", "rate", t.Rate(), "paused_until", t.pausedUntil)
		}
		return
	}

	if header.Get("X-RateLimit-Remaining") == "0" {
		if reset, ok := parseReset(header.Get("X-RateLimit-Reset"), now); ok {
			t.pauseUntil(reset)
			if t.logger != nil {
				t.logger.Debug("rate limit window exhausted", "resume_at", reset)
			}
		}
	}

	if status >= 200 && status < 300 && t.limiter != nil {
		cur := t.limiter.Limit()
		if cur < t.base {
			next := cur + (t.base-cur)/4
			if t.base-next < t.base/100 {
				next = t.base
			}
			t.limiter.SetLimitAt(now, next)
		}
	}
}

// Rate returns the current token bucket rate in requests per second, or 0 when the bucket is disabled.
func (t *Throttle) Rate() float64 {
	if t == nil || t.limiter == nil {
		return 0
	}
	return float64(t.limiter.Limit())
}

// PausedUntil returns the end of the current pause, or the zero time.
func (t *Throttle) PausedUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pausedUntil
}

func (t *Throttle) pauseUntil(until time.Time) {
	if until.After(t.pausedUntil) {
		t.pausedUntil = until
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// parseReset accepts either seconds until reset or a unix timestamp.
func parseReset(v string, now time.Time) (time.Time, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	if n > 1_000_000_000 {
		return time.Unix(n, 0), true
	}
	return now.Add(time.Duration(n) * time.Second), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
