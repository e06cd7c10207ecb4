package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter enforces the politeness delay between requests to the same host.
// The delay is measured from the end of the previous request and jitter only ever lengthens it.
type RateLimiter struct {
	hostLastRequest   map[string]time.Time
	hostLastRequestMu sync.Mutex
	defaultDelay      time.Duration // Used when a caller passes a non-positive delay
	jitter            time.Duration // Upper bound of the random extra wait
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		defaultDelay:    defaultDelay,
		log:             log,
	}
}

// WithJitter sets the additive jitter bound and returns the limiter
func (rl *RateLimiter) WithJitter(jitter time.Duration) *RateLimiter {
	if jitter > 0 {
		rl.jitter = jitter
	}
	return rl
}

// ApplyDelay blocks until minDelay has elapsed since the last recorded request to host.
// Returns immediately for a host with no recorded request. Returns ctx.Err() if ctx ends first.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return nil
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock()
	if !exists {
		return nil
	}

	elapsed := time.Since(lastReqTime)
	if elapsed >= minDelay {
		return nil
	}

	sleep := minDelay - elapsed
	if rl.jitter > 0 {
		sleep += time.Duration(rand.Int63n(int64(rl.jitter)))
	}

	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": sleep, "required_delay": minDelay, "elapsed": elapsed,
	}).Debug("Politeness delay")

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequestTime records now as the end of the latest request to host.
// Call it after every attempt, whatever the outcome.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
