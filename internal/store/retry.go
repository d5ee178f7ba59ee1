package store

import "time"

// retryPolicy doubles the delay after every failed attempt, up to max.
type retryPolicy struct {
	base time.Duration
	max  time.Duration
}

// broadcastRetry spaces out programmed broadcast jobs: 30s, 1m, 2m ... 30m.
var broadcastRetry = retryPolicy{base: 30 * time.Second, max: 30 * time.Minute}

// notificationRetry spaces out order notifications: 10s, 20s, 40s ... 10m.
var notificationRetry = retryPolicy{base: 10 * time.Second, max: 10 * time.Minute}

// delay returns the wait before the next try, given how many attempts have
// already failed.
func (p retryPolicy) delay(failed int) time.Duration {
	if failed < 0 {
		failed = 0
	}
	d := p.base
	for i := 0; i < failed; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return d
}
