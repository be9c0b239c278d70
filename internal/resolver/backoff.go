package resolver

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// backoffCap is the hard ceiling on any single backoff sleep.
const backoffCap = 30 * time.Second

// jitter abstracts the uniform(0, base) draw so tests can pin it.
type jitter func(base time.Duration) time.Duration

func defaultJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// backoffDelay computes delay_n = min(cap, base·2ⁿ) + uniform(0, base), a
// pure function of (attempt, base, cap) so tests can assert the boundary
// without sleeping. attempt is 0-indexed (the delay before the first
// retry uses attempt=0).
func backoffDelay(attempt int, base, cap time.Duration, jit jitter) time.Duration {
	if jit == nil {
		jit = defaultJitter
	}
	exp := math.Pow(2, float64(attempt))
	scaled := time.Duration(float64(base) * exp)
	if scaled > cap || scaled < 0 { // overflow guards toward the cap
		scaled = cap
	}
	return scaled + jit(base)
}

// retryAfterOverride parses a Retry-After header value (seconds or an
// HTTP-date), returning (delay, true) on success.
func retryAfterOverride(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := parseRetryAfterSeconds(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := time.Parse(time.RFC1123, header); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func parseRetryAfterSeconds(header string) (int64, error) {
	var secs int64
	n, err := fmt.Sscanf(header, "%d", &secs)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("not a plain integer: %q", header)
	}
	return secs, nil
}
