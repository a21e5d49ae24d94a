package proxy

import "time"

// clock abstracts wall time and timer scheduling for testability.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) timer
}

type timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

// ticker measures elapsed time since its last reset. It backs the liveness
// accounting: reset on every connect success and on the first post-success
// disconnect.
type ticker struct {
	clk   clock
	start time.Time
}

func (t *ticker) Reset() {
	t.start = t.clk.Now()
}

func (t *ticker) Elapsed() time.Duration {
	return t.clk.Now().Sub(t.start)
}

// backoffDelay computes the reconnect delay for the given consecutive
// failure count: clamp(failed*step, min, max). Non-decreasing in failed and
// always within [min, max].
func backoffDelay(failed int, min, max, step time.Duration) time.Duration {
	d := time.Duration(failed) * step
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}
