package dispatch

import (
	"math/rand/v2"
	"time"
)

// Absolute safety bounds for the per-recipient send window. Whatever the
// company configures, the dispatcher never paces faster than 5s or slower
// than 30s between individual sends.
const (
	MinDelayFloor   = 5 * time.Second
	MaxDelayCeiling = 30 * time.Second
)

// Policy selects the pause inserted before the n-th send (n >= 1; the first
// send is never delayed). Implementations must be safe for a single
// sequential caller; deterministic policies substitute in tests.
type Policy interface {
	Next(n int) time.Duration
}

// RandomWindow draws uniformly from a clamped [min, max] window.
type RandomWindow struct {
	min time.Duration
	max time.Duration
}

// NewRandomWindow clamps both bounds into the absolute safety range and
// forces max >= min before use.
func NewRandomWindow(minSeconds, maxSeconds int) *RandomWindow {
	min := clamp(time.Duration(minSeconds)*time.Second, MinDelayFloor, MaxDelayCeiling)
	max := clamp(time.Duration(maxSeconds)*time.Second, MinDelayFloor, MaxDelayCeiling)
	if max < min {
		max = min
	}

	return &RandomWindow{min: min, max: max}
}

func (w *RandomWindow) Next(int) time.Duration {
	if w.max == w.min {
		return w.min
	}
	return w.min + rand.N(w.max-w.min)
}

// Bounds exposes the effective window after clamping.
func (w *RandomWindow) Bounds() (time.Duration, time.Duration) {
	return w.min, w.max
}

// JitteredBase is the group-send pacing: a flat base pause plus a small
// random extra in [0, jitter].
type JitteredBase struct {
	base   time.Duration
	jitter time.Duration
}

func NewJitteredBase(baseSeconds, jitterSeconds int) *JitteredBase {
	base := time.Duration(baseSeconds) * time.Second
	if base < 0 {
		base = 0
	}
	jitter := time.Duration(jitterSeconds) * time.Second
	if jitter < 0 {
		jitter = 0
	}

	return &JitteredBase{base: base, jitter: jitter}
}

func (j *JitteredBase) Next(int) time.Duration {
	if j.jitter == 0 {
		return j.base
	}
	return j.base + rand.N(j.jitter)
}

// Fixed always returns the same pause. Test policy.
type Fixed time.Duration

func (f Fixed) Next(int) time.Duration {
	return time.Duration(f)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
