package conversation

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock provides the pauses used while revealing bubbles.
type Clock interface {
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Timings controls the simulated typing.
type Timings struct {
	BaseDelayMin time.Duration
	BaseDelayMax time.Duration
	PerChar      time.Duration
	Settle       time.Duration
}

// DefaultTimings: 0.8–1.5s thinking, 5ms per character, 300ms settle.
func DefaultTimings() Timings {
	return Timings{
		BaseDelayMin: 800 * time.Millisecond,
		BaseDelayMax: 1500 * time.Millisecond,
		PerChar:      5 * time.Millisecond,
		Settle:       300 * time.Millisecond,
	}
}

// thinkDelay is the pause before a bubble of the given length is revealed.
// r must be in [0,1).
func (t Timings) thinkDelay(chars int, r float64) time.Duration {
	base := t.BaseDelayMin
	if span := t.BaseDelayMax - t.BaseDelayMin; span > 0 {
		base += time.Duration(r * float64(span))
	}
	return base + time.Duration(chars)*t.PerChar
}

func defaultJitter() float64 {
	return rand.Float64()
}
