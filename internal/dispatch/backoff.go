package dispatch

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: base*2^attempt plus up to one base of
// jitter, capped at Max. Successive delays are non-decreasing because the
// jitter range never exceeds the exponential step. Stateless and safe for
// concurrent use.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry attempt n (1-indexed: attempt 1 is the
// first retry after the initial failure).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	d += time.Duration(rand.Int64N(int64(base))) //nolint:gosec // jitter intentionally uses non-crypto rand
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
