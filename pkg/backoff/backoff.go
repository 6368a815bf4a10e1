package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff with jitter. It is shared by the
// stream, poller, and engine loops so retry behavior stays consistent.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
	Jitter     float64 // fraction of the delay added as random jitter, 0..1
}

// Default is the stream reconnect policy: 1s base, doubled, capped at 60s,
// with up to 50% jitter.
var Default = Policy{
	Base:       time.Second,
	Multiplier: 2,
	Cap:        60 * time.Second,
	Jitter:     0.5,
}

// Fixed returns a policy that always yields d (no growth, no jitter).
func Fixed(d time.Duration) Policy {
	return Policy{Base: d, Multiplier: 1, Cap: d}
}

// Delay returns the delay for the given attempt (0-based), jittered.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Cap) {
			d = float64(p.Cap)
			break
		}
	}
	if p.Cap > 0 && d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	if p.Jitter > 0 {
		d += rand.Float64() * p.Jitter * d
	}
	return time.Duration(d)
}

// Sleep waits for the attempt's delay or until ctx is cancelled. It returns
// ctx.Err() when cancelled, nil otherwise.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// JitterInterval returns d offset by up to frac of itself in either
// direction. Recurring loops use it to avoid synchronized spikes.
func JitterInterval(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	off := (rand.Float64()*2 - 1) * frac * float64(d)
	return d + time.Duration(off)
}
