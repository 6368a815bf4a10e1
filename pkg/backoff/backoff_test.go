package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{Base: time.Second, Multiplier: 2, Cap: 8 * time.Second}
	if got := p.Delay(0); got != time.Second {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := p.Delay(2); got != 4*time.Second {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := p.Delay(10); got != 8*time.Second {
		t.Fatalf("capped attempt: got %v", got)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{Base: time.Second, Multiplier: 2, Cap: time.Minute, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := p.Delay(0)
		if d < time.Second || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}

func TestFixed(t *testing.T) {
	p := Fixed(10 * time.Second)
	if p.Delay(0) != 10*time.Second || p.Delay(5) != 10*time.Second {
		t.Fatalf("fixed policy should not grow")
	}
}

func TestSleepCancelled(t *testing.T) {
	p := Policy{Base: time.Hour, Multiplier: 1, Cap: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Sleep(ctx, 0); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestJitterInterval(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := JitterInterval(base, 0.2)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("interval out of range: %v", d)
		}
	}
	if JitterInterval(base, 0) != base {
		t.Fatalf("zero fraction should be identity")
	}
}
