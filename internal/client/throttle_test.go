package client

import (
	"sync"
	"testing"
	"time"
)

type throttleRecorder struct {
	mu       sync.Mutex
	payloads []any
}

func (r *throttleRecorder) emit(p any) {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
}

func (r *throttleRecorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func TestThrottleBurst(t *testing.T) {
	rec := &throttleRecorder{}
	th := newThrottle(50*time.Millisecond, rec.emit)

	for i := 1; i <= 10; i++ {
		th.Offer(i)
	}
	time.Sleep(200 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("burst of 10 delivered %d payloads, want 2 (leading+trailing): %v", len(got), got)
	}
	if got[0] != 1 {
		t.Errorf("leading payload = %v, want 1", got[0])
	}
	if got[1] != 10 {
		t.Errorf("trailing payload = %v, want 10 (last of burst)", got[1])
	}
}

func TestThrottleSingle(t *testing.T) {
	rec := &throttleRecorder{}
	th := newThrottle(50*time.Millisecond, rec.emit)

	th.Offer("only")
	time.Sleep(150 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("single offer delivered %d payloads, want 1: %v", len(got), got)
	}
}

func TestThrottleReturnsToIdle(t *testing.T) {
	rec := &throttleRecorder{}
	th := newThrottle(30*time.Millisecond, rec.emit)

	th.Offer("a")
	time.Sleep(100 * time.Millisecond) // window expires quiet, back to idle

	th.Offer("b") // must pass through immediately as a new leading edge
	got := rec.snapshot()
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("offer after quiet window delivered %v, want [a b]", got)
	}
}

func TestThrottleStopDiscardsPending(t *testing.T) {
	rec := &throttleRecorder{}
	th := newThrottle(50*time.Millisecond, rec.emit)

	th.Offer("lead")
	th.Offer("coalesced")
	th.Stop()
	time.Sleep(120 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("after Stop, delivered %v, want only the leading payload", got)
	}
}
