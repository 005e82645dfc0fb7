package client

import (
	"sync"
	"time"
)

type throttleState int

const (
	// throttleIdle: no recent emission; the next offer passes through
	// immediately (leading edge).
	throttleIdle throttleState = iota
	// throttleCooling: inside the window with nothing coalesced yet.
	throttleCooling
	// throttlePending: inside the window holding the latest coalesced
	// payload, emitted when the window expires (trailing edge).
	throttlePending
)

// throttle rate-limits a stream of payloads to at most one emission per
// window, guaranteeing that both the first and the last payload of a burst
// are delivered. Intermediate payloads are coalesced away.
type throttle struct {
	window time.Duration
	emit   func(payload any)

	mu      sync.Mutex
	state   throttleState
	pending any
	timer   *time.Timer
}

func newThrottle(window time.Duration, emit func(payload any)) *throttle {
	return &throttle{window: window, emit: emit}
}

// Offer submits a payload. In the idle state it is emitted immediately and a
// window is armed; inside a window it replaces any previously coalesced
// payload and is emitted when the window expires.
func (t *throttle) Offer(payload any) {
	t.mu.Lock()
	if t.state == throttleIdle {
		t.state = throttleCooling
		t.timer = time.AfterFunc(t.window, t.expire)
		t.mu.Unlock()
		t.emit(payload)
		return
	}
	t.state = throttlePending
	t.pending = payload
	t.mu.Unlock()
}

func (t *throttle) expire() {
	t.mu.Lock()
	if t.state == throttlePending {
		payload := t.pending
		t.pending = nil
		t.state = throttleCooling
		t.timer = time.AfterFunc(t.window, t.expire)
		t.mu.Unlock()
		t.emit(payload)
		return
	}
	// Quiet window: back to pass-through.
	t.state = throttleIdle
	t.timer = nil
	t.mu.Unlock()
}

// Stop cancels any armed timer and discards a coalesced payload.
func (t *throttle) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = throttleIdle
	t.pending = nil
	t.mu.Unlock()
}
