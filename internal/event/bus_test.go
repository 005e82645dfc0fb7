package event

import (
	"testing"
)

func TestEmitOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Subscribe("k", func(any) { got = append(got, 1) })
	b.Subscribe("k", func(any) { got = append(got, 2) })
	b.Subscribe("k", func(any) { got = append(got, 3) })

	b.Emit("k", nil)

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", got)
	}
}

func TestEmitPayload(t *testing.T) {
	b := NewBus()
	var got any
	b.Subscribe("k", func(p any) { got = p })

	b.Emit("k", "hello")

	if got != "hello" {
		t.Errorf("payload = %v, want hello", got)
	}
}

func TestEmitNoListeners(t *testing.T) {
	b := NewBus()
	b.Emit("nobody-home", 42) // must not panic
}

func TestKindIsolation(t *testing.T) {
	b := NewBus()
	count := 0
	b.Subscribe("a", func(any) { count++ })

	b.Emit("b", nil)

	if count != 0 {
		t.Errorf("listener for kind a received %d events emitted on kind b", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	count := 0
	sub := b.Subscribe("k", func(any) { count++ })

	b.Emit("k", nil)
	b.Unsubscribe(sub)
	b.Emit("k", nil)
	b.Unsubscribe(sub) // second removal is a no-op

	if count != 1 {
		t.Errorf("listener invoked %d times, want 1", count)
	}
}

func TestUnsubscribePreservesOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Subscribe("k", func(any) { got = append(got, 1) })
	middle := b.Subscribe("k", func(any) { got = append(got, 2) })
	b.Subscribe("k", func(any) { got = append(got, 3) })

	b.Unsubscribe(middle)
	b.Emit("k", nil)

	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("delivery order after unsubscribe = %v, want [1 3]", got)
	}
}

func TestPanicDoesNotStopDelivery(t *testing.T) {
	b := NewBus()
	reached := false
	b.Subscribe("k", func(any) { panic("boom") })
	b.Subscribe("k", func(any) { reached = true })

	b.Emit("k", nil)

	if !reached {
		t.Error("listener after a panicking one was not invoked")
	}
}
