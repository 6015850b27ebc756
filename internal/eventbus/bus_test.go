package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestOnReceivesEmittedPayload(t *testing.T) {
	b := New(zerolog.Nop())
	var got any
	b.On("play", func(payload any) { got = payload })
	b.Emit("play", 42)
	if got != 42 {
		t.Fatalf("expected payload 42, got %v", got)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	b := New(zerolog.Nop())
	count := 0
	b.Once("ended", func(payload any) { count++ })
	b.Emit("ended", nil)
	b.Emit("ended", nil)
	if count != 1 {
		t.Fatalf("expected once listener to fire exactly once, got %d", count)
	}
}

func TestOnceRemovedBeforeReentrantEmit(t *testing.T) {
	b := New(zerolog.Nop())
	count := 0
	b.Once("ended", func(payload any) {
		count++
		b.Emit("ended", nil)
	})
	b.Emit("ended", nil)
	if count != 1 {
		t.Fatalf("expected once listener to fire exactly once across reentrant emit, got %d", count)
	}
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	b := New(zerolog.Nop())
	count := 0
	unsub := b.On("timeupdate", func(payload any) { count++ })
	b.Emit("timeupdate", nil)
	unsub()
	b.Emit("timeupdate", nil)
	if count != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", count)
	}
}

func TestPrependListenerRunsFirst(t *testing.T) {
	b := New(zerolog.Nop())
	var order []string
	b.On("seek", func(payload any) { order = append(order, "second") })
	b.PrependListener("seek", func(payload any) { order = append(order, "first") })
	b.Emit("seek", nil)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected prepended listener to run first, got %v", order)
	}
}

func TestEmitRecoversFromPanickingListener(t *testing.T) {
	b := New(zerolog.Nop())
	secondCalled := false
	b.On("error", func(payload any) { panic("boom") })
	b.On("error", func(payload any) { secondCalled = true })
	b.Emit("error", nil)
	if !secondCalled {
		t.Fatal("expected second listener to run despite first panicking")
	}
}

func TestListenerCountAndEventNames(t *testing.T) {
	b := New(zerolog.Nop())
	b.On("play", func(payload any) {})
	b.On("play", func(payload any) {})
	b.On("pause", func(payload any) {})

	if got := b.ListenerCount("play"); got != 2 {
		t.Fatalf("expected 2 listeners on play, got %d", got)
	}
	names := b.EventNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct topics, got %d", len(names))
	}
}

func TestSetMaxListenersWarnsButDoesNotEnforce(t *testing.T) {
	b := New(zerolog.Nop())
	b.SetMaxListeners(1)
	var warned bool
	b.On("warning", func(payload any) { warned = true })
	b.On("play", func(payload any) {})
	b.On("play", func(payload any) {})

	if !warned {
		t.Fatal("expected a warning event when exceeding max listeners")
	}
	if got := b.ListenerCount("play"); got != 2 {
		t.Fatalf("expected registration to still succeed, got %d listeners", got)
	}
}
