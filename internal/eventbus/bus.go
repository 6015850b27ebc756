/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus implements the typed, synchronous publish/subscribe
// bus the Engine Facade emits every public topic on. The Store does not
// use it; plugins observe state through store.UpdateInterceptor and
// store.ChangeObserver.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog"
)

// Topic identifies an event name. MediaFox topics are the closed set
// the Engine Facade emits (statechange, play, timeupdate, ...); the
// bus itself stays generic so internal components can also use it for
// their own narrower signaling without inventing a second mechanism.
type Topic string

// EmitInterceptor lets a non-owning observer (the Plugin Manager) veto
// or rewrite an emission's payload before dispatch, and observe it
// afterward. Bus never imports the plugin package directly — it only
// depends on this interface, which plugin.Manager implements,
// avoiding the Bus<->PluginManager<->Engine reference cycle.
type EmitInterceptor interface {
	BeforeEvent(topic Topic, data any) (rewritten any, cancel bool)
	AfterEvent(topic Topic, data any)
}

const defaultMaxListeners = 10

type registration struct {
	id   int64
	fn   func(payload any)
	once bool
}

// Bus is a typed, synchronous, in-process publish/subscribe hub.
type Bus struct {
	mu           sync.Mutex
	subs         map[Topic][]*registration
	nextID       int64
	maxListeners int
	interceptor  EmitInterceptor
	logger       zerolog.Logger
}

// New constructs an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:         make(map[Topic][]*registration),
		maxListeners: defaultMaxListeners,
		logger:       logger.With().Str("component", "eventbus").Logger(),
	}
}

// On registers a persistent listener for topic.
func (b *Bus) On(topic Topic, fn func(payload any)) (unsubscribe func()) {
	return b.add(topic, fn, false, false)
}

// Once registers a listener removed after its first invocation. The
// removal happens before the callback runs, so a listener that
// re-emits the same topic from inside itself cannot re-trigger itself.
func (b *Bus) Once(topic Topic, fn func(payload any)) (unsubscribe func()) {
	return b.add(topic, fn, true, false)
}

// PrependListener registers fn to run before any already-registered
// listener for topic.
func (b *Bus) PrependListener(topic Topic, fn func(payload any)) (unsubscribe func()) {
	return b.add(topic, fn, false, true)
}

// SetInterceptor installs the single EmitInterceptor consulted by
// every Emit call. Passing nil disables interception.
func (b *Bus) SetInterceptor(i EmitInterceptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interceptor = i
}

func (b *Bus) add(topic Topic, fn func(payload any), once, prepend bool) func() {
	b.mu.Lock()
	b.nextID++
	reg := &registration{id: b.nextID, fn: fn, once: once}
	existing := b.subs[topic]
	if prepend {
		b.subs[topic] = append([]*registration{reg}, existing...)
	} else {
		b.subs[topic] = append(existing, reg)
	}
	count := len(b.subs[topic])
	max := b.maxListeners
	b.mu.Unlock()

	if max > 0 && count > max {
		b.logger.Warn().Str("topic", string(topic)).Int("count", count).Msg("listener count exceeds max; continuing without enforcement")
		b.Emit("warning", map[string]any{
			"type":    "max-listeners-exceeded",
			"message": "topic " + string(topic) + " has more than the configured max listeners",
		})
	}

	return func() { b.off(topic, reg.id) }
}

// Off removes listeners for topic. If fn is nil, all listeners for
// the topic are removed.
func (b *Bus) Off(topic Topic, fn func(payload any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.subs, topic)
		return
	}
	// Identity comparison on func values is not supported in Go; Off
	// with a specific fn is only meaningful via the unsubscribe
	// closure returned by On/Once/PrependListener. Callers that need
	// "remove this one function" should keep and call that closure.
}

func (b *Bus) off(topic Topic, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.subs[topic]
	for i, r := range regs {
		if r.id == id {
			b.subs[topic] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Emit dispatches payload synchronously to every current listener of
// topic, in registration order, after giving the installed
// EmitInterceptor (if any) a chance to rewrite or cancel it. A
// panicking listener is caught, logged, and does not prevent later
// listeners from running.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.Lock()
	regs := append([]*registration(nil), b.subs[topic]...)
	interceptor := b.interceptor
	b.mu.Unlock()

	if interceptor != nil {
		rewritten, cancel := interceptor.BeforeEvent(topic, payload)
		if cancel {
			return
		}
		payload = rewritten
	}

	for _, r := range regs {
		if r.once {
			// Removed before invocation so a listener that re-emits
			// this same topic from inside itself cannot re-trigger it.
			b.off(topic, r.id)
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					b.logger.Error().Str("topic", string(topic)).Interface("panic", rec).Msg("event listener panicked")
				}
			}()
			r.fn(payload)
		}()
	}

	if interceptor != nil {
		interceptor.AfterEvent(topic, payload)
	}
}

// ListenerCount returns the number of listeners currently registered
// for topic.
func (b *Bus) ListenerCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// EventNames returns every topic with at least one listener.
func (b *Bus) EventNames() []Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]Topic, 0, len(b.subs))
	for t, regs := range b.subs {
		if len(regs) > 0 {
			names = append(names, t)
		}
	}
	return names
}

// SetMaxListeners configures the advisory threshold . 0 disables the warning.
func (b *Bus) SetMaxListeners(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxListeners = n
}
