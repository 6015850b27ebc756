/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// UpdateInterceptor lets a non-owning observer (the Plugin Manager)
// veto or rewrite a pending patch before it merges into state. Store
// never imports the plugin package directly — it only depends on
// this interface, which plugin.Manager implements, avoiding the
// Store<->PluginManager<->Engine reference cycle.
type UpdateInterceptor interface {
	BeforeStateUpdate(partial *Partial) (rewritten *Partial, cancel bool)
}

// ChangeObserver is notified after a flush has been applied and
// listeners notified.
type ChangeObserver interface {
	OnStateChange(next, prev PlayerStateData)
}

type listener struct {
	id int64
	fn func(PlayerStateData)
}

// Subscription is returned by Subscribe; call Unsubscribe to detach.
type Subscription struct {
	unsub func()
}

// Unsubscribe detaches the listener. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.unsub != nil {
		s.unsub()
	}
}

// Store holds the single PlayerStateData snapshot and fans out
// batched, equality-gated notifications.
type Store struct {
	mu    sync.Mutex
	state PlayerStateData

	pending    *Partial
	flushTimer *time.Timer

	nextListenerID int64
	listeners      []*listener

	interceptors []UpdateInterceptor
	observers    []ChangeObserver

	logger zerolog.Logger

	// synchronous forces synchronous flushing for deterministic tests
	// instead of scheduling a timer.
	synchronous bool
}

// New constructs a Store at its initial snapshot.
func New(logger zerolog.Logger) *Store {
	return &Store{state: Initial(), logger: logger.With().Str("component", "store").Logger()}
}

// NewSynchronous constructs a Store that flushes every SetState call
// immediately instead of batching — used by deterministic tests.
func NewSynchronous(logger zerolog.Logger) *Store {
	s := New(logger)
	s.synchronous = true
	return s
}

// GetState returns the current snapshot, safe for the caller to keep
// indefinitely (it is never mutated in place).
func (s *Store) GetState() PlayerStateData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddInterceptor registers a beforeStateUpdate hook, run in
// registration order.
func (s *Store) AddInterceptor(i UpdateInterceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interceptors = append(s.interceptors, i)
}

// RemoveInterceptor removes a previously registered interceptor.
func (s *Store) RemoveInterceptor(i UpdateInterceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, existing := range s.interceptors {
		if existing == i {
			s.interceptors = append(s.interceptors[:idx], s.interceptors[idx+1:]...)
			return
		}
	}
}

// AddObserver registers an onStateChange hook, run in registration order.
func (s *Store) AddObserver(o ChangeObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RemoveObserver removes a previously registered observer.
func (s *Store) RemoveObserver(o ChangeObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:idx], s.observers[idx+1:]...)
			return
		}
	}
}

// Subscribe registers a listener and immediately invokes it with the
// current snapshot before returning.
func (s *Store) Subscribe(fn func(PlayerStateData)) Subscription {
	s.mu.Lock()
	s.nextListenerID++
	id := s.nextListenerID
	l := &listener{id: id, fn: fn}
	s.listeners = append(s.listeners, l)
	current := s.state.Clone()
	s.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("state listener panicked")
			}
		}()
		fn(current)
	}()

	return Subscription{unsub: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.listeners {
			if existing.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}}
}

// Reset returns the store to its initial snapshot and notifies
// listeners synchronously (a reset is not batched).
func (s *Store) Reset() {
	s.mu.Lock()
	prev := s.state
	s.state = Initial()
	s.pending = nil
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	next := s.state
	observers := append([]ChangeObserver(nil), s.observers...)
	s.mu.Unlock()

	s.notify(next)
	for _, o := range observers {
		safeObserve(o, next, prev, s.logger)
	}
}

// SetState queues partial for the next flush, coalescing with any
// other SetState calls made before the flush runs . It returns an error only when an interceptor
// cancels the update or an invariant is violated; both leave state
// unchanged.
func (s *Store) SetState(partial *Partial) *errs.Error {
	if partial == nil || partial.isEmpty() {
		return nil
	}

	s.mu.Lock()
	if s.pending == nil {
		s.pending = &Partial{}
	}
	s.pending.merge(partial)
	shouldSchedule := s.flushTimer == nil
	synchronous := s.synchronous
	s.mu.Unlock()

	if synchronous {
		return s.FlushNow()
	}

	if shouldSchedule {
		s.mu.Lock()
		s.flushTimer = time.AfterFunc(0, func() { _ = s.FlushNow() })
		s.mu.Unlock()
	}
	return nil
}

// FlushNow synchronously applies any pending patch, notifying
// listeners at most once. Production code relies on the microtask-ish
// timer in SetState; tests call this directly for determinism.
func (s *Store) FlushNow() *errs.Error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if pending == nil || pending.isEmpty() {
		s.mu.Unlock()
		return nil
	}

	interceptors := append([]UpdateInterceptor(nil), s.interceptors...)
	prev := s.state
	s.mu.Unlock()

	for _, ic := range interceptors {
		rewritten, cancel := safeIntercept(ic, pending, s.logger)
		if cancel {
			return errs.New(errs.OperationAborted, "state update cancelled by plugin")
		}
		if rewritten != nil {
			pending = rewritten
		}
	}

	next := pending.applyTo(prev)
	if verr := validate(next); verr != nil {
		return verr
	}

	s.mu.Lock()
	changed := !Equal(prev, next)
	if changed {
		s.state = next
	}
	observers := append([]ChangeObserver(nil), s.observers...)
	s.mu.Unlock()

	if !changed {
		return nil
	}

	s.notify(next)
	for _, o := range observers {
		safeObserve(o, next, prev, s.logger)
	}
	return nil
}

// notify snapshots the listener slice before dispatch so a listener
// may subscribe/unsubscribe during its own callback without affecting
// the current pass, and recovers from a panicking listener so the
// rest still run.
func (s *Store) notify(next PlayerStateData) {
	s.mu.Lock()
	snapshot := make([]*listener, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	data := next.Clone()
	for _, l := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Msg("state listener panicked")
				}
			}()
			l.fn(data)
		}()
	}
}

func safeIntercept(ic UpdateInterceptor, p *Partial, logger zerolog.Logger) (*Partial, bool) {
	var rewritten *Partial
	var cancel bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("beforeStateUpdate hook panicked")
			}
		}()
		rewritten, cancel = ic.BeforeStateUpdate(p)
	}()
	return rewritten, cancel
}

func safeObserve(o ChangeObserver, next, prev PlayerStateData, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("onStateChange hook panicked")
		}
	}()
	o.OnStateChange(next, prev)
}

// validate enforces the invariants that must reject a setState rather
// than silently coerce it.
func validate(next PlayerStateData) *errs.Error {
	if next.State == Playing && next.Ended {
		return errs.New(errs.InvalidState, "state=Playing is incompatible with ended=true")
	}
	if next.LastError != nil && next.State != ErrorState {
		return errs.New(errs.InvalidState, "a non-nil error requires state=Error")
	}
	if next.SelectedVideoTrackID != nil && !trackIDIn(next.VideoTracks, *next.SelectedVideoTrackID) {
		return errs.New(errs.InvalidState, "selected video track not present in videoTracks").
			WithDetails(map[string]any{"trackId": *next.SelectedVideoTrackID})
	}
	if next.SelectedAudioTrackID != nil && !trackIDIn(next.AudioTracks, *next.SelectedAudioTrackID) {
		return errs.New(errs.InvalidState, "selected audio track not present in audioTracks").
			WithDetails(map[string]any{"trackId": *next.SelectedAudioTrackID})
	}
	if next.SelectedSubtitleTrackID != nil && !trackIDIn(next.SubtitleTracks, *next.SelectedSubtitleTrackID) {
		return errs.New(errs.InvalidState, "selected subtitle track not present in subtitleTracks").
			WithDetails(map[string]any{"trackId": *next.SelectedSubtitleTrackID})
	}
	if next.CurrentPlaylistIndex != nil {
		idx := *next.CurrentPlaylistIndex
		if idx < 0 || idx >= len(next.Playlist) {
			return errs.New(errs.InvalidState, "currentPlaylistIndex out of bounds").
				WithDetails(map[string]any{"index": idx, "length": len(next.Playlist)})
		}
	}
	return nil
}

func trackIDIn(tracks []media.Track, id string) bool {
	for _, t := range tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}
