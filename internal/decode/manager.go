/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decode

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// Manager owns every active track's Worker, keyed by track id, behind
// a mutex-guarded map[trackID]*Worker.
type Manager struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	logger  zerolog.Logger
}

// NewManager constructs an empty Manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		workers: make(map[string]*Worker),
		logger:  logger.With().Str("component", "decode-manager").Logger(),
	}
}

// StartTrack spawns and starts a Worker for trackID. Starting an
// already-running track is a no-op that returns the existing worker.
func (m *Manager) StartTrack(ctx context.Context, trackID string, kind media.TrackKind, demux Demuxer, decoder Decoder) *Worker {
	m.mu.Lock()
	if w, exists := m.workers[trackID]; exists {
		m.mu.Unlock()
		return w
	}
	w := NewWorker(trackID, kind, demux, decoder, m.logger)
	m.workers[trackID] = w
	m.mu.Unlock()

	w.Start(ctx)
	return w
}

// Worker returns the Worker for trackID, if running.
func (m *Manager) Worker(trackID string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[trackID]
	return w, ok
}

// StopTrack closes and removes a track's Worker — used on track
// switch, where the outgoing decoder is flushed and closed while the
// scheduler's clock anchor is preserved externally.
func (m *Manager) StopTrack(trackID string) error {
	m.mu.Lock()
	w, ok := m.workers[trackID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("decode: no active worker for track %s", trackID)
	}
	delete(m.workers, trackID)
	m.mu.Unlock()

	w.Close()
	return nil
}

// SeekAll flushes and repositions every active track to t, used by
// the Sync Scheduler on seek.
func (m *Manager) SeekAll(t float64) error {
	for _, w := range m.snapshot() {
		if err := w.Seek(t); err != nil {
			return err
		}
	}
	return nil
}

// StopAll closes every active worker, used on dispose/destroy.
func (m *Manager) StopAll() {
	m.mu.Lock()
	workers := m.workers
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}
}

func (m *Manager) snapshot() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	return out
}
