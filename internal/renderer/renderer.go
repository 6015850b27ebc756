/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package renderer implements interchangeable raster backends:
// GPU-accelerated, GL-accelerated and a 2D fallback, selected by
// priority-ordered capability detection and automatically downgraded
// on repeated present failures.
package renderer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/plugin"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// FitMode is the surface fit policy for a presented frame.
type FitMode int

const (
	FitContain FitMode = iota
	FitFill
	FitCover
)

// maxConsecutiveFailures is the "twice in a row" downgrade threshold.
const maxConsecutiveFailures = 2

// Backend is the polymorphic raster surface contract.
type Backend interface {
	Type() string
	Supports(surface any) bool
	Init(surface any) error
	Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error
	Resize(w, h int) error
	Dispose()
}

// FallbackFunc notifies the host (and the Store, via the Engine) that
// the active backend changed after consecutive failures.
type FallbackFunc func(newType string)

// Manager runs capability detection and owns the single active
// Backend, downgrading it on repeated present failures.
type Manager struct {
	mu         sync.Mutex
	candidates []Backend
	active     Backend
	failures   int
	surface    any
	width      int
	height     int
	plugins    *plugin.Manager
	logger     zerolog.Logger
	onFallback FallbackFunc
}

// New constructs a Manager over backends in priority order.
func New(logger zerolog.Logger, onFallback FallbackFunc, backends ...Backend) *Manager {
	if len(backends) == 0 {
		backends = []Backend{NewGPUBackend(), NewGLBackend(), NewTwoDBackend()}
	}
	return &Manager{
		candidates: backends,
		logger:     logger.With().Str("component", "renderer").Logger(),
		onFallback: onFallback,
	}
}

// Init runs capability detection in priority order and initializes
// the first backend that reports support.
func (m *Manager) Init(surface any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surface = surface
	for _, b := range m.candidates {
		if !b.Supports(surface) {
			continue
		}
		if err := b.Init(surface); err != nil {
			m.logger.Warn().Str("backend", b.Type()).Err(err).Msg("backend init failed, trying next")
			continue
		}
		m.active = b
		m.failures = 0
		m.logger.Info().Str("backend", b.Type()).Msg("renderer backend selected")
		return nil
	}
	return fmt.Errorf("renderer: no backend reported support for this surface")
}

// SetPlugins installs the Plugin Manager consulted on every Present
// call for its Render hooks (BeforeRender, TransformFrame, AfterRender,
// Overlays). Passing nil disables hook dispatch.
func (m *Manager) SetPlugins(p *plugin.Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = p
}

// Type returns the active backend's identifier, or "" if none is active.
func (m *Manager) Type() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Type()
}

// Present runs the Render hook chain (BeforeRender, TransformFrame)
// and the overlays with negative ZIndex before drawing frame via the
// active backend, then AfterRender and the remaining overlays,
// downgrading to the next candidate after two consecutive present
// failures.
func (m *Manager) Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error {
	m.mu.Lock()
	active := m.active
	plugins := m.plugins
	surface := m.surface
	width, height := m.width, m.height
	m.mu.Unlock()
	if active == nil {
		return fmt.Errorf("renderer: not initialized")
	}

	var overlays []plugin.Overlay
	if plugins != nil {
		plugins.BeforeRender(frame, frame.PTS)
		frame = plugins.TransformFrame(frame)
		// Overlays come sorted by ZIndex; the negative ones draw under the frame.
		overlays = plugins.Overlays()
		for len(overlays) > 0 && overlays[0].ZIndex < 0 {
			if overlays[0].Render != nil {
				overlays[0].Render(frame.PTS, width, height)
			}
			overlays = overlays[1:]
		}
	}

	if err := active.Present(frame, rotation, fit); err != nil {
		return m.recordFailure(active, err)
	}

	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()

	if plugins != nil {
		plugins.AfterRender(surface)
		for _, ov := range overlays {
			if ov.Render != nil {
				ov.Render(frame.PTS, width, height)
			}
		}
	}
	return nil
}

func (m *Manager) recordFailure(active Backend, presentErr error) error {
	m.mu.Lock()
	m.failures++
	shouldDowngrade := m.failures >= maxConsecutiveFailures
	m.mu.Unlock()

	if !shouldDowngrade {
		return presentErr
	}
	return m.downgrade(active, presentErr)
}

func (m *Manager) downgrade(from Backend, cause error) error {
	m.mu.Lock()
	idx := -1
	for i, b := range m.candidates {
		if b == from {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(m.candidates) {
		m.mu.Unlock()
		m.logger.Error().Str("backend", from.Type()).Err(cause).Msg("renderer backend failed with no fallback available")
		return fmt.Errorf("renderer: %s failed and no fallback remains: %w", from.Type(), cause)
	}
	surface := m.surface
	m.mu.Unlock()

	from.Dispose()

	for _, next := range m.candidates[idx+1:] {
		if !next.Supports(surface) {
			continue
		}
		if err := next.Init(surface); err != nil {
			continue
		}
		m.mu.Lock()
		m.active = next
		m.failures = 0
		m.mu.Unlock()

		telemetry.RendererFallbacksTotal.WithLabelValues(from.Type()).Inc()
		m.logger.Warn().Str("from", from.Type()).Str("to", next.Type()).Err(cause).Msg("renderer downgraded after repeated failures")
		if m.onFallback != nil {
			m.onFallback(next.Type())
		}
		return nil
	}
	return fmt.Errorf("renderer: %s failed and no fallback backend supports this surface: %w", from.Type(), cause)
}

// Resize forwards to the active backend and records the display size
// handed to overlay hooks on subsequent Present calls.
func (m *Manager) Resize(w, h int) error {
	m.mu.Lock()
	active := m.active
	m.width, m.height = w, h
	m.mu.Unlock()
	if active == nil {
		return fmt.Errorf("renderer: not initialized")
	}
	return active.Resize(w, h)
}

// Dispose releases the active backend.
func (m *Manager) Dispose() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()
	if active != nil {
		active.Dispose()
	}
}

// DisplaySize returns the effective display size, swapping axes at
// 90°/270° rotation.
func DisplaySize(sourceWidth, sourceHeight int, rotation media.Rotation) (width, height int) {
	if rotation == media.Rotate90 || rotation == media.Rotate270 {
		return sourceHeight, sourceWidth
	}
	return sourceWidth, sourceHeight
}
