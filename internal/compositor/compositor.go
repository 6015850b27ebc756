/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package compositor is an independent multi-layer rendering engine
// with its own output surface and source pool, decoupled from the
// Engine Facade's playback pipeline: a mutex-guarded manager with a
// zerolog component logger and errgroup-driven fan-out across layers.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// ImageFormat is the requested encoding for exportFrame.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is accepted but currently encodes as PNG: no library
	// in the pack offers a WebP encoder (golang.org/x/image only
	// decodes WebP), and fabricating one is out of bounds. Recorded as
	// an Open Question resolution in DESIGN.md.
	FormatWebP ImageFormat = "webp"
)

// EncodeOptions configures exportFrame's image encoding.
type EncodeOptions struct {
	Format  ImageFormat
	Quality float64 // 0..1, JPEG/WebP only
}

// Manager owns the output surface, the loaded source pool and the
// optional preview loop.
type Manager struct {
	logger zerolog.Logger

	mu      sync.Mutex
	width   int
	height  int
	sources map[string]*Source

	preview *PreviewController
}

// New constructs a Manager with the default 1920x1080 output surface.
func New(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "compositor").Logger(),
		width:   1920,
		height:  1080,
		sources: make(map[string]*Source),
	}
}

// LoadSource registers a video provider and returns its handle.
func (m *Manager) LoadSource(p VideoProvider) *Source {
	return m.register(newVideoSource(m.allocID("video"), p))
}

// LoadImage registers a still-image provider and returns its handle.
func (m *Manager) LoadImage(p ImageProvider) *Source {
	return m.register(newImageSource(m.allocID("image"), p))
}

// LoadAudio registers an audio-only provider and returns its handle.
func (m *Manager) LoadAudio(p AudioProvider) *Source {
	return m.register(newAudioSource(m.allocID("audio"), p))
}

// allocID mints a process-unique source handle; prefix keeps the
// source kind visible in logs and error messages.
func (m *Manager) allocID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func (m *Manager) register(s *Source) *Source {
	m.mu.Lock()
	m.sources[s.id] = s
	m.mu.Unlock()
	return s
}

// Unload releases a previously loaded source.
func (m *Manager) Unload(id string) {
	m.mu.Lock()
	s, ok := m.sources[id]
	delete(m.sources, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Render fetches every layer's frame in parallel, then draws them in
// ascending zIndex order onto a fresh output-sized surface. Each layer
// names its source by SourceID; Render looks the source up and fetches
// its Frame itself via FrameAt, so callers only need to supply
// SourceID/ZIndex/Transform.
func (m *Manager) Render(ctx context.Context, frame CompositionFrame, at float64) (*image.RGBA, error) {
	start := time.Now()
	defer func() { telemetry.CompositorRenderDuration.Observe(time.Since(start).Seconds()) }()

	m.mu.Lock()
	w, h := m.width, m.height
	sources := make(map[string]*Source, len(m.sources))
	for id, s := range m.sources {
		sources[id] = s
	}
	m.mu.Unlock()

	resolved := make([]Layer, len(frame.Layers))
	copy(resolved, frame.Layers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range resolved {
		i := i
		layer := resolved[i]
		src, ok := sources[layer.SourceID]
		if !ok {
			return nil, fmt.Errorf("compositor: render references unknown source %q", layer.SourceID)
		}
		g.Go(func() error {
			f, err := src.FrameAt(gctx, at)
			if err != nil {
				return err
			}
			resolved[i].Frame = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compositor: fetching layer frames: %w", err)
	}

	surface := image.NewRGBA(image.Rect(0, 0, w, h))
	for _, layer := range sortLayersByZIndex(resolved) {
		drawLayer(surface, layer.Frame, layer.Transform)
	}
	return surface, nil
}

// ExportFrame renders the composition at t to an off-screen surface
// and encodes it to opts.Format.
func (m *Manager) ExportFrame(ctx context.Context, t float64, getComposition func(t float64) CompositionFrame, opts EncodeOptions) ([]byte, error) {
	frame := getComposition(t)
	surface, err := m.Render(ctx, frame, t)
	if err != nil {
		return nil, err
	}
	return encodeImage(surface, opts)
}

func encodeImage(img *image.RGBA, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	switch opts.Format {
	case FormatJPEG:
		quality := int(opts.Quality * 100)
		if quality <= 0 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("compositor: encode jpeg: %w", err)
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("compositor: encode png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Resize changes the output surface dimensions without disposing any
// loaded source.
func (m *Manager) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("compositor: resize requires positive dimensions, got %dx%d", w, h)
	}
	m.mu.Lock()
	m.width, m.height = w, h
	m.mu.Unlock()
	return nil
}

// Dispose closes every loaded source and stops any running preview
// loop.
func (m *Manager) Dispose() {
	m.StopPreview()

	m.mu.Lock()
	sources := make([]*Source, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, s)
	}
	m.sources = make(map[string]*Source)
	m.mu.Unlock()

	for _, s := range sources {
		s.Close()
	}
}
