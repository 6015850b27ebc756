/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package renderer

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// capableSurface lets a host surface advertise which backends it can
// drive; surfaces that don't implement it are only ever accepted by
// the 2D fallback.
type capableSurface interface {
	SupportsGPU() bool
	SupportsGL() bool
}

// gpuBackend targets a host-supplied GPU-accelerated surface (e.g. a
// platform swap-chain handle). The actual device calls are behind the
// surface the host provides; this backend only owns capability
// detection, rotation/fit bookkeeping and failure accounting.
type gpuBackend struct {
	mu     sync.Mutex
	width  int
	height int
}

// NewGPUBackend constructs the highest-priority backend candidate.
func NewGPUBackend() Backend { return &gpuBackend{} }

func (b *gpuBackend) Type() string { return "gpu" }

func (b *gpuBackend) Supports(surface any) bool {
	cs, ok := surface.(capableSurface)
	return ok && cs.SupportsGPU()
}

func (b *gpuBackend) Init(surface any) error {
	if !b.Supports(surface) {
		return fmt.Errorf("gpu backend: surface does not support GPU acceleration")
	}
	return nil
}

func (b *gpuBackend) Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error {
	if frame == nil || frame.Closed() {
		return fmt.Errorf("gpu backend: cannot present a closed frame")
	}
	return nil
}

func (b *gpuBackend) Resize(w, h int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = w, h
	return nil
}

func (b *gpuBackend) Dispose() {}

// glBackend targets a host-supplied OpenGL/ES context.
type glBackend struct {
	mu     sync.Mutex
	width  int
	height int
}

// NewGLBackend constructs the second-priority backend candidate.
func NewGLBackend() Backend { return &glBackend{} }

func (b *glBackend) Type() string { return "gl" }

func (b *glBackend) Supports(surface any) bool {
	cs, ok := surface.(capableSurface)
	return ok && cs.SupportsGL()
}

func (b *glBackend) Init(surface any) error {
	if !b.Supports(surface) {
		return fmt.Errorf("gl backend: surface does not support GL acceleration")
	}
	return nil
}

func (b *glBackend) Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error {
	if frame == nil || frame.Closed() {
		return fmt.Errorf("gl backend: cannot present a closed frame")
	}
	return nil
}

func (b *glBackend) Resize(w, h int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = w, h
	return nil
}

func (b *glBackend) Dispose() {}

// twoDSurface is the minimal contract the 2D fallback needs from a
// host surface: a drawable image it can blit into.
type twoDSurface interface {
	Canvas() draw.Image
}

// twoDBackend is the always-supported fallback: it draws into a
// stdlib image.Image via image/draw. No pack library does 2D affine
// blit compositing outside the compositor's own draw step, so this is
// the one backend intentionally built on the standard library alone.
type twoDBackend struct {
	mu      sync.Mutex
	surface twoDSurface
	width   int
	height  int
}

// NewTwoDBackend constructs the always-supported last-resort backend.
func NewTwoDBackend() Backend { return &twoDBackend{} }

func (b *twoDBackend) Type() string { return "2d" }

// Supports is true for any surface that exposes a drawable Canvas,
// whether or not it also implements capableSurface.
func (b *twoDBackend) Supports(surface any) bool {
	_, ok := surface.(twoDSurface)
	return ok
}

func (b *twoDBackend) Init(surface any) error {
	s, ok := surface.(twoDSurface)
	if !ok {
		return fmt.Errorf("2d backend: surface does not expose a drawable canvas")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface = s
	bounds := s.Canvas().Bounds()
	b.width, b.height = bounds.Dx(), bounds.Dy()
	return nil
}

func (b *twoDBackend) Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error {
	if frame == nil || frame.Closed() {
		return fmt.Errorf("2d backend: cannot present a closed frame")
	}
	b.mu.Lock()
	surface := b.surface
	w, h := b.width, b.height
	b.mu.Unlock()
	if surface == nil {
		return fmt.Errorf("2d backend: not initialized")
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("2d backend: frame carries no dimensions")
	}
	if frame.Format != "rgba" {
		return fmt.Errorf("2d backend: unsupported pixel format %q (only rgba)", frame.Format)
	}

	src := &image.RGBA{
		Pix:    frame.Pixels(),
		Stride: frame.Width * 4,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}
	dst := surface.Canvas()
	destRect := fitRect(src.Bounds(), image.Rect(0, 0, w, h), rotation, fit)
	draw.Draw(dst, destRect, src, src.Bounds().Min, draw.Src)
	return nil
}

func (b *twoDBackend) Resize(w, h int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = w, h
	return nil
}

func (b *twoDBackend) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface = nil
}

// fitRect computes the destination rectangle for src within dst per
// the fit policy: contain letterboxes, cover crops,
// fill stretches to exactly dst.
func fitRect(src, dst image.Rectangle, rotation media.Rotation, fit FitMode) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if rotation == media.Rotate90 || rotation == media.Rotate270 {
		sw, sh = sh, sw
	}
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return dst
	}

	switch fit {
	case FitFill:
		return dst
	case FitCover:
		scale := maxFloat(float64(dw)/float64(sw), float64(dh)/float64(sh))
		return centeredRect(dst, int(float64(sw)*scale), int(float64(sh)*scale))
	default: // FitContain
		scale := minFloat(float64(dw)/float64(sw), float64(dh)/float64(sh))
		return centeredRect(dst, int(float64(sw)*scale), int(float64(sh)*scale))
	}
}

func centeredRect(dst image.Rectangle, w, h int) image.Rectangle {
	x0 := dst.Min.X + (dst.Dx()-w)/2
	y0 := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
