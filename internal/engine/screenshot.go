/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/renderer"
)

// ScreenshotFormat mirrors compositor.ImageFormat for the pipeline's
// own screenshot() verb.
type ScreenshotFormat string

const (
	ScreenshotPNG  ScreenshotFormat = "png"
	ScreenshotJPEG ScreenshotFormat = "jpeg"
	// ScreenshotWebP is accepted but encoded as PNG — see the
	// compositor's identical WebP-encoder gap, recorded once in
	// DESIGN.md rather than duplicated per call site.
	ScreenshotWebP ScreenshotFormat = "webp"
)

// ScreenshotOptions configures screenshot().
type ScreenshotOptions struct {
	Format  ScreenshotFormat
	Quality float64
}

// capturingPresenter wraps the active renderer.Manager (or stands
// alone when no render target was configured) so Screenshot can read
// back the last presented frame without the Renderer package needing
// to expose one itself.
type capturingPresenter struct {
	inner syncPresenter

	mu   sync.Mutex
	last *image.RGBA
}

// syncPresenter is the same contract internal/sync requires of a
// Presenter, duplicated here so this file does not import internal/sync
// just for an interface literal.
type syncPresenter interface {
	Present(frame *media.Frame, rotation media.Rotation, fit renderer.FitMode) error
}

func (c *capturingPresenter) Present(frame *media.Frame, rotation media.Rotation, fit renderer.FitMode) error {
	c.mu.Lock()
	c.last = frameToRGBACopy(frame)
	c.mu.Unlock()

	if c.inner != nil {
		return c.inner.Present(frame, rotation, fit)
	}
	return nil
}

func (c *capturingPresenter) snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func frameToRGBACopy(frame *media.Frame) *image.RGBA {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	copy(img.Pix, frame.Pixels())
	return img
}

// Screenshot encodes the most recently presented video frame.
func (e *Engine) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	if err := e.requireNotDestroyed(); err != nil {
		return nil, err
	}
	_, span := e.startSpan(ctx, "screenshot")
	defer span.End()

	e.mu.Lock()
	presenter := e.capturer
	e.mu.Unlock()
	if presenter == nil {
		return nil, errs.New(errs.InvalidState, "screenshot() called with nothing loaded")
	}
	frame := presenter.snapshot()
	if frame == nil {
		return nil, errs.New(errs.InvalidState, "no frame has been presented yet")
	}

	var buf bytes.Buffer
	switch opts.Format {
	case ScreenshotJPEG:
		quality := int(opts.Quality * 100)
		if quality <= 0 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
			return nil, errs.Wrap(errs.PlaybackError, "encoding jpeg screenshot", err)
		}
	default:
		if err := png.Encode(&buf, frame); err != nil {
			return nil, errs.Wrap(errs.PlaybackError, "encoding png screenshot", err)
		}
	}
	return buf.Bytes(), nil
}
