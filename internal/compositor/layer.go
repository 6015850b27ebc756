/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package compositor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// Transform positions a layer's intrinsic-size frame on the output
// surface. Width/Height, when
// non-nil, override the source's intrinsic size.
type Transform struct {
	X, Y           float64
	Width, Height  *float64
	ScaleX, ScaleY float64
	AnchorX, AnchorY float64 // fraction of the (possibly overridden) size, 0..1
	Rotation       float64  // degrees
	Opacity        float64  // 0..1
}

// DefaultTransform is the identity placement: top-left anchor, no
// scale/rotation change, fully opaque.
func DefaultTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1, Opacity: 1}
}

// Layer is one entry of a CompositionFrame: a loaded source drawn at
// its Transform, stacked by ZIndex.
type Layer struct {
	SourceID string
	ZIndex   int
	Frame    *media.Frame // resolved by Render's parallel frameAt fetch
	Transform Transform
}

// CompositionFrame is the host-supplied description of what to draw
// for one tick: every visible layer, independent of zIndex order (the
// renderer sorts before drawing).
type CompositionFrame struct {
	Layers []Layer
}

// drawLayer composites frame onto dst per layer.Transform, applying
// the ordered steps exactly: intrinsic size → anchor translation →
// rotation about the anchor → global alpha → draw → implicit restore
// (drawLayer never mutates dst outside frame's footprint, so there is
// nothing to explicitly restore).
//
// No library in the pack performs 2D affine layer compositing with
// anchor/rotate/opacity in one pass (golang.org/x/image/draw only
// scales); the transform math here is hand-rolled for the same reason
// internal/renderer's rotation/fit geometry is.
func drawLayer(dst *image.RGBA, frame *media.Frame, t Transform) {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return
	}
	src := frameToRGBA(frame)

	sw, sh := float64(frame.Width), float64(frame.Height)
	w, h := sw, sh
	if t.Width != nil {
		w = *t.Width
	}
	if t.Height != nil {
		h = *t.Height
	}
	scaleX, scaleY := t.ScaleX, t.ScaleY
	if scaleX == 0 {
		scaleX = 1
	}
	if scaleY == 0 {
		scaleY = 1
	}

	scaledW := w * scaleX
	scaledH := h * scaleY
	scaled := image.NewRGBA(image.Rect(0, 0, int(math.Round(scaledW)), int(math.Round(scaledH))))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Over, nil)

	// Anchor translation: position (anchorX*scaledW, anchorY*scaledH)
	// within scaled at (t.X, t.Y).
	originX := t.X - t.AnchorX*scaledW
	originY := t.Y - t.AnchorY*scaledH

	rotated := rotateAbout(scaled, t.Rotation, t.AnchorX*scaledW, t.AnchorY*scaledH)
	drawWithOpacity(dst, rotated, image.Pt(int(math.Round(originX)), int(math.Round(originY))), t.Opacity)
}

// rotateAbout rotates src by degrees clockwise around (cx,cy) in src's
// own coordinate space, returning a new image sized to the same
// bounding box (unrotated pixels outside the original footprint stay
// transparent).
func rotateAbout(src *image.RGBA, degrees, cx, cy float64) *image.RGBA {
	if degrees == 0 {
		return src
	}
	rad := degrees * math.Pi / 180
	b := src.Bounds()
	out := image.NewRGBA(b)

	// Inverse-map each destination pixel back into src so every
	// destination pixel is filled exactly once (no gaps from a
	// forward-mapped rotation).
	invSin, invCos := math.Sin(-rad), math.Cos(-rad)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := dx*invCos - dy*invSin + cx
			sy := dx*invSin + dy*invCos + cy
			ix, iy := int(math.Round(sx)), int(math.Round(sy))
			if ix < b.Min.X || ix >= b.Max.X || iy < b.Min.Y || iy >= b.Max.Y {
				continue
			}
			out.Set(x, y, src.At(ix, iy))
		}
	}
	return out
}

// drawWithOpacity performs a standard src-over composite at offset,
// scaling the source alpha channel by opacity first.
func drawWithOpacity(dst *image.RGBA, src *image.RGBA, offset image.Point, opacity float64) {
	if opacity >= 1 {
		draw.Draw(dst, src.Bounds().Add(offset), src, image.Point{}, draw.Over)
		return
	}
	if opacity <= 0 {
		return
	}
	b := src.Bounds()
	mask := image.NewUniform(color.Alpha16{A: uint16(opacity * 0xffff)})
	draw.DrawMask(dst, b.Add(offset), src, b.Min, mask, image.Point{}, draw.Over)
}

// frameToRGBA wraps a decoded frame's pixels as an *image.RGBA without
// copying when the frame is already in that format.
func frameToRGBA(f *media.Frame) *image.RGBA {
	if f.Format == "rgba" {
		return &image.RGBA{
			Pix:    f.Pixels(),
			Stride: f.Width * 4,
			Rect:   image.Rect(0, 0, f.Width, f.Height),
		}
	}
	// Any other intermediate format is expected to have been normalized
	// to rgba by the decoder/transcoder before reaching the compositor
	//; treat unknown formats as already
	// laid out the same way rather than silently corrupting pixels.
	return &image.RGBA{
		Pix:    f.Pixels(),
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// sortLayersByZIndex returns layers in ascending zIndex order without
// mutating the caller's slice.
func sortLayersByZIndex(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ZIndex > out[j].ZIndex; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
