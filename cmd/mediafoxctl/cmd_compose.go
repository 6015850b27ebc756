/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediafoxhq/mediafox/internal/compositor"
	"github.com/mediafoxhq/mediafox/internal/media"
)

var (
	composeImages []string
	composeOut    string
	composeWidth  int
	composeHeight int
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Composite one or more still images side by side and export a single frame",
	RunE:  runCompose,
}

func init() {
	composeCmd.Flags().StringSliceVar(&composeImages, "image", nil, "image file to layer (repeatable; stacked left to right)")
	composeCmd.Flags().StringVar(&composeOut, "out", "composed.png", "output image path")
	composeCmd.Flags().IntVar(&composeWidth, "width", 1280, "output surface width")
	composeCmd.Flags().IntVar(&composeHeight, "height", 720, "output surface height")
}

func runCompose(cmd *cobra.Command, args []string) error {
	if len(composeImages) == 0 {
		return fmt.Errorf("at least one --image is required")
	}

	logger := newLogger()
	mgr := compositor.New(logger)
	defer mgr.Dispose()

	if err := mgr.Resize(composeWidth, composeHeight); err != nil {
		return err
	}

	layerW := composeWidth / len(composeImages)
	var layers []compositor.Layer
	for i, path := range composeImages {
		src := mgr.LoadImage(&fileImageProvider{path: path})
		w := float64(layerW)
		layers = append(layers, compositor.Layer{
			SourceID:  src.ID(),
			ZIndex:    i,
			Transform: compositor.Transform{X: float64(i * layerW), ScaleX: 1, ScaleY: 1, Opacity: 1, Width: &w},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	getComposition := func(t float64) compositor.CompositionFrame {
		return compositor.CompositionFrame{Layers: layers}
	}
	bytes, err := mgr.ExportFrame(ctx, 0, getComposition, compositor.EncodeOptions{Format: compositor.FormatPNG})
	if err != nil {
		return fmt.Errorf("export frame: %w", err)
	}

	if err := os.WriteFile(composeOut, bytes, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", composeOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(bytes), composeOut)
	return nil
}

// fileImageProvider decodes a still image file once via the stdlib
// image package (png/jpeg auto-registered via blank imports above) and
// satisfies compositor.ImageProvider.
type fileImageProvider struct {
	path   string
	frame  *media.Frame
}

func (p *fileImageProvider) Decode(ctx context.Context) (*media.Frame, error) {
	if p.frame != nil {
		return p.frame, nil
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p.path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p.path, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]byte, w*h*4)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			pixels[idx] = byte(r >> 8)
			pixels[idx+1] = byte(g >> 8)
			pixels[idx+2] = byte(b >> 8)
			pixels[idx+3] = byte(a >> 8)
			idx += 4
		}
	}
	p.frame = media.NewFrame(0, 0, "RGBA", w, h, pixels)
	return p.frame, nil
}

func (p *fileImageProvider) Close() {}
