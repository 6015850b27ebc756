/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/media"
)

var exportFrameFormat string

var exportFrameCmd = &cobra.Command{
	Use:   "export-frame <file> <seconds> <out.png>",
	Short: "Seek to a timestamp and write the frame presented there to an image file",
	Args:  cobra.ExactArgs(3),
	RunE:  runExportFrame,
}

func init() {
	exportFrameCmd.Flags().StringVar(&exportFrameFormat, "format", "png", "output format: png|jpeg")
}

func runExportFrame(cmd *cobra.Command, args []string) error {
	at, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parsing seconds %q: %w", args[1], err)
	}

	logger := newLogger()
	eng, err := newWAVEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Dispose()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := eng.Load(ctx, media.NewBufferSource(data), engine.LoadOptions{}); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	eng.Store.FlushNow()

	if err := eng.Seek(ctx, at, engine.SeekOptions{}); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	eng.Store.FlushNow()

	format := engine.ScreenshotPNG
	if exportFrameFormat == "jpeg" {
		format = engine.ScreenshotJPEG
	}
	bytes, err := eng.Screenshot(ctx, engine.ScreenshotOptions{Format: format, Quality: 0.92})
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}

	if err := os.WriteFile(args[2], bytes, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", args[2], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(bytes), args[2])
	return nil
}
