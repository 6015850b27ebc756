/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/media"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Load a media file and print its resolved MediaInfo and tracks as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

type probeResult struct {
	Info   media.Info    `json:"info"`
	Tracks []media.Track `json:"tracks"`
}

func runProbe(cmd *cobra.Command, args []string) error {
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

	if err := eng.Load(ctx, media.NewBufferSource(data), engine.LoadOptions{Preload: engine.PreloadMetadata}); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	// Load's state transitions are batched; flush so GetState reflects
	// them immediately instead of whatever the next AfterFunc(0) tick
	// would have applied.
	eng.Store.FlushNow()

	state := eng.GetState()
	result := probeResult{Tracks: append([]media.Track(nil), state.VideoTracks...)}
	result.Tracks = append(result.Tracks, state.AudioTracks...)
	result.Tracks = append(result.Tracks, state.SubtitleTracks...)
	if state.Info != nil {
		result.Info = *state.Info
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
