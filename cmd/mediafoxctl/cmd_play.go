/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/store"
)

var playMaxDuration time.Duration

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Load and play a media file, printing state transitions until it ends or --for elapses",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().DurationVar(&playMaxDuration, "for", 30*time.Second, "stop playback after this long even if the source has not ended")
}

func runPlay(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	var lastState store.PlayerState
	eng.Subscribe(func(d store.PlayerStateData) {
		if d.State != lastState {
			fmt.Fprintf(out, "[%6.2fs] state=%s\n", d.CurrentTime, d.State)
			lastState = d.State
		}
	})

	ended := make(chan struct{})
	unsub := eng.On("ended", func(payload any) { close(ended) })
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), playMaxDuration+5*time.Second)
	defer cancel()

	if err := eng.Load(ctx, media.NewBufferSource(data), engine.LoadOptions{}); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	eng.Store.FlushNow()

	if err := eng.Play(ctx); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	select {
	case <-ended:
		fmt.Fprintln(out, "playback ended")
	case <-time.After(playMaxDuration):
		fmt.Fprintln(out, "playback stopped: --for elapsed")
		if err := eng.Stop(ctx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
