/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Command mediafoxctl exercises the Engine Facade and Compositor from
// the command line: probe/play/export-frame drive internal/engine
// against a built-in PCM-WAV demux+decoder (see wav.go), and compose
// drives internal/compositor directly against still images.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediafoxhq/mediafox/internal/logging"
)

var environment string

var rootCmd = &cobra.Command{
	Use:   "mediafoxctl",
	Short: "Exercise the MediaFox engine end-to-end from the command line",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&environment, "env", "development", "logging environment (development|production)")
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(exportFrameCmd)
	rootCmd.AddCommand(composeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return logging.Setup(environment)
}
