/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/source"
)

// newWAVEngine constructs an Engine wired to mediafoxctl's built-in
// PCM-WAV demux/decoder (wav.go). A real embedding host passes its own
// demux library's factories to source.New instead — mediafoxctl ships
// one concrete pair purely so probe/play/export-frame have something
// to load without an external dependency.
func newWAVEngine(logger zerolog.Logger) (*engine.Engine, error) {
	resolver := source.New(wavDemuxFactory, wavDecoderFactory, source.Options{Logger: logger})
	return engine.New(resolver, engine.Options{Logger: logger}), nil
}
