/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// TrackPipeline is everything the Engine needs to start decoding one
// demuxed track: the demuxer/decoder pair and, for tracks the source
// resolver could not natively decode, the raw bytes the Fallback
// Transcoder needs plus the reason it fell back.
type TrackPipeline struct {
	Demux   decode.Demuxer
	Decoder decode.Decoder

	// SourceBytes and FallbackReason are set only when Track.Decodable
	// is false; Decoder is nil in that case until the Engine splices in
	// a transcoder-produced decoder via NewDecoderFromBytes.
	SourceBytes    []byte
	FallbackReason string
}

// NewDecoderFromBytes builds a Decoder over converted bytes, used
// after a successful Fallback Transcoder conversion. Resolver
// implementations supply this so the Engine never needs to know the
// concrete demux/decode library.
type NewDecoderFromBytes func(converted []byte) (decode.Decoder, error)

// ResolvedSource is the result of a MediaSource resolution: container
// metadata, the track list, and a pipeline builder per track.
type ResolvedSource struct {
	Info   media.Info
	Tracks []media.Track

	// Pipeline returns the demux/decode pair for trackID, resolved
	// lazily so only the selected tracks pay decoder-init cost.
	Pipeline func(ctx context.Context, trackID string) (TrackPipeline, error)

	// DecoderFromBytes is non-nil when the resolver can splice a
	// transcoder's output back into a concrete Decoder; nil disables
	// fallback-transcode for this source even if a Func is registered.
	DecoderFromBytes func(trackID string) NewDecoderFromBytes

	// Close releases any resolver-owned resources (open file handles,
	// network connections) once the Engine is done with this source.
	Close func()
}

// Resolver turns a media.Source plus load options into a
// ResolvedSource. internal/source implements this
// against the four Source variants; tests supply fakes.
type Resolver interface {
	Resolve(ctx context.Context, source media.Source, opts LoadOptions) (*ResolvedSource, error)
}
