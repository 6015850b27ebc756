/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package compositor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// frameCacheSize bounds how many decoded frames a video Source keeps
// around its most recent frameAt lookups, giving it a decoded cache of
// frames near t without growing unbounded for a long-running preview.
const frameCacheSize = 8

// VideoProvider is the host-supplied demux+decode adapter for one
// compositor video source, addressed by timestamp rather than
// sequential packets (unlike internal/decode.Demuxer/Decoder, which
// serve the main playback pipeline).
type VideoProvider interface {
	// DecodeAt returns the frame whose presentation time is nearest t.
	DecodeAt(ctx context.Context, t float64) (*media.Frame, error)
	Close()
}

// ImageProvider decodes a still image once; every frameAt call
// returns the same frame.
type ImageProvider interface {
	Decode(ctx context.Context) (*media.Frame, error)
	Close()
}

// AudioProvider is an audio-only compositor source (background music
// under a composition); the compositor does not mix it itself — a
// host wires the decoded samples into its own audio graph — so this
// surface is limited to lifecycle management.
type AudioProvider interface {
	Close()
}

// Source is the common handle LoadSource/LoadImage/LoadAudio return.
type Source struct {
	id   string
	kind sourceKind

	mu       sync.Mutex
	video    VideoProvider
	image    ImageProvider
	audio    AudioProvider
	cache    map[int64]*media.Frame // frames keyed by rounded-to-ms PTS
	cacheSeq []int64
	imgFrame *media.Frame
}

type sourceKind int

const (
	sourceVideo sourceKind = iota
	sourceImage
	sourceAudio
)

func newVideoSource(id string, p VideoProvider) *Source {
	return &Source{id: id, kind: sourceVideo, video: p, cache: make(map[int64]*media.Frame)}
}

func newImageSource(id string, p ImageProvider) *Source {
	return &Source{id: id, kind: sourceImage, image: p}
}

func newAudioSource(id string, p AudioProvider) *Source {
	return &Source{id: id, kind: sourceAudio, audio: p}
}

// ID returns the identifier LoadSource/LoadImage/LoadAudio assigned.
func (s *Source) ID() string { return s.id }

// FrameAt resolves the frame to draw at time t (ignored for image
// sources, which always return their single decoded frame; an error
// for audio sources, which have no visual frame).
func (s *Source) FrameAt(ctx context.Context, t float64) (*media.Frame, error) {
	switch s.kind {
	case sourceImage:
		return s.imageFrame(ctx)
	case sourceAudio:
		return nil, fmt.Errorf("compositor: source %q is audio-only and has no frame", s.id)
	default:
		return s.videoFrameAt(ctx, t)
	}
}

func (s *Source) imageFrame(ctx context.Context) (*media.Frame, error) {
	s.mu.Lock()
	if s.imgFrame != nil {
		f := s.imgFrame
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	f, err := s.image.Decode(ctx)
	if err != nil {
		return nil, fmt.Errorf("compositor: decode image source %q: %w", s.id, err)
	}
	s.mu.Lock()
	s.imgFrame = f
	s.mu.Unlock()
	return f, nil
}

func (s *Source) videoFrameAt(ctx context.Context, t float64) (*media.Frame, error) {
	key := cacheKeyFor(t)
	s.mu.Lock()
	if f, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	f, err := s.video.DecodeAt(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("compositor: decode video source %q at t=%.3f: %w", s.id, t, err)
	}

	s.mu.Lock()
	s.cache[key] = f
	s.cacheSeq = append(s.cacheSeq, key)
	for len(s.cacheSeq) > frameCacheSize {
		evict := s.cacheSeq[0]
		s.cacheSeq = s.cacheSeq[1:]
		delete(s.cache, evict)
	}
	s.mu.Unlock()
	return f, nil
}

// Close releases the underlying provider and any cached frames.
func (s *Source) Close() {
	switch s.kind {
	case sourceVideo:
		s.video.Close()
	case sourceImage:
		s.image.Close()
	case sourceAudio:
		s.audio.Close()
	}
}

// cacheKeyFor rounds t to millisecond granularity so near-identical
// frameAt calls within the same tick hit the same cache slot.
func cacheKeyFor(t float64) int64 {
	return int64(math.Round(t * 1000))
}
