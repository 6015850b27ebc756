/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transcode implements the Fallback Transcoder: detects a
// non-decodable track, hands it to a host-supplied conversion
// function, and splices the converted bytes back into the pipeline,
// via a registry of per-track-kind Funcs driving cancellable,
// progress-reporting conversions.
package transcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// Reason is why a track was marked non-decodable.
type Reason string

const (
	ReasonUnsupportedCodec  Reason = "unsupported-codec"
	ReasonDecoderInitFailed Reason = "decoder-init-failed"
)

// ProgressFunc reports conversion progress in [0,1] with a free-form
// stage label (e.g. "probing", "transcoding", "muxing").
type ProgressFunc func(progress float64, stage string)

// Func is a host-supplied conversion: full source bytes plus the
// track index in, converted bytes in a known-supported format out.
type Func func(ctx context.Context, sourceBytes []byte, trackIndex int, onProgress ProgressFunc) ([]byte, error)

type cacheKey struct {
	sourceIdentity string
	trackID        string
}

// Events emitted on the bus.
const (
	TopicConversionStart    eventbus.Topic = "conversionstart"
	TopicConversionProgress eventbus.Topic = "conversionprogress"
	TopicConversionComplete eventbus.Topic = "conversioncomplete"
	TopicConversionError    eventbus.Topic = "conversionerror"
)

type ConversionStartPayload struct {
	Type    media.TrackKind
	TrackID string
	Reason  Reason
}

type ConversionProgressPayload struct {
	Type     media.TrackKind
	TrackID  string
	Progress float64
	Stage    string
}

type ConversionCompletePayload struct {
	TrackID  string
	Duration time.Duration
}

type ConversionErrorPayload struct {
	TrackID string
	Err     error
}

// Service owns the registered per-kind transcode Funcs, the current
// load session's conversion cache, and in-flight cancellation.
type Service struct {
	bus    *eventbus.Bus
	logger zerolog.Logger
	shared SharedCache

	mu          sync.Mutex
	transcoders map[media.TrackKind]Func
	cache       map[cacheKey][]byte
	cancels     map[cacheKey]context.CancelFunc
}

// New constructs an empty Service with only the in-process cache.
func New(bus *eventbus.Bus, logger zerolog.Logger) *Service {
	return &Service{
		bus:         bus,
		logger:      logger.With().Str("component", "transcode").Logger(),
		transcoders: make(map[media.TrackKind]Func),
		cache:       make(map[cacheKey][]byte),
		cancels:     make(map[cacheKey]context.CancelFunc),
	}
}

// NewWithSharedCache constructs a Service backed additionally by an
// optional shared cache layer in front of the in-process map.
func NewWithSharedCache(bus *eventbus.Bus, logger zerolog.Logger, shared SharedCache) *Service {
	s := New(bus, logger)
	s.shared = shared
	return s
}

// Register installs the host's conversion function for a track kind.
// A kind with no registered Func is simply never attempted.
func (s *Service) Register(kind media.TrackKind, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcoders[kind] = fn
}

// Reset discards the conversion cache and cancels any in-flight
// conversions — called on load of a new source.
func (s *Service) Reset() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = make(map[cacheKey]context.CancelFunc)
	s.cache = make(map[cacheKey][]byte)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Convert runs the fallback-transcode sequence for one track. Bytes
// already converted this session, or found in the shared cache, are
// returned at once and no event is emitted; otherwise it emits
// conversionstart and invokes the registered Func on sourceBytes (resolved by the caller via
// internal/source) with progress routed to conversionprogress, and on
// success caches the bytes and emits conversioncomplete. On failure it
// emits conversionerror and returns the error — the caller decides
// whether to disable the track or escalate to a fatal error.
func (s *Service) Convert(ctx context.Context, sourceIdentity string, track media.Track, trackIndex int, sourceBytes []byte, reason Reason) ([]byte, error) {
	key := cacheKey{sourceIdentity: sourceIdentity, trackID: track.ID}

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	fn, ok := s.transcoders[track.Kind]
	shared := s.shared
	s.mu.Unlock()

	if shared != nil {
		if cached, hit, err := shared.Get(ctx, sharedCacheKey(key)); err != nil {
			s.logger.Warn().Err(err).Msg("shared transcode cache lookup failed, falling back to conversion")
		} else if hit {
			s.mu.Lock()
			s.cache[key] = cached
			s.mu.Unlock()
			return cached, nil
		}
	}

	s.emit(TopicConversionStart, ConversionStartPayload{Type: track.Kind, TrackID: track.ID, Reason: reason})

	if !ok {
		err := fmt.Errorf("transcode: no transcoder registered for %s tracks", track.Kind)
		s.emit(TopicConversionError, ConversionErrorPayload{TrackID: track.ID, Err: err})
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[key] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, key)
		s.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	onProgress := func(progress float64, stage string) {
		s.emit(TopicConversionProgress, ConversionProgressPayload{
			Type: track.Kind, TrackID: track.ID, Progress: progress, Stage: stage,
		})
	}

	out, err := fn(ctx, sourceBytes, trackIndex, onProgress)
	if err != nil {
		s.logger.Warn().Err(err).Str("trackId", track.ID).Msg("fallback transcode failed")
		s.emit(TopicConversionError, ConversionErrorPayload{TrackID: track.ID, Err: err})
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = out
	shared = s.shared
	s.mu.Unlock()
	if shared != nil {
		if err := shared.Set(ctx, sharedCacheKey(key), out, 0); err != nil {
			s.logger.Warn().Err(err).Msg("shared transcode cache write failed")
		}
	}

	s.emit(TopicConversionComplete, ConversionCompletePayload{TrackID: track.ID, Duration: time.Since(start)})
	return out, nil
}

func sharedCacheKey(key cacheKey) string {
	return key.sourceIdentity + "/" + key.trackID
}

func (s *Service) emit(topic eventbus.Topic, payload any) {
	if s.bus != nil {
		s.bus.Emit(topic, payload)
	}
}
