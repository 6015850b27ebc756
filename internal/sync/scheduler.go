/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sync implements the Sync Scheduler: the master clock, the
// per-tick presentation-time matcher driving the Renderer and Audio
// Output, the timeupdate cadence limiter and seek/cancellation
// coalescing — a per-frame cursor matching decoded output to the
// media clock.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/renderer"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// tolerance is the lateness grace period the presentation-time matcher allows.
const tolerance = 0.010 // seconds

// timeupdateInterval is the cadence ceiling for "timeupdate" events.
const timeupdateInterval = 250 * time.Millisecond

// MasterClock reports the current media-time position. audio.Output
// satisfies this when an audio track is selected; WallClock is the
// fallback when it is not.
type MasterClock interface {
	Now() float64
}

// Presenter draws a decoded frame; *renderer.Manager satisfies this.
type Presenter interface {
	Present(frame *media.Frame, rotation media.Rotation, fit renderer.FitMode) error
}

// AudioSink enqueues a decoded chunk and can re-anchor to a media
// time; *audio.Output satisfies this.
type AudioSink interface {
	Enqueue(chunk *media.AudioSamples) error
	Anchor(mediaTime float64)
}

// FrameSource is the video queue the scheduler drains; *decode.Worker
// satisfies this.
type FrameSource interface {
	TryDequeue() (out decode.Output, ok bool, eos bool)
}

// SampleSource is the audio queue the scheduler drains.
type SampleSource interface {
	TryDequeue() (out decode.Output, ok bool, eos bool)
}

// Callbacks are the scheduler's event hooks; any may be nil.
type Callbacks struct {
	OnTimeUpdate func(t float64)
	OnWaiting    func(waiting bool)
	OnVideoEnded func()
	OnAudioEnded func()
}

// Scheduler drives presentation for one loaded pipeline . It is not safe to reuse across loads; the Engine Facade
// constructs a fresh Scheduler per load session.
type Scheduler struct {
	clock     MasterClock
	presenter Presenter
	audioSink AudioSink
	logger    zerolog.Logger
	callbacks Callbacks

	limiter *rate.Limiter

	mu             sync.Mutex
	video          FrameSource
	audio          SampleSource
	rotation       media.Rotation
	fit            renderer.FitMode
	videoLookahead *media.Frame
	waiting        bool
	videoEOS       bool
	audioEOS       bool

	seekMu              sync.Mutex
	seekGeneration      uint64
	pendingKeyframeSeek bool
}

// New constructs a Scheduler. video/audio may be nil when the
// corresponding track kind has no selection.
func New(clock MasterClock, presenter Presenter, audioSink AudioSink, logger zerolog.Logger, callbacks Callbacks) *Scheduler {
	return &Scheduler{
		clock:     clock,
		presenter: presenter,
		audioSink: audioSink,
		logger:    logger.With().Str("component", "sync").Logger(),
		callbacks: callbacks,
		limiter:   rate.NewLimiter(rate.Every(timeupdateInterval), 1),
		rotation:  media.Rotate0,
		fit:       renderer.FitContain,
	}
}

// SetVideoSource attaches (or clears, with nil) the video decode queue.
func (s *Scheduler) SetVideoSource(src FrameSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = src
	s.videoLookahead = nil
	s.videoEOS = false
}

// SetAudioSource attaches (or clears, with nil) the audio decode queue.
func (s *Scheduler) SetAudioSource(src SampleSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = src
	s.audioEOS = false
}

// SetRotationAndFit updates the presentation parameters applied on
// every subsequent Present call.
func (s *Scheduler) SetRotationAndFit(rotation media.Rotation, fit renderer.FitMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation = rotation
	s.fit = fit
}

// Tick runs one iteration of the presentation-time matcher, meant to
// be called from the host's render-timing callback.
func (s *Scheduler) Tick(playing bool) {
	nowMedia := s.clock.Now()

	s.drainVideo(nowMedia)
	s.drainAudio()

	if playing && s.limiter.Allow() {
		s.emitTimeUpdate(nowMedia)
	}
}

// NotifySeeked forces an immediate timeupdate, bypassing the cadence
// limiter, since a seek must report its new position immediately
// rather than waiting for the next cadence tick.
func (s *Scheduler) NotifySeeked() {
	s.emitTimeUpdate(s.clock.Now())
}

func (s *Scheduler) emitTimeUpdate(t float64) {
	if s.callbacks.OnTimeUpdate != nil {
		s.callbacks.OnTimeUpdate(t)
	}
}

func (s *Scheduler) drainVideo(nowMedia float64) {
	s.mu.Lock()
	video := s.video
	presenter := s.presenter
	rotation := s.rotation
	fit := s.fit
	keyframeSeek := s.pendingKeyframeSeek
	s.mu.Unlock()
	if video == nil {
		return
	}

	var candidate *media.Frame
	reachedEOS := false
	presentingKeyframe := false

	for {
		var out decode.Output
		var ok, eos bool

		s.mu.Lock()
		if s.videoLookahead != nil {
			out, ok = s.videoLookahead, true
			s.videoLookahead = nil
		} else {
			out, ok, eos = video.TryDequeue()
		}
		s.mu.Unlock()

		if !ok {
			if eos {
				reachedEOS = true
			}
			break
		}

		frame, isFrame := out.(*media.Frame)
		if !isFrame {
			continue
		}

		if keyframeSeek {
			// A keyframe seek presents the first frame decoded after
			// the seek at its own PTS immediately — no decode-and-drop.
			candidate = frame
			presentingKeyframe = true
			break
		}

		if frame.PTS+frame.Duration <= nowMedia-tolerance {
			telemetry.FramesDropped.WithLabelValues("late").Inc()
			frame.Close()
			continue
		}

		if frame.PTS <= nowMedia {
			if candidate != nil {
				candidate.Close()
			}
			candidate = frame
			continue
		}

		// Frame is not due yet: stash it for the next tick.
		s.mu.Lock()
		s.videoLookahead = frame
		s.mu.Unlock()
		break
	}

	if candidate != nil {
		if presentingKeyframe {
			s.mu.Lock()
			s.pendingKeyframeSeek = false
			s.mu.Unlock()
			s.reanchorTo(candidate.PTS)
		}
		if err := presenter.Present(candidate, rotation, fit); err != nil {
			s.logger.Warn().Err(err).Msg("present failed")
		} else {
			telemetry.FramesPresented.Inc()
		}
		candidate.Close()
		s.setWaiting(false)
		return
	}

	if reachedEOS {
		s.mu.Lock()
		already := s.videoEOS
		s.videoEOS = true
		s.mu.Unlock()
		if !already && s.callbacks.OnVideoEnded != nil {
			s.callbacks.OnVideoEnded()
		}
		return
	}

	// Nothing available yet this tick: repeat the last-presented frame
	// (a no-op — the renderer already holds it on screen) and mark
	// waiting until the next successful present.
	s.setWaiting(true)
}

func (s *Scheduler) drainAudio() {
	s.mu.Lock()
	audio := s.audio
	sink := s.audioSink
	s.mu.Unlock()
	if audio == nil || sink == nil {
		return
	}

	for {
		out, ok, eos := audio.TryDequeue()
		if !ok {
			if eos {
				s.mu.Lock()
				already := s.audioEOS
				s.audioEOS = true
				s.mu.Unlock()
				if !already && s.callbacks.OnAudioEnded != nil {
					s.callbacks.OnAudioEnded()
				}
			}
			return
		}
		samples, isSamples := out.(*media.AudioSamples)
		if !isSamples {
			continue
		}
		if err := sink.Enqueue(samples); err != nil {
			s.logger.Warn().Err(err).Msg("audio enqueue failed")
		}
		samples.Close()
	}
}

func (s *Scheduler) setWaiting(waiting bool) {
	s.mu.Lock()
	changed := s.waiting != waiting
	s.waiting = waiting
	s.mu.Unlock()
	if changed && s.callbacks.OnWaiting != nil {
		s.callbacks.OnWaiting(waiting)
	}
}

// Waiting reports the current waiting state.
func (s *Scheduler) Waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// Seek flushes outstanding queues via flush, then re-anchors the
// master clock and calls NotifySeeked. Rapid repeated seeks coalesce: a
// seek superseded by a later call before flush completes is silently
// abandoned instead of re-anchoring to a stale target.
//
// A precise seek (keyframe=false) re-anchors to t directly: drainVideo's
// ordinary tolerance check then decodes and drops every frame before t,
// resuming playback exactly at the requested time. A keyframe seek
// (keyframe=true) instead re-anchors once the first post-seek frame is
// decoded, to that frame's own PTS — presentation starts immediately at
// the keyframe rather than waiting through a decode-and-drop run.
func (s *Scheduler) Seek(ctx context.Context, t float64, keyframe bool, flush func(ctx context.Context, t float64) error) error {
	s.seekMu.Lock()
	s.seekGeneration++
	gen := s.seekGeneration
	s.seekMu.Unlock()

	s.mu.Lock()
	s.videoLookahead = nil
	s.videoEOS = false
	s.audioEOS = false
	s.pendingKeyframeSeek = keyframe
	s.mu.Unlock()

	if err := flush(ctx, t); err != nil {
		return err
	}

	s.seekMu.Lock()
	superseded := gen != s.seekGeneration
	s.seekMu.Unlock()
	if superseded {
		return nil
	}

	if !keyframe {
		s.reanchorTo(t)
	}
	s.NotifySeeked()
	return nil
}

// reanchorTo re-anchors whichever master clock is active: the audio
// sink when an audio track is selected, the wall clock fallback
// otherwise.
func (s *Scheduler) reanchorTo(t float64) {
	s.mu.Lock()
	sink := s.audioSink
	clock := s.clock
	s.mu.Unlock()
	if sink != nil {
		sink.Anchor(t)
		return
	}
	if a, ok := clock.(interface{ Anchor(mediaTime float64) }); ok {
		a.Anchor(t)
	}
}
