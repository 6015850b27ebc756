/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/renderer"
	"github.com/mediafoxhq/mediafox/internal/store"
)

// tickInterval is the Engine's internal host-timing cadence driving
// Scheduler.Tick, matching the compositor preview loop's rationale: no
// platform render-timing callback exists for this runtime, so the
// Engine supplies its own at a rate well above the timeupdate ceiling.
const tickInterval = time.Second / 60

// SeekOptions configures seek(). Precise and Keyframe are mutually
// exclusive: Precise (the default when neither is set) decodes and
// drops every frame between the preceding keyframe and t, resuming
// exactly at t; Keyframe skips the decode-and-drop run and presents
// the keyframe's own PTS as soon as it decodes.
type SeekOptions struct {
	Precise  bool
	Keyframe bool
}

// Play starts/resumes playback.
func (e *Engine) Play(ctx context.Context) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	_, span := e.startSpan(ctx, "play")
	defer span.End()

	if e.Plugins.BeforePlay() {
		return errs.New(errs.OperationAborted, "play cancelled by plugin")
	}

	e.mu.Lock()
	session := e.session
	audioOut := e.audioOut
	e.mu.Unlock()
	if session == nil {
		return errs.New(errs.InvalidState, "play() called with nothing loaded")
	}

	e.wallClock.Resume()
	if audioOut != nil {
		audioOut.Resume()
	}
	session.mu.Lock()
	session.playing = true
	session.mu.Unlock()

	e.Store.SetState(store.NewPartial().SetState(store.Playing).SetEnded(false))
	e.Bus.Emit("play", nil)
	e.Bus.Emit("playing", nil)
	e.Plugins.AfterPlay()
	return nil
}

// Pause halts playback, preserving position.
func (e *Engine) Pause(ctx context.Context) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	_, span := e.startSpan(ctx, "pause")
	defer span.End()

	if e.Plugins.BeforePause() {
		return errs.New(errs.OperationAborted, "pause cancelled by plugin")
	}

	e.mu.Lock()
	session := e.session
	audioOut := e.audioOut
	e.mu.Unlock()
	if session == nil {
		return errs.New(errs.InvalidState, "pause() called with nothing loaded")
	}

	e.wallClock.Pause()
	if audioOut != nil {
		audioOut.Pause()
	}
	session.mu.Lock()
	session.playing = false
	session.mu.Unlock()

	e.Store.SetState(store.NewPartial().SetState(store.Paused))
	e.Bus.Emit("pause", nil)
	e.Plugins.AfterPause()
	return nil
}

// Stop halts playback and releases the current pipeline, equivalent
// to Dispose() followed by a transition to Idle.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	_, span := e.startSpan(ctx, "stop")
	defer span.End()

	if e.Plugins.BeforeStop() {
		return errs.New(errs.OperationAborted, "stop cancelled by plugin")
	}
	e.Dispose()
	e.Plugins.AfterStop()
	return nil
}

// Seek repositions the pipeline to t . Rapid repeated seeks coalesce inside Scheduler.Seek.
func (e *Engine) Seek(ctx context.Context, t float64, opts SeekOptions) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "seek")
	defer span.End()

	if opts.Precise && opts.Keyframe {
		return errs.New(errs.InvalidState, "seek: precise and keyframe options are mutually exclusive")
	}

	newT, cancelled := e.Plugins.BeforeSeek(t)
	if cancelled {
		return errs.New(errs.OperationAborted, "seek cancelled by plugin")
	}
	t = newT

	e.mu.Lock()
	sched := e.scheduler
	session := e.session
	audioOut := e.audioOut
	e.mu.Unlock()
	if sched == nil || session == nil {
		return errs.New(errs.InvalidState, "seek() called with nothing loaded")
	}

	e.Store.SetState(store.NewPartial().SetSeeking(true))
	e.Bus.Emit("seeking", t)

	err := sched.Seek(ctx, t, opts.Keyframe, func(ctx context.Context, t float64) error {
		if err := e.Decode.SeekAll(t); err != nil {
			return errs.Wrap(errs.PlaybackError, "seek flush failed", err)
		}
		if audioOut != nil {
			audioOut.Anchor(t)
		} else {
			e.wallClock.Anchor(t)
		}
		return nil
	})
	if err != nil {
		e.Store.SetState(store.NewPartial().SetSeeking(false))
		return err
	}

	e.Store.SetState(store.NewPartial().SetSeeking(false).SetCurrentTime(t))
	e.Bus.Emit("seeked", t)
	e.Plugins.AfterSeek(t)
	return nil
}

// SetVolume sets the linear output volume in [0,1].
func (e *Engine) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return errs.New(errs.InvalidState, "volume must be in [0,1]")
	}
	e.mu.Lock()
	audioOut := e.audioOut
	e.mu.Unlock()
	if audioOut != nil {
		audioOut.SetVolume(v)
	}
	e.Store.SetState(store.NewPartial().SetVolume(v))
	e.Bus.Emit("volumechange", map[string]any{"volume": v, "muted": e.Store.GetState().Muted})
	return nil
}

// SetMuted toggles mute without touching volume.
func (e *Engine) SetMuted(m bool) {
	e.mu.Lock()
	audioOut := e.audioOut
	e.mu.Unlock()
	if audioOut != nil {
		audioOut.SetMuted(m)
	}
	e.Store.SetState(store.NewPartial().SetMuted(m))
	e.Bus.Emit("volumechange", map[string]any{"volume": e.Store.GetState().Volume, "muted": m})
}

// SetPlaybackRate sets the playback rate applied to both the audio
// output and the wall clock fallback.
func (e *Engine) SetPlaybackRate(r float64) error {
	if r <= 0 {
		return errs.New(errs.InvalidState, "playbackRate must be > 0")
	}
	e.mu.Lock()
	audioOut := e.audioOut
	e.mu.Unlock()
	e.wallClock.SetRate(r)
	if audioOut != nil {
		if err := audioOut.SetPlaybackRate(r); err != nil {
			return errs.Wrap(errs.InvalidState, "setPlaybackRate", err)
		}
	}
	e.Store.SetState(store.NewPartial().SetPlaybackRate(r))
	e.Bus.Emit("ratechange", r)
	return nil
}

// SetRenderTarget (re)initializes the renderer against a new surface,
// or tears it down when surface is nil.
func (e *Engine) SetRenderTarget(surface any) error {
	e.opts.RenderTarget = surface
	if surface == nil {
		e.Renderer.Dispose()
		return nil
	}
	if err := e.Renderer.Init(surface); err != nil {
		return errs.Wrap(errs.PlaybackError, "setRenderTarget", err)
	}
	return nil
}

// SetRotation updates the display rotation applied on presentation.
func (e *Engine) SetRotation(r media.Rotation) error {
	if !r.Valid() {
		return errs.New(errs.InvalidState, fmt.Sprintf("invalid rotation %d", r))
	}
	e.mu.Lock()
	sched := e.scheduler
	e.mu.Unlock()
	if sched != nil {
		sched.SetRotationAndFit(r, renderer.FitContain)
	}
	state := e.Store.GetState()
	w, h := renderer.DisplaySize(state.DisplayWidth, state.DisplayHeight, r)
	e.Store.SetState(store.NewPartial().SetRotation(r).SetDisplaySize(w, h))
	e.Bus.Emit("rotationchange", map[string]any{"rotation": r, "width": w, "height": h})
	return nil
}

// Next/Prev/JumpTo delegate to the Playlist Coordinator.
func (e *Engine) Next(ctx context.Context) error  { return e.Playlist.Next(ctx) }
func (e *Engine) Prev(ctx context.Context) error  { return e.Playlist.Prev(ctx) }
func (e *Engine) JumpTo(ctx context.Context, i int) error {
	return e.Playlist.JumpTo(ctx, i)
}

func (e *Engine) onTimeUpdate(t float64) {
	e.Store.SetState(store.NewPartial().SetCurrentTime(t))
	e.Bus.Emit("timeupdate", t)
	e.Playlist.OnProgress(t, e.Store.GetState().Duration)
}

func (e *Engine) onWaiting(waiting bool) {
	e.Store.SetState(store.NewPartial().SetWaiting(waiting))
	if waiting {
		e.Bus.Emit("waiting", nil)
	}
}

func (e *Engine) onTrackEnded() {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return
	}
	session.mu.Lock()
	already := session.ended
	session.ended = true
	session.mu.Unlock()
	if already {
		return
	}

	e.Store.SetState(store.NewPartial().SetState(store.Ended).SetEnded(true))
	e.Bus.Emit("ended", nil)
	e.Plugins.OnEnded()
	if err := e.Playlist.OnEnded(context.Background()); err != nil {
		e.logger.Warn().Err(err).Msg("playlist end-of-item dispatch failed")
	}
}

// startTickLoop spawns the goroutine driving Scheduler.Tick at
// tickInterval, mirroring compositor.PreviewController's
// internally-driven cadence.
func (e *Engine) startTickLoop(session *loadSession) {
	ctx, cancel := context.WithCancel(context.Background())
	session.tickCancel = cancel
	session.tickWG.Add(1)
	go func() {
		defer session.tickWG.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				session.mu.Lock()
				playing := session.playing
				session.mu.Unlock()

				e.mu.Lock()
				sched := e.scheduler
				e.mu.Unlock()
				if sched != nil {
					sched.Tick(playing)
				}
			}
		}
	}()
}
