/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mediafoxhq/mediafox/internal/audio"
	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/store"
	syncengine "github.com/mediafoxhq/mediafox/internal/sync"
)

// TrackSwitchOptions configures an audio track switch. A zero value
// hard-cuts, matching selectVideoTrack's and selectSubtitleTrack's
// behavior.
type TrackSwitchOptions struct {
	// CrossfadeDuration, when > 0, ramps the outgoing track's gain down
	// and the incoming track's gain up across the window instead of a
	// hard cut, reusing the Audio Output's gain node.
	CrossfadeDuration time.Duration
	Curve             audio.FadeCurve
}

// SelectVideoTrack switches the active video track, or clears it
// when id is nil. currentTime is preserved to within one audio chunk.
func (e *Engine) SelectVideoTrack(ctx context.Context, id *string) error {
	return e.selectTrack(ctx, media.TrackVideo, id, TrackSwitchOptions{})
}

// SelectAudioTrack switches the active audio track. With a non-zero
// opts.CrossfadeDuration, the switch crossfades instead of cutting.
func (e *Engine) SelectAudioTrack(ctx context.Context, id *string, opts TrackSwitchOptions) error {
	return e.selectTrack(ctx, media.TrackAudio, id, opts)
}

// SelectSubtitleTrack switches the active subtitle track. Subtitle
// tracks have no decode pipeline of their own in this implementation
// (no subtitle renderer is wired); selection only updates the Store
// and emits trackchange.
func (e *Engine) SelectSubtitleTrack(ctx context.Context, id *string) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return errs.New(errs.InvalidState, "selectSubtitleTrack() called with nothing loaded")
	}
	if id != nil && !trackExists(session.resolved.Tracks, media.TrackSubtitle, *id) {
		return errs.New(errs.TrackNotFound, fmt.Sprintf("subtitle track %q not found", *id))
	}
	e.Store.SetState(store.NewPartial().SetSelectedSubtitleTrackID(id))
	e.Bus.Emit("trackchange", map[string]any{"type": "subtitle", "trackId": id})
	return nil
}

func (e *Engine) selectTrack(ctx context.Context, kind media.TrackKind, id *string, opts TrackSwitchOptions) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	verb := "selectAudioTrack"
	if kind == media.TrackVideo {
		verb = "selectVideoTrack"
	}
	ctx, span := e.startSpan(ctx, verb)
	defer span.End()

	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return errs.New(errs.InvalidState, verb+"() called with nothing loaded")
	}

	var currentWorkerID string
	if kind == media.TrackVideo && session.videoTrack != nil {
		currentWorkerID = session.videoTrack.ID
	}
	if kind == media.TrackAudio && session.audioTrack != nil {
		currentWorkerID = session.audioTrack.ID
	}

	if id == nil {
		if currentWorkerID != "" {
			_ = e.Decode.StopTrack(currentWorkerID)
		}
		e.clearTrackSource(kind)
		e.setSelectedTrack(kind, nil, session)
		e.Bus.Emit("trackchange", map[string]any{"type": trackKindLabel(kind), "trackId": nil})
		return nil
	}

	track, ok := findTrack(session.resolved.Tracks, kind, *id)
	if !ok {
		return errs.New(errs.TrackNotFound, fmt.Sprintf("%s track %q not found", trackKindLabel(kind), *id))
	}

	worker, err := e.startTrackWorker(ctx, session.resolved, track)
	if err != nil {
		return err
	}

	e.mu.Lock()
	sched := e.scheduler
	audioOut := e.audioOut
	e.mu.Unlock()

	if kind == media.TrackAudio && opts.CrossfadeDuration > 0 && currentWorkerID != "" && audioOut != nil && sched != nil {
		e.crossfadeAudioTrack(session, currentWorkerID, worker, track, id, audioOut, sched, opts)
		return nil
	}

	if currentWorkerID != "" {
		_ = e.Decode.StopTrack(currentWorkerID)
	}

	if sched != nil {
		if kind == media.TrackVideo {
			sched.SetVideoSource(worker)
		} else {
			sched.SetAudioSource(worker)
		}
	}

	if kind == media.TrackVideo {
		session.videoTrack = &track
	} else {
		session.audioTrack = &track
	}
	e.setSelectedTrack(kind, id, session)
	e.Bus.Emit("trackchange", map[string]any{"type": trackKindLabel(kind), "trackId": *id})
	return nil
}

func (e *Engine) clearTrackSource(kind media.TrackKind) {
	e.mu.Lock()
	sched := e.scheduler
	e.mu.Unlock()
	if sched == nil {
		return
	}
	if kind == media.TrackVideo {
		sched.SetVideoSource(nil)
	} else {
		sched.SetAudioSource(nil)
	}
}

func (e *Engine) setSelectedTrack(kind media.TrackKind, id *string, session *loadSession) {
	p := store.NewPartial()
	switch kind {
	case media.TrackVideo:
		p.SetSelectedVideoTrackID(id)
	case media.TrackAudio:
		p.SetSelectedAudioTrackID(id)
	}
	e.Store.SetState(p)
}

// crossfadeAudioTrack runs the outgoing track's gain ramp-down on a
// background goroutine scoped to the load session, cutting over to the
// new worker once the ramp completes rather than stopping the outgoing
// worker and swapping the scheduler source immediately. The goroutine
// is cancelled (and the not-yet-attached new worker closed without a
// trackchange) if the session tears down mid-ramp.
func (e *Engine) crossfadeAudioTrack(session *loadSession, oldWorkerID string, newWorker *decode.Worker, newTrack media.Track, newID *string, out *audio.Output, sched *syncengine.Scheduler, opts TrackSwitchOptions) {
	fadeCtx, cancel := context.WithCancel(context.Background())
	session.mu.Lock()
	session.fadeCancel = cancel
	session.mu.Unlock()
	session.tickWG.Add(1)

	out.BeginCrossfade(opts.CrossfadeDuration, opts.Curve)
	baseVolume := e.Store.GetState().Volume

	go func() {
		defer session.tickWG.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-fadeCtx.Done():
				out.EndCrossfade()
				out.SetVolume(baseVolume)
				newWorker.Close()
				return
			case now := <-ticker.C:
				outGain, _, ready := out.AdvanceCrossfade(now)
				out.SetVolume(baseVolume * outGain)
				if !ready {
					continue
				}
				_ = e.Decode.StopTrack(oldWorkerID)
				sched.SetAudioSource(newWorker)
				out.SetVolume(baseVolume)
				out.EndCrossfade()

				session.mu.Lock()
				session.audioTrack = &newTrack
				session.fadeCancel = nil
				session.mu.Unlock()
				e.setSelectedTrack(media.TrackAudio, newID, session)
				e.Bus.Emit("trackchange", map[string]any{"type": "audio", "trackId": *newID})
				return
			}
		}
	}()
}

func trackKindLabel(kind media.TrackKind) string {
	switch kind {
	case media.TrackVideo:
		return "video"
	case media.TrackAudio:
		return "audio"
	default:
		return "subtitle"
	}
}

func trackExists(tracks []media.Track, kind media.TrackKind, id string) bool {
	_, ok := findTrack(tracks, kind, id)
	return ok
}

func findTrack(tracks []media.Track, kind media.TrackKind, id string) (media.Track, bool) {
	for _, t := range tracks {
		if t.Kind == kind && t.ID == id {
			return t, true
		}
	}
	return media.Track{}, false
}
