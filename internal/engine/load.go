/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediafoxhq/mediafox/internal/audio"
	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/renderer"
	"github.com/mediafoxhq/mediafox/internal/store"
	syncengine "github.com/mediafoxhq/mediafox/internal/sync"
	"github.com/mediafoxhq/mediafox/internal/transcode"
)

// Load resolves source and starts a fresh pipeline for it, cancelling
// whatever session preceded it.
func (e *Engine) Load(ctx context.Context, source media.Source, opts LoadOptions) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "load")
	defer span.End()
	return e.doLoad(ctx, source, opts)
}

// LoadPlaylist hands items to the Playlist Coordinator, which drives
// Load for the starting item.
func (e *Engine) LoadPlaylist(ctx context.Context, items []media.PlaylistItem, startIndex int) error {
	if err := e.requireNotDestroyed(); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "loadPlaylist")
	defer span.End()
	return e.Playlist.LoadPlaylist(ctx, items, startIndex)
}

// loadPlaylistItem is the Playlist Coordinator's LoadFunc : it drives the same doLoad path a direct Load() call uses.
func (e *Engine) loadPlaylistItem(ctx context.Context, item media.PlaylistItem, startAt float64) error {
	return e.doLoad(ctx, item.Source, LoadOptions{StartAt: startAt})
}

func (e *Engine) doLoad(ctx context.Context, source media.Source, opts LoadOptions) error {
	rewritten, cancelled := e.Plugins.BeforeLoad(opts)
	if cancelled {
		return errs.New(errs.OperationAborted, "load cancelled by plugin")
	}
	if ro, ok := rewritten.(LoadOptions); ok {
		opts = ro
	}

	e.teardownCurrentSession()

	e.Bus.Emit("loadstart", nil)
	e.Transcode.Reset()
	e.Store.SetState(store.NewPartial().
		SetState(store.Loading).
		SetEnded(false).
		SetCanPlay(false).
		SetCanPlayThrough(false))

	sessionCtx, cancel := context.WithCancel(ctx)
	resolved, err := e.resolver.Resolve(sessionCtx, source, opts)
	if err != nil {
		cancel()
		return e.failLoad(errs.Wrap(errs.MediaLoadFailed, "resolving source", err))
	}

	videoTrack, audioTrack, subtitleTrack := pickDefaultTracks(resolved.Tracks)

	e.Store.SetState(store.NewPartial().
		SetInfo(&resolved.Info).
		SetDuration(resolved.Info.Duration).
		SetIsLive(resolved.Info.IsLive()).
		SetVideoTracks(filterKind(resolved.Tracks, media.TrackVideo)).
		SetAudioTracks(filterKind(resolved.Tracks, media.TrackAudio)).
		SetSubtitleTracks(filterKind(resolved.Tracks, media.TrackSubtitle)).
		SetSelectedVideoTrackID(trackIDPtr(videoTrack)).
		SetSelectedAudioTrackID(trackIDPtr(audioTrack)).
		SetSelectedSubtitleTrackID(trackIDPtr(subtitleTrack)))
	e.Bus.Emit("loadedmetadata", resolved.Info)

	sessionID := uuid.NewString()
	session := &loadSession{id: sessionID, cancel: cancel, resolved: resolved, videoTrack: videoTrack, audioTrack: audioTrack}
	e.logger.Debug().Str("sessionId", sessionID).Msg("load session started")

	var videoWorker, audioWorker *decode.Worker
	if videoTrack != nil {
		w, err := e.startTrackWorker(sessionCtx, resolved, *videoTrack)
		if err != nil {
			cancel()
			return e.failLoad(err)
		}
		videoWorker = w
	}
	if audioTrack != nil {
		w, err := e.startTrackWorker(sessionCtx, resolved, *audioTrack)
		if err != nil {
			cancel()
			return e.failLoad(err)
		}
		audioWorker = w
	}

	if err := e.wireOutputs(session, videoWorker, audioWorker); err != nil {
		cancel()
		return e.failLoad(err)
	}

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	e.startTickLoop(session)

	e.Bus.Emit("loadeddata", nil)
	e.Store.SetState(store.NewPartial().SetState(store.Ready).SetCanPlay(true).SetCanPlayThrough(true))
	e.Bus.Emit("canplay", nil)
	e.Bus.Emit("canplaythrough", nil)
	e.Bus.Emit("ready", nil)
	e.Plugins.AfterLoad(opts)

	if opts.StartAt > 0 {
		if err := e.Seek(ctx, opts.StartAt, SeekOptions{}); err != nil {
			e.logger.Warn().Err(err).Msg("seek to startAt failed")
		}
	}
	if e.opts.Autoplay {
		_ = e.Play(ctx)
	}
	return nil
}

// startTrackWorker resolves track's pipeline, running it through the
// Fallback Transcoder first when the resolver marked it
// non-decodable.
func (e *Engine) startTrackWorker(ctx context.Context, resolved *ResolvedSource, track media.Track) (*decode.Worker, error) {
	pipeline, err := resolved.Pipeline(ctx, track.ID)
	if err != nil {
		return nil, errs.Wrap(errs.MediaLoadFailed, fmt.Sprintf("resolving pipeline for track %s", track.ID), err)
	}

	decoder := pipeline.Decoder
	if decoder == nil {
		reason := transcode.ReasonUnsupportedCodec
		if pipeline.FallbackReason == "decoder-init-failed" {
			reason = transcode.ReasonDecoderInitFailed
		}
		converted, err := e.Transcode.Convert(ctx, resolved.Info.Container+":"+track.ID, track, 0, pipeline.SourceBytes, reason)
		if err != nil {
			return nil, errs.Wrap(errs.MediaNotSupported, fmt.Sprintf("no decoder for track %s and fallback transcode failed", track.ID), err)
		}
		if resolved.DecoderFromBytes == nil {
			return nil, errs.New(errs.MediaNotSupported, fmt.Sprintf("track %s converted but resolver cannot build a decoder from bytes", track.ID))
		}
		newDecoder := resolved.DecoderFromBytes(track.ID)
		if newDecoder == nil {
			return nil, errs.New(errs.MediaNotSupported, fmt.Sprintf("no byte-decoder factory for track %s", track.ID))
		}
		decoder, err = newDecoder(converted)
		if err != nil {
			return nil, errs.Wrap(errs.DecodeError, fmt.Sprintf("building decoder for converted track %s", track.ID), err)
		}
	}

	return e.Decode.StartTrack(ctx, track.ID, track.Kind, pipeline.Demux, decoder), nil
}

// wireOutputs builds the renderer/audio output and the Sync Scheduler
// for the freshly started track workers.
func (e *Engine) wireOutputs(session *loadSession, videoWorker, audioWorker *decode.Worker) error {
	state := e.Store.GetState()
	e.wallClock.Anchor(0)

	var clock syncengine.MasterClock = e.wallClock
	var sink syncengine.AudioSink
	if audioWorker != nil && e.opts.AudioBackend != nil {
		out := audio.New(e.opts.AudioBackend, e.logger)
		out.SetVolume(state.Volume)
		out.SetMuted(state.Muted)
		_ = out.SetPlaybackRate(state.PlaybackRate)
		out.ApplyAudioChain(e.Plugins)
		out.Anchor(0)
		e.mu.Lock()
		e.audioOut = out
		e.mu.Unlock()
		clock = out
		sink = out
	}

	var inner syncPresenter
	if e.opts.RenderTarget != nil {
		if err := e.Renderer.Init(e.opts.RenderTarget); err != nil {
			return errs.Wrap(errs.PlaybackError, "renderer init failed", err)
		}
		inner = e.Renderer
	}
	capturer := &capturingPresenter{inner: inner}
	e.mu.Lock()
	e.capturer = capturer
	e.mu.Unlock()

	callbacks := syncengine.Callbacks{
		OnTimeUpdate: e.onTimeUpdate,
		OnWaiting:    e.onWaiting,
		OnVideoEnded: e.onTrackEnded,
		OnAudioEnded: e.onTrackEnded,
	}
	sched := syncengine.New(clock, capturer, sink, e.logger, callbacks)
	if videoWorker != nil {
		sched.SetVideoSource(videoWorker)
	}
	if audioWorker != nil {
		sched.SetAudioSource(audioWorker)
	}
	rotation := e.Store.GetState().Rotation
	sched.SetRotationAndFit(rotation, renderer.FitContain)

	e.mu.Lock()
	e.scheduler = sched
	e.mu.Unlock()
	return nil
}

func (e *Engine) failLoad(err *errs.Error) error {
	e.Store.SetState(store.NewPartial().SetState(store.ErrorState).SetError(err))
	e.Bus.Emit("error", err)
	e.Plugins.OnError(err)
	return err
}

func (e *Engine) teardownCurrentSession() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	audioOut := e.audioOut
	e.audioOut = nil
	e.scheduler = nil
	e.capturer = nil
	e.mu.Unlock()
	if session != nil {
		e.teardownSession(session)
	}
	if audioOut != nil {
		audioOut.Pause()
	}
	e.Decode.StopAll()
}

func (e *Engine) teardownSession(session *loadSession) {
	session.mu.Lock()
	fadeCancel := session.fadeCancel
	session.mu.Unlock()
	if fadeCancel != nil {
		fadeCancel()
	}
	if session.tickCancel != nil {
		session.tickCancel()
		session.tickWG.Wait()
	}
	if session.cancel != nil {
		session.cancel()
	}
	if session.resolved != nil && session.resolved.Close != nil {
		session.resolved.Close()
	}
}

func pickDefaultTracks(tracks []media.Track) (video, audioT, subtitle *media.Track) {
	for i := range tracks {
		t := tracks[i]
		switch t.Kind {
		case media.TrackVideo:
			if video == nil {
				video = &tracks[i]
			}
		case media.TrackAudio:
			if audioT == nil {
				audioT = &tracks[i]
			}
		case media.TrackSubtitle:
			if subtitle == nil {
				subtitle = &tracks[i]
			}
		}
	}
	return video, audioT, subtitle
}

func filterKind(tracks []media.Track, kind media.TrackKind) []media.Track {
	var out []media.Track
	for _, t := range tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func trackIDPtr(t *media.Track) *string {
	if t == nil {
		return nil
	}
	id := t.ID
	return &id
}
