/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// field is a bitmask of which PlayerStateData fields a Partial
// actually touches, so a field explicitly set to its zero value (or
// to nil, for the nullable ones) is still merged — unlike a plain
// struct literal, where "not set" and "set to zero" are
// indistinguishable.
type field uint32

const (
	fState field = 1 << iota
	fCurrentTime
	fDuration
	fBuffered
	fVolume
	fMuted
	fPlaybackRate
	fSeeking
	fWaiting
	fEnded
	fCanPlay
	fCanPlayThrough
	fIsLive
	fInfo
	fVideoTracks
	fAudioTracks
	fSubtitleTracks
	fSelectedVideoTrackID
	fSelectedAudioTrackID
	fSelectedSubtitleTrackID
	fRendererType
	fRotation
	fDisplaySize
	fLastError
	fPlaylist
	fCurrentPlaylistIndex
	fPlaylistMode
)

// Partial is a closed-enumeration patch against PlayerStateData,
// built with the chained setters below and applied by Store.SetState.
// Unlike a bare struct literal, Partial distinguishes "untouched"
// from "explicitly set to zero/nil" via the touched bitmask.
type Partial struct {
	data    PlayerStateData
	touched field
}

// NewPartial starts an empty patch.
func NewPartial() *Partial { return &Partial{} }

func (p *Partial) set(f field) *Partial { p.touched |= f; return p }

func (p *Partial) SetState(s PlayerState) *Partial { p.data.State = s; return p.set(fState) }

func (p *Partial) SetCurrentTime(t float64) *Partial { p.data.CurrentTime = t; return p.set(fCurrentTime) }

func (p *Partial) SetDuration(d float64) *Partial { p.data.Duration = d; return p.set(fDuration) }

func (p *Partial) SetBuffered(ranges []media.TimeRange) *Partial {
	p.data.Buffered = media.MergeSorted(append([]media.TimeRange(nil), ranges...))
	return p.set(fBuffered)
}

func (p *Partial) SetVolume(v float64) *Partial { p.data.Volume = v; return p.set(fVolume) }

func (p *Partial) SetMuted(m bool) *Partial { p.data.Muted = m; return p.set(fMuted) }

func (p *Partial) SetPlaybackRate(r float64) *Partial { p.data.PlaybackRate = r; return p.set(fPlaybackRate) }

func (p *Partial) SetSeeking(v bool) *Partial { p.data.Seeking = v; return p.set(fSeeking) }

func (p *Partial) SetWaiting(v bool) *Partial { p.data.Waiting = v; return p.set(fWaiting) }

func (p *Partial) SetEnded(v bool) *Partial { p.data.Ended = v; return p.set(fEnded) }

func (p *Partial) SetCanPlay(v bool) *Partial { p.data.CanPlay = v; return p.set(fCanPlay) }

func (p *Partial) SetCanPlayThrough(v bool) *Partial {
	p.data.CanPlayThrough = v
	return p.set(fCanPlayThrough)
}

func (p *Partial) SetIsLive(v bool) *Partial { p.data.IsLive = v; return p.set(fIsLive) }

func (p *Partial) SetInfo(info *media.Info) *Partial { p.data.Info = info; return p.set(fInfo) }

func (p *Partial) SetVideoTracks(tracks []media.Track) *Partial {
	p.data.VideoTracks = tracks
	return p.set(fVideoTracks)
}

func (p *Partial) SetAudioTracks(tracks []media.Track) *Partial {
	p.data.AudioTracks = tracks
	return p.set(fAudioTracks)
}

func (p *Partial) SetSubtitleTracks(tracks []media.Track) *Partial {
	p.data.SubtitleTracks = tracks
	return p.set(fSubtitleTracks)
}

func (p *Partial) SetSelectedVideoTrackID(id *string) *Partial {
	p.data.SelectedVideoTrackID = id
	return p.set(fSelectedVideoTrackID)
}

func (p *Partial) SetSelectedAudioTrackID(id *string) *Partial {
	p.data.SelectedAudioTrackID = id
	return p.set(fSelectedAudioTrackID)
}

func (p *Partial) SetSelectedSubtitleTrackID(id *string) *Partial {
	p.data.SelectedSubtitleTrackID = id
	return p.set(fSelectedSubtitleTrackID)
}

func (p *Partial) SetRendererType(t string) *Partial { p.data.RendererType = t; return p.set(fRendererType) }

func (p *Partial) SetRotation(r media.Rotation) *Partial { p.data.Rotation = r; return p.set(fRotation) }

func (p *Partial) SetDisplaySize(w, h int) *Partial {
	p.data.DisplayWidth, p.data.DisplayHeight = w, h
	return p.set(fDisplaySize)
}

// SetError sets the last error; pass nil to clear it explicitly via
// Reset() instead — SetError(nil) is a no-op guard against accidental
// silent clears.
func (p *Partial) SetError(err *errs.Error) *Partial {
	if err == nil {
		return p
	}
	p.data.LastError = err
	return p.set(fLastError)
}

func (p *Partial) SetPlaylist(items []media.PlaylistItem) *Partial {
	p.data.Playlist = items
	return p.set(fPlaylist)
}

func (p *Partial) SetCurrentPlaylistIndex(idx *int) *Partial {
	p.data.CurrentPlaylistIndex = idx
	return p.set(fCurrentPlaylistIndex)
}

func (p *Partial) SetPlaylistMode(m PlaylistMode) *Partial {
	p.data.PlaylistMode = m
	return p.set(fPlaylistMode)
}

// merge overlays src onto p, src's touched fields winning (later
// SetState calls in the same batch override earlier ones).
func (p *Partial) merge(src *Partial) {
	if src.touched&fState != 0 {
		p.data.State = src.data.State
	}
	if src.touched&fCurrentTime != 0 {
		p.data.CurrentTime = src.data.CurrentTime
	}
	if src.touched&fDuration != 0 {
		p.data.Duration = src.data.Duration
	}
	if src.touched&fBuffered != 0 {
		p.data.Buffered = src.data.Buffered
	}
	if src.touched&fVolume != 0 {
		p.data.Volume = src.data.Volume
	}
	if src.touched&fMuted != 0 {
		p.data.Muted = src.data.Muted
	}
	if src.touched&fPlaybackRate != 0 {
		p.data.PlaybackRate = src.data.PlaybackRate
	}
	if src.touched&fSeeking != 0 {
		p.data.Seeking = src.data.Seeking
	}
	if src.touched&fWaiting != 0 {
		p.data.Waiting = src.data.Waiting
	}
	if src.touched&fEnded != 0 {
		p.data.Ended = src.data.Ended
	}
	if src.touched&fCanPlay != 0 {
		p.data.CanPlay = src.data.CanPlay
	}
	if src.touched&fCanPlayThrough != 0 {
		p.data.CanPlayThrough = src.data.CanPlayThrough
	}
	if src.touched&fIsLive != 0 {
		p.data.IsLive = src.data.IsLive
	}
	if src.touched&fInfo != 0 {
		p.data.Info = src.data.Info
	}
	if src.touched&fVideoTracks != 0 {
		p.data.VideoTracks = src.data.VideoTracks
	}
	if src.touched&fAudioTracks != 0 {
		p.data.AudioTracks = src.data.AudioTracks
	}
	if src.touched&fSubtitleTracks != 0 {
		p.data.SubtitleTracks = src.data.SubtitleTracks
	}
	if src.touched&fSelectedVideoTrackID != 0 {
		p.data.SelectedVideoTrackID = src.data.SelectedVideoTrackID
	}
	if src.touched&fSelectedAudioTrackID != 0 {
		p.data.SelectedAudioTrackID = src.data.SelectedAudioTrackID
	}
	if src.touched&fSelectedSubtitleTrackID != 0 {
		p.data.SelectedSubtitleTrackID = src.data.SelectedSubtitleTrackID
	}
	if src.touched&fRendererType != 0 {
		p.data.RendererType = src.data.RendererType
	}
	if src.touched&fRotation != 0 {
		p.data.Rotation = src.data.Rotation
	}
	if src.touched&fDisplaySize != 0 {
		p.data.DisplayWidth = src.data.DisplayWidth
		p.data.DisplayHeight = src.data.DisplayHeight
	}
	if src.touched&fLastError != 0 {
		p.data.LastError = src.data.LastError
	}
	if src.touched&fPlaylist != 0 {
		p.data.Playlist = src.data.Playlist
	}
	if src.touched&fCurrentPlaylistIndex != 0 {
		p.data.CurrentPlaylistIndex = src.data.CurrentPlaylistIndex
	}
	if src.touched&fPlaylistMode != 0 {
		p.data.PlaylistMode = src.data.PlaylistMode
	}
	p.touched |= src.touched
}

// applyTo overlays the touched fields of p onto base, returning a new
// PlayerStateData.
func (p *Partial) applyTo(base PlayerStateData) PlayerStateData {
	out := base
	if p.touched&fState != 0 {
		out.State = p.data.State
	}
	if p.touched&fCurrentTime != 0 {
		out.CurrentTime = p.data.CurrentTime
	}
	if p.touched&fDuration != 0 {
		out.Duration = p.data.Duration
	}
	if p.touched&fBuffered != 0 {
		out.Buffered = p.data.Buffered
	}
	if p.touched&fVolume != 0 {
		out.Volume = p.data.Volume
	}
	if p.touched&fMuted != 0 {
		out.Muted = p.data.Muted
	}
	if p.touched&fPlaybackRate != 0 {
		out.PlaybackRate = p.data.PlaybackRate
	}
	if p.touched&fSeeking != 0 {
		out.Seeking = p.data.Seeking
	}
	if p.touched&fWaiting != 0 {
		out.Waiting = p.data.Waiting
	}
	if p.touched&fEnded != 0 {
		out.Ended = p.data.Ended
	}
	if p.touched&fCanPlay != 0 {
		out.CanPlay = p.data.CanPlay
	}
	if p.touched&fCanPlayThrough != 0 {
		out.CanPlayThrough = p.data.CanPlayThrough
	}
	if p.touched&fIsLive != 0 {
		out.IsLive = p.data.IsLive
	}
	if p.touched&fInfo != 0 {
		out.Info = p.data.Info
	}
	if p.touched&fVideoTracks != 0 {
		out.VideoTracks = p.data.VideoTracks
	}
	if p.touched&fAudioTracks != 0 {
		out.AudioTracks = p.data.AudioTracks
	}
	if p.touched&fSubtitleTracks != 0 {
		out.SubtitleTracks = p.data.SubtitleTracks
	}
	if p.touched&fSelectedVideoTrackID != 0 {
		out.SelectedVideoTrackID = p.data.SelectedVideoTrackID
	}
	if p.touched&fSelectedAudioTrackID != 0 {
		out.SelectedAudioTrackID = p.data.SelectedAudioTrackID
	}
	if p.touched&fSelectedSubtitleTrackID != 0 {
		out.SelectedSubtitleTrackID = p.data.SelectedSubtitleTrackID
	}
	if p.touched&fRendererType != 0 {
		out.RendererType = p.data.RendererType
	}
	if p.touched&fRotation != 0 {
		out.Rotation = p.data.Rotation
	}
	if p.touched&fDisplaySize != 0 {
		out.DisplayWidth = p.data.DisplayWidth
		out.DisplayHeight = p.data.DisplayHeight
	}
	if p.touched&fLastError != 0 {
		out.LastError = p.data.LastError
	}
	if p.touched&fPlaylist != 0 {
		out.Playlist = p.data.Playlist
	}
	if p.touched&fCurrentPlaylistIndex != 0 {
		out.CurrentPlaylistIndex = p.data.CurrentPlaylistIndex
	}
	if p.touched&fPlaylistMode != 0 {
		out.PlaylistMode = p.data.PlaylistMode
	}
	return out
}

func (p *Partial) isEmpty() bool { return p.touched == 0 }
