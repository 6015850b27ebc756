/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store implements the batched, observable, immutable state
// record at the heart of MediaFox: a single
// PlayerStateData snapshot mutated only through SetState, fanned out
// to subscribers once per coalesced batch.
package store

import (
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// PlayerState is the discriminated player lifecycle enum.
type PlayerState int

const (
	Idle PlayerState = iota
	Loading
	Ready
	Playing
	Paused
	Ended
	ErrorState
)

func (s PlayerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case ErrorState:
		return "error"
	default:
		return "unknown"
	}
}

// PlaylistMode is the Playlist Coordinator's mode machine value,
// carried on the snapshot for observers.
type PlaylistMode int

const (
	PlaylistModeNone PlaylistMode = iota
	PlaylistModeManual
	PlaylistModeSequential
	PlaylistModeRepeat
	PlaylistModeRepeatOne
)

func (m PlaylistMode) String() string {
	switch m {
	case PlaylistModeManual:
		return "manual"
	case PlaylistModeSequential:
		return "sequential"
	case PlaylistModeRepeat:
		return "repeat"
	case PlaylistModeRepeatOne:
		return "repeat-one"
	default:
		return "none"
	}
}

// PlayerStateData is the single observable snapshot. It
// is treated as immutable by everyone; Store.FlushNow and Store.Reset
// replace it with a new value instead of mutating it.
type PlayerStateData struct {
	State PlayerState

	CurrentTime float64
	Duration    float64
	Buffered    []media.TimeRange

	Volume       float64
	Muted        bool
	PlaybackRate float64

	Seeking        bool
	Waiting        bool
	Ended          bool
	CanPlay        bool
	CanPlayThrough bool
	IsLive         bool

	Info *media.Info

	VideoTracks    []media.Track
	AudioTracks    []media.Track
	SubtitleTracks []media.Track

	SelectedVideoTrackID    *string
	SelectedAudioTrackID    *string
	SelectedSubtitleTrackID *string

	RendererType  string
	Rotation      media.Rotation
	DisplayWidth  int
	DisplayHeight int

	LastError *errs.Error

	Playlist             []media.PlaylistItem
	CurrentPlaylistIndex *int
	PlaylistMode         PlaylistMode
}

// Playing reports the computed "playing" flag.
func (d PlayerStateData) Playing() bool { return d.State == Playing }

// Paused reports the computed "paused" flag.
func (d PlayerStateData) Paused() bool {
	switch d.State {
	case Ready, Paused, Ended:
		return true
	default:
		return false
	}
}

// Initial returns the zero-session starting snapshot.
func Initial() PlayerStateData {
	return PlayerStateData{
		State:        Idle,
		Volume:       1,
		PlaybackRate: 1,
		Buffered:     nil,
	}
}

// Clone returns a deep-enough copy suitable for handing to a
// subscriber as an immutable snapshot (slices and pointee values are
// copied; the caller never gets a handle back into Store internals).
func (d PlayerStateData) Clone() PlayerStateData {
	out := d
	out.Buffered = append([]media.TimeRange(nil), d.Buffered...)
	out.VideoTracks = append([]media.Track(nil), d.VideoTracks...)
	out.AudioTracks = append([]media.Track(nil), d.AudioTracks...)
	out.SubtitleTracks = append([]media.Track(nil), d.SubtitleTracks...)
	out.Playlist = media.ClonePlaylist(d.Playlist)
	out.SelectedVideoTrackID = clonePtr(d.SelectedVideoTrackID)
	out.SelectedAudioTrackID = clonePtr(d.SelectedAudioTrackID)
	out.SelectedSubtitleTrackID = clonePtr(d.SelectedSubtitleTrackID)
	out.CurrentPlaylistIndex = clonePtr(d.CurrentPlaylistIndex)
	if d.Info != nil {
		info := *d.Info
		out.Info = &info
	}
	if d.LastError != nil {
		errCopy := *d.LastError
		out.LastError = &errCopy
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
