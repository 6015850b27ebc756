/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// Equal implements the deep-equality semantics the Store relies on to
// suppress redundant flushes: reference-identical is handled by the
// caller short-circuiting on
// pointer identity where applicable; here, slices compare elementwise
// and pointer fields compare by dereferenced value (or both-nil),
// which is what prevents a redundant notification when a caller
// passes a freshly-allocated slice/struct containing the same data.
func Equal(a, b PlayerStateData) bool {
	if a.State != b.State ||
		a.CurrentTime != b.CurrentTime ||
		a.Duration != b.Duration ||
		a.Volume != b.Volume ||
		a.Muted != b.Muted ||
		a.PlaybackRate != b.PlaybackRate ||
		a.Seeking != b.Seeking ||
		a.Waiting != b.Waiting ||
		a.Ended != b.Ended ||
		a.CanPlay != b.CanPlay ||
		a.CanPlayThrough != b.CanPlayThrough ||
		a.IsLive != b.IsLive ||
		a.RendererType != b.RendererType ||
		a.Rotation != b.Rotation ||
		a.DisplayWidth != b.DisplayWidth ||
		a.DisplayHeight != b.DisplayHeight ||
		a.PlaylistMode != b.PlaylistMode {
		return false
	}

	if !timeRangesEqual(a.Buffered, b.Buffered) {
		return false
	}
	if !tracksEqual(a.VideoTracks, b.VideoTracks) ||
		!tracksEqual(a.AudioTracks, b.AudioTracks) ||
		!tracksEqual(a.SubtitleTracks, b.SubtitleTracks) {
		return false
	}
	if !stringPtrEqual(a.SelectedVideoTrackID, b.SelectedVideoTrackID) ||
		!stringPtrEqual(a.SelectedAudioTrackID, b.SelectedAudioTrackID) ||
		!stringPtrEqual(a.SelectedSubtitleTrackID, b.SelectedSubtitleTrackID) {
		return false
	}
	if !intPtrEqual(a.CurrentPlaylistIndex, b.CurrentPlaylistIndex) {
		return false
	}
	if !infoEqual(a.Info, b.Info) {
		return false
	}
	if !errorEqual(a.LastError, b.LastError) {
		return false
	}
	if !playlistEqual(a.Playlist, b.Playlist) {
		return false
	}
	return true
}

func timeRangesEqual(a, b []media.TimeRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tracksEqual(a, b []media.Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func infoEqual(a, b *media.Info) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Duration != b.Duration || a.Container != b.Container || a.MIME != b.MIME ||
		a.HasVideo != b.HasVideo || a.HasAudio != b.HasAudio || a.HasSubtitle != b.HasSubtitle {
		return false
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if bv, ok := b.Metadata[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func errorEqual(a, b *errs.Error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.Message == b.Message
}

func playlistEqual(a, b []media.PlaylistItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Title != b[i].Title || a[i].PosterURL != b[i].PosterURL {
			return false
		}
		if !float64PtrEqual(a[i].SavedPosition, b[i].SavedPosition) {
			return false
		}
		if !float64PtrEqual(a[i].Duration, b[i].Duration) {
			return false
		}
	}
	return true
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
