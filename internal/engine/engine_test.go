/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/plugin"
	"github.com/mediafoxhq/mediafox/internal/store"
)

// fakeDemuxer yields a fixed number of packets then io.EOF.
type fakeDemuxer struct {
	remaining int
}

func (d *fakeDemuxer) NextPacket(ctx context.Context) (decode.Packet, error) {
	if d.remaining <= 0 {
		return decode.Packet{}, io.EOF
	}
	d.remaining--
	return decode.Packet{PTS: float64(d.remaining), Keyframe: true}, nil
}

func (d *fakeDemuxer) SeekToKeyframe(t float64) error { return nil }

type fakeOutput struct{ closed bool }

func (o *fakeOutput) Close() { o.closed = true }

type fakeVideoDecoder struct{}

func (fakeVideoDecoder) Decode(pkt decode.Packet) (decode.Output, error) {
	pixels := make([]byte, 4*4*4)
	return media.NewFrame(pkt.PTS, 0, "RGBA", 4, 4, pixels), nil
}
func (fakeVideoDecoder) Close() {}

type fakeAudioDecoder struct{}

func (fakeAudioDecoder) Decode(pkt decode.Packet) (decode.Output, error) {
	return media.NewAudioSamples(pkt.PTS, 0, 2, 48000, true, make([]float32, 256)), nil
}
func (fakeAudioDecoder) Close() {}

// fakeResolver satisfies engine.Resolver without depending on internal/source.
type fakeResolver struct {
	info   media.Info
	tracks []media.Track
	err    error
}

func (r *fakeResolver) Resolve(ctx context.Context, source media.Source, opts LoadOptions) (*ResolvedSource, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &ResolvedSource{
		Info:   r.info,
		Tracks: r.tracks,
		Pipeline: func(ctx context.Context, trackID string) (TrackPipeline, error) {
			for _, t := range r.tracks {
				if t.ID != trackID {
					continue
				}
				if t.Kind == media.TrackVideo {
					return TrackPipeline{Demux: &fakeDemuxer{remaining: 3}, Decoder: fakeVideoDecoder{}}, nil
				}
				return TrackPipeline{Demux: &fakeDemuxer{remaining: 3}, Decoder: fakeAudioDecoder{}}, nil
			}
			return TrackPipeline{}, errors.New("unknown track")
		},
	}, nil
}

func newTestEngine(t *testing.T, resolver Resolver) *Engine {
	t.Helper()
	e := New(resolver, Options{Logger: zerolog.Nop()})
	e.Store.FlushNow()
	return e
}

func twoTrackSource() (media.Info, []media.Track) {
	info := media.Info{Duration: 10, Container: "mp4", HasVideo: true, HasAudio: true}
	tracks := []media.Track{
		{ID: "v0", Kind: media.TrackVideo, Width: 640, Height: 360},
		{ID: "a0", Kind: media.TrackAudio, Channels: 2, SampleRate: 48000},
	}
	return info, tracks
}

func TestLoadPlayEndedSequencing(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()

	var ended bool
	unsub := e.On("ended", func(payload any) { ended = true })
	defer unsub()

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := e.GetState()
	if st.State != store.Ready {
		t.Fatalf("expected Ready after load, got %v", st.State)
	}
	if st.Duration != 10 {
		t.Fatalf("expected duration 10, got %v", st.Duration)
	}

	if err := e.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	e.Store.FlushNow()
	if e.GetState().State != store.Playing {
		t.Fatalf("expected Playing, got %v", e.GetState().State)
	}

	// Let the internal tick loop drain both decode workers to EOS.
	deadline := time.After(2 * time.Second)
	for !ended {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ended")
		case <-time.After(10 * time.Millisecond):
		}
	}
	e.Store.FlushNow()
	if e.GetState().State != store.Ended {
		t.Fatalf("expected Ended, got %v", e.GetState().State)
	}
}

func TestLoadFailurePropagatesErrorState(t *testing.T) {
	e := newTestEngine(t, &fakeResolver{err: errors.New("boom")})
	defer e.Destroy()

	err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	e.Store.FlushNow()
	if e.GetState().State != store.ErrorState {
		t.Fatalf("expected ErrorState, got %v", e.GetState().State)
	}
}

func TestSelectVideoTrackSwitchesSource(t *testing.T) {
	info := media.Info{Duration: 10, Container: "mp4", HasVideo: true}
	tracks := []media.Track{
		{ID: "v0", Kind: media.TrackVideo, Width: 640, Height: 360},
		{ID: "v1", Kind: media.TrackVideo, Width: 1280, Height: 720},
	}
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	id := "v1"
	if err := e.SelectVideoTrack(context.Background(), &id); err != nil {
		t.Fatalf("SelectVideoTrack: %v", err)
	}
	e.Store.FlushNow()
	st := e.GetState()
	if st.SelectedVideoTrackID == nil || *st.SelectedVideoTrackID != "v1" {
		t.Fatalf("expected v1 selected, got %+v", st.SelectedVideoTrackID)
	}

	if err := e.SelectVideoTrack(context.Background(), nil); err != nil {
		t.Fatalf("SelectVideoTrack(nil): %v", err)
	}
	e.Store.FlushNow()
	if e.GetState().SelectedVideoTrackID != nil {
		t.Fatal("expected selection cleared")
	}
}

type fakeAudioBackend struct{ now time.Duration }

func (b *fakeAudioBackend) Now() time.Duration { return b.now }
func (b *fakeAudioBackend) ScheduleBuffer(samples *media.AudioSamples, at time.Duration, gain, rate float64) error {
	return nil
}
func (b *fakeAudioBackend) StopScheduled()        {}
func (b *fakeAudioBackend) SupportsTimeStretch() bool { return false }

func TestSelectAudioTrackCrossfadesInsteadOfHardCut(t *testing.T) {
	info := media.Info{Duration: 10, Container: "mp4", HasAudio: true}
	tracks := []media.Track{
		{ID: "a0", Kind: media.TrackAudio, Channels: 2, SampleRate: 48000},
		{ID: "a1", Kind: media.TrackAudio, Channels: 2, SampleRate: 48000},
	}
	e := New(&fakeResolver{info: info, tracks: tracks}, Options{Logger: zerolog.Nop(), AudioBackend: &fakeAudioBackend{}})
	e.Store.FlushNow()
	defer e.Destroy()

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan struct{})
	var closeOnce sync.Once
	unsub := e.On("trackchange", func(payload any) {
		if m, ok := payload.(map[string]any); ok && m["type"] == "audio" {
			closeOnce.Do(func() { close(changed) })
		}
	})
	defer unsub()

	id := "a1"
	if err := e.SelectAudioTrack(context.Background(), &id, TrackSwitchOptions{CrossfadeDuration: 20 * time.Millisecond}); err != nil {
		t.Fatalf("SelectAudioTrack: %v", err)
	}

	e.Store.FlushNow()
	if st := e.GetState(); st.SelectedAudioTrackID != nil && *st.SelectedAudioTrackID == "a1" {
		t.Fatal("expected the crossfade to still be ramping, not switched immediately")
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the crossfaded trackchange")
	}
	e.Store.FlushNow()
	st := e.GetState()
	if st.SelectedAudioTrackID == nil || *st.SelectedAudioTrackID != "a1" {
		t.Fatalf("expected a1 selected once the crossfade completes, got %+v", st.SelectedAudioTrackID)
	}
}

func TestSelectVideoTrackUnknownID(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()
	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	bogus := "does-not-exist"
	if err := e.SelectVideoTrack(context.Background(), &bogus); err == nil {
		t.Fatal("expected TrackNotFound error")
	}
}

func TestPluginCanAbortPlay(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()
	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := plugin.Plugin{
		Name: "blocker",
		Lifecycle: plugin.LifecycleHooks{
			BeforePlay: func() (cancel bool) { return true },
		},
	}
	if err := e.Use(p); err != nil {
		t.Fatalf("Use: %v", err)
	}

	err := e.Play(context.Background())
	if err == nil {
		t.Fatal("expected play to be cancelled by plugin")
	}
	e.Store.FlushNow()
	if e.GetState().State == store.Playing {
		t.Fatal("expected play to not have transitioned")
	}
}

func TestDisposeThenReload(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	e.Dispose()
	e.Store.FlushNow()
	if e.GetState().State != store.Idle {
		t.Fatalf("expected Idle after Dispose, got %v", e.GetState().State)
	}

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/b.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	e.Store.FlushNow()
	if e.GetState().State != store.Ready {
		t.Fatalf("expected Ready after second load, got %v", e.GetState().State)
	}
}

func TestDestroyIsIdempotentAndBlocksVerbs(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e.Destroy()
	e.Destroy() // must not panic or double-teardown

	if err := e.Play(context.Background()); err == nil {
		t.Fatal("expected Play after Destroy to fail")
	}
	if _, err := e.Screenshot(context.Background(), ScreenshotOptions{}); err == nil {
		t.Fatal("expected Screenshot after Destroy to fail")
	}
}

func TestSeekUpdatesCurrentTime(t *testing.T) {
	info, tracks := twoTrackSource()
	e := newTestEngine(t, &fakeResolver{info: info, tracks: tracks})
	defer e.Destroy()

	if err := e.Load(context.Background(), media.NewURLSource("https://example.com/a.mp4"), LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Seek(context.Background(), 5, SeekOptions{}); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	e.Store.FlushNow()
	if got := e.GetState().CurrentTime; got != 5 {
		t.Fatalf("expected currentTime 5, got %v", got)
	}
}

func TestSetVolumeValidation(t *testing.T) {
	e := newTestEngine(t, &fakeResolver{})
	defer e.Destroy()
	if err := e.SetVolume(-0.1); err == nil {
		t.Fatal("expected error for negative volume")
	}
	if err := e.SetVolume(1.1); err == nil {
		t.Fatal("expected error for volume > 1")
	}
	if err := e.SetVolume(0.5); err != nil {
		t.Fatalf("SetVolume(0.5): %v", err)
	}
	e.Store.FlushNow()
	if got := e.GetState().Volume; got != 0.5 {
		t.Fatalf("expected volume 0.5, got %v", got)
	}
}
