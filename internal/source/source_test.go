/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/media"
)

type fakeContainer struct {
	info   media.Info
	tracks []media.Track
	closed bool
}

func (c *fakeContainer) Info() media.Info        { return c.info }
func (c *fakeContainer) Tracks() []media.Track   { return c.tracks }
func (c *fakeContainer) Close()                  { c.closed = true }
func (c *fakeContainer) OpenTrack(ctx context.Context, trackID string) (decode.Demuxer, error) {
	for _, t := range c.tracks {
		if t.ID == trackID {
			return &fakeDemuxer{}, nil
		}
	}
	return nil, errors.New("track not found")
}

type fakeDemuxer struct{}

func (fakeDemuxer) NextPacket(ctx context.Context) (decode.Packet, error) { return decode.Packet{}, io.EOF }
func (fakeDemuxer) SeekToKeyframe(t float64) error                       { return nil }

func twoTrackContainer() *fakeContainer {
	return &fakeContainer{
		info: media.Info{Duration: 42, Container: "mp4", HasVideo: true, HasAudio: true},
		tracks: []media.Track{
			{ID: "v0", Kind: media.TrackVideo, Codec: "h264"},
			{ID: "a0", Kind: media.TrackAudio, Codec: "aac"},
		},
	}
}

func supportedOnly(codecs ...string) DecoderFactory {
	set := make(map[string]bool, len(codecs))
	for _, c := range codecs {
		set[c] = true
	}
	return func(codec string, kind media.TrackKind) (decode.Decoder, error) {
		if !set[codec] {
			return nil, errors.New("unsupported codec " + codec)
		}
		return fakeDecoder{}, nil
	}
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(pkt decode.Packet) (decode.Output, error) { return nil, io.EOF }
func (fakeDecoder) Close()                                         {}

func TestResolveBufferSource(t *testing.T) {
	container := twoTrackContainer()
	demuxCalls := 0
	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		demuxCalls++
		return container, nil
	}
	r := New(demux, supportedOnly("h264", "aac"), Options{Logger: zerolog.Nop()})

	resolved, err := r.Resolve(context.Background(), media.NewBufferSource([]byte("fake-mp4-bytes")), engine.LoadOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Info.Duration != 42 {
		t.Fatalf("expected duration 42, got %v", resolved.Info.Duration)
	}
	if len(resolved.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(resolved.Tracks))
	}
	if demuxCalls != 1 {
		t.Fatalf("expected demux factory called once during Resolve, got %d", demuxCalls)
	}

	pipeline, err := resolved.Pipeline(context.Background(), "v0")
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if pipeline.Decoder == nil {
		t.Fatal("expected a native decoder for supported codec h264")
	}

	resolved.Close()
	if !container.closed {
		t.Fatal("expected Close to close the underlying container")
	}
}

func TestResolvePipelineFallsBackOnUnsupportedCodec(t *testing.T) {
	container := twoTrackContainer()
	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		data, _ := io.ReadAll(r)
		if string(data) == "converted-aac-bytes" {
			return &fakeContainer{tracks: []media.Track{{ID: "a0", Kind: media.TrackAudio, Codec: "aac"}}}, nil
		}
		return container, nil
	}
	// Only aac is natively supported; h264 must fall back.
	r := New(demux, supportedOnly("aac"), Options{Logger: zerolog.Nop()})

	resolved, err := r.Resolve(context.Background(), media.NewBufferSource([]byte("fake-mp4-bytes")), engine.LoadOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pipeline, err := resolved.Pipeline(context.Background(), "v0")
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if pipeline.Decoder != nil {
		t.Fatal("expected nil Decoder for unsupported codec")
	}
	if pipeline.FallbackReason != "unsupported-codec" {
		t.Fatalf("expected unsupported-codec reason, got %q", pipeline.FallbackReason)
	}
	if string(pipeline.SourceBytes) != "fake-mp4-bytes" {
		t.Fatalf("expected SourceBytes to carry the full fetched bytes")
	}

	// Simulate the engine's fallback-transcode splice: the converted
	// bytes are themselves a container with one aac track.
	decoderFromBytes := resolved.DecoderFromBytes("v0")
	dec, err := decoderFromBytes([]byte("converted-aac-bytes"))
	if err != nil {
		t.Fatalf("DecoderFromBytes: %v", err)
	}
	if dec == nil {
		t.Fatal("expected a decoder for the converted aac track")
	}
}

func TestResolveUnknownTrackID(t *testing.T) {
	container := twoTrackContainer()
	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		return container, nil
	}
	r := New(demux, supportedOnly("h264", "aac"), Options{Logger: zerolog.Nop()})

	resolved, err := r.Resolve(context.Background(), media.NewBufferSource([]byte("x")), engine.LoadOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := resolved.Pipeline(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown track id")
	}
}

func TestResolveURLSourceFetchesBody(t *testing.T) {
	const body = "remote-mp4-bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	var gotBytes []byte
	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		data, _ := io.ReadAll(r)
		gotBytes = data
		return twoTrackContainer(), nil
	}
	r := New(demux, supportedOnly("h264", "aac"), Options{Logger: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), media.NewURLSource(srv.URL), engine.LoadOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(gotBytes) != body {
		t.Fatalf("expected fetched body %q, got %q", body, gotBytes)
	}
}

func TestResolveURLSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		return twoTrackContainer(), nil
	}
	r := New(demux, supportedOnly("h264", "aac"), Options{Logger: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), media.NewURLSource(srv.URL), engine.LoadOptions{})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://my-bucket/path/to/object.mp4")
	if err != nil {
		t.Fatalf("parseS3URL: %v", err)
	}
	if bucket != "my-bucket" || key != "path/to/object.mp4" {
		t.Fatalf("unexpected bucket/key: %q %q", bucket, key)
	}

	if _, _, err := parseS3URL("https://example.com/x"); err == nil {
		t.Fatal("expected error for non-s3 scheme")
	}
}

func TestFileHandleSourceRequiresOpener(t *testing.T) {
	demux := func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error) {
		return twoTrackContainer(), nil
	}
	r := New(demux, supportedOnly("h264", "aac"), Options{Logger: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), media.NewFileHandleSource(stubFileHandle{}), engine.LoadOptions{})
	if err == nil {
		t.Fatal("expected error when no FileOpener is configured")
	}
}

type stubFileHandle struct{}

func (stubFileHandle) Identity() string { return "stub" }
