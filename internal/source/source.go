/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source resolves a media.Source (URL, byte buffer, readable
// stream, or opaque file handle) into bytes a container-demux library
// can parse, and implements the engine.Resolver interface on top of
// host-supplied demux/decoder factories. Concrete container demuxing
// is assumed provided by a demux library exposing a track-iterator +
// packet-reader interface; this package is that adapter boundary, not
// a demuxer itself.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/engine"
	"github.com/mediafoxhq/mediafox/internal/media"
)

// ContainerDemux is the track-iterator + packet-reader interface a
// host-supplied demux library implements for one opened container.
type ContainerDemux interface {
	// Info describes the container once it has been probed.
	Info() media.Info
	// Tracks lists every track the container exposes.
	Tracks() []media.Track
	// OpenTrack returns a packet reader for trackID, positioned at
	// the start of the stream.
	OpenTrack(ctx context.Context, trackID string) (decode.Demuxer, error)
	// Close releases any resources the container holds (file
	// descriptors, decoder contexts).
	Close()
}

// DemuxFactory opens a container from a seekable byte source. mimeHint
// is a best-effort MIME/extension hint; implementations are expected
// to sniff when it is empty or wrong.
type DemuxFactory func(ctx context.Context, r io.ReadSeeker, mimeHint string) (ContainerDemux, error)

// DecoderFactory builds a decoder for one track's codec. It returns an
// error for any codec the decoder library does not natively support,
// which the Engine Facade routes through the Fallback Transcoder
// before asking DecoderFactory again for the converted track's codec.
type DecoderFactory func(codec string, kind media.TrackKind) (decode.Decoder, error)

// FileOpener resolves an opaque media.FileHandle into a readable
// stream. Hosts that never pass file-handle sources may leave this nil.
type FileOpener func(h media.FileHandle) (media.ReadSeekCloser, error)

// Options configures a Resolver.
type Options struct {
	Logger zerolog.Logger

	HTTPClient *http.Client
	// ReadRateLimit caps read throughput (bytes/sec) of URL, stream and
	// file-handle sources; zero disables limiting. S3 object reads are
	// not limited. Guards against a single slow/malicious remote source
	// monopolizing the process's read bandwidth.
	ReadRateLimit int

	FileOpener FileOpener

	S3 S3Config
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}

// Resolver implements engine.Resolver by fetching a MediaSource's
// bytes and handing them to a host-supplied DemuxFactory/DecoderFactory
// pair.
type Resolver struct {
	demux   DemuxFactory
	decoder DecoderFactory
	opts    Options
	logger  zerolog.Logger
	s3      *s3Fetcher
}

// New constructs a Resolver. demux and decoder are required; Resolve
// returns an error if either is nil when called.
func New(demux DemuxFactory, decoder DecoderFactory, opts Options) *Resolver {
	opts = opts.withDefaults()
	logger := opts.Logger.With().Str("component", "source").Logger()
	return &Resolver{
		demux:   demux,
		decoder: decoder,
		opts:    opts,
		logger:  logger,
		s3:      newS3Fetcher(opts.S3, logger),
	}
}

var _ engine.Resolver = (*Resolver)(nil)

// Resolve implements engine.Resolver.
func (r *Resolver) Resolve(ctx context.Context, src media.Source, opts engine.LoadOptions) (*engine.ResolvedSource, error) {
	if r.demux == nil {
		return nil, fmt.Errorf("source: no DemuxFactory configured")
	}
	if r.decoder == nil {
		return nil, fmt.Errorf("source: no DecoderFactory configured")
	}

	raw, mimeHint, err := r.fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetching source: %w", err)
	}

	container, err := r.demux(ctx, bytes.NewReader(raw), mimeHint)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}

	tracks := container.Tracks()
	info := container.Info()

	resolved := &engine.ResolvedSource{
		Info:   info,
		Tracks: tracks,
		Pipeline: func(ctx context.Context, trackID string) (engine.TrackPipeline, error) {
			return r.openPipeline(ctx, container, tracks, raw, trackID)
		},
		DecoderFromBytes: func(trackID string) engine.NewDecoderFromBytes {
			return func(converted []byte) (decode.Decoder, error) {
				return r.decodeConverted(ctx, converted)
			}
		},
		Close: container.Close,
	}
	return resolved, nil
}

func (r *Resolver) openPipeline(ctx context.Context, container ContainerDemux, tracks []media.Track, raw []byte, trackID string) (engine.TrackPipeline, error) {
	track, ok := findTrack(tracks, trackID)
	if !ok {
		return engine.TrackPipeline{}, fmt.Errorf("source: track %q not found", trackID)
	}

	demuxer, err := container.OpenTrack(ctx, trackID)
	if err != nil {
		return engine.TrackPipeline{}, fmt.Errorf("opening track %q: %w", trackID, err)
	}

	dec, err := r.decoder(track.Codec, track.Kind)
	if err != nil {
		r.logger.Warn().Err(err).Str("trackId", trackID).Str("codec", track.Codec).
			Msg("no native decoder for track, falling back to transcode")
		return engine.TrackPipeline{Demux: demuxer, Decoder: nil, SourceBytes: raw, FallbackReason: "unsupported-codec"}, nil
	}
	return engine.TrackPipeline{Demux: demuxer, Decoder: dec}, nil
}

// decodeConverted re-demuxes the Fallback Transcoder's output, which
// is itself a well-known-codec container, and builds a decoder for
// its first track.
func (r *Resolver) decodeConverted(ctx context.Context, converted []byte) (decode.Decoder, error) {
	container, err := r.demux(ctx, bytes.NewReader(converted), "")
	if err != nil {
		return nil, fmt.Errorf("opening converted container: %w", err)
	}
	defer container.Close()

	tracks := container.Tracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("source: converted bytes contain no tracks")
	}
	return r.decoder(tracks[0].Codec, tracks[0].Kind)
}

// fetch materializes a MediaSource's bytes in memory plus a best-effort
// MIME/extension hint for the demux factory to sniff against.
func (r *Resolver) fetch(ctx context.Context, src media.Source) (raw []byte, mimeHint string, err error) {
	switch src.Kind {
	case media.SourceBuffer:
		return src.Buffer, "", nil

	case media.SourceStream:
		if src.Stream == nil {
			return nil, "", fmt.Errorf("source: stream source has a nil Stream")
		}
		defer src.Stream.Close()
		data, err := io.ReadAll(r.limited(src.Stream))
		return data, "", err

	case media.SourceFileHandle:
		if r.opts.FileOpener == nil {
			return nil, "", fmt.Errorf("source: file-handle source given but no FileOpener configured")
		}
		stream, err := r.opts.FileOpener(src.FileHandle)
		if err != nil {
			return nil, "", fmt.Errorf("opening file handle: %w", err)
		}
		defer stream.Close()
		data, err := io.ReadAll(r.limited(stream))
		return data, "", err

	case media.SourceURL:
		return r.fetchURL(ctx, src.URL)

	default:
		return nil, "", fmt.Errorf("source: unknown source kind %v", src.Kind)
	}
}

func (r *Resolver) fetchURL(ctx context.Context, rawURL string) (raw []byte, mimeHint string, err error) {
	if strings.HasPrefix(rawURL, "s3://") {
		data, err := r.s3.Fetch(ctx, rawURL)
		return data, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(r.limited(resp.Body))
	return data, resp.Header.Get("Content-Type"), err
}

// limited wraps r in a rate.Limiter-backed reader when ReadRateLimit
// is configured, bounding how fast a single slow/hostile remote source
// can be pulled into memory.
func (r *Resolver) limited(rd io.Reader) io.Reader {
	if r.opts.ReadRateLimit <= 0 {
		return rd
	}
	return &rateLimitedReader{r: rd, lim: rate.NewLimiter(rate.Limit(r.opts.ReadRateLimit), r.opts.ReadRateLimit)}
}

type rateLimitedReader struct {
	r   io.Reader
	lim *rate.Limiter
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.lim.WaitN(context.Background(), min(n, rl.lim.Burst())); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func findTrack(tracks []media.Track, id string) (media.Track, bool) {
	for _, t := range tracks {
		if t.ID == id {
			return t, true
		}
	}
	return media.Track{}, false
}
