/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package decode implements the per-track Decode Pipeline: bounded
// output queues with cooperative backpressure, seek flush, mid-stream
// skip-budget recovery and EOS propagation.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// defaultQueueCapacity is the per-kind bound ("video queue holds ~10
// frames, audio ~20 chunks").
func defaultQueueCapacity(kind media.TrackKind) int {
	if kind == media.TrackAudio {
		return 20
	}
	return 10
}

// skipBudget is the number of consecutive mid-stream decode errors
// tolerated before escalating to a fatal error.
const skipBudget = 3

// Packet is one compressed, timestamped unit from the demuxer.
type Packet struct {
	PTS      float64
	Data     []byte
	Keyframe bool
}

// Demuxer supplies compressed packets for a single track and can
// reposition to the keyframe at or before a target time.
type Demuxer interface {
	NextPacket(ctx context.Context) (Packet, error) // io.EOF at end of stream
	SeekToKeyframe(t float64) error
}

// Output is the decoded unit produced for a packet: either a
// *media.Frame (video) or *media.AudioSamples (audio), owned by the
// queue until handed to a consumer or dropped during a seek flush.
type Output interface {
	Close()
}

// Decoder turns one packet into one Output. A decoder that cannot
// process pkt returns an error; the Worker interprets repeated errors
// per the skip-budget policy.
type Decoder interface {
	Decode(pkt Packet) (Output, error)
	Close()
}

// Worker drives a single selected track's decode loop.
type Worker struct {
	trackID string
	kind    media.TrackKind
	demux   Demuxer
	decoder Decoder
	logger  zerolog.Logger

	queue    chan Output
	errc     chan error
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	skipsUsed int
	closed    bool
}

// NewWorker constructs a Worker for one selected track.
func NewWorker(trackID string, kind media.TrackKind, demux Demuxer, decoder Decoder, logger zerolog.Logger) *Worker {
	return &Worker{
		trackID: trackID,
		kind:    kind,
		demux:   demux,
		decoder: decoder,
		logger:  logger.With().Str("component", "decode").Str("trackId", trackID).Logger(),
		queue:   make(chan Output, defaultQueueCapacity(kind)),
		errc:    make(chan error, 1),
	}
}

// Start runs the decode loop in a background goroutine. The channel
// send into the bounded queue blocks when full, which is the
// cooperative backpressure this pipeline relies on — no separate
// suspend/resume signal is needed.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.queue)

	for {
		pkt, err := w.demux.NextPacket(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, io.EOF) {
			return // EOS: queue closes, Dequeue reports it
		}
		if err != nil {
			w.reportFatal(fmt.Errorf("decode: demux error on track %s: %w", w.trackID, err))
			return
		}

		out, decErr := w.decoder.Decode(pkt)
		if decErr != nil {
			if !w.recordSkip() {
				w.reportFatal(fmt.Errorf("decode: skip budget exhausted on track %s: %w", w.trackID, decErr))
				return
			}
			w.logger.Warn().Err(decErr).Msg("mid-stream decode error, skipping to next keyframe")
			if seekErr := w.demux.SeekToKeyframe(pkt.PTS); seekErr != nil {
				w.reportFatal(fmt.Errorf("decode: recovery seek failed on track %s: %w", w.trackID, seekErr))
				return
			}
			continue
		}
		w.resetSkips()

		select {
		case w.queue <- out:
		case <-ctx.Done():
			out.Close()
			return
		}
	}
}

func (w *Worker) recordSkip() (withinBudget bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipsUsed++
	return w.skipsUsed <= skipBudget
}

func (w *Worker) resetSkips() {
	w.mu.Lock()
	w.skipsUsed = 0
	w.mu.Unlock()
}

func (w *Worker) reportFatal(err error) {
	select {
	case w.errc <- err:
	default:
	}
}

// Dequeue blocks for the next decoded output. ok=false means the
// track reached EOS (queue closed cleanly); a non-nil error means a
// fatal decode failure occurred.
func (w *Worker) Dequeue(ctx context.Context) (out Output, ok bool, err error) {
	select {
	case err := <-w.errc:
		return nil, false, err
	default:
	}
	select {
	case v, open := <-w.queue:
		if !open {
			select {
			case err := <-w.errc:
				return nil, false, err
			default:
				return nil, false, nil
			}
		}
		telemetry.DecodeQueueDepth.WithLabelValues(w.kind.String()).Set(float64(len(w.queue)))
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// TryDequeue is the non-blocking counterpart to Dequeue, used by the
// Sync Scheduler's per-tick drain loop. ok=true means
// out was popped; ok=false with eos=true means the track reached EOS
// (queue closed) and the caller should stop polling it; ok=false with
// eos=false means the queue is simply empty right now.
func (w *Worker) TryDequeue() (out Output, ok bool, eos bool) {
	select {
	case v, open := <-w.queue:
		if !open {
			return nil, false, true
		}
		telemetry.DecodeQueueDepth.WithLabelValues(w.kind.String()).Set(float64(len(w.queue)))
		return v, true, false
	default:
		return nil, false, false
	}
}

// Seek flushes the queue, repositions the demuxer and resumes
// decoding. Buffered outputs already in the queue are closed, never
// handed to a consumer. Seek does not distinguish precise from keyframe
// seeks: the consumer drops frames with PTS < t itself for a precise
// seek (decode-and-drop for B/P-frame dependencies), or presents from
// the keyframe's own PTS for a keyframe seek.
func (w *Worker) Seek(t float64) error {
	w.drainQueue()
	return w.demux.SeekToKeyframe(t)
}

func (w *Worker) drainQueue() {
	for {
		select {
		case v, open := <-w.queue:
			if !open {
				return
			}
			if v != nil {
				v.Close()
			}
		default:
			return
		}
	}
}

// Close stops the decode loop and releases the decoder. Any buffered
// outputs still in the queue are closed, never leaked.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.drainQueue()
	w.decoder.Close()
}
