package decode

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/media"
)

type fakeOutput struct {
	pts    float64
	closed bool
}

func (f *fakeOutput) Close() { f.closed = true }

type fakeDemuxer struct {
	mu      sync.Mutex
	packets []Packet
	idx     int
	seeks   []float64
	failAt  int // packet index that triggers an error on decode, -1 disables
}

func (d *fakeDemuxer) NextPacket(ctx context.Context) (Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx >= len(d.packets) {
		return Packet{}, io.EOF
	}
	p := d.packets[d.idx]
	d.idx++
	return p, nil
}

func (d *fakeDemuxer) SeekToKeyframe(t float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = append(d.seeks, t)
	return nil
}

type fakeDecoder struct {
	mu       sync.Mutex
	failOnce map[float64]bool
	closed   bool
}

func (d *fakeDecoder) Decode(pkt Packet) (Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOnce[pkt.PTS] {
		delete(d.failOnce, pkt.PTS)
		return nil, errors.New("simulated decode failure")
	}
	return &fakeOutput{pts: pkt.PTS}, nil
}

func (d *fakeDecoder) Close() { d.closed = true }

func TestWorkerDequeuesInOrder(t *testing.T) {
	demux := &fakeDemuxer{packets: []Packet{{PTS: 0}, {PTS: 1}, {PTS: 2}}}
	decoder := &fakeDecoder{failOnce: map[float64]bool{}}
	w := NewWorker("v1", media.TrackVideo, demux, decoder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for _, want := range []float64{0, 1, 2} {
		out, ok, err := w.Dequeue(ctx)
		if err != nil || !ok {
			t.Fatalf("dequeue: ok=%v err=%v", ok, err)
		}
		if out.(*fakeOutput).pts != want {
			t.Fatalf("expected pts %v, got %v", want, out.(*fakeOutput).pts)
		}
	}

	_, ok, err := w.Dequeue(ctx)
	if ok || err != nil {
		t.Fatalf("expected clean EOS, got ok=%v err=%v", ok, err)
	}
	w.Close()
}

func TestWorkerRecoversFromMidStreamError(t *testing.T) {
	demux := &fakeDemuxer{packets: []Packet{{PTS: 0}, {PTS: 1}, {PTS: 2}}}
	decoder := &fakeDecoder{failOnce: map[float64]bool{1: true}}
	w := NewWorker("v1", media.TrackVideo, demux, decoder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	out, ok, err := w.Dequeue(ctx)
	if !ok || err != nil || out.(*fakeOutput).pts != 0 {
		t.Fatalf("expected first output pts=0, got %+v ok=%v err=%v", out, ok, err)
	}

	// pts=1 fails decode and is skipped; pts=2 should still arrive.
	out, ok, err = w.Dequeue(ctx)
	if !ok || err != nil || out.(*fakeOutput).pts != 2 {
		t.Fatalf("expected recovered output pts=2, got %+v ok=%v err=%v", out, ok, err)
	}
	w.Close()
}

func TestWorkerEscalatesAfterSkipBudgetExhausted(t *testing.T) {
	demux := &fakeDemuxer{packets: []Packet{{PTS: 0}, {PTS: 1}, {PTS: 2}, {PTS: 3}, {PTS: 4}}}
	decoder := &fakeDecoder{failOnce: map[float64]bool{0: true, 1: true, 2: true, 3: true}}
	w := NewWorker("v1", media.TrackVideo, demux, decoder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	_, ok, err := w.Dequeue(ctx)
	if ok || err == nil {
		t.Fatalf("expected fatal error after exhausting skip budget, got ok=%v err=%v", ok, err)
	}
	w.Close()
}

func TestSeekFlushesBufferedOutputs(t *testing.T) {
	demux := &fakeDemuxer{packets: []Packet{{PTS: 0}, {PTS: 1}}}
	decoder := &fakeDecoder{failOnce: map[float64]bool{}}
	w := NewWorker("v1", media.TrackVideo, demux, decoder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(10 * time.Millisecond) // let the worker fill the queue

	if err := w.Seek(0.5); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if n := len(w.queue); n != 0 {
		t.Fatalf("expected seek to flush the output queue, %d outputs left", n)
	}
	if len(demux.seeks) != 1 || demux.seeks[0] != 0.5 {
		t.Fatalf("expected demuxer repositioned to 0.5, got %v", demux.seeks)
	}
	w.Close()
}

func TestManagerStopTrackClosesWorker(t *testing.T) {
	demux := &fakeDemuxer{packets: []Packet{{PTS: 0}}}
	decoder := &fakeDecoder{failOnce: map[float64]bool{}}
	m := NewManager(zerolog.Nop())

	ctx := context.Background()
	m.StartTrack(ctx, "v1", media.TrackVideo, demux, decoder)

	if _, ok := m.Worker("v1"); !ok {
		t.Fatal("expected worker registered")
	}
	if err := m.StopTrack("v1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := m.Worker("v1"); ok {
		t.Fatal("expected worker removed after stop")
	}
	if !decoder.closed {
		t.Fatal("expected decoder closed on stop")
	}
}
