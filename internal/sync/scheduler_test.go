package sync

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/renderer"
)

type fakeClock struct {
	mu float64
}

func (c *fakeClock) Now() float64 { return c.mu }

type fakePresenter struct {
	mu       sync.Mutex
	presented []float64
	fail      bool
}

func (p *fakePresenter) Present(frame *media.Frame, rotation media.Rotation, fit renderer.FitMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, frame.PTS)
	return nil
}

type fakeAudioSink struct {
	mu       sync.Mutex
	enqueued []float64
	anchors  []float64
}

func (a *fakeAudioSink) Enqueue(chunk *media.AudioSamples) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enqueued = append(a.enqueued, chunk.PTS)
	return nil
}

func (a *fakeAudioSink) Anchor(mediaTime float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anchors = append(a.anchors, mediaTime)
}

type fakeFrameQueue struct {
	mu    sync.Mutex
	items []*media.Frame
	eos   bool
}

func (q *fakeFrameQueue) TryDequeue() (decode.Output, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false, q.eos
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true, false
}

type fakeSampleQueue struct {
	mu    sync.Mutex
	items []*media.AudioSamples
	eos   bool
}

func (q *fakeSampleQueue) TryDequeue() (decode.Output, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false, q.eos
	}
	s := q.items[0]
	q.items = q.items[1:]
	return s, true, false
}

func newTestFrame(pts, duration float64) *media.Frame {
	return media.NewFrame(pts, duration, "rgba", 1, 1, make([]byte, 4))
}

func TestTickPresentsDueFrameAndDropsLateOnes(t *testing.T) {
	clock := &fakeClock{mu: 1.0}
	presenter := &fakePresenter{}
	queue := &fakeFrameQueue{items: []*media.Frame{
		newTestFrame(0, 0.1),   // late: 0+0.1 <= 1-tolerance
		newTestFrame(0.5, 0.1), // late
		newTestFrame(0.95, 0.5), // due: pts <= nowMedia, not late
	}}
	s := New(clock, presenter, nil, zerolog.Nop(), Callbacks{})
	s.SetVideoSource(queue)

	s.Tick(true)

	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	if len(presenter.presented) != 1 || presenter.presented[0] != 0.95 {
		t.Fatalf("expected only pts=0.95 presented, got %v", presenter.presented)
	}
}

func TestTickSetsWaitingWhenQueueEmpty(t *testing.T) {
	clock := &fakeClock{mu: 1.0}
	presenter := &fakePresenter{}
	queue := &fakeFrameQueue{}
	var waitingCalls []bool
	s := New(clock, presenter, nil, zerolog.Nop(), Callbacks{
		OnWaiting: func(w bool) { waitingCalls = append(waitingCalls, w) },
	})
	s.SetVideoSource(queue)

	s.Tick(true)

	if !s.Waiting() {
		t.Fatal("expected waiting=true with empty queue")
	}
	if len(waitingCalls) != 1 || waitingCalls[0] != true {
		t.Fatalf("expected single waiting=true callback, got %v", waitingCalls)
	}
}

func TestTickStashesEarlyFrameForNextTick(t *testing.T) {
	clock := &fakeClock{mu: 0.0}
	presenter := &fakePresenter{}
	queue := &fakeFrameQueue{items: []*media.Frame{newTestFrame(1.0, 0.1)}}
	s := New(clock, presenter, nil, zerolog.Nop(), Callbacks{})
	s.SetVideoSource(queue)

	s.Tick(true) // frame not due yet: stashed as lookahead
	presenter.mu.Lock()
	if len(presenter.presented) != 0 {
		presenter.mu.Unlock()
		t.Fatal("expected no presentation before frame is due")
	}
	presenter.mu.Unlock()

	clock.mu = 1.0
	s.Tick(true) // now due: presented from lookahead, not a second dequeue
	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	if len(presenter.presented) != 1 || presenter.presented[0] != 1.0 {
		t.Fatalf("expected lookahead frame presented, got %v", presenter.presented)
	}
}

func TestDrainAudioEnqueuesAvailableChunks(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeAudioSink{}
	queue := &fakeSampleQueue{items: []*media.AudioSamples{
		media.NewAudioSamples(0, 0.02, 2, 48000, true, nil),
		media.NewAudioSamples(0.02, 0.02, 2, 48000, true, nil),
	}}
	s := New(clock, &fakePresenter{}, sink, zerolog.Nop(), Callbacks{})
	s.SetAudioSource(queue)

	s.Tick(true)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.enqueued) != 2 {
		t.Fatalf("expected 2 chunks enqueued, got %d", len(sink.enqueued))
	}
}

func TestVideoEndedCallbackFiresOnceOnEOS(t *testing.T) {
	clock := &fakeClock{}
	queue := &fakeFrameQueue{eos: true}
	var endedCount int
	s := New(clock, &fakePresenter{}, nil, zerolog.Nop(), Callbacks{
		OnVideoEnded: func() { endedCount++ },
	})
	s.SetVideoSource(queue)

	s.Tick(true)
	s.Tick(true)

	if endedCount != 1 {
		t.Fatalf("expected OnVideoEnded exactly once, got %d", endedCount)
	}
}

func TestSeekCoalescesRapidRepeats(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeAudioSink{}
	s := New(clock, &fakePresenter{}, sink, zerolog.Nop(), Callbacks{})

	flushStarted := make(chan struct{})
	unblock := make(chan struct{})
	flush := func(ctx context.Context, t float64) error {
		close(flushStarted)
		<-unblock
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Seek(context.Background(), 5.0, false, flush) }()
	<-flushStarted

	// A second seek supersedes the first before its flush completes.
	fastFlush := func(ctx context.Context, t float64) error { return nil }
	if err := s.Seek(context.Background(), 10.0, false, fastFlush); err != nil {
		t.Fatalf("second seek: %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first seek: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.anchors) != 1 || sink.anchors[0] != 10.0 {
		t.Fatalf("expected only the superseding seek to anchor, got %v", sink.anchors)
	}
}

func TestSeekAnchorsAudioAndNotifiesSeeked(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeAudioSink{}
	s := New(clock, &fakePresenter{}, sink, zerolog.Nop(), Callbacks{})

	var timeUpdates []float64
	s.callbacks.OnTimeUpdate = func(t float64) { timeUpdates = append(timeUpdates, t) }

	flush := func(ctx context.Context, t float64) error { return nil }
	if err := s.Seek(context.Background(), 3.5, false, flush); err != nil {
		t.Fatalf("seek: %v", err)
	}

	sink.mu.Lock()
	if len(sink.anchors) != 1 || sink.anchors[0] != 3.5 {
		sink.mu.Unlock()
		t.Fatalf("expected anchor to 3.5, got %v", sink.anchors)
	}
	sink.mu.Unlock()

	if len(timeUpdates) != 1 {
		t.Fatalf("expected one immediate timeupdate after seeked, got %v", timeUpdates)
	}
}

func TestKeyframeSeekPresentsFirstFrameAtItsOwnPTSWithoutReanchoringToTarget(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeAudioSink{}
	presenter := &fakePresenter{}
	s := New(clock, presenter, sink, zerolog.Nop(), Callbacks{})

	flush := func(ctx context.Context, t float64) error { return nil }
	if err := s.Seek(context.Background(), 10.0, true, flush); err != nil {
		t.Fatalf("seek: %v", err)
	}

	sink.mu.Lock()
	if len(sink.anchors) != 0 {
		sink.mu.Unlock()
		t.Fatalf("expected no anchor to the requested target for a keyframe seek, got %v", sink.anchors)
	}
	sink.mu.Unlock()

	// The keyframe actually decoded lands short of the requested
	// target; a keyframe seek presents it immediately instead of
	// dropping it while waiting for nowMedia to reach 10.0.
	queue := &fakeFrameQueue{items: []*media.Frame{newTestFrame(8.7, 0.1)}}
	s.SetVideoSource(queue)
	s.Tick(true)

	presenter.mu.Lock()
	if len(presenter.presented) != 1 || presenter.presented[0] != 8.7 {
		presenter.mu.Unlock()
		t.Fatalf("expected the keyframe's own pts 8.7 presented, got %v", presenter.presented)
	}
	presenter.mu.Unlock()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.anchors) != 1 || sink.anchors[0] != 8.7 {
		t.Fatalf("expected re-anchor to the keyframe's own pts 8.7, got %v", sink.anchors)
	}
}
