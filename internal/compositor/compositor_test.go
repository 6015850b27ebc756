package compositor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
)

type solidVideoProvider struct {
	w, h int
	r, g, b, a byte
}

func (p *solidVideoProvider) DecodeAt(ctx context.Context, t float64) (*media.Frame, error) {
	pixels := make([]byte, p.w*p.h*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = p.r, p.g, p.b, p.a
	}
	return media.NewFrame(t, 0, "rgba", p.w, p.h, pixels), nil
}
func (p *solidVideoProvider) Close() {}

func TestRenderDrawsLayersInZIndexOrder(t *testing.T) {
	m := New(zerolog.Nop())
	m.Resize(4, 4)

	red := m.LoadSource(&solidVideoProvider{w: 4, h: 4, r: 255, a: 255})
	blue := m.LoadSource(&solidVideoProvider{w: 4, h: 4, b: 255, a: 255})

	frame := CompositionFrame{Layers: []Layer{
		{SourceID: blue.ID(), ZIndex: 0, Transform: DefaultTransform()},
		{SourceID: red.ID(), ZIndex: 1, Transform: DefaultTransform()},
	}}

	surface, err := m.Render(context.Background(), frame, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	r, g, b, a := surface.At(1, 1).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 || a>>8 != 255 {
		t.Fatalf("expected the higher zIndex (red) layer on top at (1,1), got rgba(%d,%d,%d,%d)", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestRenderAppliesOpacity(t *testing.T) {
	m := New(zerolog.Nop())
	m.Resize(2, 2)

	src := m.LoadSource(&solidVideoProvider{w: 2, h: 2, r: 255, a: 255})
	tr := DefaultTransform()
	tr.Opacity = 0.5

	frame := CompositionFrame{Layers: []Layer{{SourceID: src.ID(), ZIndex: 0, Transform: tr}}}
	surface, err := m.Render(context.Background(), frame, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	_, _, _, a := surface.At(0, 0).RGBA()
	if a>>8 >= 255 {
		t.Fatalf("expected alpha scaled down by opacity, got %d", a>>8)
	}
}

func TestRenderUnknownSourceErrors(t *testing.T) {
	m := New(zerolog.Nop())
	frame := CompositionFrame{Layers: []Layer{{SourceID: "nope", ZIndex: 0, Transform: DefaultTransform()}}}
	if _, err := m.Render(context.Background(), frame, 0); err == nil {
		t.Fatal("expected render to error on an unknown source id")
	}
}

func TestResizeRejectsNonPositiveDimensions(t *testing.T) {
	m := New(zerolog.Nop())
	if err := m.Resize(0, 100); err == nil {
		t.Fatal("expected resize to reject a zero dimension")
	}
}

func TestExportFrameEncodesPNG(t *testing.T) {
	m := New(zerolog.Nop())
	m.Resize(2, 2)
	src := m.LoadSource(&solidVideoProvider{w: 2, h: 2, r: 10, g: 20, b: 30, a: 255})

	getComposition := func(t float64) CompositionFrame {
		return CompositionFrame{Layers: []Layer{{SourceID: src.ID(), ZIndex: 0, Transform: DefaultTransform()}}}
	}
	out, err := m.ExportFrame(context.Background(), 0, getComposition, EncodeOptions{Format: FormatPNG})
	if err != nil {
		t.Fatalf("exportFrame: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty encoded png bytes")
	}
	if !bytesHavePNGSignature(out) {
		t.Fatal("expected a valid PNG signature")
	}
}

func bytesHavePNGSignature(b []byte) bool {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if len(b) < len(sig) {
		return false
	}
	for i, c := range sig {
		if b[i] != c {
			return false
		}
	}
	return true
}

func TestDisposeClosesAllSources(t *testing.T) {
	m := New(zerolog.Nop())
	var closed int
	var mu sync.Mutex
	m.LoadAudio(closeTrackingAudio(&closed, &mu))
	m.Dispose()

	mu.Lock()
	defer mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected 1 source closed, got %d", closed)
	}
}

type closeTracker struct {
	closed *int
	mu     *sync.Mutex
}

func (c closeTracker) Close() {
	c.mu.Lock()
	*c.closed++
	c.mu.Unlock()
}

func closeTrackingAudio(closed *int, mu *sync.Mutex) AudioProvider {
	return closeTracker{closed: closed, mu: mu}
}

func TestPreviewPlayEmitsTimeUpdatesAndEndsWithoutLoop(t *testing.T) {
	m := New(zerolog.Nop())
	m.Resize(2, 2)
	bus := eventbus.New(zerolog.Nop())

	var mu sync.Mutex
	var ended bool
	var sawTimeUpdate bool
	bus.On(TopicEnded, func(any) { mu.Lock(); ended = true; mu.Unlock() })
	bus.On(TopicTimeUpdate, func(any) { mu.Lock(); sawTimeUpdate = true; mu.Unlock() })

	preview := m.Preview(bus, PreviewOptions{
		Duration: 0.05,
		Loop:     false,
		GetComposition: func(t float64) CompositionFrame {
			return CompositionFrame{}
		},
	})
	preview.Play()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := ended
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !ended {
		t.Fatal("expected preview to emit ended after its short duration")
	}
	if !sawTimeUpdate {
		t.Fatal("expected at least one timeupdate during playback")
	}
}

func TestPreviewSeekEmitsSeekingAndSeeked(t *testing.T) {
	m := New(zerolog.Nop())
	bus := eventbus.New(zerolog.Nop())

	var mu sync.Mutex
	var events []string
	bus.On(TopicSeeking, func(any) { mu.Lock(); events = append(events, "seeking"); mu.Unlock() })
	bus.On(TopicSeeked, func(any) { mu.Lock(); events = append(events, "seeked"); mu.Unlock() })

	preview := m.Preview(bus, PreviewOptions{Duration: 10, Loop: true})
	preview.Seek(3)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "seeking" || events[1] != "seeked" {
		t.Fatalf("expected [seeking seeked], got %v", events)
	}
}
