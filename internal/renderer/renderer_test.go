package renderer

import (
	"errors"
	"image"
	"image/draw"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/plugin"
)

type fakeSurface struct {
	mu     sync.Mutex
	canvas draw.Image
	gpu    bool
	gl     bool
}

func newFakeSurface(w, h int) *fakeSurface {
	return &fakeSurface{canvas: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (s *fakeSurface) SupportsGPU() bool { return s.gpu }
func (s *fakeSurface) SupportsGL() bool  { return s.gl }
func (s *fakeSurface) Canvas() draw.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

type failingBackend struct {
	typ       string
	failCount int
	disposed  bool
}

func (b *failingBackend) Type() string              { return b.typ }
func (b *failingBackend) Supports(surface any) bool  { return true }
func (b *failingBackend) Init(surface any) error     { return nil }
func (b *failingBackend) Present(frame *media.Frame, rotation media.Rotation, fit FitMode) error {
	b.failCount++
	return errors.New("present failed")
}
func (b *failingBackend) Resize(w, h int) error { return nil }
func (b *failingBackend) Dispose()              { b.disposed = true }

func newTestFrame() *media.Frame {
	return media.NewFrame(0, 0, "rgba", 4, 4, make([]byte, 4*4*4))
}

func TestInitPicksFirstSupportingBackend(t *testing.T) {
	surface := newFakeSurface(100, 100)
	surface.gl = true
	m := New(zerolog.Nop(), nil, NewGPUBackend(), NewGLBackend(), NewTwoDBackend())
	if err := m.Init(surface); err != nil {
		t.Fatalf("init: %v", err)
	}
	if m.Type() != "gl" {
		t.Fatalf("expected gl backend selected (gpu unsupported), got %q", m.Type())
	}
}

func TestInitFallsBackToTwoD(t *testing.T) {
	surface := newFakeSurface(100, 100)
	m := New(zerolog.Nop(), nil, NewGPUBackend(), NewGLBackend(), NewTwoDBackend())
	if err := m.Init(surface); err != nil {
		t.Fatalf("init: %v", err)
	}
	if m.Type() != "2d" {
		t.Fatalf("expected 2d fallback, got %q", m.Type())
	}
}

func TestPresentDowngradesAfterTwoConsecutiveFailures(t *testing.T) {
	surface := newFakeSurface(10, 10)
	var fallenTo string
	failing := &failingBackend{typ: "gpu"}
	m := New(zerolog.Nop(), func(newType string) { fallenTo = newType }, failing, NewTwoDBackend())
	if err := m.Init(surface); err != nil {
		t.Fatalf("init: %v", err)
	}

	frame := newTestFrame()
	_ = m.Present(frame, media.Rotate0, FitContain)
	err := m.Present(frame, media.Rotate0, FitContain)
	if err != nil {
		t.Fatalf("expected downgrade to succeed silently, got %v", err)
	}
	if m.Type() != "2d" {
		t.Fatalf("expected downgrade to 2d, got %q", m.Type())
	}
	if fallenTo != "2d" {
		t.Fatalf("expected onFallback callback with new type, got %q", fallenTo)
	}
	if !failing.disposed {
		t.Fatal("expected failed backend to be disposed")
	}
}

func TestDisplaySizeSwapsOnRotation(t *testing.T) {
	w, h := DisplaySize(1920, 1080, media.Rotate90)
	if w != 1080 || h != 1920 {
		t.Fatalf("expected swapped dims, got %dx%d", w, h)
	}
	w, h = DisplaySize(1920, 1080, media.Rotate0)
	if w != 1920 || h != 1080 {
		t.Fatalf("expected unswapped dims, got %dx%d", w, h)
	}
}

func TestPresentRunsRenderHookChainAndOverlays(t *testing.T) {
	surface := newFakeSurface(10, 10)
	m := New(zerolog.Nop(), nil, NewTwoDBackend())
	if err := m.Init(surface); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Resize(10, 10); err != nil {
		t.Fatalf("resize: %v", err)
	}

	plugins := plugin.New(eventbus.New(zerolog.Nop()), zerolog.Nop())
	var order []string
	var overlayW, overlayH int
	if err := plugins.Use(plugin.Plugin{Name: "hooks", Render: plugin.RenderHooks{
		BeforeRender:   func(frame *media.Frame, t float64) { order = append(order, "before") },
		TransformFrame: func(frame *media.Frame) *media.Frame { order = append(order, "transform"); return frame },
		AfterRender:    func(surface any) { order = append(order, "after") },
		Overlay: &plugin.Overlay{Render: func(t float64, width, height int) {
			order = append(order, "overlay")
			overlayW, overlayH = width, height
		}},
	}}); err != nil {
		t.Fatalf("use: %v", err)
	}
	m.SetPlugins(plugins)

	if err := m.Present(newTestFrame(), media.Rotate0, FitContain); err != nil {
		t.Fatalf("present: %v", err)
	}

	want := []string{"before", "transform", "after", "overlay"}
	if len(order) != len(want) {
		t.Fatalf("expected hook order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected hook order %v, got %v", want, order)
		}
	}
	if overlayW != 10 || overlayH != 10 {
		t.Fatalf("expected overlay to see resized dimensions 10x10, got %dx%d", overlayW, overlayH)
	}
}

func TestFitContainLetterboxes(t *testing.T) {
	src := image.Rect(0, 0, 200, 100)
	dst := image.Rect(0, 0, 100, 100)
	r := fitRect(src, dst, media.Rotate0, FitContain)
	if r.Dx() != 100 || r.Dy() != 50 {
		t.Fatalf("expected 100x50 letterboxed rect, got %dx%d", r.Dx(), r.Dy())
	}
}
