/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package compositor

import (
	"context"
	"sync"
	"time"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
)

// tickInterval is the preview loop's internal host-timing cadence.
// The exact rate is left to the host; 30Hz matches a typical
// off-main-thread compositing budget without the per-frame redraw
// cost of 60Hz for a devtools/preview surface.
const tickInterval = time.Second / 30

// Preview events.
const (
	TopicPlay       eventbus.Topic = "play"
	TopicPause      eventbus.Topic = "pause"
	TopicEnded      eventbus.Topic = "ended"
	TopicTimeUpdate eventbus.Topic = "timeupdate"
	TopicSeeking    eventbus.Topic = "seeking"
	TopicSeeked     eventbus.Topic = "seeked"
)

// PreviewOptions configures Preview.
type PreviewOptions struct {
	Duration       float64
	Loop           bool
	GetComposition func(t float64) CompositionFrame
}

type PreviewController struct {
	manager *Manager
	bus     *eventbus.Bus
	opts    PreviewOptions

	mu       sync.Mutex
	position float64
	playing  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Preview attaches a composition callback and returns a controller
// whose Play/Pause/Seek drive the host-timing loop.
// Any previously running preview is stopped first.
func (m *Manager) Preview(bus *eventbus.Bus, opts PreviewOptions) *PreviewController {
	m.StopPreview()
	p := &PreviewController{manager: m, bus: bus, opts: opts}
	m.mu.Lock()
	m.preview = p
	m.mu.Unlock()
	return p
}

// StopPreview halts the running preview loop, if any.
func (m *Manager) StopPreview() {
	m.mu.Lock()
	p := m.preview
	m.preview = nil
	m.mu.Unlock()
	if p != nil {
		p.Pause()
	}
}

// Play starts (or resumes) the timing loop from the current position.
func (p *PreviewController) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.emit(TopicPlay, nil)
	p.wg.Add(1)
	go p.run(ctx)
}

// Pause stops the timing loop, preserving the current position.
func (p *PreviewController) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.emit(TopicPause, nil)
}

// Seek jumps the preview position, emitting seeking then seeked.
func (p *PreviewController) Seek(t float64) {
	p.mu.Lock()
	p.position = clampPosition(t, p.opts.Duration, p.opts.Loop)
	pos := p.position
	p.mu.Unlock()

	p.emit(TopicSeeking, pos)
	p.emit(TopicSeeked, pos)
}

func (p *PreviewController) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			if !p.advance(ctx, elapsed) {
				return
			}
		}
	}
}

// advance moves the position forward by elapsed seconds, renders the
// composition at the new t, and reports whether the loop should keep
// running (false once a non-looping preview reaches its duration).
func (p *PreviewController) advance(ctx context.Context, elapsed float64) bool {
	p.mu.Lock()
	duration := p.opts.Duration
	loop := p.opts.Loop
	getComposition := p.opts.GetComposition
	p.position += elapsed
	if duration > 0 && p.position >= duration {
		if loop {
			p.position = mod(p.position, duration)
		} else {
			p.position = duration
		}
	}
	t := p.position
	ended := duration > 0 && !loop && t >= duration
	p.mu.Unlock()

	if getComposition != nil {
		frame := getComposition(t)
		if _, err := p.manager.Render(ctx, frame, t); err != nil {
			p.manager.logger.Warn().Err(err).Float64("t", t).Msg("preview render failed")
		}
	}

	p.emit(TopicTimeUpdate, t)
	if ended {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.emit(TopicEnded, nil)
		return false
	}
	return true
}

func (p *PreviewController) emit(topic eventbus.Topic, payload any) {
	if p.bus != nil {
		p.bus.Emit(topic, payload)
	}
}

func clampPosition(t, duration float64, loop bool) float64 {
	if t < 0 {
		if loop && duration > 0 {
			return mod(t, duration)
		}
		return 0
	}
	if duration > 0 && t > duration {
		if loop {
			return mod(t, duration)
		}
		return duration
	}
	return t
}

func mod(t, duration float64) float64 {
	m := t - duration*float64(int(t/duration))
	if m < 0 {
		m += duration
	}
	return m
}
