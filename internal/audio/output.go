/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio implements the Audio Output: the scheduling cursor,
// drift re-anchoring, gain/mute control and rate-preserving playback
// that also supplies the engine's master clock when an audio track is
// selected.
package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/plugin"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// driftThreshold is the ±40ms re-anchor tolerance for the scheduling cursor.
const driftThreshold = 40 * time.Millisecond

// Backend is the host audio graph: a context clock plus the ability
// to schedule a decoded chunk at a future context time. MediaFox never
// assumes a specific audio API; the host supplies this.
//
// Playback-rate handling: the default
// policy below is pitch-shift-tolerant resampling — Output scales the
// chunk's intended duration and leaves pitch uncorrected. A backend
// that can genuinely time-stretch should report SupportsTimeStretch
// true and implement ScheduleBuffer's rate handling itself; Output
// then passes the rate through instead of doing the duration scaling.
type Backend interface {
	Now() time.Duration
	ScheduleBuffer(samples *media.AudioSamples, at time.Duration, gain float64, rate float64) error
	StopScheduled()
	SupportsTimeStretch() bool
}

// Output owns the scheduling cursor and clock anchor mapping.
type Output struct {
	mu      sync.Mutex
	backend Backend
	logger  zerolog.Logger

	volume float64
	muted  bool
	rate   float64

	cursor            time.Duration
	anchorContextTime time.Duration
	anchorMediaTime   float64
	paused            bool

	fade *crossfadeState

	chain plugin.AudioNode
}

// New constructs an Output at volume=1, unmuted, rate=1.
func New(backend Backend, logger zerolog.Logger) *Output {
	return &Output{
		backend: backend,
		logger:  logger.With().Str("component", "audio").Logger(),
		volume:  1,
		rate:    1,
	}
}

// SetVolume sets the linear volume in [0,1].
func (o *Output) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clamp01(v)
}

// SetMuted sets the mute flag; effective gain is volume×(1−muted).
func (o *Output) SetMuted(m bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = m
}

// Gain returns the current effective gain.
func (o *Output) Gain() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gainLocked()
}

func (o *Output) gainLocked() float64 {
	if o.muted {
		return 0
	}
	return o.volume
}

// SetPlaybackRate sets the rate chunk durations are scaled by.
func (o *Output) SetPlaybackRate(r float64) error {
	if r <= 0 {
		return fmt.Errorf("audio: playback rate must be > 0, got %v", r)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate = r
	return nil
}

// ApplyAudioChain threads Output itself, as the source gain node, through
// every installed plugin's OnAudioNode hook, called once when the audio
// graph is built. The returned chain tail is retained for inspection;
// Output remains the node that actually schedules buffers regardless of
// how far a plugin wraps it, since MediaFox never assumes a concrete
// host graph API.
func (o *Output) ApplyAudioChain(plugins *plugin.Manager) {
	if plugins == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chain = plugins.BuildAudioChain(plugin.AudioNode(o))
}

// AudioChain returns the tail of the plugin-augmented audio chain, or
// nil if ApplyAudioChain was never called.
func (o *Output) AudioChain() plugin.AudioNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chain
}

// Anchor (re-)establishes the context-time ↔ media-time mapping,
// called on load, on resume, and whenever drift exceeds the
// threshold.
func (o *Output) Anchor(mediaTime float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.anchorContextTime = o.backend.Now()
	o.anchorMediaTime = mediaTime
	o.paused = false
}

// CurrentTime computes currentTime = masterClock − anchor + anchorMediaTime.
func (o *Output) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		return o.anchorMediaTime
	}
	elapsed := o.backend.Now() - o.anchorContextTime
	return o.anchorMediaTime + elapsed.Seconds()*o.rate
}

// Enqueue schedules a decoded audio chunk, computing its target
// context time from the master clock mapping, re-anchoring if the gap
// between the current cursor and the computed target exceeds
// driftThreshold.
func (o *Output) Enqueue(chunk *media.AudioSamples) error {
	o.mu.Lock()
	target := o.anchorContextTime + time.Duration((chunk.PTS-o.anchorMediaTime)/o.rate*float64(time.Second))
	gap := target - o.cursor
	if gap < 0 {
		gap = -gap
	}
	if o.cursor != 0 && gap > driftThreshold {
		o.anchorContextTime = o.backend.Now()
		o.anchorMediaTime = chunk.PTS
		target = o.anchorContextTime
		telemetry.AudioDriftCorrectionsTotal.Inc()
		o.logger.Debug().Dur("gap", gap).Msg("audio cursor drift exceeded threshold, re-anchored")
	}
	gain := o.gainLocked()
	rate := o.rate
	timeStretch := o.backend.SupportsTimeStretch()
	o.cursor = target + time.Duration(chunk.Duration*float64(time.Second))
	o.mu.Unlock()

	scheduledRate := 1.0
	if !timeStretch {
		scheduledRate = rate
	}
	return o.backend.ScheduleBuffer(chunk, target, gain, scheduledRate)
}

// Pause latches the current media time, freezes the cursor and stops
// outstanding scheduled buffers.
func (o *Output) Pause() {
	o.mu.Lock()
	o.anchorMediaTime = o.currentTimeLocked()
	o.paused = true
	o.mu.Unlock()
	o.backend.StopScheduled()
}

func (o *Output) currentTimeLocked() float64 {
	if o.paused {
		return o.anchorMediaTime
	}
	elapsed := o.backend.Now() - o.anchorContextTime
	return o.anchorMediaTime + elapsed.Seconds()*o.rate
}

// Now satisfies sync.MasterClock, letting the Sync Scheduler drive
// presentation off the audio clock whenever an audio track is selected.
func (o *Output) Now() float64 {
	return o.CurrentTime()
}

// Resume re-anchors the mapping to the current context time.
func (o *Output) Resume() {
	o.mu.Lock()
	mediaTime := o.anchorMediaTime
	o.mu.Unlock()
	o.Anchor(mediaTime)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
