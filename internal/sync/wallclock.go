/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sync

import (
	"sync"
	"time"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// WallClock is the MasterClock fallback used when no audio track is
// selected: "a monotonic wall-clock source scaled by playbackRate"
//. media.Now is used instead of calling time.Now
// directly so deterministic tests can substitute internal/testclock.
type WallClock struct {
	mu          sync.Mutex
	anchorWall  time.Time
	anchorMedia float64
	rate        float64
	paused      bool
}

// NewWallClock constructs a WallClock at rate=1, anchored to media
// time 0.
func NewWallClock() *WallClock {
	return &WallClock{rate: 1, anchorWall: media.Now()}
}

// Anchor re-establishes the wall-time ↔ media-time mapping.
func (c *WallClock) Anchor(mediaTime float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorWall = media.Now()
	c.anchorMedia = mediaTime
	c.paused = false
}

// SetRate updates the scaling factor applied to elapsed wall time.
func (c *WallClock) SetRate(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r <= 0 {
		return
	}
	// Re-anchor at the current position so the rate change takes
	// effect from now, not retroactively.
	now := c.nowLocked()
	c.anchorWall = media.Now()
	c.anchorMedia = now
	c.rate = r
}

// Pause freezes the mapping at the current position.
func (c *WallClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorMedia = c.nowLocked()
	c.paused = true
}

// Resume re-anchors to the current wall time.
func (c *WallClock) Resume() {
	c.mu.Lock()
	mediaTime := c.anchorMedia
	c.mu.Unlock()
	c.Anchor(mediaTime)
}

// Now implements MasterClock.
func (c *WallClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *WallClock) nowLocked() float64 {
	if c.paused {
		return c.anchorMedia
	}
	elapsed := media.Now().Sub(c.anchorWall)
	return c.anchorMedia + elapsed.Seconds()*c.rate
}
