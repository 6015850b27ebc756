/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package testclock gives deterministic tests control over the wall
// time internal/media.Now reports, so components built on
// sync.WallClock (and anything else that reads media.Now) can be
// advanced a step at a time instead of racing real time.Sleep calls.
package testclock

import (
	"sync"
	"time"

	"github.com/mediafoxhq/mediafox/internal/media"
)

// Clock is a fake wall clock installed in place of time.Now via
// internal/media.Now for the lifetime of a test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New constructs a Clock starting at start. Call Install to make
// internal/media.Now read from it.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the clock's current time. Matches the signature
// internal/media.Now expects so a Clock can be installed directly.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. It does not fire timers or
// tickers — components under test that poll media.Now (WallClock,
// the Sync Scheduler's tick loop driven externally in tests) simply
// observe the new time on their next read.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to an absolute time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Install swaps internal/media.Now to read from c and returns a
// restore function that puts the previous source back. Intended for
// `defer testclock.Install(c)()`-style setup; callers that need
// nested install/restore (table-driven subtests) get correct ordering
// because each call captures whatever was installed before it.
func Install(c *Clock) (restore func()) {
	prev := media.Now
	media.Now = c.Now
	return func() { media.Now = prev }
}
