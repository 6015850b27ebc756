/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package testclock

import (
	"testing"
	"time"

	"github.com/mediafoxhq/mediafox/internal/media"
)

func TestAdvanceMovesTimeForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(5 * time.Second)
	want := start.Add(5 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestSetPinsAbsoluteTime(t *testing.T) {
	c := New(time.Now())
	want := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	c.Set(want)
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Set = %v, want %v", got, want)
	}
}

func TestInstallOverridesMediaNowAndRestores(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)

	restore := Install(c)
	if got := media.Now(); !got.Equal(start) {
		t.Fatalf("media.Now() after Install = %v, want %v", got, start)
	}

	c.Advance(10 * time.Second)
	if got := media.Now(); !got.Equal(start.Add(10 * time.Second)) {
		t.Fatalf("media.Now() after Advance = %v, want %v", got, start.Add(10*time.Second))
	}

	restore()
	if media.Now().Equal(start) {
		t.Fatal("expected media.Now to be restored away from the fake clock's fixed time")
	}
}

func TestNestedInstallRestoresPreviousInReverseOrder(t *testing.T) {
	outer := New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	restoreOuter := Install(outer)
	defer restoreOuter()

	inner := New(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	restoreInner := Install(inner)

	if got := media.Now(); !got.Equal(inner.Now()) {
		t.Fatalf("expected inner clock installed, got %v", got)
	}

	restoreInner()
	if got := media.Now(); !got.Equal(outer.Now()) {
		t.Fatalf("expected outer clock restored, got %v", got)
	}
}
