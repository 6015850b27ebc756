/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package position

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("opening in-memory sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return New(db, zerolog.Nop())
}

func TestSavePositionInsertsThenUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SavePosition(ctx, "item-1", 12.5); err != nil {
		t.Fatalf("SavePosition insert: %v", err)
	}
	pos, err := s.LoadPosition(ctx, "item-1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if pos == nil || *pos != 12.5 {
		t.Fatalf("expected position 12.5, got %v", pos)
	}

	if err := s.SavePosition(ctx, "item-1", 48.25); err != nil {
		t.Fatalf("SavePosition update: %v", err)
	}
	pos, err = s.LoadPosition(ctx, "item-1")
	if err != nil {
		t.Fatalf("LoadPosition after update: %v", err)
	}
	if pos == nil || *pos != 48.25 {
		t.Fatalf("expected updated position 48.25, got %v", pos)
	}
}

func TestLoadPositionUnknownItemReturnsNil(t *testing.T) {
	s := newTestStore(t)
	pos, err := s.LoadPosition(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position for unknown item, got %v", *pos)
	}
}

func TestLoadAllReturnsEveryRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := map[string]float64{"item-1": 1.0, "item-2": 2.5, "item-3": 99.9}
	for id, pos := range items {
		if err := s.SavePosition(ctx, id, pos); err != nil {
			t.Fatalf("SavePosition(%q): %v", id, err)
		}
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != len(items) {
		t.Fatalf("expected %d records, got %d", len(items), len(all))
	}
	for id, want := range items {
		got, ok := all[id]
		if !ok {
			t.Fatalf("expected %q in LoadAll result", id)
		}
		if got != want {
			t.Fatalf("expected %q = %v, got %v", id, want, got)
		}
	}
}
