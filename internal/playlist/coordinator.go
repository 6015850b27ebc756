/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist implements the Playlist Coordinator: the mode
// state machine, next/prev/jump navigation with position preservation,
// add/remove index bookkeeping and single-slot prefetch over a
// user-ordered playlist of items, with all state guarded by one mutex.
package playlist

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/store"
)

// prefetchThreshold is the configurable progress threshold (e.g. 80%)
// at which the next item starts prefetching.
const prefetchThreshold = 0.8

// Events emitted on the bus.
const (
	TopicPlaylistItemChange eventbus.Topic = "playlistitemchange"
	TopicPlaylistEnd        eventbus.Topic = "playlistend"
	TopicPlaylistItemError  eventbus.Topic = "playlistitemerror"
)

type PlaylistItemChangePayload struct {
	Index int
	Item  media.PlaylistItem
}

type PlaylistItemErrorPayload struct {
	Index int
	Err   error
}

// LoadFunc loads item starting at startAt seconds, replacing whatever
// the engine's pipeline is currently playing.
type LoadFunc func(ctx context.Context, item media.PlaylistItem, startAt float64) error

// PrefetchFunc does a best-effort preload (demux + first keyframe) of
// item's metadata without starting playback.
type PrefetchFunc func(ctx context.Context, item media.PlaylistItem) error

// PositionStore persists savedPosition across process restarts.
type PositionStore interface {
	SavePosition(ctx context.Context, itemID string, position float64) error
}

// Coordinator owns the playlist's canonical order/index/mode and
// mirrors it onto the Store on every change.
type Coordinator struct {
	store    *store.Store
	bus      *eventbus.Bus
	logger   zerolog.Logger
	load     LoadFunc
	prefetch PrefetchFunc
	position PositionStore

	mu           sync.Mutex
	items        []media.PlaylistItem
	currentIndex *int
	mode         store.PlaylistMode
	currentTime  float64
	duration     float64

	prefetchIndex  *int
	prefetchCancel context.CancelFunc
}

// New constructs an empty Coordinator. position may be nil to disable
// cross-restart persistence.
func New(st *store.Store, bus *eventbus.Bus, logger zerolog.Logger, load LoadFunc, prefetch PrefetchFunc, position PositionStore) *Coordinator {
	return &Coordinator{
		store:    st,
		bus:      bus,
		logger:   logger.With().Str("component", "playlist").Logger(),
		load:     load,
		prefetch: prefetch,
		position: position,
	}
}

// SetMode changes the playback mode and discards any in-flight
// prefetch, since the prefetch target depends on the mode.
func (c *Coordinator) SetMode(mode store.PlaylistMode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.cancelPrefetch()
	c.pushToStore()
}

// LoadPlaylist replaces the playlist and loads item[startIndex]
// starting at its savedPosition, or 0 if unset.
func (c *Coordinator) LoadPlaylist(ctx context.Context, items []media.PlaylistItem, startIndex int) error {
	c.cancelPrefetch()

	c.mu.Lock()
	c.items = media.ClonePlaylist(items)
	if len(c.items) == 0 {
		c.currentIndex = nil
		c.mu.Unlock()
		c.pushToStore()
		return nil
	}
	if startIndex < 0 || startIndex >= len(c.items) {
		c.mu.Unlock()
		return fmt.Errorf("playlist: startIndex %d out of bounds for %d items", startIndex, len(c.items))
	}
	idx := startIndex
	c.currentIndex = &idx
	item := c.items[idx]
	c.mu.Unlock()

	c.pushToStore()
	return c.loadItem(ctx, idx, item)
}

// Next advances per the mode's rule, saving the outgoing item's
// position first.
func (c *Coordinator) Next(ctx context.Context) error {
	return c.advance(ctx, func(mode store.PlaylistMode, i, n int) (int, bool) { return nextIndex(mode, i, n) })
}

// Prev is the symmetric counterpart to Next.
func (c *Coordinator) Prev(ctx context.Context) error {
	return c.advance(ctx, func(mode store.PlaylistMode, i, n int) (int, bool) { return prevIndex(mode, i, n) })
}

// JumpTo switches directly to index, with the same save/switch
// semantics as Next/Prev.
func (c *Coordinator) JumpTo(ctx context.Context, index int) error {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	if index < 0 || index >= n {
		return fmt.Errorf("playlist: jumpTo index %d out of bounds for %d items", index, n)
	}
	return c.switchTo(ctx, index)
}

func (c *Coordinator) advance(ctx context.Context, pick func(mode store.PlaylistMode, i, n int) (int, bool)) error {
	c.mu.Lock()
	if c.currentIndex == nil || len(c.items) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("playlist: no current item to advance from")
	}
	n := len(c.items)
	next, ok := pick(c.mode, *c.currentIndex, n)
	c.mu.Unlock()
	if !ok {
		c.emit(TopicPlaylistEnd, nil)
		return nil
	}
	return c.switchTo(ctx, next)
}

func (c *Coordinator) switchTo(ctx context.Context, newIndex int) error {
	c.cancelPrefetch()

	c.mu.Lock()
	if c.currentIndex != nil {
		outgoing := *c.currentIndex
		pos := c.currentTime
		c.items[outgoing].SavedPosition = &pos
	}
	idx := newIndex
	c.currentIndex = &idx
	item := c.items[idx]
	c.currentTime = 0
	c.mu.Unlock()

	c.pushToStore()
	return c.loadItem(ctx, idx, item)
}

func (c *Coordinator) loadItem(ctx context.Context, index int, item media.PlaylistItem) error {
	startAt := 0.0
	if item.SavedPosition != nil {
		startAt = *item.SavedPosition
	}
	if err := c.load(ctx, item, startAt); err != nil {
		c.emit(TopicPlaylistItemError, PlaylistItemErrorPayload{Index: index, Err: err})
		c.mu.Lock()
		c.items[index].SavedPosition = nil
		mode := c.mode
		c.mu.Unlock()
		c.pushToStore()
		if mode == store.PlaylistModeSequential {
			return c.advance(ctx, nextIndex)
		}
		return err
	}
	c.emit(TopicPlaylistItemChange, PlaylistItemChangePayload{Index: index, Item: item})
	return nil
}

// AddToPlaylist inserts item at insertIndex (appended if nil),
// adjusting currentIndex when the insertion point is at or before it.
func (c *Coordinator) AddToPlaylist(item media.PlaylistItem, insertIndex *int) {
	c.mu.Lock()
	at := len(c.items)
	if insertIndex != nil {
		at = clampIndex(*insertIndex, len(c.items))
	}
	c.items = append(c.items, media.PlaylistItem{})
	copy(c.items[at+1:], c.items[at:])
	c.items[at] = item

	if c.currentIndex != nil && at <= *c.currentIndex {
		shifted := *c.currentIndex + 1
		c.currentIndex = &shifted
	}
	c.mu.Unlock()

	c.pushToStore()
}

// RemoveFromPlaylist removes the item at index, switching away if it
// was current (to index 0, or nil/Idle if the list becomes empty).
func (c *Coordinator) RemoveFromPlaylist(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return fmt.Errorf("playlist: removeFromPlaylist index %d out of bounds", index)
	}
	wasCurrent := c.currentIndex != nil && *c.currentIndex == index
	c.items = append(c.items[:index], c.items[index+1:]...)

	if c.currentIndex != nil {
		switch {
		case len(c.items) == 0:
			c.currentIndex = nil
		case *c.currentIndex > index:
			shifted := *c.currentIndex - 1
			c.currentIndex = &shifted
		}
	}
	empty := len(c.items) == 0
	c.mu.Unlock()
	c.cancelPrefetch()
	c.pushToStore()

	if !wasCurrent || empty {
		if wasCurrent {
			c.store.SetState(store.NewPartial().SetState(store.Idle))
		}
		return nil
	}
	c.mu.Lock()
	idx := 0
	c.currentIndex = &idx
	item := c.items[0]
	c.mu.Unlock()
	c.pushToStore()
	return c.loadItem(ctx, 0, item)
}

// ClearPlaylist empties the list and transitions the Store to Idle.
func (c *Coordinator) ClearPlaylist() {
	c.cancelPrefetch()
	c.mu.Lock()
	c.items = nil
	c.currentIndex = nil
	c.mu.Unlock()
	c.store.SetState(store.NewPartial().
		SetPlaylist(nil).
		SetCurrentPlaylistIndex(nil).
		SetState(store.Idle))
}

// OnEnded implements the end-of-item dispatch table.
func (c *Coordinator) OnEnded(ctx context.Context) error {
	c.mu.Lock()
	mode := c.mode
	idx := c.currentIndex
	c.mu.Unlock()

	switch mode {
	case store.PlaylistModeSequential:
		return c.advance(ctx, nextIndex)
	case store.PlaylistModeRepeat:
		return c.advance(ctx, nextIndex)
	case store.PlaylistModeRepeatOne:
		if idx == nil {
			return nil
		}
		return c.load(ctx, c.currentItemLocked(*idx), 0)
	default: // manual or none
		c.emit(TopicPlaylistEnd, nil)
		return nil
	}
}

func (c *Coordinator) currentItemLocked(idx int) media.PlaylistItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[idx]
}

// OnProgress updates the tracked currentTime/duration and, in
// sequential/repeat modes past prefetchThreshold, kicks off a
// best-effort single-slot prefetch of the next item.
func (c *Coordinator) OnProgress(currentTime, duration float64) {
	c.mu.Lock()
	c.currentTime = currentTime
	c.duration = duration
	mode := c.mode
	idx := c.currentIndex
	n := len(c.items)
	alreadyPrefetching := c.prefetchIndex != nil
	c.mu.Unlock()

	if c.prefetch == nil || idx == nil || alreadyPrefetching || n == 0 || duration <= 0 {
		return
	}
	if mode != store.PlaylistModeSequential && mode != store.PlaylistModeRepeat {
		return
	}
	if currentTime/duration < prefetchThreshold {
		return
	}

	next, ok := nextIndex(mode, *idx, n)
	if !ok {
		return
	}

	c.mu.Lock()
	item := c.items[next]
	ctx, cancel := context.WithCancel(context.Background())
	c.prefetchIndex = &next
	c.prefetchCancel = cancel
	c.mu.Unlock()

	go func() {
		if err := c.prefetch(ctx, item); err != nil && ctx.Err() == nil {
			c.logger.Debug().Err(err).Int("index", next).Msg("prefetch failed")
		}
	}()
}

func (c *Coordinator) cancelPrefetch() {
	c.mu.Lock()
	cancel := c.prefetchCancel
	c.prefetchIndex = nil
	c.prefetchCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SavePosition records currentTime as the current item's savedPosition
// and, when a PositionStore is configured, persists it there.
func (c *Coordinator) SavePosition(ctx context.Context, currentTime float64) {
	c.mu.Lock()
	idx := c.currentIndex
	if idx != nil {
		pos := currentTime
		c.items[*idx].SavedPosition = &pos
	}
	posStore := c.position
	var itemID string
	if idx != nil {
		itemID = c.items[*idx].ID
	}
	c.mu.Unlock()

	if idx == nil || posStore == nil {
		return
	}
	if err := posStore.SavePosition(ctx, itemID, currentTime); err != nil {
		c.logger.Warn().Err(err).Str("itemId", itemID).Msg("failed to persist playlist position")
	}
}

// Dispose cancels any in-flight prefetch. Position should be saved
// via SavePosition before calling Dispose.
func (c *Coordinator) Dispose() {
	c.cancelPrefetch()
}

func (c *Coordinator) pushToStore() {
	c.mu.Lock()
	items := media.ClonePlaylist(c.items)
	idx := clonePtrInt(c.currentIndex)
	mode := c.mode
	c.mu.Unlock()

	c.store.SetState(store.NewPartial().
		SetPlaylist(items).
		SetCurrentPlaylistIndex(idx).
		SetPlaylistMode(mode))
}

func (c *Coordinator) emit(topic eventbus.Topic, payload any) {
	if c.bus != nil {
		c.bus.Emit(topic, payload)
	}
}

func clonePtrInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// nextIndex computes the next playlist index for mode: manual/
// sequential advances to i+1 or stops at the end; repeat wraps with
// (i+1) mod n; repeat-one stays at i.
func nextIndex(mode store.PlaylistMode, i, n int) (int, bool) {
	switch mode {
	case store.PlaylistModeRepeat:
		return (i + 1) % n, true
	case store.PlaylistModeRepeatOne:
		return i, true
	default:
		if i+1 >= n {
			return 0, false
		}
		return i + 1, true
	}
}

// prevIndex is the symmetric counterpart used by Prev.
func prevIndex(mode store.PlaylistMode, i, n int) (int, bool) {
	switch mode {
	case store.PlaylistModeRepeat:
		return (i - 1 + n) % n, true
	case store.PlaylistModeRepeatOne:
		return i, true
	default:
		if i-1 < 0 {
			return 0, false
		}
		return i - 1, true
	}
}
