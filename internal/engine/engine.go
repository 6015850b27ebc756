/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine implements the Engine Facade: the composition root
// that wires the Store, Event Bus, Plugin Manager, Renderer, Audio
// Output, Decode Pipeline, Sync Scheduler, Fallback Transcoder and
// Playlist Coordinator behind a single imperative verb surface, one
// in-process struct composing every pipeline component.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/mediafoxhq/mediafox/internal/audio"
	"github.com/mediafoxhq/mediafox/internal/compositor"
	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/errs"
	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/playlist"
	"github.com/mediafoxhq/mediafox/internal/plugin"
	"github.com/mediafoxhq/mediafox/internal/renderer"
	"github.com/mediafoxhq/mediafox/internal/store"
	syncengine "github.com/mediafoxhq/mediafox/internal/sync"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
	"github.com/mediafoxhq/mediafox/internal/transcode"
)

// Preload is the "preload" configuration option.
type Preload string

const (
	PreloadNone     Preload = "none"
	PreloadMetadata Preload = "metadata"
	PreloadAuto     Preload = "auto"
)

// LoadOptions configures a single load()/loadPlaylist() call.
type LoadOptions struct {
	StartAt         float64
	Preload         Preload
	CrossOrigin     string
	ReplacePlaylist bool
}

// Options configures the Engine at construction. All fields are optional.
type Options struct {
	Logger zerolog.Logger

	RenderTarget   any
	RendererOrder  []renderer.Backend
	AudioBackend   audio.Backend
	Volume         float64
	Muted          bool
	PlaybackRate   float64
	Autoplay       bool
	Preload        Preload
	CrossOrigin    string
	MaxCacheSize   int64
	FallbackFuncs  map[media.TrackKind]transcode.Func
	SharedCache    transcode.SharedCache
	PositionStore  playlist.PositionStore
	PrefetchNext   playlist.PrefetchFunc
}

func (o Options) withDefaults() Options {
	if o.Volume == 0 {
		o.Volume = 1
	}
	if o.PlaybackRate == 0 {
		o.PlaybackRate = 1
	}
	if o.Preload == "" {
		o.Preload = PreloadMetadata
	}
	return o
}

// Engine is the composition root a host constructs once per player
// instance. Exactly one load session is active at a time; a new
// load/loadPlaylist cancels whatever session preceded it.
type Engine struct {
	opts     Options
	logger   zerolog.Logger
	tracer   trace.Tracer
	resolver Resolver

	Store      *store.Store
	Bus        *eventbus.Bus
	Plugins    *plugin.Manager
	Renderer   *renderer.Manager
	Decode     *decode.Manager
	Transcode  *transcode.Service
	Playlist   *playlist.Coordinator
	Compositor *compositor.Manager

	wallClock *syncengine.WallClock

	mu          sync.Mutex
	audioOut    *audio.Output
	scheduler   *syncengine.Scheduler
	session     *loadSession
	capturer    *capturingPresenter
	pluginNames []string
	destroyed   bool
}

// loadSession holds everything torn down on the next load/dispose.
type loadSession struct {
	id         string
	cancel     context.CancelFunc
	tickCancel context.CancelFunc
	tickWG     sync.WaitGroup
	resolved   *ResolvedSource
	videoTrack *media.Track
	audioTrack *media.Track

	mu         sync.Mutex
	playing    bool
	ended      bool
	fadeCancel context.CancelFunc
}

// New constructs an Engine wired for a single-player lifetime. The
// Store starts batched (non-synchronous); tests that need
// deterministic flushes should call Store.FlushNow() explicitly.
func New(resolver Resolver, opts Options) *Engine {
	opts = opts.withDefaults()
	logger := opts.Logger.With().Str("component", "engine").Logger()
	bus := eventbus.New(logger)
	st := store.New(logger)
	plugins := plugin.New(bus, logger)
	st.AddInterceptor(plugins)
	st.AddObserver(plugins)
	bus.SetInterceptor(plugins)

	e := &Engine{
		opts:       opts,
		logger:     logger,
		tracer:     telemetry.Tracer("mediafox/engine"),
		resolver:   resolver,
		Store:      st,
		Bus:        bus,
		Plugins:    plugins,
		Decode:     decode.NewManager(logger),
		Transcode:  transcode.NewWithSharedCache(bus, logger, opts.SharedCache),
		Compositor: compositor.New(logger),
		wallClock:  syncengine.NewWallClock(),
	}
	e.Renderer = renderer.New(logger, e.onRendererFallback, opts.RendererOrder...)
	e.Renderer.SetPlugins(plugins)

	for kind, fn := range opts.FallbackFuncs {
		e.Transcode.Register(kind, fn)
	}

	st.SetState(store.NewPartial().
		SetVolume(opts.Volume).
		SetMuted(opts.Muted).
		SetPlaybackRate(opts.PlaybackRate))
	st.FlushNow()

	e.Playlist = playlist.New(st, bus, logger, e.loadPlaylistItem, opts.PrefetchNext, opts.PositionStore)

	return e
}

func (e *Engine) onRendererFallback(newType string) {
	e.Store.SetState(store.NewPartial().SetRendererType(newType))
	e.Bus.Emit("rendererfallback", map[string]any{"to": newType})
	e.Bus.Emit("rendererchange", newType)
}

// GetState returns the current immutable snapshot.
func (e *Engine) GetState() store.PlayerStateData {
	return e.Store.GetState()
}

// Subscribe registers a listener invoked with the current snapshot,
// then on every subsequent flush.
func (e *Engine) Subscribe(fn func(store.PlayerStateData)) store.Subscription {
	return e.Store.Subscribe(fn)
}

// On registers a persistent event listener for topic.
func (e *Engine) On(topic eventbus.Topic, fn func(payload any)) (unsubscribe func()) {
	return e.Bus.On(topic, fn)
}

// Once registers a listener removed after its first invocation.
func (e *Engine) Once(topic eventbus.Topic, fn func(payload any)) (unsubscribe func()) {
	return e.Bus.Once(topic, fn)
}

// Off removes every listener for topic.
func (e *Engine) Off(topic eventbus.Topic) {
	e.Bus.Off(topic, nil)
}

// Use installs a plugin.
func (e *Engine) Use(p plugin.Plugin) error {
	if err := e.Plugins.Use(p); err != nil {
		return err
	}
	e.mu.Lock()
	e.pluginNames = append(e.pluginNames, p.Name)
	e.mu.Unlock()
	return nil
}

// Unuse removes a previously installed plugin by name.
func (e *Engine) Unuse(name string) error {
	if err := e.Plugins.Unuse(name); err != nil {
		return err
	}
	e.mu.Lock()
	for i, n := range e.pluginNames {
		if n == name {
			e.pluginNames = append(e.pluginNames[:i], e.pluginNames[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	return nil
}

// Dispose releases all decoders/renderer/audio resources but leaves
// the Engine usable for a subsequent load.
// Plugins and listeners stay installed.
func (e *Engine) Dispose() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	audioOut := e.audioOut
	e.audioOut = nil
	e.scheduler = nil
	e.capturer = nil
	e.mu.Unlock()

	if session != nil {
		e.teardownSession(session)
	}
	e.Decode.StopAll()
	e.Transcode.Reset()
	e.Renderer.Dispose()
	e.Compositor.Dispose()
	if audioOut != nil {
		audioOut.Pause()
	}
	e.Store.SetState(store.NewPartial().SetState(store.Idle).SetEnded(false).SetCanPlay(false).SetCanPlayThrough(false))
	e.Bus.Emit("destroy", nil)
}

// Destroy additionally unsubscribes every plugin and listener and
// marks the Engine unusable for any further verb.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.mu.Unlock()

	e.Playlist.Dispose()
	e.mu.Lock()
	names := append([]string(nil), e.pluginNames...)
	e.mu.Unlock()
	for _, name := range names {
		_ = e.Unuse(name)
	}
	e.Dispose()
	e.Store.Reset()
	for _, topic := range e.Bus.EventNames() {
		e.Bus.Off(topic, nil)
	}
}

func (e *Engine) requireNotDestroyed() *errs.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errs.New(errs.InvalidState, "engine: verb called after destroy()")
	}
	return nil
}

func (e *Engine) startSpan(ctx context.Context, verb string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, fmt.Sprintf("engine.%s", verb))
}
