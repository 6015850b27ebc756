/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package plugin implements the ordered plugin registry and the five
// hook-category dispatch a plugin can subscribe to. Manager implements
// store.UpdateInterceptor and store.ChangeObserver so the Store can
// depend only on those interfaces while the Engine Facade
// wires the concrete Manager in.
package plugin

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafoxhq/mediafox/internal/eventbus"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/store"
)

// LifecycleHooks mirror the engine verbs a plugin may observe or veto
//. A before* hook returns cancel=true to
// abort the operation, or a non-nil data to substitute the argument
// the operation proceeds with.
type LifecycleHooks struct {
	BeforeLoad  func(opts any) (data any, cancel bool)
	AfterLoad   func(opts any)
	BeforePlay  func() (cancel bool)
	AfterPlay   func()
	BeforePause func() (cancel bool)
	AfterPause  func()
	BeforeSeek  func(t float64) (newT float64, changed bool, cancel bool)
	AfterSeek   func(t float64)
	BeforeStop  func() (cancel bool)
	AfterStop   func()
	OnError     func(err error)
	OnEnded     func()
}

// Overlay is a render hook that draws after the primary frame.
// Negative ZIndex draws before the primary frame.
type Overlay struct {
	ZIndex int
	Render func(t float64, width, height int)
}

// RenderHooks mirror the per-frame render path . All must be synchronous: they run on the render path once per
// frame.
type RenderHooks struct {
	BeforeRender   func(frame *media.Frame, t float64)
	TransformFrame func(frame *media.Frame) *media.Frame
	AfterRender    func(surface any)
	Overlay        *Overlay
}

// StateHooks mirror the Store's update-interception points.
type StateHooks struct {
	BeforeStateUpdate func(partial *store.Partial) (rewritten *store.Partial, cancel bool)
	OnStateChange     func(next, prev store.PlayerStateData)
}

// EventHooks intercept every Event Bus emission.
type EventHooks struct {
	BeforeEvent func(topic eventbus.Topic, data any) (rewritten any, cancel bool)
	AfterEvent  func(topic eventbus.Topic, data any)
}

// AudioNode is an opaque handle into the host audio graph; a plugin's
// OnAudioNode hook receives the chain's current tail and returns the
// node downstream code should continue from.
type AudioNode any

// AudioHooks mirrors the audio-graph-construction hook, called once when the graph is built.
type AudioHooks struct {
	OnAudioNode func(sourceGainNode AudioNode) AudioNode
}

// Plugin is the unit of installation.
type Plugin struct {
	Name         string
	Version      string
	Dependencies []string

	Install   func(ctx *Context) error
	Uninstall func()

	Lifecycle LifecycleHooks
	Render    RenderHooks
	State     StateHooks
	Event     EventHooks
	Audio     AudioHooks
}

type installed struct {
	plugin      Plugin
	state       any
	eventUnsubs []func()
}

// Context is handed to Plugin.Install. It carries only non-owning
// references; a plugin must not retain the Manager itself.
type Context struct {
	manager *Manager
	name    string
	bus     *eventbus.Bus
}

// GetPlugin looks up an already-installed plugin's context by name,
// for inter-plugin cooperation.
func (c *Context) GetPlugin(name string) (*Context, bool) {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()
	if _, ok := c.manager.byName[name]; !ok {
		return nil, false
	}
	return &Context{manager: c.manager, name: name, bus: c.bus}, true
}

// On registers an event listener that is automatically removed when
// this plugin is uninstalled.
func (c *Context) On(topic eventbus.Topic, fn func(payload any)) {
	unsub := c.bus.On(topic, fn)
	c.manager.mu.Lock()
	if ins, ok := c.manager.byName[c.name]; ok {
		ins.eventUnsubs = append(ins.eventUnsubs, unsub)
	}
	c.manager.mu.Unlock()
}

// GetPluginState returns this plugin's isolated state slot.
func GetPluginState[T any](c *Context) (T, bool) {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()
	var zero T
	ins, ok := c.manager.byName[c.name]
	if !ok || ins.state == nil {
		return zero, false
	}
	v, ok := ins.state.(T)
	return v, ok
}

// SetPluginState replaces this plugin's isolated state slot.
func SetPluginState[T any](c *Context, v T) {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()
	if ins, ok := c.manager.byName[c.name]; ok {
		ins.state = v
	}
}

// Manager is the ordered plugin registry. It
// implements store.UpdateInterceptor and store.ChangeObserver so the
// Engine can register it directly with a Store without either package
// importing the other.
type Manager struct {
	mu     sync.Mutex
	order  []*installed
	byName map[string]*installed
	bus    *eventbus.Bus
	logger zerolog.Logger
}

// New constructs an empty Manager bound to bus for auto-unsubscribe
// tracking.
func New(bus *eventbus.Bus, logger zerolog.Logger) *Manager {
	return &Manager{
		byName: make(map[string]*installed),
		bus:    bus,
		logger: logger.With().Str("component", "plugin").Logger(),
	}
}

// Use installs p. Install order determines hook order; p's declared
// Dependencies must already be installed.
func (m *Manager) Use(p Plugin) error {
	m.mu.Lock()
	if _, exists := m.byName[p.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin: %q already installed", p.Name)
	}
	for _, dep := range p.Dependencies {
		if _, ok := m.byName[dep]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("plugin: %q depends on %q which is not installed", p.Name, dep)
		}
	}
	ins := &installed{plugin: p}
	m.byName[p.Name] = ins
	m.order = append(m.order, ins)
	m.mu.Unlock()

	if p.Install != nil {
		ctx := &Context{manager: m, name: p.Name, bus: m.bus}
		if err := p.Install(ctx); err != nil {
			m.mu.Lock()
			delete(m.byName, p.Name)
			m.removeFromOrder(p.Name)
			m.mu.Unlock()
			return fmt.Errorf("plugin: %q install failed: %w", p.Name, err)
		}
	}
	return nil
}

// Unuse removes a plugin, calling its Uninstall hook and detaching
// every listener it registered via Context.On.
func (m *Manager) Unuse(name string) error {
	m.mu.Lock()
	ins, ok := m.byName[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin: %q not installed", name)
	}
	delete(m.byName, name)
	m.removeFromOrder(name)
	unsubs := ins.eventUnsubs
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if ins.plugin.Uninstall != nil {
		m.safe(name, "uninstall", func() { ins.plugin.Uninstall() })
	}
	return nil
}

func (m *Manager) removeFromOrder(name string) {
	for i, ins := range m.order {
		if ins.plugin.Name == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *Manager) snapshot() []*installed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*installed(nil), m.order...)
}

func (m *Manager) safe(name, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("plugin", name).Str("hook", hook).Interface("panic", r).Msg("plugin hook panicked")
		}
	}()
	fn()
}

// --- Lifecycle dispatch -----------------------------------------------

// BeforeLoad runs every plugin's BeforeLoad hook in order. The first
// plugin to request cancellation short-circuits the rest.
func (m *Manager) BeforeLoad(opts any) (data any, cancel bool) {
	data = opts
	for _, ins := range m.snapshot() {
		h := ins.plugin.Lifecycle.BeforeLoad
		if h == nil {
			continue
		}
		var out any
		var c bool
		m.safe(ins.plugin.Name, "beforeLoad", func() { out, c = h(data) })
		if out != nil {
			data = out
		}
		if c {
			return data, true
		}
	}
	return data, false
}

// AfterLoad runs every plugin's AfterLoad observer hook.
func (m *Manager) AfterLoad(opts any) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.AfterLoad; h != nil {
			m.safe(ins.plugin.Name, "afterLoad", func() { h(opts) })
		}
	}
}

// BeforePlay runs every plugin's BeforePlay hook; first cancellation wins.
func (m *Manager) BeforePlay() (cancel bool) {
	for _, ins := range m.snapshot() {
		h := ins.plugin.Lifecycle.BeforePlay
		if h == nil {
			continue
		}
		var c bool
		m.safe(ins.plugin.Name, "beforePlay", func() { c = h() })
		if c {
			return true
		}
	}
	return false
}

// AfterPlay runs every plugin's AfterPlay observer hook.
func (m *Manager) AfterPlay() {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.AfterPlay; h != nil {
			m.safe(ins.plugin.Name, "afterPlay", h)
		}
	}
}

// BeforePause runs every plugin's BeforePause hook; first cancellation wins.
func (m *Manager) BeforePause() (cancel bool) {
	for _, ins := range m.snapshot() {
		h := ins.plugin.Lifecycle.BeforePause
		if h == nil {
			continue
		}
		var c bool
		m.safe(ins.plugin.Name, "beforePause", func() { c = h() })
		if c {
			return true
		}
	}
	return false
}

// AfterPause runs every plugin's AfterPause observer hook.
func (m *Manager) AfterPause() {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.AfterPause; h != nil {
			m.safe(ins.plugin.Name, "afterPause", h)
		}
	}
}

// BeforeSeek runs every plugin's BeforeSeek hook, letting each rewrite
// the target time; first cancellation wins.
func (m *Manager) BeforeSeek(t float64) (newT float64, cancel bool) {
	newT = t
	for _, ins := range m.snapshot() {
		h := ins.plugin.Lifecycle.BeforeSeek
		if h == nil {
			continue
		}
		var out float64
		var changed, c bool
		m.safe(ins.plugin.Name, "beforeSeek", func() { out, changed, c = h(newT) })
		if changed {
			newT = out
		}
		if c {
			return newT, true
		}
	}
	return newT, false
}

// AfterSeek runs every plugin's AfterSeek observer hook.
func (m *Manager) AfterSeek(t float64) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.AfterSeek; h != nil {
			m.safe(ins.plugin.Name, "afterSeek", func() { h(t) })
		}
	}
}

// BeforeStop runs every plugin's BeforeStop hook; first cancellation wins.
func (m *Manager) BeforeStop() (cancel bool) {
	for _, ins := range m.snapshot() {
		h := ins.plugin.Lifecycle.BeforeStop
		if h == nil {
			continue
		}
		var c bool
		m.safe(ins.plugin.Name, "beforeStop", func() { c = h() })
		if c {
			return true
		}
	}
	return false
}

// AfterStop runs every plugin's AfterStop observer hook.
func (m *Manager) AfterStop() {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.AfterStop; h != nil {
			m.safe(ins.plugin.Name, "afterStop", h)
		}
	}
}

// OnError fans a fatal/recoverable error out to every plugin.
func (m *Manager) OnError(err error) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.OnError; h != nil {
			m.safe(ins.plugin.Name, "onError", func() { h(err) })
		}
	}
}

// OnEnded fans end-of-stream out to every plugin.
func (m *Manager) OnEnded() {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Lifecycle.OnEnded; h != nil {
			m.safe(ins.plugin.Name, "onEnded", h)
		}
	}
}

// --- Render dispatch ----------------------------------------------------

// BeforeRender runs every plugin's BeforeRender observer hook.
func (m *Manager) BeforeRender(frame *media.Frame, t float64) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Render.BeforeRender; h != nil {
			m.safe(ins.plugin.Name, "beforeRender", func() { h(frame, t) })
		}
	}
}

// TransformFrame threads frame through every plugin's TransformFrame
// hook in install order, each receiving the previous plugin's output.
func (m *Manager) TransformFrame(frame *media.Frame) *media.Frame {
	for _, ins := range m.snapshot() {
		h := ins.plugin.Render.TransformFrame
		if h == nil {
			continue
		}
		var out *media.Frame
		m.safe(ins.plugin.Name, "transformFrame", func() { out = h(frame) })
		if out != nil {
			frame = out
		}
	}
	return frame
}

// AfterRender runs every plugin's AfterRender observer hook.
func (m *Manager) AfterRender(surface any) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Render.AfterRender; h != nil {
			m.safe(ins.plugin.Name, "afterRender", func() { h(surface) })
		}
	}
}

// Overlays collects every registered overlay, sorted by ZIndex
// ascending.
func (m *Manager) Overlays() []Overlay {
	var overlays []Overlay
	for _, ins := range m.snapshot() {
		if ins.plugin.Render.Overlay != nil {
			overlays = append(overlays, *ins.plugin.Render.Overlay)
		}
	}
	stableSortByZIndex(overlays)
	return overlays
}

func stableSortByZIndex(overlays []Overlay) {
	for i := 1; i < len(overlays); i++ {
		for j := i; j > 0 && overlays[j].ZIndex < overlays[j-1].ZIndex; j-- {
			overlays[j], overlays[j-1] = overlays[j-1], overlays[j]
		}
	}
}

// --- State dispatch (store.UpdateInterceptor / store.ChangeObserver) ---

// BeforeStateUpdate implements store.UpdateInterceptor.
func (m *Manager) BeforeStateUpdate(partial *store.Partial) (*store.Partial, bool) {
	for _, ins := range m.snapshot() {
		h := ins.plugin.State.BeforeStateUpdate
		if h == nil {
			continue
		}
		var out *store.Partial
		var cancel bool
		m.safe(ins.plugin.Name, "beforeStateUpdate", func() { out, cancel = h(partial) })
		if cancel {
			return nil, true
		}
		if out != nil {
			partial = out
		}
	}
	return partial, false
}

// OnStateChange implements store.ChangeObserver.
func (m *Manager) OnStateChange(next, prev store.PlayerStateData) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.State.OnStateChange; h != nil {
			m.safe(ins.plugin.Name, "onStateChange", func() { h(next, prev) })
		}
	}
}

// --- Event dispatch -------------------------------------------------------

// BeforeEvent intercepts an Event Bus emission before it is
// dispatched; Bus.Emit calls it once the Manager is installed with
// Bus.SetInterceptor.
func (m *Manager) BeforeEvent(topic eventbus.Topic, data any) (rewritten any, cancel bool) {
	rewritten = data
	for _, ins := range m.snapshot() {
		h := ins.plugin.Event.BeforeEvent
		if h == nil {
			continue
		}
		var out any
		var c bool
		m.safe(ins.plugin.Name, "beforeEvent", func() { out, c = h(topic, rewritten) })
		if out != nil {
			rewritten = out
		}
		if c {
			return rewritten, true
		}
	}
	return rewritten, false
}

// AfterEvent runs every plugin's AfterEvent observer hook.
func (m *Manager) AfterEvent(topic eventbus.Topic, data any) {
	for _, ins := range m.snapshot() {
		if h := ins.plugin.Event.AfterEvent; h != nil {
			m.safe(ins.plugin.Name, "afterEvent", func() { h(topic, data) })
		}
	}
}

// --- Audio dispatch -------------------------------------------------------

// BuildAudioChain threads sourceGainNode through every plugin's
// OnAudioNode hook in install order, called once when the audio graph
// is built.
func (m *Manager) BuildAudioChain(sourceGainNode AudioNode) AudioNode {
	node := sourceGainNode
	for _, ins := range m.snapshot() {
		h := ins.plugin.Audio.OnAudioNode
		if h == nil {
			continue
		}
		var out AudioNode
		m.safe(ins.plugin.Name, "onAudioNode", func() { out = h(node) })
		if out != nil {
			node = out
		}
	}
	return node
}
