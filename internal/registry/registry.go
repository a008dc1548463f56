// Package registry implements the subscriber registry: the process-wide
// table of subscribers and the union tag/pattern masks derived from it that
// feed back into the acquisition controller and processor.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// PushCredit bounds a subscriber's in-flight push count (§5).
const PushCredit = 5

// Pusher is the push endpoint a subscriber handle sends frames through.
// Implemented by the rpcapi server-streaming session for a given subscriber.
// msg is whatever the publisher's Build callback constructed for this
// handle; the registry itself never interprets it.
type Pusher interface {
	Push(msg any) error
}

// Metrics receives subscriber push outcome counts for internal/metrics. It
// is optional (nil-safe) the same way internal/acquisition.ErrorSink and
// internal/jobmanager.EventSink are: the registry never hard-depends on the
// metrics package.
type Metrics interface {
	ObservePush(pushed, failed int)
}

// Subscription is returned by Subscribe; its sole purpose is to be released
// to unsubscribe (mirroring the capability schema's "destruction =
// unsubscribe" semantics).
type Subscription struct {
	id       uint64
	registry *Registry
	released atomic.Bool
}

// Release unsubscribes; idempotent.
func (s *Subscription) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.registry.remove(s.id)
	}
}

// ID returns the subscriber id, stable for the subscription's lifetime.
func (s *Subscription) ID() uint64 { return s.id }

type handle struct {
	client   Pusher
	inFlight int
	tagmask  uint16
	patterns []tagio.PatternKey
}

// Registry tracks subscribers and the union masks computed from them, plus
// the authoritative per-channel input state and global window.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	handles map[uint64]*handle

	unionMu       sync.RWMutex
	unionTagmask  uint16
	unionPatterns map[tagio.PatternKey]struct{}

	stateMu       sync.RWMutex
	invmask       uint16
	delays        [16]uint32
	thresholds    [16]float64
	globalWindow  uint32
	windowIsFixed bool // set by CLI at startup: true means set_window/windowed patterns never change GlobalWindow

	// settings is the outbound channel of setting events to the acquisition
	// controller (RPC surface → E → C). Sends on it block until received, so
	// they are made with stateMu released.
	settings chan SettingEvent

	metrics Metrics // optional; nil when no metrics registry is wired
}

// SetMetrics wires an optional Metrics sink. Call before any Subscribe or
// PushUpdate that should be observed.
func (r *Registry) SetMetrics(m Metrics) {
	r.metrics = m
}

// SubscriberCount returns the current number of live subscribers.
func (r *Registry) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// New constructs an empty Registry. If pinnedWindow is nonzero, the global
// window is fixed at startup and never changed by set_window or by the
// first-nonzero-window-adopts-global rule.
func New(pinnedWindow uint32, settings chan SettingEvent) *Registry {
	r := &Registry{
		handles:       make(map[uint64]*handle),
		unionPatterns: make(map[tagio.PatternKey]struct{}),
		settings:      settings,
	}
	for i := range r.thresholds {
		r.thresholds[i] = 2.0
	}
	if pinnedWindow != 0 {
		r.globalWindow = pinnedWindow
		r.windowIsFixed = true
	}
	return r
}

// Subscribe registers a new subscriber, rebuilds the union masks, and
// returns a Subscription whose Release unsubscribes.
func (r *Registry) Subscribe(tagmask uint16, patterns []tagio.PatternKey, client Pusher) *Subscription {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handles[id] = &handle{client: client, tagmask: tagmask, patterns: patterns}
	r.mu.Unlock()

	r.adoptFirstWindow(patterns)
	r.rebuildUnion()

	return &Subscription{id: id, registry: r}
}

// adoptFirstWindow implements the "first nonzero window seen adopts the
// global window" rule (logic mode, unpinned only). This is a deliberate,
// surprising side effect of subscribing: one subscriber's windowed pattern
// request can change the window every other subscriber's logic-mode counts
// are computed with. See spec §4.E and DESIGN.md Open Question 4.
func (r *Registry) adoptFirstWindow(patterns []tagio.PatternKey) {
	r.stateMu.Lock()
	if r.windowIsFixed || r.globalWindow != 0 {
		r.stateMu.Unlock()
		return
	}
	for _, p := range patterns {
		if p.Window != 0 {
			r.globalWindow = p.Window
			r.stateMu.Unlock()
			r.settings <- SettingEvent{Kind: SettingWindow, Window: p.Window}
			return
		}
	}
	r.stateMu.Unlock()
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
	r.rebuildUnion()
}

// rebuildUnion recomputes union_tagmask/union_patterns from the current
// handle map, under the reader/writer exclusion spec §5 calls for.
func (r *Registry) rebuildUnion() {
	r.mu.Lock()
	var tagmask uint16
	patterns := make(map[tagio.PatternKey]struct{})
	for _, h := range r.handles {
		tagmask |= h.tagmask
		for _, p := range h.patterns {
			patterns[p] = struct{}{}
		}
	}
	r.mu.Unlock()

	r.unionMu.Lock()
	r.unionTagmask = tagmask
	r.unionPatterns = patterns
	r.unionMu.Unlock()
}

// UnionTagmask returns the current union tag mask.
func (r *Registry) UnionTagmask() uint16 {
	r.unionMu.RLock()
	defer r.unionMu.RUnlock()
	return r.unionTagmask
}

// UnionPatterns returns a snapshot of the current union pattern set.
func (r *Registry) UnionPatterns() []tagio.PatternKey {
	r.unionMu.RLock()
	defer r.unionMu.RUnlock()
	out := make([]tagio.PatternKey, 0, len(r.unionPatterns))
	for p := range r.unionPatterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Patmask != out[j].Patmask {
			return out[i].Patmask < out[j].Patmask
		}
		return out[i].Window < out[j].Window
	})
	return out
}

// SettingKind identifies which field of InputSettings a SettingEvent carries.
type SettingKind int

const (
	SettingInversion SettingKind = iota
	SettingDelay
	SettingThreshold
	SettingWindow
)

// SettingEvent is one queued change forwarded from the RPC surface (via the
// registry) to the acquisition controller.
type SettingEvent struct {
	Kind      SettingKind
	Channel   uint8
	Mask      uint16
	DelayTick uint32
	Volts     float64
	Window    uint32
}

// SetInversionMask updates the authoritative state and forwards the change
// to the controller.
func (r *Registry) SetInversionMask(mask uint16) {
	r.stateMu.Lock()
	r.invmask = mask
	r.stateMu.Unlock()
	r.settings <- SettingEvent{Kind: SettingInversion, Mask: mask}
}

// SetDelay updates the authoritative state and forwards the change.
func (r *Registry) SetDelay(ch uint8, ticks uint32) {
	r.stateMu.Lock()
	r.delays[ch-1] = ticks
	r.stateMu.Unlock()
	r.settings <- SettingEvent{Kind: SettingDelay, Channel: ch, DelayTick: ticks}
}

// SetThreshold updates the authoritative state and forwards the change.
func (r *Registry) SetThreshold(ch uint8, volts float64) {
	if volts < -4.0 {
		volts = -4.0
	}
	if volts > 4.0 {
		volts = 4.0
	}
	r.stateMu.Lock()
	r.thresholds[ch-1] = volts
	r.stateMu.Unlock()
	r.settings <- SettingEvent{Kind: SettingThreshold, Channel: ch, Volts: volts}
}

// SetWindow sets the global window (logic mode only) unless the CLI pinned
// a fixed window, in which case the request is silently ignored.
func (r *Registry) SetWindow(ticks uint32) {
	r.stateMu.Lock()
	if r.windowIsFixed {
		r.stateMu.Unlock()
		log.Warn("registry: ignoring set_window, global window is pinned")
		return
	}
	r.globalWindow = ticks
	r.stateMu.Unlock()
	r.settings <- SettingEvent{Kind: SettingWindow, Window: ticks}
}

// GetWindow returns the current global window (0 means "none").
func (r *Registry) GetWindow() uint32 {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.globalWindow
}

// Inputs is the authoritative input-state snapshot returned by GetInputs.
type Inputs struct {
	InversionMask uint16
	Delays        [16]uint32
	Thresholds    [16]float64
}

// GetInputs returns the authoritative input state.
func (r *Registry) GetInputs() Inputs {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return Inputs{InversionMask: r.invmask, Delays: r.delays, Thresholds: r.thresholds}
}

// PushUpdate issues one asynchronous push per non-saturated subscriber,
// applying the push-credit flow-control policy: saturated subscribers
// (in_flight >= PushCredit) are skipped for this frame, which never blocks on
// any one subscriber's Push call (§4.F, §5). build is called once per
// non-saturated handle, on the caller's goroutine, to construct its message;
// the actual Push and its in_flight bookkeeping happen on a per-subscriber
// goroutine and complete independently of this call. Callers get back the
// ids dispatched to this frame; whether each one is ultimately delivered is
// observed later via Metrics.ObservePush, not via this return value.
func (r *Registry) PushUpdate(build func(h Inputs, tagmask uint16, patterns []tagio.PatternKey) any) []uint64 {
	r.mu.Lock()
	type job struct {
		id uint64
		h  *handle
	}
	jobs := make([]job, 0, len(r.handles))
	for id, h := range r.handles {
		if h.inFlight >= PushCredit {
			continue
		}
		h.inFlight++
		jobs = append(jobs, job{id: id, h: h})
	}
	r.mu.Unlock()

	inputs := r.GetInputs()
	dispatched := make([]uint64, 0, len(jobs))
	for _, j := range jobs {
		frame := build(inputs, j.h.tagmask, j.h.patterns)
		dispatched = append(dispatched, j.id)
		go r.pushAsync(j.id, j.h, frame)
	}

	if r.metrics != nil {
		r.metrics.ObservePush(len(dispatched), 0)
	}

	return dispatched
}

// pushAsync runs one subscriber's Push off the publisher's goroutine. On
// completion it decrements in_flight; on a transport error it drops the
// subscriber and rebuilds the union masks instead, per §4.F. h is compared by
// identity against the current map entry so a handle removed (and possibly
// replaced by a new subscriber reusing nothing, since ids never recycle)
// while this push was in flight is not corrupted.
func (r *Registry) pushAsync(id uint64, h *handle, frame any) {
	err := h.client.Push(frame)

	r.mu.Lock()
	cur, ok := r.handles[id]
	if !ok || cur != h {
		r.mu.Unlock()
		return
	}
	if err == nil {
		cur.inFlight--
		r.mu.Unlock()
		return
	}
	delete(r.handles, id)
	r.mu.Unlock()

	r.rebuildUnion()
	if r.metrics != nil {
		r.metrics.ObservePush(0, 1)
	}
}
