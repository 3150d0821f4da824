// Package sandbox tracks the lifecycle of the single game document shown in
// the host frame.
//
// A Runtime materializes each document source as a resource with its own
// handle, points the frame at it, and waits for the frame to report that it
// loaded. Frames hosting untrusted code do not always report, so a timer
// forces the Ready state after LoadTimeout. Exactly one resource is live at
// a time: installing a new one releases the previous.
package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateReloading:
		return "reloading"
	}
	return "unknown"
}

// DefaultLoadTimeout bounds the wait for a load signal.
const DefaultLoadTimeout = time.Second

type Options struct {
	LoadTimeout time.Duration
	// OnState, when set, is called after every transition. It runs without
	// the runtime lock held and may call back into the runtime.
	OnState func(State)
}

// Runtime is the state machine over the active document.
type Runtime struct {
	frame Frame
	res   *Resources
	opts  Options
	log   logrus.FieldLogger

	mu     sync.Mutex
	state  State
	doc    string
	handle string
	gen    uint64 // bumped per materialization; stale timers compare against it
	timer  *time.Timer
}

// New returns an idle Runtime. frame may be nil, in which case documents are
// materialized but never shown and Reset always reloads.
func New(frame Frame, res *Resources, opts Options, log logrus.FieldLogger) *Runtime {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if res == nil {
		res = NewResources()
	}
	return &Runtime{
		frame: frame,
		res:   res,
		opts:  opts,
		log:   log,
	}
}

// Load installs doc as the active document and starts loading it.
func (r *Runtime) Load(doc string) {
	r.mu.Lock()
	handle, state := r.materializeLocked(doc)
	r.mu.Unlock()

	r.notify(state)
	r.navigate(handle)
}

// materializeLocked creates the resource for doc, releases the previous one
// and arms the load timer.
func (r *Runtime) materializeLocked(doc string) (string, State) {
	prev := r.handle
	r.doc = doc
	r.handle = r.res.Create(doc)
	r.gen++
	if prev != "" {
		r.res.Release(prev)
	}

	switch r.state {
	case StateIdle:
		r.state = StateLoading
	case StateReady:
		r.state = StateReloading
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	gen := r.gen
	r.timer = time.AfterFunc(r.opts.LoadTimeout, func() { r.settle(gen) })

	r.log.WithFields(logrus.Fields{"handle": r.handle, "state": r.state}).Debug("Materialized document")
	return r.handle, r.state
}

func (r *Runtime) navigate(handle string) {
	if r.frame == nil {
		return
	}
	if err := r.frame.Navigate(handle, URL(handle)); err != nil {
		r.log.WithField("handle", handle).WithError(err).Warn("Frame navigation failed")
	}
}

// settle forces Ready when the load signal for gen never arrived.
func (r *Runtime) settle(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || !r.loadingLocked() {
		r.mu.Unlock()
		return
	}
	r.state = StateReady
	r.timer = nil
	handle := r.handle
	r.mu.Unlock()

	r.log.WithField("handle", handle).Debug("No load signal, forcing ready")
	r.notify(StateReady)
}

// NotifyLoaded records the frame's load-completion signal for handle.
// Signals for superseded handles are ignored.
func (r *Runtime) NotifyLoaded(handle string) {
	r.mu.Lock()
	if handle != r.handle || !r.loadingLocked() {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.state = StateReady
	r.mu.Unlock()

	r.log.WithField("handle", handle).Debug("Document loaded")
	r.notify(StateReady)
}

func (r *Runtime) loadingLocked() bool {
	return r.state == StateLoading || r.state == StateReloading
}

// Reset restarts the active game. It first asks the hosted document to run
// its restart entry point; if that is missing or fails, the same source is
// materialized again under a new handle.
func (r *Runtime) Reset(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateIdle {
		r.mu.Unlock()
		return
	}
	gen := r.gen
	r.mu.Unlock()

	if r.frame != nil {
		err := r.frame.Restart(ctx)
		if err == nil {
			r.log.Debug("Restarted through entry point")
			return
		}
		r.log.WithError(err).Debug("Restart entry point unavailable, reloading")
	}

	r.mu.Lock()
	if gen != r.gen || r.state == StateIdle {
		// a newer document was installed meanwhile
		r.mu.Unlock()
		return
	}
	handle, state := r.materializeLocked(r.doc)
	r.mu.Unlock()

	r.notify(state)
	r.navigate(handle)
}

// Close releases the live resource and returns to Idle.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.handle != "" {
		r.res.Release(r.handle)
	}
	wasIdle := r.state == StateIdle
	r.state = StateIdle
	r.doc = ""
	r.handle = ""
	r.gen++
	r.mu.Unlock()

	if !wasIdle {
		r.notify(StateIdle)
	}
}

func (r *Runtime) notify(s State) {
	if r.opts.OnState != nil {
		r.opts.OnState(s)
	}
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Visible reports whether the frame should be shown.
func (r *Runtime) Visible() bool {
	return r.State() == StateReady
}

// Opacity is 0 while loading and 1 once ready.
func (r *Runtime) Opacity() float64 {
	if r.Visible() {
		return 1
	}
	return 0
}

// Handle returns the live resource handle, or "" when idle.
func (r *Runtime) Handle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Document returns the active document source.
func (r *Runtime) Document() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *Runtime) Resources() *Resources {
	return r.res
}
