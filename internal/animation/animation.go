// Package animation drives a motion.Motion: it eases a single float32 cell
// from its current value to the motion's target on a background goroutine,
// one tick at a time.
//
// A host creates a Handle once with UseMotion, reads Value whenever it
// renders and calls Start whenever it wants a run:
//
//	h := animation.UseMotion(ctx, motion.New(0).To(100).WithDuration(time.Second))
//	defer h.Close()
//	h.Start()
//
// Only the driver goroutine writes the value and state cells. Start, Finish,
// Value and State are safe to call from any goroutine.
package animation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/motion"
	"github.com/mescon/motion/internal/signal"
	"github.com/mescon/motion/internal/trigger"
)

// Handle controls one animated value. Copies of the pointer share everything.
type Handle struct {
	motion motion.Motion
	opts   options

	// status holds the current run number above the State byte, so Start
	// claims a run and flips to Running in one CAS.
	status  atomic.Uint64
	haltRun atomic.Uint64 // run number Finish asked to end
	restart atomic.Bool
	runs    atomic.Uint64

	trigger *trigger.Channel

	mu        sync.Mutex
	cancelRun context.CancelFunc
	cancelFor uint64 // run that cancelRun belongs to

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// UseMotion creates a Handle for m and starts its driver goroutine. The
// handle is Idle with its value at m.Initial() until Start is called. The
// goroutine lives until Close is called or ctx is done.
func UseMotion(ctx context.Context, m motion.Motion, opts ...Option) *Handle {
	o := options{
		tick:   DefaultTickInterval,
		policy: RestartIgnore,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == nil {
		o.source = clock.NewNative()
	}
	if o.value == nil {
		o.value = signal.New(m.Initial())
	} else {
		o.value.Write(m.Initial())
	}
	if o.state == nil {
		o.state = signal.New(Idle)
	} else {
		o.state.Write(Idle)
	}

	h := &Handle{
		motion:  m,
		opts:    o,
		trigger: trigger.New(),
		done:    make(chan struct{}),
	}
	h.ctx, h.cancel = context.WithCancel(ctx)

	go h.run()
	return h
}

// Value returns the current animated value. It never blocks on the driver.
func (h *Handle) Value() float32 {
	return h.opts.value.Read()
}

// State returns the handle's lifecycle state.
func (h *Handle) State() State {
	_, s := unpackStatus(h.status.Load())
	return s
}

func packStatus(run uint64, s State) uint64 {
	return run<<8 | uint64(uint8(s))
}

func unpackStatus(w uint64) (run uint64, s State) {
	return w >> 8, State(uint8(w))
}

// Motion returns the descriptor being driven.
func (h *Handle) Motion() motion.Motion {
	return h.motion
}

// ID returns the descriptor's ID.
func (h *Handle) ID() uuid.UUID {
	return h.motion.ID()
}

// Runs returns the number of completed runs.
func (h *Handle) Runs() uint64 {
	return h.runs.Load()
}

// Start begins a run from the current value. While a run is in progress the
// restart policy decides: RestartIgnore leaves it alone, RestartFromCurrent
// restarts it from wherever it has got to. Start never blocks.
func (h *Handle) Start() {
	if h.ctx.Err() != nil {
		return
	}
	for {
		old := h.status.Load()
		run, s := unpackStatus(old)
		if s == Running {
			h.startWhileRunning()
			return
		}
		next := packStatus(run+1, Running)
		if !h.status.CompareAndSwap(old, next) {
			continue
		}
		if h.ctx.Err() != nil {
			// Lost a race with Close; no driver will pick this run up.
			h.status.CompareAndSwap(next, old)
			return
		}
		h.trigger.Send()
		return
	}
}

func (h *Handle) startWhileRunning() {
	if h.opts.policy == RestartFromCurrent {
		h.restart.Store(true)
		h.publish(domain.MotionRestarted, map[string]interface{}{"value": float64(h.Value())})
		return
	}
	logger.Debugf("Motion %s: start ignored, already running", h.ID())
	h.publish(domain.MotionStartIgnored, map[string]interface{}{"value": float64(h.Value())})
}

// Finish ends the current run early: the driver commits the target and
// completes as if the duration had elapsed. It is a no-op unless Running.
func (h *Handle) Finish() {
	run, s := unpackStatus(h.status.Load())
	if s != Running {
		return
	}
	// Tagged with the run so a late Finish can't end the next one.
	h.haltRun.Store(run)
	h.mu.Lock()
	if h.cancelRun != nil && h.cancelFor == run {
		h.cancelRun()
	}
	h.mu.Unlock()
}

// Close stops the driver goroutine and waits for it to exit. A run in
// progress is abandoned: no final value is written and the completion
// callback is not invoked.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.trigger.Close()
	})
	<-h.done
}

// Done is closed once the driver goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) run() {
	defer close(h.done)
	for {
		if err := h.trigger.Recv(h.ctx); err != nil {
			return
		}
		if h.State() != Running {
			continue
		}
		if !h.animate() {
			return
		}
	}
}

// animate performs one run. It returns false when the handle was closed
// mid-run.
func (h *Handle) animate() bool {
	run, _ := unpackStatus(h.status.Load())
	runCtx, cancel := context.WithCancel(h.ctx)
	h.mu.Lock()
	h.cancelRun = cancel
	h.cancelFor = run
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.cancelRun = nil
		h.mu.Unlock()
		cancel()
	}()

	src := h.opts.source
	target := h.motion.Target()
	start := src.Now()
	from := h.opts.value.Read()
	h.restart.Store(false)

	h.opts.state.Write(Running)
	h.publish(domain.MotionStarted, domain.RunEventData{
		From: float64(from), To: float64(target), Value: float64(from), Run: int64(run),
	}.Map())
	logger.Debugf("Motion %s: run %d from %g to %g over %s", h.ID(), run, from, target, h.motion.Duration())

	var ticks int64
	finished := false
	for {
		if h.ctx.Err() != nil {
			return false
		}
		if h.haltRun.Load() == run {
			finished = true
			break
		}
		if h.restart.Swap(false) {
			start = src.Now()
			from = h.opts.value.Read()
			logger.Debugf("Motion %s: run %d restarted from %g", h.ID(), run, from)
		}

		v, done := h.motion.Sample(from, src.Now().Sub(start))
		if done {
			break
		}
		h.opts.value.Write(v)
		ticks++

		if err := src.Delay(runCtx, h.opts.tick); err != nil && h.ctx.Err() != nil {
			return false
		}
	}

	elapsed := src.Now().Sub(start)
	h.opts.value.Write(target)
	h.runs.Add(1)
	h.status.Store(packStatus(run, Completed))
	h.opts.state.Write(Completed)

	h.publish(domain.MotionCompleted, domain.RunEventData{
		From: float64(from), To: float64(target), Value: float64(target), Run: int64(run),
		Ticks: ticks, ElapsedMs: elapsed.Milliseconds(), Finished: finished,
	}.Map())
	logger.Debugf("Motion %s: run %d completed after %d ticks (%s)", h.ID(), run, ticks, elapsed.Round(time.Millisecond))

	if c := h.motion.Completer(); c != nil {
		c.Complete()
	}
	return true
}

func (h *Handle) publish(t domain.EventType, data map[string]interface{}) {
	if h.opts.publisher == nil {
		return
	}
	if err := h.opts.publisher.Publish(domain.NewMotionEvent(t, h.ID().String(), data)); err != nil {
		logger.Warnf("Motion %s: failed to publish %s: %v", h.ID(), t, err)
	}
}
