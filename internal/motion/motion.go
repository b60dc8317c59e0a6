// Package motion defines the immutable description of a single-value
// animation: where it starts, where it ends, how long it takes and which
// easing curve shapes it.
//
// A Motion is built by chaining setters on a value:
//
//	m := motion.New(0).
//		To(100).
//		WithDuration(time.Second).
//		OnCompleteFunc(func() { log.Println("done") })
//
// Every setter returns a modified copy, so a Motion handed to a driver can't
// change underneath it. Re-running with new endpoints means building a new one.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/motion/internal/easing"
)

// DefaultDuration is the run time of a Motion that doesn't set one.
const DefaultDuration = 300 * time.Millisecond

var (
	// ErrNonFinite is returned by Validate when an endpoint is NaN or infinite.
	ErrNonFinite = errors.New("motion endpoints must be finite")
	// ErrNegativeDuration is returned by Validate for a duration below zero.
	ErrNegativeDuration = errors.New("motion duration must not be negative")
)

// Completer is notified when a run reaches its target.
type Completer interface {
	Complete()
}

// CompleteFunc adapts a plain function to Completer.
type CompleteFunc func()

// Complete implements Completer.
func (f CompleteFunc) Complete() {
	f()
}

// Motion is an immutable animation descriptor.
type Motion struct {
	id         uuid.UUID
	initial    float32
	target     float32
	duration   time.Duration
	easing     easing.Easing
	onComplete Completer
}

// New starts a Motion at initial. Until To is called the target equals the
// initial value, so a run is a no-op that completes after the duration.
func New(initial float32) Motion {
	return Motion{
		id:       uuid.New(),
		initial:  initial,
		target:   initial,
		duration: DefaultDuration,
		easing:   easing.Default,
	}
}

// To sets the value the motion animates towards.
func (m Motion) To(target float32) Motion {
	m.target = target
	return m
}

// Animate is an alias for To.
func (m Motion) Animate(target float32) Motion {
	return m.To(target)
}

// WithDuration sets the total run time. Zero is legal and completes a run on
// its first tick.
func (m Motion) WithDuration(d time.Duration) Motion {
	m.duration = d
	return m
}

// WithEasing sets the interpolation curve. nil restores the default.
func (m Motion) WithEasing(e easing.Easing) Motion {
	if e == nil {
		e = easing.Default
	}
	m.easing = e
	return m
}

// OnComplete sets the callback invoked after each run commits its target.
func (m Motion) OnComplete(c Completer) Motion {
	m.onComplete = c
	return m
}

// OnCompleteFunc is OnComplete for a plain function.
func (m Motion) OnCompleteFunc(f func()) Motion {
	if f == nil {
		return m.OnComplete(nil)
	}
	return m.OnComplete(CompleteFunc(f))
}

// WithID keeps a stored descriptor's identity when it is rebuilt. A nil
// UUID leaves the ID unchanged.
func (m Motion) WithID(id uuid.UUID) Motion {
	if id != uuid.Nil {
		m.id = id
	}
	return m
}

// ID identifies this descriptor. Copies made by the setters keep it.
func (m Motion) ID() uuid.UUID { return m.id }

// Initial returns the starting value of the first run.
func (m Motion) Initial() float32 { return m.initial }

// Target returns the value every run ends on.
func (m Motion) Target() float32 { return m.target }

// Duration returns the run time.
func (m Motion) Duration() time.Duration { return m.duration }

// Easing returns the interpolation curve.
func (m Motion) Easing() easing.Easing {
	if m.easing == nil {
		return easing.Default
	}
	return m.easing
}

// Completer returns the completion callback, or nil.
func (m Motion) Completer() Completer { return m.onComplete }

// Validate reports descriptors a host should refuse to run.
func (m Motion) Validate() error {
	if !finite(m.initial) || !finite(m.target) {
		return fmt.Errorf("%w: initial=%v target=%v", ErrNonFinite, m.initial, m.target)
	}
	if m.duration < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeDuration, m.duration)
	}
	return nil
}

// Sample computes the value a run started at from has reached after elapsed.
// done reports that the run is over, in which case value is exactly the
// target. The easing curve receives the change in value, not the target.
func (m Motion) Sample(from float32, elapsed time.Duration) (value float32, done bool) {
	if elapsed >= m.duration {
		return m.target, true
	}
	progress := float32(elapsed.Seconds() / m.duration.Seconds())
	return m.Easing().Ease(progress, from, m.target-from, 1), false
}

// String implements fmt.Stringer.
func (m Motion) String() string {
	return fmt.Sprintf("motion %s: %g -> %g over %s", m.id, m.initial, m.target, m.duration)
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
