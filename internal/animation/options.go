package animation

import (
	"time"

	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/signal"
)

// DefaultTickInterval is roughly one frame at 60Hz.
const DefaultTickInterval = 16 * time.Millisecond

type options struct {
	source    clock.TimeSource
	tick      time.Duration
	value     signal.Cell[float32]
	state     signal.Cell[State]
	publisher eventbus.Publisher
	policy    RestartPolicy
}

// Option configures UseMotion.
type Option func(*options)

// WithTimeSource sets where the driver reads time and waits between ticks.
func WithTimeSource(ts clock.TimeSource) Option {
	return func(o *options) {
		if ts != nil {
			o.source = ts
		}
	}
}

// WithTickInterval sets the pause between value updates. Values of zero or
// less keep the default.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tick = d
		}
	}
}

// WithValueCell makes the driver publish values into c instead of a private
// cell. The cell is reset to the motion's initial value.
func WithValueCell(c signal.Cell[float32]) Option {
	return func(o *options) {
		if c != nil {
			o.value = c
		}
	}
}

// WithStateCell makes the driver mirror its state into c.
func WithStateCell(c signal.Cell[State]) Option {
	return func(o *options) {
		if c != nil {
			o.state = c
		}
	}
}

// WithPublisher reports run lifecycle events to p.
func WithPublisher(p eventbus.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithRestartPolicy sets what Start does while a run is in progress.
func WithRestartPolicy(p RestartPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}
