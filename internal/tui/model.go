// Package tui hosts animation handles in a terminal. Each track owns one
// handle and renders its value as a bar; value changes arrive as bubbletea
// messages pushed from the handles' cells.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/easing"
	"github.com/mescon/motion/internal/motion"
	"github.com/mescon/motion/internal/signal"
)

// TrackSpec describes one animated row.
type TrackSpec struct {
	Label    string
	Initial  float32
	Target   float32
	Duration time.Duration
	// AutoStart starts the track as soon as the program starts.
	AutoStart bool
	// CompleteMessage is shown in the status line after each completed run.
	CompleteMessage string
}

// DefaultTracks returns the demo's three motions.
func DefaultTracks() []TrackSpec {
	return []TrackSpec{
		{Label: "width", Initial: 0, Target: 100, Duration: time.Second, CompleteMessage: "Width animation completed!"},
		{Label: "opacity", Initial: 0, Target: 1, Duration: 800 * time.Millisecond},
		{Label: "y", Initial: 100, Target: 0, Duration: 600 * time.Millisecond, AutoStart: true},
	}
}

// Options configures the handles behind a Model.
type Options struct {
	Tracks []TrackSpec // nil means DefaultTracks
	// Duration, when positive, replaces every track's duration.
	Duration      time.Duration
	Easing        easing.Easing // nil means linear
	TimeSource    clock.TimeSource
	TickInterval  time.Duration
	RestartPolicy animation.RestartPolicy
}

type valueMsg struct {
	track int
	value float32
}

type stateMsg struct {
	track int
	state animation.State
}

type completedMsg struct {
	track int
}

// dispatcher forwards cell notifications to the program once one is attached.
type dispatcher struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

func (d *dispatcher) dispatch(msg tea.Msg) {
	d.mu.RLock()
	send := d.send
	d.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

type track struct {
	spec        TrackSpec
	handle      *animation.Handle
	value       float32
	state       animation.State
	completions int
}

// Model is the bubbletea model. It must be closed to stop the handles.
type Model struct {
	tracks []*track
	status string
	width  int
	d      *dispatcher
	unsub  []func()
}

var _ tea.Model = (*Model)(nil)

// NewModel creates a handle per track. The handles live until Close or
// until ctx is done.
func NewModel(ctx context.Context, opts Options) *Model {
	specs := opts.Tracks
	if specs == nil {
		specs = DefaultTracks()
	}
	curve := opts.Easing
	if curve == nil {
		curve = easing.Linear
	}

	m := &Model{d: &dispatcher{}}
	for i, spec := range specs {
		if opts.Duration > 0 {
			spec.Duration = opts.Duration
		}

		value := signal.New(spec.Initial)
		state := signal.New(animation.Idle)
		m.unsub = append(m.unsub,
			value.Subscribe(func(v float32) { m.d.dispatch(valueMsg{track: i, value: v}) }),
			state.Subscribe(func(s animation.State) { m.d.dispatch(stateMsg{track: i, state: s}) }),
		)

		mo := motion.New(spec.Initial).
			To(spec.Target).
			WithDuration(spec.Duration).
			WithEasing(curve).
			OnCompleteFunc(func() { m.d.dispatch(completedMsg{track: i}) })

		h := animation.UseMotion(ctx, mo,
			animation.WithTimeSource(opts.TimeSource),
			animation.WithTickInterval(opts.TickInterval),
			animation.WithValueCell(value),
			animation.WithStateCell(state),
			animation.WithRestartPolicy(opts.RestartPolicy),
		)
		m.tracks = append(m.tracks, &track{spec: spec, handle: h, value: spec.Initial})
	}
	return m
}

// Attach routes value, state and completion notifications to send,
// typically tea.Program.Send.
func (m *Model) Attach(send func(tea.Msg)) {
	m.d.mu.Lock()
	m.d.send = send
	m.d.mu.Unlock()
}

// Close detaches the model and stops every handle.
func (m *Model) Close() {
	m.Attach(nil)
	for _, unsub := range m.unsub {
		unsub()
	}
	for _, t := range m.tracks {
		t.handle.Close()
	}
}

func (m *Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, t := range m.tracks {
		if t.spec.AutoStart {
			h := t.handle
			cmds = append(cmds, func() tea.Msg {
				h.Start()
				return nil
			})
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "space", "enter":
			if len(m.tracks) > 0 {
				m.tracks[0].handle.Start()
			}
		case "a":
			for _, t := range m.tracks {
				t.handle.Start()
			}
		case "f":
			for _, t := range m.tracks {
				t.handle.Finish()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case valueMsg:
		if t := m.track(msg.track); t != nil {
			t.value = msg.value
		}

	case stateMsg:
		if t := m.track(msg.track); t != nil {
			t.state = msg.state
		}

	case completedMsg:
		if t := m.track(msg.track); t != nil {
			t.completions++
			if t.spec.CompleteMessage != "" {
				m.status = fmt.Sprintf("%s (run %d)", t.spec.CompleteMessage, t.completions)
			}
		}
	}
	return m, nil
}

func (m *Model) track(i int) *track {
	if i < 0 || i >= len(m.tracks) {
		return nil
	}
	return m.tracks[i]
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("motion"))
	b.WriteString("\n")

	barWidth := m.barWidth()
	for _, t := range m.tracks {
		p := progress(t.spec.Initial, t.spec.Target, t.value)
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(t.spec.Label),
			renderBar(p, barWidth),
			valueStyle.Render(fmt.Sprintf("%.3f", t.value)),
			"  ",
			renderState(t.state),
		)
		b.WriteString(row)
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(doneStyle.Render(m.status))
		b.WriteString("\n")
	}

	first := "first track"
	if len(m.tracks) > 0 {
		first = m.tracks[0].spec.Label
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("space/enter: start %s • a: start all • f: finish all • q: quit", first)))
	b.WriteString("\n")
	return b.String()
}

const defaultBarWidth = 40

func (m *Model) barWidth() int {
	if m.width == 0 {
		return defaultBarWidth
	}
	return max(10, min(60, m.width-40))
}

// progress maps value onto [0, 1] between from and to. Overshooting curves
// are clamped; a motion whose endpoints coincide is always full.
func progress(from, to, value float32) float64 {
	span := float64(to) - float64(from)
	if span == 0 {
		return 1
	}
	p := (float64(value) - float64(from)) / span
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

func renderBar(p float64, width int) string {
	filled := int(math.Round(p * float64(width)))
	return filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", width-filled))
}

func renderState(s animation.State) string {
	switch s {
	case animation.Running:
		return filledStyle.Render(s.String())
	case animation.Completed:
		return doneStyle.Render(s.String())
	default:
		return mutedStyle.Render(s.String())
	}
}
