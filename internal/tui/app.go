package tui

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   *Model
	opts    []tea.ProgramOption
}

// New creates a new TUI application. Extra program options are passed to
// tea.NewProgram; the default is the alternate screen.
func New(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) *App {
	if len(programOpts) == 0 {
		programOpts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &App{
		model: NewModel(ctx, opts),
		opts:  programOpts,
	}
}

// Run starts the TUI application and blocks until it quits. The handles are
// stopped on return.
func (a *App) Run() error {
	defer a.model.Close()

	a.program = tea.NewProgram(a.model, a.opts...)
	a.model.Attach(a.program.Send)

	// Quit cleanly on termination signals as well as on q / ctrl+c
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		if _, ok := <-sigChan; ok {
			a.program.Send(tea.Quit())
		}
	}()

	_, err := a.program.Run()
	ossignal.Stop(sigChan)
	close(sigChan)
	return err
}
