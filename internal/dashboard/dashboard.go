// Package dashboard renders the event bus to the terminal: a
// lipgloss-styled panel (New), or a single-line stderr fallback
// (StderrFallback) for --no-dashboard runs.
package dashboard

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/cliengineer/cliengineer/internal/events"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Dashboard subscribes to a bus and renders a running panel to w until
// the subscription channel closes or Stop is called.
type Dashboard struct {
	w      io.Writer
	ch     <-chan events.Event
	stop   chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	goal   string
	status string
}

// New subscribes to bus and starts rendering to w in a background
// goroutine. Call Stop to end rendering.
func New(bus *events.Bus, w io.Writer) *Dashboard {
	d := &Dashboard{
		w:    w,
		ch:   bus.Subscribe(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dashboard) run() {
	defer close(d.done)
	fmt.Fprintln(d.w, headerStyle.Render("cli_engineer"))
	for {
		select {
		case <-d.stop:
			return
		case e, ok := <-d.ch:
			if !ok {
				return
			}
			d.render(e)
		}
	}
}

func (d *Dashboard) render(e events.Event) {
	switch e.Kind {
	case events.KindTaskStarted:
		d.mu.Lock()
		d.goal = e.TaskGoal
		d.mu.Unlock()
		fmt.Fprintln(d.w, headerStyle.Render("task: ")+e.TaskGoal)
	case events.KindTaskProgress:
		bar := renderBar(e.Progress)
		fmt.Fprintln(d.w, dimStyle.Render(bar))
	case events.KindAPICallStarted:
		fmt.Fprintln(d.w, dimStyle.Render(fmt.Sprintf("calling %s (%s)...", e.Provider, e.Model)))
	case events.KindAPICallCompleted:
		fmt.Fprintln(d.w, okStyle.Render(fmt.Sprintf("  %s responded: %d tokens, $%.4f", e.Provider, e.Tokens, e.Cost)))
	case events.KindAPIError:
		fmt.Fprintln(d.w, warnStyle.Render(fmt.Sprintf("  %s error: %v", e.Provider, e.Err)))
	case events.KindArtifactCreated:
		fmt.Fprintln(d.w, okStyle.Render(fmt.Sprintf("  wrote %s (%s)", e.ArtifactPath, e.ArtifactType)))
	case events.KindContextCompression:
		fmt.Fprintln(d.w, dimStyle.Render(fmt.Sprintf("  compressed context: %d -> %d tokens", e.OriginalSize, e.CompressedSize)))
	case events.KindTaskCompleted:
		fmt.Fprintln(d.w, okStyle.Render("done: ")+e.Summary)
	case events.KindTaskFailed:
		fmt.Fprintln(d.w, errStyle.Render("failed: ")+e.Summary)
	}
}

func renderBar(progress float64) string {
	const width = 20
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("=", filled), strings.Repeat(" ", width-filled), progress*100)
}

// Stop ends rendering and waits for the background goroutine to exit.
func (d *Dashboard) Stop() {
	close(d.stop)
	<-d.done
}

// StderrFallback renders a minimal one-line-per-terminal-event feed to
// w for --no-dashboard runs: only task lifecycle and failures.
func StderrFallback(bus *events.Bus, w io.Writer) func() {
	ch := bus.Subscribe()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				switch e.Kind {
				case events.KindTaskStarted:
					fmt.Fprintf(w, "cli_engineer: %s\n", e.TaskGoal)
				case events.KindTaskCompleted:
					fmt.Fprintf(w, "cli_engineer: done: %s\n", e.Summary)
				case events.KindTaskFailed:
					fmt.Fprintf(w, "cli_engineer: failed: %s\n", e.Summary)
				}
			}
		}
	}()
	return func() { close(stop) }
}
