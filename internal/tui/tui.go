// Package tui renders the live progress display for a run: one row per
// task, refreshed from the progress tracker on a timer. The engine
// never talks to the display; it only writes to the tracker.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pengelbrecht/weft/internal/progress"
)

// DefaultRefreshInterval is used when no interval is configured.
const DefaultRefreshInterval = 250 * time.Millisecond

// keyMap defines the keybindings for the display.
type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

var defaultKeyMap = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "cancel run"),
	),
}

// Message types sent into the display from outside.
type (
	// tickMsg drives the periodic tracker snapshot.
	tickMsg time.Time

	// DoneMsg signals the run finished; the display takes one final
	// snapshot and exits.
	DoneMsg struct{}
)

// Model is the Bubble Tea model for the run display.
type Model struct {
	tracker  *progress.Tracker
	project  string
	interval time.Duration

	spinner spinner.Model
	help    help.Model
	keys    keyMap

	entries  []progress.Entry
	start    time.Time
	width    int
	done     bool
	quitting bool
}

// New creates a display over the given tracker.
func New(tracker *progress.Tracker, project string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	return Model{
		tracker:  tracker,
		project:  project,
		interval: interval,
		spinner:  sp,
		help:     help.New(),
		keys:     defaultKeyMap,
		start:    time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.entries = m.tracker.Snapshot()
		if m.done {
			return m, tea.Quit
		}
		return m, m.tick()

	case DoneMsg:
		// One more tick so the final statuses render before exit.
		m.done = true
		m.entries = m.tracker.Snapshot()
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Quitting reports whether the user cancelled the run from the display.
func (m Model) Quitting() bool {
	return m.quitting
}

// Run executes fn under the live display. The display exits when fn
// returns; quitting the display cancels fn's context. Returns fn's
// result and whether the user cancelled.
func Run[T any](ctx context.Context, m Model, fn func(context.Context) (T, error)) (T, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(m, tea.WithContext(ctx))

	type outcome struct {
		val T
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		resCh <- outcome{val, err}
		p.Send(DoneMsg{})
	}()

	final, uiErr := p.Run()
	cancelled := false
	if fm, ok := final.(Model); ok && fm.Quitting() {
		cancelled = true
	}
	cancel()

	res := <-resCh
	if res.err == nil && uiErr != nil && !cancelled {
		res.err = fmt.Errorf("display: %w", uiErr)
	}
	return res.val, cancelled, res.err
}
