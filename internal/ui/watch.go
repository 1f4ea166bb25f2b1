package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/gpustat/internal/monitor"
)

// SpinnerFrames is the refresh indicator animation (◐ ◓ ◑ ◒).
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

// PollFunc runs one poll for the watch dashboard.
type PollFunc func(ctx context.Context) monitor.PollResult

// pollDoneMsg carries a finished poll back into the model.
type pollDoneMsg struct {
	result monitor.PollResult
	at     time.Time
}

// refreshMsg starts the next poll.
type refreshMsg struct{}

// WatchModel is a Bubble Tea model that re-polls on an interval and shows
// the latest result.
type WatchModel struct {
	poll     PollFunc
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	spinner spinner.Model
	polling bool
	result  monitor.PollResult
	updated time.Time
	polls   int
	width   int
}

// NewWatchModel creates a dashboard that calls poll every interval.
func NewWatchModel(poll PollFunc, interval time.Duration) WatchModel {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	ctx, cancel := context.WithCancel(context.Background())
	return WatchModel{
		poll:     poll,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		spinner:  sp,
	}
}

// Init starts the first poll and the spinner.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return refreshMsg{} })
}

// Update handles key presses, poll results and refresh ticks.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "r":
			if m.polling {
				return m, nil
			}
			return m.startPoll()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case refreshMsg:
		if m.polling {
			return m, nil
		}
		return m.startPoll()

	case pollDoneMsg:
		m.polling = false
		m.result = msg.result
		m.updated = msg.at
		m.polls++
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) startPoll() (tea.Model, tea.Cmd) {
	m.polling = true
	poll, ctx := m.poll, m.ctx
	return m, func() tea.Msg {
		result := poll(ctx)
		return pollDoneMsg{result: result, at: time.Now()}
	}
}

// View renders the header, the latest result and the key help.
func (m WatchModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorInfo)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("gpustat"))
	if !m.updated.IsZero() {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %d/%d ok  updated %s  every %s",
			m.result.Succeeded(), len(m.result), m.updated.Format("15:04:05"), m.interval)))
	}
	if m.polling {
		sb.WriteString("  " + m.spinner.View())
	}
	sb.WriteString("\n\n")

	if m.polls == 0 {
		sb.WriteString(mutedStyle.Render("  " + SymbolPending + " Polling hosts..."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(RenderPollTable(m.result))
	}

	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("q quit  r refresh"))
	sb.WriteString("\n")
	return sb.String()
}

// Result returns the most recent poll result.
func (m WatchModel) Result() monitor.PollResult {
	return m.result
}

// Polls returns how many polls have completed.
func (m WatchModel) Polls() int {
	return m.polls
}
