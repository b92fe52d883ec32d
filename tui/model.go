// Package tui provides the Bubble Tea terminal UI for offliner, displaying
// live mirror progress and a styled summary of what was left remote.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/offliner/crawler"
	"github.com/lukemcguire/offliner/result"
)

// Model is the Bubble Tea model for the mirror TUI.
type Model struct {
	ctx             context.Context
	cancel          context.CancelFunc
	crawlerInstance *crawler.Crawler
	spinner         spinner.Model
	progressCh      <-chan crawler.CrawlEvent

	last     crawler.CrawlEvent
	stopping bool
	done     bool
	result   *result.Result
	err      error
	width    int
}

// NewModel creates a TUI model wired to the given crawler and progress channel.
func NewModel(ctx context.Context, cancel context.CancelFunc, crawlerInst *crawler.Crawler, progressCh <-chan crawler.CrawlEvent) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:             ctx,
		cancel:          cancel,
		crawlerInstance: crawlerInst,
		spinner:         spin,
		progressCh:      progressCh,
	}
}

// Init starts the spinner, the mirror run, and the progress listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startCrawl(), waitForProgress(m.progressCh))
}

// startCrawl returns a tea.Cmd that runs the crawler and sends CrawlDoneMsg.
func (m Model) startCrawl() tea.Cmd {
	return func() tea.Msg {
		res, err := m.crawlerInstance.Run(m.ctx)
		if err != nil {
			err = fmt.Errorf("mirror: %w", err)
		}
		return CrawlDoneMsg{Result: res, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.stopping {
				// second interrupt: leave without waiting for the ledger
				return m, tea.Quit
			}
			// The run winds down and saves its ledger before CrawlDoneMsg.
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case ProgressMsg:
		m.last = msg.Event
		return m, waitForProgress(m.progressCh)

	case CrawlDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done && m.result != nil {
		return RenderSummary(m.result)
	}
	if m.done && m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}

	status := "Mirroring..."
	if m.stopping {
		status = "Stopping, saving ledger..."
	}
	current := ""
	if m.last.URL != "" {
		current = fmt.Sprintf("%s %s %s", m.last.Kind, m.last.Status, m.last.URL)
	}
	return fmt.Sprintf("%s %s pages %d, stylesheets %d, images %d, not mirrored %d (%d requests)\n%s\n",
		m.spinner.View(), status,
		m.last.Pages, m.last.Styles, m.last.Images,
		m.last.Failed+m.last.Skipped, m.last.Fetches,
		dimStyle.Render("  "+current))
}

// HasFailures reports whether any resource was left remote.
func (m Model) HasFailures() bool {
	return m.result != nil && len(m.result.Failures) > 0
}

// GetResult returns the mirror result for report writing.
func (m Model) GetResult() *result.Result {
	return m.result
}

// Err returns the error the run ended with, if any.
func (m Model) Err() error {
	return m.err
}
