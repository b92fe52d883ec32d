package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/offliner/crawler"
	"github.com/lukemcguire/offliner/result"
)

// ProgressMsg carries one mirror event and its running totals.
type ProgressMsg struct {
	Event crawler.CrawlEvent
}

// CrawlDoneMsg signals the mirror run has completed.
type CrawlDoneMsg struct {
	Result *result.Result
	Err    error
}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. A closed channel yields nil; the run's result arrives separately
// from startCrawl.
func waitForProgress(ch <-chan crawler.CrawlEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg{Event: evt}
	}
}
