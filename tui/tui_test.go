package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/offliner/config"
	"github.com/lukemcguire/offliner/crawler"
	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
)

func newTestCrawler(t *testing.T, progressCh chan crawler.CrawlEvent) *crawler.Crawler {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cr, err := crawler.New(cfg, ledger.New(), nil, progressCh)
	if err != nil {
		t.Fatalf("crawler.New() error: %v", err)
	}
	return cr
}

func sampleFailures() []result.Failure {
	return []result.Failure{
		{URL: "https://example.com/dead", Kind: "page", StatusCode: 404, ErrorCategory: result.Category4xx, SourcePage: "https://example.com"},
		{URL: "https://example.com/slow.css", Kind: "style", Error: "connection refused", ErrorCategory: result.CategoryConnectionRefused, SourcePage: "https://example.com/about"},
	}
}

func TestNewModel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progressCh := make(chan crawler.CrawlEvent, 10)
	cr := newTestCrawler(t, progressCh)

	model := NewModel(ctx, cancel, cr, progressCh)

	if model.ctx != ctx {
		t.Error("expected ctx to be stored in model")
	}
	if model.cancel == nil {
		t.Error("expected cancel to be stored in model")
	}
	if model.crawlerInstance != cr {
		t.Error("expected crawler instance to be stored in model")
	}
	if model.progressCh != progressCh {
		t.Error("expected progressCh to be stored in model")
	}
	if model.last.Pages != 0 || model.last.Failed != 0 {
		t.Error("expected initial counters to be zero")
	}
	if model.done || model.stopping {
		t.Error("expected done and stopping to be false initially")
	}
}

func TestHasFailures(t *testing.T) {
	tests := []struct {
		name   string
		result *result.Result
		want   bool
	}{
		{name: "nil result", result: nil, want: false},
		{name: "no failures", result: &result.Result{Failures: []result.Failure{}}, want: false},
		{name: "has failures", result: &result.Result{Failures: sampleFailures()}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := Model{result: tt.result}
			if got := model.HasFailures(); got != tt.want {
				t.Errorf("HasFailures() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetResultAndErr(t *testing.T) {
	res := &result.Result{Failures: sampleFailures()}
	model := Model{result: res, err: context.Canceled}
	if model.GetResult() != res {
		t.Error("GetResult() did not return the stored result")
	}
	if model.Err() != context.Canceled {
		t.Errorf("Err() = %v", model.Err())
	}
}

func TestRenderSummary_NilResult(t *testing.T) {
	if RenderSummary(nil) == "" {
		t.Error("expected non-empty output for nil result")
	}
}

func TestRenderSummary_EverythingMirrored(t *testing.T) {
	res := &result.Result{
		Stats: result.CrawlStats{
			Pages:    result.KindStats{Saved: 10},
			Styles:   result.KindStats{Saved: 2},
			Images:   result.KindStats{Saved: 7},
			Fetches:  19,
			Duration: 2 * time.Second,
		},
	}
	output := RenderSummary(res)
	for _, want := range []string{"Everything mirrored", "10 pages", "2 stylesheets", "7 images", "19 requests"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "Interrupted") {
		t.Errorf("completed run shown as interrupted: %s", output)
	}
}

func TestRenderSummary_WithFailures(t *testing.T) {
	res := &result.Result{
		Failures: sampleFailures(),
		Stats: result.CrawlStats{
			Pages:    result.KindStats{Saved: 4, Failed: 1},
			Styles:   result.KindStats{Failed: 1},
			Duration: 3 * time.Second,
		},
	}
	output := RenderSummary(res)
	for _, want := range []string{
		"example.com/dead", "404", "connection refused", "style",
		"Client Errors (4xx)", "2 not mirrored",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRenderSummary_Cancelled(t *testing.T) {
	output := RenderSummary(&result.Result{Cancelled: true})
	if !strings.Contains(output, "Interrupted") {
		t.Errorf("expected interrupted note, got: %s", output)
	}
}

func TestInit_ReturnsBatchCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progressCh := make(chan crawler.CrawlEvent, 10)
	model := NewModel(ctx, cancel, newTestCrawler(t, progressCh), progressCh)
	if model.Init() == nil {
		t.Error("Init() should return a non-nil batch command")
	}
}

func TestUpdate_ProgressMsg(t *testing.T) {
	model := Model{progressCh: make(chan crawler.CrawlEvent, 10)}

	evt := crawler.CrawlEvent{
		Kind:    ledger.KindPage,
		Status:  ledger.StatusSaved,
		URL:     "https://example.com/page",
		Pages:   5,
		Failed:  1,
		Fetches: 9,
	}
	updatedModel, cmd := model.Update(ProgressMsg{Event: evt})
	updated := updatedModel.(Model)

	if updated.last.Pages != 5 || updated.last.Failed != 1 {
		t.Errorf("counters not updated: %+v", updated.last)
	}
	if updated.last.URL != "https://example.com/page" {
		t.Errorf("expected current URL to be set, got %s", updated.last.URL)
	}
	if cmd == nil {
		t.Error("expected non-nil cmd to re-subscribe to progress channel")
	}
}

func TestUpdate_CrawlDoneMsg(t *testing.T) {
	res := &result.Result{Failures: sampleFailures()}

	updatedModel, cmd := Model{}.Update(CrawlDoneMsg{Result: res})
	updated := updatedModel.(Model)

	if !updated.done {
		t.Error("expected done=true after CrawlDoneMsg")
	}
	if updated.result != res {
		t.Error("expected result to be stored")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit after CrawlDoneMsg")
	}
}

func TestUpdate_InterruptWaitsForLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := Model{ctx: ctx, cancel: cancel}

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	updated := updatedModel.(Model)
	if !updated.stopping {
		t.Error("expected stopping after first interrupt")
	}
	if ctx.Err() == nil {
		t.Error("expected context to be cancelled")
	}
	if cmd != nil {
		t.Error("first interrupt should not quit before the run finishes")
	}
	if !strings.Contains(updated.View(), "Stopping") {
		t.Errorf("expected stopping view, got: %s", updated.View())
	}

	_, cmd = updated.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("second interrupt should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit on second interrupt")
	}
}

func TestUpdate_SpinnerTickMsg(t *testing.T) {
	updatedModel, _ := Model{}.Update(spinner.TickMsg{})
	_ = updatedModel.(Model) // should not panic
}

func TestUpdate_WindowSizeMsg(t *testing.T) {
	updatedModel, _ := Model{}.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if updated := updatedModel.(Model); updated.width != 120 {
		t.Errorf("expected width=120, got %d", updated.width)
	}
}

func TestView_InProgress(t *testing.T) {
	model := Model{last: crawler.CrawlEvent{
		Kind:   ledger.KindImage,
		Status: ledger.StatusSaved,
		URL:    "https://example.com/logo.png",
		Pages:  3,
		Images: 4,
	}}
	output := model.View()
	for _, want := range []string{"Mirroring", "pages 3", "images 4", "image saved https://example.com/logo.png"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in progress view, got: %s", want, output)
		}
	}
}

func TestView_DoneWithResult(t *testing.T) {
	model := Model{
		done:   true,
		result: &result.Result{Stats: result.CrawlStats{Duration: time.Second}},
	}
	if output := model.View(); !strings.Contains(output, "Everything mirrored") {
		t.Errorf("expected success message in done view, got: %s", output)
	}
}

func TestView_DoneWithError(t *testing.T) {
	model := Model{done: true, err: context.Canceled}
	if output := model.View(); !strings.Contains(output, "Error") {
		t.Errorf("expected error message in done view, got: %s", output)
	}
}
