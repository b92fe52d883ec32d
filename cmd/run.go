package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"charm.land/log/v2"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/offliner/config"
	"github.com/lukemcguire/offliner/crawler"
	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
	"github.com/lukemcguire/offliner/tui"
)

// LogFile receives the engine's log while the interactive display owns the
// terminal.
const LogFile = "offliner.log"

// ErrInterrupted is returned when the run was stopped before finishing.
var ErrInterrupted = errors.New("mirror interrupted; run again to resume")

func run(ctx context.Context, stdout io.Writer, cfg config.Config, opts *options) error {
	var (
		res *result.Result
		err error
	)
	if !opts.noTUI && tui.IsTTY() {
		res, err = runWithTUI(ctx, cfg)
	} else {
		res, err = runWithLogs(ctx, stdout, cfg)
	}
	if err != nil {
		return err
	}

	if opts.report != "" {
		if err := writeReport(opts.report, res.Failures); err != nil {
			return err
		}
	}
	// Resources left remote are reported, not treated as a failed run.
	if res.Cancelled {
		return ErrInterrupted
	}
	return nil
}

// newLogger builds a slog front end over a charm logger writing to w.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
	return slog.New(handler), nil
}

func runWithTUI(ctx context.Context, cfg config.Config) (*result.Result, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	logger, err := newLogger(logFile, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	progressCh := make(chan crawler.CrawlEvent, 100)
	c, err := crawler.New(cfg, ledger.New(), logger, progressCh)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewModel(runCtx, cancel, c, progressCh)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	final, _ := finalModel.(tui.Model)
	if final.Err() != nil {
		return nil, final.Err()
	}
	res := final.GetResult()
	if res == nil {
		return nil, ErrInterrupted
	}
	return res, nil
}

func runWithLogs(ctx context.Context, stdout io.Writer, cfg config.Config) (*result.Result, error) {
	logger, err := newLogger(os.Stderr, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	progressCh := make(chan crawler.CrawlEvent, 100)
	c, err := crawler.New(cfg, ledger.New(), logger, progressCh)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range progressCh {
			if evt.Status == ledger.StatusSaved {
				logger.Info("saved", "kind", evt.Kind, "url", evt.URL, "file", evt.LocalName)
			}
		}
	}()

	res, err := c.Run(ctx)
	close(progressCh)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}

	result.PrintResults(stdout, res)
	return res, nil
}

// writeReport writes failures to path, as CSV when the extension is .csv and
// JSON otherwise.
func writeReport(path string, failures []result.Failure) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = result.WriteCSV(f, failures)
	} else {
		err = result.WriteJSON(f, failures)
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close report: %w", closeErr)
	}
	return err
}
