// Package cmd implements the offliner command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukemcguire/offliner/config"
)

type options struct {
	configPath  string
	out         string
	root        string
	concurrency int
	rateLimit   int
	timeout     time.Duration
	retries     int
	fresh       bool
	noTUI       bool
	report      string
	logLevel    string
	userAgent   string
}

// NewRootCmd builds the offliner command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "offliner",
		Short: "Mirror the OpenSCAD documentation for offline reading",
		Long: "Offliner downloads the OpenSCAD user manual and its cheat sheet, with their\n" +
			"stylesheets and images, and rewrites every link so the copy can be browsed\n" +
			"from disk. Progress is kept in a ledger; re-running resumes where the last\n" +
			"run stopped.",
		Example: `  # Mirror the manual into ./openscad_docs
  offliner

  # Start from the manual instead of the cheat sheet, four fetches at a time
  offliner --root https://en.wikibooks.org/wiki/OpenSCAD_User_Manual --concurrency 4

  # Ignore the ledger and write a failure report
  offliner --fresh --report failures.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(c, opts)
			if err != nil {
				return err
			}
			return run(c.Context(), c.OutOrStdout(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (default: built-in OpenSCAD profile)")
	flags.StringVarP(&opts.out, "out", "o", defaults.OutputDir, "Output directory")
	flags.StringVar(&opts.root, "root", defaults.RootURL, "Root page to mirror from")
	flags.IntVarP(&opts.concurrency, "concurrency", "p", defaults.Fetch.Concurrency, "Maximum concurrent fetches")
	flags.IntVar(&opts.rateLimit, "rate-limit", defaults.Fetch.RateLimit, "Requests per second (0 = unlimited)")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Fetch.RequestTimeout.Duration, "Per-request timeout")
	flags.IntVar(&opts.retries, "retries", defaults.Fetch.MaxRetries, "Retries for transient fetch errors")
	flags.BoolVar(&opts.fresh, "fresh", false, "Ignore the existing ledger and mirror everything again")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "Log progress instead of showing the interactive display")
	flags.StringVar(&opts.report, "report", "", "Write resources left remote to a .json or .csv file")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "Log level: debug, info, warn, error")
	flags.StringVar(&opts.userAgent, "user-agent", defaults.Fetch.UserAgent, "User-Agent header")

	return cmd
}

// resolveConfig loads the configuration file and applies the flags the user
// set explicitly on top of it.
func resolveConfig(c *cobra.Command, opts *options) (config.Config, error) {
	loaded, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg := *loaded

	flags := c.Flags()
	if flags.Changed("out") {
		cfg.OutputDir = opts.out
	}
	if flags.Changed("root") {
		cfg.RootURL = opts.root
	}
	if flags.Changed("concurrency") {
		cfg.Fetch.Concurrency = opts.concurrency
	}
	if flags.Changed("rate-limit") {
		cfg.Fetch.RateLimit = opts.rateLimit
	}
	if flags.Changed("timeout") {
		cfg.Fetch.RequestTimeout = config.DurationFrom(opts.timeout)
	}
	if flags.Changed("retries") {
		cfg.Fetch.MaxRetries = opts.retries
	}
	if flags.Changed("fresh") {
		cfg.Fresh = opts.fresh
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("user-agent") {
		cfg.Fetch.UserAgent = opts.userAgent
	}

	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
