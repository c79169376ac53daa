package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/advisory"
	"github.com/roach88/nudge/internal/chart"
	"github.com/roach88/nudge/internal/config"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/session"
	"github.com/roach88/nudge/internal/sink"
	"github.com/roach88/nudge/internal/store"
	"github.com/roach88/nudge/internal/timeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Subjects string
	Config   string
	Database string
	Timeline string
	ChartURL string
	Advisory string
	Timezone string
	For      time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nudge engine for every subject",
		Long: `Start one session per subject in the subjects file. Each session polls the
chart service for the period timeline and evaluates the rule table on its own
schedule. Nudges are printed to stdout, one per line.

Flags override the matching config file settings.

Example:
  nudge run --subjects subjects.yaml
  nudge run --subjects subjects.yaml --config nudge.cue --db nudge.db
  nudge run --subjects subjects.yaml --timeline periods.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subjects, "subjects", "", "path to subjects YAML (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file (.cue, .json or .yaml)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (overrides store.path)")
	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", "serve the period timeline from a local YAML file instead of the chart service")
	cmd.Flags().StringVar(&opts.ChartURL, "chart-url", "", "chart service URL (overrides chart.url)")
	cmd.Flags().StringVar(&opts.Advisory, "advisory", "", "advisory gRPC address (overrides advisory.addr)")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "IANA timezone for windows and day keys (overrides timezone)")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long (0 runs until interrupted)")
	_ = cmd.MarkFlagRequired("subjects")

	return cmd
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(opts *RunOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.StorePath = opts.Database
	}
	if opts.ChartURL != "" {
		cfg.ChartURL = opts.ChartURL
	}
	if opts.Advisory != "" {
		cfg.AdvisoryAddr = opts.Advisory
	}
	if opts.Timezone != "" {
		loc, err := config.LoadLocation(opts.Timezone)
		if err != nil {
			return config.Config{}, fmt.Errorf("timezone: %w", err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	src := profile.NewFileSource(opts.Subjects)
	subjects, err := src.Subjects()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load subjects", err)
	}
	if len(subjects) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no subjects in %s", opts.Subjects))
	}

	deps := session.Deps{Profiles: src}

	switch {
	case opts.Timeline != "":
		periods, err := timeline.LoadFile(opts.Timeline)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load timeline", err)
		}
		deps.Fetcher = chart.Static(periods)
	case cfg.ChartURL != "":
		deps.Fetcher = chart.NewClient(cfg.ChartURL, nil)
	default:
		slog.Warn("no chart service or timeline configured, period transitions disabled")
	}

	if cfg.AdvisoryAddr != "" {
		client, err := advisory.NewClient(cfg.AdvisoryAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to advisory service", err)
		}
		defer client.Close()
		deps.Advisory = client
	}

	out := sink.NewWriter(cmd.OutOrStdout(), opts.Format, cfg.Location)
	var logSink engine.Sink = sink.Log{}
	if !opts.Verbose {
		logSink = nil
	}

	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		sessionID := store.NewSessionID()
		slog.Info("history enabled", "db", cfg.StorePath, "session", sessionID)
		if n, err := st.PruneFirings(context.Background(), sessionID); err != nil {
			slog.Warn("failed to prune old firings", "error", err)
		} else if n > 0 {
			slog.Debug("pruned firings from earlier sessions", "rows", n)
		}

		deps.Ledger = func(subjectID string) engine.Ledger {
			return st.Ledger(sessionID, subjectID)
		}
		deps.Sink = func(subjectID string) engine.Sink {
			return sinks(out, logSink, sink.Store{History: st, SessionID: sessionID, SubjectID: subjectID})
		}
	} else {
		deps.Sink = func(string) engine.Sink { return sinks(out, logSink) }
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.For > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.For)
		defer cancel()
	}

	mgr := session.NewManager(cfg, deps)
	defer mgr.Close()
	for _, sub := range subjects {
		if _, err := mgr.Start(ctx, sub.SubjectID); err != nil {
			return WrapExitError(ExitFailure, "failed to start session", err)
		}
	}

	slog.Info("engine started", "subjects", mgr.Subjects(), "timezone", cfg.Location.String())
	<-ctx.Done()
	slog.Info("engine stopping")
	return nil
}

func sinks(all ...engine.Sink) engine.Sink {
	var live []engine.Sink
	for _, s := range all {
		if s != nil {
			live = append(live, s)
		}
	}
	return sink.Multi(live...)
}
