package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/config"
	"github.com/roach88/nudge/internal/rules"
)

// RuleSummary describes one rule's resolved settings.
type RuleSummary struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Cadence string `json:"cadence"`
	Window  string `json:"window"`
}

// ConfigSummary is the validate command's payload.
type ConfigSummary struct {
	Valid         bool          `json:"valid"`
	Timezone      string        `json:"timezone"`
	PollInterval  string        `json:"pollInterval"`
	EvalInterval  string        `json:"evalInterval"`
	HorizonDays   int           `json:"horizonDays"`
	ScannerPolicy string        `json:"scannerPolicy"`
	Rules         []RuleSummary `json:"rules"`
}

func (s ConfigSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ config valid (timezone %s, poll every %s, evaluate every %s, horizon %d days, %s policy)\n",
		s.Timezone, s.PollInterval, s.EvalInterval, s.HorizonDays, s.ScannerPolicy)
	for _, r := range s.Rules {
		state := "on "
		if !r.Enabled {
			state = "off"
		}
		fmt.Fprintf(&b, "  %s %-20s cadence %-6s window %s\n", state, r.Name, r.Cadence, r.Window)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate an engine config file",
		Long: `Check a config file (.cue, .json, .yaml) against the engine schema and print
the resolved settings. Errors point at the offending line.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (file not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "config file not found", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		details := map[string]any{"file": path}
		message := err.Error()
		var cerr *config.CompileError
		if errors.As(err, &cerr) {
			message = cerr.Message
			details["field"] = cerr.Field
			if cerr.Pos.IsValid() {
				details["file"] = cerr.Pos.Filename()
				details["line"] = cerr.Pos.Line()
				details["column"] = cerr.Pos.Column()
			}
			if opts.Format != "json" {
				message = cerr.Error()
			}
		}
		if ferr := formatter.Error(ErrCodeConfig, message, details); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "config is invalid")
	}

	summary := ConfigSummary{
		Valid:         true,
		Timezone:      cfg.Location.String(),
		PollInterval:  cfg.PollInterval.String(),
		EvalInterval:  cfg.EvalInterval.String(),
		HorizonDays:   int(cfg.Horizon.Hours() / 24),
		ScannerPolicy: string(cfg.ScannerPolicy),
	}
	for _, name := range rules.Names {
		set := cfg.Rules.Get(name)
		cadence := "event"
		if set.Cadence > 0 {
			cadence = set.Cadence.String()
		}
		summary.Rules = append(summary.Rules, RuleSummary{
			Name:    name,
			Enabled: set.Enabled,
			Cadence: cadence,
			Window:  set.Window.String(),
		})
	}
	return formatter.Success(summary)
}
