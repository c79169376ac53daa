package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/poller"
	"github.com/roach88/nudge/internal/timeline"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Policy  string
	Now     string
	Horizon int
}

// ScanResult is the outcome of one boundary scan.
type ScanResult struct {
	Found         bool      `json:"found"`
	Label         string    `json:"label,omitempty"`
	Depth         string    `json:"depth,omitempty"`
	BoundaryTime  time.Time `json:"boundaryTime,omitzero"`
	DaysRemaining int       `json:"daysRemaining,omitempty"`
	Now           time.Time `json:"now"`
	HorizonDays   int       `json:"horizonDays"`
}

func (r ScanResult) String() string {
	if !r.Found {
		return fmt.Sprintf("No period boundary within %d days of %s", r.HorizonDays, r.Now.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (%s) ends %s, in %d days",
		r.Label, r.Depth, r.BoundaryTime.Format(time.RFC3339), r.DaysRemaining)
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <timeline-file>",
		Short: "Find the next period boundary in a timeline",
		Long: `Validate a period timeline and report the next boundary the poller would
announce, with the same day rounding.

Exit codes:
  0 - Timeline is well formed
  1 - Timeline has malformed periods
  2 - Command error (unreadable file, bad flags)

Example:
  nudge scan periods.yaml
  nudge scan periods.yaml --now 2026-10-15T12:00:00Z --policy earliest`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Policy, "policy", string(timeline.PolicyFirstListed), "boundary policy (first-listed|earliest)")
	cmd.Flags().StringVar(&opts.Now, "now", "", "scan from this RFC 3339 time instead of the current time")
	cmd.Flags().IntVar(&opts.Horizon, "horizon-days", int(poller.DefaultHorizon/(24*time.Hour)), "look-ahead window in days")

	return cmd
}

func runScan(opts *ScanOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	policy, err := timeline.ParsePolicy(opts.Policy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --policy", err)
	}
	if opts.Horizon <= 0 {
		return NewExitError(ExitCommandError, "--horizon-days must be positive")
	}
	now := time.Now().UTC()
	if opts.Now != "" {
		if now, err = time.Parse(time.RFC3339, opts.Now); err != nil {
			return WrapExitError(ExitCommandError, "invalid --now", err)
		}
	}

	periods, err := timeline.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load timeline", err)
	}
	slog.Debug("loaded timeline", "path", path, "periods", len(periods))

	if errs := timeline.Validate(periods); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		if err := formatter.Error(ErrCodeTimeline, fmt.Sprintf("%d malformed period(s)", len(errs)), msgs); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "timeline is malformed")
	}

	horizon := time.Duration(opts.Horizon) * 24 * time.Hour
	result := ScanResult{Now: now, HorizonDays: opts.Horizon}
	if t, ok := (timeline.Scanner{Policy: policy}).Scan(periods, now, now.Add(horizon)); ok {
		result.Found = true
		result.Label = t.Label
		result.Depth = string(t.Depth)
		result.BoundaryTime = t.BoundaryTime
		result.DaysRemaining = poller.DaysUntil(now, t.BoundaryTime)
	}
	return formatter.Success(result)
}
