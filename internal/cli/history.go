package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Subject  string
	Session  string
	Rule     string
	Since    string
	Limit    int
}

// HistoryEntry is one stored nudge in command output.
type HistoryEntry struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	SubjectID string `json:"subjectId"`
	Rule      string `json:"rule"`
	Key       string `json:"key,omitempty"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	TTLMs     int64  `json:"ttlMs"`
	At        string `json:"at"`
	Seq       int64  `json:"seq"`
	Digest    string `json:"digest"`
}

// HistoryResult is the history command's payload.
type HistoryResult struct {
	Nudges []HistoryEntry `json:"nudges"`
}

func (r HistoryResult) String() string {
	if len(r.Nudges) == 0 {
		return "No nudges recorded."
	}
	var b strings.Builder
	for _, n := range r.Nudges {
		fmt.Fprintf(&b, "%s  %-8s %-20s [%s] %s: %s\n", n.At, n.SubjectID, n.Rule, n.Kind, n.Title, n.Message)
	}
	fmt.Fprintf(&b, "%d nudge(s)", len(r.Nudges))
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List displayed nudges from the history database",
		Long: `List nudges recorded by "nudge run --db", oldest first.

Example:
  nudge history --db nudge.db
  nudge history --db nudge.db --subject s1 --rule daily_transit --limit 20
  nudge history --db nudge.db --since 2026-10-01T00:00:00Z --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only this subject")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only this engine session")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only this rule")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only nudges displayed at or after this RFC 3339 time")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of nudges (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Open would create a missing database; history must only read one.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	q := store.Query{
		SubjectID: opts.Subject,
		SessionID: opts.Session,
		Rule:      opts.Rule,
		Limit:     opts.Limit,
	}
	if opts.Since != "" {
		since, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		q.Since = since
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := st.History(ctx, q)
	if err != nil {
		if ferr := formatter.Error(ErrCodeStore, "history query failed", err.Error()); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "history query failed", err)
	}
	slog.Debug("read history", "db", opts.Database, "records", len(records))

	result := HistoryResult{Nudges: make([]HistoryEntry, len(records))}
	for i, r := range records {
		result.Nudges[i] = HistoryEntry{
			ID:        r.ID,
			SessionID: r.SessionID,
			SubjectID: r.SubjectID,
			Rule:      r.Rule,
			Key:       r.Key,
			Kind:      string(r.Kind),
			Title:     r.Title,
			Message:   r.Message,
			TTLMs:     r.TTL.Milliseconds(),
			At:        r.At.UTC().Format(time.RFC3339),
			Seq:       r.Seq,
			Digest:    r.Digest,
		}
	}
	return formatter.Success(result)
}
