package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shawcc/trumpsword/internal/collector"
	"github.com/shawcc/trumpsword/internal/server"
)

// CollectSummary is the output of collect and historical.
type CollectSummary struct {
	TotalProcessed int      `json:"total_processed"`
	Dropped        int      `json:"dropped"`
	Errors         []string `json:"errors"`
}

func (s CollectSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d items (%d dropped, %d errors)", s.TotalProcessed, s.Dropped, len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\n  - %s", e)
	}
	return b.String()
}

// RetrySummary is the output of retry.
type RetrySummary struct {
	SuccessCount int      `json:"successCount"`
	FailCount    int      `json:"failCount"`
	Errors       []string `json:"errors"`
}

func (s RetrySummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Retried %d events: %d synced, %d failed", s.SuccessCount+s.FailCount, s.SuccessCount, s.FailCount)
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\n  - %s", e)
	}
	return b.String()
}

func summarize(r collector.Result) CollectSummary {
	return CollectSummary{TotalProcessed: r.Added, Dropped: r.Dropped, Errors: r.Errors}
}

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// NewCollectCommand creates the collect command.
func NewCollectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Collect the latest items from every source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				res, err := app.Collector.CollectAll(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "collection failed", err)
				}
				return opts.formatter(cmd).Success(summarize(res))
			})
		},
	}
}

// NewHistoricalCommand creates the historical command.
func NewHistoricalCommand(opts *RootOptions) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "historical",
		Short: "Backfill every source from a date",
		Long: `Crawl each source back to --since. Every source caps its crawl at
sources.max_pages pages with sources.page_delay between pages.

Example:
  trumpsword historical --since 2025-01-20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since == "" {
				return NewExitError(ExitCommandError, "--since is required")
			}
			date, err := time.Parse(server.DateLayout, since)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --since (want YYYY-MM-DD)", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				res, err := app.Collector.CollectHistorical(ctx, date)
				if err != nil {
					return WrapExitError(ExitFailure, "historical collection failed", err)
				}
				return opts.formatter(cmd).Success(summarize(res))
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "earliest date to collect (YYYY-MM-DD)")
	return cmd
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry external sync for events that have not synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				res, err := app.Collector.RetryPending(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "retry failed", err)
				}
				return opts.formatter(cmd).Success(RetrySummary{
					SuccessCount: res.SuccessCount,
					FailCount:    res.FailCount,
					Errors:       res.Errors,
				})
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every event, process and history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "reset deletes all events; pass --yes to confirm")
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				n, err := app.Collector.Reset(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "reset failed", err)
				}
				return opts.formatter(cmd).Success(fmt.Sprintf("Deleted %d events", n))
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
