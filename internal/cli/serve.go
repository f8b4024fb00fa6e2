package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/shawcc/trumpsword/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port     int
	Schedule string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the collection scheduler",
		Long: `Start the HTTP API and run a collection on the configured cron schedule
(hourly by default).

Example:
  trumpsword serve --config ./trumpsword.yaml
  trumpsword serve --db /tmp/events.db --port 8080 --schedule "*/30 * * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", `collection cron spec (overrides config, "off" disables)`)

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	app, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("error closing app", "error", closeErr)
		}
	}()

	if opts.Port > 0 {
		app.Config.Server.Port = opts.Port
	}
	schedule := app.Config.Server.Schedule
	switch opts.Schedule {
	case "":
	case "off":
		schedule = ""
	default:
		schedule = opts.Schedule
	}

	var sched *cron.Cron
	if schedule != "" {
		sched = cron.New()
		_, err := sched.AddFunc(schedule, func() {
			slog.Info("scheduled collection starting")
			res, err := app.Collector.CollectAll(ctx)
			if err != nil {
				slog.Error("scheduled collection failed", "error", err)
				return
			}
			slog.Info("scheduled collection finished", "added", res.Added, "errors", len(res.Errors))
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid schedule", err)
		}
		sched.Start()
		slog.Info("collection scheduled", "spec", schedule)
	}

	srv := &http.Server{
		Addr:         app.Config.Addr(),
		Handler:      server.New(app.Store, app.Collector, app.Engine, server.WithMetrics(app.Metrics)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // historical crawls run inside the request
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Server ready on %s\n", srv.Addr)

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	}

	if sched != nil {
		<-sched.Stop().Done()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
