package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/store"
	"github.com/shawcc/trumpsword/internal/workflow"
)

const listTimeLayout = "2006-01-02 15:04"

// EventList is the output of the events command.
type EventList struct {
	Events []domain.Event `json:"events"`
	Total  int            `json:"total"`
}

func (l EventList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d events", l.Total)
	for _, e := range l.Events {
		fmt.Fprintf(&b, "\n%s  %-12s %-8s %.2f  %s  %s",
			e.EventDate.Format(listTimeLayout), e.Type, e.SyncStatus, e.ConfidenceScore, e.ExternalID, e.Title)
	}
	return b.String()
}

// ProcessList is the output of the processes command.
type ProcessList struct {
	Processes []domain.ProcessView `json:"processes"`
	Total     int                  `json:"total"`
}

func (l ProcessList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d processes", l.Total)
	for _, p := range l.Processes {
		fmt.Fprintf(&b, "\n%s  %-9s %-20s %s", p.ID, p.Status, p.CurrentNode, p.EventTitle)
	}
	return b.String()
}

// TemplateList is the output of the templates command.
type TemplateList []domain.WorkflowTemplate

func (l TemplateList) String() string {
	var b strings.Builder
	for i, t := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-12s %s: %s", t.Type, t.Name, strings.Join(t.Nodes, " -> "))
	}
	return b.String()
}

type pageFlags struct {
	page, limit int
}

func (p *pageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&p.limit, "limit", store.DefaultPageLimit, "page size")
}

func (p pageFlags) toPage() (store.Page, error) {
	if p.page < 1 || p.limit < 1 {
		return store.Page{}, NewExitError(ExitCommandError, "--page and --limit must be positive")
	}
	return store.Page{Limit: p.limit, Offset: (p.page - 1) * p.limit}, nil
}

// NewEventsCommand creates the events command.
func NewEventsCommand(opts *RootOptions) *cobra.Command {
	var (
		pf                  pageFlags
		typ, status, source string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := pf.toPage()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				events, total, err := app.Store.ListEvents(ctx, store.EventFilter{
					Type:       domain.EventType(typ),
					Source:     domain.Source(source),
					SyncStatus: domain.SyncStatus(status),
					Page:       pg,
				})
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list events", err)
				}
				return opts.formatter(cmd).Success(EventList{Events: events, Total: total})
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&typ, "type", "", "filter by event type")
	cmd.Flags().StringVar(&status, "status", "", "filter by sync status (pending|success|failed)")
	cmd.Flags().StringVar(&source, "source", "", "filter by source")
	return cmd
}

// NewProcessesCommand creates the processes command.
func NewProcessesCommand(opts *RootOptions) *cobra.Command {
	var (
		pf          pageFlags
		typ, status string
	)
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List workflow processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := pf.toPage()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				procs, total, err := app.Store.ListProcesses(ctx, store.ProcessFilter{
					Status:    domain.ProcessStatus(status),
					EventType: domain.EventType(typ),
					Page:      pg,
				})
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list processes", err)
				}
				return opts.formatter(cmd).Success(ProcessList{Processes: procs, Total: total})
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&typ, "type", "", "filter by event type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|completed|suspended)")
	return cmd
}

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(opts *RootOptions) *cobra.Command {
	var node, status, data string
	cmd := &cobra.Command{
		Use:   "transition <process-id>",
		Short: "Move a process to another node or change its status",
		Long: `Move a process to another node of its template, or change its status.

Example:
  trumpsword transition 0194... --node Committee --data '{"note":"referred"}'
  trumpsword transition 0194... --status completed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (node == "") == (status == "") {
				return NewExitError(ExitCommandError, "exactly one of --node or --status is required")
			}
			if !json.Valid([]byte(data)) {
				return NewExitError(ExitCommandError, "--data must be valid JSON")
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				var (
					p   domain.Process
					err error
				)
				if node != "" {
					p, err = app.Engine.Transition(ctx, args[0], node, json.RawMessage(data))
				} else {
					p, err = app.Engine.SetStatus(ctx, args[0], domain.ProcessStatus(status), json.RawMessage(data))
				}
				switch {
				case workflow.IsNotFound(err), workflow.IsInvalid(err), workflow.IsConflict(err):
					return WrapExitError(ExitCommandError, "transition rejected", err)
				case err != nil:
					return WrapExitError(ExitFailure, "transition failed", err)
				}
				return opts.formatter(cmd).Success(fmt.Sprintf("Process %s: %s (%s)", p.ID, p.CurrentNode, p.Status))
			})
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "target node")
	cmd.Flags().StringVar(&status, "status", "", "new status (active|completed|suspended)")
	cmd.Flags().StringVar(&data, "data", "{}", "transition data (JSON object)")
	return cmd
}

// NewTemplatesCommand creates the templates command.
func NewTemplatesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List workflow templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				templates, err := app.Engine.Templates(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list templates", err)
				}
				return opts.formatter(cmd).Success(TemplateList(templates))
			})
		},
	}
}
