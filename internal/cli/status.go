package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronlock/internal/jobs"
)

func buildStatusCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [job]",
		Short: "Show whether jobs are running, when they fire next and how they last ended",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := opts.components(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			ctx := cmd.Context()
			var views []jobs.View
			if len(args) == 1 {
				id, err := resolveJob(ctx, comp, args[0])
				if err != nil {
					return err
				}
				v, err := comp.Jobs.Get(ctx, id)
				if err != nil {
					return notFound(err)
				}
				views = []jobs.View{v}
			} else if views, err = comp.Jobs.List(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, views)
			}
			if len(views) == 0 {
				_, _ = fmt.Fprintln(out, "No jobs defined")
				return nil
			}
			return writeStatusTable(out, views)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func writeStatusTable(out io.Writer, views []jobs.View) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tNEXT RUN\tRUNNING\tLAST RESULT")
	for _, v := range views {
		next := "-"
		if v.NextRun != nil {
			next = v.NextRun.Local().Format(time.DateTime)
		}
		running := "no"
		if v.Running {
			running = fmt.Sprintf("yes (pid %d)", v.PID)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Schedule, next, running, v.Status)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Install every stored job into the crontab and drop orphaned entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := opts.components(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			n, err := comp.Jobs.Sync(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) registered\n", n)
			return err
		},
	}
}

func buildLogsCommand(opts *rootOptions) *cobra.Command {
	var clearLog bool
	cmd := &cobra.Command{
		Use:   "logs <job>",
		Short: "Print or clear a job's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := opts.components(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			ctx := cmd.Context()
			id, err := resolveJob(ctx, comp, args[0])
			if err != nil {
				return err
			}
			if clearLog {
				if err := comp.Jobs.ClearLogs(ctx, id); err != nil {
					return notFound(err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Log cleared")
				return nil
			}
			text, err := comp.Jobs.Logs(ctx, id)
			if err != nil {
				return notFound(err)
			}
			_, _ = io.WriteString(cmd.OutOrStdout(), text)
			if len(text) > 0 && text[len(text)-1] != '\n' {
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearLog, "clear", false, "truncate the log instead of printing it")
	return cmd
}
