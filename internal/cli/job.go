package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cronlock/internal/jobs"
)

func buildJobCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage job definitions",
	}
	cmd.AddCommand(
		buildJobAddCommand(opts),
		buildJobUpdateCommand(opts),
		buildJobDeleteCommand(opts),
		buildJobListCommand(opts),
	)
	return cmd
}

func specFlags(cmd *cobra.Command, spec *jobs.Spec) {
	f := cmd.Flags()
	f.StringVar(&spec.Name, "name", "", "unique job name; also names its log and crontab entry")
	f.StringVar(&spec.Command, "command", "", "shell command to run")
	f.StringVar(&spec.Schedule, "schedule", "", `cron expression, e.g. "*/5 * * * *" or "@daily"`)
}

func buildJobAddCommand(opts *rootOptions) *cobra.Command {
	var spec jobs.Spec
	cmd := &cobra.Command{
		Use:   "add --name <name> --command <cmd> --schedule <expr>",
		Short: "Create a job and install its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := opts.components(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			j, err := comp.Jobs.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s)\n", j.ID, j.Name)
			return nil
		},
	}
	specFlags(cmd, &spec)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("command")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func buildJobUpdateCommand(opts *rootOptions) *cobra.Command {
	var spec jobs.Spec
	cmd := &cobra.Command{
		Use:   "update <job> [--name] [--command] [--schedule]",
		Short: "Change a job; omitted fields keep their value",
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
			cur, err := comp.Jobs.Get(ctx, id)
			if err != nil {
				return notFound(err)
			}
			f := cmd.Flags()
			if !f.Changed("name") {
				spec.Name = cur.Name
			}
			if !f.Changed("command") {
				spec.Command = cur.Command
			}
			if !f.Changed("schedule") {
				spec.Schedule = cur.Schedule
			}
			j, err := comp.Jobs.Update(ctx, id, spec)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated job %d (%s)\n", j.ID, j.Name)
			return nil
		},
	}
	specFlags(cmd, &spec)
	return cmd
}

func buildJobDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job>",
		Short: "Remove a job, its crontab entry, lock and log",
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
			if err := comp.Jobs.Delete(ctx, id); err != nil {
				return notFound(err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %d\n", id)
			return nil
		},
	}
}

func buildJobListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := opts.components(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			list, err := comp.Store.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(out, "No jobs defined")
				return nil
			}
			for _, j := range list {
				_, _ = fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", j.ID, j.Name, j.Schedule, j.Command)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
