package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cronlock/internal/launch"
	"cronlock/internal/storage"
)

const (
	exitFailed         = 1
	exitAlreadyRunning = 3
	exitNotFound       = 4
)

func buildRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Start a job now unless it is already running",
		Long: `Start a job by id or name. The command returns after a short grace
period; the job keeps running detached. Exit status is 0 when the job
started, 3 when it is already running and 4 when it does not exist.`,
		Args: cobra.ExactArgs(1),
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
			res := comp.Jobs.Run(ctx, id)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			switch res.Outcome {
			case launch.OutcomeStarted:
				return nil
			case launch.OutcomeAlreadyRunning:
				return &ExitError{Code: exitAlreadyRunning}
			case launch.OutcomeNotFound:
				return &ExitError{Code: exitNotFound}
			default:
				return &ExitError{Code: exitFailed, Err: res.Err}
			}
		},
	}
}

// notFound turns a missing job into exit status 4.
func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &ExitError{Code: exitNotFound, Err: err}
	}
	return err
}
