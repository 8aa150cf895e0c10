package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"cronlock/internal/app"
)

const stopTimeout = 10 * time.Second

func buildServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and keep the crontab in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.configPath, app.WithLogLevel(opts.logLevel))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background())
				return err
			}
			select {
			case <-ctx.Done():
			case <-a.Done():
			}
			fatal := a.Err()

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := a.Stop(stopCtx); err != nil && fatal == nil {
				return err
			}
			return fatal
		},
	}
}
