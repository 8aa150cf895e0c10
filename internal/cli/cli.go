// Package cli is the cronlock command line.
//
//	cronlock serve                 HTTP API, startup crontab sync, config watch
//	cronlock wrap -- <command>     crontab entry target; runs one scheduled firing
//	cronlock run <job>             manual run under the job's lock
//	cronlock status [job]          live state: running pid, next fire time, last result
//	cronlock sync                  re-install every stored job into the crontab
//	cronlock job add|update|delete|list
//	cronlock logs <job> [--clear]
//	cronlock version
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cronlock/internal/app"
	"cronlock/internal/config"
	"cronlock/internal/storage"
	"cronlock/pkg/logx"
)

// Version is stamped at build time with -ldflags "-X cronlock/internal/cli.Version=...".
var Version = "dev"

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

type rootOptions struct {
	configPath string
	logLevel   string
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := BuildCLI()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			_, _ = fmt.Fprintln(stderr, "error:", ee.Err)
		}
		return ee.Code
	}
	_, _ = fmt.Fprintln(stderr, "error:", err)
	return 1
}

func BuildCLI() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cronlock",
		Short:         "Schedule shell jobs with cron and never run one twice at once",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CRONLOCK_CONFIG"),
		"config file (JSON or YAML); defaults apply when empty")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		buildServeCommand(opts),
		buildWrapCommand(opts),
		buildRunCommand(opts),
		buildStatusCommand(opts),
		buildSyncCommand(opts),
		buildJobCommand(opts),
		buildLogsCommand(opts),
		buildVersionCommand(),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.NewManager(strings.TrimSpace(o.configPath)).Load()
}

func (o *rootOptions) logger(cmd *cobra.Command, def string) logx.Logger {
	level := o.logLevel
	if level == "" {
		level = def
	}
	return logx.NewWriter(cmd.ErrOrStderr(), level)
}

// components loads the config and builds the job service for a one-shot
// command. The caller closes the result.
func (o *rootOptions) components(cmd *cobra.Command) (*app.Components, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, nil, o.logger(cmd, cfg.Logging.Level))
}

// resolveJob accepts a numeric id or a job name.
func resolveJob(ctx context.Context, comp *app.Components, arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	j, err := comp.Store.GetJobByName(ctx, arg)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, &ExitError{Code: exitNotFound, Err: fmt.Errorf("job %q not found", arg)}
		}
		return 0, err
	}
	return j.ID, nil
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cronlock version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cronlock", Version)
		},
	}
}
