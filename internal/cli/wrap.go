package cli

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cronlock/internal/liveness"
	"cronlock/internal/lockstore"
	"cronlock/internal/metrics"
	"cronlock/internal/wrapper"
	"cronlock/pkg/logx"
)

type wrapOptions struct {
	jobID       string
	lockDir     string
	logFile     string
	atomic      bool
	shell       string
	stopGrace   time.Duration
	metricsFile string
}

// wrap is what crontab entries execute. It reads no config file: everything
// it needs is on its command line.
func buildWrapCommand(opts *rootOptions) *cobra.Command {
	w := &wrapOptions{}
	cmd := &cobra.Command{
		Use:   "wrap --job-id <id> --log-file <path> [flags] -- <command>",
		Short: "Run one scheduled firing under the job's lock",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrap(cmd, opts, w, strings.Join(args, " "))
		},
	}
	f := cmd.Flags()
	f.StringVar(&w.jobID, "job-id", "", "lock key of the job")
	f.StringVar(&w.lockDir, "lock-dir", "", "lock directory (default: system temp dir)")
	f.StringVar(&w.logFile, "log-file", "", "job log to append to")
	f.BoolVar(&w.atomic, "atomic", false, "use the atomic acquire mode")
	f.StringVar(&w.shell, "shell", "/bin/sh", "shell that runs the command")
	f.DurationVar(&w.stopGrace, "stop-grace", 5*time.Second, "time between SIGTERM and SIGKILL on cancellation")
	f.StringVar(&w.metricsFile, "metrics-file", "", "write the run result in Prometheus text format (node_exporter textfile collector)")
	_ = cmd.MarkFlagRequired("job-id")
	_ = cmd.MarkFlagRequired("log-file")
	return cmd
}

func runWrap(cmd *cobra.Command, opts *rootOptions, w *wrapOptions, command string) error {
	// Anything written here ends up in cron mail; stay quiet unless asked.
	log := opts.logger(cmd, "warn")

	mode := lockstore.ModeAdvisory
	if w.atomic {
		mode = lockstore.ModeAtomic
	}
	locks, err := lockstore.New(lockstore.Config{Dir: w.lockDir, Mode: mode}, liveness.New(), log)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	wo := wrapper.Options{
		JobID:     w.jobID,
		Command:   command,
		Shell:     w.shell,
		LogPath:   w.logFile,
		StopGrace: w.stopGrace,
	}
	if w.metricsFile != "" {
		wo.Report = func(result string) { writeWrapMetrics(w.metricsFile, w.jobID, result, log) }
	}

	code, err := wrapper.Run(cmd.Context(), wo, locks, log)
	if err != nil {
		return &ExitError{Code: code, Err: err}
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func writeWrapMetrics(path, jobID, result string, log logx.Logger) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(prometheus.WrapRegistererWith(prometheus.Labels{"job_id": jobID}, reg)).RecordWrapperRun(result)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		log.Warn("write metrics file failed", logx.String("path", path), logx.Err(err))
	}
}
