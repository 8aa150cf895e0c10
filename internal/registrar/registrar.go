// Package registrar installs job schedules into the system crontab.
package registrar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronlock/internal/crontab"
	"cronlock/internal/joblog"
	"cronlock/pkg/logx"
)

type JobSpec struct {
	ID       string
	Name     string
	Command  string
	Schedule string
}

type Registrar struct {
	table   *crontab.Table
	wrapper WrapperCommand
	logs    *joblog.Dir
	log     logx.Logger
}

func New(table *crontab.Table, wrapper WrapperCommand, logs *joblog.Dir, log logx.Logger) *Registrar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registrar{
		table:   table,
		wrapper: wrapper,
		logs:    logs,
		log:     log.With(logx.String("comp", "registrar")),
	}
}

// Register creates or replaces the entry tagged spec.Name.
func (r *Registrar) Register(ctx context.Context, spec JobSpec) error {
	if err := Validate(spec.Schedule); err != nil {
		return err
	}
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("registrar: job name required")
	}
	action, err := r.wrapper.Action(spec.ID, r.logs.Path(spec.Name), spec.Command)
	if err != nil {
		return err
	}
	if err := r.table.Upsert(ctx, spec.Name, strings.TrimSpace(spec.Schedule), action); err != nil {
		return fmt.Errorf("registrar: %w", err)
	}
	r.log.Debug("registered", logx.String("job_id", spec.ID), logx.String("name", spec.Name), logx.String("schedule", spec.Schedule))
	return nil
}

// Update moves a job registered as oldName to spec. The new schedule is
// validated before anything is removed.
func (r *Registrar) Update(ctx context.Context, oldName string, spec JobSpec) error {
	if err := Validate(spec.Schedule); err != nil {
		return err
	}
	if oldName != "" && oldName != spec.Name {
		if _, err := r.Unregister(ctx, oldName); err != nil {
			return err
		}
	}
	return r.Register(ctx, spec)
}

// Unregister removes every entry tagged name.
func (r *Registrar) Unregister(ctx context.Context, name string) (int, error) {
	n, err := r.table.RemoveAll(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("registrar: %w", err)
	}
	if n > 0 {
		r.log.Debug("unregistered", logx.String("name", name), logx.Int("entries", n))
	}
	return n, nil
}

// NextFireTime reports when the entry tagged name fires next after now.
func (r *Registrar) NextFireTime(ctx context.Context, name string, now time.Time) (time.Time, bool, error) {
	e, ok, err := r.table.Find(ctx, name)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("registrar: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	next, err := Next(e.Rule, now)
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

// Registered reports the tags of all installed entries.
func (r *Registrar) Registered(ctx context.Context) (map[string]crontab.Entry, error) {
	entries, err := r.table.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("registrar: %w", err)
	}
	out := make(map[string]crontab.Entry, len(entries))
	for _, e := range entries {
		out[e.Tag] = e
	}
	return out, nil
}
