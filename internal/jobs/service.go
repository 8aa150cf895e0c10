// Package jobs is the job management service: definitions in storage,
// schedules in the crontab, manual runs through the launcher.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cronlock/internal/joblog"
	"cronlock/internal/launch"
	"cronlock/internal/lockstore"
	"cronlock/internal/metrics"
	"cronlock/internal/registrar"
	"cronlock/internal/storage"
	"cronlock/pkg/logx"
)

var ErrInvalid = errors.New("jobs: invalid job")

type Spec struct {
	Name     string `json:"name"`
	Command  string `json:"command"`
	Schedule string `json:"schedule"`
}

func (s Spec) normalize() Spec {
	return Spec{
		Name:     strings.TrimSpace(s.Name),
		Command:  strings.TrimSpace(s.Command),
		Schedule: strings.TrimSpace(s.Schedule),
	}
}

func (s Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.ContainsAny(s.Name, "\n\r") {
		return fmt.Errorf("%w: name must be a single line", ErrInvalid)
	}
	if s.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalid)
	}
	return registrar.Validate(s.Schedule)
}

// View is a job together with its live state.
type View struct {
	storage.Job
	NextRun *time.Time    `json:"next_run,omitempty"`
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Status  joblog.Status `json:"status"`
}

type Deps struct {
	Store     storage.Store
	Registrar *registrar.Registrar
	Locks     *lockstore.Store
	Launcher  *launch.Supervisor
	Logs      *joblog.Dir
	Metrics   *metrics.Collector
	Log       logx.Logger
	Now       func() time.Time
}

type Service struct {
	st   storage.Store
	reg  *registrar.Registrar
	lock *lockstore.Store
	run  *launch.Supervisor
	logs *joblog.Dir
	m    *metrics.Collector
	log  logx.Logger
	now  func() time.Time
}

func New(d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		st:   d.Store,
		reg:  d.Registrar,
		lock: d.Locks,
		run:  d.Launcher,
		logs: d.Logs,
		m:    d.Metrics,
		log:  d.Log.With(logx.String("comp", "jobs")),
		now:  d.Now,
	}
}

func jobSpec(j storage.Job) registrar.JobSpec {
	return registrar.JobSpec{ID: LockID(j.ID), Name: j.Name, Command: j.Command, Schedule: j.Schedule}
}

// Create stores a job and installs its schedule. A job whose schedule
// cannot be installed is not kept.
func (s *Service) Create(ctx context.Context, spec Spec) (storage.Job, error) {
	spec = spec.normalize()
	if err := spec.validate(); err != nil {
		return storage.Job{}, err
	}
	j, err := s.st.CreateJob(ctx, storage.Job{Name: spec.Name, Command: spec.Command, Schedule: spec.Schedule})
	if err != nil {
		return storage.Job{}, err
	}
	if err := s.reg.Register(ctx, jobSpec(j)); err != nil {
		if derr := s.st.DeleteJob(ctx, j.ID); derr != nil {
			s.log.Error("rollback create failed", logx.Int64("job_id", j.ID), logx.Err(derr))
		}
		return storage.Job{}, err
	}
	s.audit(ctx, storage.AuditEntry{JobID: j.ID, JobName: j.Name, Action: "create"})
	s.log.Info("job created", logx.Int64("job_id", j.ID), logx.String("name", j.Name))
	return j, nil
}

// Update changes a job's definition and re-registers its schedule.
func (s *Service) Update(ctx context.Context, id int64, spec Spec) (storage.Job, error) {
	spec = spec.normalize()
	if err := spec.validate(); err != nil {
		return storage.Job{}, err
	}
	old, err := s.st.GetJob(ctx, id)
	if err != nil {
		return storage.Job{}, err
	}
	if other, err := s.st.GetJobByName(ctx, spec.Name); err == nil && other.ID != id {
		return storage.Job{}, storage.ErrNameTaken
	}

	next := old
	next.Name, next.Command, next.Schedule = spec.Name, spec.Command, spec.Schedule
	if err := s.reg.Update(ctx, old.Name, jobSpec(next)); err != nil {
		return storage.Job{}, err
	}
	saved, err := s.st.UpdateJob(ctx, next)
	if err != nil {
		if rerr := s.reg.Update(ctx, next.Name, jobSpec(old)); rerr != nil {
			s.log.Error("restore schedule failed", logx.Int64("job_id", id), logx.Err(rerr))
		}
		return storage.Job{}, err
	}
	s.audit(ctx, storage.AuditEntry{JobID: id, JobName: saved.Name, Action: "update"})
	return saved, nil
}

// Delete unregisters the job and removes its lock, log and definition.
func (s *Service) Delete(ctx context.Context, id int64) error {
	j, err := s.st.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.reg.Unregister(ctx, j.Name); err != nil {
		return err
	}
	if err := s.lock.Release(LockID(id)); err != nil {
		s.log.Warn("release lock on delete failed", logx.Int64("job_id", id), logx.Err(err))
	}
	if err := s.logs.Delete(j.Name); err != nil {
		s.log.Warn("delete log failed", logx.Int64("job_id", id), logx.Err(err))
	}
	if err := s.st.DeleteJob(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, storage.AuditEntry{JobID: id, JobName: j.Name, Action: "delete"})
	s.log.Info("job deleted", logx.Int64("job_id", id), logx.String("name", j.Name))
	return nil
}

// Run starts the job now unless it is already running.
func (s *Service) Run(ctx context.Context, id int64) launch.Result {
	start := s.now()
	runID := uuid.NewString()
	res := s.run.RunManually(ctx, LockID(id))
	s.m.RecordLaunch(res.Outcome.String(), s.now().Sub(start))

	e := storage.AuditEntry{
		RunID:   runID,
		JobID:   id,
		Action:  "run",
		Outcome: res.Outcome.String(),
		PID:     res.PID,
		Message: res.Message,
	}
	if res.Err != nil {
		e.Message = res.Message + ": " + res.Err.Error()
	}
	s.audit(ctx, e)
	return res
}

func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	j, err := s.st.GetJob(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, j)
}

func (s *Service) List(ctx context.Context) ([]View, error) {
	list, err := s.st.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(list))
	for _, j := range list {
		v, err := s.view(ctx, j)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, j storage.Job) (View, error) {
	v := View{Job: j}
	running, pid, err := s.lock.Inspect(LockID(j.ID))
	if err != nil {
		return View{}, err
	}
	v.Running, v.PID = running, pid

	next, ok, err := s.reg.NextFireTime(ctx, j.Name, s.now())
	if err != nil {
		s.log.Warn("next fire time unavailable", logx.Int64("job_id", j.ID), logx.Err(err))
	} else if ok {
		v.NextRun = &next
	}

	st, err := s.logs.Status(j.Name)
	if err != nil {
		return View{}, err
	}
	v.Status = st
	return v, nil
}

// Sync installs every stored job into the crontab and removes cronlock
// entries no stored job owns. It keeps going past individual failures and
// reports how many jobs were registered.
func (s *Service) Sync(ctx context.Context) (int, error) {
	list, err := s.st.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	var (
		errs  []error
		ok    int
		names = make(map[string]struct{}, len(list))
	)
	for _, j := range list {
		names[j.Name] = struct{}{}
		if err := s.reg.Register(ctx, jobSpec(j)); err != nil {
			s.m.RecordSyncError()
			s.log.Warn("sync: register failed", logx.Int64("job_id", j.ID), logx.String("name", j.Name), logx.Err(err))
			errs = append(errs, fmt.Errorf("job %d: %w", j.ID, err))
			continue
		}
		ok++
	}

	installed, err := s.reg.Registered(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		for tag := range installed {
			if _, keep := names[tag]; keep {
				continue
			}
			if _, err := s.reg.Unregister(ctx, tag); err != nil {
				errs = append(errs, err)
				continue
			}
			s.log.Info("sync: removed orphan entry", logx.String("name", tag))
		}
	}

	s.log.Info("sync finished", logx.Int("registered", ok), logx.Int("jobs", len(list)))
	return ok, errors.Join(errs...)
}

func (s *Service) Logs(ctx context.Context, id int64) (string, error) {
	j, err := s.st.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return s.logs.Load(j.Name)
}

func (s *Service) ClearLogs(ctx context.Context, id int64) error {
	j, err := s.st.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return s.logs.Clear(j.Name)
}

func (s *Service) audit(ctx context.Context, e storage.AuditEntry) {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.st.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}
