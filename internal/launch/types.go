package launch

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("launch: job definition not found")

// Definition is what the supervisor needs to know about a job.
type Definition struct {
	ID      string
	Name    string
	Command string
}

// Definitions resolves job ids. Unknown ids return ErrNotFound.
type Definitions interface {
	Definition(ctx context.Context, jobID string) (Definition, error)
}

type DefinitionsFunc func(ctx context.Context, jobID string) (Definition, error)

func (f DefinitionsFunc) Definition(ctx context.Context, jobID string) (Definition, error) {
	return f(ctx, jobID)
}

type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeAlreadyRunning
	OutcomeNotFound
	OutcomeSpawnFailed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAlreadyRunning:
		return "already_running"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeSpawnFailed:
		return "spawn_failed"
	default:
		return "failed"
	}
}

// Result is the typed outcome of a manual run. Err carries the underlying
// fault for OutcomeSpawnFailed and OutcomeFailed.
type Result struct {
	Outcome Outcome
	PID     int
	Message string
	// Completed is set when the job exited successfully inside the grace
	// window, before RunManually returned.
	Completed bool
	Err       error
}

func (r Result) OK() bool { return r.Outcome == OutcomeStarted }

type Config struct {
	// WorkDir holds the generated launcher scripts.
	WorkDir string
	Shell   string
	Grace   time.Duration
}

const (
	DefaultShell = "/bin/sh"
	DefaultGrace = 300 * time.Millisecond
)

// reapWait bounds how long a start waits for the reaper once the child has
// left the process table.
const reapWait = 200 * time.Millisecond
