package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("storage: job not found")
	ErrNameTaken = errors.New("storage: job name already in use")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type Job struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	Schedule  string    `json:"schedule"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry records one job action (create, run, delete, ...).
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id,omitempty"`
	JobID   int64     `json:"job_id"`
	JobName string    `json:"job_name,omitempty"`
	Action  string    `json:"action"`
	Outcome string    `json:"outcome,omitempty"`
	PID     int       `json:"pid,omitempty"`
	Message string    `json:"message,omitempty"`
}
