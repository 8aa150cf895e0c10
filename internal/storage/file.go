package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cronlock/pkg/logx"
)

// fileStore is a dependency-light persistence backend.
//
// Files:
//   - <prefix>.jobs.json   (snapshot, replaced on every write)
//   - <prefix>.audit.jsonl (append-only JSON Lines)
//   - <prefix>.lock        (flock shared by every process using the store)
//
// The snapshot is re-read on every call so changes made by another process
// are visible.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	jobsPath  string
	auditFile *os.File
	flock     *flock.Flock
}

type jobsSnapshot struct {
	NextID int64 `json:"next_id"`
	Jobs   []Job `json:"jobs"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:       log,
		jobsPath:  prefix + ".jobs.json",
		auditFile: af,
		flock:     flock.New(prefix + ".lock"),
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) read(fn func(*jobsSnapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flock.RLock(); err != nil {
		return err
	}
	defer func() { _ = s.flock.Unlock() }()
	snap, err := s.load()
	if err != nil {
		return err
	}
	return fn(snap)
}

func (s *fileStore) write(fn func(*jobsSnapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flock.Lock(); err != nil {
		return err
	}
	defer func() { _ = s.flock.Unlock() }()
	snap, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.save(snap)
}

func (s *fileStore) load() (*jobsSnapshot, error) {
	snap := &jobsSnapshot{NextID: 1}
	b, err := os.ReadFile(s.jobsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(b, snap); err != nil {
		return nil, err
	}
	if snap.NextID < 1 {
		snap.NextID = 1
	}
	return snap, nil
}

func (s *fileStore) save(snap *jobsSnapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.jobsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.jobsPath)
}

func (s *fileStore) CreateJob(ctx context.Context, j Job) (Job, error) {
	_ = ctx
	err := s.write(func(snap *jobsSnapshot) error {
		if findByName(snap.Jobs, j.Name) >= 0 {
			return ErrNameTaken
		}
		now := time.Now().UTC()
		j.ID = snap.NextID
		j.CreatedAt, j.UpdatedAt = now, now
		snap.NextID++
		snap.Jobs = append(snap.Jobs, j)
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (s *fileStore) GetJob(ctx context.Context, id int64) (Job, error) {
	_ = ctx
	var out Job
	err := s.read(func(snap *jobsSnapshot) error {
		i := findByID(snap.Jobs, id)
		if i < 0 {
			return ErrNotFound
		}
		out = snap.Jobs[i]
		return nil
	})
	return out, err
}

func (s *fileStore) GetJobByName(ctx context.Context, name string) (Job, error) {
	_ = ctx
	var out Job
	err := s.read(func(snap *jobsSnapshot) error {
		i := findByName(snap.Jobs, name)
		if i < 0 {
			return ErrNotFound
		}
		out = snap.Jobs[i]
		return nil
	})
	return out, err
}

func (s *fileStore) ListJobs(ctx context.Context) ([]Job, error) {
	_ = ctx
	var out []Job
	err := s.read(func(snap *jobsSnapshot) error {
		out = append(out, snap.Jobs...)
		return nil
	})
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, err
}

func (s *fileStore) UpdateJob(ctx context.Context, j Job) (Job, error) {
	_ = ctx
	err := s.write(func(snap *jobsSnapshot) error {
		i := findByID(snap.Jobs, j.ID)
		if i < 0 {
			return ErrNotFound
		}
		if k := findByName(snap.Jobs, j.Name); k >= 0 && k != i {
			return ErrNameTaken
		}
		j.CreatedAt = snap.Jobs[i].CreatedAt
		j.UpdatedAt = time.Now().UTC()
		snap.Jobs[i] = j
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (s *fileStore) DeleteJob(ctx context.Context, id int64) error {
	_ = ctx
	return s.write(func(snap *jobsSnapshot) error {
		i := findByID(snap.Jobs, id)
		if i < 0 {
			return ErrNotFound
		}
		snap.Jobs = append(snap.Jobs[:i], snap.Jobs[i+1:]...)
		return nil
	})
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func findByID(jobs []Job, id int64) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func findByName(jobs []Job, name string) int {
	for i := range jobs {
		if jobs[i].Name == name {
			return i
		}
	}
	return -1
}
