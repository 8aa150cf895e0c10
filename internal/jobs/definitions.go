package jobs

import (
	"context"
	"errors"
	"strconv"

	"cronlock/internal/launch"
	"cronlock/internal/storage"
)

// Definitions adapts a store to the launcher's lookup interface.
func Definitions(st storage.Store) launch.Definitions {
	return launch.DefinitionsFunc(func(ctx context.Context, jobID string) (launch.Definition, error) {
		id, err := strconv.ParseInt(jobID, 10, 64)
		if err != nil {
			return launch.Definition{}, launch.ErrNotFound
		}
		j, err := st.GetJob(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return launch.Definition{}, launch.ErrNotFound
		}
		if err != nil {
			return launch.Definition{}, err
		}
		return launch.Definition{ID: jobID, Name: j.Name, Command: j.Command}, nil
	})
}

// LockID is the lock store key for a stored job.
func LockID(id int64) string { return strconv.FormatInt(id, 10) }
