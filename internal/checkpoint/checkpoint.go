// Package checkpoint makes long crawls resumable: it snapshots the
// frontier, the completed set, and the writer's dataset positions into
// the staging directory, atomically, and restores them on startup.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

const fileName = "checkpoint.json"

// Checkpointer persists crawl snapshots into a staging directory
type Checkpointer struct {
	stagingDir string
	logger     arbor.ILogger
}

func New(stagingDir string, logger arbor.ILogger) *Checkpointer {
	return &Checkpointer{stagingDir: stagingDir, logger: logger}
}

// Path returns the checkpoint file location
func (c *Checkpointer) Path() string {
	return filepath.Join(c.stagingDir, fileName)
}

// Save writes a snapshot atomically: the temp file is fully written and
// synced before it replaces the previous checkpoint
func (c *Checkpointer) Save(snapshot *models.CheckpointSnapshot) error {
	snapshot.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	final := c.Path()
	tmp := final + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	c.logger.Debug().
		Int("pending", len(snapshot.Pending)).
		Int("completed", len(snapshot.Completed)).
		Msg("Checkpoint saved")
	return nil
}

// Load reads the snapshot from a staging directory. A missing file
// returns os.ErrNotExist.
func Load(stagingDir string) (*models.CheckpointSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(stagingDir, fileName))
	if err != nil {
		return nil, err
	}
	var snapshot models.CheckpointSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	return &snapshot, nil
}

// CompletedSet converts the snapshot's completed list into the lookup
// form the frontier restores from
func CompletedSet(snapshot *models.CheckpointSnapshot) map[string]struct{} {
	set := make(map[string]struct{}, len(snapshot.Completed))
	for _, u := range snapshot.Completed {
		set[u] = struct{}{}
	}
	return set
}
