package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/fsutil"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
)

// DefaultFile is the state file name kept for compatibility with existing deployments.
const DefaultFile = "sru_state.json"

type fileState struct {
	Start *int `json:"start"`
}

// FileStore keeps the offset in a small JSON document: {"start": n}.
type FileStore struct {
	path string
	log  logger.Interface
}

// NewFileStore creates a file-backed cursor store.
func NewFileStore(path string, log logger.Interface) *FileStore {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &FileStore{path: path, log: log}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the persisted offset. Missing, unreadable or corrupt state
// starts fresh at Start.
func (s *FileStore) Load(_ context.Context) (int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Start, nil
	}
	if err != nil {
		s.log.Warn("Cursor state unreadable, starting fresh", "path", s.path, "error", err)
		return Start, nil
	}

	var state fileState
	if err = json.Unmarshal(data, &state); err != nil || state.Start == nil {
		s.log.Warn("Cursor state corrupt, starting fresh", "path", s.path, "error", err)
		return Start, nil
	}
	if *state.Start < Start {
		s.log.Warn("Cursor state out of range, starting fresh", "path", s.path, "start", *state.Start)
		return Start, nil
	}

	return *state.Start, nil
}

// Save atomically replaces the state file.
func (s *FileStore) Save(_ context.Context, offset int) error {
	if err := validOffset(offset); err != nil {
		return err
	}

	data, err := json.Marshal(fileState{Start: &offset})
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err = fsutil.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
