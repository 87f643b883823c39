// Package fs persists the operator status snapshot on the local file system.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/aprsship/internal/domain"
)

// StatusFileName is the snapshot file inside the state directory.
const StatusFileName = "status.json"

// StatusFileRepository implements ports.StatusRepository using a JSON file.
type StatusFileRepository struct {
	dir string
}

// NewStatusFileRepository creates a repository rooted at dir.
func NewStatusFileRepository(dir string) *StatusFileRepository {
	return &StatusFileRepository{dir: dir}
}

// Load reads the last snapshot.
// A missing file yields an empty status and nil error.
func (r *StatusFileRepository) Load(ctx context.Context) (domain.Status, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Status{}, nil
		}
		return domain.Status{}, fmt.Errorf("read status: %w", err)
	}

	var status domain.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.Status{}, fmt.Errorf("parse status %s: %w", r.Path(), err)
	}
	return status, nil
}

// Save writes the snapshot to a temp file and renames it into place,
// so readers never see a partial file.
func (r *StatusFileRepository) Save(ctx context.Context, status domain.Status) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, StatusFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp status: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status: %w", err)
	}
	return os.Rename(tmp.Name(), r.Path())
}

// Path returns the full path to the status file.
func (r *StatusFileRepository) Path() string {
	return filepath.Join(r.dir, StatusFileName)
}
