package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileManager keeps locks as files whose modification time is the acquisition time
type FileManager struct {
	dir   string
	owner string
	now   func() time.Time
}

// NewFileManager creates a lock manager storing lock files under dir
func NewFileManager(dir string) *FileManager {
	return &FileManager{
		dir:   dir,
		owner: uuid.NewString(),
		now:   time.Now,
	}
}

// Owner returns the token identifying this manager's locks
func (m *FileManager) Owner() string {
	return m.owner
}

// Path returns the lock file used for id
func (m *FileManager) Path(id string) string {
	return filepath.Join(m.dir, "index_process_"+id+".lock")
}

func (m *FileManager) TryAcquire(ctx context.Context, id string) (Result, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return AlreadyLocked, fmt.Errorf("failed to create lock dir: %w", err)
	}

	f, err := os.OpenFile(m.Path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return AlreadyLocked, nil
		}
		return AlreadyLocked, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(m.owner); err != nil {
		return AlreadyLocked, fmt.Errorf("failed to write lock file: %w", err)
	}

	return Acquired, nil
}

func (m *FileManager) IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(m.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to stat lock file: %w", err)
	}

	return m.now().Sub(info.ModTime()) >= maxAge, nil
}

func (m *FileManager) ForceRelease(ctx context.Context, id string) error {
	if err := os.Remove(m.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *FileManager) Release(ctx context.Context, id string) error {
	data, err := os.ReadFile(m.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	if strings.TrimSpace(string(data)) != m.owner {
		return nil
	}

	return m.ForceRelease(ctx, id)
}
