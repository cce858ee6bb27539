package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Directory is the storage location a segment is committed to. It exposes
// the four primitives a commit needs: open a temp file for writing, flush it
// durably, publish it atomically under its final name, and delete it.
type Directory struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
}

// NewDirectory returns a Directory on the local filesystem.
func NewDirectory(path string) *Directory {
	return NewDirectoryFs(afero.NewOsFs(), path)
}

// NewDirectoryFs returns a Directory backed by fs.
func NewDirectoryFs(fs afero.Fs, path string) *Directory {
	return &Directory{
		fs:     fs,
		path:   path,
		logger: slog.Default().With("component", "segment-storage", "dir", path),
	}
}

// commitLocks serializes commits per destination path within the process.
var commitLocks sync.Map

func (d *Directory) lock() func() {
	v, _ := commitLocks.LoadOrStore(filepath.Clean(d.path), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (d *Directory) Path() string { return d.path }

func (d *Directory) Fs() afero.Fs { return d.fs }

// Join returns the path of name inside the directory.
func (d *Directory) Join(name string) string {
	return filepath.Join(d.path, name)
}

// CreateTemp creates the directory if needed and opens a new temp file
// whose name derives from the final segment name.
func (d *Directory) CreateTemp(name string) (afero.File, error) {
	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return nil, storageError(err, "creating segment directory")
	}
	f, err := afero.TempFile(d.fs, d.path, "."+name+".*.tmp")
	if err != nil {
		return nil, storageError(err, "creating temp segment file")
	}
	return f, nil
}

// Sync flushes f to stable storage.
func (d *Directory) Sync(f afero.File) error {
	if err := f.Sync(); err != nil {
		return storageError(err, "syncing segment file")
	}
	return nil
}

// Publish renames tmpPath onto name in one step. The segment is visible
// once the rename returns; a failed directory sync afterwards is logged
// because the publish cannot be undone.
func (d *Directory) Publish(tmpPath string, name string) error {
	if err := d.fs.Rename(tmpPath, d.Join(name)); err != nil {
		return storageError(err, "publishing segment file")
	}
	if err := d.syncDir(); err != nil {
		d.logger.Warn("directory sync after publish failed", "error", err)
	}
	return nil
}

// Probe verifies that a temp file can be created and removed in the
// directory, without touching any published segment.
func (d *Directory) Probe() error {
	f, err := d.CreateTemp("probe")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		d.RemoveTemp(name)
		return storageError(err, "closing probe file")
	}
	return d.RemoveTemp(name)
}

// RemoveTemp deletes a temp file. A missing file is not an error.
func (d *Directory) RemoveTemp(tmpPath string) error {
	if err := d.fs.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing temp segment file %s: %w", tmpPath, err)
	}
	return nil
}

func (d *Directory) syncDir() error {
	dir, err := d.fs.Open(d.path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// storageError classifies an I/O failure as ErrStorageFull (out of space
// or over quota) or ErrStorageUnwritable.
func storageError(err error, msg string) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return apperrors.Wrap(apperrors.ErrStorageFull, err, msg)
	}
	return apperrors.Wrap(apperrors.ErrStorageUnwritable, err, msg)
}
