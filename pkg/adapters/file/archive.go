package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/spf13/afero"
)

// WorldsDir is the directory inside an instance where the server keeps its worlds.
const WorldsDir = "worlds"

// Archiver implements ports.WorldArchiver by copying world files out of the
// instance directory into <root>/worlds/<world id>/.
type Archiver struct {
	fs   afero.Fs
	root string
}

// NewArchiver creates an Archiver writing under root.
func NewArchiver(fs afero.Fs, root string) *Archiver {
	return &Archiver{fs: fs, root: root}
}

// Path returns where the archived copy of w is kept.
func (a *Archiver) Path(w *domain.World) string {
	return filepath.Join(a.root, "worlds", w.ID, w.FileName())
}

// Persist copies the world file of w from the instance directory.
func (a *Archiver) Persist(ctx context.Context, inst *domain.Instance, w *domain.World) error {
	src := filepath.Join(inst.Directory, WorldsDir, w.FileName())
	data, err := afero.ReadFile(a.fs, src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("world file %s was not written by the server", src)
		}
		return fmt.Errorf("failed to read world file: %w", err)
	}
	return a.writeAtomic(a.Path(w), data)
}

// Restore copies the archived world file into the instance directory, so a
// fresh instance can serve an existing world. A world already present is kept.
func (a *Archiver) Restore(ctx context.Context, inst *domain.Instance, w *domain.World) error {
	dest := filepath.Join(inst.Directory, WorldsDir, w.FileName())
	if exists, err := afero.Exists(a.fs, dest); err != nil || exists {
		return err
	}
	data, err := afero.ReadFile(a.fs, a.Path(w))
	if err != nil {
		return fmt.Errorf("failed to read archived world: %w", err)
	}
	return a.writeAtomic(dest, data)
}

// writeAtomic writes to a temporary file in the destination directory and
// renames it over dest.
func (a *Archiver) writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure archive directory: %w", err)
	}

	tmp, err := afero.TempFile(a.fs, dir, "tmp-*.wld")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = a.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename over an existing file fails on Windows.
	if exists, _ := afero.Exists(a.fs, dest); exists {
		if err := a.fs.Remove(dest); err != nil {
			return fmt.Errorf("failed to remove previous archive: %w", err)
		}
	}
	if err := a.fs.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
