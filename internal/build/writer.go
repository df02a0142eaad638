package build

import (
	"os"
	"path"

	"github.com/spf13/afero"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Writer writes outputs into the project filesystem. Writes go to a temporary
// file in the destination directory and are renamed into place, so readers
// never observe a partial output.
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a writer over fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// EnsureDir creates dir. Failure is fatal for the run.
func (w *Writer) EnsureDir(dir string) error {
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return kerrors.NewOutputDirError(dir, err)
	}
	check, err := afero.TempFile(w.fs, dir, ".kiln-write-check-*")
	if err != nil {
		return kerrors.NewOutputDirError(dir, err)
	}
	name := check.Name()
	_ = check.Close()
	_ = w.fs.Remove(name)
	return nil
}

// Write atomically replaces p with content.
func (w *Writer) Write(p string, content []byte) error {
	dir := path.Dir(p)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "cannot create directory", err).WithFile(p)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+path.Base(p)+".tmp-*")
	if err != nil {
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "cannot create temporary file", err).WithFile(p)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "write failed", err).WithFile(p)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "write failed", err).WithFile(p)
	}
	if err := w.fs.Rename(tmpName, p); err != nil {
		_ = w.fs.Remove(tmpName)
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "rename failed", err).WithFile(p)
	}

	return nil
}

// Remove deletes p. A missing file is not an error.
func (w *Writer) Remove(p string) error {
	if err := w.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "remove failed", err).WithFile(p)
	}
	return nil
}

// RemoveAll deletes the tree at p.
func (w *Writer) RemoveAll(p string) error {
	if err := w.fs.RemoveAll(p); err != nil {
		return kerrors.NewIOError(kerrors.ErrCodeWriteFailed, "remove failed", err).WithFile(p)
	}
	return nil
}

// Exists reports whether p is an existing regular file.
func (w *Writer) Exists(p string) bool {
	info, err := w.fs.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the content of p.
func (w *Writer) Read(p string) ([]byte, error) {
	return afero.ReadFile(w.fs, p)
}
