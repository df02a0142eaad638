package build

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

func TestWriterAtomicWrite(t *testing.T) {
	p := newProject(t)
	w := NewWriter(p.fs)

	require.NoError(t, w.Write("build/css/style.css", []byte("body{}")))
	assert.Equal(t, "body{}", p.read("build/css/style.css"))
	require.NoError(t, w.Write("build/css/style.css", []byte("a{}")))
	assert.Equal(t, "a{}", p.read("build/css/style.css"))

	entries, err := afero.ReadDir(p.fs, "build/css")
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
	assert.Equal(t, "style.css", entries[0].Name())

	assert.True(t, w.Exists("build/css/style.css"))
	assert.False(t, w.Exists("build/css"))

	data, err := w.Read("build/css/style.css")
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(data))
}

func TestWriterRemove(t *testing.T) {
	p := newProject(t)
	w := NewWriter(p.fs)

	require.NoError(t, w.Write("build/js/a.js", []byte("a")))
	require.NoError(t, w.Remove("build/js/a.js"))
	assert.False(t, w.Exists("build/js/a.js"))
	assert.NoError(t, w.Remove("build/js/a.js"), "removing a missing file is fine")

	require.NoError(t, w.Write("build/js/b.js", []byte("b")))
	require.NoError(t, w.RemoveAll("build"))
	assert.False(t, p.exists("build/js/b.js"))
}

func TestWriterEnsureDir(t *testing.T) {
	p := newProject(t)
	w := NewWriter(p.fs)

	require.NoError(t, w.EnsureDir("build/img"))
	entries, err := afero.ReadDir(p.fs, "build/img")
	require.NoError(t, err)
	assert.Empty(t, entries, "the write check file is removed")

	p.write("blocked", "file")
	err = w.EnsureDir("blocked/img")
	require.Error(t, err)
	assert.True(t, kerrors.IsFatal(err))

	err = w.Write("blocked/x.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, kerrors.IsRecoverable(err))
}
