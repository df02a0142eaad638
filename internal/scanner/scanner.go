// Package scanner resolves asset class globs against the project tree.
//
// Patterns use doublestar syntax (`**`, `{a,b}`, character classes) and are
// always relative, slash-separated and evaluated against an fs.FS rooted at
// the project directory. Results are sorted and contain regular files only.
package scanner

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Resolver expands source globs to concrete project-relative paths.
type Resolver struct {
	fsys fs.FS
}

// NewResolver creates a resolver over fsys, which must be rooted at the
// project directory.
func NewResolver(fsys fs.FS) *Resolver {
	return &Resolver{fsys: fsys}
}

// Resolve returns the sorted set of files matching pattern. A malformed
// pattern is a configuration error; a pattern matching nothing yields an
// empty slice.
func (r *Resolver) Resolve(pattern string) ([]string, error) {
	pattern = Normalize(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, kerrors.ErrBadGlob(pattern)
	}

	matches, err := doublestar.Glob(r.fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			return nil, kerrors.ErrBadGlob(pattern)
		}
		return nil, kerrors.NewIOError(kerrors.ErrCodeReadFailed, "cannot resolve "+pattern, err)
	}

	sort.Strings(matches)
	return matches, nil
}

// ResolveAll resolves each path in paths that matches pattern and still
// exists. Used for targeted runs: paths outside the glob are ignored.
func (r *Resolver) ResolveAll(pattern string, paths []string) ([]string, error) {
	pattern = Normalize(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, kerrors.ErrBadGlob(pattern)
	}

	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		p = Normalize(p)
		if seen[p] || !Match(pattern, p) {
			continue
		}
		seen[p] = true
		info, err := fs.Stat(r.fsys, p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}

	sort.Strings(out)
	return out, nil
}

// Exists reports whether a regular file exists at p.
func (r *Resolver) Exists(p string) bool {
	info, err := fs.Stat(r.fsys, Normalize(p))
	return err == nil && info.Mode().IsRegular()
}

// FS returns the underlying filesystem.
func (r *Resolver) FS() fs.FS {
	return r.fsys
}

// Match reports whether p matches pattern. Malformed patterns never match.
func Match(pattern, p string) bool {
	ok, err := doublestar.Match(Normalize(pattern), Normalize(p))
	return err == nil && ok
}

// Valid reports whether pattern is well formed.
func Valid(pattern string) bool {
	return doublestar.ValidatePattern(Normalize(pattern))
}

// Base returns the static directory prefix of pattern, the part before the
// first meta character ("src/js" for "src/js/**/*.js"). A pattern naming a
// single file returns its directory.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(Normalize(pattern))
	if base == "" {
		return "."
	}
	return base
}

// Rel returns p relative to the base of pattern, which is where the file
// lands below the class output directory.
func Rel(pattern, p string) string {
	base := Base(pattern)
	p = Normalize(p)
	if base == "." || base == "" {
		return p
	}
	if rel, ok := strings.CutPrefix(p, base+"/"); ok {
		return rel
	}
	return path.Base(p)
}

// Normalize converts p to the clean slash-separated relative form used
// throughout kiln.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return p
	}
	return path.Clean(p)
}
