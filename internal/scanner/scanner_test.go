package scanner

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

func projectFS() fstest.MapFS {
	return fstest.MapFS{
		"src/index.gohtml":             {Data: []byte("<h1>hi</h1>")},
		"src/about.gohtml":             {Data: []byte("<h1>about</h1>")},
		"src/templates/header.gohtml":  {Data: []byte("<header></header>")},
		"src/js/app.js":                {Data: []byte("let a = 1")},
		"src/js/lib/util.js":           {Data: []byte("export {}")},
		"src/js/lib/README.md":         {Data: []byte("# lib")},
		"src/img/logo.png":             {Data: []byte{0x89, 'P', 'N', 'G'}},
		"src/img/icons/close.svg":      {Data: []byte("<svg/>")},
		"src/img/photo.jpeg":           {Data: []byte{0xff, 0xd8}},
		"src/scss/core/style.scss":     {Data: []byte("body{}")},
		"src/scss/partials/_vars.scss": {Data: []byte("$c: red;")},
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(projectFS())

	tests := []struct {
		name     string
		pattern  string
		expected []string
	}{
		{"top level markup", "src/*.gohtml", []string{"src/about.gohtml", "src/index.gohtml"}},
		{"recursive scripts", "src/js/**/*.js", []string{"src/js/app.js", "src/js/lib/util.js"}},
		{"brace alternatives", "src/img/**/*.{png,svg,jpeg}", []string{"src/img/icons/close.svg", "src/img/logo.png", "src/img/photo.jpeg"}},
		{"single file", "src/scss/core/style.scss", []string{"src/scss/core/style.scss"}},
		{"leading dot slash", "./src/js/*.js", []string{"src/js/app.js"}},
		{"no match", "src/fonts/**/*.*", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.pattern)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveExcludesDirectories(t *testing.T) {
	r := NewResolver(projectFS())

	got, err := r.Resolve("src/js/**")
	require.NoError(t, err)
	assert.NotContains(t, got, "src/js/lib")
	assert.Contains(t, got, "src/js/lib/README.md")
}

func TestResolveMalformedPattern(t *testing.T) {
	r := NewResolver(projectFS())

	_, err := r.Resolve("src/js/[*.js")
	require.Error(t, err)
	assert.True(t, kerrors.IsConfigError(err))
	assert.False(t, Valid("src/js/[*.js"))
	assert.True(t, Valid("src/js/**/*.js"))
}

func TestResolveAll(t *testing.T) {
	r := NewResolver(projectFS())

	got, err := r.ResolveAll("src/js/**/*.js", []string{
		"src/js/lib/util.js",
		"src/js/app.js",
		"src/js/app.js",
		"src/js/gone.js",
		"src/img/logo.png",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/js/app.js", "src/js/lib/util.js"}, got)
}

func TestExists(t *testing.T) {
	r := NewResolver(projectFS())
	assert.True(t, r.Exists("src/js/app.js"))
	assert.False(t, r.Exists("src/js"))
	assert.False(t, r.Exists("src/js/nope.js"))
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("src/scss/**/*.scss", "src/scss/partials/_vars.scss"))
	assert.True(t, Match("src/**/*.gohtml", "src/templates/header.gohtml"))
	assert.False(t, Match("src/*.gohtml", "src/templates/header.gohtml"))
	assert.False(t, Match("src/[", "src/["))
}

func TestBaseAndRel(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		base    string
		rel     string
	}{
		{"src/js/**/*.js", "src/js/lib/util.js", "src/js", "lib/util.js"},
		{"src/*.gohtml", "src/index.gohtml", "src", "index.gohtml"},
		{"src/scss/core/style.scss", "src/scss/core/style.scss", "src/scss/core", "style.scss"},
		{"*.txt", "notes.txt", ".", "notes.txt"},
		{"src/img/**/*.{png,svg}", "src/img/icons/close.svg", "src/img", "icons/close.svg"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.base, Base(tt.pattern))
			assert.Equal(t, tt.rel, Rel(tt.pattern, tt.path))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "src/js/app.js", Normalize("./src/js/app.js"))
	assert.Equal(t, "src/js/app.js", Normalize(`src\js\app.js`))
	assert.Equal(t, "src/app.js", Normalize("src/js/../app.js"))
	assert.Equal(t, "", Normalize(""))
}
