// Package asset defines the asset classes kiln builds and their immutable
// per-class configuration.
package asset

import (
	"fmt"
	"strings"
)

// Class is one category of static asset with its own pipeline.
type Class string

const (
	Markup  Class = "markup"
	Styles  Class = "styles"
	Scripts Class = "scripts"
	Images  Class = "images"
	Fonts   Class = "fonts"
)

var declared = []Class{Markup, Styles, Scripts, Images, Fonts}

// Classes returns every class in the declared build order.
func Classes() []Class {
	out := make([]Class, len(declared))
	copy(out, declared)
	return out
}

// aliases maps the gulp task names onto classes.
var aliases = map[string]Class{
	"html":  Markup,
	"css":   Styles,
	"scss":  Styles,
	"js":    Scripts,
	"img":   Images,
	"image": Images,
	"font":  Fonts,
}

// ParseClass resolves a class name or one of its short aliases.
func ParseClass(s string) (Class, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range declared {
		if string(c) == name {
			return c, nil
		}
	}
	if c, ok := aliases[name]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Valid reports whether c is one of the declared classes.
func (c Class) Valid() bool {
	for _, d := range declared {
		if d == c {
			return true
		}
	}
	return false
}

// Order returns the position of c in the declared build order, or -1.
func (c Class) Order() int {
	for i, d := range declared {
		if d == c {
			return i
		}
	}
	return -1
}

func (c Class) String() string { return string(c) }

// Mode switches source maps and minification.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// ParseMode follows the NODE_ENV convention: empty or "development" means
// development, anything else is production.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return Development
	default:
		return Production
	}
}

// SourceMaps reports whether transforms should emit source maps.
func (m Mode) SourceMaps() bool { return m != Production }

// Minify reports whether optional minification steps run.
func (m Mode) Minify() bool { return m == Production }

// Spec is the immutable configuration of one asset class.
type Spec struct {
	Class Class
	// Source is the glob of files fed to the pipeline.
	Source string
	// Output is the directory outputs are written to, relative to the project root.
	Output string
	// Watch is the glob whose changes re-trigger the class.
	Watch string
	// Bundle, when set, merges every transformed source of the class into
	// one output file with this name instead of writing per-file outputs.
	Bundle string
}

// Validate checks the fields that have no sensible zero value.
func (s Spec) Validate() error {
	if !s.Class.Valid() {
		return fmt.Errorf("unknown asset class %q", s.Class)
	}
	if s.Source == "" {
		return fmt.Errorf("%s: source glob is required", s.Class)
	}
	if s.Output == "" {
		return fmt.Errorf("%s: output directory is required", s.Class)
	}
	if strings.ContainsAny(s.Bundle, `/\`) {
		return fmt.Errorf("%s: bundle must be a file name, got %q", s.Class, s.Bundle)
	}
	return nil
}

// WatchGlob returns the watch glob, falling back to the source glob.
func (s Spec) WatchGlob() string {
	if s.Watch != "" {
		return s.Watch
	}
	return s.Source
}

// Asset is a file travelling through the transform stage. Path is relative:
// for inputs to the project root, for outputs to the class output directory.
type Asset struct {
	Path    string
	Content []byte
}
