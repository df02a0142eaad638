package transform

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// includeDirective matches `//= path` on a line of its own, optionally inside
// an HTML comment.
var includeDirective = regexp.MustCompile(`^(\s*)(?:<!--\s*)?//=\s*(?:include\s+)?(\S+?)\s*(?:-->)?\s*$`)

const maxIncludeDepth = 16

// Include splices `//= path` directives with the referenced file. Paths are
// relative to the including file. Included files are reported as deps.
type Include struct {
	fsys fs.FS
}

// NewInclude creates the include step over the project filesystem.
func NewInclude(fsys fs.FS) *Include {
	return &Include{fsys: fsys}
}

// Transform implements Transformer.
func (inc *Include) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	var deps []string
	out, err := inc.expand(ctx, in.Path, in.Content, []string{in.Path}, &deps)
	if err != nil {
		return nil, err
	}
	return &Result{Asset: asset.Asset{Path: in.Path, Content: out}, Deps: deps}, nil
}

func (inc *Include) expand(ctx context.Context, file string, content []byte, stack []string, deps *[]string) ([]byte, error) {
	if !bytes.Contains(content, []byte("//=")) {
		return content, nil
	}
	if len(stack) > maxIncludeDepth {
		return nil, kerrors.NewTransformError(kerrors.ErrCodeIncludeFailed, "includes nested too deeply", nil).WithFile(file)
	}

	var buf bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		m := includeDirective.FindStringSubmatch(line)
		if m == nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := path.Clean(path.Join(path.Dir(file), m[2]))
		for _, s := range stack {
			if s == target {
				return nil, kerrors.NewTransformError(kerrors.ErrCodeIncludeFailed,
					fmt.Sprintf("include cycle: %s -> %s", strings.Join(stack, " -> "), target), nil).WithFile(file)
			}
		}

		included, err := fs.ReadFile(inc.fsys, target)
		if err != nil {
			return nil, kerrors.NewTransformError(kerrors.ErrCodeIncludeFailed,
				fmt.Sprintf("line %d: cannot include %s", lineNo, m[2]), err).WithFile(file)
		}
		*deps = appendUnique(*deps, target)

		expanded, err := inc.expand(ctx, target, included, append(stack, target), deps)
		if err != nil {
			return nil, err
		}
		indent := m[1]
		for _, l := range strings.SplitAfter(string(expanded), "\n") {
			if l == "" {
				continue
			}
			buf.WriteString(indent)
			buf.WriteString(l)
		}
		if len(expanded) > 0 && expanded[len(expanded)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, kerrors.NewTransformError(kerrors.ErrCodeIncludeFailed, "cannot scan", err).WithFile(file)
	}

	// keep a missing trailing newline missing
	out := buf.Bytes()
	if len(content) > 0 && content[len(content)-1] != '\n' && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}
