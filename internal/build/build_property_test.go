//go:build property

package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/kiln/internal/asset"
)

// TestCachingLaws checks, over random edit sequences, that every unseen file
// is transformed exactly once, unchanged files never again, and removed
// files leave memory and the bundle.
func TestCachingLaws(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)

	properties.Property("incremental rebuilds", prop.ForAll(
		func(fileCount int, edited []int, removed []int) bool {
			f := newFixture(t, scriptsSpec("bundle.js"))
			names := make([]string, fileCount)
			for i := range names {
				names[i] = fmt.Sprintf("src/js/f%02d.js", i)
				f.write(names[i], fmt.Sprintf("let v%d", i))
			}

			first, err := f.pipeline.Run(context.Background(), Request{Class: asset.Scripts})
			if err != nil || len(first.Transformed) != fileCount {
				return false
			}
			for _, n := range names {
				if f.transformer.count(n) != 1 {
					return false
				}
			}

			second, err := f.pipeline.Run(context.Background(), Request{Class: asset.Scripts})
			if err != nil || len(second.Transformed) != 0 {
				return false
			}

			editedSet := map[string]bool{}
			for _, i := range edited {
				n := names[i%fileCount]
				editedSet[n] = true
				f.write(n, fmt.Sprintf("let edited%d = %q", i, n))
			}
			removedSet := map[string]bool{}
			for _, i := range removed {
				n := names[i%fileCount]
				if removedSet[n] {
					continue
				}
				removedSet[n] = true
				f.remove(n)
			}

			third, err := f.pipeline.Run(context.Background(), Request{Class: asset.Scripts})
			if err != nil {
				return false
			}
			for _, n := range third.Transformed {
				if !editedSet[n] || removedSet[n] {
					return false
				}
			}
			for n := range removedSet {
				if _, ok := f.pipeline.Memory().Lookup(asset.Scripts, n); ok {
					return false
				}
			}
			if len(removedSet) < fileCount {
				bundle := f.read("build/js/bundle.js")
				for n := range removedSet {
					for i, name := range names {
						if name == n && containsLine(bundle, fmt.Sprintf("LET V%d", i)) {
							return false
						}
					}
				}
			} else if f.exists("build/js/bundle.js") {
				return false
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(3, gen.IntRange(0, 100)),
		gen.SliceOfN(2, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func containsLine(content, line string) bool {
	start := 0
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			if content[start:i] == line {
				return true
			}
			start = i + 1
		}
	}
	return false
}
