//go:build property

package errors

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent adds are neither lost nor unsorted", prop.ForAll(
		func(goroutines int, perGoroutine int) bool {
			collector := NewErrorCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for e := 0; e < perGoroutine; e++ {
						collector.Add("scripts", fmt.Sprintf("src/js/%02d_%02d.js", g, e), fmt.Errorf("fail %d", e))
					}
				}(g)
			}
			wg.Wait()

			failures := collector.Failures()
			if len(failures) != goroutines*perGoroutine {
				return false
			}
			return sort.SliceIsSorted(failures, func(i, j int) bool {
				return failures[i].File < failures[j].File
			})
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 30),
	))

	properties.Property("recoverable and fatal are complementary", prop.ForAll(
		func(recoverable bool, code string) bool {
			err := &KilnError{Code: code, Recoverable: recoverable}
			return IsRecoverable(err) != IsFatal(err)
		},
		gen.Bool(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
