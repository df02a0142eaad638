package build

import (
	"github.com/conneroisu/kiln/internal/asset"
)

// Candidate is a file that passed the change filter.
type Candidate struct {
	Path      string
	Signature string
	// Err is set when the file could not be read for signing.
	Err error
}

// Filter selects the files of a resolved set that need transforming.
//
// A file passes when it has no record, its signature differs from the
// recorded one, or any recorded output is missing on disk.
type Filter struct {
	memory     *Memory
	signatures *SignatureProvider
	exists     func(path string) bool
}

// NewFilter creates a filter.
func NewFilter(memory *Memory, signatures *SignatureProvider, exists func(path string) bool) *Filter {
	return &Filter{memory: memory, signatures: signatures, exists: exists}
}

// Changed returns the candidates to transform and the paths skipped as
// unchanged, both in input order. With force every file is a candidate.
func (f *Filter) Changed(class asset.Class, paths []string, force bool) ([]Candidate, []string) {
	var changed []Candidate
	var skipped []string

	for _, p := range paths {
		sig, err := f.signatures.Signature(p)
		if err != nil {
			changed = append(changed, Candidate{Path: p, Err: err})
			continue
		}
		if force || f.isChanged(class, p, sig) {
			changed = append(changed, Candidate{Path: p, Signature: sig})
			continue
		}
		skipped = append(skipped, p)
	}

	return changed, skipped
}

func (f *Filter) isChanged(class asset.Class, path, signature string) bool {
	rec, ok := f.memory.Lookup(class, path)
	if !ok || rec.Signature != signature {
		return true
	}
	if len(rec.Outputs) == 0 {
		return true
	}
	for _, out := range rec.Outputs {
		if !f.exists(out) {
			return true
		}
	}
	return false
}
