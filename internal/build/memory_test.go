package build

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/asset"
)

func TestMemoryRecordLookupForget(t *testing.T) {
	m := NewMemory()
	m.Record(asset.Scripts, FileRecord{Source: "src/js/b.js", Signature: "b", Outputs: []string{"build/js/b.js"}})
	m.Record(asset.Scripts, FileRecord{Source: "src/js/a.js", Signature: "a", Outputs: []string{"build/js/a.js"}})
	m.Record(asset.Styles, FileRecord{Source: "src/scss/core/style.scss"})

	rec, ok := m.Lookup(asset.Scripts, "src/js/a.js")
	require.True(t, ok)
	assert.Equal(t, "a", rec.Signature)
	assert.False(t, rec.UpdatedAt.IsZero())

	assert.Equal(t, []string{"src/js/a.js", "src/js/b.js"}, m.Paths(asset.Scripts))
	records := m.Records(asset.Scripts)
	require.Len(t, records, 2)
	assert.Equal(t, "src/js/a.js", records[0].Source)

	forgotten, ok := m.Forget(asset.Scripts, "src/js/a.js")
	require.True(t, ok)
	assert.Equal(t, "a", forgotten.Signature)
	_, ok = m.Forget(asset.Scripts, "src/js/a.js")
	assert.False(t, ok)

	// Classes are isolated from each other.
	_, ok = m.Forget(asset.Styles, "src/js/b.js")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len(asset.Styles))
}

func TestMemoryDependents(t *testing.T) {
	m := NewMemory()
	m.Record(asset.Markup, FileRecord{Source: "src/index.gohtml", Deps: []string{"src/templates/header.gohtml"}})
	m.Record(asset.Markup, FileRecord{Source: "src/about.gohtml", Deps: []string{"src/templates/header.gohtml", "src/templates/footer.gohtml"}})
	m.Record(asset.Markup, FileRecord{Source: "src/plain.gohtml"})

	assert.Equal(t, []string{"src/about.gohtml", "src/index.gohtml"}, m.Dependents(asset.Markup, "src/templates/header.gohtml"))
	assert.Equal(t, []string{"src/about.gohtml"}, m.Dependents(asset.Markup, "src/templates/footer.gohtml"))
	assert.Empty(t, m.Dependents(asset.Scripts, "src/templates/header.gohtml"))
}

func TestMemoryReset(t *testing.T) {
	m := NewMemory()
	m.Record(asset.Scripts, FileRecord{Source: "a"})
	m.Record(asset.Fonts, FileRecord{Source: "b"})

	m.Reset(asset.Scripts)
	assert.Zero(t, m.Len(asset.Scripts))
	assert.Equal(t, 1, m.Len(asset.Fonts))

	m.Reset()
	assert.Zero(t, m.Len(asset.Fonts))
}

func TestMemoryReconcile(t *testing.T) {
	m := NewMemory()
	m.Record(asset.Images, FileRecord{Source: "src/img/a.png", Outputs: []string{"build/img/a.png"}})
	m.Record(asset.Images, FileRecord{Source: "src/img/b.png", Outputs: []string{"build/img/b.png"}})

	onDisk := map[string]bool{"build/img/b.png": true}
	dropped := m.Reconcile(asset.Images, func(p string) bool { return onDisk[p] })

	assert.Equal(t, []string{"src/img/a.png"}, dropped)
	assert.Equal(t, []string{"src/img/b.png"}, m.Paths(asset.Images))
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := string(rune('a'+i)) + ".js"
			m.Record(asset.Scripts, FileRecord{Source: src})
			m.Lookup(asset.Scripts, src)
			m.Paths(asset.Scripts)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len(asset.Scripts))
}
