package build

import (
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/kiln/internal/asset"
)

// FileRecord is what the pipeline remembers about one source file.
type FileRecord struct {
	Source    string
	Signature string
	// Outputs are project-relative paths written for this source. With a
	// bundle configured this is the bundle path.
	Outputs []string
	// Artifacts are the transformed assets, relative to the class output
	// directory. The first one is the primary output.
	Artifacts []asset.Asset
	// Deps are files pulled in while transforming the source.
	Deps      []string
	UpdatedAt time.Time
}

// Memory is the per-class output memory. It is owned by the pipeline and
// lives as long as the process.
type Memory struct {
	classes map[asset.Class]map[string]FileRecord
	mu      sync.RWMutex
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{classes: make(map[asset.Class]map[string]FileRecord)}
}

// Record stores rec for its source, replacing any earlier record.
func (m *Memory) Record(class asset.Class, rec FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.classes[class]
	if !ok {
		records = make(map[string]FileRecord)
		m.classes[class] = records
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	records[rec.Source] = rec
}

// Forget removes the record for path and returns it.
func (m *Memory) Forget(class asset.Class, path string) (FileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.classes[class][path]
	if ok {
		delete(m.classes[class], path)
	}
	return rec, ok
}

// Lookup returns the record for path.
func (m *Memory) Lookup(class asset.Class, path string) (FileRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.classes[class][path]
	return rec, ok
}

// Records returns the class's records ordered by source path.
func (m *Memory) Records(class asset.Class) []FileRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FileRecord, 0, len(m.classes[class]))
	for _, rec := range m.classes[class] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Paths returns the remembered source paths of class, sorted.
func (m *Memory) Paths(class asset.Class) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.classes[class]))
	for p := range m.classes[class] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of records for class.
func (m *Memory) Len(class asset.Class) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.classes[class])
}

// Dependents returns the remembered sources of class whose Deps include path.
func (m *Memory) Dependents(class asset.Class, path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for source, rec := range m.classes[class] {
		for _, dep := range rec.Deps {
			if dep == path {
				out = append(out, source)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Reset drops every record of the given classes, or of all classes when none
// are given.
func (m *Memory) Reset(classes ...asset.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(classes) == 0 {
		m.classes = make(map[asset.Class]map[string]FileRecord)
		return
	}
	for _, class := range classes {
		delete(m.classes, class)
	}
}

// Reconcile drops records with any output that exists reports missing and
// returns their sources. Afterwards every remembered output is on disk.
func (m *Memory) Reconcile(class asset.Class, exists func(path string) bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dropped []string
	for source, rec := range m.classes[class] {
		for _, out := range rec.Outputs {
			if !exists(out) {
				delete(m.classes[class], source)
				dropped = append(dropped, source)
				break
			}
		}
	}
	sort.Strings(dropped)
	return dropped
}
