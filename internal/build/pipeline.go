package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/scanner"
	"github.com/conneroisu/kiln/internal/transform"
)

// Reloader is told about outputs that changed on disk.
type Reloader interface {
	Reload(ctx context.Context, class asset.Class, paths []string, runID string)
}

// Request asks for one pipeline run.
type Request struct {
	Class asset.Class
	// Paths restricts the run to these project-relative sources. Empty means
	// the whole source set, which also sweeps records of vanished sources.
	Paths []string
	// Force bypasses the change filter.
	Force bool
}

// Report describes a finished run.
type Report struct {
	ID          string            `json:"id"`
	Class       asset.Class       `json:"class"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
	Resolved    int               `json:"resolved"`
	Transformed []string          `json:"transformed"`
	Skipped     []string          `json:"skipped"`
	Written     []string          `json:"written"`
	Removed     []string          `json:"removed"`
	CacheHits   int               `json:"cache_hits"`
	Failures    []kerrors.Failure `json:"-"`
}

// Changed reports whether the run touched the output directory.
func (r *Report) Changed() bool {
	return len(r.Written) > 0 || len(r.Removed) > 0
}

// FailureMessages renders the failures as "file: error" lines.
func (r *Report) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.File+": "+f.Err.Error())
	}
	return out
}

// Options configures a Pipeline.
type Options struct {
	// Fs is rooted at the project directory.
	Fs           afero.Fs
	Specs        []asset.Spec
	Mode         asset.Mode
	Transformers map[asset.Class]transform.Transformer
	Workers      int

	Memory        *Memory
	Cache         TransformCache
	CachedClasses map[asset.Class]bool
	Metrics       *Metrics
	Reloader      Reloader
	Errors        *kerrors.ErrorHandler
	Logger        logging.Logger
}

// Pipeline runs resolve, filter, transform, write and remember for one class
// at a time. Runs of the same class are serialised; different classes may run
// concurrently.
type Pipeline struct {
	specs        map[asset.Class]asset.Spec
	mode         asset.Mode
	transformers map[asset.Class]transform.Transformer
	workers      int

	fs         afero.Fs
	resolver   *scanner.Resolver
	memory     *Memory
	signatures *SignatureProvider
	filter     *Filter
	writer     *Writer

	cache   TransformCache
	cached  map[asset.Class]bool
	metrics *Metrics

	reloader Reloader
	errors   *kerrors.ErrorHandler
	logger   logging.Logger

	locks map[asset.Class]*sync.Mutex

	lastMu sync.RWMutex
	last   map[asset.Class]*Report
}

type outcome struct {
	artifacts []asset.Asset
	deps      []string
	cached    bool
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Fs == nil {
		return nil, kerrors.NewInternalError(kerrors.ErrCodeInternalError, "pipeline needs a filesystem", nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Memory == nil {
		opts.Memory = NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Errors == nil {
		opts.Errors = kerrors.NewErrorHandler(opts.Logger, nil)
	}

	p := &Pipeline{
		specs:        make(map[asset.Class]asset.Spec, len(opts.Specs)),
		mode:         opts.Mode,
		transformers: opts.Transformers,
		workers:      opts.Workers,
		fs:           opts.Fs,
		resolver:     scanner.NewResolver(afero.NewIOFS(opts.Fs)),
		memory:       opts.Memory,
		signatures:   NewSignatureProvider(opts.Fs),
		writer:       NewWriter(opts.Fs),
		cache:        opts.Cache,
		cached:       opts.CachedClasses,
		metrics:      opts.Metrics,
		reloader:     opts.Reloader,
		errors:       opts.Errors,
		logger:       opts.Logger.WithComponent("pipeline"),
		locks:        make(map[asset.Class]*sync.Mutex, len(opts.Specs)),
		last:         make(map[asset.Class]*Report),
	}
	p.filter = NewFilter(p.memory, p.signatures, p.writer.Exists)

	for _, spec := range opts.Specs {
		if err := spec.Validate(); err != nil {
			return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "invalid asset class", err)
		}
		if !scanner.Valid(spec.Source) {
			return nil, kerrors.ErrBadGlob(spec.Source)
		}
		if _, ok := p.transformers[spec.Class]; !ok {
			return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "no transformer for class "+string(spec.Class), nil)
		}
		p.specs[spec.Class] = spec
		p.locks[spec.Class] = &sync.Mutex{}
	}

	return p, nil
}

// Spec returns the spec of class.
func (p *Pipeline) Spec(class asset.Class) (asset.Spec, bool) {
	spec, ok := p.specs[class]
	return spec, ok
}

// Classes returns the configured classes in declared build order.
func (p *Pipeline) Classes() []asset.Class {
	out := make([]asset.Class, 0, len(p.specs))
	for _, class := range asset.Classes() {
		if _, ok := p.specs[class]; ok {
			out = append(out, class)
		}
	}
	return out
}

// Memory returns the output memory.
func (p *Pipeline) Memory() *Memory {
	return p.memory
}

// Last returns the most recent report of class.
func (p *Pipeline) Last(class asset.Class) (*Report, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	r, ok := p.last[class]
	return r, ok
}

// Run executes one pipeline run. The error is non-nil only for fatal
// conditions; per-file failures are in the report.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	spec, ok := p.specs[req.Class]
	if !ok {
		return nil, kerrors.ErrUnknownClass(string(req.Class))
	}

	lock := p.locks[spec.Class]
	lock.Lock()
	defer lock.Unlock()

	report := &Report{ID: uuid.NewString(), Class: spec.Class, StartedAt: time.Now()}
	log := p.logger.With("class", string(spec.Class), "run_id", report.ID)
	op := logging.StartOperation(log, "pipeline.run")

	if err := p.writer.EnsureDir(spec.Output); err != nil {
		return nil, err
	}

	full := len(req.Paths) == 0
	var targets []string
	var err error
	if full {
		targets, err = p.resolver.Resolve(spec.Source)
	} else {
		targets, err = p.resolver.ResolveAll(spec.Source, req.Paths)
	}
	if err != nil {
		return nil, err
	}
	report.Resolved = len(targets)

	// Named paths were reported as changed. Their memo entries may still
	// match when an edit kept the size and the modification time.
	if !full {
		for _, t := range targets {
			p.signatures.Invalidate(t)
		}
	}

	candidates, skipped := p.filter.Changed(spec.Class, targets, req.Force)
	report.Skipped = skipped

	collector := kerrors.NewErrorCollector()
	outcomes, err := p.transformAll(ctx, spec, candidates, collector)
	if err != nil {
		return nil, err
	}
	if err := collector.Fatal(); err != nil {
		log.Error(ctx, err, "Pipeline run aborted")
		return nil, err
	}

	bundleDirty := false
	for i, c := range candidates {
		o := outcomes[i]
		if o == nil {
			continue
		}
		if o.cached {
			report.CacheHits++
		}

		rec := FileRecord{Source: c.Path, Signature: c.Signature, Artifacts: o.artifacts, Deps: o.deps}
		if spec.Bundle != "" {
			rec.Outputs = []string{bundlePath(spec)}
			p.memory.Record(spec.Class, rec)
			report.Transformed = append(report.Transformed, c.Path)
			bundleDirty = true
			continue
		}

		written, err := p.writeArtifacts(spec, o.artifacts)
		if err != nil {
			collector.Add(string(spec.Class), c.Path, err)
			continue
		}
		report.Transformed = append(report.Transformed, c.Path)
		report.Written = append(report.Written, written...)

		if prev, ok := p.memory.Lookup(spec.Class, c.Path); ok {
			report.Removed = append(report.Removed, p.removeStale(prev.Outputs, written)...)
		}
		rec.Outputs = written
		p.memory.Record(spec.Class, rec)
		log.Debug(ctx, "Asset written", "file", c.Path, "outputs", written)
	}

	if full {
		present := make(map[string]bool, len(targets))
		for _, t := range targets {
			present[t] = true
		}
		for _, source := range p.memory.Paths(spec.Class) {
			if present[source] {
				continue
			}
			report.Removed = append(report.Removed, p.forgetSource(spec, source)...)
			bundleDirty = bundleDirty || spec.Bundle != ""
			log.Info(ctx, "Source vanished", "file", source)
		}
	}

	if spec.Bundle != "" && (bundleDirty || !p.writer.Exists(bundlePath(spec))) {
		written, removed, err := p.assembleBundle(spec)
		if err != nil {
			collector.Add(string(spec.Class), bundlePath(spec), err)
		}
		report.Written = append(report.Written, written...)
		report.Removed = append(report.Removed, removed...)
	}

	if dropped := p.memory.Reconcile(spec.Class, p.writer.Exists); len(dropped) > 0 {
		log.Warn(ctx, nil, "Dropped records with missing outputs", "files", dropped)
	}

	report.Failures = collector.Failures()
	for _, f := range report.Failures {
		p.errors.Handle(ctx, f.Err)
	}

	p.finish(ctx, report)
	op.End(ctx,
		"resolved", report.Resolved,
		"transformed", len(report.Transformed),
		"skipped", len(report.Skipped),
		"failed", len(report.Failures))

	return report, nil
}

// Forget handles a deleted source: its record and per-file outputs go away
// and a bundle is rebuilt from what remains in memory. No transform runs.
func (p *Pipeline) Forget(ctx context.Context, class asset.Class, source string) (*Report, error) {
	spec, ok := p.specs[class]
	if !ok {
		return nil, kerrors.ErrUnknownClass(string(class))
	}

	lock := p.locks[spec.Class]
	lock.Lock()
	defer lock.Unlock()

	source = scanner.Normalize(source)
	report := &Report{ID: uuid.NewString(), Class: spec.Class, StartedAt: time.Now()}
	p.signatures.Invalidate(source)

	if _, known := p.memory.Lookup(spec.Class, source); !known {
		report.Duration = time.Since(report.StartedAt)
		return report, nil
	}

	report.Removed = p.forgetSource(spec, source)
	if spec.Bundle != "" {
		written, removed, err := p.assembleBundle(spec)
		if err != nil {
			collector := kerrors.NewErrorCollector()
			collector.Add(string(spec.Class), bundlePath(spec), err)
			report.Failures = collector.Failures()
			p.errors.Handle(ctx, report.Failures[0].Err)
		}
		report.Written = written
		report.Removed = append(report.Removed, removed...)
	}

	p.finish(ctx, report)
	p.logger.Info(ctx, "Source forgotten", "class", string(spec.Class), "file", source)

	return report, nil
}

// Clean removes root from disk and drops all memory.
func (p *Pipeline) Clean(ctx context.Context, root string) error {
	classes := make([]asset.Class, 0, len(p.locks))
	for class := range p.locks {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Order() < classes[j].Order() })
	for _, class := range classes {
		p.locks[class].Lock()
		defer p.locks[class].Unlock()
	}

	if err := p.writer.RemoveAll(root); err != nil {
		return err
	}
	p.memory.Reset()
	for _, class := range classes {
		p.metrics.SetRemembered(class, 0)
	}
	p.logger.Info(ctx, "Output removed", "path", root)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, report *Report) {
	report.Duration = time.Since(report.StartedAt)
	p.metrics.ObserveRun(report, p.memory.Len(report.Class))
	p.metrics.SetSignatureMemo(p.signatures.Stats())

	p.lastMu.Lock()
	p.last[report.Class] = report
	p.lastMu.Unlock()

	if report.Changed() && p.reloader != nil {
		paths := make([]string, 0, len(report.Written)+len(report.Removed))
		paths = append(paths, report.Written...)
		paths = append(paths, report.Removed...)
		p.reloader.Reload(ctx, report.Class, paths, report.ID)
	}
}

func (p *Pipeline) transformAll(ctx context.Context, spec asset.Spec, candidates []Candidate, collector *kerrors.ErrorCollector) ([]*outcome, error) {
	outcomes := make([]*outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range candidates {
		g.Go(func() error {
			o, err := p.transformOne(gctx, spec, c)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				collector.Add(string(spec.Class), c.Path, err)
				return nil
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

func (p *Pipeline) transformOne(ctx context.Context, spec asset.Spec, c Candidate) (*outcome, error) {
	if c.Err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeReadFailed, "cannot read source", c.Err)
	}

	useCache := p.cache != nil && p.cached[spec.Class]
	key := CacheKey{Class: spec.Class, Mode: p.mode, Source: c.Path, Signature: c.Signature}
	if useCache {
		entry, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn(ctx, err, "Transform cache lookup failed", "file", c.Path)
		} else if ok {
			return &outcome{artifacts: entry.Artifacts, cached: true}, nil
		}
	}

	content, err := afero.ReadFile(p.fs, c.Path)
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeReadFailed, "cannot read source", err)
	}

	res, err := p.transformers[spec.Class].Transform(ctx, asset.Asset{Path: c.Path, Content: content})
	if err != nil {
		// Classified errors pass through so fatal ones can stop the run.
		var ke *kerrors.KilnError
		if errors.As(err, &ke) || ctx.Err() != nil {
			return nil, err
		}
		return nil, kerrors.ErrTransformFailed(string(spec.Class), c.Path, err)
	}

	artifacts := make([]asset.Asset, 0, 1+len(res.Extra))
	artifacts = append(artifacts, asset.Asset{Path: scanner.Rel(spec.Source, res.Asset.Path), Content: res.Asset.Content})
	for _, extra := range res.Extra {
		artifacts = append(artifacts, asset.Asset{Path: scanner.Rel(spec.Source, extra.Path), Content: extra.Content})
	}

	o := &outcome{artifacts: artifacts, deps: res.Deps}
	if useCache && len(res.Deps) == 0 {
		if err := p.cache.Put(ctx, key, &CachedTransform{Artifacts: artifacts}); err != nil {
			p.logger.Warn(ctx, err, "Transform cache store failed", "file", c.Path)
		}
	}

	return o, nil
}

func (p *Pipeline) writeArtifacts(spec asset.Spec, artifacts []asset.Asset) ([]string, error) {
	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		out := path.Join(spec.Output, a.Path)
		if err := p.writer.Write(out, a.Content); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

// removeStale deletes outputs of a previous record that the new one no
// longer produces.
func (p *Pipeline) removeStale(previous, current []string) []string {
	keep := make(map[string]bool, len(current))
	for _, c := range current {
		keep[c] = true
	}

	var removed []string
	for _, out := range previous {
		if keep[out] {
			continue
		}
		if err := p.writer.Remove(out); err == nil {
			removed = append(removed, out)
		}
	}
	return removed
}

// forgetSource drops the record of source and, without a bundle, deletes its
// outputs. The caller holds the class lock.
func (p *Pipeline) forgetSource(spec asset.Spec, source string) []string {
	rec, ok := p.memory.Forget(spec.Class, source)
	if !ok || spec.Bundle != "" {
		return nil
	}

	var removed []string
	for _, out := range rec.Outputs {
		if err := p.writer.Remove(out); err != nil {
			p.logger.Warn(context.Background(), err, "Cannot remove output", "file", out)
			continue
		}
		removed = append(removed, out)
	}
	return removed
}

// assembleBundle re-merges the primary artifact of every remembered source
// in source order. With nothing remembered the bundle is removed.
func (p *Pipeline) assembleBundle(spec asset.Spec) (written, removed []string, err error) {
	target := bundlePath(spec)
	records := p.memory.Records(spec.Class)

	if len(records) == 0 {
		if p.writer.Exists(target) {
			if err := p.writer.Remove(target); err != nil {
				return nil, nil, err
			}
			return nil, []string{target}, nil
		}
		return nil, nil, nil
	}

	var buf bytes.Buffer
	for _, rec := range records {
		if len(rec.Artifacts) == 0 {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(rec.Artifacts[0].Content)
	}

	if err := p.writer.Write(target, buf.Bytes()); err != nil {
		return nil, nil, fmt.Errorf("bundle %s: %w", target, err)
	}
	return []string{target}, nil, nil
}

func bundlePath(spec asset.Spec) string {
	return path.Join(spec.Output, spec.Bundle)
}
