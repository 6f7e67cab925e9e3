// Package update decides, for each invocation, between a full graph
// rebuild, importing a prebuilt dump, and a partial update of the packs a
// VCS diff names. Partial updates preserve cross-pack edges whose remote
// endpoint was not touched, so the result matches a full rebuild at the
// same commit.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/deps"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/parse"
	"github.com/zero-day-ai/packgraph/walk"
)

// EnvForceCreate forces a full rebuild regardless of available baselines.
const EnvForceCreate = "DEMISTO_SDK_GRAPH_FORCE_CREATE"

// ErrBuildMismatch reports that re-parsing a pack produced a node set
// inconsistent with the preserved cross-pack edges. The caller falls back
// to a full rebuild.
var ErrBuildMismatch = errors.New("partial update produced an inconsistent graph")

var tracer = otel.Tracer("packgraph/update")

// Options parameterizes one update or create invocation.
type Options struct {
	// RepoRoot is the content repository root.
	RepoRoot string

	// OutputDir, when set, receives the exported dump after the build.
	OutputDir string

	// ImportPath is a local dump directory to start from.
	ImportPath string

	// BaselineURL is a remote dump to download when no local import path
	// is given.
	BaselineURL string

	// Packs names the packs to update. Empty with UseGit unset means the
	// update set comes from the VCS diff.
	Packs []string

	// UseGit derives the update set from the diff against the baseline
	// commit.
	UseGit bool

	// NoDependencies skips dependency derivation after the build.
	NoDependencies bool

	// ParserCommit identifies the parser code version; a baseline built by
	// a different parser triggers a full rebuild.
	ParserCommit string
}

// Summary reports what an invocation did.
type Summary struct {
	// Mode is "create" for a full rebuild or "update" for a partial one.
	Mode string

	// Packs lists the walked pack ids.
	Packs []string

	// Diagnostics collects per-file parse failures. Never fatal.
	Diagnostics []*parse.Diagnostic

	// Commit is the commit recorded in the exported metadata, when known.
	Commit string
}

// Updater owns one store and runs builds against it.
type Updater struct {
	store    graph.Store
	walker   *walk.Walker
	resolver *deps.Resolver
	lock     Locker
	log      *slog.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithLocker sets the advisory lock implementation.
func WithLocker(lock Locker) UpdaterOption {
	return func(u *Updater) { u.lock = lock }
}

// WithLogger sets the updater's logger.
func WithLogger(log *slog.Logger) UpdaterOption {
	return func(u *Updater) { u.log = log }
}

// NewUpdater creates an Updater. Without WithLocker, updates are not
// serialized across processes.
func NewUpdater(store graph.Store, walker *walk.Walker, resolver *deps.Resolver, opts ...UpdaterOption) *Updater {
	u := &Updater{
		store:    store,
		walker:   walker,
		resolver: resolver,
		lock:     NoopLock{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Create runs a full rebuild.
func (u *Updater) Create(ctx context.Context, opts Options) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "update.Create")
	defer span.End()
	return u.locked(ctx, opts, u.create)
}

// Update runs the incremental decision tree: force-create flag, store
// liveness, baseline availability, schema and parser compatibility, then a
// partial update of the changed packs, falling back to a full rebuild when
// any gate fails.
func (u *Updater) Update(ctx context.Context, opts Options) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "update.Update")
	defer span.End()
	return u.locked(ctx, opts, u.update)
}

func (u *Updater) locked(ctx context.Context, opts Options, fn func(context.Context, Options) (*Summary, error)) (*Summary, error) {
	if err := u.ensureOpen(ctx); err != nil {
		return nil, err
	}
	if err := u.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := u.lock.Release(context.WithoutCancel(ctx)); err != nil {
			u.log.Warn("releasing update lock", "error", err)
		}
	}()
	return fn(ctx, opts)
}

func (u *Updater) ensureOpen(ctx context.Context) error {
	if u.store.IsAlive(ctx) {
		return nil
	}
	if err := u.store.Open(ctx); err != nil {
		return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, err)
	}
	if !u.store.IsAlive(ctx) {
		return graph.ErrStoreUnavailable
	}
	return nil
}

func (u *Updater) update(ctx context.Context, opts Options) (*Summary, error) {
	if forceCreate() {
		u.log.Info("force-create flag set, running full rebuild")
		return u.create(ctx, opts)
	}

	// Nothing to go on defaults to a git-driven update.
	if opts.ImportPath == "" && opts.BaselineURL == "" && len(opts.Packs) == 0 {
		opts.UseGit = true
	}

	dumpDir, err := u.baselineDir(ctx, opts)
	if err != nil {
		u.log.Warn("no usable baseline, running full rebuild", "error", err)
		return u.create(ctx, opts)
	}
	if dumpDir == "" {
		return u.create(ctx, opts)
	}

	meta, err := graph.ReadMetadata(dumpDir)
	if err != nil {
		u.log.Warn("unreadable baseline metadata, running full rebuild", "error", err)
		return u.create(ctx, opts)
	}
	if opts.ParserCommit != "" && meta.ParserCommit != opts.ParserCommit {
		u.log.Info("baseline built by a different parser version, running full rebuild",
			"baseline", meta.ParserCommit, "current", opts.ParserCommit)
		return u.create(ctx, opts)
	}

	if _, err := graph.Import(ctx, u.store, dumpDir); err != nil {
		if errors.Is(err, graph.ErrIncompatibleSchema) {
			u.log.Info("baseline schema is incompatible, running full rebuild")
			return u.create(ctx, opts)
		}
		return nil, err
	}

	updateSet := opts.Packs
	if opts.UseGit {
		updateSet, err = ChangedPacks(ctx, opts.RepoRoot, meta.Commit)
		if err != nil {
			u.log.Warn("diff against baseline failed, running full rebuild", "error", err)
			return u.create(ctx, opts)
		}
	}

	summary := &Summary{Mode: "update", Packs: updateSet}
	if len(updateSet) > 0 {
		if err := u.partial(ctx, updateSet, opts, summary); err != nil {
			if errors.Is(err, ErrBuildMismatch) {
				u.log.Warn("partial update inconsistent, falling back to full rebuild", "error", err)
				return u.create(ctx, opts)
			}
			return nil, err
		}
	}
	if err := u.finalize(ctx, opts, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (u *Updater) create(ctx context.Context, opts Options) (*Summary, error) {
	if err := u.wipe(ctx); err != nil {
		return nil, err
	}
	if err := u.store.CreateIndexesAndConstraints(ctx); err != nil {
		return nil, err
	}
	res, err := u.walker.Walk(ctx, opts.RepoRoot, nil)
	if err != nil {
		return nil, err
	}
	if err := u.store.CreateNodes(ctx, res.Nodes); err != nil {
		return nil, err
	}
	if err := u.store.CreateRelationships(ctx, res.Relationships); err != nil {
		return nil, err
	}
	summary := &Summary{Mode: "create", Packs: res.Packs, Diagnostics: res.Diagnostics}
	if err := u.finalize(ctx, opts, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// wipe removes every pack currently in the store, so a rebuild on a reused
// store starts clean.
func (u *Updater) wipe(ctx context.Context) error {
	packs, err := u.store.Nodes(ctx, content.TypePack)
	if err != nil {
		return err
	}
	if len(packs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(packs))
	for _, p := range packs {
		ids = append(ids, p.ObjectID)
	}
	return u.store.RemovePacks(ctx, ids)
}

// partial replaces the named packs in place, preserving every edge whose
// remote endpoint lives outside the update set.
func (u *Updater) partial(ctx context.Context, updateSet []string, opts Options, summary *Summary) error {
	set := make(map[string]bool, len(updateSet))
	for _, id := range updateSet {
		set[id] = true
	}

	owner, err := u.packOwners(ctx)
	if err != nil {
		return err
	}
	rels, err := u.store.Relationships(ctx)
	if err != nil {
		return err
	}
	preserved := content.Relationships{}
	for _, rel := range rels {
		srcIn := set[owner[rel.Source]]
		dstIn := set[owner[rel.Target]]
		if srcIn != dstIn {
			preserved.Add(rel)
		}
	}

	if err := u.store.RemovePacks(ctx, updateSet); err != nil {
		return err
	}
	res, err := u.walker.Walk(ctx, opts.RepoRoot, updateSet)
	if err != nil {
		return err
	}
	if err := u.store.CreateNodes(ctx, res.Nodes); err != nil {
		return err
	}
	if err := u.store.CreateRelationships(ctx, res.Relationships); err != nil {
		return err
	}
	summary.Diagnostics = append(summary.Diagnostics, res.Diagnostics...)

	reinsert := content.Relationships{}
	for _, group := range preserved {
		for _, rel := range group {
			srcIn := set[owner[rel.Source]]
			local, remote := rel.Source, rel.Target
			if !srcIn {
				local, remote = rel.Target, rel.Source
			}
			if _, err := u.store.Node(ctx, remote); err != nil {
				// The untouched side vanished: the replace was inconsistent.
				return fmt.Errorf("%w: remote endpoint %s of preserved edge is gone", ErrBuildMismatch, remote.ID())
			}
			if _, err := u.store.Node(ctx, local); err != nil {
				// The re-parsed pack no longer publishes this item; its
				// edges go with it.
				u.log.Debug("dropping preserved edge, local endpoint removed",
					"edge", rel.Type, "local", local.ID())
				continue
			}
			reinsert.Add(rel)
		}
	}
	if reinsert.Len() > 0 {
		if err := u.store.CreateRelationships(ctx, reinsert); err != nil {
			return err
		}
	}
	return nil
}

// packOwners maps every node key to its owning pack id.
func (u *Updater) packOwners(ctx context.Context) (map[content.NodeKey]string, error) {
	nodes, err := u.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	owner := make(map[content.NodeKey]string, len(nodes))
	for _, n := range nodes {
		switch {
		case n.Type == content.TypePack:
			owner[n.Key()] = n.ObjectID
		case n.PackID != "":
			owner[n.Key()] = n.PackID
		}
	}
	return owner, nil
}

// finalize derives dependencies and exports the dump.
func (u *Updater) finalize(ctx context.Context, opts Options, summary *Summary) error {
	if !opts.NoDependencies {
		if err := u.resolver.Resolve(ctx); err != nil {
			return err
		}
	}
	if opts.OutputDir == "" {
		return nil
	}
	commit, err := HeadCommit(ctx, opts.RepoRoot)
	if err != nil {
		u.log.Warn("cannot resolve baseline commit for export", "error", err)
	}
	summary.Commit = commit
	return graph.Export(ctx, u.store, opts.OutputDir, graph.Metadata{
		Commit:       commit,
		ParserCommit: opts.ParserCommit,
	})
}

func forceCreate() bool {
	switch os.Getenv(EnvForceCreate) {
	case "", "0", "false", "False":
		return false
	}
	return true
}
