package packgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/deps"
	"github.com/zero-day-ai/packgraph/graph"
	neo4jstore "github.com/zero-day-ai/packgraph/graph/neo4j"
	"github.com/zero-day-ai/packgraph/update"
	"github.com/zero-day-ai/packgraph/validate"
	"github.com/zero-day-ai/packgraph/walk"
)

// Engine ties the graph store, the repository walker, the dependency
// resolver, the updater and the validation engine behind one façade. All
// state lives on the Engine, never in package globals, so multiple engines
// with different configurations can coexist in one process.
type Engine struct {
	cfg      Config
	store    graph.Store
	walker   *walk.Walker
	resolver *deps.Resolver
	updater  *update.Updater
	log      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore injects a store, overriding the configured backend. Used by
// embedders and tests.
func WithStore(store graph.Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithEngineLogger overrides the default logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine from the configuration.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("Engine.New", err)
	}

	e := &Engine{
		cfg: cfg,
		log: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		switch cfg.Backend {
		case BackendNeo4j:
			e.store = neo4jstore.NewStore(cfg.Neo4j)
		default:
			e.store = graph.NewMemoryStore()
		}
	}

	walkOpts := []walk.Option{walk.WithLogger(e.log)}
	if cfg.Workers > 0 {
		walkOpts = append(walkOpts, walk.WithWorkers(cfg.Workers))
	}
	e.walker = walk.New(walkOpts...)
	e.resolver = deps.New(e.store, deps.WithLogger(e.log))

	updaterOpts := []update.UpdaterOption{update.WithLogger(e.log)}
	if cfg.RedisURL != "" {
		lock, err := update.NewRedisLock(update.RedisLockOptions{URL: cfg.RedisURL})
		if err != nil {
			return nil, NewConfigurationError("Engine.New", err)
		}
		updaterOpts = append(updaterOpts, update.WithLocker(lock))
	}
	e.updater = update.NewUpdater(e.store, e.walker, e.resolver, updaterOpts...)
	return e, nil
}

// Store exposes the underlying graph store.
func (e *Engine) Store() graph.Store {
	return e.store
}

// Close releases the store.
func (e *Engine) Close(ctx context.Context) error {
	return e.store.Close(ctx)
}

// CreateGraph rebuilds the graph from scratch and exports it.
func (e *Engine) CreateGraph(ctx context.Context, opts update.Options) (*update.Summary, error) {
	summary, err := e.updater.Create(ctx, e.fillOptions(opts))
	if err != nil {
		return nil, e.wrapUpdateErr("Engine.CreateGraph", err)
	}
	return summary, nil
}

// UpdateGraph refreshes the graph incrementally, falling back to a full
// rebuild when no usable baseline exists.
func (e *Engine) UpdateGraph(ctx context.Context, opts update.Options) (*update.Summary, error) {
	summary, err := e.updater.Update(ctx, e.fillOptions(opts))
	if err != nil {
		return nil, e.wrapUpdateErr("Engine.UpdateGraph", err)
	}
	return summary, nil
}

func (e *Engine) fillOptions(opts update.Options) update.Options {
	if opts.RepoRoot == "" {
		opts.RepoRoot = e.cfg.RepoRoot
	}
	if opts.OutputDir == "" {
		opts.OutputDir = e.cfg.OutputDir
	}
	return opts
}

func (e *Engine) wrapUpdateErr(op string, err error) error {
	switch {
	case errors.Is(err, update.ErrUpdateInProgress):
		return NewConflictError(op, err)
	case errors.Is(err, graph.ErrStoreUnavailable):
		return NewStoreError(op, err)
	}
	return NewInternalError(op, err)
}

// Dependencies computes a pack's dependencies, first-level or transitive.
func (e *Engine) Dependencies(ctx context.Context, packID string, opts deps.QueryOptions, allLevels bool) ([]deps.Dependency, error) {
	var (
		out []deps.Dependency
		err error
	)
	if allLevels {
		out, err = e.resolver.AllLevel(ctx, packID, opts)
	} else {
		out, err = e.resolver.FirstLevel(ctx, packID, opts)
	}
	if err != nil {
		return nil, NewNotFoundError("Engine.Dependencies", fmt.Errorf("%w: %v", ErrPackNotFound, err))
	}
	return out, nil
}

// Related is one node reachable from the queried item.
type Related struct {
	NodeID      string `json:"node_id"`
	Path        string `json:"path,omitempty"`
	Depth       int    `json:"depth"`
	Mandatorily bool   `json:"mandatorily,omitempty"`
}

// RelationshipView groups the nodes connected to one item through a single
// relationship type, split by edge direction.
type RelationshipView struct {
	NodeID string `json:"node_id"`
	Path   string `json:"path"`

	// Sources reach the item; Targets are reached from it.
	Sources []Related `json:"sources"`
	Targets []Related `json:"targets"`
}

// Relationships walks edges of one type from the item at the given source
// path, up to depth hops in each direction.
func (e *Engine) Relationships(ctx context.Context, path string, relType content.RelationshipType, depth int) (*RelationshipView, error) {
	const op = "Engine.Relationships"
	if depth <= 0 {
		depth = 1
	}

	nodes, err := e.store.Nodes(ctx)
	if err != nil {
		return nil, NewStoreError(op, err)
	}
	byKey := make(map[content.NodeKey]*content.Node, len(nodes))
	var root *content.Node
	for _, n := range nodes {
		byKey[n.Key()] = n
		if n.SourcePath == path {
			root = n
		}
	}
	if root == nil {
		return nil, NewNotFoundError(op, fmt.Errorf("%w: %s", ErrNodeNotFound, path))
	}

	rels, err := e.store.Relationships(ctx, relType)
	if err != nil {
		return nil, NewStoreError(op, err)
	}
	outgoing := make(map[content.NodeKey][]*content.Relationship)
	incoming := make(map[content.NodeKey][]*content.Relationship)
	for _, rel := range rels {
		outgoing[rel.Source] = append(outgoing[rel.Source], rel)
		incoming[rel.Target] = append(incoming[rel.Target], rel)
	}

	view := &RelationshipView{
		NodeID: root.Key().ID(),
		Path:   root.SourcePath,
	}
	view.Targets = expand(root.Key(), outgoing, byKey, depth, func(rel *content.Relationship) content.NodeKey { return rel.Target })
	view.Sources = expand(root.Key(), incoming, byKey, depth, func(rel *content.Relationship) content.NodeKey { return rel.Source })
	return view, nil
}

// expand runs a breadth-first traversal over one edge direction, recording
// each node at its shortest depth.
func expand(start content.NodeKey, edges map[content.NodeKey][]*content.Relationship, byKey map[content.NodeKey]*content.Node, depth int, next func(*content.Relationship) content.NodeKey) []Related {
	type frontierEntry struct {
		key         content.NodeKey
		mandatorily bool
	}
	seen := map[content.NodeKey]bool{start: true}
	frontier := []frontierEntry{{key: start, mandatorily: true}}
	var out []Related

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var nextFrontier []frontierEntry
		for _, entry := range frontier {
			for _, rel := range edges[entry.key] {
				k := next(rel)
				if seen[k] {
					continue
				}
				seen[k] = true
				related := Related{
					NodeID:      k.ID(),
					Depth:       level,
					Mandatorily: entry.mandatorily && rel.Mandatorily,
				}
				if n, ok := byKey[k]; ok {
					related.Path = n.SourcePath
				}
				out = append(out, related)
				nextFrontier = append(nextFrontier, frontierEntry{key: k, mandatorily: related.Mandatorily})
			}
		}
		frontier = nextFrontier
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// Validate runs the validation engine over the current graph. Paths, when
// non-empty, restrict validation to the items parsed from those files;
// otherwise every content item is validated.
func (e *Engine) Validate(ctx context.Context, mode string, paths []string, fix bool) (*validate.Report, error) {
	const op = "Engine.Validate"
	cfg, err := validate.LoadConfig(e.cfg.ValidationConfig)
	if err != nil {
		return nil, NewConfigurationError(op, err)
	}

	nodes, err := e.store.Nodes(ctx)
	if err != nil {
		return nil, NewStoreError(op, err)
	}
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}
	var targets []validate.Target
	for _, n := range nodes {
		if n.NotInRepository || n.SourcePath == "" {
			continue
		}
		if len(wanted) > 0 && !wanted[n.SourcePath] {
			continue
		}
		targets = append(targets, validate.Target{Node: n})
	}

	engine := validate.New(e.store, cfg, validate.WithLogger(e.log))
	report, err := engine.Run(ctx, validate.RunOptions{
		Mode:    mode,
		Targets: targets,
		Fix:     fix,
	})
	if err != nil {
		return nil, NewValidationError(op, err)
	}
	return report, nil
}
