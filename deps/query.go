package deps

import (
	"context"
	"fmt"
	"sort"

	"github.com/zero-day-ai/packgraph/content"
)

// QueryOptions filters dependency queries.
type QueryOptions struct {
	// Marketplace, when set, requires every pack on a dependency path to
	// ship in it.
	Marketplace content.Marketplace

	// MandatoryOnly keeps only paths whose every edge is mandatory.
	MandatoryOnly bool

	// IncludeTests keeps edges contributed solely by test content.
	IncludeTests bool

	// MaxDepth bounds all-level traversal; zero means the default.
	MaxDepth int
}

// Dependency is one resolved pack dependency.
type Dependency struct {
	// PackID is the depended-on pack.
	PackID string `json:"pack_id"`

	// Mandatorily reports whether every edge on the path is mandatory.
	Mandatorily bool `json:"mandatorily"`

	// IsTest reports whether the direct edge exists only for test content.
	// Always false for paths longer than one hop, since test edges are
	// excluded from traversal.
	IsTest bool `json:"is_test,omitempty"`

	// Depth is the path length in DEPENDS_ON hops.
	Depth int `json:"depth"`

	// Path lists the pack ids from source to target, inclusive.
	Path []string `json:"path"`
}

// FirstLevel returns the direct dependencies of a pack.
func (r *Resolver) FirstLevel(ctx context.Context, packID string, opts QueryOptions) ([]Dependency, error) {
	ctx, span := tracer.Start(ctx, "deps.FirstLevel")
	defer span.End()

	adj, packs, err := r.adjacency(ctx, opts)
	if err != nil {
		return nil, err
	}
	if _, ok := packs[packID]; !ok {
		return nil, fmt.Errorf("pack %q not found", packID)
	}
	var out []Dependency
	for _, edge := range adj[packID] {
		if !opts.IncludeTests && edge.isTest {
			continue
		}
		if opts.MandatoryOnly && !edge.mandatorily {
			continue
		}
		out = append(out, Dependency{
			PackID:      edge.target,
			Mandatorily: edge.mandatorily,
			IsTest:      edge.isTest,
			Depth:       1,
			Path:        []string{packID, edge.target},
		})
	}
	sortDependencies(out)
	return out, nil
}

// AllLevel returns every pack reachable from packID over DEPENDS_ON within
// the depth bound, via shortest paths. Test edges never extend a path. When
// two paths to the same pack tie on length, the one whose final edge is
// mandatory wins.
func (r *Resolver) AllLevel(ctx context.Context, packID string, opts QueryOptions) ([]Dependency, error) {
	ctx, span := tracer.Start(ctx, "deps.AllLevel")
	defer span.End()

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}
	adj, packs, err := r.adjacency(ctx, opts)
	if err != nil {
		return nil, err
	}
	if _, ok := packs[packID]; !ok {
		return nil, fmt.Errorf("pack %q not found", packID)
	}

	type pathState struct {
		path        []string
		mandatorily bool
		finalEdge   bool
	}
	best := map[string]pathState{}
	frontier := []pathState{{path: []string{packID}, mandatorily: true}}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []pathState
		for _, state := range frontier {
			tail := state.path[len(state.path)-1]
			for _, edge := range adj[tail] {
				if edge.isTest {
					continue
				}
				if opts.MandatoryOnly && !edge.mandatorily {
					continue
				}
				if contains(state.path, edge.target) {
					continue
				}
				candidate := pathState{
					path:        append(append([]string{}, state.path...), edge.target),
					mandatorily: state.mandatorily && edge.mandatorily,
					finalEdge:   edge.mandatorily,
				}
				prev, seen := best[edge.target]
				switch {
				case !seen:
				case len(prev.path) < len(candidate.path):
					continue
				case len(prev.path) == len(candidate.path) && (prev.finalEdge || !candidate.finalEdge):
					continue
				}
				best[edge.target] = candidate
				next = append(next, candidate)
			}
		}
		frontier = next
	}

	out := make([]Dependency, 0, len(best))
	for target, state := range best {
		out = append(out, Dependency{
			PackID:      target,
			Mandatorily: state.mandatorily,
			Depth:       len(state.path) - 1,
			Path:        state.path,
		})
	}
	sortDependencies(out)
	return out, nil
}

type depEdge struct {
	target      string
	mandatorily bool
	isTest      bool
}

// adjacency builds the DEPENDS_ON adjacency lists honoring the marketplace
// filter: packs outside the marketplace are absent entirely, so no path may
// pass through them.
func (r *Resolver) adjacency(ctx context.Context, opts QueryOptions) (map[string][]depEdge, map[string]*content.Node, error) {
	nodes, err := r.store.Nodes(ctx, content.TypePack)
	if err != nil {
		return nil, nil, err
	}
	packs := make(map[string]*content.Node, len(nodes))
	for _, n := range nodes {
		if opts.Marketplace != "" && !content.MarketplacesContain(n.Marketplaces, opts.Marketplace) {
			continue
		}
		packs[n.ObjectID] = n
	}

	rels, err := r.store.Relationships(ctx, content.RelDependsOn)
	if err != nil {
		return nil, nil, err
	}
	adj := make(map[string][]depEdge)
	for _, rel := range rels {
		src, dst := rel.Source.ObjectID, rel.Target.ObjectID
		if _, ok := packs[src]; !ok {
			continue
		}
		if _, ok := packs[dst]; !ok {
			continue
		}
		adj[src] = append(adj[src], depEdge{
			target:      dst,
			mandatorily: rel.Mandatorily,
			isTest:      rel.IsTest,
		})
	}
	return adj, packs, nil
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func sortDependencies(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Depth != deps[j].Depth {
			return deps[i].Depth < deps[j].Depth
		}
		return deps[i].PackID < deps[j].PackID
	})
}
