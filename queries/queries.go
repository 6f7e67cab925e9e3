// Package queries implements the named graph queries backing validators.
// Each query runs over the live store and returns rows pairing the
// offending source with its counterpart, so callers can point at files.
package queries

import (
	"context"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

// Row is one query result: the offending node, its counterpart, and the
// edge connecting them when the query is edge-based.
type Row struct {
	Source *content.Node
	Target *content.Node
	Edge   *content.Relationship
}

// Filter narrows query results. A nil or empty FilePaths set keeps
// everything.
type Filter struct {
	// FilePaths, when non-empty, keeps only rows whose source file is in
	// the set.
	FilePaths []string
}

func (f Filter) keep(source *content.Node) bool {
	if len(f.FilePaths) == 0 {
		return true
	}
	for _, p := range f.FilePaths {
		if p == source.SourcePath {
			return true
		}
	}
	return false
}

// Runner executes named queries against one store.
type Runner struct {
	store graph.Store
}

// NewRunner creates a Runner over the given store.
func NewRunner(store graph.Store) *Runner {
	return &Runner{store: store}
}

// snapshot caches the node set for edge resolution within one query.
type snapshot struct {
	byKey map[content.NodeKey][]*content.Node
}

func (r *Runner) load(ctx context.Context) (*snapshot, error) {
	nodes, err := r.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	s := &snapshot{byKey: make(map[content.NodeKey][]*content.Node, len(nodes))}
	for _, n := range nodes {
		s.byKey[n.Key()] = append(s.byKey[n.Key()], n)
	}
	return s, nil
}

func (s *snapshot) node(key content.NodeKey) *content.Node {
	group := s.byKey[key]
	if len(group) == 0 {
		return nil
	}
	for _, n := range group {
		if !n.NotInRepository {
			return n
		}
	}
	return group[0]
}

// usesRows iterates USES edges, resolving both endpoints.
func (r *Runner) usesRows(ctx context.Context, filter Filter, pred func(src, dst *content.Node, rel *content.Relationship) bool) ([]Row, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := r.store.Relationships(ctx, content.RelUses)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, rel := range rels {
		src, dst := snap.node(rel.Source), snap.node(rel.Target)
		if src == nil || dst == nil || !filter.keep(src) {
			continue
		}
		if pred(src, dst, rel) {
			out = append(out, Row{Source: src, Target: dst, Edge: rel})
		}
	}
	return out, nil
}

// UnknownUsage finds mandatory USES edges pointing at content that does not
// exist in the repository.
func (r *Runner) UnknownUsage(ctx context.Context, filter Filter) ([]Row, error) {
	return r.usesRows(ctx, filter, func(src, dst *content.Node, rel *content.Relationship) bool {
		return rel.Mandatorily && dst.NotInRepository
	})
}

// InvalidFromVersion finds USES edges where the source becomes available
// before its target does.
func (r *Runner) InvalidFromVersion(ctx context.Context, filter Filter) ([]Row, error) {
	return r.usesRows(ctx, filter, func(src, dst *content.Node, rel *content.Relationship) bool {
		if dst.NotInRepository || src.FromVersion.IsZero() || dst.FromVersion.IsZero() {
			return false
		}
		return src.FromVersion.Less(dst.FromVersion)
	})
}

// InvalidToVersion finds USES edges where the source outlives its target.
func (r *Runner) InvalidToVersion(ctx context.Context, filter Filter) ([]Row, error) {
	return r.usesRows(ctx, filter, func(src, dst *content.Node, rel *content.Relationship) bool {
		if dst.NotInRepository || src.ToVersion.IsZero() || dst.ToVersion.IsZero() {
			return false
		}
		return dst.ToVersion.Less(src.ToVersion)
	})
}

// MarketplaceLeakage finds USES edges where the source ships in a
// marketplace its target does not.
func (r *Runner) MarketplaceLeakage(ctx context.Context, filter Filter) ([]Row, error) {
	return r.usesRows(ctx, filter, func(src, dst *content.Node, rel *content.Relationship) bool {
		if dst.NotInRepository {
			return false
		}
		return !content.MarketplacesSubset(src.Marketplaces, dst.Marketplaces)
	})
}

// DeprecatedUsage finds USES edges whose target is deprecated.
func (r *Runner) DeprecatedUsage(ctx context.Context, filter Filter) ([]Row, error) {
	return r.usesRows(ctx, filter, func(src, dst *content.Node, rel *content.Relationship) bool {
		return dst.Deprecated
	})
}

// DuplicateDisplayName finds pack pairs sharing a display name under
// different ids.
func (r *Runner) DuplicateDisplayName(ctx context.Context, filter Filter) ([]Row, error) {
	packs, err := r.store.Nodes(ctx, content.TypePack)
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]*content.Node)
	for _, p := range packs {
		name := p.DisplayName
		if name == "" {
			name = p.Name
		}
		byName[name] = append(byName[name], p)
	}
	var out []Row
	for _, group := range byName {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if group[i].ObjectID == group[j].ObjectID || !filter.keep(group[i]) {
					continue
				}
				out = append(out, Row{Source: group[i], Target: group[j]})
			}
		}
	}
	return out, nil
}

// DuplicateID finds same-typed content items sharing an object id with
// overlapping version windows and overlapping marketplaces.
func (r *Runner) DuplicateID(ctx context.Context, filter Filter) ([]Row, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Row
	for key, group := range snap.byKey {
		if !key.Type.IsContentItem() || len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.NotInRepository || b.NotInRepository {
					continue
				}
				if !filter.keep(a) && !filter.keep(b) {
					continue
				}
				if !a.VersionRange().Overlaps(b.VersionRange()) {
					continue
				}
				if !content.MarketplacesIntersect(a.Marketplaces, b.Marketplaces) {
					continue
				}
				out = append(out, Row{Source: a, Target: b})
			}
		}
	}
	return out, nil
}

// CorePackDependency finds core packs depending on packs outside the core
// allowlist, within one marketplace.
func (r *Runner) CorePackDependency(ctx context.Context, marketplace content.Marketplace, corePacks []string, filter Filter) ([]Row, error) {
	core := make(map[string]bool, len(corePacks))
	for _, id := range corePacks {
		core[id] = true
	}
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := r.store.Relationships(ctx, content.RelDependsOn)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, rel := range rels {
		if !core[rel.Source.ObjectID] || core[rel.Target.ObjectID] {
			continue
		}
		src, dst := snap.node(rel.Source), snap.node(rel.Target)
		if src == nil || dst == nil || !filter.keep(src) {
			continue
		}
		if marketplace != "" && !content.MarketplacesContain(src.Marketplaces, marketplace) {
			continue
		}
		if rel.IsTest {
			continue
		}
		out = append(out, Row{Source: src, Target: dst, Edge: rel})
	}
	return out, nil
}

// HiddenPackDependency finds mandatory dependencies on hidden packs.
func (r *Runner) HiddenPackDependency(ctx context.Context, filter Filter) ([]Row, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := r.store.Relationships(ctx, content.RelDependsOn)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, rel := range rels {
		if !rel.Mandatorily {
			continue
		}
		src, dst := snap.node(rel.Source), snap.node(rel.Target)
		if src == nil || dst == nil || !filter.keep(src) {
			continue
		}
		data, ok := dst.Data.(*content.PackData)
		if !ok || !data.Hidden {
			continue
		}
		out = append(out, Row{Source: src, Target: dst, Edge: rel})
	}
	return out, nil
}
