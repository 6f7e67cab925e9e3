package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zero-day-ai/packgraph/content"
)

// MemoryStore is the embedded Store backend: a flat map of nodes keyed by
// (content_type, object_id) plus edges as triples. A key may hold several
// nodes when distinct files publish the same id (the duplicate-id query
// reports the overlapping ones).
//
// Writes are serialized behind a single mutex; reads take the shared lock.
type MemoryStore struct {
	mu sync.RWMutex

	open  bool
	nodes map[content.NodeKey][]*content.Node
	edges map[content.EdgeKey]*content.Relationship

	// indexes records what CreateIndexesAndConstraints installed; the
	// memory backend needs no physical indexes but the lifecycle is
	// observable for parity with the remote backend.
	indexes []string
}

// NewMemoryStore creates an unopened MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Open initializes the backing maps. Opening an open store is a no-op.
func (s *MemoryStore) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	s.nodes = make(map[content.NodeKey][]*content.Node)
	s.edges = make(map[content.EdgeKey]*content.Relationship)
	s.open = true
	return nil
}

// Close drops the store's state.
func (s *MemoryStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.nodes = nil
	s.edges = nil
	s.indexes = nil
	return nil
}

// IsAlive reports whether the store is open.
func (s *MemoryStore) IsAlive(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// CreateIndexesAndConstraints records the index set. The embedded backend
// answers lookups from its maps directly.
func (s *MemoryStore) CreateIndexesAndConstraints(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.indexes = IndexDescriptors()
	return nil
}

// Indexes returns the installed index descriptors.
func (s *MemoryStore) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.indexes))
	copy(out, s.indexes)
	return out
}

func (s *MemoryStore) CreateNodes(_ context.Context, nodes content.Nodes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	// Validate first: a failed bulk insert commits nothing.
	for _, group := range nodes {
		for _, n := range group {
			if err := n.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrConstraintViolated, err)
			}
		}
	}
	for _, group := range nodes {
		for _, n := range group {
			s.upsertNode(n)
		}
	}
	return nil
}

// upsertNode merges a node into the store. Same (key, source_path) replaces;
// a new source path for an existing key adds a sibling variant. Command
// nodes always merge into one, unioning marketplaces. A placeholder and a
// repository node never coexist under one key: the repository node wins.
func (s *MemoryStore) upsertNode(n *content.Node) {
	key := n.Key()
	existing := s.nodes[key]

	if n.Type == content.TypeCommand {
		if len(existing) > 0 {
			if existing[0].NotInRepository && !n.NotInRepository {
				n.Marketplaces = content.MarketplacesUnion(existing[0].Marketplaces, n.Marketplaces)
				s.nodes[key] = []*content.Node{n}
				return
			}
			existing[0].Marketplaces = content.MarketplacesUnion(existing[0].Marketplaces, n.Marketplaces)
			return
		}
		s.nodes[key] = []*content.Node{n}
		return
	}

	if n.NotInRepository {
		for _, old := range existing {
			if !old.NotInRepository {
				return
			}
		}
	} else {
		kept := existing[:0]
		for _, old := range existing {
			if !old.NotInRepository {
				kept = append(kept, old)
			}
		}
		existing = kept
	}

	for i, old := range existing {
		if old.SourcePath == n.SourcePath {
			existing[i] = n
			s.nodes[key] = existing
			return
		}
	}
	s.nodes[key] = append(existing, n)
}

func (s *MemoryStore) CreateRelationships(_ context.Context, rels content.Relationships) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	for _, group := range rels {
		for _, r := range group {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrConstraintViolated, err)
			}
		}
	}
	for _, group := range rels {
		for _, r := range group {
			s.mergeEdge(r)
		}
	}
	return nil
}

// mergeEdge upserts one edge: on match mandatorily ORs, is_test ANDs, and
// from_metadata sticks once set. A metadata-declared DEPENDS_ON edge's
// mandatorily is authoritative over derived values.
func (s *MemoryStore) mergeEdge(r *content.Relationship) {
	key := r.Key()
	existing, ok := s.edges[key]
	if !ok {
		cp := *r
		s.edges[key] = &cp
		return
	}
	if existing.FromMetadata && !r.FromMetadata {
		return
	}
	if r.FromMetadata && !existing.FromMetadata {
		cp := *r
		s.edges[key] = &cp
		return
	}
	existing.Mandatorily = existing.Mandatorily || r.Mandatorily
	existing.IsTest = existing.IsTest && r.IsTest
	if r.Description != "" {
		existing.Description = r.Description
	}
	existing.Deprecated = existing.Deprecated || r.Deprecated
	existing.Quickaction = existing.Quickaction || r.Quickaction
}

func (s *MemoryStore) RemovePacks(_ context.Context, packIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	removed := make(map[string]bool, len(packIDs))
	for _, id := range packIDs {
		removed[id] = true
	}

	gone := make(map[content.NodeKey]bool)
	for key, group := range s.nodes {
		var kept []*content.Node
		for _, n := range group {
			owner := n.PackID
			if n.Type == content.TypePack {
				owner = n.ObjectID
			}
			if n.Type != content.TypeCommand && removed[owner] {
				continue
			}
			kept = append(kept, n)
		}
		if len(kept) == 0 {
			delete(s.nodes, key)
			gone[key] = true
		} else {
			s.nodes[key] = kept
		}
	}
	for key := range s.edges {
		if gone[key.Source] || gone[key.Target] {
			delete(s.edges, key)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteRelationships(_ context.Context, keys []content.EdgeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	for _, key := range keys {
		delete(s.edges, key)
	}
	return nil
}

func (s *MemoryStore) Node(_ context.Context, key content.NodeKey) (*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	group := s.nodes[key]
	if len(group) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, key.ID())
	}
	best := group[0]
	for _, n := range group[1:] {
		if !n.FromVersion.IsZero() && !best.FromVersion.IsZero() && n.FromVersion.Less(best.FromVersion) {
			best = n
		}
	}
	return best, nil
}

func (s *MemoryStore) Nodes(_ context.Context, types ...content.ContentType) ([]*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	want := make(map[content.ContentType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*content.Node
	for _, group := range s.nodes {
		for _, n := range group {
			if len(want) == 0 || want[n.Type] {
				out = append(out, n)
			}
		}
	}
	sortNodes(out)
	return out, nil
}

func (s *MemoryStore) Relationships(_ context.Context, types ...content.RelationshipType) ([]*content.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	want := make(map[content.RelationshipType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*content.Relationship
	for _, r := range s.edges {
		if len(want) == 0 || want[r.Type] {
			out = append(out, r)
		}
	}
	sortRelationships(out)
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, opts SearchOptions) ([]*content.Node, error) {
	nodes, err := s.Nodes(ctx, opts.Types...)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(opts.IDs))
	for _, id := range opts.IDs {
		ids[id] = true
	}
	var out []*content.Node
	for _, n := range nodes {
		if opts.Marketplace != "" && !content.MarketplacesContain(n.Marketplaces, opts.Marketplace) {
			continue
		}
		if len(ids) > 0 && !ids[n.ObjectID] {
			continue
		}
		if !matchProperties(n, opts.Properties) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func matchProperties(n *content.Node, filters map[string]any) bool {
	if len(filters) == 0 {
		return true
	}
	props := n.Properties()
	for key, want := range filters {
		if props[key] != want {
			return false
		}
	}
	return true
}

func (s *MemoryStore) ensureOpen() error {
	if !s.open {
		return ErrStoreUnavailable
	}
	return nil
}

func sortNodes(nodes []*content.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type < nodes[j].Type
		}
		if nodes[i].ObjectID != nodes[j].ObjectID {
			return nodes[i].ObjectID < nodes[j].ObjectID
		}
		return nodes[i].SourcePath < nodes[j].SourcePath
	})
}

func sortRelationships(rels []*content.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Type != rels[j].Type {
			return rels[i].Type < rels[j].Type
		}
		if rels[i].Source != rels[j].Source {
			return rels[i].Source.ID() < rels[j].Source.ID()
		}
		return rels[i].Target.ID() < rels[j].Target.ID()
	})
}
