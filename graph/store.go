// Package graph defines the property-graph store surface the rest of the
// toolchain builds on, an embedded in-memory implementation, and the dump
// import/export format.
//
// Two backends implement Store: the in-memory store in this package and the
// Bolt-protocol store in graph/neo4j. Algorithms (dependency derivation, the
// validator queries) run on the generic Store surface and work against both.
package graph

import (
	"context"
	"errors"

	"github.com/zero-day-ai/packgraph/content"
)

// Sentinel errors for store operations.
var (
	// ErrStoreUnavailable indicates the store cannot accept connections
	// after retries. Surfaces to the CLI as exit code 3.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrIncompatibleSchema indicates an imported dump was produced by a
	// different domain-model schema. Recoverable by a full rebuild.
	ErrIncompatibleSchema = errors.New("dump schema is incompatible")

	// ErrNodeNotFound indicates the requested node is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConstraintViolated indicates a bulk insert broke a uniqueness
	// constraint. The whole transaction is aborted.
	ErrConstraintViolated = errors.New("uniqueness constraint violated")

	// ErrInvariantViolated indicates the stored graph breaks a structural
	// invariant, such as an edge whose source node is missing. Graph
	// algorithms abort rather than compute over a corrupt graph.
	ErrInvariantViolated = errors.New("graph invariant violated")
)

// SearchOptions filter a node search. Zero values mean "no filter".
type SearchOptions struct {
	// Marketplace keeps only nodes shipping in this marketplace.
	Marketplace content.Marketplace

	// Types keeps only nodes of these concrete types.
	Types []content.ContentType

	// IDs keeps only nodes whose object id is listed.
	IDs []string

	// Properties keeps only nodes whose flat property map matches every
	// listed key/value pair.
	Properties map[string]any
}

// Store is the property-graph surface every component calls. At most one
// write runs at a time per logical graph; reads may run concurrently with
// other reads.
type Store interface {
	// Open establishes the connection or backing state.
	Open(ctx context.Context) error

	// Close releases the store.
	Close(ctx context.Context) error

	// IsAlive reports whether the store accepts operations.
	IsAlive(ctx context.Context) bool

	// CreateIndexesAndConstraints installs the index and uniqueness
	// constraint set for the domain model. Idempotent.
	CreateIndexesAndConstraints(ctx context.Context) error

	// CreateNodes bulk-inserts nodes, upserting by (content_type,
	// object_id, source_path). Command nodes merge: their marketplaces
	// become the union of every owning integration's.
	CreateNodes(ctx context.Context, nodes content.Nodes) error

	// CreateRelationships bulk-inserts edges, idempotent by (source,
	// target, type). On match, mandatorily ORs, is_test ANDs, and
	// from_metadata sticks once true.
	CreateRelationships(ctx context.Context, rels content.Relationships) error

	// RemovePacks deletes the named packs' nodes and every edge with a
	// removed node on either endpoint. Cross-pack edge preservation is the
	// caller's concern (the incremental updater snapshots them first).
	RemovePacks(ctx context.Context, packIDs []string) error

	// DeleteRelationships removes the listed edges.
	DeleteRelationships(ctx context.Context, keys []content.EdgeKey) error

	// Node returns one node by key, ErrNodeNotFound when absent. When
	// several version variants share the key the lowest fromversion wins.
	Node(ctx context.Context, key content.NodeKey) (*content.Node, error)

	// Nodes returns all nodes of the given concrete types, or every node
	// when no type is given.
	Nodes(ctx context.Context, types ...content.ContentType) ([]*content.Node, error)

	// Relationships returns all edges of the given types, or every edge
	// when no type is given.
	Relationships(ctx context.Context, types ...content.RelationshipType) ([]*content.Relationship, error)

	// Search returns nodes matching the options.
	Search(ctx context.Context, opts SearchOptions) ([]*content.Node, error)
}
