// Package deps derives pack-to-pack DEPENDS_ON edges from content-item USES
// edges and answers depth-bounded dependency queries.
//
// Derivation runs after every build or partial update, in three phases:
// staged reference resolution, command-to-integration promotion, and pack
// dependency derivation. Each phase reads the whole graph through the store
// contract and writes back merged edges, so both store backends behave
// identically.
package deps

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

// MaxDepth bounds all-level dependency traversal.
const MaxDepth = 5

// GenericCommands are command names implemented by many integrations at
// once. Using one never implies a dependency on any particular integration.
var GenericCommands = map[string]bool{
	"cve":               true,
	"cve-latest":        true,
	"cve-search":        true,
	"domain":            true,
	"email":             true,
	"endpoint":          true,
	"file":              true,
	"ip":                true,
	"send-mail":         true,
	"send-notification": true,
	"url":               true,
}

// IgnoredPacks never participate in dependency derivation, as either side.
var IgnoredPacks = map[string]bool{
	"ApiModules":        true,
	"Base":              true,
	"DeprecatedContent": true,
	"NonSupported":      true,
}

var tracer = otel.Tracer("packgraph/deps")

// Resolver runs dependency derivation and answers dependency queries
// against one store.
type Resolver struct {
	store graph.Store
	log   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// New creates a Resolver over the given store.
func New(store graph.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the full derivation pipeline: staged reference resolution,
// removal of previously derived DEPENDS_ON edges, command promotion, and
// pack dependency derivation. The derivation trace is written to the
// artifacts folder when one is configured.
func (r *Resolver) Resolve(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "deps.Resolve", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if err := r.ResolveUses(ctx); err != nil {
		return err
	}
	if err := r.deleteDerived(ctx); err != nil {
		return err
	}
	if err := r.PromoteCommands(ctx); err != nil {
		return err
	}
	report, err := r.DerivePackDependencies(ctx)
	if err != nil {
		return err
	}
	return writeTrace(report, r.log)
}

// deleteDerived removes every DEPENDS_ON edge not declared in pack
// metadata, so derivation starts from a clean slate.
func (r *Resolver) deleteDerived(ctx context.Context) error {
	rels, err := r.store.Relationships(ctx, content.RelDependsOn)
	if err != nil {
		return err
	}
	var keys []content.EdgeKey
	for _, rel := range rels {
		if !rel.FromMetadata {
			keys = append(keys, rel.Key())
		}
	}
	if len(keys) == 0 {
		return nil
	}
	r.log.Debug("removing derived pack dependencies", "count", len(keys))
	return r.store.DeleteRelationships(ctx, keys)
}
