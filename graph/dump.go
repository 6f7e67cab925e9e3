package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/packgraph/content"
)

// Dump directory layout.
const (
	dumpGraphFile    = "graph.json"
	dumpMetadataFile = "metadata.json"
	dumpSchemaFile   = "schema.json"
)

// Metadata is the sidecar blob identifying what a dump was built from.
type Metadata struct {
	// Commit is the content repository commit the graph was built at.
	Commit string `json:"commit"`

	// ParserCommit is the toolchain commit of the parser that produced the
	// dump. A diverging parser forces a full rebuild.
	ParserCommit string `json:"content_parser_latest_commit"`

	// SchemaHash is the domain-model schema hash at export time.
	SchemaHash string `json:"schema_hash"`

	// ExportID uniquely identifies this export.
	ExportID string `json:"export_id"`

	// ExportedAt is the export timestamp.
	ExportedAt time.Time `json:"exported_at"`
}

// dumpNode is one serialized node.
type dumpNode struct {
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// dumpEdge is one serialized relationship.
type dumpEdge struct {
	Type         string `json:"type"`
	Source       string `json:"source"`
	SourceType   string `json:"source_type"`
	Target       string `json:"target"`
	TargetType   string `json:"target_type"`
	Mandatorily  bool   `json:"mandatorily,omitempty"`
	Description  string `json:"description,omitempty"`
	Deprecated   bool   `json:"deprecated,omitempty"`
	Quickaction  bool   `json:"quickaction,omitempty"`
	IsTest       bool   `json:"is_test,omitempty"`
	FromMetadata bool   `json:"from_metadata,omitempty"`
}

type dumpGraph struct {
	Nodes         []dumpNode `json:"nodes"`
	Relationships []dumpEdge `json:"relationships"`
}

// Export writes the store's full state to dir: graph.json plus the
// metadata.json and schema.json sidecars. The metadata's schema hash and
// export id are filled in here.
func Export(ctx context.Context, store Store, dir string, meta Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	hash, err := SchemaHash()
	if err != nil {
		return err
	}
	meta.SchemaHash = hash
	meta.ExportID = uuid.NewString()
	meta.ExportedAt = time.Now().UTC()

	nodes, err := store.Nodes(ctx)
	if err != nil {
		return err
	}
	rels, err := store.Relationships(ctx)
	if err != nil {
		return err
	}

	dump := dumpGraph{}
	for _, n := range nodes {
		dump.Nodes = append(dump.Nodes, dumpNode{
			Labels:     n.Labels(),
			Properties: n.Properties(),
		})
	}
	for _, r := range rels {
		dump.Relationships = append(dump.Relationships, dumpEdge{
			Type:         string(r.Type),
			Source:       r.Source.ObjectID,
			SourceType:   string(r.Source.Type),
			Target:       r.Target.ObjectID,
			TargetType:   string(r.Target.Type),
			Mandatorily:  r.Mandatorily,
			Description:  r.Description,
			Deprecated:   r.Deprecated,
			Quickaction:  r.Quickaction,
			IsTest:       r.IsTest,
			FromMetadata: r.FromMetadata,
		})
	}

	if err := writeJSON(filepath.Join(dir, dumpGraphFile), dump); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, dumpMetadataFile), meta); err != nil {
		return err
	}
	schema, err := SchemaSource()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, dumpSchemaFile), schema, 0o644)
}

// Import loads a dump directory into the store, replacing nothing: the
// caller opens a fresh store. The dump's schema hash must match the running
// code's, otherwise ErrIncompatibleSchema.
func Import(ctx context.Context, store Store, dir string) (Metadata, error) {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return Metadata{}, err
	}
	hash, err := SchemaHash()
	if err != nil {
		return Metadata{}, err
	}
	if meta.SchemaHash != hash {
		return meta, fmt.Errorf("%w: dump %s, code %s", ErrIncompatibleSchema, meta.SchemaHash, hash)
	}

	raw, err := os.ReadFile(filepath.Join(dir, dumpGraphFile))
	if err != nil {
		return meta, err
	}
	var dump dumpGraph
	if err := json.Unmarshal(raw, &dump); err != nil {
		return meta, fmt.Errorf("decode %s: %w", dumpGraphFile, err)
	}

	nodes := content.Nodes{}
	for _, dn := range dump.Nodes {
		n, err := content.NodeFromProperties(dn.Properties)
		if err != nil {
			return meta, fmt.Errorf("import node: %w", err)
		}
		nodes.Add(n)
	}
	rels := content.Relationships{}
	for _, de := range dump.Relationships {
		rels.Add(&content.Relationship{
			Type:         content.RelationshipType(de.Type),
			Source:       content.NodeKey{Type: content.ContentType(de.SourceType), ObjectID: de.Source},
			Target:       content.NodeKey{Type: content.ContentType(de.TargetType), ObjectID: de.Target},
			Mandatorily:  de.Mandatorily,
			Description:  de.Description,
			Deprecated:   de.Deprecated,
			Quickaction:  de.Quickaction,
			IsTest:       de.IsTest,
			FromMetadata: de.FromMetadata,
		})
	}

	if err := store.CreateNodes(ctx, nodes); err != nil {
		return meta, err
	}
	if err := store.CreateRelationships(ctx, rels); err != nil {
		return meta, err
	}
	return meta, nil
}

// ReadMetadata reads just the metadata sidecar of a dump directory.
func ReadMetadata(dir string) (Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, dumpMetadataFile))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", dumpMetadataFile, err)
	}
	return meta, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
