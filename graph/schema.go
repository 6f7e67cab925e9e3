package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zero-day-ai/packgraph/content"
)

// IndexDescriptors returns the index and constraint set for the domain
// model, one descriptor per index, in a stable order. Both backends install
// exactly this set, and its sorted form feeds the schema hash: an index
// change invalidates existing dumps.
func IndexDescriptors() []string {
	var out []string
	for _, ct := range content.GraphNodeTypes() {
		if ct == content.TypeCommand {
			out = append(out, fmt.Sprintf("INDEX %s(object_id)", ct))
			continue
		}
		out = append(out,
			fmt.Sprintf("INDEX %s(object_id)", ct),
			fmt.Sprintf("INDEX %s(object_id, content_type)", ct),
			fmt.Sprintf("INDEX %s(object_id, content_type, fromversion, marketplaces)", ct),
			fmt.Sprintf("INDEX %s(node_id)", ct),
			fmt.Sprintf("INDEX %s(marketplaces)", ct),
			fmt.Sprintf("CONSTRAINT %s(content_type, object_id) IS UNIQUE", ct),
		)
	}
	out = append(out,
		"INDEX USES(mandatorily)",
		"INDEX HAS_COMMAND(deprecated, description)",
	)
	sort.Strings(out)
	return out
}

// schemaSource is the serialized shape of the domain model: node types with
// their labels, relationship types, and the index set. Its hash decides
// dump compatibility.
type schemaSource struct {
	NodeTypes         map[string][]string `json:"node_types"`
	RelationshipTypes []string            `json:"relationship_types"`
	Indexes           []string            `json:"indexes"`
}

// SchemaSource returns the canonical JSON the schema hash is computed from.
// Exported dumps carry it as schema.json.
func SchemaSource() ([]byte, error) {
	src := schemaSource{
		NodeTypes: make(map[string][]string),
		Indexes:   IndexDescriptors(),
	}
	for _, ct := range content.GraphNodeTypes() {
		src.NodeTypes[string(ct)] = ct.Labels()
	}
	for _, rt := range content.RelationshipTypes() {
		src.RelationshipTypes = append(src.RelationshipTypes, string(rt))
	}
	sort.Strings(src.RelationshipTypes)
	return json.MarshalIndent(src, "", "  ")
}

// SchemaHash returns the hex SHA-256 of the schema source. Dumps whose hash
// differs from the running code's are rejected with ErrIncompatibleSchema.
func SchemaHash() (string, error) {
	src, err := SchemaSource()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:]), nil
}
