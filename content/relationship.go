package content

import "fmt"

// RelationshipType identifies a typed, directed edge between two nodes.
type RelationshipType string

const (
	RelDependsOn  RelationshipType = "DEPENDS_ON"
	RelHasCommand RelationshipType = "HAS_COMMAND"
	RelImports    RelationshipType = "IMPORTS"
	RelInPack     RelationshipType = "IN_PACK"
	RelTestedBy   RelationshipType = "TESTED_BY"
	RelUses       RelationshipType = "USES"

	// Staging variants of USES emitted by parsers and resolved to concrete
	// USES edges during graph build. The target key holds the raw reference
	// (id, name or cli name) rather than a resolved node id.
	RelUsesByID            RelationshipType = "USES_BY_ID"
	RelUsesByName          RelationshipType = "USES_BY_NAME"
	RelUsesByCLIName       RelationshipType = "USES_BY_CLI_NAME"
	RelUsesCommandOrScript RelationshipType = "USES_COMMAND_OR_SCRIPT"
	RelUsesPlaybook        RelationshipType = "USES_PLAYBOOK"
)

// RelationshipTypes lists every edge type in a stable order.
func RelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelDependsOn, RelHasCommand, RelImports, RelInPack, RelTestedBy,
		RelUses, RelUsesByID, RelUsesByName, RelUsesByCLIName,
		RelUsesCommandOrScript, RelUsesPlaybook,
	}
}

// IsUsesStaging reports whether t is a staging variant resolved to USES
// during graph build.
func (t RelationshipType) IsUsesStaging() bool {
	switch t {
	case RelUsesByID, RelUsesByName, RelUsesByCLIName,
		RelUsesCommandOrScript, RelUsesPlaybook:
		return true
	}
	return false
}

// Relationship is a directed edge between two nodes, identified by keys.
// Only the payload fields relevant to the edge type are populated.
type Relationship struct {
	Type   RelationshipType
	Source NodeKey
	Target NodeKey

	// Mandatorily marks USES and DEPENDS_ON edges whose source cannot
	// function without the target.
	Mandatorily bool

	// HAS_COMMAND payload, per owning integration.
	Description string
	Deprecated  bool
	Quickaction bool

	// DEPENDS_ON payload.
	IsTest bool

	// FromMetadata marks DEPENDS_ON edges declared in pack metadata rather
	// than derived from USES chains. Preserved across recomputation.
	FromMetadata bool
}

// Validate checks the edge's field contract.
func (r *Relationship) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("relationship type is required")
	}
	if r.Source.ObjectID == "" {
		return fmt.Errorf("%s relationship without source", r.Type)
	}
	if r.Target.ObjectID == "" {
		return fmt.Errorf("%s relationship from %s without target", r.Type, r.Source.ID())
	}
	return nil
}

// EdgeKey identifies an edge by (source, target, type) for idempotent upsert.
type EdgeKey struct {
	Type   RelationshipType
	Source NodeKey
	Target NodeKey
}

// Key returns the edge's upsert key.
func (r *Relationship) Key() EdgeKey {
	return EdgeKey{Type: r.Type, Source: r.Source, Target: r.Target}
}
