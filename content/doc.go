// Package content defines the typed domain model of the content graph:
// content types and their graph labels, marketplaces, semver validity
// windows, nodes, and relationships.
//
// The model is a tagged union: every artifact is a Node carrying the shared
// ContentItem fields, tagged by ContentType, with variant-specific fields in
// a NodeData carrier (PackData, IntegrationData, ScriptData, ...). Abstract
// labels (BaseContent, BaseScript, CommandOrScript) are derived from the
// concrete type, never stored.
//
// Nodes reference each other only through NodeKey values, never pointers,
// so cyclic content (a playbook using a script that triggers the playbook)
// stays representable in flat maps.
//
// Serialization is bijective with a flat property map of primitives
// (strings, bools, string lists): Node.Properties and NodeFromProperties
// are inverses. The graph store persists exactly those maps.
package content
