package content

import (
	"errors"
	"fmt"
)

// Property keys shared by every node. The graph store persists nodes as flat
// maps of primitives keyed by these names.
const (
	PropNodeID          = "node_id"
	PropObjectID        = "object_id"
	PropContentType     = "content_type"
	PropName            = "name"
	PropDisplayName     = "display_name"
	PropFromVersion     = "fromversion"
	PropToVersion       = "toversion"
	PropMarketplaces    = "marketplaces"
	PropDeprecated      = "deprecated"
	PropIsTest          = "is_test"
	PropSourcePath      = "source_path"
	PropPackID          = "pack_id"
	PropNotInRepository = "not_in_repository"
)

// NodeKey identifies a node by its concrete type and object id. Nodes hold
// only keys to other nodes, never direct references, so cyclic content is
// representable without cyclic data structures.
type NodeKey struct {
	Type     ContentType
	ObjectID string
}

// ID returns the graph-wide node identifier, "<ContentType>:<object_id>".
func (k NodeKey) ID() string {
	return string(k.Type) + ":" + k.ObjectID
}

// Node is a single graph node: a pack, a content item, or a command.
// Shared fields live here; variant-specific fields live in Data.
type Node struct {
	Type        ContentType
	ObjectID    string
	Name        string
	DisplayName string

	FromVersion  Version
	ToVersion    Version
	Marketplaces []Marketplace

	Deprecated bool
	IsTest     bool

	// SourcePath is the repo-relative path of the file this node was parsed
	// from. Empty for Command nodes and placeholder targets.
	SourcePath string

	// PackID is the object id of the owning pack. Empty for Pack nodes.
	PackID string

	// NotInRepository marks a placeholder created for an unresolved USES
	// target. Placeholders participate in queries but are never exported
	// as content.
	NotInRepository bool

	// Data carries variant-specific fields, nil for variants that have none.
	Data NodeData
}

// NodeData is the variant-specific part of a node. Implementations write
// their fields into a flat property map and read them back.
type NodeData interface {
	putProperties(p map[string]any)
	readProperties(p map[string]any)
}

// Key returns the node's NodeKey.
func (n *Node) Key() NodeKey {
	return NodeKey{Type: n.Type, ObjectID: n.ObjectID}
}

// VersionRange returns the node's [fromversion, toversion] window.
func (n *Node) VersionRange() VersionRange {
	return VersionRange{From: n.FromVersion, To: n.ToVersion}
}

// Labels returns the graph labels for this node.
func (n *Node) Labels() []string {
	return n.Type.Labels()
}

// Validate checks the node's field contract.
func (n *Node) Validate() error {
	if n.ObjectID == "" {
		return errors.New("node object_id is required")
	}
	if !n.Type.IsGraphNode() {
		return fmt.Errorf("content type %q is not a graph node type", n.Type)
	}
	if !n.FromVersion.IsZero() && !n.ToVersion.IsZero() && n.ToVersion.Less(n.FromVersion) {
		return fmt.Errorf("node %s: fromversion %s exceeds toversion %s",
			n.Key().ID(), n.FromVersion, n.ToVersion)
	}
	if n.Type.IsContentItem() && n.PackID == "" && !n.NotInRepository {
		return fmt.Errorf("node %s: content item without pack_id", n.Key().ID())
	}
	return nil
}

// Properties flattens the node to a map of primitives (strings, bools,
// string lists). The mapping is bijective with NodeFromProperties.
func (n *Node) Properties() map[string]any {
	p := map[string]any{
		PropNodeID:       n.Key().ID(),
		PropObjectID:     n.ObjectID,
		PropContentType:  string(n.Type),
		PropName:         n.Name,
		PropDisplayName:  n.DisplayName,
		PropMarketplaces: marketplaceStrings(n.Marketplaces),
		PropDeprecated:   n.Deprecated,
		PropIsTest:       n.IsTest,
		PropSourcePath:   n.SourcePath,
	}
	if !n.FromVersion.IsZero() {
		p[PropFromVersion] = n.FromVersion.String()
	}
	if !n.ToVersion.IsZero() {
		p[PropToVersion] = n.ToVersion.String()
	}
	if n.PackID != "" {
		p[PropPackID] = n.PackID
	}
	if n.NotInRepository {
		p[PropNotInRepository] = true
	}
	if n.Data != nil {
		n.Data.putProperties(p)
	}
	return p
}

// NodeFromProperties rebuilds a node from its flat property map.
// The inverse of Properties.
func NodeFromProperties(p map[string]any) (*Node, error) {
	ct := ContentType(getString(p, PropContentType))
	if !ct.IsGraphNode() {
		return nil, fmt.Errorf("properties carry unknown content type %q", getString(p, PropContentType))
	}
	n := &Node{
		Type:            ct,
		ObjectID:        getString(p, PropObjectID),
		Name:            getString(p, PropName),
		DisplayName:     getString(p, PropDisplayName),
		Marketplaces:    parseMarketplaceStrings(getStrings(p, PropMarketplaces)),
		Deprecated:      getBool(p, PropDeprecated),
		IsTest:          getBool(p, PropIsTest),
		SourcePath:      getString(p, PropSourcePath),
		PackID:          getString(p, PropPackID),
		NotInRepository: getBool(p, PropNotInRepository),
	}
	if s := getString(p, PropFromVersion); s != "" {
		v, err := ParseVersion(s)
		if err != nil {
			return nil, err
		}
		n.FromVersion = v
	}
	if s := getString(p, PropToVersion); s != "" {
		v, err := ParseVersion(s)
		if err != nil {
			return nil, err
		}
		n.ToVersion = v
	}
	if data := newNodeData(ct); data != nil {
		data.readProperties(p)
		n.Data = data
	}
	return n, nil
}

// newNodeData returns an empty data carrier for types that have one.
func newNodeData(ct ContentType) NodeData {
	switch ct {
	case TypePack:
		return &PackData{}
	case TypeIntegration:
		return &IntegrationData{}
	case TypeScript, TypeTestScript:
		return &ScriptData{}
	case TypeIncidentField, TypeIndicatorField, TypeCaseField, TypeGenericField:
		return &FieldData{}
	case TypeModelingRule, TypeParsingRule:
		return &RuleData{}
	case TypeClassifier, TypeMapper:
		return &ClassifierData{}
	}
	return nil
}

func marketplaceStrings(ms []Marketplace) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m))
	}
	return out
}

func parseMarketplaceStrings(raw []string) []Marketplace {
	out := make([]Marketplace, 0, len(raw))
	for _, r := range raw {
		out = append(out, Marketplace(r))
	}
	return out
}

func getString(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func getBool(p map[string]any, key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func getStrings(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
