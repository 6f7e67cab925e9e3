package deps

import (
	"context"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

// view is a read-only snapshot of the graph taken at the start of a
// derivation phase. Resolution works over keys only, never over node
// pointers shared with the store.
type view struct {
	byKey     map[content.NodeKey][]*content.Node
	byID      map[string][]*content.Node
	byName    map[string][]*content.Node
	byCLIName map[string][]*content.Node

	packs    map[string]*content.Node
	itemPack map[content.NodeKey]string

	uses       []*content.Relationship
	hasCommand []*content.Relationship
}

func loadView(ctx context.Context, store graph.Store) (*view, error) {
	nodes, err := store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	v := &view{
		byKey:     make(map[content.NodeKey][]*content.Node),
		byID:      make(map[string][]*content.Node),
		byName:    make(map[string][]*content.Node),
		byCLIName: make(map[string][]*content.Node),
		packs:     make(map[string]*content.Node),
		itemPack:  make(map[content.NodeKey]string),
	}
	for _, n := range nodes {
		// Placeholders never win resolution; a reference resolving to one
		// would mask the real item behind the same name or id.
		if n.NotInRepository {
			continue
		}
		v.byKey[n.Key()] = append(v.byKey[n.Key()], n)
		switch {
		case n.Type == content.TypePack:
			v.packs[n.ObjectID] = n
		case n.Type.IsContentItem():
			v.byID[n.ObjectID] = append(v.byID[n.ObjectID], n)
			if n.Name != "" {
				v.byName[n.Name] = append(v.byName[n.Name], n)
			}
			if data, ok := n.Data.(*content.FieldData); ok && data.CLIName != "" {
				v.byCLIName[data.CLIName] = append(v.byCLIName[data.CLIName], n)
			}
		}
	}

	inPack, err := store.Relationships(ctx, content.RelInPack)
	if err != nil {
		return nil, err
	}
	for _, rel := range inPack {
		v.itemPack[rel.Source] = rel.Target.ObjectID
	}
	v.uses, err = store.Relationships(ctx, content.RelUses)
	if err != nil {
		return nil, err
	}
	v.hasCommand, err = store.Relationships(ctx, content.RelHasCommand)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// node returns one node for a key, or nil.
func (v *view) node(key content.NodeKey) *content.Node {
	group := v.byKey[key]
	if len(group) == 0 {
		return nil
	}
	return group[0]
}

// packOf returns the owning pack id of an item. Falls back to the node's
// own pack_id when no IN_PACK edge was recorded (placeholder nodes).
func (v *view) packOf(key content.NodeKey) string {
	if id, ok := v.itemPack[key]; ok {
		return id
	}
	if n := v.node(key); n != nil {
		return n.PackID
	}
	return ""
}

// available reports whether source and target overlap in both marketplaces
// and version windows.
func available(source, target *content.Node) bool {
	if !content.MarketplacesIntersect(source.Marketplaces, target.Marketplaces) {
		return false
	}
	return source.VersionRange().Overlaps(target.VersionRange())
}
