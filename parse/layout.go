package parse

import (
	"github.com/zero-day-ai/packgraph/content"
)

func parseLayout(f *File) (*Result, error) {
	node := &content.Node{
		Type:         content.TypeLayout,
		ObjectID:     docID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	source := node.Key()
	acc := newEdgeAccumulator()
	for _, fieldID := range layoutFieldIDs(f.Doc) {
		acc.add(&content.Relationship{
			Type:   content.RelUsesByCLIName,
			Source: source,
			Target: content.NodeKey{Type: content.TypeIncidentField, ObjectID: fieldID},
		})
	}
	return &Result{Node: node, Relationships: acc.edges}, nil
}

// layoutFieldIDs walks detailsV2.tabs[].sections[].items[].fieldId.
func layoutFieldIDs(doc map[string]any) []string {
	var out []string
	details := docMap(doc, "detailsV2")
	for _, rawTab := range docList(details, "tabs") {
		tab, ok := rawTab.(map[string]any)
		if !ok {
			continue
		}
		for _, rawSection := range docList(tab, "sections") {
			section, ok := rawSection.(map[string]any)
			if !ok {
				continue
			}
			for _, rawItem := range docList(section, "items") {
				item, ok := rawItem.(map[string]any)
				if !ok {
					continue
				}
				if id := docString(item, "fieldId"); id != "" {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

func matchLayout(doc map[string]any, _ string) bool {
	_, hasDetails := doc["detailsV2"]
	_, hasLayout := doc["layout"]
	return hasDetails || (hasLayout && docString(doc, "group") != "")
}
