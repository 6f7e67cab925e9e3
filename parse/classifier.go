package parse

import (
	"github.com/zero-day-ai/packgraph/content"
)

// Classifiers and mappers share a folder and file shape; the type field in
// the body is the only thing telling them apart.

func parseClassifier(f *File) (*Result, error) {
	mappingType := docString(f.Doc, "type")
	ct := content.TypeClassifier
	if mappingType == "mapping-incoming" || mappingType == "mapping-outgoing" {
		ct = content.TypeMapper
	}

	node := &content.Node{
		Type:         ct,
		ObjectID:     docID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		Data:         &content.ClassifierData{MappingType: mappingType},
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	source := node.Key()
	acc := newEdgeAccumulator()

	// Every field referenced in a mapping block is a hard requirement:
	// the mapper cannot apply without it.
	for _, rawMapping := range docMap(f.Doc, "mapping") {
		m, ok := rawMapping.(map[string]any)
		if !ok {
			continue
		}
		for field := range docMap(m, "internalMapping") {
			acc.add(&content.Relationship{
				Type:        content.RelUsesByCLIName,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypeIncidentField, ObjectID: field},
				Mandatorily: true,
			})
		}
	}

	// Classifiers route to incident types through the key-type map.
	if m := docMap(f.Doc, "keyTypeMap"); m != nil {
		for _, v := range m {
			if s, ok := v.(string); ok && s != "" {
				acc.add(&content.Relationship{
					Type:   content.RelUsesByID,
					Source: source,
					Target: content.NodeKey{Type: content.TypeIncidentType, ObjectID: s},
				})
			}
		}
	}
	if t := docString(f.Doc, "defaultIncidentType"); t != "" {
		acc.add(&content.Relationship{
			Type:   content.RelUsesByID,
			Source: source,
			Target: content.NodeKey{Type: content.TypeIncidentType, ObjectID: t},
		})
	}

	return &Result{Node: node, Relationships: acc.edges}, nil
}

func matchMapper(doc map[string]any, _ string) bool {
	t := docString(doc, "type")
	return t == "mapping-incoming" || t == "mapping-outgoing"
}

func matchClassifier(doc map[string]any, _ string) bool {
	if docString(doc, "type") == "classification" {
		return true
	}
	_, hasKeyTypeMap := doc["keyTypeMap"]
	_, hasTransformer := doc["transformer"]
	return hasKeyTypeMap && hasTransformer
}
