package parse

import (
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// fieldTypeForPath narrows the shared field parser to the concrete type the
// classifier resolved. The parser itself is shape-identical across incident,
// indicator, case and generic fields.

func parseField(f *File) (*Result, error) {
	ct := f.Type
	if !ct.IsContentItem() {
		ct = fieldType(f.RepoPath)
	}

	node := &content.Node{
		Type:         ct,
		ObjectID:     docID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		Data: &content.FieldData{
			CLIName: docString(f.Doc, "cliName"),
		},
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	source := node.Key()
	acc := newEdgeAccumulator()
	data := node.Data.(*content.FieldData)

	// The Aliases block publishes sibling fields under alternate cli names;
	// each alias is a reference this field cannot resolve without.
	for _, rawAlias := range docList(f.Doc, "Aliases") {
		alias, ok := rawAlias.(map[string]any)
		if !ok {
			continue
		}
		cliName := docString(alias, "cliName")
		if cliName == "" {
			continue
		}
		data.Aliases = append(data.Aliases, cliName)
		acc.add(&content.Relationship{
			Type:   content.RelUsesByCLIName,
			Source: source,
			Target: content.NodeKey{Type: ct, ObjectID: cliName},
		})
	}

	// Scripts attached to the field run on change.
	for _, key := range []string{"script", "fieldCalcScript"} {
		if name := docString(f.Doc, key); name != "" {
			acc.add(&content.Relationship{
				Type:        content.RelUsesCommandOrScript,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypeCommand, ObjectID: name},
				Mandatorily: true,
			})
		}
	}

	return &Result{Node: node, Relationships: acc.edges}, nil
}

func fieldType(repoPath string) content.ContentType {
	for _, seg := range strings.Split(repoPath, "/") {
		switch seg {
		case "IndicatorFields":
			return content.TypeIndicatorField
		case "CaseFields":
			return content.TypeCaseField
		case "GenericFields":
			return content.TypeGenericField
		}
	}
	if strings.Contains(repoPath, "indicatorfield-") {
		return content.TypeIndicatorField
	}
	return content.TypeIncidentField
}

func matchIncidentField(doc map[string]any, _ string) bool {
	return docString(doc, "cliName") != "" &&
		strings.HasPrefix(docString(doc, "id"), "incident_")
}

func matchIndicatorField(doc map[string]any, _ string) bool {
	return docString(doc, "cliName") != "" &&
		strings.HasPrefix(docString(doc, "id"), "indicator_")
}
