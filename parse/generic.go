package parse

import (
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// parseGenericJSON covers every JSON content item whose graph contribution
// is just the shared field set: incident/indicator types, dashboards,
// reports, widgets, jobs, lists, wizards, triggers, XSIAM artifacts and the
// generic-module family. The concrete type comes from the classifier via
// the file's folder.
func parseGenericJSON(f *File) (*Result, error) {
	ct := f.Type
	if !ct.IsContentItem() {
		ct = genericType(f.RepoPath)
	}

	name := docString(f.Doc, "name")
	if name == "" {
		// Indicator types predate the name field.
		name = docString(f.Doc, "details")
	}
	id := docID(f.Doc)
	if id == "" {
		id = name
	}

	node := &content.Node{
		Type:         ct,
		ObjectID:     id,
		Name:         name,
		DisplayName:  name,
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	source := node.Key()
	acc := newEdgeAccumulator()

	// Cross-references common to the JSON shapes.
	if script := docString(f.Doc, "reputationScriptName"); script != "" {
		acc.add(&content.Relationship{
			Type:        content.RelUsesCommandOrScript,
			Source:      source,
			Target:      content.NodeKey{Type: content.TypeCommand, ObjectID: script},
			Mandatorily: true,
		})
	}
	for _, key := range []string{"playbookId", "playbookName"} {
		if pb := docString(f.Doc, key); pb != "" {
			acc.add(&content.Relationship{
				Type:        content.RelUsesPlaybook,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypePlaybook, ObjectID: pb},
				Mandatorily: true,
			})
		}
	}
	if layout := docString(f.Doc, "layout"); layout != "" && ct == content.TypeIncidentType {
		acc.add(&content.Relationship{
			Type:   content.RelUsesByID,
			Source: source,
			Target: content.NodeKey{Type: content.TypeLayout, ObjectID: layout},
		})
	}

	return &Result{Node: node, Relationships: acc.edges}, nil
}

// genericType resolves the concrete content type from the file's folder.
var genericFolderOrder = []string{
	"IncidentTypes", "IndicatorTypes", "LayoutRules", "Dashboards", "Reports",
	"Widgets", "Jobs", "Lists", "CorrelationRules", "Triggers", "Wizards",
	"XSIAMDashboards", "XSIAMReports", "XDRCTemplates", "GenericTypes",
	"GenericModules", "GenericDefinitions", "CaseLayouts", "CaseLayoutRules",
	"PreProcessRules", "Connections",
}

func genericType(repoPath string) content.ContentType {
	for _, seg := range strings.Split(repoPath, "/") {
		for _, folder := range genericFolderOrder {
			if seg == folder {
				if ct, ok := content.TypeByFolder(folder); ok {
					return ct
				}
			}
		}
	}
	return content.TypeList
}
