package parse

import (
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

func parseScript(f *File) (*Result, error) {
	ct := f.Type
	if underTestPlaybooks(f.RepoPath) {
		ct = content.TypeTestScript
	}
	isTest := ct == content.TypeTestScript

	node := &content.Node{
		Type:         ct,
		ObjectID:     commonfieldsID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		IsTest:       isTest,
		Data: &content.ScriptData{
			ScriptType:  docString(f.Doc, "type"),
			DockerImage: docString(f.Doc, "dockerimage"),
			Tags:        docStrings(f.Doc, "tags"),
			SkipPrepare: docStrings(f.Doc, "skipprepare"),
		},
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	res := &Result{Node: node}
	source := node.Key()

	// dependson.must entries are hard requirements; .should entries are
	// best-effort. Both resolve as command-or-script references.
	dependsOn := docMap(f.Doc, "dependson")
	for _, name := range docStrings(dependsOn, "must") {
		res.Relationships = append(res.Relationships, dependsOnEdge(source, name, true))
	}
	for _, name := range docStrings(dependsOn, "should") {
		res.Relationships = append(res.Relationships, dependsOnEdge(source, name, false))
	}

	res.Relationships = append(res.Relationships,
		testedByEdges(source, docStrings(f.Doc, "tests"))...)

	return res, nil
}

// dependsOnEdge stages a command-or-script reference from a script's
// dependson block. References may carry an integration prefix
// ("Integration|||command"); only the command part identifies the target.
func dependsOnEdge(source content.NodeKey, ref string, mandatory bool) *content.Relationship {
	name := ref
	if idx := strings.LastIndex(ref, "|||"); idx >= 0 {
		name = ref[idx+3:]
	}
	return &content.Relationship{
		Type:        content.RelUsesCommandOrScript,
		Source:      source,
		Target:      content.NodeKey{Type: content.TypeCommand, ObjectID: name},
		Mandatorily: mandatory,
	}
}

func underTestPlaybooks(repoPath string) bool {
	for _, seg := range strings.Split(repoPath, "/") {
		if seg == "TestPlaybooks" {
			return true
		}
	}
	return false
}

func matchScript(doc map[string]any, _ string) bool {
	if commonfieldsID(doc) == "" {
		return false
	}
	// Scripts carry their code in a top-level script string; integrations
	// nest a script map instead.
	_, isMap := doc["script"].(map[string]any)
	_, present := doc["script"]
	return present && !isMap
}
