package parse

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// apiModuleImport matches a star import of a source module in companion
// integration code, e.g. "from MicrosoftApiModule import *".
var apiModuleImport = regexp.MustCompile(`(?m)^from\s+(\w+)\s+import\s+\*`)

func parseIntegration(f *File) (*Result, error) {
	id := commonfieldsID(f.Doc)
	script := docMap(f.Doc, "script")

	node := &content.Node{
		Type:         content.TypeIntegration,
		ObjectID:     id,
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "display"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		Data: &content.IntegrationData{
			Category:      docString(f.Doc, "category"),
			DockerImage:   docString(script, "dockerimage"),
			IsFetch:       docBool(script, "isfetch"),
			IsFetchEvents: docBool(script, "isfetchevents"),
		},
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	res := &Result{Node: node}
	data := node.Data.(*content.IntegrationData)
	source := node.Key()

	// Configuration parameters: the display name, falling back to the raw
	// parameter name.
	for _, raw := range docList(f.Doc, "configuration") {
		param, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := docString(param, "display")
		if name == "" {
			name = docString(param, "name")
		}
		if name != "" {
			data.Params = append(data.Params, name)
		}
	}

	// Declared commands: one HAS_COMMAND edge per command, plus the Command
	// node itself. Command nodes merge in the store, unioning marketplaces.
	for _, raw := range docList(script, "commands") {
		cmd, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := docString(cmd, "name")
		if name == "" {
			continue
		}
		data.Commands = append(data.Commands, name)
		cmdKey := content.NodeKey{Type: content.TypeCommand, ObjectID: name}
		res.Extra = append(res.Extra, &content.Node{
			Type:         content.TypeCommand,
			ObjectID:     name,
			Name:         name,
			Marketplaces: node.Marketplaces,
		})
		res.Relationships = append(res.Relationships, &content.Relationship{
			Type:        content.RelHasCommand,
			Source:      source,
			Target:      cmdKey,
			Description: docString(cmd, "description"),
			Deprecated:  docBool(cmd, "deprecated"),
			Quickaction: docBool(cmd, "quickaction"),
		})
	}

	// Default classifier/mapper/incident-type wiring.
	for key, target := range map[string]content.ContentType{
		"defaultclassifier":   content.TypeClassifier,
		"defaultmapperin":     content.TypeMapper,
		"defaultmapperout":    content.TypeMapper,
		"defaultIncidentType": content.TypeIncidentType,
	} {
		if ref := docString(f.Doc, key); ref != "" {
			res.Relationships = append(res.Relationships, &content.Relationship{
				Type:   content.RelUsesByID,
				Source: source,
				Target: content.NodeKey{Type: target, ObjectID: ref},
			})
		}
	}

	// Whitelisted reputation commands resolve like any command reference.
	for _, name := range docStrings(f.Doc, "reputationCommandsWhitelistedForCI") {
		res.Relationships = append(res.Relationships, &content.Relationship{
			Type:   content.RelUsesCommandOrScript,
			Source: source,
			Target: content.NodeKey{Type: content.TypeCommand, ObjectID: name},
		})
	}

	res.Relationships = append(res.Relationships,
		testedByEdges(source, docStrings(f.Doc, "tests"))...)
	res.Relationships = append(res.Relationships,
		companionImports(source, f.Path)...)

	return res, nil
}

// companionImports scans the integration's companion code file for API
// module star imports and stages IMPORTS edges to the corresponding scripts.
func companionImports(source content.NodeKey, ymlPath string) []*content.Relationship {
	base := strings.TrimSuffix(ymlPath, filepath.Ext(ymlPath))
	var out []*content.Relationship
	for _, ext := range []string{".py", ".ps1", ".js"} {
		raw, err := os.ReadFile(base + ext)
		if err != nil {
			continue
		}
		for _, m := range apiModuleImport.FindAllStringSubmatch(string(raw), -1) {
			module := m[1]
			if !strings.HasSuffix(module, "ApiModule") {
				continue
			}
			out = append(out, &content.Relationship{
				Type:   content.RelImports,
				Source: source,
				Target: content.NodeKey{Type: content.TypeScript, ObjectID: module},
			})
		}
	}
	return out
}

func matchIntegration(doc map[string]any, _ string) bool {
	script := docMap(doc, "script")
	if script == nil {
		return false
	}
	_, hasCommands := script["commands"]
	_, hasConfig := doc["configuration"]
	return hasCommands || (hasConfig && docString(doc, "display") != "")
}
