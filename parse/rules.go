package parse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// parseXSIAMRule parses modeling and parsing rules. These are triple-file
// artifacts: the yml descriptor, a sibling .xif rules file, and a sibling
// <name>_schema.json whose top-level keys become the schema_keys property.
func parseXSIAMRule(f *File) (*Result, error) {
	ct := f.Type
	if underFolderSegment(f.RepoPath, "ParsingRules") {
		ct = content.TypeParsingRule
	}

	node := &content.Node{
		Type:         ct,
		ObjectID:     docID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		Data: &content.RuleData{
			SchemaKeys: siblingSchemaKeys(f.Path),
		},
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}
	return &Result{Node: node}, nil
}

// siblingSchemaKeys reads <base>_schema.json next to the yml and returns its
// sorted top-level keys. A missing or malformed schema file yields none.
func siblingSchemaKeys(ymlPath string) []string {
	base := strings.TrimSuffix(ymlPath, filepath.Ext(ymlPath))
	raw, err := os.ReadFile(base + "_schema.json")
	if err != nil {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func underFolderSegment(repoPath, folder string) bool {
	for _, seg := range strings.Split(repoPath, "/") {
		if seg == folder {
			return true
		}
	}
	return false
}
