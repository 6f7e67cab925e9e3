package parse

import (
	"fmt"

	"github.com/zero-day-ai/packgraph/content"
)

// Document access helpers. Decoded YAML/JSON bodies are generic maps; these
// keep the parsers free of type-assertion noise.

func docMap(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	return nil
}

func docList(doc map[string]any, key string) []any {
	if l, ok := doc[key].([]any); ok {
		return l
	}
	return nil
}

func docString(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func docBool(doc map[string]any, key string) bool {
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "True"
	}
	return false
}

func docStrings(doc map[string]any, key string) []string {
	var out []string
	for _, e := range docList(doc, key) {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// docVersionRange reads the validity window, accepting both the YAML
// (fromversion) and JSON (fromVersion) key casings.
func docVersionRange(doc map[string]any) content.VersionRange {
	from := docString(doc, "fromversion")
	if from == "" {
		from = docString(doc, "fromVersion")
	}
	to := docString(doc, "toversion")
	if to == "" {
		to = docString(doc, "toVersion")
	}
	return content.NewVersionRange(from, to)
}

// docMarketplaces reads the marketplaces list, defaulting to the pack's set
// when the artifact omits it.
func docMarketplaces(doc map[string]any, packDefault []content.Marketplace) []content.Marketplace {
	raw := docStrings(doc, "marketplaces")
	if len(raw) == 0 {
		if len(packDefault) > 0 {
			out := make([]content.Marketplace, len(packDefault))
			copy(out, packDefault)
			return out
		}
		return content.ParseMarketplaces(nil)
	}
	return content.ParseMarketplaces(raw)
}

// commonfieldsID reads commonfields.id, the object id of YAML artifacts.
func commonfieldsID(doc map[string]any) string {
	return docString(docMap(doc, "commonfields"), "id")
}

// docID reads the artifact's object id: commonfields.id for YAML shapes,
// top-level id for JSON shapes.
func docID(doc map[string]any) string {
	if id := commonfieldsID(doc); id != "" {
		return id
	}
	return docString(doc, "id")
}

// applyRange fills a node's window and validates it.
func applyRange(n *content.Node, r content.VersionRange) error {
	if !r.Valid() {
		return fmt.Errorf("fromversion %s exceeds toversion %s", r.From, r.To)
	}
	n.FromVersion = r.From
	n.ToVersion = r.To
	return nil
}

// testedByEdges stages TESTED_BY edges for a tests: list. The server's
// "No tests" sentinel (any casing) is skipped.
func testedByEdges(source content.NodeKey, tests []string) []*content.Relationship {
	var out []*content.Relationship
	for _, name := range tests {
		if name == "" || name == "No tests" || name == "no tests" || name == "No tests (auto formatted)" {
			continue
		}
		out = append(out, &content.Relationship{
			Type:   content.RelTestedBy,
			Source: source,
			Target: content.NodeKey{Type: content.TypeTestPlaybook, ObjectID: name},
		})
	}
	return out
}
