package parse

import (
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// parsePackMetadata parses pack_metadata.json into a Pack node plus any
// DEPENDS_ON edges the metadata declares. Metadata edges carry
// from_metadata=true and survive dependency recomputation.
func parsePackMetadata(f *File) (*Result, error) {
	packID := packIDFromPath(f.RepoPath)

	node := &content.Node{
		Type:         content.TypePack,
		ObjectID:     packID,
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, nil),
		Deprecated:   strings.HasPrefix(docString(f.Doc, "name"), "Deprecated"),
		Data: &content.PackData{
			CurrentVersion:       docString(f.Doc, "currentVersion"),
			ServerMinVersion:     docString(f.Doc, "serverMinVersion"),
			Hidden:               docBool(f.Doc, "hidden"),
			SupportLevel:         content.SupportLevel(docString(f.Doc, "support")),
			ExcludedDependencies: docStrings(f.Doc, "excludedDependencies"),
			Tags:                 docStrings(f.Doc, "tags"),
			Categories:           docStrings(f.Doc, "categories"),
			UseCases:             docStrings(f.Doc, "useCases"),
		},
	}

	res := &Result{Node: node}
	source := node.Key()
	for depID, rawDep := range docMap(f.Doc, "dependencies") {
		dep, ok := rawDep.(map[string]any)
		if !ok {
			continue
		}
		res.Relationships = append(res.Relationships, &content.Relationship{
			Type:         content.RelDependsOn,
			Source:       source,
			Target:       content.NodeKey{Type: content.TypePack, ObjectID: depID},
			Mandatorily:  docBool(dep, "mandatory"),
			FromMetadata: true,
		})
	}
	return res, nil
}

// packIDFromPath extracts the pack folder name from
// "Packs/<pack>/pack_metadata.json".
func packIDFromPath(repoPath string) string {
	segments := strings.Split(repoPath, "/")
	for i, seg := range segments {
		if seg == "Packs" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	if len(segments) >= 2 {
		return segments[len(segments)-2]
	}
	return ""
}
