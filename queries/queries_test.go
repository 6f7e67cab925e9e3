package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

func seedStore(t *testing.T) (*graph.MemoryStore, *Runner) {
	t.Helper()
	s := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s, NewRunner(s)
}

func addNode(t *testing.T, s *graph.MemoryStore, n *content.Node) {
	t.Helper()
	nodes := content.Nodes{}
	nodes.Add(n)
	require.NoError(t, s.CreateNodes(context.Background(), nodes))
}

func addEdge(t *testing.T, s *graph.MemoryStore, rel *content.Relationship) {
	t.Helper()
	rels := content.Relationships{}
	rels.Add(rel)
	require.NoError(t, s.CreateRelationships(context.Background(), rels))
}

func itemNode(ct content.ContentType, id, packID, from, to string, marketplaces ...content.Marketplace) *content.Node {
	if len(marketplaces) == 0 {
		marketplaces = []content.Marketplace{content.MarketplaceXSOAR}
	}
	return &content.Node{
		Type:         ct,
		ObjectID:     id,
		Name:         id,
		FromVersion:  content.VersionOrDefault(from, content.DefaultFromVersion),
		ToVersion:    content.VersionOrDefault(to, content.DefaultToVersion),
		Marketplaces: marketplaces,
		SourcePath:   "Packs/" + packID + "/" + id + ".yml",
		PackID:       packID,
	}
}

func uses(src, dst *content.Node, mandatorily bool) *content.Relationship {
	return &content.Relationship{
		Type:        content.RelUses,
		Source:      src.Key(),
		Target:      dst.Key(),
		Mandatorily: mandatorily,
	}
}

func TestUnknownUsage(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	src := itemNode(content.TypePlaybook, "P", "A", "", "")
	ghost := &content.Node{
		Type:            content.TypeScript,
		ObjectID:        "Ghost",
		Name:            "Ghost",
		NotInRepository: true,
	}
	known := itemNode(content.TypeScript, "Known", "A", "", "")
	addNode(t, s, src)
	addNode(t, s, ghost)
	addNode(t, s, known)
	addEdge(t, s, uses(src, ghost, true))
	addEdge(t, s, uses(src, known, true))

	rows, err := r.UnknownUsage(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ghost", rows[0].Target.ObjectID)

	// Optional references to missing content are not reported.
	optional := &content.Node{Type: content.TypeScript, ObjectID: "Maybe", Name: "Maybe", NotInRepository: true}
	addNode(t, s, optional)
	addEdge(t, s, uses(src, optional, false))
	rows, err = r.UnknownUsage(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestVersionCoherence(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	early := itemNode(content.TypePlaybook, "Early", "A", "6.0.0", "")
	late := itemNode(content.TypeScript, "Late", "A", "6.5.0", "")
	shortLived := itemNode(content.TypeScript, "ShortLived", "A", "6.0.0", "6.2.0")
	addNode(t, s, early)
	addNode(t, s, late)
	addNode(t, s, shortLived)
	addEdge(t, s, uses(early, late, true))
	addEdge(t, s, uses(early, shortLived, true))

	rows, err := r.InvalidFromVersion(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Early", rows[0].Source.ObjectID)
	assert.Equal(t, "Late", rows[0].Target.ObjectID)

	rows, err = r.InvalidToVersion(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ShortLived", rows[0].Target.ObjectID)
}

func TestMarketplaceLeakage(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	wide := itemNode(content.TypePlaybook, "Wide", "A", "", "",
		content.MarketplaceXSOAR, content.MarketplaceV2)
	narrow := itemNode(content.TypeScript, "Narrow", "A", "", "", content.MarketplaceXSOAR)
	addNode(t, s, wide)
	addNode(t, s, narrow)
	addEdge(t, s, uses(wide, narrow, true))
	// The reverse direction is fine: narrow's marketplaces are a subset.
	addEdge(t, s, uses(narrow, wide, true))

	rows, err := r.MarketplaceLeakage(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Wide", rows[0].Source.ObjectID)
}

func TestDeprecatedUsage(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	src := itemNode(content.TypePlaybook, "P", "A", "", "")
	old := itemNode(content.TypeScript, "Old", "A", "", "")
	old.Deprecated = true
	addNode(t, s, src)
	addNode(t, s, old)
	addEdge(t, s, uses(src, old, false))

	rows, err := r.DeprecatedUsage(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Old", rows[0].Target.ObjectID)
}

func TestDuplicateDisplayName(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	for _, id := range []string{"PackOne", "PackTwo"} {
		p := &content.Node{
			Type:         content.TypePack,
			ObjectID:     id,
			Name:         id,
			DisplayName:  "Same Name",
			Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
			SourcePath:   "Packs/" + id + "/pack_metadata.json",
			Data:         &content.PackData{},
		}
		addNode(t, s, p)
	}

	rows, err := r.DuplicateDisplayName(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, rows[0].Source.ObjectID, rows[0].Target.ObjectID)
}

func TestDuplicateID(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	// Overlapping windows clash; disjoint windows are a legal split.
	a := itemNode(content.TypeScript, "Twin", "A", "6.0.0", "")
	b := itemNode(content.TypeScript, "Twin", "B", "6.5.0", "")
	b.SourcePath = "Packs/B/Twin.yml"
	c := itemNode(content.TypeScript, "Split", "A", "5.0.0", "5.9.9")
	d := itemNode(content.TypeScript, "Split", "B", "6.0.0", "")
	d.SourcePath = "Packs/B/Split.yml"
	for _, n := range []*content.Node{a, b, c, d} {
		addNode(t, s, n)
	}

	rows, err := r.DuplicateID(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Twin", rows[0].Source.ObjectID)
}

func TestCorePackDependency(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	core := &content.Node{
		Type: content.TypePack, ObjectID: "CorePack", Name: "CorePack",
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/CorePack/pack_metadata.json",
		Data:         &content.PackData{},
	}
	outsider := &content.Node{
		Type: content.TypePack, ObjectID: "Outsider", Name: "Outsider",
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/Outsider/pack_metadata.json",
		Data:         &content.PackData{},
	}
	addNode(t, s, core)
	addNode(t, s, outsider)
	addEdge(t, s, &content.Relationship{
		Type:        content.RelDependsOn,
		Source:      core.Key(),
		Target:      outsider.Key(),
		Mandatorily: true,
	})

	rows, err := r.CorePackDependency(ctx, content.MarketplaceXSOAR, []string{"CorePack"}, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Outsider", rows[0].Target.ObjectID)

	// A core-to-core dependency is fine.
	rows, err = r.CorePackDependency(ctx, content.MarketplaceXSOAR, []string{"CorePack", "Outsider"}, Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHiddenPackDependency(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	src := &content.Node{
		Type: content.TypePack, ObjectID: "A", Name: "A",
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/A/pack_metadata.json",
		Data:         &content.PackData{},
	}
	hidden := &content.Node{
		Type: content.TypePack, ObjectID: "Hidden", Name: "Hidden",
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/Hidden/pack_metadata.json",
		Data:         &content.PackData{Hidden: true},
	}
	addNode(t, s, src)
	addNode(t, s, hidden)
	addEdge(t, s, &content.Relationship{
		Type:        content.RelDependsOn,
		Source:      src.Key(),
		Target:      hidden.Key(),
		Mandatorily: true,
	})

	rows, err := r.HiddenPackDependency(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Hidden", rows[0].Target.ObjectID)
}

func TestFilePathsFilter(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	src := itemNode(content.TypePlaybook, "P", "A", "", "")
	other := itemNode(content.TypePlaybook, "Q", "A", "", "")
	old := itemNode(content.TypeScript, "Old", "A", "", "")
	old.Deprecated = true
	addNode(t, s, src)
	addNode(t, s, other)
	addNode(t, s, old)
	addEdge(t, s, uses(src, old, false))
	addEdge(t, s, uses(other, old, false))

	rows, err := r.DeprecatedUsage(ctx, Filter{FilePaths: []string{src.SourcePath}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P", rows[0].Source.ObjectID)
}
