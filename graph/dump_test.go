package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
)

func TestDumpRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)

	pack := testNode(content.TypePack, "P1", "", "Packs/P1/pack_metadata.json")
	script := testNode(content.TypeScript, "S1", "P1", "Packs/P1/Scripts/S1/S1.yml")
	script.Deprecated = true
	nodes := content.Nodes{}
	nodes.Add(pack)
	nodes.Add(script)
	require.NoError(t, src.CreateNodes(ctx, nodes))

	rels := content.Relationships{}
	rels.Add(&content.Relationship{
		Type:        content.RelInPack,
		Source:      script.Key(),
		Target:      pack.Key(),
		Mandatorily: true,
	})
	require.NoError(t, src.CreateRelationships(ctx, rels))

	dir := t.TempDir()
	require.NoError(t, Export(ctx, src, dir, Metadata{
		Commit:       "abc123",
		ParserCommit: "def456",
	}))

	for _, name := range []string{dumpGraphFile, dumpMetadataFile, dumpSchemaFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	dst := openStore(t)
	meta, err := Import(ctx, dst, dir)
	require.NoError(t, err)
	assert.Equal(t, "abc123", meta.Commit)
	assert.Equal(t, "def456", meta.ParserCommit)
	assert.NotEmpty(t, meta.ExportID)

	got, err := dst.Node(ctx, script.Key())
	require.NoError(t, err)
	assert.True(t, got.Deprecated)
	assert.Equal(t, "P1", got.PackID)
	assert.Equal(t, script.FromVersion.String(), got.FromVersion.String())

	gotRels, err := dst.Relationships(ctx, content.RelInPack)
	require.NoError(t, err)
	require.Len(t, gotRels, 1)
	assert.True(t, gotRels[0].Mandatorily)
	assert.Equal(t, script.Key(), gotRels[0].Source)
}

func TestImportRejectsIncompatibleSchema(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)

	dir := t.TempDir()
	require.NoError(t, Export(ctx, src, dir, Metadata{Commit: "abc"}))

	// Tamper with the recorded hash.
	metaPath := filepath.Join(dir, dumpMetadataFile)
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	meta.SchemaHash = "0000"
	raw, err = json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metaPath, raw, 0o644))

	dst := openStore(t)
	_, err = Import(ctx, dst, dir)
	require.ErrorIs(t, err, ErrIncompatibleSchema)
}

func TestReadMetadataMissing(t *testing.T) {
	_, err := ReadMetadata(t.TempDir())
	require.Error(t, err)
}
