package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
)

func TestClassifyTables(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		path string
		want content.ContentType
		ok   bool
	}{
		{
			name: "prefix integration",
			path: "Packs/Hello/Integrations/integration-Hello.yml",
			want: content.TypeIntegration,
			ok:   true,
		},
		{
			name: "prefix mapper",
			path: "Packs/Hello/Classifiers/mapper-Hello.json",
			want: content.TypeMapper,
			ok:   true,
		},
		{
			name: "prefix layoutscontainer",
			path: "Packs/Hello/Layouts/layoutscontainer-Hello.json",
			want: content.TypeLayout,
			ok:   true,
		},
		{
			name: "exact pack metadata",
			path: "Packs/Hello/pack_metadata.json",
			want: content.TypePackMeta,
			ok:   true,
		},
		{
			name: "exact reputations",
			path: "Packs/Hello/IndicatorTypes/reputations.json",
			want: content.TypeOldIndicatorType,
			ok:   true,
		},
		{
			name: "regex release note",
			path: "Packs/Hello/ReleaseNotes/1_0_3.md",
			want: content.TypeReleaseNote,
			ok:   true,
		},
		{
			name: "regex readme",
			path: "Packs/Hello/Integrations/Hello/README.md",
			want: content.TypeReadme,
			ok:   true,
		},
		{
			name: "regex changelog",
			path: "Packs/Hello/Hello_CHANGELOG.md",
			want: content.TypeChangeLog,
			ok:   true,
		},
		{
			name: "directory second-to-last",
			path: "Packs/Hello/Wizards/wizard_file.json",
			want: content.TypeWizard,
			ok:   true,
		},
		{
			name: "directory third-to-last",
			path: "Packs/Hello/Integrations/Hello/Hello.yml",
			want: content.TypeIntegration,
			ok:   true,
		},
		{
			name: "test playbook by folder",
			path: "Packs/Hello/TestPlaybooks/Hello-Test.yml",
			want: content.TypeTestPlaybook,
			ok:   true,
		},
		{
			name: "test script by prefix under test playbooks",
			path: "Packs/Hello/TestPlaybooks/script-HelloHelper.yml",
			want: content.TypeTestScript,
			ok:   true,
		},
		{
			name: "playbook prefix under test playbooks is a test playbook",
			path: "Packs/Hello/TestPlaybooks/playbook-Hello-Test.yml",
			want: content.TypeTestPlaybook,
			ok:   true,
		},
		{
			name: "unrecognized deep folder",
			path: "Packs/Hello/SomeFolder/a/b/c.yml",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Classify(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExcluded(t *testing.T) {
	assert.True(t, Excluded("Tests/conf.json"))
	assert.True(t, Excluded("Packs/Hello/Integrations/Hello/TestData/response.json"))
	assert.True(t, Excluded("docs/readme.md"))
	assert.False(t, Excluded("Packs/Hello/pack_metadata.json"))
	// Tests folder inside a pack is not the repo-level Tests tree.
	assert.False(t, Excluded("Packs/Hello/Tests/something.yml"))
}

func TestClassifyIdempotent(t *testing.T) {
	c := New()
	first, ok1 := c.Classify("Packs/Hello/Scripts/S/S.yml")
	second, ok2 := c.Classify("Packs/Hello/Scripts/S/S.yml")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)

	_, miss1 := c.Classify("Packs/Hello/Nope/x/y/z.bin")
	_, miss2 := c.Classify("Packs/Hello/Nope/x/y/z.bin")
	assert.False(t, miss1)
	assert.False(t, miss2)
}

func TestClassifySniffFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Packs", "Hello", "Misc")
	require.NoError(t, os.MkdirAll(path, 0o755))
	file := filepath.Join(path, "thing.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"type": "mapping-incoming"}`), 0o644))

	sniff := func(doc map[string]any, _ string) (content.ContentType, bool) {
		if doc["type"] == "mapping-incoming" {
			return content.TypeMapper, true
		}
		return "", false
	}
	c := New(WithSniffer(sniff))
	ct, ok := c.Classify(file)
	require.True(t, ok)
	assert.Equal(t, content.TypeMapper, ct)
}
