package walk

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
)

// writeRepo lays out a minimal two-pack content repository.
func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"Packs/Hello/pack_metadata.json": `{
  "name": "Hello Pack",
  "support": "xsoar",
  "currentVersion": "1.0.0",
  "marketplaces": ["xsoar"]
}`,
		"Packs/Hello/Integrations/Hello/Hello.yml": `
commonfields:
  id: Hello
name: Hello
display: Hello World
category: Utilities
script:
  type: python
  commands:
    - name: hello-say-hi
      description: Says hi.
`,
		"Packs/Hello/Playbooks/playbook-HelloFlow.yml": `
id: HelloFlow
name: HelloFlow
starttaskid: "0"
tasks:
  "0":
    task:
      scriptName: SayHi
`,
		"Packs/Other/pack_metadata.json": `{
  "name": "Other Pack",
  "marketplaces": ["xsoar"]
}`,
		"Packs/Other/Scripts/SayHi/SayHi.yml": `
commonfields:
  id: SayHi
name: SayHi
type: python
script: "pass"
`,
		"Packs/Other/Scripts/SayHi/SayHi_test_data/TestData/resp.json": `{}`,
		"Tests/conf.json": `{
  "tests": [
    {"playbookID": "Hello-Test", "integrations": "Hello"},
    {"playbookID": "Absent-Test", "integrations": ["NotWalked"]}
  ]
}`,
	}
	for rel, body := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
	}
	return root
}

func TestWalk(t *testing.T) {
	root := writeRepo(t)
	w := New(WithWorkers(2))

	res, err := w.Walk(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", "Other"}, res.Packs)
	assert.Empty(t, res.Diagnostics)

	require.Len(t, res.Nodes[content.TypePack], 2)
	require.Len(t, res.Nodes[content.TypeIntegration], 1)
	require.Len(t, res.Nodes[content.TypeCommand], 1)
	require.Len(t, res.Nodes[content.TypePlaybook], 1)
	require.Len(t, res.Nodes[content.TypeScript], 1)

	// Every content item got its IN_PACK edge.
	assert.Len(t, res.Relationships[content.RelInPack], 3)
	assert.Len(t, res.Relationships[content.RelHasCommand], 1)

	// conf.json resolved a TESTED_BY edge for the walked integration only.
	tested := res.Relationships[content.RelTestedBy]
	require.Len(t, tested, 1)
	assert.Equal(t, "Hello", tested[0].Source.ObjectID)
	assert.Equal(t, "Hello-Test", tested[0].Target.ObjectID)
}

func TestWalkPackFilter(t *testing.T) {
	root := writeRepo(t)
	w := New(WithWorkers(1))

	res, err := w.Walk(context.Background(), root, []string{"Other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Other"}, res.Packs)
	assert.Empty(t, res.Nodes[content.TypeIntegration])
	require.Len(t, res.Nodes[content.TypeScript], 1)
}

func TestWalkCollectsDiagnostics(t *testing.T) {
	root := writeRepo(t)
	bad := filepath.Join(root, "Packs", "Hello", "Playbooks", "playbook-Bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("{{nope"), 0o644))

	res, err := New(WithWorkers(2)).Walk(context.Background(), root, nil)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0].Path, "playbook-Bad.yml")

	// Siblings still parsed.
	assert.Len(t, res.Nodes[content.TypePlaybook], 1)
}

func TestWalkCancellation(t *testing.T) {
	root := writeRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithWorkers(1)).Walk(ctx, root, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkersEnv(t *testing.T) {
	t.Setenv(EnvMaxCPUCores, "1")
	assert.Equal(t, 1, WorkersFromEnv())
	assert.Equal(t, 1, Workers())

	// Non-positive values fall through to the CPU count.
	t.Setenv(EnvMaxCPUCores, "0")
	assert.Equal(t, 0, WorkersFromEnv())
	assert.Equal(t, runtime.NumCPU(), Workers())

	t.Setenv(EnvMaxCPUCores, "")
	t.Setenv(EnvMaxThreads, "1")
	assert.Equal(t, 1, Workers())

	// Caps above the machine clamp to the logical CPU count.
	t.Setenv(EnvMaxCPUCores, "4096")
	assert.Equal(t, runtime.NumCPU(), WorkersFromEnv())

	t.Setenv(EnvMaxCPUCores, "not-a-number")
	t.Setenv(EnvMaxThreads, "")
	assert.Equal(t, 0, WorkersFromEnv())
}
