package packgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/deps"
	"github.com/zero-day-ai/packgraph/update"
)

// writeRepo lays out a two-pack repository where pack A's playbook uses
// pack B's script.
func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"Packs/A/pack_metadata.json": `{"name": "Pack A", "marketplaces": ["xsoar"]}`,
		"Packs/A/Playbooks/playbook-Flow.yml": `
id: Flow
name: Flow
starttaskid: "0"
tasks:
  "0":
    task:
      scriptName: Helper
`,
		"Packs/B/pack_metadata.json": `{"name": "Pack B", "marketplaces": ["xsoar"]}`,
		"Packs/B/Scripts/Helper/Helper.yml": `
commonfields:
  id: Helper
name: Helper
type: python
script: "pass"
`,
	}
	for rel, body := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
	}
	return root
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{Backend: BackendMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Backend: BackendMemory}
	assert.NoError(t, cfg.Validate())

	cfg = Config{Backend: "etcd"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = Config{Backend: BackendNeo4j, Workers: -1}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvMaxCPUCores, "")
	t.Setenv(EnvMaxThreads, "")
	cfg := ConfigFromEnv()
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Zero(t, cfg.Workers)
}

func TestConfigFromEnvWorkerAlias(t *testing.T) {
	t.Setenv(EnvMaxCPUCores, "")
	t.Setenv(EnvMaxThreads, "1")
	assert.Equal(t, 1, ConfigFromEnv().Workers)

	// The canonical variable wins over the deprecated alias.
	t.Setenv(EnvMaxCPUCores, "2")
	t.Setenv(EnvMaxThreads, "1")
	cfg := ConfigFromEnv()
	assert.LessOrEqual(t, cfg.Workers, 2)
	assert.Positive(t, cfg.Workers)
}

func TestEngineCreateAndQuery(t *testing.T) {
	root := writeRepo(t)
	engine := newEngine(t)
	ctx := context.Background()

	summary, err := engine.CreateGraph(ctx, update.Options{RepoRoot: root})
	require.NoError(t, err)
	assert.Equal(t, "create", summary.Mode)
	assert.Equal(t, []string{"A", "B"}, summary.Packs)

	out, err := engine.Dependencies(ctx, "A", deps.QueryOptions{}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].PackID)
	assert.True(t, out[0].Mandatorily)

	_, err = engine.Dependencies(ctx, "Missing", deps.QueryOptions{}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackNotFound)
}

func TestEngineRelationships(t *testing.T) {
	root := writeRepo(t)
	engine := newEngine(t)
	ctx := context.Background()

	_, err := engine.CreateGraph(ctx, update.Options{RepoRoot: root})
	require.NoError(t, err)

	view, err := engine.Relationships(ctx, "Packs/A/Playbooks/playbook-Flow.yml", content.RelUses, 2)
	require.NoError(t, err)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "Script:Helper", view.Targets[0].NodeID)
	assert.Equal(t, 1, view.Targets[0].Depth)
	assert.Empty(t, view.Sources)

	// The script sees the playbook on its incoming side.
	view, err = engine.Relationships(ctx, "Packs/B/Scripts/Helper/Helper.yml", content.RelUses, 1)
	require.NoError(t, err)
	require.Len(t, view.Sources, 1)
	assert.Equal(t, "Playbook:Flow", view.Sources[0].NodeID)

	_, err = engine.Relationships(ctx, "Packs/Nope/file.yml", content.RelUses, 1)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestEngineValidate(t *testing.T) {
	root := writeRepo(t)
	engine := newEngine(t)
	ctx := context.Background()

	_, err := engine.CreateGraph(ctx, update.Options{RepoRoot: root})
	require.NoError(t, err)

	report, err := engine.Validate(ctx, "all_files", nil, false)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)

	// Restricting to one file keeps the run scoped.
	report, err = engine.Validate(ctx, "all_files", []string{"Packs/B/Scripts/Helper/Helper.yml"}, false)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
}
