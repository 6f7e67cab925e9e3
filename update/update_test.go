package update

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/deps"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/walk"
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
		"Packs/A/Scripts/Standalone/Standalone.yml": `
commonfields:
  id: Standalone
name: Standalone
type: python
script: "pass"
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

func newUpdater(t *testing.T, opts ...UpdaterOption) (*Updater, *graph.MemoryStore) {
	t.Helper()
	store := graph.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	u := NewUpdater(store, walk.New(walk.WithWorkers(2)), deps.New(store), opts...)
	return u, store
}

func TestCreateBuildsAndExports(t *testing.T) {
	root := writeRepo(t)
	out := t.TempDir()
	u, store := newUpdater(t)
	ctx := context.Background()

	summary, err := u.Create(ctx, Options{RepoRoot: root, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, "create", summary.Mode)
	assert.Equal(t, []string{"A", "B"}, summary.Packs)
	assert.Empty(t, summary.Diagnostics)

	// The cross-pack dependency was derived.
	depends, err := store.Relationships(ctx, content.RelDependsOn)
	require.NoError(t, err)
	require.Len(t, depends, 1)
	assert.Equal(t, "A", depends[0].Source.ObjectID)
	assert.Equal(t, "B", depends[0].Target.ObjectID)
	assert.True(t, depends[0].Mandatorily)

	// The dump landed with its sidecars.
	for _, name := range []string{"graph.json", "metadata.json", "schema.json"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestPartialUpdatePreservesCrossPackEdges(t *testing.T) {
	root := writeRepo(t)
	dump := t.TempDir()
	ctx := context.Background()

	u, _ := newUpdater(t)
	_, err := u.Create(ctx, Options{RepoRoot: root, OutputDir: dump})
	require.NoError(t, err)

	// Touch only an unrelated file in pack A.
	unrelated := filepath.Join(root, "Packs", "A", "Scripts", "Standalone", "Standalone.yml")
	require.NoError(t, os.WriteFile(unrelated, []byte(`
commonfields:
  id: Standalone
name: Standalone
type: python
comment: edited
script: "pass"
`), 0o644))

	fresh := graph.NewMemoryStore()
	t.Cleanup(func() { _ = fresh.Close(ctx) })
	u2 := NewUpdater(fresh, walk.New(walk.WithWorkers(2)), deps.New(fresh))

	summary, err := u2.Update(ctx, Options{
		RepoRoot:   root,
		ImportPath: dump,
		Packs:      []string{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "update", summary.Mode)
	assert.Equal(t, []string{"A"}, summary.Packs)

	// The USES edge into pack B survived the replace of pack A.
	usesEdges, err := fresh.Relationships(ctx, content.RelUses)
	require.NoError(t, err)
	found := false
	for _, rel := range usesEdges {
		if rel.Source.ObjectID == "Flow" && rel.Target.ObjectID == "Helper" {
			found = true
		}
	}
	assert.True(t, found, "cross-pack USES edge must survive")

	// And the derived dependency is back after re-derivation.
	depends, err := fresh.Relationships(ctx, content.RelDependsOn)
	require.NoError(t, err)
	require.Len(t, depends, 1)
	assert.Equal(t, "B", depends[0].Target.ObjectID)

	// Pack B was not re-walked.
	helper, err := fresh.Node(ctx, content.NodeKey{Type: content.TypeScript, ObjectID: "Helper"})
	require.NoError(t, err)
	assert.Equal(t, "B", helper.PackID)

	edited, err := fresh.Node(ctx, content.NodeKey{Type: content.TypeScript, ObjectID: "Standalone"})
	require.NoError(t, err)
	assert.Equal(t, "A", edited.PackID)
}

func TestUpdateFallsBackToCreate(t *testing.T) {
	root := writeRepo(t)
	u, store := newUpdater(t)
	ctx := context.Background()

	// No baseline, no pack set, no git history here: the import path is
	// missing, so the decision tree lands on a full rebuild.
	summary, err := u.Update(ctx, Options{
		RepoRoot:   root,
		ImportPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)
	assert.Equal(t, "create", summary.Mode)

	nodes, err := store.Nodes(ctx, content.TypePack)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestForceCreateFlag(t *testing.T) {
	root := writeRepo(t)
	u, _ := newUpdater(t)
	t.Setenv(EnvForceCreate, "1")

	summary, err := u.Update(context.Background(), Options{RepoRoot: root})
	require.NoError(t, err)
	assert.Equal(t, "create", summary.Mode)
}

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	first := NewRedisLockWithClient(client, "test:lock", time.Minute)
	second := NewRedisLockWithClient(client, "test:lock", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	require.ErrorIs(t, second.Acquire(ctx), ErrUpdateInProgress)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestUpdateFailsFastWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	holder := NewRedisLockWithClient(client, "test:lock", time.Minute)
	require.NoError(t, holder.Acquire(ctx))
	defer func() { _ = holder.Release(ctx) }()

	root := writeRepo(t)
	u, _ := newUpdater(t, WithLocker(NewRedisLockWithClient(client, "test:lock", time.Minute)))
	_, err := u.Update(ctx, Options{RepoRoot: root})
	require.ErrorIs(t, err, ErrUpdateInProgress)
}

func TestPackOfPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Packs/Hello/Integrations/Hello/Hello.yml", "Hello"},
		{"Packs/Other/pack_metadata.json", "Other"},
		{"Tests/conf.json", ""},
		{"", ""},
		{"Packs", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, packOfPath(tt.path), tt.path)
	}
}
