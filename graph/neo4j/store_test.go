package neo4j

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph/cypher"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv(EnvURL, "")
	t.Setenv(EnvUser, "")
	opts := OptionsFromEnv()
	assert.Equal(t, defaultURL, opts.URL)
	assert.Equal(t, defaultUser, opts.User)

	t.Setenv(EnvURL, "bolt://graph:7687")
	t.Setenv(EnvUser, "svc")
	opts = OptionsFromEnv()
	assert.Equal(t, "bolt://graph:7687", opts.URL)
	assert.Equal(t, "svc", opts.User)
}

func TestMergeRelationshipsQueryEndpoints(t *testing.T) {
	// Reference edges merge their target so rows without a walked target
	// node are kept instead of silently dropped.
	for _, rt := range []content.RelationshipType{
		content.RelUses,
		content.RelUsesByID,
		content.RelUsesByCLIName,
		content.RelTestedBy,
		content.RelImports,
	} {
		stmt := mergeRelationshipsQuery(rt)
		assert.Contains(t, stmt, "MERGE (b:BaseNode", "type %s", rt)
		assert.Contains(t, stmt, "b.not_in_repository = true", "type %s", rt)
		assert.Contains(t, stmt, "MERGE (a)-[r:"+string(rt)+"]->(b)")
	}

	// Structural edges keep the strict MATCH on both endpoints.
	for _, rt := range []content.RelationshipType{
		content.RelInPack,
		content.RelHasCommand,
		content.RelDependsOn,
	} {
		stmt := mergeRelationshipsQuery(rt)
		assert.Contains(t, stmt, "MATCH (b:BaseNode", "type %s", rt)
		assert.NotContains(t, stmt, "MERGE (b:BaseNode", "type %s", rt)
	}
}

func TestNodeMergeQueries(t *testing.T) {
	stmt := mergeNodesQuery(content.TypeScript)
	assert.Contains(t, stmt, "source_path: row.source_path", "variant identity includes the source path")

	claim := claimPlaceholdersQuery(content.TypeScript)
	assert.Contains(t, claim, "coalesce(p.not_in_repository, false)")
	assert.Contains(t, claim, "SET p = row")

	ph := mergePlaceholdersQuery(content.TypeScript)
	assert.Contains(t, ph, "WHERE held = 0", "placeholders never shadow a walked node")

	cmd := mergeCommandsQuery(content.TypeCommand)
	assert.Contains(t, cmd, "n.marketplaces + [m IN row.marketplaces")
	assert.Contains(t, cmd, "n.not_in_repository = coalesce(n.not_in_repository, false) AND")
}

func TestNodeQueryUsesBuilder(t *testing.T) {
	where, params := cypher.Where([]cypher.Predicate{
		{Field: "content_type", Op: cypher.Eq, Value: "Script"},
		{Field: "object_id", Op: cypher.Eq, Value: "Helper"},
	}, "n")
	var st cypher.Statement
	st.Add(cypher.Match("BaseNode", "n"), nil).
		Add(where, params).
		Add(cypher.Return("n", nil), nil)

	text := st.Text()
	require.True(t, strings.HasPrefix(text, "MATCH (n:BaseNode)"))
	assert.Contains(t, text, "n.content_type = $n_p0")
	assert.Contains(t, text, "n.object_id = $n_p1")
	assert.Equal(t, map[string]any{"n_p0": "Script", "n_p1": "Helper"}, st.Params())
}
