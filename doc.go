// Package packgraph builds and queries a typed dependency graph over a
// security content repository.
//
// A content repository is laid out as packs under a Packs/ directory, each
// pack holding integrations, scripts, playbooks, classifiers, mappers,
// layouts, fields and rules. packgraph parses those files into graph nodes,
// links them with typed relationships, derives pack-level dependencies, and
// validates the result.
//
// # Core Concepts
//
//   - Nodes: packs, content items and integration commands, keyed by
//     content type and object id. Items sharing an id form sibling
//     variants scoped by version window and marketplace.
//   - Relationships: typed directed edges such as USES, IN_PACK,
//     HAS_COMMAND and the derived DEPENDS_ON between packs.
//   - Stores: a graph.Store holds the graph, either in memory or in a
//     neo4j database.
//   - Updates: the updater rebuilds the graph from the repository or
//     refreshes it incrementally from an exported baseline.
//
// # Getting Started
//
// Create an engine and build the graph:
//
//	import "github.com/zero-day-ai/packgraph"
//
//	engine, err := packgraph.NewEngine(packgraph.ConfigFromEnv())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	summary, err := engine.CreateGraph(ctx, update.Options{
//		RepoRoot: "/path/to/content",
//	})
//
// The subpackages can also be used directly: walk parses a repository into
// nodes and relationships, graph persists them, deps derives pack
// dependencies, queries answers the named validation queries, and validate
// runs the rule engine.
package packgraph
