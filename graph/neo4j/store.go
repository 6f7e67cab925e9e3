// Package neo4j implements the graph store on a remote Neo4j database via
// the official Bolt driver. Writes are batched with UNWIND, all values are
// bound as parameters, and transient connectivity failures are retried with
// exponential backoff before surfacing as ErrStoreUnavailable.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/graph/cypher"
)

// Environment variables configuring the connection.
const (
	EnvURL      = "NEO4J_URL"
	EnvUser     = "NEO4J_USER"
	EnvPassword = "NEO4J_PASSWORD"

	defaultURL  = "bolt://localhost:7687"
	defaultUser = "neo4j"
)

const (
	maxAttempts  = 5
	retryBackoff = 250 * time.Millisecond
	batchSize    = 500
)

// Options configures the remote store.
type Options struct {
	// URL is the Bolt connection string.
	URL string

	// User and Password authenticate the connection.
	User     string
	Password string

	// Database selects the Neo4j database, empty for the default.
	Database string

	// Logger receives retry and lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// OptionsFromEnv reads connection options from the environment.
func OptionsFromEnv() Options {
	opts := Options{
		URL:      os.Getenv(EnvURL),
		User:     os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
	}
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.User == "" {
		opts.User = defaultUser
	}
	return opts
}

// Store is the Neo4j-backed graph store.
type Store struct {
	opts   Options
	driver neo4j.DriverWithContext
	log    *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// NewStore creates an unopened Store.
func NewStore(opts Options) *Store {
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.User == "" {
		opts.User = defaultUser
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{opts: opts, log: log}
}

// Open connects and verifies connectivity.
func (s *Store) Open(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(s.opts.URL, neo4j.BasicAuth(s.opts.User, s.opts.Password, ""))
	if err != nil {
		return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, err)
	}
	err = s.withRetry(ctx, "verify connectivity", func() error {
		return driver.VerifyConnectivity(ctx)
	})
	if err != nil {
		_ = driver.Close(ctx)
		return err
	}
	s.driver = driver
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// IsAlive reports whether the database answers.
func (s *Store) IsAlive(ctx context.Context) bool {
	if s.driver == nil {
		return false
	}
	return s.driver.VerifyConnectivity(ctx) == nil
}

// CreateIndexesAndConstraints installs the index and constraint set.
func (s *Store) CreateIndexesAndConstraints(ctx context.Context) error {
	for _, stmt := range indexStatements() {
		if _, err := s.write(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// indexStatements renders the schema's index set as Neo4j DDL.
func indexStatements() []string {
	var out []string
	for _, ct := range content.GraphNodeTypes() {
		out = append(out,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.object_id)", ct),
		)
		if ct == content.TypeCommand {
			continue
		}
		out = append(out,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.object_id, n.content_type)", ct),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.object_id, n.content_type, n.fromversion, n.marketplaces)", ct),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.node_id)", ct),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.marketplaces)", ct),
		)
	}
	out = append(out,
		"CREATE INDEX IF NOT EXISTS FOR ()-[r:USES]-() ON (r.mandatorily)",
		"CREATE INDEX IF NOT EXISTS FOR ()-[r:HAS_COMMAND]-() ON (r.deprecated, r.description)",
	)
	return out
}

func (s *Store) CreateNodes(ctx context.Context, nodes content.Nodes) error {
	for _, group := range nodes {
		for _, n := range group {
			if err := n.Validate(); err != nil {
				return fmt.Errorf("%w: %v", graph.ErrConstraintViolated, err)
			}
		}
	}
	for ct, group := range nodes {
		var real, placeholders []map[string]any
		for _, n := range group {
			if n.NotInRepository && ct != content.TypeCommand {
				placeholders = append(placeholders, n.Properties())
			} else {
				real = append(real, n.Properties())
			}
		}
		if ct == content.TypeCommand {
			if err := s.writeBatched(ctx, mergeCommandsQuery(ct), real); err != nil {
				return err
			}
			continue
		}
		// A repository node claims any placeholder holding its key, keeping
		// the placeholder's edges, before the variant merge runs.
		if err := s.writeBatched(ctx, claimPlaceholdersQuery(ct), real); err != nil {
			return err
		}
		if err := s.writeBatched(ctx, mergeNodesQuery(ct), real); err != nil {
			return err
		}
		if err := s.writeBatched(ctx, mergePlaceholdersQuery(ct), placeholders); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeBatched(ctx context.Context, stmt string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if _, err := s.write(ctx, stmt, map[string]any{"rows": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// mergeNodesQuery upserts nodes of one type. Identity is the
// (content_type, object_id, source_path) triple so same-id items from
// different files coexist as variants.
func mergeNodesQuery(ct content.ContentType) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:%s {content_type: row.content_type, object_id: row.object_id, source_path: row.source_path})
SET n = row`, labelExpr(ct))
}

// claimPlaceholdersQuery rewrites an existing placeholder into the incoming
// repository node, so a resolved reference and the later-walked real item
// never coexist as variants of one key.
func claimPlaceholdersQuery(ct content.ContentType) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MATCH (p:BaseNode {content_type: row.content_type, object_id: row.object_id})
WHERE coalesce(p.not_in_repository, false)
SET p = row, p:%s`, labelExpr(ct))
}

// mergePlaceholdersQuery inserts placeholder nodes, skipping keys already
// held by a repository node.
func mergePlaceholdersQuery(ct content.ContentType) string {
	return fmt.Sprintf(`UNWIND $rows AS row
OPTIONAL MATCH (e:BaseNode {content_type: row.content_type, object_id: row.object_id})
WHERE NOT coalesce(e.not_in_repository, false)
WITH row, count(e) AS held
WHERE held = 0
MERGE (n:BaseNode {content_type: row.content_type, object_id: row.object_id})
SET n = row, n:%s`, labelExpr(ct))
}

// mergeCommandsQuery upserts Command nodes, unioning marketplaces on match.
// A matched placeholder command loses its placeholder flag once a declared
// command lands on the key.
func mergeCommandsQuery(ct content.ContentType) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:%s {content_type: row.content_type, object_id: row.object_id})
ON CREATE SET n = row
ON MATCH SET n.marketplaces = n.marketplaces + [m IN row.marketplaces WHERE NOT m IN n.marketplaces],
    n.not_in_repository = coalesce(n.not_in_repository, false) AND coalesce(row.not_in_repository, false)`, labelExpr(ct))
}

func labelExpr(ct content.ContentType) string {
	expr := ""
	for i, l := range ct.Labels() {
		if i > 0 {
			expr += ":"
		}
		expr += l
	}
	return expr
}

func (s *Store) CreateRelationships(ctx context.Context, rels content.Relationships) error {
	for _, group := range rels {
		for _, r := range group {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%w: %v", graph.ErrConstraintViolated, err)
			}
		}
	}
	for rt, group := range rels {
		rows := make([]map[string]any, 0, len(group))
		for _, r := range group {
			rows = append(rows, map[string]any{
				"source_type":   string(r.Source.Type),
				"source_id":     r.Source.ObjectID,
				"target_type":   string(r.Target.Type),
				"target_id":     r.Target.ObjectID,
				"mandatorily":   r.Mandatorily,
				"description":   r.Description,
				"deprecated":    r.Deprecated,
				"quickaction":   r.Quickaction,
				"is_test":       r.IsTest,
				"from_metadata": r.FromMetadata,
			})
		}
		stmt := mergeRelationshipsQuery(rt)
		for start := 0; start < len(rows); start += batchSize {
			end := min(start+batchSize, len(rows))
			if _, err := s.write(ctx, stmt, map[string]any{"rows": rows[start:end]}); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeRelationshipsQuery upserts edges of one type with the merge
// semantics of the store contract: mandatorily ORs, is_test ANDs, and a
// metadata-declared edge's mandatorily is authoritative.
//
// For edge types whose target may not have been walked yet (staged
// references, resolved USES, TESTED_BY, IMPORTS), the target endpoint is
// merged rather than matched, so no row is ever silently dropped. A target
// created this way carries the placeholder flag until a repository node
// claims its key.
func mergeRelationshipsQuery(rt content.RelationshipType) string {
	targetClause := `MATCH (b:BaseNode {content_type: row.target_type, object_id: row.target_id})`
	if rt.IsUsesStaging() || rt == content.RelUses || rt == content.RelTestedBy || rt == content.RelImports {
		targetClause = `MERGE (b:BaseNode {content_type: row.target_type, object_id: row.target_id})
ON CREATE SET b.not_in_repository = true, b.name = row.target_id, b.source_path = '',
    b.node_id = row.target_type + ':' + row.target_id`
	}
	return fmt.Sprintf(`UNWIND $rows AS row
MATCH (a:BaseNode {content_type: row.source_type, object_id: row.source_id})
%s
MERGE (a)-[r:%s]->(b)
SET r.mandatorily = CASE
      WHEN coalesce(r.from_metadata, false) AND NOT row.from_metadata THEN r.mandatorily
      WHEN row.from_metadata THEN row.mandatorily
      ELSE coalesce(r.mandatorily, false) OR row.mandatorily
    END,
    r.is_test = CASE WHEN r.is_test IS NULL THEN row.is_test ELSE r.is_test AND row.is_test END,
    r.deprecated = coalesce(r.deprecated, false) OR row.deprecated,
    r.quickaction = coalesce(r.quickaction, false) OR row.quickaction,
    r.from_metadata = coalesce(r.from_metadata, false) OR row.from_metadata,
    r.description = CASE WHEN row.description <> '' THEN row.description ELSE coalesce(r.description, '') END`, targetClause, rt)
}

func (s *Store) RemovePacks(ctx context.Context, packIDs []string) error {
	_, err := s.write(ctx, `MATCH (n:BaseNode)
WHERE n.content_type <> 'Command'
  AND ((n.content_type = 'Pack' AND n.object_id IN $packs) OR n.pack_id IN $packs)
DETACH DELETE n`, map[string]any{"packs": packIDs})
	return err
}

func (s *Store) DeleteRelationships(ctx context.Context, keys []content.EdgeKey) error {
	rows := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, map[string]any{
			"type":        string(k.Type),
			"source_type": string(k.Source.Type),
			"source_id":   k.Source.ObjectID,
			"target_type": string(k.Target.Type),
			"target_id":   k.Target.ObjectID,
		})
	}
	_, err := s.write(ctx, `UNWIND $rows AS row
MATCH (a:BaseNode {content_type: row.source_type, object_id: row.source_id})
      -[r]->
      (b:BaseNode {content_type: row.target_type, object_id: row.target_id})
WHERE type(r) = row.type
DELETE r`, map[string]any{"rows": rows})
	return err
}

func (s *Store) Node(ctx context.Context, key content.NodeKey) (*content.Node, error) {
	where, params := cypher.Where([]cypher.Predicate{
		{Field: "content_type", Op: cypher.Eq, Value: string(key.Type)},
		{Field: "object_id", Op: cypher.Eq, Value: key.ObjectID},
	}, "n")
	var st cypher.Statement
	st.Add(cypher.Match("BaseNode", "n"), nil).
		Add(where, params).
		Add(cypher.Return("n", nil)+" ORDER BY n.fromversion LIMIT 1", nil)
	records, err := s.read(ctx, st.Text(), st.Params())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, key.ID())
	}
	return nodeFromRecord(records[0], "n")
}

func (s *Store) Nodes(ctx context.Context, types ...content.ContentType) ([]*content.Node, error) {
	var preds []cypher.Predicate
	if len(types) > 0 {
		preds = append(preds, cypher.Predicate{Field: "content_type", Op: cypher.In, Value: typeStrings(types)})
	}
	where, params := cypher.Where(preds, "n")
	var st cypher.Statement
	st.Add(cypher.Match("BaseNode", "n"), nil).
		Add(where, params).
		Add(cypher.Return("n", nil)+" ORDER BY n.content_type, n.object_id, n.source_path", nil)
	records, err := s.read(ctx, st.Text(), st.Params())
	if err != nil {
		return nil, err
	}
	return nodesFromRecords(records, "n")
}

func (s *Store) Relationships(ctx context.Context, types ...content.RelationshipType) ([]*content.Relationship, error) {
	stmt := `MATCH (a:BaseNode)-[r]->(b:BaseNode)`
	params := map[string]any{}
	if len(types) > 0 {
		stmt += ` WHERE type(r) IN $types`
		relTypes := make([]string, 0, len(types))
		for _, t := range types {
			relTypes = append(relTypes, string(t))
		}
		params["types"] = relTypes
	}
	stmt += `
RETURN type(r) AS t, properties(r) AS props,
       a.content_type AS act, a.object_id AS aid,
       b.content_type AS bct, b.object_id AS bid
ORDER BY t, act, aid, bct, bid`
	records, err := s.read(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	out := make([]*content.Relationship, 0, len(records))
	for _, rec := range records {
		out = append(out, relationshipFromRecord(rec))
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, opts graph.SearchOptions) ([]*content.Node, error) {
	var preds []cypher.Predicate
	if len(opts.Types) > 0 {
		preds = append(preds, cypher.Predicate{Field: "content_type", Op: cypher.In, Value: typeStrings(opts.Types)})
	}
	if opts.Marketplace != "" {
		preds = append(preds, cypher.Predicate{Field: "marketplaces", Op: cypher.InList, Value: string(opts.Marketplace)})
	}
	if len(opts.IDs) > 0 {
		preds = append(preds, cypher.Predicate{Field: "object_id", Op: cypher.In, Value: opts.IDs})
	}
	for _, key := range sortedKeys(opts.Properties) {
		preds = append(preds, cypher.Predicate{Field: key, Op: cypher.Eq, Value: opts.Properties[key]})
	}
	where, params := cypher.Where(preds, "n")
	var st cypher.Statement
	st.Add(cypher.Match("BaseNode", "n"), nil).
		Add(where, params).
		Add(cypher.Return("n", nil)+" ORDER BY n.content_type, n.object_id, n.source_path", nil)
	records, err := s.read(ctx, st.Text(), st.Params())
	if err != nil {
		return nil, err
	}
	return nodesFromRecords(records, "n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// write runs one statement in a write transaction with retry.
func (s *Store) write(ctx context.Context, stmt string, params map[string]any) ([]*neo4j.Record, error) {
	return s.run(ctx, neo4j.AccessModeWrite, stmt, params)
}

// read runs one statement in a read transaction with retry.
func (s *Store) read(ctx context.Context, stmt string, params map[string]any) ([]*neo4j.Record, error) {
	return s.run(ctx, neo4j.AccessModeRead, stmt, params)
}

func (s *Store) run(ctx context.Context, mode neo4j.AccessMode, stmt string, params map[string]any) ([]*neo4j.Record, error) {
	if s.driver == nil {
		return nil, graph.ErrStoreUnavailable
	}
	var records []*neo4j.Record
	err := s.withRetry(ctx, "run query", func() error {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   mode,
			DatabaseName: s.opts.Database,
		})
		defer session.Close(ctx)

		work := func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, stmt, params)
			if err != nil {
				return nil, err
			}
			return result.Collect(ctx)
		}
		var out any
		var err error
		if mode == neo4j.AccessModeRead {
			out, err = session.ExecuteRead(ctx, work)
		} else {
			out, err = session.ExecuteWrite(ctx, work)
		}
		if err != nil {
			return err
		}
		records, _ = out.([]*neo4j.Record)
		return nil
	})
	return records, err
}

// withRetry runs fn up to maxAttempts times with exponential backoff.
// Exhausted connectivity failures surface as ErrStoreUnavailable.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	delay := retryBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxAttempts {
			break
		}
		s.log.Warn("graph store retry",
			"op", op,
			"attempt", attempt,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	if retryable(err) {
		return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, err)
	}
	return err
}

// retryable reports whether the failure is a connectivity problem rather
// than a query error.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var usageErr *neo4j.UsageError
	if errors.As(err, &usageErr) {
		return false
	}
	var neo4jErr *neo4j.Neo4jError
	if errors.As(err, &neo4jErr) {
		return neo4jErr.IsRetriable()
	}
	return true
}

func typeStrings(types []content.ContentType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func nodesFromRecords(records []*neo4j.Record, alias string) ([]*content.Node, error) {
	out := make([]*content.Node, 0, len(records))
	for _, rec := range records {
		n, err := nodeFromRecord(rec, alias)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func nodeFromRecord(rec *neo4j.Record, alias string) (*content.Node, error) {
	raw, ok := rec.Get(alias)
	if !ok {
		return nil, fmt.Errorf("record has no column %q", alias)
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("column %q is not a node", alias)
	}
	return content.NodeFromProperties(node.Props)
}

func relationshipFromRecord(rec *neo4j.Record) *content.Relationship {
	col := func(name string) string {
		if v, ok := rec.Get(name); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	props := map[string]any{}
	if v, ok := rec.Get("props"); ok {
		if m, ok := v.(map[string]any); ok {
			props = m
		}
	}
	boolProp := func(key string) bool {
		v, _ := props[key].(bool)
		return v
	}
	strProp := func(key string) string {
		v, _ := props[key].(string)
		return v
	}
	return &content.Relationship{
		Type:         content.RelationshipType(col("t")),
		Source:       content.NodeKey{Type: content.ContentType(col("act")), ObjectID: col("aid")},
		Target:       content.NodeKey{Type: content.ContentType(col("bct")), ObjectID: col("bid")},
		Mandatorily:  boolProp("mandatorily"),
		Description:  strProp("description"),
		Deprecated:   boolProp("deprecated"),
		Quickaction:  boolProp("quickaction"),
		IsTest:       boolProp("is_test"),
		FromMetadata: boolProp("from_metadata"),
	}
}
