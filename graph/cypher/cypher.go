// Package cypher builds parameterized Cypher fragments for the remote graph
// backend. Values always travel as parameters, never spliced into the query
// text.
package cypher

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a comparison operation in a query predicate.
type Op int

const (
	// Eq represents equality comparison (=)
	Eq Op = iota
	// Neq represents inequality comparison (<>)
	Neq
	// Contains represents string containment check (CONTAINS)
	Contains
	// In represents membership check (IN)
	In
	// InList represents reverse membership, value in a list property
	InList
	// IsNull represents null check (IS NULL)
	IsNull
	// IsNotNull represents non-null check (IS NOT NULL)
	IsNotNull
)

// Predicate filters nodes on one property.
type Predicate struct {
	// Field is the property name to filter on
	Field string
	// Op is the comparison operation to perform
	Op Op
	// Value is the comparison value (nil for IsNull/IsNotNull)
	Value any
}

// Traversal navigates from one node to another via a relationship type.
type Traversal struct {
	// Relationship is the relationship type to traverse
	Relationship string
	// TargetLabel is the label the far node must carry
	TargetLabel string
	// Direction is "out", "in" or "both"; invalid values mean "out"
	Direction string
	// MinHops and MaxHops bound a variable-length traversal. Both zero
	// means a single hop.
	MinHops int
	MaxHops int
}

// Match generates a MATCH clause for a labeled node.
//
//	Match("Integration", "n") // "MATCH (n:Integration)"
func Match(label string, alias string) string {
	return fmt.Sprintf("MATCH (%s:%s)", alias, label)
}

// Where generates a WHERE clause and its parameter map. Parameters are
// named after the alias and position so clauses from several aliases can
// share one map.
func Where(predicates []Predicate, alias string) (string, map[string]any) {
	if len(predicates) == 0 {
		return "", nil
	}

	params := make(map[string]any)
	var conditions []string
	for i, pred := range predicates {
		name := fmt.Sprintf("%s_p%d", alias, i)
		conditions = append(conditions, condition(pred, alias, name))
		if pred.Op != IsNull && pred.Op != IsNotNull {
			params[name] = pred.Value
		}
	}
	return "WHERE " + strings.Join(conditions, " AND "), params
}

func condition(pred Predicate, alias string, name string) string {
	field := fmt.Sprintf("%s.%s", alias, pred.Field)
	switch pred.Op {
	case Neq:
		return fmt.Sprintf("%s <> $%s", field, name)
	case Contains:
		return fmt.Sprintf("%s CONTAINS $%s", field, name)
	case In:
		return fmt.Sprintf("%s IN $%s", field, name)
	case InList:
		return fmt.Sprintf("$%s IN %s", name, field)
	case IsNull:
		return fmt.Sprintf("%s IS NULL", field)
	case IsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", field)
	default:
		return fmt.Sprintf("%s = $%s", field, name)
	}
}

// Return generates a RETURN clause. Empty fields return the whole node.
func Return(alias string, fields []string) string {
	if len(fields) == 0 {
		return "RETURN " + alias
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, fmt.Sprintf("%s.%s", alias, f))
	}
	return "RETURN " + strings.Join(refs, ", ")
}

// Pattern generates the relationship pattern of a traversal.
//
//	Pattern(Traversal{Relationship: "USES", TargetLabel: "BaseContent", Direction: "out"}, "a", "b")
//	// "(a)-[:USES]->(b:BaseContent)"
//
// With hop bounds the relationship becomes variable-length:
//
//	Pattern(Traversal{Relationship: "DEPENDS_ON", TargetLabel: "Pack", Direction: "out", MinHops: 1, MaxHops: 5}, "a", "b")
//	// "(a)-[:DEPENDS_ON*1..5]->(b:Pack)"
func Pattern(t Traversal, fromAlias string, toAlias string) string {
	rel := "[:" + t.Relationship
	if t.MaxHops > 0 {
		rel += fmt.Sprintf("*%d..%d", t.MinHops, t.MaxHops)
	}
	rel += "]"
	target := fmt.Sprintf("%s:%s", toAlias, t.TargetLabel)

	switch t.Direction {
	case "in":
		return fmt.Sprintf("(%s)<-%s-(%s)", fromAlias, rel, target)
	case "both":
		return fmt.Sprintf("(%s)-%s-(%s)", fromAlias, rel, target)
	default:
		return fmt.Sprintf("(%s)-%s->(%s)", fromAlias, rel, target)
	}
}

// MergeNode generates a MERGE on the node identity pair followed by a SET
// of the remaining properties. The property map itself is bound as one
// parameter.
//
// The statement shape is:
//
//	MERGE (n:Label:Label2 {content_type: $n_ct, object_id: $n_id})
//	SET n += $n_props
func MergeNode(labels []string, alias string, contentType string, objectID string, props map[string]any) (string, map[string]any) {
	rest := make(map[string]any, len(props))
	for k, v := range props {
		if k == "content_type" || k == "object_id" {
			continue
		}
		rest[k] = v
	}
	params := map[string]any{
		alias + "_ct":    contentType,
		alias + "_id":    objectID,
		alias + "_props": rest,
	}
	stmt := fmt.Sprintf("MERGE (%s:%s {content_type: $%s_ct, object_id: $%s_id})\nSET %s += $%s_props",
		alias, strings.Join(labels, ":"), alias, alias, alias, alias)
	return stmt, params
}

// MergeRelationship generates a MERGE of one edge between two already-bound
// aliases, setting the edge properties from a bound map.
func MergeRelationship(relType string, fromAlias string, toAlias string, props map[string]any) (string, map[string]any) {
	name := fmt.Sprintf("%s_%s_rel", fromAlias, toAlias)
	stmt := fmt.Sprintf("MERGE (%s)-[r:%s]->(%s)\nSET r += $%s", fromAlias, relType, toAlias, name)
	return stmt, map[string]any{name: props}
}

// Statement accumulates clauses and their parameters into one query.
type Statement struct {
	clauses []string
	params  map[string]any
}

// Add appends a clause, skipping empty ones, and merges its parameters.
func (s *Statement) Add(clause string, params map[string]any) *Statement {
	if clause != "" {
		s.clauses = append(s.clauses, clause)
	}
	if len(params) > 0 {
		if s.params == nil {
			s.params = make(map[string]any)
		}
		for k, v := range params {
			s.params[k] = v
		}
	}
	return s
}

// Text returns the assembled query text.
func (s *Statement) Text() string {
	return strings.Join(s.clauses, "\n")
}

// Params returns the merged parameter map.
func (s *Statement) Params() map[string]any {
	return s.params
}

// ParamNames returns the sorted parameter names, for diagnostics.
func (s *Statement) ParamNames() []string {
	names := make([]string, 0, len(s.params))
	for k := range s.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
