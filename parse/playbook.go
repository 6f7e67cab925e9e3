package parse

import (
	"strings"

	"github.com/zero-day-ai/packgraph/content"
)

// builtinSetCommands are server tasks whose script arguments reference
// incident/indicator fields by cli name.
var builtinSetCommands = map[string]bool{
	"setIncident":  true,
	"setAlert":     true,
	"setIndicator": true,
}

func parsePlaybook(f *File) (*Result, error) {
	ct := f.Type
	if underTestPlaybooks(f.RepoPath) {
		ct = content.TypeTestPlaybook
	}

	node := &content.Node{
		Type:         ct,
		ObjectID:     docID(f.Doc),
		Name:         docString(f.Doc, "name"),
		DisplayName:  docString(f.Doc, "name"),
		Marketplaces: docMarketplaces(f.Doc, f.PackMarketplaces),
		Deprecated:   docBool(f.Doc, "deprecated"),
		IsTest:       ct == content.TypeTestPlaybook,
	}
	if err := applyRange(node, docVersionRange(f.Doc)); err != nil {
		return nil, err
	}

	source := node.Key()
	acc := newEdgeAccumulator()

	for _, rawTask := range docMap(f.Doc, "tasks") {
		wrapper, ok := rawTask.(map[string]any)
		if !ok {
			continue
		}
		task := docMap(wrapper, "task")
		if task == nil {
			continue
		}
		// A task the playbook tolerates failing on, or that may be skipped
		// when its target is unavailable, is not a mandatory use.
		mandatory := !docBool(wrapper, "continueonerror") && !docBool(wrapper, "skipunavailable")

		if name := docString(task, "scriptName"); name != "" {
			acc.add(&content.Relationship{
				Type:        content.RelUsesCommandOrScript,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypeCommand, ObjectID: name},
				Mandatorily: mandatory,
			})
		}
		if name := docString(task, "playbookName"); name != "" {
			acc.add(&content.Relationship{
				Type:        content.RelUsesPlaybook,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypePlaybook, ObjectID: name},
				Mandatorily: mandatory,
			})
		}
		if id := docString(task, "playbookId"); id != "" {
			acc.add(&content.Relationship{
				Type:        content.RelUsesPlaybook,
				Source:      source,
				Target:      content.NodeKey{Type: content.TypePlaybook, ObjectID: id},
				Mandatorily: mandatory,
			})
		}

		// Commands run through an integration show up as "script" in the
		// "Integration|||command" or "|||command" form.
		if script := docString(task, "script"); strings.Contains(script, "|||") {
			cmd := script[strings.LastIndex(script, "|||")+3:]
			if cmd != "" && !builtinSetCommands[cmd] {
				acc.add(&content.Relationship{
					Type:        content.RelUsesCommandOrScript,
					Source:      source,
					Target:      content.NodeKey{Type: content.TypeCommand, ObjectID: cmd},
					Mandatorily: mandatory,
				})
			}
		}

		// Field references from builtin set tasks.
		if builtinSetCommands[taskCommandName(task)] {
			for arg := range docMap(wrapper, "scriptarguments") {
				acc.add(&content.Relationship{
					Type:   content.RelUsesByCLIName,
					Source: source,
					Target: content.NodeKey{Type: content.TypeIncidentField, ObjectID: arg},
				})
			}
		}
	}

	res := &Result{Node: node, Relationships: acc.edges}
	res.Relationships = append(res.Relationships,
		testedByEdges(source, docStrings(f.Doc, "tests"))...)
	return res, nil
}

// taskCommandName extracts the bare command name of a task's script
// reference, e.g. "Builtin|||setIncident" yields "setIncident".
func taskCommandName(task map[string]any) string {
	script := docString(task, "script")
	if idx := strings.LastIndex(script, "|||"); idx >= 0 {
		return script[idx+3:]
	}
	return script
}

// edgeAccumulator merges duplicate staged edges, OR-ing mandatorily: a
// playbook calling the same script from two tasks uses it mandatorily if
// either call does.
type edgeAccumulator struct {
	byKey map[content.EdgeKey]*content.Relationship
	edges []*content.Relationship
}

func newEdgeAccumulator() *edgeAccumulator {
	return &edgeAccumulator{byKey: make(map[content.EdgeKey]*content.Relationship)}
}

func (a *edgeAccumulator) add(r *content.Relationship) {
	if existing, ok := a.byKey[r.Key()]; ok {
		existing.Mandatorily = existing.Mandatorily || r.Mandatorily
		return
	}
	a.byKey[r.Key()] = r
	a.edges = append(a.edges, r)
}

func matchPlaybook(doc map[string]any, _ string) bool {
	_, hasTasks := doc["tasks"]
	_, hasStart := doc["starttaskid"]
	return hasTasks && hasStart
}
