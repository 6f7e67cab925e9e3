package walk

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/zero-day-ai/packgraph/content"
)

// testConf is the repo-level Tests/conf.json: it maps test playbooks to the
// integrations they exercise, for items whose own tests: list is silent.
type testConf struct {
	Tests []testConfEntry `json:"tests"`
}

type testConfEntry struct {
	PlaybookID   string `json:"playbookID"`
	Integrations anyIDs `json:"integrations"`
}

// anyIDs accepts the conf.json convention of a single string or a list.
type anyIDs []string

func (a *anyIDs) UnmarshalJSON(raw []byte) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		*a = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// resolveTestConf stages TESTED_BY edges from Tests/conf.json entries for
// integrations present in this walk. A missing conf.json is not an error.
func (w *Walker) resolveTestConf(repoRoot string, res *Result) {
	raw, err := os.ReadFile(filepath.Join(repoRoot, "Tests", "conf.json"))
	if err != nil {
		return
	}
	var conf testConf
	if err := json.Unmarshal(raw, &conf); err != nil {
		w.log.Warn("malformed Tests/conf.json", "error", err)
		return
	}

	walked := make(map[string]bool)
	for _, node := range res.Nodes[content.TypeIntegration] {
		walked[node.ObjectID] = true
	}

	seen := make(map[content.EdgeKey]bool)
	for _, r := range res.Relationships[content.RelTestedBy] {
		seen[r.Key()] = true
	}
	for _, entry := range conf.Tests {
		if entry.PlaybookID == "" {
			continue
		}
		for _, integration := range entry.Integrations {
			if !walked[integration] {
				continue
			}
			edge := &content.Relationship{
				Type:   content.RelTestedBy,
				Source: content.NodeKey{Type: content.TypeIntegration, ObjectID: integration},
				Target: content.NodeKey{Type: content.TypeTestPlaybook, ObjectID: entry.PlaybookID},
			}
			if seen[edge.Key()] {
				continue
			}
			seen[edge.Key()] = true
			res.Relationships.Add(edge)
		}
	}
}
