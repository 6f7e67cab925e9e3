// Package classify maps repository file paths to content types.
//
// Resolution walks a fixed ladder: filename-prefix table, exact-filename
// table, regex table, directory position, and finally a schema sniff that
// reads the file body and asks the registered parser matchers. Paths outside
// Packs/, under TestData/, or under the repo-level Tests/ tree are excluded
// before any table is consulted.
package classify

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/packgraph/content"
)

// SniffFunc inspects a decoded file body and reports the content type it
// matches, if any. The parse package registers its matchers through this hook.
type SniffFunc func(doc map[string]any, path string) (content.ContentType, bool)

// cacheSize bounds the classification cache. Classification is pure per
// path, so entries never invalidate within a run.
const cacheSize = 4096

// prefix table: filename prefix + extension to content type.
var prefixTable = []struct {
	prefix string
	ext    string
	ct     content.ContentType
}{
	{"integration-", ".yml", content.TypeIntegration},
	{"script-", ".yml", content.TypeScript},
	{"automation-", ".yml", content.TypeScript},
	{"playbook-", ".yml", content.TypePlaybook},
	{"classifier-", ".json", content.TypeClassifier},
	{"mapper-", ".json", content.TypeMapper},
	{"layoutscontainer-", ".json", content.TypeLayout},
	{"layout-", ".json", content.TypeLayout},
	{"widget-", ".json", content.TypeWidget},
	{"dashboard-", ".json", content.TypeDashboard},
	{"report-", ".json", content.TypeReport},
	{"incidentfield-", ".json", content.TypeIncidentField},
	{"indicatorfield-", ".json", content.TypeIndicatorField},
	{"canvas-", ".json", content.TypeConnection},
}

// exact filename table.
var exactTable = map[string]content.ContentType{
	"pack_metadata.json": content.TypePackMeta,
	".pack-ignore":       content.TypePackIgnore,
	".secrets-ignore":    content.TypeSecretIgnore,
	"reputations.json":   content.TypeOldIndicatorType,
}

// regex table, tried in order.
var regexTable = []struct {
	re *regexp.Regexp
	ct content.ContentType
}{
	{regexp.MustCompile(`.*_CHANGELOG\.md$`), content.TypeChangeLog},
	{regexp.MustCompile(`.*README\.md$`), content.TypeReadme},
	{regexp.MustCompile(`^\d+_\d+_\d+\.md$`), content.TypeReleaseNote},
}

// Classifier resolves file paths to content types. Safe for concurrent use.
type Classifier struct {
	sniff SniffFunc
	cache *lru.Cache[string, content.ContentType]
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSniffer installs the schema-sniff fallback used when no table matches.
func WithSniffer(sniff SniffFunc) Option {
	return func(c *Classifier) { c.sniff = sniff }
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	cache, _ := lru.New[string, content.ContentType](cacheSize)
	c := &Classifier{cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps a repo-relative path to its content type. The second return
// is false for excluded or unrecognized paths; that is not an error.
func (c *Classifier) Classify(path string) (content.ContentType, bool) {
	path = filepath.ToSlash(path)
	if ct, ok := c.cache.Get(path); ok {
		return ct, ct != ""
	}
	ct, ok := c.resolve(path)
	if ok {
		c.cache.Add(path, ct)
	} else {
		c.cache.Add(path, "")
	}
	return ct, ok
}

func (c *Classifier) resolve(path string) (content.ContentType, bool) {
	if Excluded(path) {
		return "", false
	}
	name := filepath.Base(path)

	// 1. Filename prefix.
	lower := strings.ToLower(name)
	for _, entry := range prefixTable {
		if strings.HasPrefix(lower, entry.prefix) && strings.HasSuffix(lower, entry.ext) {
			return classifyPrefixed(entry.ct, path), true
		}
	}

	// 2. Exact filename.
	if ct, ok := exactTable[name]; ok {
		return ct, true
	}

	// 3. Regex.
	for _, entry := range regexTable {
		if entry.re.MatchString(name) {
			return entry.ct, true
		}
	}

	// 4. Directory position: second- and third-to-last segment.
	segments := strings.Split(path, "/")
	for _, idx := range []int{len(segments) - 2, len(segments) - 3} {
		if idx < 0 {
			continue
		}
		folder := segments[idx]
		if folder == "TestPlaybooks" {
			return classifyTestPlaybookFile(name), true
		}
		if ct, ok := content.TypeByFolder(folder); ok {
			return ct, true
		}
	}

	// 5. Schema sniff.
	if c.sniff != nil && parseable(name) {
		if doc, err := decodeFile(path); err == nil {
			if ct, ok := c.sniff(doc, path); ok {
				return ct, true
			}
		}
	}
	return "", false
}

// classifyPrefixed adjusts prefix-table hits that depend on position:
// prefixed files under TestPlaybooks are test variants.
func classifyPrefixed(ct content.ContentType, path string) content.ContentType {
	if !underFolder(path, "TestPlaybooks") {
		return ct
	}
	switch ct {
	case content.TypePlaybook:
		return content.TypeTestPlaybook
	case content.TypeScript:
		return content.TypeTestScript
	}
	return ct
}

// classifyTestPlaybookFile picks between TestPlaybook and TestScript for
// files under TestPlaybooks, by filename prefix.
func classifyTestPlaybookFile(name string) content.ContentType {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "script-") || strings.HasPrefix(lower, "automation-") {
		return content.TypeTestScript
	}
	return content.TypeTestPlaybook
}

// Excluded reports whether the path is outside classification scope:
// not under Packs/, under any TestData/ folder, or under the repo-level
// Tests/ tree.
func Excluded(path string) bool {
	path = filepath.ToSlash(path)
	segments := strings.Split(path, "/")
	packsIdx := -1
	for i, seg := range segments {
		if seg == "Packs" {
			packsIdx = i
			break
		}
	}
	for i, seg := range segments {
		if seg == "TestData" {
			return true
		}
		if seg == "Tests" && (packsIdx == -1 || i < packsIdx) {
			return true
		}
	}
	return packsIdx == -1
}

func underFolder(path string, folder string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == folder {
			return true
		}
	}
	return false
}

func parseable(name string) bool {
	switch filepath.Ext(name) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}

// decodeFile reads and decodes a YAML or JSON file body into a generic map.
// JSON is a subset of YAML, so one decoder covers both.
func decodeFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
