// Package parse turns recognized artifact files into typed graph nodes and
// their outgoing relationship edges.
//
// Each content type has a parse function registered in a dispatch table.
// Parsers return a Result (node plus staged edges) or a Diagnostic; a file
// that fails to parse never aborts the surrounding walk. The package also
// exposes Sniff, the schema-match fallback the classifier uses when no path
// table recognizes a file.
package parse

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/packgraph/content"
)

// Result is a successfully parsed artifact: one node and its outgoing
// staged relationships. Extra holds secondary nodes the artifact implies,
// such as the Command nodes an integration declares.
type Result struct {
	Node          *content.Node
	Extra         []*content.Node
	Relationships []*content.Relationship
}

// Diagnostic records a single file that failed to parse or failed its field
// contract. Collected, never fatal.
type Diagnostic struct {
	Path string
	Err  error
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("invalid content item %s: %v", d.Path, d.Err)
}

// File is the unit handed to a parse function: the artifact's location,
// decoded body, and pack context.
type File struct {
	// Type is the content type the classifier resolved for this path.
	Type content.ContentType

	// Path is the absolute path of the artifact file.
	Path string

	// RepoPath is the repo-relative path, slash-separated.
	RepoPath string

	// PackID is the owning pack's object id.
	PackID string

	// PackMarketplaces is the owning pack's marketplace set, used as the
	// default when the artifact omits the field.
	PackMarketplaces []content.Marketplace

	// Doc is the decoded YAML/JSON body.
	Doc map[string]any
}

// ParseFunc parses one decoded artifact file.
type ParseFunc func(f *File) (*Result, error)

// parsers dispatches content types to their parse functions. Types sharing a
// shape share a function.
var parsers = map[content.ContentType]ParseFunc{
	content.TypeIntegration:       parseIntegration,
	content.TypeScript:            parseScript,
	content.TypeTestScript:        parseScript,
	content.TypePlaybook:          parsePlaybook,
	content.TypeTestPlaybook:      parsePlaybook,
	content.TypeClassifier:        parseClassifier,
	content.TypeMapper:            parseClassifier,
	content.TypeLayout:            parseLayout,
	content.TypeIncidentField:     parseField,
	content.TypeIndicatorField:    parseField,
	content.TypeCaseField:         parseField,
	content.TypeGenericField:      parseField,
	content.TypeModelingRule:      parseXSIAMRule,
	content.TypeParsingRule:       parseXSIAMRule,
	content.TypePackMeta:          parsePackMetadata,
	content.TypeIncidentType:      parseGenericJSON,
	content.TypeIndicatorType:     parseGenericJSON,
	content.TypeLayoutRule:        parseGenericJSON,
	content.TypeDashboard:         parseGenericJSON,
	content.TypeReport:            parseGenericJSON,
	content.TypeWidget:            parseGenericJSON,
	content.TypeJob:               parseGenericJSON,
	content.TypeList:              parseGenericJSON,
	content.TypeCorrelationRule:   parseGenericJSON,
	content.TypeTrigger:           parseGenericJSON,
	content.TypeWizard:            parseGenericJSON,
	content.TypeXSIAMDashboard:    parseGenericJSON,
	content.TypeXSIAMReport:       parseGenericJSON,
	content.TypeXDRCTemplate:      parseGenericJSON,
	content.TypeGenericType:       parseGenericJSON,
	content.TypeGenericModule:     parseGenericJSON,
	content.TypeGenericDefinition: parseGenericJSON,
	content.TypeCaseLayout:        parseGenericJSON,
	content.TypeCaseLayoutRule:    parseGenericJSON,
	content.TypePreProcessRule:    parseGenericJSON,
	content.TypeConnection:        parseGenericJSON,
}

// Parseable reports whether a parse function is registered for ct.
func Parseable(ct content.ContentType) bool {
	_, ok := parsers[ct]
	return ok
}

// Parse reads, decodes and parses the file at path as content type ct.
// Parse never returns both results: a failure yields a Diagnostic.
func Parse(repoRoot, path string, ct content.ContentType, packID string, packMarketplaces []content.Marketplace) (*Result, *Diagnostic) {
	fn, ok := parsers[ct]
	if !ok {
		return nil, &Diagnostic{Path: path, Err: fmt.Errorf("no parser for content type %s", ct)}
	}
	doc, err := decode(path)
	if err != nil {
		return nil, &Diagnostic{Path: path, Err: err}
	}
	rel, err := filepath.Rel(repoRoot, path)
	if err != nil {
		rel = path
	}
	f := &File{
		Type:             ct,
		Path:             path,
		RepoPath:         filepath.ToSlash(rel),
		PackID:           packID,
		PackMarketplaces: packMarketplaces,
		Doc:              doc,
	}
	res, err := fn(f)
	if err != nil {
		return nil, &Diagnostic{Path: f.RepoPath, Err: err}
	}
	if res.Node != nil {
		res.Node.SourcePath = f.RepoPath
		if res.Node.Type != content.TypePack {
			res.Node.PackID = packID
		}
		if err := res.Node.Validate(); err != nil {
			return nil, &Diagnostic{Path: f.RepoPath, Err: err}
		}
	}
	return res, nil
}

// Sniff is the schema-match fallback for the classifier: it tries each
// registered matcher against the decoded body and returns the first accept.
func Sniff(doc map[string]any, path string) (content.ContentType, bool) {
	for _, m := range matchers {
		if m.match(doc, path) {
			return m.ct, true
		}
	}
	return "", false
}

// matchers are tried in order; more specific shapes come first.
var matchers = []struct {
	ct    content.ContentType
	match func(doc map[string]any, path string) bool
}{
	{content.TypeMapper, matchMapper},
	{content.TypeClassifier, matchClassifier},
	{content.TypeIntegration, matchIntegration},
	{content.TypeScript, matchScript},
	{content.TypePlaybook, matchPlaybook},
	{content.TypeLayout, matchLayout},
	{content.TypeIncidentField, matchIncidentField},
	{content.TypeIndicatorField, matchIndicatorField},
}

// decode reads and decodes a YAML or JSON artifact body. JSON is a subset
// of YAML, so one decoder serves both.
func decode(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode %s: empty document", path)
	}
	return doc, nil
}
