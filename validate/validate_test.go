package validate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

func openStore(t *testing.T) *graph.MemoryStore {
	t.Helper()
	s := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func seedNode(t *testing.T, s *graph.MemoryStore, n *content.Node) {
	t.Helper()
	nodes := content.Nodes{}
	nodes.Add(n)
	require.NoError(t, s.CreateNodes(context.Background(), nodes))
}

func seedEdge(t *testing.T, s *graph.MemoryStore, rel *content.Relationship) {
	t.Helper()
	rels := content.Relationships{}
	rels.Add(rel)
	require.NoError(t, s.CreateRelationships(context.Background(), rels))
}

func packNode(id string, support content.SupportLevel) *content.Node {
	return &content.Node{
		Type:         content.TypePack,
		ObjectID:     id,
		Name:         id,
		DisplayName:  id,
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/" + id + "/pack_metadata.json",
		Data:         &content.PackData{SupportLevel: support},
	}
}

func scriptNode(id, packID string) *content.Node {
	return &content.Node{
		Type:         content.TypeScript,
		ObjectID:     id,
		Name:         id,
		DisplayName:  id,
		FromVersion:  content.VersionOrDefault("6.0.0", content.DefaultFromVersion),
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		SourcePath:   "Packs/" + packID + "/Scripts/" + id + ".yml",
		PackID:       packID,
	}
}

func TestRuleValidate(t *testing.T) {
	ok := func() *Rule {
		return &Rule{
			ErrorCode: "XX100",
			Severity:  SeverityError,
			Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
				return nil, nil
			},
		}
	}

	require.NoError(t, ok().Validate())

	bad := ok()
	bad.ErrorCode = "X100"
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.ErrorCode = "XXX10"
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.Severity = "fatal"
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.Check = nil
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.AutoFixable = true
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.ShouldRun = `support_level ==`
	assert.Error(t, bad.Validate())

	bad = ok()
	bad.ShouldRun = `support_level`
	assert.Error(t, bad.Validate(), "non-boolean condition is rejected")
}

func TestRuleConditionCompiledOnce(t *testing.T) {
	rule := &Rule{
		ErrorCode: "XX101",
		Severity:  SeverityError,
		ShouldRun: `support_level == "xsoar"`,
		Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			return nil, nil
		},
	}
	require.NoError(t, rule.Validate())
	require.NotNil(t, rule.program)

	first, err := rule.condition()
	require.NoError(t, err)
	second, err := rule.condition()
	require.NoError(t, err)
	assert.True(t, first == second, "repeated evaluations reuse one compiled program")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	rule := &Rule{
		ErrorCode: "XX100",
		Severity:  SeverityError,
		Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			return nil, nil
		},
	}
	require.NoError(t, reg.Register(rule))
	assert.Error(t, reg.Register(rule))
	assert.NotNil(t, reg.Rule("XX100"))
	assert.Nil(t, reg.Rule("YY999"))
}

func TestBuiltinRegistry(t *testing.T) {
	reg := Builtin()
	codes := reg.Codes()
	assert.Contains(t, codes, "GR100")
	assert.Contains(t, codes, "BA100")
	for _, code := range codes {
		assert.NoError(t, reg.Rule(code).Validate())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validation.yml")
	raw := `
path_based:
  select: [BA100, GR103]
  warning: [GR103]
use_git:
  ignore: [BA101]
custom_categories:
  release:
    select: [GR104]
support_level:
  community:
    ignore: [BA102]
ignorable_errors: [BA100]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BA100", "GR103"}, cfg.PathBased.Select)
	assert.True(t, cfg.Ignorable("BA100"))
	assert.False(t, cfg.Ignorable("GR103"))
	assert.True(t, cfg.ignoredForSupport("community", "BA102"))
	assert.False(t, cfg.ignoredForSupport("xsoar", "BA102"))

	sec, err := cfg.Section("release")
	require.NoError(t, err)
	assert.Equal(t, []string{"GR104"}, sec.Select)

	_, err = cfg.Section("nope")
	assert.Error(t, err)

	// A missing path yields a permissive zero config.
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.PathBased.Select)
}

func TestSectionSelection(t *testing.T) {
	reg := Builtin()

	sec := Section{Select: []string{"BA100", "GR103", "ZZ999"}, Ignore: []string{"GR103"}}
	assert.Equal(t, []string{"BA100"}, sec.selected(reg))

	// Empty select runs everything registered minus ignores.
	sec = Section{Ignore: []string{"GR100"}}
	selected := sec.selected(reg)
	assert.NotContains(t, selected, "GR100")
	assert.Contains(t, selected, "GR104")

	rule := reg.Rule("GR103")
	assert.Equal(t, SeverityError, Section{}.severityFor(rule))
	assert.Equal(t, SeverityWarning, Section{Warning: []string{"GR103"}}.severityFor(rule))
}

func TestRunReportsDeprecatedDisplayName(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("A", content.SupportPartner))
	deprecated := scriptNode("OldScript", "A")
	deprecated.Deprecated = true
	seedNode(t, s, deprecated)

	engine := New(s, &Config{})
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: deprecated}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "BA100", report.Warnings[0].Code)
	assert.Equal(t, deprecated.SourcePath, report.Warnings[0].Path)
	assert.Equal(t, 0, report.ExitCode())
}

func TestRunAutoFix(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("A", content.SupportPartner))
	deprecated := scriptNode("OldScript", "A")
	deprecated.Deprecated = true
	seedNode(t, s, deprecated)

	engine := New(s, &Config{})
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: deprecated}},
		Fix:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	assert.Empty(t, report.Warnings, "repaired findings drop out of the report")
	assert.Contains(t, deprecated.DisplayName, deprecatedMarker)

	stored, err := s.Node(ctx, deprecated.Key())
	require.NoError(t, err)
	assert.Contains(t, stored.DisplayName, deprecatedMarker, "the repaired node is written back to the store")
}

func TestRunGraphRule(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("A", content.SupportPartner))
	src := scriptNode("Caller", "A")
	seedNode(t, s, src)
	ghost := &content.Node{
		Type:            content.TypeScript,
		ObjectID:        "Ghost",
		Name:            "Ghost",
		NotInRepository: true,
	}
	seedNode(t, s, ghost)
	seedEdge(t, s, &content.Relationship{
		Type:        content.RelUses,
		Source:      src.Key(),
		Target:      ghost.Key(),
		Mandatorily: true,
	})

	engine := New(s, &Config{})
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: src}},
	})
	require.NoError(t, err)

	var codes []string
	for _, res := range report.Errors {
		codes = append(codes, res.Code)
	}
	assert.Contains(t, codes, "GR103")
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunHonorsSupportLevelIgnore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("A", content.SupportCommunity))
	deprecated := scriptNode("OldScript", "A")
	deprecated.Deprecated = true
	seedNode(t, s, deprecated)

	cfg := &Config{
		SupportLevel: map[string]struct {
			Ignore []string `yaml:"ignore"`
		}{
			"community": {Ignore: []string{"BA100"}},
		},
	}
	engine := New(s, cfg)
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: deprecated}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
}

func TestRunHonorsShouldRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("Vendor", content.SupportXSOAR))
	seedNode(t, s, packNode("Community", content.SupportCommunity))

	unpinned := scriptNode("NoPin", "Vendor")
	unpinned.FromVersion = content.Version{}
	seedNode(t, s, unpinned)
	communityUnpinned := scriptNode("NoPinCommunity", "Community")
	communityUnpinned.FromVersion = content.Version{}
	seedNode(t, s, communityUnpinned)

	engine := New(s, &Config{})
	report, err := engine.Run(ctx, RunOptions{
		Mode: ModeAllFiles,
		Targets: []Target{
			{Node: unpinned},
			{Node: communityUnpinned},
		},
	})
	require.NoError(t, err)

	var paths []string
	for _, res := range report.Errors {
		if res.Code == "BA102" {
			paths = append(paths, res.Path)
		}
	}
	require.Len(t, paths, 1, "the fromversion pin is only required for vendor support")
	assert.Equal(t, unpinned.SourcePath, paths[0])
}

func TestRunIgnoredCodes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("A", content.SupportPartner))
	deprecated := scriptNode("OldScript", "A")
	deprecated.Deprecated = true
	seedNode(t, s, deprecated)

	cfg := &Config{IgnorableErrors: []string{"BA100"}}
	engine := New(s, cfg)
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: deprecated}},
		IgnoredCodes: map[string][]string{
			deprecated.SourcePath: {"BA100"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)

	// Codes outside ignorable_errors are enforced despite local ignores.
	engineStrict := New(s, &Config{})
	report, err = engineStrict.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: deprecated}},
		IgnoredCodes: map[string][]string{
			deprecated.SourcePath: {"BA100"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, report.Warnings, 1)
}

func TestRunReportsInvalidContent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	broken := scriptNode("Broken", "A")
	engine := New(s, &Config{})
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: broken, ParseError: "yaml: mapping values are not allowed"}},
	})
	require.NoError(t, err)
	require.Len(t, report.InvalidContent, 1)
	assert.Equal(t, CodeInvalidContent, report.InvalidContent[0].Code)
	assert.Empty(t, report.Errors, "unparsable targets skip every rule")
	assert.Equal(t, 0, report.ExitCode())
}

func TestReportWrite(t *testing.T) {
	report := &Report{
		Errors: []Result{
			{Code: "GR103", Severity: SeverityError, Path: "Packs/A/x.yml", Message: "uses missing content"},
		},
		Warnings: []Result{
			{Code: "BA100", Severity: SeverityWarning, Path: "Packs/A/y.yml", Message: "missing marker"},
		},
	}
	var buf bytes.Buffer
	report.Write(&buf)
	out := buf.String()
	assert.Contains(t, out, "[GR103] Packs/A/x.yml uses missing content")
	assert.Contains(t, out, "warning: [BA100] Packs/A/y.yml missing marker")
}

func TestRunWarningDowngrade(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedNode(t, s, packNode("Vendor", content.SupportXSOAR))
	unpinned := scriptNode("NoPin", "Vendor")
	unpinned.FromVersion = content.Version{}
	seedNode(t, s, unpinned)

	cfg := &Config{AllFiles: Section{Warning: []string{"BA102"}}}
	engine := New(s, cfg)
	report, err := engine.Run(ctx, RunOptions{
		Mode:    ModeAllFiles,
		Targets: []Target{{Node: unpinned}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "BA102", report.Warnings[0].Code)
	assert.Equal(t, 0, report.ExitCode())
}
