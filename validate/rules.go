package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/queries"
)

// Builtin returns the registry of shipped rules.
func Builtin() *Registry {
	reg := NewRegistry()
	reg.MustRegister(ruleDeprecatedDisplayName())
	reg.MustRegister(ruleMissingDisplayName())
	reg.MustRegister(ruleMissingFromVersion())
	reg.MustRegister(ruleMarketplaceLeakage())
	reg.MustRegister(ruleInvalidFromVersion())
	reg.MustRegister(ruleInvalidToVersion())
	reg.MustRegister(ruleUnknownUsage())
	reg.MustRegister(ruleDuplicateID())
	reg.MustRegister(ruleDuplicateDisplayName())
	reg.MustRegister(ruleCorePackDependency())
	reg.MustRegister(ruleDeprecatedUsage())
	reg.MustRegister(ruleHiddenPackDependency())
	return reg
}

const deprecatedMarker = "(Deprecated)"

// ruleDeprecatedDisplayName flags deprecated items whose display name does
// not carry the deprecation marker.
func ruleDeprecatedDisplayName() *Rule {
	return &Rule{
		ErrorCode:    "BA100",
		Severity:     SeverityWarning,
		Description:  "deprecated content must carry the deprecation marker in its display name",
		Rationale:    "users browsing the marketplace cannot otherwise tell a deprecated item apart",
		ErrorMessage: "display name of deprecated content is missing the %q suffix",
		FixMessage:   "appended %q to the display name",
		AutoFixable:  true,
		Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			n := target.Node
			if !n.Deprecated || n.DisplayName == "" {
				return nil, nil
			}
			if strings.Contains(n.DisplayName, deprecatedMarker) {
				return nil, nil
			}
			return []Finding{{
				Path:    n.SourcePath,
				Message: fmt.Sprintf("display name of deprecated content is missing the %q suffix", deprecatedMarker),
			}}, nil
		},
		Fix: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			n := target.Node
			n.DisplayName = n.DisplayName + " " + deprecatedMarker
			fixed := content.Nodes{}
			fixed.Add(n)
			if err := rc.Store.CreateNodes(ctx, fixed); err != nil {
				return nil, err
			}
			return []Finding{{
				Path:    n.SourcePath,
				Message: fmt.Sprintf("appended %q to the display name", deprecatedMarker),
			}}, nil
		},
	}
}

// ruleMissingDisplayName flags items without a display name. Fix falls back
// to the item's name.
func ruleMissingDisplayName() *Rule {
	return &Rule{
		ErrorCode:   "BA101",
		Severity:    SeverityWarning,
		Description: "content items should declare a display name",
		Rationale:   "the marketplace renders the raw object id when the display name is empty",
		AutoFixable: true,
		ApplicableTypes: []content.ContentType{
			content.TypeIntegration,
			content.TypeScript,
			content.TypePlaybook,
		},
		Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			n := target.Node
			if n.DisplayName != "" {
				return nil, nil
			}
			return []Finding{{Path: n.SourcePath, Message: "content item has no display name"}}, nil
		},
		Fix: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			n := target.Node
			if n.Name == "" {
				return nil, nil
			}
			n.DisplayName = n.Name
			fixed := content.Nodes{}
			fixed.Add(n)
			if err := rc.Store.CreateNodes(ctx, fixed); err != nil {
				return nil, err
			}
			return []Finding{{Path: n.SourcePath, Message: "set display name from the item name"}}, nil
		},
	}
}

// ruleMissingFromVersion flags vendor-supported items that do not pin a
// fromversion.
func ruleMissingFromVersion() *Rule {
	return &Rule{
		ErrorCode:   "BA102",
		Severity:    SeverityError,
		Description: "vendor-supported content must pin a fromversion",
		Rationale:   "unpinned vendor content is offered to every server version, including ones it was never tested on",
		ShouldRun:   `support_level == "xsoar"`,
		Check: func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error) {
			n := target.Node
			if !n.Type.IsContentItem() || !n.FromVersion.IsZero() {
				return nil, nil
			}
			return []Finding{{Path: n.SourcePath, Message: "content item has no fromversion"}}, nil
		},
	}
}

// graphRule wraps a queries.Runner call into a graph-wide rule check.
func graphRule(message func(row queries.Row) string, query func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error)) CheckFunc {
	return func(ctx context.Context, rc *RunContext, _ Target) ([]Finding, error) {
		rows, err := query(ctx, rc, queries.Filter{FilePaths: rc.FilePaths})
		if err != nil {
			return nil, err
		}
		findings := make([]Finding, 0, len(rows))
		for _, row := range rows {
			findings = append(findings, Finding{
				Path:    row.Source.SourcePath,
				Message: message(row),
			})
		}
		return findings, nil
	}
}

func ruleMarketplaceLeakage() *Rule {
	return &Rule{
		ErrorCode:   "GR100",
		Severity:    SeverityError,
		Description: "content must only use content available in all of its marketplaces",
		Rationale:   "a marketplace that ships the source without the target breaks at runtime",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("uses %s which is not available in all of its marketplaces", row.Target.Key().ID())
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.MarketplaceLeakage(ctx, filter)
			},
		),
	}
}

func ruleInvalidFromVersion() *Rule {
	return &Rule{
		ErrorCode:   "GR101",
		Severity:    SeverityError,
		Description: "content must not use content introduced in a later version",
		Rationale:   "servers between the two fromversions install the source but not the target",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("fromversion %s precedes the fromversion %s of %s",
					row.Source.FromVersion, row.Target.FromVersion, row.Target.Key().ID())
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.InvalidFromVersion(ctx, filter)
			},
		),
	}
}

func ruleInvalidToVersion() *Rule {
	return &Rule{
		ErrorCode:   "GR102",
		Severity:    SeverityError,
		Description: "content must not use content retired in an earlier version",
		Rationale:   "servers past the target's toversion install the source but not the target",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("toversion %s exceeds the toversion %s of %s",
					row.Source.ToVersion, row.Target.ToVersion, row.Target.Key().ID())
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.InvalidToVersion(ctx, filter)
			},
		),
	}
}

func ruleUnknownUsage() *Rule {
	return &Rule{
		ErrorCode:   "GR103",
		Severity:    SeverityError,
		Description: "content must not mandatorily use content missing from the repository",
		Rationale:   "the dependency can never be satisfied at install time",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("mandatorily uses %s which does not exist in the repository", row.Target.Key().ID())
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.UnknownUsage(ctx, filter)
			},
		),
	}
}

func ruleDuplicateID() *Rule {
	return &Rule{
		ErrorCode:   "GR104",
		Severity:    SeverityError,
		Description: "content ids must be unique within overlapping version and marketplace windows",
		Rationale:   "the server cannot disambiguate two items sharing an id",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("id %s collides with %s", row.Source.ObjectID, row.Target.SourcePath)
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.DuplicateID(ctx, filter)
			},
		),
	}
}

func ruleDuplicateDisplayName() *Rule {
	return &Rule{
		ErrorCode:   "GR105",
		Severity:    SeverityError,
		Description: "pack display names must be unique",
		Rationale:   "two packs with one display name are indistinguishable in the marketplace",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("display name %q collides with pack %s", row.Source.DisplayName, row.Target.ObjectID)
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.DuplicateDisplayName(ctx, filter)
			},
		),
	}
}

func ruleCorePackDependency() *Rule {
	return &Rule{
		ErrorCode:   "GR106",
		Severity:    SeverityError,
		Description: "core packs must not depend on non-core packs",
		Rationale:   "core packs ship with the server and cannot assume optional content",
		UsesGraph:   true,
		Check: func(ctx context.Context, rc *RunContext, _ Target) ([]Finding, error) {
			var findings []Finding
			filter := queries.Filter{FilePaths: rc.FilePaths}
			for marketplace, corePacks := range rc.CorePacks {
				rows, err := rc.Queries.CorePackDependency(ctx, marketplace, corePacks, filter)
				if err != nil {
					return nil, err
				}
				for _, row := range rows {
					findings = append(findings, Finding{
						Path: row.Source.SourcePath,
						Message: fmt.Sprintf("core pack %s depends on non-core pack %s in marketplace %s",
							row.Source.ObjectID, row.Target.ObjectID, marketplace),
					})
				}
			}
			return findings, nil
		},
	}
}

func ruleDeprecatedUsage() *Rule {
	return &Rule{
		ErrorCode:   "GR107",
		Severity:    SeverityWarning,
		Description: "content should not use deprecated content",
		Rationale:   "deprecated content is removed in a future release",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("uses deprecated content %s", row.Target.Key().ID())
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.DeprecatedUsage(ctx, filter)
			},
		),
	}
}

func ruleHiddenPackDependency() *Rule {
	return &Rule{
		ErrorCode:   "GR108",
		Severity:    SeverityError,
		Description: "packs must not mandatorily depend on hidden packs",
		Rationale:   "hidden packs cannot be installed from the marketplace",
		UsesGraph:   true,
		Check: graphRule(
			func(row queries.Row) string {
				return fmt.Sprintf("mandatorily depends on hidden pack %s", row.Target.ObjectID)
			},
			func(ctx context.Context, rc *RunContext, filter queries.Filter) ([]queries.Row, error) {
				return rc.Queries.HiddenPackDependency(ctx, filter)
			},
		),
	}
}
