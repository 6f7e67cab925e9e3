package deps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
)

// EnvArtifactsFolder names the directory receiving the derivation trace.
const EnvArtifactsFolder = "ARTIFACTS_FOLDER"

const traceFile = "depends_on.json"

// Reason is one USES edge that contributed to a pack dependency.
type Reason struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Mandatorily bool   `json:"mandatorily"`
}

// Trace maps source pack to target pack to the contributing edges.
type Trace map[string]map[string][]Reason

// PromoteCommands turns command usage into integration usage. For every
// content item using a command, a USES edge to each integration implementing
// that command is merged, provided the item and the integration overlap in
// marketplaces and version windows. The edge is mandatory only when exactly
// one integration implements the command; generic commands implemented by
// many integrations never imply a dependency.
func (r *Resolver) PromoteCommands(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "deps.PromoteCommands")
	defer span.End()

	v, err := loadView(ctx, r.store)
	if err != nil {
		return err
	}

	implementers := make(map[string][]content.NodeKey)
	for _, rel := range v.hasCommand {
		implementers[rel.Target.ObjectID] = append(implementers[rel.Target.ObjectID], rel.Source)
	}

	promoted := content.Relationships{}
	for _, rel := range v.uses {
		if rel.Target.Type != content.TypeCommand || GenericCommands[rel.Target.ObjectID] {
			continue
		}
		source := v.node(rel.Source)
		if source == nil {
			return fmt.Errorf("%w: uses edge from %s has no source node", graph.ErrInvariantViolated, rel.Source.ID())
		}
		integs := implementers[rel.Target.ObjectID]
		for _, integKey := range integs {
			integ := v.node(integKey)
			if integ == nil || !available(source, integ) {
				continue
			}
			mandatorily := rel.Mandatorily && len(integs) == 1
			promoted.Add(&content.Relationship{
				Type:        content.RelUses,
				Source:      rel.Source,
				Target:      integKey,
				Mandatorily: mandatorily,
				IsTest:      rel.IsTest,
			})
		}
	}
	if promoted.Len() == 0 {
		return nil
	}
	r.log.Debug("promoted command usage to integrations", "edges", promoted.Len())
	return r.store.CreateRelationships(ctx, promoted)
}

// DerivePackDependencies walks every USES edge crossing a pack boundary and
// merges the corresponding DEPENDS_ON edge. Returns the derivation trace.
func (r *Resolver) DerivePackDependencies(ctx context.Context) (Trace, error) {
	ctx, span := tracer.Start(ctx, "deps.DerivePackDependencies")
	defer span.End()

	v, err := loadView(ctx, r.store)
	if err != nil {
		return nil, err
	}

	report := Trace{}
	derived := content.Relationships{}
	for _, rel := range v.uses {
		source := v.node(rel.Source)
		if source == nil {
			return nil, fmt.Errorf("%w: uses edge from %s has no source node", graph.ErrInvariantViolated, rel.Source.ID())
		}
		packA := v.packOf(rel.Source)
		packB := v.packOf(rel.Target)
		if packA == "" || packB == "" || packA == packB {
			continue
		}
		if IgnoredPacks[packA] || IgnoredPacks[packB] {
			continue
		}
		pa, pb := v.packs[packA], v.packs[packB]
		if pa == nil || pb == nil {
			continue
		}
		if !content.MarketplacesIntersect(pa.Marketplaces, pb.Marketplaces) {
			continue
		}
		if excluded(pa, packB) {
			continue
		}
		derived.Add(&content.Relationship{
			Type:        content.RelDependsOn,
			Source:      pa.Key(),
			Target:      pb.Key(),
			Mandatorily: rel.Mandatorily,
			IsTest:      source.IsTest,
		})
		if report[packA] == nil {
			report[packA] = make(map[string][]Reason)
		}
		report[packA][packB] = append(report[packA][packB], Reason{
			Source:      rel.Source.ID(),
			Target:      rel.Target.ID(),
			Mandatorily: rel.Mandatorily,
		})
	}

	if derived.Len() > 0 {
		if err := r.store.CreateRelationships(ctx, derived); err != nil {
			return nil, err
		}
	}
	r.log.Debug("derived pack dependencies", "packs", len(report))
	return report, nil
}

func excluded(pack *content.Node, dep string) bool {
	data, ok := pack.Data.(*content.PackData)
	if !ok {
		return false
	}
	for _, id := range data.ExcludedDependencies {
		if id == dep {
			return true
		}
	}
	return false
}

// writeTrace writes the derivation trace to the artifacts folder, when the
// folder is configured and exists.
func writeTrace(report Trace, log *slog.Logger) error {
	dir := os.Getenv(EnvArtifactsFolder)
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	raw, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, traceFile)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	log.Debug("wrote dependency trace", "path", path)
	return nil
}
