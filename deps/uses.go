package deps

import (
	"context"

	"github.com/zero-day-ai/packgraph/content"
)

// ResolveUses rewrites every staged reference edge into a concrete USES
// edge. A reference that matches no node in the repository gets a
// placeholder target marked not_in_repository, so unknown-usage queries can
// report it. Staged edges are removed once resolved.
func (r *Resolver) ResolveUses(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "deps.ResolveUses")
	defer span.End()

	v, err := loadView(ctx, r.store)
	if err != nil {
		return err
	}

	placeholders := content.Nodes{}
	resolved := content.Relationships{}
	var stagedKeys []content.EdgeKey
	seenPlaceholder := make(map[content.NodeKey]bool)

	for _, rt := range content.RelationshipTypes() {
		if !rt.IsUsesStaging() {
			continue
		}
		staged, err := r.store.Relationships(ctx, rt)
		if err != nil {
			return err
		}
		for _, rel := range staged {
			stagedKeys = append(stagedKeys, rel.Key())
			target := resolveTarget(v, rel)
			if _, exists := v.byKey[target]; !exists && !seenPlaceholder[target] {
				seenPlaceholder[target] = true
				placeholders.Add(&content.Node{
					Type:            target.Type,
					ObjectID:        target.ObjectID,
					Name:            target.ObjectID,
					NotInRepository: true,
				})
			}
			resolved.Add(&content.Relationship{
				Type:        content.RelUses,
				Source:      rel.Source,
				Target:      target,
				Mandatorily: rel.Mandatorily,
				IsTest:      rel.IsTest,
			})
		}
	}

	if placeholders.Len() > 0 {
		if err := r.store.CreateNodes(ctx, placeholders); err != nil {
			return err
		}
	}
	if resolved.Len() > 0 {
		if err := r.store.CreateRelationships(ctx, resolved); err != nil {
			return err
		}
	}
	if len(stagedKeys) > 0 {
		if err := r.store.DeleteRelationships(ctx, stagedKeys); err != nil {
			return err
		}
	}
	r.log.Debug("resolved staged references",
		"edges", resolved.Len(),
		"placeholders", placeholders.Len())
	return nil
}

// resolveTarget maps a staged reference to the key of an existing node, or
// to the staged key itself when nothing matches.
func resolveTarget(v *view, rel *content.Relationship) content.NodeKey {
	switch rel.Type {
	case content.RelUsesByID:
		if _, ok := v.byKey[rel.Target]; ok {
			return rel.Target
		}
		if n := pickByType(v.byID[rel.Target.ObjectID], rel.Target.Type); n != nil {
			return n.Key()
		}
	case content.RelUsesByName:
		if n := pickByType(v.byName[rel.Target.ObjectID], rel.Target.Type); n != nil {
			return n.Key()
		}
	case content.RelUsesByCLIName:
		if n := pickByType(v.byCLIName[rel.Target.ObjectID], rel.Target.Type); n != nil {
			return n.Key()
		}
		// Fields are also addressable by their id.
		if n := pickByType(v.byID[rel.Target.ObjectID], rel.Target.Type); n != nil {
			return n.Key()
		}
	case content.RelUsesCommandOrScript:
		// A script with the referenced id wins over a command of that name.
		for _, ct := range []content.ContentType{content.TypeScript, content.TypeTestScript} {
			key := content.NodeKey{Type: ct, ObjectID: rel.Target.ObjectID}
			if _, ok := v.byKey[key]; ok {
				return key
			}
		}
		return content.NodeKey{Type: content.TypeCommand, ObjectID: rel.Target.ObjectID}
	case content.RelUsesPlaybook:
		for _, n := range v.byName[rel.Target.ObjectID] {
			if n.Type == content.TypePlaybook || n.Type == content.TypeTestPlaybook {
				return n.Key()
			}
		}
		if n := pickByType(v.byID[rel.Target.ObjectID], content.TypePlaybook); n != nil {
			return n.Key()
		}
	}
	return rel.Target
}

// pickByType prefers a candidate of the wanted type, then any content item.
func pickByType(candidates []*content.Node, want content.ContentType) *content.Node {
	for _, n := range candidates {
		if n.Type == want {
			return n
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}
