// Package views projects database state into the two human-consumable
// project documents (blueprint and meta) and round-trips session artifacts
// through the filesystem. Projection is a pure function of the database;
// generated files are never a source of truth.
package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// Renderer projects spine state into documents.
type Renderer struct {
	store storage.Storage
}

// NewRenderer builds a Renderer over the given store.
func NewRenderer(store storage.Storage) *Renderer {
	return &Renderer{store: store}
}

// canonicalSections maps claim classifications to blueprint section
// headings, in render order.
var canonicalSections = []struct {
	heading string
	class   types.Classification
}{
	{"Core Invariants", types.ClassInvariant},
	{"Boundaries", types.ClassBoundary},
	{"Ownership Rules", types.ClassOwnershipRule},
	{"Non-Negotiable Constraints", types.ClassConstraint},
}

// RenderBlueprint produces the constitutional scope document. The claim
// ledger is append-only: lines are ordered by claim id and never reordered;
// demoted claims stay in the ledger and appear struck through in the
// canonical sections with their status.
func (r *Renderer) RenderBlueprint(ctx context.Context, project string) (string, error) {
	p, err := r.store.GetProject(ctx, project)
	if err != nil {
		return "", err
	}
	claims, err := r.store.ListClaims(ctx, p.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Blueprint — %s\n\n", p.Name)

	fmt.Fprintf(&b, "## Purpose\n\n")
	purpose, err := r.store.LoadArtifact(ctx, project, types.BlueprintSessionID, types.StageIntent)
	switch {
	case err == nil:
		b.WriteString(strings.TrimSpace(purpose.Content))
		b.WriteString("\n\n")
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(&b, "_No blueprint intent recorded._\n\n")
	default:
		return "", err
	}

	for _, section := range canonicalSections {
		fmt.Fprintf(&b, "## %s\n\n", section.heading)
		found := false
		for _, c := range claims {
			if c.Classification != section.class {
				continue
			}
			found = true
			switch c.Status {
			case types.ClaimActive:
				fmt.Fprintf(&b, "- %s\n", c.ClaimText)
			case types.ClaimSuperseded:
				line := fmt.Sprintf("- ~~%s~~ (superseded", c.ClaimText)
				if c.SupersededBy != nil {
					line += fmt.Sprintf(" by #%d", *c.SupersededBy)
				}
				b.WriteString(line + ")\n")
			case types.ClaimInvalidated:
				fmt.Fprintf(&b, "- ~~%s~~ (invalidated)\n", c.ClaimText)
			}
		}
		if !found {
			b.WriteString("_None._\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Claim Ledger\n\n")
	if len(claims) == 0 {
		b.WriteString("_Empty._\n")
	}
	for _, c := range claims {
		fmt.Fprintf(&b, "%d. [%s|%s|%s] %s\n", c.ID, c.Status, c.Origin, c.Classification, c.ClaimText)
	}

	return b.String(), nil
}

// metaActiveStatuses filters the active-session list of the meta document.
var metaActiveStatuses = map[types.SessionStatus]bool{
	types.SessionDraft:      true,
	types.SessionInProgress: true,
	types.SessionReview:     true,
}

// RenderMeta produces the runtime oversight document. It is fully
// regenerated on each call and never touches blueprint scope content.
func (r *Renderer) RenderMeta(ctx context.Context, project string) (string, error) {
	p, err := r.store.GetProject(ctx, project)
	if err != nil {
		return "", err
	}
	sessions, err := r.store.ListSessions(ctx, project)
	if err != nil {
		return "", err
	}
	records, err := r.store.ListPromotionRecords(ctx, p.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Meta — %s\n\n", p.Name)

	b.WriteString("## Active Sessions\n\n")
	for _, s := range sessions {
		if s.SessionID != types.BlueprintSessionID && !metaActiveStatuses[s.Status] {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s, %s)\n", s.SessionID, s.Type, s.Status)
	}
	b.WriteString("\n")

	// Session matrix and lineage cover every session regardless of status.
	b.WriteString("## Session Matrix\n\n")
	b.WriteString("| Session | Type | Status | Owner | Artifacts |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range sessions {
		artifacts, err := r.store.ListSessionArtifacts(ctx, project, s.SessionID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d/%d |\n",
			s.SessionID, s.Type, s.Status, s.Owner, len(artifacts), len(types.PipelineStages))
	}
	b.WriteString("\n")

	b.WriteString("## Lineage\n\n")
	edges, err := r.lineageEdges(ctx, project, sessions)
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		b.WriteString("_No dependencies recorded._\n")
	}
	for _, edge := range edges {
		fmt.Fprintf(&b, "- %s\n", edge)
	}
	b.WriteString("\n")

	b.WriteString("## Promotion Records\n\n")
	deduped := dedupeRecords(records)
	if len(deduped) == 0 {
		b.WriteString("_None._\n")
	}
	for _, rec := range deduped {
		line := fmt.Sprintf("- [%s] %q (%s) evidence=%.12s sessions=%s",
			rec.Decision, rec.CandidateClaimText, rec.Classification,
			rec.EvidenceHash, strings.Join(rec.SourceSessions, ","))
		if len(rec.Reasons) > 0 {
			line += " reasons=" + strings.Join(rec.Reasons, ",")
		}
		b.WriteString(line + "\n")
	}

	return b.String(), nil
}

// lineageEdges collects dependency edges across all sessions as
// "upstream <- downstream" idse id pairs, sorted for stable output.
func (r *Renderer) lineageEdges(ctx context.Context, project string, sessions []*types.Session) ([]string, error) {
	byID := make(map[int64]string)
	var all []*types.Artifact
	for _, s := range sessions {
		artifacts, err := r.store.ListSessionArtifacts(ctx, project, s.SessionID)
		if err != nil {
			return nil, err
		}
		for _, a := range artifacts {
			byID[a.ID] = a.IDSEID
			all = append(all, a)
		}
	}

	var edges []string
	for _, a := range all {
		deps, err := r.store.GetDependencyRecords(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			upstream, ok := byID[dep.DependsOnID]
			if !ok {
				continue
			}
			edges = append(edges, fmt.Sprintf("%s <- %s", upstream, a.IDSEID))
		}
	}
	sort.Strings(edges)
	return edges, nil
}

// dedupeRecords collapses promotion records by (claim_text, evidence_hash)
// for presentation, keeping the latest entry. The underlying rows stay
// immutable.
func dedupeRecords(records []*types.PromotionRecord) []*types.PromotionRecord {
	type key struct {
		text string
		hash string
	}
	latest := make(map[key]*types.PromotionRecord)
	for _, rec := range records {
		k := key{rec.CandidateClaimText, rec.EvidenceHash}
		if cur, ok := latest[k]; !ok || rec.ID > cur.ID {
			latest[k] = rec
		}
	}

	out := make([]*types.PromotionRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
