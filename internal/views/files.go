package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// Generated view layout under the workspace root:
//
//	projects/<project>/BLUEPRINT.md
//	projects/<project>/META.md
//	projects/<project>/sessions/<session>/<stage>/<stage>.md

func projectDir(root, project string) string {
	return filepath.Join(root, "projects", project)
}

func stageFile(root, project, session string, stage types.Stage) string {
	return filepath.Join(projectDir(root, project), "sessions", session, string(stage), string(stage)+".md")
}

// WriteProjectDocs regenerates BLUEPRINT.md and META.md under the workspace
// root. Meta regeneration always rewrites META.md; BLUEPRINT.md content is
// derived only from claim and blueprint rows, so routine meta refreshes
// cannot alter scope content.
func (r *Renderer) WriteProjectDocs(ctx context.Context, root, project string) error {
	blueprint, err := r.RenderBlueprint(ctx, project)
	if err != nil {
		return err
	}
	meta, err := r.RenderMeta(ctx, project)
	if err != nil {
		return err
	}

	dir := projectDir(root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "BLUEPRINT.md"), []byte(blueprint), 0o644); err != nil {
		return fmt.Errorf("failed to write blueprint doc: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "META.md"), []byte(meta), 0o644); err != nil {
		return fmt.Errorf("failed to write meta doc: %w", err)
	}
	return nil
}

// ExportSession writes every artifact of a session to its stage file under
// the workspace root. Content is written byte-for-byte; the files are views,
// not sources.
func (r *Renderer) ExportSession(ctx context.Context, root, project, session string) error {
	artifacts, err := r.store.ListSessionArtifacts(ctx, project, session)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		path := stageFile(root, project, session, a.Stage)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create stage dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
			return fmt.Errorf("failed to export %s: %w", a.IDSEID, err)
		}
	}
	return nil
}

// ImportSession reads exported stage files back and upserts them through
// the repository in one transaction. Unchanged files are content-identical
// writes, so hashes and idse ids are stable across an export/import
// round-trip.
func (r *Renderer) ImportSession(ctx context.Context, root, project, session string) error {
	return r.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		for _, stage := range append(append([]types.Stage(nil), types.PipelineStages...), types.StageMetadata) {
			data, err := os.ReadFile(stageFile(root, project, session, stage))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %s stage file: %w", stage, err)
			}
			if _, err := tx.SaveArtifact(ctx, project, session, stage, string(data), "import"); err != nil {
				return err
			}
		}
		return nil
	})
}
