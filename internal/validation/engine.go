package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// CompletionBlockedError is returned by GateCompletion when a session cannot
// transition to complete. It carries the full report for display.
type CompletionBlockedError struct {
	Report *types.ValidationReport
}

func (e *CompletionBlockedError) Error() string {
	failing := 0
	for _, r := range e.Report.PerStage {
		if !r.OK {
			failing++
		}
	}
	return fmt.Sprintf("completion blocked: %d stage(s) failing validation", failing)
}

// Engine evaluates the rule set over a session's artifacts.
type Engine struct {
	store storage.Storage
	rules Rules
}

// NewEngine builds an Engine over the given store and rules.
func NewEngine(store storage.Storage, rules Rules) *Engine {
	return &Engine{store: store, rules: rules}
}

// Rules returns the rule set the engine evaluates.
func (e *Engine) Rules() Rules {
	return e.rules
}

// ValidateSession evaluates every rule over the session and returns the
// report. Rule breaches are reported, never returned as errors; the error
// return covers storage failures only. The per-stage outcome is persisted
// into the session state blob (validated_at + errors).
func (e *Engine) ValidateSession(ctx context.Context, project, sessionID string) (*types.ValidationReport, error) {
	sess, err := e.store.GetSession(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	artifacts, err := e.store.ListSessionArtifacts(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := e.store.GetSessionState(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}

	byStage := make(map[types.Stage]*types.Artifact, len(artifacts))
	for _, a := range artifacts {
		byStage[a.Stage] = a
	}

	report := &types.ValidationReport{
		SessionID: sessionID,
		OK:        true,
		PerStage:  make(map[types.Stage]*types.StageResult),
	}

	for _, stage := range e.rules.RequiredStages {
		result := &types.StageResult{OK: true}
		report.PerStage[stage] = result

		artifact, present := byStage[stage]
		if !present {
			// The blueprint session is constitutional, not a pipeline
			// run; it is not required to carry pipeline artifacts.
			if sess.Type != types.SessionBlueprint {
				result.OK = false
				result.Errors = append(result.Errors, fmt.Sprintf("missing artifact for stage %s", stage))
			}
			continue
		}

		e.checkSections(stage, artifact.Content, result)
		e.checkPlaceholders(artifact.Content, result)
		if stage == types.StageImplementation {
			e.checkImplementation(artifact.Content, result)
		}
	}

	e.checkStageOrdering(state, report)

	for stage, result := range report.PerStage {
		if !result.OK {
			report.OK = false
		}
		slot := state[stage]
		if slot == nil {
			slot = &types.StageState{}
			state[stage] = slot
		}
		now := time.Now().UTC()
		slot.ValidatedAt = &now
		slot.Errors = result.Errors
	}
	if err := e.store.SaveSessionState(ctx, project, sessionID, state); err != nil {
		return nil, err
	}

	return report, nil
}

func (e *Engine) checkSections(stage types.Stage, content string, result *types.StageResult) {
	for _, section := range e.rules.RequiredSections[stage] {
		if !hasSection(content, section) {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf("missing required section %q", section))
		}
	}
}

func (e *Engine) checkPlaceholders(content string, result *types.StageResult) {
	for _, marker := range e.rules.PlaceholderMarkers {
		if strings.Contains(content, marker) {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf("unresolved placeholder marker %q", marker))
		}
	}
}

// checkImplementation enforces implementation artifact quality: the
// Component Impact Report must name at least one component with a parent
// primitive.
func (e *Engine) checkImplementation(content string, result *types.StageResult) {
	components := ParseComponentReport(content)
	if len(components) == 0 {
		result.OK = false
		result.Errors = append(result.Errors, "Component Impact Report has no component entries")
		return
	}
	for _, c := range components {
		if len(c.ParentPrimitives) > 0 {
			return
		}
	}
	result.OK = false
	result.Errors = append(result.Errors, "no component entry names a parent primitive")
}

// checkStageOrdering flags stages marked complete while an earlier pipeline
// stage has not been started.
func (e *Engine) checkStageOrdering(state types.SessionState, report *types.ValidationReport) {
	for i, stage := range types.PipelineStages {
		slot := state[stage]
		if slot == nil || slot.Status != "complete" {
			continue
		}
		for _, earlier := range types.PipelineStages[:i] {
			if started(state[earlier]) {
				continue
			}
			result := report.PerStage[stage]
			if result == nil {
				result = &types.StageResult{OK: true}
				report.PerStage[stage] = result
			}
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("stage %s is complete but earlier stage %s has not started", stage, earlier))
		}
	}
}

func started(slot *types.StageState) bool {
	return slot != nil && slot.Status != "" && slot.Status != "pending"
}

// GateCompletion transitions a session to complete, but only when validation
// passes for every required stage. A failing report is returned inside
// CompletionBlockedError and the status is left untouched.
func (e *Engine) GateCompletion(ctx context.Context, project, sessionID, actor string) (*types.ValidationReport, error) {
	report, err := e.ValidateSession(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	if !report.OK {
		return report, &CompletionBlockedError{Report: report}
	}
	if err := e.store.SetSessionStatus(ctx, project, sessionID, types.SessionComplete, actor); err != nil {
		return report, err
	}
	return report, nil
}
