// Package validation evaluates the declarative pipeline rule set over a
// session's artifacts and gates session completion on the result.
package validation

import (
	"github.com/untoldecay/idse/internal/types"
)

// Rules is the versioned, inspectable rule set validation runs against.
type Rules struct {
	Version            string
	RequiredStages     []types.Stage
	RequiredSections   map[types.Stage][]string
	PlaceholderMarkers []string
}

// DefaultRules returns the built-in rule set. Per-stage required sections
// can be overridden from configuration via WithSectionOverrides.
func DefaultRules() Rules {
	return Rules{
		Version:        "1",
		RequiredStages: append([]types.Stage(nil), types.PipelineStages...),
		RequiredSections: map[types.Stage][]string{
			types.StageIntent:         {"Goal", "Success Criteria"},
			types.StageContext:        {"Background"},
			types.StageSpec:           {"Requirements"},
			types.StagePlan:           {"Approach"},
			types.StageTasks:          {"Task List"},
			types.StageImplementation: {"Component Impact Report"},
			types.StageFeedback:       {"Observations"},
		},
		PlaceholderMarkers: []string{
			"[REQUIRES INPUT]",
			"TBD]",
			"{{PLACEHOLDER}}",
		},
	}
}

// WithSectionOverrides returns a copy of the rules with per-stage required
// sections replaced by the given overrides. Stages absent from the override
// map keep their defaults; an explicit empty list clears a stage's
// requirements.
func (r Rules) WithSectionOverrides(overrides map[string][]string) Rules {
	if len(overrides) == 0 {
		return r
	}
	sections := make(map[types.Stage][]string, len(r.RequiredSections))
	for stage, names := range r.RequiredSections {
		sections[stage] = names
	}
	for stage, names := range overrides {
		sections[types.Stage(stage)] = names
	}
	r.RequiredSections = sections
	return r
}
