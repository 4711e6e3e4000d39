package workflow

import (
	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var stepTypesLog = logger.New("workflow:step_types")

// WorkflowStep is one step of a job or of a composite unit. Keys without a
// typed field, and typed keys holding an unexpected shape, are kept in Extra
// in source order so nothing is lost on the way to code generation.
type WorkflowStep struct {
	ID               string
	Name             string
	If               string
	Run              string
	Uses             string
	Shell            string
	WorkingDirectory string
	With             yaml.MapSlice
	Env              yaml.MapSlice
	// ContinueOnError and TimeoutMinutes may be literals or expressions.
	ContinueOnError any
	TimeoutMinutes  any
	Extra           yaml.MapSlice

	hasRun  bool
	hasUses bool
}

// IsUsesStep returns true if this step invokes a unit.
func (s *WorkflowStep) IsUsesStep() bool {
	return s.hasUses
}

// IsRunStep returns true if this step runs a shell command.
func (s *WorkflowStep) IsRunStep() bool {
	return s.hasRun
}

// parseStep converts a decoded step mapping into a WorkflowStep.
func parseStep(m yaml.MapSlice) *WorkflowStep {
	step := &WorkflowStep{}
	for _, item := range m {
		key := item.Key.(string)
		switch key {
		case "id":
			if !setString(&step.ID, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "name":
			if !setString(&step.Name, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "if":
			if !setString(&step.If, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "run":
			if setString(&step.Run, item.Value) {
				step.hasRun = true
			} else {
				step.Extra = append(step.Extra, item)
			}
		case "uses":
			if setString(&step.Uses, item.Value) {
				step.hasUses = true
			} else {
				step.Extra = append(step.Extra, item)
			}
		case "shell":
			if !setString(&step.Shell, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "working-directory":
			if !setString(&step.WorkingDirectory, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "with":
			if !setMap(&step.With, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "env":
			if !setMap(&step.Env, item.Value) {
				step.Extra = append(step.Extra, item)
			}
		case "continue-on-error":
			step.ContinueOnError = item.Value
		case "timeout-minutes":
			step.TimeoutMinutes = item.Value
		default:
			step.Extra = append(step.Extra, item)
		}
	}
	return step
}

// parseSteps converts a steps list. ok is false when any element is not a
// mapping; callers then keep the list verbatim.
func parseSteps(v any) ([]*WorkflowStep, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	steps := make([]*WorkflowStep, 0, len(list))
	for i, item := range list {
		m, ok := item.(yaml.MapSlice)
		if !ok {
			stepTypesLog.Printf("Step %d is %T, keeping steps verbatim", i, item)
			return nil, false
		}
		steps = append(steps, parseStep(m))
	}
	return steps, true
}

// setString stores v in dst when it is a non-empty string.
func setString(dst *string, v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	*dst = s
	return true
}

// setMap stores v in dst when it is a non-empty mapping.
func setMap(dst *yaml.MapSlice, v any) bool {
	m, ok := v.(yaml.MapSlice)
	if !ok || len(m) == 0 {
		return false
	}
	*dst = m
	return true
}
