package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var jobLog = logger.New("workflow:jobs")

// Job is either an execution job (RunsOn and Steps) or a reusable pipeline
// call (Uses, With and Secrets). Both shapes share the remaining fields.
type Job struct {
	ID          string
	Name        string
	RunsOn      any
	Needs       []string
	If          string
	Permissions any
	Environment any
	Concurrency any
	Outputs     yaml.MapSlice
	Env         yaml.MapSlice
	Defaults    any
	Strategy    *Strategy
	Container   any
	Services    any
	Steps       []*WorkflowStep
	// TimeoutMinutes and ContinueOnError may be literals or expressions.
	TimeoutMinutes  any
	ContinueOnError any

	// Reusable pipeline call properties
	Uses           string
	With           yaml.MapSlice
	Secrets        yaml.MapSlice
	SecretsInherit bool

	Extra yaml.MapSlice
}

// IsCall reports whether the job delegates to another pipeline.
func (j *Job) IsCall() bool {
	return j.Uses != ""
}

// Strategy is a job's strategy block.
type Strategy struct {
	// Matrix is a yaml.MapSlice, or a string when computed by an expression.
	Matrix      any
	FailFast    any
	MaxParallel any
	Extra       yaml.MapSlice
}

// MatrixKeys returns the dimension names of the matrix, including keys only
// introduced by include entries. dynamic is true when the key set cannot be
// known statically.
func (s *Strategy) MatrixKeys() (keys []string, dynamic bool) {
	if s == nil || s.Matrix == nil {
		return nil, false
	}
	m, ok := s.Matrix.(yaml.MapSlice)
	if !ok {
		return nil, true
	}

	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, item := range m {
		key := item.Key.(string)
		switch key {
		case "exclude":
			continue
		case "include":
			entries, ok := item.Value.([]any)
			if !ok {
				return keys, true
			}
			for _, entry := range entries {
				em, ok := entry.(yaml.MapSlice)
				if !ok {
					return keys, true
				}
				for _, e := range em {
					add(e.Key.(string))
				}
			}
		default:
			if s, ok := item.Value.(string); ok && strings.Contains(s, "${{") {
				dynamic = true
			}
			add(key)
		}
	}
	return keys, dynamic
}

func parseStrategy(m yaml.MapSlice) *Strategy {
	strategy := &Strategy{}
	for _, item := range m {
		switch item.Key.(string) {
		case "matrix":
			strategy.Matrix = item.Value
		case "fail-fast":
			strategy.FailFast = item.Value
		case "max-parallel":
			strategy.MaxParallel = item.Value
		default:
			strategy.Extra = append(strategy.Extra, item)
		}
	}
	return strategy
}

func parseJob(id string, m yaml.MapSlice) *Job {
	job := &Job{ID: id}
	for _, item := range m {
		key := item.Key.(string)
		switch key {
		case "name":
			if !setString(&job.Name, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "runs-on":
			job.RunsOn = item.Value
		case "needs":
			needs, ok := stringListValue(item.Value)
			if !ok || len(needs) == 0 {
				job.Extra = append(job.Extra, item)
				continue
			}
			job.Needs = needs
		case "if":
			if !setString(&job.If, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "permissions":
			job.Permissions = item.Value
		case "environment":
			job.Environment = item.Value
		case "concurrency":
			job.Concurrency = item.Value
		case "outputs":
			if !setMap(&job.Outputs, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "env":
			if !setMap(&job.Env, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "defaults":
			job.Defaults = item.Value
		case "strategy":
			sm, ok := item.Value.(yaml.MapSlice)
			if !ok {
				job.Extra = append(job.Extra, item)
				continue
			}
			job.Strategy = parseStrategy(sm)
		case "container":
			job.Container = item.Value
		case "services":
			job.Services = item.Value
		case "steps":
			steps, ok := parseSteps(item.Value)
			if !ok || len(steps) == 0 {
				job.Extra = append(job.Extra, item)
				continue
			}
			job.Steps = steps
		case "timeout-minutes":
			job.TimeoutMinutes = item.Value
		case "continue-on-error":
			job.ContinueOnError = item.Value
		case "uses":
			if !setString(&job.Uses, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "with":
			if !setMap(&job.With, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		case "secrets":
			if s, ok := item.Value.(string); ok && s == "inherit" {
				job.SecretsInherit = true
				continue
			}
			if !setMap(&job.Secrets, item.Value) {
				job.Extra = append(job.Extra, item)
			}
		default:
			job.Extra = append(job.Extra, item)
		}
	}
	return job
}

// stringListValue accepts a string or a list of strings.
func stringListValue(v any) ([]string, bool) {
	switch val := v.(type) {
	case string:
		return []string{val}, true
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// DetectNeedsCycles reports dependency cycles between the jobs of doc.
// Unknown job ids are reported by the schema layer and ignored here.
func DetectNeedsCycles(doc *Document) types.Issues {
	jobLog.Printf("Detecting cycles in %d jobs", len(doc.Jobs))
	byID := make(map[string]*Job, len(doc.Jobs))
	for _, job := range doc.Jobs {
		byID[job.ID] = job
	}

	// 0=unvisited, 1=visiting, 2=visited
	visitState := make(map[string]int, len(doc.Jobs))
	var issues types.Issues
	var visit func(id string, trail []string)
	visit = func(id string, trail []string) {
		visitState[id] = 1
		trail = append(trail, id)
		for _, dep := range byID[id].Needs {
			if _, ok := byID[dep]; !ok || dep == id {
				continue
			}
			switch visitState[dep] {
			case 1:
				start := slices.Index(trail, dep)
				cycle := append(slices.Clone(trail[start:]), dep)
				jobLog.Printf("Cycle detected: %v", cycle)
				issue := types.NewError(types.KindSchema, doc.Path, "job-needs",
					fmt.Sprintf("jobs.%s.needs: dependency cycle %s", id, strings.Join(cycle, " -> ")))
				issue.Path = "jobs." + id + ".needs"
				issues = append(issues, doc.locate(issue, "jobs", id, "needs"))
			case 0:
				visit(dep, trail)
			}
		}
		visitState[id] = 2
	}

	for _, job := range doc.Jobs {
		if visitState[job.ID] == 0 {
			visit(job.ID, nil)
		}
	}
	return issues
}
