package flow

import (
	"github.com/goccy/go-yaml"
)

// Workflow is a pipeline document.
type Workflow struct {
	name        string
	triggers    M
	permissions any
	env         M
	defaults    any
	concurrency any
	extra       M
	jobs        []jobEntry
}

type jobEntry struct {
	id  string
	job *Job
}

// NewWorkflow starts a pipeline. An empty name is omitted.
func NewWorkflow(name string) *Workflow {
	return &Workflow{name: name}
}

// On adds a trigger. config is the event's configuration, nil for events
// declared by name only.
func (w *Workflow) On(event string, config any) *Workflow {
	w.triggers.set(event, config)
	return w
}

// OnSchedule adds a schedule trigger with one entry per cron expression.
func (w *Workflow) OnSchedule(crons ...string) *Workflow {
	entries := make(L, len(crons))
	for i, c := range crons {
		entries[i] = M{{Key: "cron", Value: c}}
	}
	return w.On("schedule", entries)
}

// OnWorkflowCall makes the pipeline callable with the given contract.
func (w *Workflow) OnWorkflowCall(call *WorkflowCall) *Workflow {
	return w.On("workflow_call", call)
}

// OnDispatch adds a manual trigger.
func (w *Workflow) OnDispatch(dispatch *Dispatch) *Workflow {
	return w.On("workflow_dispatch", dispatch)
}

// Permissions sets the token permissions: a string such as "read-all" or
// an M of scopes.
func (w *Workflow) Permissions(p any) *Workflow {
	w.permissions = p
	return w
}

// Env sets the pipeline environment.
func (w *Workflow) Env(env M) *Workflow {
	w.env = env
	return w
}

// Defaults sets the defaults block.
func (w *Workflow) Defaults(d any) *Workflow {
	w.defaults = d
	return w
}

// Concurrency sets the concurrency group or block.
func (w *Workflow) Concurrency(c any) *Workflow {
	w.concurrency = c
	return w
}

// Set adds a top-level key the builder has no method for.
func (w *Workflow) Set(key string, value any) *Workflow {
	w.extra.set(key, value)
	return w
}

// Job adds a job. Jobs render in the order they are added; adding an id
// twice replaces the earlier job.
func (w *Workflow) Job(id string, job *Job) *Workflow {
	for i := range w.jobs {
		if w.jobs[i].id == id {
			w.jobs[i].job = job
			return w
		}
	}
	w.jobs = append(w.jobs, jobEntry{id: id, job: job})
	return w
}

// Tree renders the document in the order name, on, permissions, env,
// defaults, concurrency, other keys, jobs.
func (w *Workflow) Tree() yaml.MapSlice {
	var out M
	out.setString("name", w.name)
	if len(w.triggers) > 0 {
		out.set("on", w.triggers)
	}
	out.setIf("permissions", w.permissions)
	if w.env != nil {
		out.set("env", w.env)
	}
	out.setIf("defaults", w.defaults)
	out.setIf("concurrency", w.concurrency)
	for _, kv := range w.extra {
		out.set(kv.Key, kv.Value)
	}
	if len(w.jobs) > 0 {
		jobs := make(M, 0, len(w.jobs))
		for _, entry := range w.jobs {
			jobs = append(jobs, KV{Key: entry.id, Value: entry.job})
		}
		out.set("jobs", jobs)
	}
	flowLog.Printf("Rendered workflow %q: %d trigger(s), %d job(s)", w.name, len(w.triggers), len(w.jobs))
	return toTree(out).(yaml.MapSlice)
}

// YAML renders the document.
func (w *Workflow) YAML() ([]byte, error) {
	return Marshal(w.Tree())
}
