package workflow

import (
	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var documentLog = logger.New("workflow:document")

// Document is the typed view of one pipeline file. It is built per file,
// consumed by the resolver, the expression analysis and the generator, and
// then discarded.
//
// Building a Document never fails: values whose shape does not match a typed
// field are kept in the Extra slices of the level they appear on, so a
// schema-invalid document still round-trips through code generation.
type Document struct {
	Path        string
	Name        string
	Triggers    []Trigger
	Permissions any
	Env         yaml.MapSlice
	Defaults    any
	Concurrency any
	Jobs        []*Job
	// Extra holds top-level keys without a typed field (run-name, ...).
	Extra yaml.MapSlice

	// Source is the loaded document the model was built from.
	Source *parser.Document
}

// Trigger is one event of the "on" block. The list and scalar forms are
// normalized to the mapping form, so Config is nil for events declared by
// name only.
type Trigger struct {
	Event  string
	Config any
}

// Job returns the job with the given id.
func (d *Document) Job(id string) (*Job, bool) {
	for _, job := range d.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

// Trigger returns the trigger for event.
func (d *Document) Trigger(event string) (Trigger, bool) {
	for _, t := range d.Triggers {
		if t.Event == event {
			return t, true
		}
	}
	return Trigger{}, false
}

// ParseDocument builds the typed model of a loaded pipeline document.
func ParseDocument(src *parser.Document) *Document {
	doc := &Document{Path: src.Path, Source: src}

	for _, item := range src.Tree {
		key := item.Key.(string)
		switch key {
		case "name":
			if !setString(&doc.Name, item.Value) {
				doc.Extra = append(doc.Extra, item)
			}
		case "on":
			triggers, ok := NormalizeTriggers(item.Value)
			if !ok {
				doc.Extra = append(doc.Extra, item)
				continue
			}
			doc.Triggers = triggers
		case "permissions":
			doc.Permissions = item.Value
		case "env":
			if !setMap(&doc.Env, item.Value) {
				doc.Extra = append(doc.Extra, item)
			}
		case "defaults":
			doc.Defaults = item.Value
		case "concurrency":
			doc.Concurrency = item.Value
		case "jobs":
			jobs, ok := parseJobs(item.Value)
			if !ok {
				doc.Extra = append(doc.Extra, item)
				continue
			}
			doc.Jobs = jobs
		default:
			doc.Extra = append(doc.Extra, item)
		}
	}

	documentLog.Printf("Parsed %s: %d trigger(s), %d job(s), %d passthrough key(s)",
		doc.Path, len(doc.Triggers), len(doc.Jobs), len(doc.Extra))
	return doc
}

// NormalizeTriggers turns the three accepted shapes of "on" (event name,
// list of event names, mapping of event to config) into an ordered list.
func NormalizeTriggers(v any) ([]Trigger, bool) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, false
		}
		return []Trigger{{Event: val}}, true
	case []any:
		if len(val) == 0 {
			return nil, false
		}
		triggers := make([]Trigger, 0, len(val))
		for _, item := range val {
			event, ok := item.(string)
			if !ok || event == "" {
				return nil, false
			}
			triggers = append(triggers, Trigger{Event: event})
		}
		return triggers, true
	case yaml.MapSlice:
		if len(val) == 0 {
			return nil, false
		}
		triggers := make([]Trigger, 0, len(val))
		for _, item := range val {
			triggers = append(triggers, Trigger{Event: item.Key.(string), Config: item.Value})
		}
		return triggers, true
	}
	return nil, false
}

func parseJobs(v any) ([]*Job, bool) {
	m, ok := v.(yaml.MapSlice)
	if !ok || len(m) == 0 {
		return nil, false
	}
	jobs := make([]*Job, 0, len(m))
	for _, item := range m {
		jm, ok := item.Value.(yaml.MapSlice)
		if !ok {
			documentLog.Printf("Job %v is %T, keeping jobs verbatim", item.Key, item.Value)
			return nil, false
		}
		jobs = append(jobs, parseJob(item.Key.(string), jm))
	}
	return jobs, true
}

// locate positions issue at the given instance path when the source kept
// an AST.
func (d *Document) locate(issue types.ValidationIssue, segments ...string) types.ValidationIssue {
	if d.Source == nil {
		return issue
	}
	if line, col, ok := parser.LocateInstancePath(d.Source, segments); ok {
		return issue.At(line, col)
	}
	return issue
}
