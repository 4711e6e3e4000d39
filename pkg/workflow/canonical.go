package workflow

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// CanonicalTree converts a pipeline tree into a form where semantically
// equal documents compare equal with reflect.DeepEqual or cmp.Diff:
//   - ordered maps become map[string]any and empty maps become nil
//   - the scalar and list forms of "on" become the mapping form
//   - a scalar "needs" becomes a one element list
//   - every number becomes float64
func CanonicalTree(tree yaml.MapSlice) any {
	out := make(map[string]any, len(tree))
	for _, item := range tree {
		key := item.Key.(string)
		switch key {
		case "on":
			if triggers, ok := NormalizeTriggers(item.Value); ok {
				on := make(map[string]any, len(triggers))
				for _, t := range triggers {
					on[t.Event] = CanonicalValue(t.Config)
				}
				out[key] = on
				continue
			}
		case "jobs":
			if jobs, ok := item.Value.(yaml.MapSlice); ok {
				out[key] = canonicalJobs(jobs)
				continue
			}
		}
		out[key] = CanonicalValue(item.Value)
	}
	return out
}

func canonicalJobs(jobs yaml.MapSlice) any {
	if len(jobs) == 0 {
		return nil
	}
	out := make(map[string]any, len(jobs))
	for _, item := range jobs {
		job, ok := item.Value.(yaml.MapSlice)
		if !ok {
			out[item.Key.(string)] = CanonicalValue(item.Value)
			continue
		}
		canonical := make(map[string]any, len(job))
		for _, field := range job {
			key := field.Key.(string)
			if s, ok := field.Value.(string); ok && key == "needs" {
				canonical[key] = []any{s}
				continue
			}
			canonical[key] = CanonicalValue(field.Value)
		}
		out[item.Key.(string)] = canonical
	}
	return out
}

// CanonicalValue applies the value rules of CanonicalTree to any subtree.
func CanonicalValue(v any) any {
	switch val := v.(type) {
	case yaml.MapSlice:
		if len(val) == 0 {
			return nil
		}
		out := make(map[string]any, len(val))
		for _, item := range val {
			out[keyOf(item.Key)] = CanonicalValue(item.Value)
		}
		return out
	case map[string]any:
		if len(val) == 0 {
			return nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CanonicalValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CanonicalValue(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

func keyOf(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
