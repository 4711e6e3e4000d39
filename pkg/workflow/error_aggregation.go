// This file provides error aggregation for batch operations.
//
// The import watcher registers every input path with fsnotify and keeps
// going when one of them cannot be watched, so that all failures are reported
// together. The collector gathers them and joins them with errors.Join.
//
// Usage:
//
//	collector := NewErrorCollector(false)
//	for _, dir := range dirs {
//	    if err := watcher.Add(dir); err != nil {
//	        if returnErr := collector.Add(err); returnErr != nil {
//	            return returnErr // fail-fast mode
//	        }
//	    }
//	}
//	return collector.Error()

package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var errorAggregationLog = logger.New("workflow:error_aggregation")

// ErrorCollector collects multiple errors
type ErrorCollector struct {
	errors   []error
	failFast bool
}

// NewErrorCollector creates a new error collector.
// If failFast is true, Add returns the first error immediately.
func NewErrorCollector(failFast bool) *ErrorCollector {
	errorAggregationLog.Printf("Creating error collector: fail_fast=%v", failFast)
	return &ErrorCollector{failFast: failFast}
}

// Add records err. In fail-fast mode it returns err instead.
func (c *ErrorCollector) Add(err error) error {
	if err == nil {
		return nil
	}
	errorAggregationLog.Printf("Adding error to collector: %v", err)
	if c.failFast {
		return err
	}
	c.errors = append(c.errors, err)
	return nil
}

// HasErrors returns true if any errors have been collected
func (c *ErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Count returns the number of errors collected
func (c *ErrorCollector) Count() int {
	return len(c.errors)
}

// Error returns the collected errors joined with errors.Join, or nil.
func (c *ErrorCollector) Error() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	}
	errorAggregationLog.Printf("Aggregating %d errors", len(c.errors))
	return errors.Join(c.errors...)
}

// FormattedError returns the collected errors under a header with the count.
func (c *ErrorCollector) FormattedError(category string) error {
	if len(c.errors) <= 1 {
		return c.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d %s errors:", len(c.errors), category)
	for _, err := range c.errors {
		sb.WriteString("\n  • ")
		sb.WriteString(err.Error())
	}
	return errors.New(sb.String())
}
