package parser

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
)

var detectionLog = logger.New("parser:file_detection")

// FileKind tells pipeline documents, unit definitions and unrelated YAML apart.
type FileKind int

const (
	FileKindOther FileKind = iota
	FileKindPipeline
	FileKindUnit
)

func (k FileKind) String() string {
	switch k {
	case FileKindPipeline:
		return "pipeline"
	case FileKindUnit:
		return "unit"
	default:
		return "other"
	}
}

// IsUnitDefinitionName reports whether the base name of filePath is a
// conventional unit definition file name (action.yml or action.yaml).
func IsUnitDefinitionName(filePath string) bool {
	return slices.Contains(constants.UnitDefinitionFiles, strings.ToLower(filepath.Base(filePath)))
}

// ClassifyFile decides what a YAML file contains. The file name is checked
// first; otherwise the top-level keys decide: a "runs" key without "jobs"
// marks a unit, "on" or "jobs" mark a pipeline. Files inside a "workflows"
// directory are pipelines even when their content is unparsable, so that the
// syntax error gets reported.
func ClassifyFile(filePath string, content []byte) FileKind {
	if !stringutil.IsYAMLFile(filePath) {
		return FileKindOther
	}
	if IsUnitDefinitionName(filePath) {
		return FileKindUnit
	}

	inWorkflowsDir := filepath.Base(filepath.Dir(filePath)) == "workflows"

	var top yaml.MapSlice
	if err := yaml.UnmarshalWithOptions(content, &top, yaml.UseOrderedMap(), yaml.AllowDuplicateMapKey()); err != nil {
		detectionLog.Printf("Cannot sniff %s: %v", filePath, err)
		if inWorkflowsDir {
			return FileKindPipeline
		}
		return FileKindOther
	}

	_, hasRuns := Lookup(top, "runs")
	_, hasJobs := Lookup(top, "jobs")
	_, hasOn := Lookup(top, "on")

	switch {
	case hasRuns && !hasJobs:
		return FileKindUnit
	case hasOn || hasJobs || inWorkflowsDir:
		return FileKindPipeline
	default:
		return FileKindOther
	}
}
