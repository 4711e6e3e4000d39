//go:build !integration

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    FileKind
	}{
		{name: "unit by file name", path: "units/setup/action.yml", content: "name: x", want: FileKindUnit},
		{name: "unit by yaml extension", path: "units/setup/action.yaml", content: "", want: FileKindUnit},
		{name: "unit by runs key", path: "misc/unit.yml", content: "name: x\nruns:\n  using: composite\n", want: FileKindUnit},
		{name: "pipeline by keys", path: "pipelines/ci.yml", content: "on: push\njobs: {}\n", want: FileKindPipeline},
		{name: "pipeline in workflows dir", path: ".github/workflows/broken.yml", content: "a: [", want: FileKindPipeline},
		{name: "unrelated yaml", path: "config/settings.yml", content: "key: value\n", want: FileKindOther},
		{name: "not yaml", path: "README.md", content: "on: push", want: FileKindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFile(tt.path, []byte(tt.content)), "kind of %s", tt.path)
		})
	}
}

func TestFileKindString(t *testing.T) {
	assert.Equal(t, "pipeline", FileKindPipeline.String())
	assert.Equal(t, "unit", FileKindUnit.String())
	assert.Equal(t, "other", FileKindOther.String())
}
