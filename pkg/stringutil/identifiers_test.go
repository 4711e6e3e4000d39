//go:build !integration

package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPascalIdent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "kebab case", input: "node-version", expected: "NodeVersion"},
		{name: "initialism alone", input: "ci", expected: "CI"},
		{name: "snake case with initialism", input: "build_and_id", expected: "BuildAndID"},
		{name: "spaces", input: "Deploy Production", expected: "DeployProduction"},
		{name: "camel case", input: "nodeVersion", expected: "NodeVersion"},
		{name: "acronym run", input: "parseJSONFile", expected: "ParseJSONFile"},
		{name: "leading digit", input: "3rd-party", expected: "X3rdParty"},
		{name: "empty", input: "", expected: "X"},
		{name: "only punctuation", input: "--", expected: "X"},
		{name: "path like", input: "./.github/actions/setup-node", expected: "GithubActionsSetupNode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToPascalIdent(tt.input), "ToPascalIdent(%q)", tt.input)
		})
	}
}

func TestToCamelIdent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "CI", expected: "ci"},
		{input: "ci-build-job", expected: "ciBuildJob"},
		{input: "lint_and_test", expected: "lintAndTest"},
		{input: "type", expected: "type_"},
		{input: "9lives", expected: "x9lives"},
		{input: "", expected: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToCamelIdent(tt.input), "ToCamelIdent(%q)", tt.input)
		})
	}
}

func TestToSnakeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "ci", expected: "ci"},
		{input: "Release Drafter", expected: "release_drafter"},
		{input: "setup-node", expected: "setup_node"},
		{input: "buildAndTest", expected: "build_and_test"},
		{input: "", expected: "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToSnakeName(tt.input), "ToSnakeName(%q)", tt.input)
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, IsValidIdentifier("SetupNode"), "plain identifier")
	assert.False(t, IsValidIdentifier("setup-node"), "dash is not allowed")
	assert.False(t, IsValidIdentifier("func"), "keywords are not identifiers")
}
