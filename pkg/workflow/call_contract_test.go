//go:build !integration

package workflow

import (
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deployCallPipeline = `name: Deploy
on:
  workflow_call:
    inputs:
      environment:
        description: Target environment
        type: string
        required: true
      dry-run:
        type: boolean
        default: false
    secrets:
      token:
        required: true
      optional-key:
    outputs:
      url:
        description: Deployment URL
        value: ${{ jobs.deploy.outputs.url }}
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - run: ./deploy.sh
`

func TestParseCallContract(t *testing.T) {
	doc := loadDocument(t, deployCallPipeline)
	trigger, ok := doc.Trigger("workflow_call")
	require.True(t, ok)

	contract, ok := ParseCallContract(trigger.Config)
	require.True(t, ok, "contract should be typed")

	assert.Equal(t, []string{"environment", "dry-run"}, contract.InputNames(), "inputs keep source order")
	assert.Equal(t, "Target environment", contract.Inputs[0].Description)
	assert.Equal(t, "string", contract.Inputs[0].Type)
	assert.True(t, contract.Inputs[0].IsRequired())
	assert.Equal(t, false, contract.Inputs[1].Default, "default keeps its type")
	assert.False(t, contract.Inputs[1].IsRequired())

	require.Len(t, contract.Secrets, 2)
	assert.Equal(t, true, contract.Secrets[0].Required)
	assert.Equal(t, "optional-key", contract.Secrets[1].Name)
	assert.Nil(t, contract.Secrets[1].Required)

	require.Len(t, contract.Outputs, 1)
	assert.Equal(t, "${{ jobs.deploy.outputs.url }}", contract.Outputs[0].Value)
}

func TestParseCallContract_Shapes(t *testing.T) {
	contract, ok := ParseCallContract(nil)
	require.True(t, ok, "a bare workflow_call is an empty contract")
	assert.Empty(t, contract.Inputs)

	_, ok = ParseCallContract("workflow_call")
	assert.False(t, ok, "scalar configs cannot be typed")

	_, ok = ParseCallContract(yaml.MapSlice{{Key: "inputs", Value: []any{"a"}}})
	assert.False(t, ok, "list inputs cannot be typed")

	contract, ok = ParseCallContract(yaml.MapSlice{{Key: "inputs", Value: yaml.MapSlice{
		{Key: "name", Value: yaml.MapSlice{{Key: "type", Value: "string"}, {Key: "deprecationMessage", Value: "old"}}},
	}}})
	require.True(t, ok)
	assert.Equal(t, yaml.MapSlice{{Key: "deprecationMessage", Value: "old"}}, contract.Inputs[0].Extra, "unknown input keys are kept")
}

func TestCallContractCheckCall(t *testing.T) {
	doc := loadDocument(t, deployCallPipeline)
	trigger, _ := doc.Trigger("workflow_call")
	contract, ok := ParseCallContract(trigger.Config)
	require.True(t, ok)

	caller := loadDocument(t, `on: push
jobs:
  ok:
    uses: ./.github/workflows/deploy.yml
    with:
      environment: prod
    secrets:
      token: ${{ secrets.TOKEN }}
  inherit:
    uses: ./.github/workflows/deploy.yml
    with:
      environment: prod
    secrets: inherit
  broken:
    uses: ./.github/workflows/deploy.yml
    with:
      enviroment: prod
    secrets:
      extra: x
`)

	okJob, _ := caller.Job("ok")
	assert.Empty(t, contract.CheckCall(okJob), "matching call")

	inheritJob, _ := caller.Job("inherit")
	assert.True(t, inheritJob.SecretsInherit)
	assert.Empty(t, contract.CheckCall(inheritJob), "inherit satisfies required secrets")

	brokenJob, _ := caller.Job("broken")
	assert.Equal(t, []string{
		"input 'enviroment' is not declared by ./.github/workflows/deploy.yml",
		"required input 'environment' of ./.github/workflows/deploy.yml is missing",
		"secret 'extra' is not declared by ./.github/workflows/deploy.yml",
		"required secret 'token' of ./.github/workflows/deploy.yml is missing",
	}, contract.CheckCall(brokenJob))
}
