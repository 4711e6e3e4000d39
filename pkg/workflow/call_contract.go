package workflow

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var callContractLog = logger.New("workflow:call_contract")

// InputSpec is one declared input of workflow_call, workflow_dispatch or a
// unit definition.
type InputSpec struct {
	Name        string
	Description string
	Type        string
	// Required and Default keep their source shape; nil means absent.
	Required any
	Default  any
	// Options lists the choices of a workflow_dispatch choice input.
	Options []any
	Extra   yaml.MapSlice
}

// IsRequired reports whether callers must pass the input.
func (s InputSpec) IsRequired() bool {
	required, _ := s.Required.(bool)
	return required && s.Default == nil
}

// SecretSpec is one declared secret of workflow_call.
type SecretSpec struct {
	Name        string
	Description string
	Required    any
	Extra       yaml.MapSlice
}

// OutputSpec is one declared output of workflow_call or a unit.
type OutputSpec struct {
	Name        string
	Description string
	Value       any
	Extra       yaml.MapSlice
}

// CallContract is the on.workflow_call declaration of a reusable pipeline.
type CallContract struct {
	Inputs  []InputSpec
	Secrets []SecretSpec
	Outputs []OutputSpec
	Extra   yaml.MapSlice
}

// ParseCallContract reads a workflow_call config. ok is false when a part of
// it has a shape the typed contract cannot hold.
func ParseCallContract(config any) (*CallContract, bool) {
	contract := &CallContract{}
	if config == nil {
		return contract, true
	}
	m, ok := config.(yaml.MapSlice)
	if !ok {
		return nil, false
	}

	for _, item := range m {
		if item.Value == nil {
			contract.Extra = append(contract.Extra, item)
			continue
		}
		switch item.Key.(string) {
		case "inputs":
			inputs, ok := ParseInputSpecs(item.Value)
			if !ok {
				return nil, false
			}
			contract.Inputs = inputs
		case "secrets":
			secrets, ok := parseSecretSpecs(item.Value)
			if !ok {
				return nil, false
			}
			contract.Secrets = secrets
		case "outputs":
			outputs, ok := ParseOutputSpecs(item.Value)
			if !ok {
				return nil, false
			}
			contract.Outputs = outputs
		default:
			contract.Extra = append(contract.Extra, item)
		}
	}
	callContractLog.Printf("Contract: %d input(s), %d secret(s), %d output(s)",
		len(contract.Inputs), len(contract.Secrets), len(contract.Outputs))
	return contract, true
}

// ParseInputSpecs reads an inputs mapping. Every value must be a mapping or
// null.
func ParseInputSpecs(v any) ([]InputSpec, bool) {
	m, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, v == nil
	}
	specs := make([]InputSpec, 0, len(m))
	for _, item := range m {
		spec := InputSpec{Name: item.Key.(string)}
		if item.Value != nil {
			fields, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return nil, false
			}
			for _, f := range fields {
				switch f.Key.(string) {
				case "description":
					if !setString(&spec.Description, f.Value) {
						spec.Extra = append(spec.Extra, f)
					}
				case "type":
					if !setString(&spec.Type, f.Value) {
						spec.Extra = append(spec.Extra, f)
					}
				case "required":
					if f.Value == nil {
						spec.Extra = append(spec.Extra, f)
						continue
					}
					spec.Required = f.Value
				case "default":
					if f.Value == nil {
						spec.Extra = append(spec.Extra, f)
						continue
					}
					spec.Default = f.Value
				case "options":
					options, ok := f.Value.([]any)
					if !ok || len(options) == 0 {
						spec.Extra = append(spec.Extra, f)
						continue
					}
					spec.Options = options
				default:
					spec.Extra = append(spec.Extra, f)
				}
			}
		}
		specs = append(specs, spec)
	}
	return specs, true
}

func parseSecretSpecs(v any) ([]SecretSpec, bool) {
	m, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, v == nil
	}
	specs := make([]SecretSpec, 0, len(m))
	for _, item := range m {
		spec := SecretSpec{Name: item.Key.(string)}
		if item.Value != nil {
			fields, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return nil, false
			}
			for _, f := range fields {
				switch f.Key.(string) {
				case "description":
					if !setString(&spec.Description, f.Value) {
						spec.Extra = append(spec.Extra, f)
					}
				case "required":
					if f.Value == nil {
						spec.Extra = append(spec.Extra, f)
						continue
					}
					spec.Required = f.Value
				default:
					spec.Extra = append(spec.Extra, f)
				}
			}
		}
		specs = append(specs, spec)
	}
	return specs, true
}

// ParseOutputSpecs reads an outputs mapping of workflow_call or a unit.
func ParseOutputSpecs(v any) ([]OutputSpec, bool) {
	m, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, v == nil
	}
	specs := make([]OutputSpec, 0, len(m))
	for _, item := range m {
		spec := OutputSpec{Name: item.Key.(string)}
		if item.Value != nil {
			fields, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return nil, false
			}
			for _, f := range fields {
				switch f.Key.(string) {
				case "description":
					if !setString(&spec.Description, f.Value) {
						spec.Extra = append(spec.Extra, f)
					}
				case "value":
					if f.Value == nil {
						spec.Extra = append(spec.Extra, f)
						continue
					}
					spec.Value = f.Value
				default:
					spec.Extra = append(spec.Extra, f)
				}
			}
		}
		specs = append(specs, spec)
	}
	return specs, true
}

// InputNames returns the declared input names in order.
func (c *CallContract) InputNames() []string {
	names := make([]string, len(c.Inputs))
	for i, in := range c.Inputs {
		names[i] = in.Name
	}
	return names
}

// CheckCall compares a calling job with the contract and returns one message
// per mismatch.
func (c *CallContract) CheckCall(job *Job) []string {
	var problems []string

	passed := make(map[string]bool, len(job.With))
	for _, item := range job.With {
		name := item.Key.(string)
		passed[name] = true
		if !c.declaresInput(name) {
			problems = append(problems, fmt.Sprintf("input '%s' is not declared by %s", name, job.Uses))
		}
	}
	for _, in := range c.Inputs {
		if in.IsRequired() && !passed[in.Name] {
			problems = append(problems, fmt.Sprintf("required input '%s' of %s is missing", in.Name, job.Uses))
		}
	}

	if job.SecretsInherit {
		return problems
	}
	given := make(map[string]bool, len(job.Secrets))
	for _, item := range job.Secrets {
		name := item.Key.(string)
		given[name] = true
		if !c.declaresSecret(name) {
			problems = append(problems, fmt.Sprintf("secret '%s' is not declared by %s", name, job.Uses))
		}
	}
	for _, s := range c.Secrets {
		if required, _ := s.Required.(bool); required && !given[s.Name] {
			problems = append(problems, fmt.Sprintf("required secret '%s' of %s is missing", s.Name, job.Uses))
		}
	}
	return problems
}

func (c *CallContract) declaresInput(name string) bool {
	for _, in := range c.Inputs {
		if in.Name == name {
			return true
		}
	}
	return false
}

func (c *CallContract) declaresSecret(name string) bool {
	for _, s := range c.Secrets {
		if s.Name == name {
			return true
		}
	}
	return false
}
