package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/githubnext/gh-flowgen/pkg/flow"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var unitEmitterLog = logger.New("codegen:unit_emitter")

// UnitBinding describes a generated unit helper to the source reader:
// the reference it uses and the struct fields carrying each input.
type UnitBinding struct {
	Ref     string
	Call    bool
	Inputs  []FieldBinding
	Secrets []FieldBinding
}

// FieldBinding maps a struct field to the declared name it passes.
type FieldBinding struct {
	Field string
	Name  string
}

// bindingFor returns the helper name of u and its binding.
func bindingFor(u *workflow.LocalUnit) (string, UnitBinding) {
	if u.Kind == workflow.UnitCall {
		b := UnitBinding{Ref: u.RefPath, Call: true}
		b.Inputs = fieldBindings(u.Contract.InputNames())
		secrets := make([]string, len(u.Contract.Secrets))
		for i, s := range u.Contract.Secrets {
			secrets[i] = s.Name
		}
		b.Secrets = fieldBindings(secrets, "Inherit")
		return "Call" + u.Ident, b
	}
	return u.Ident, UnitBinding{Ref: u.RefPath, Inputs: fieldBindings(u.InputNames())}
}

func fieldBindings(names []string, reserved ...string) []FieldBinding {
	fields := fieldNames(names, reserved...)
	out := make([]FieldBinding, len(names))
	for i, name := range names {
		out[i] = FieldBinding{Field: fields[i], Name: name}
	}
	return out
}

// unitArgs collects the declared inputs a step passes to a unit helper.
// Inputs passed as null stay chained With calls, since a nil field means
// "not passed".
type unitArgs struct {
	unit     *workflow.LocalUnit
	step     *workflow.WorkflowStep
	declared map[string]string
}

func newUnitArgs(u *workflow.LocalUnit, step *workflow.WorkflowStep) *unitArgs {
	_, b := bindingFor(u)
	declared := make(map[string]string, len(b.Inputs))
	for _, f := range b.Inputs {
		declared[f.Name] = f.Field
	}
	return &unitArgs{unit: u, step: step, declared: declared}
}

func (a *unitArgs) takes(name string, value any) bool {
	_, ok := a.declared[name]
	return ok && value != nil
}

func (a *unitArgs) literal(qualifier string) (string, error) {
	fields, err := passedFields(a.unit.InputNames(), a.declared, a.step.With)
	if err != nil {
		return "", err
	}
	return structLit(qualifier+a.unit.Ident+"Inputs", fields), nil
}

// passedFields renders the non-null values of with for the declared names,
// in declaration order.
func passedFields(names []string, declared map[string]string, with yaml.MapSlice) ([][2]string, error) {
	var fields [][2]string
	for _, name := range names {
		value, ok := parser.Lookup(with, name)
		if !ok || value == nil {
			continue
		}
		v, err := valueExpr(value)
		if err != nil {
			return nil, fmt.Errorf("with.%s: %w", name, err)
		}
		fields = append(fields, [2]string{declared[name], v})
	}
	return fields, nil
}

// callArgs is the typed call of a reusable pipeline from a job.
type callArgs struct {
	head    string
	inputs  map[string]string
	secrets map[string]string
	err     error
}

func newCallArgs(u *workflow.LocalUnit, job *workflow.Job) *callArgs {
	_, b := bindingFor(u)
	a := &callArgs{inputs: make(map[string]string), secrets: make(map[string]string)}
	for _, f := range b.Inputs {
		a.inputs[f.Name] = f.Field
	}
	secretNames := make([]string, len(b.Secrets))
	for i, f := range b.Secrets {
		a.secrets[f.Name] = f.Field
		secretNames[i] = f.Name
	}

	inputs, err := passedFields(u.Contract.InputNames(), a.inputs, job.With)
	if err != nil {
		a.err = err
	}
	var secrets [][2]string
	if job.SecretsInherit {
		secrets = [][2]string{{"Inherit", "true"}}
	} else {
		secrets, err = passedFields(secretNames, a.secrets, job.Secrets)
		if err != nil {
			a.err = err
		}
	}
	a.head = "units.Call" + u.Ident + "(" +
		structLit("units."+u.Ident+"CallInputs", inputs) + ", " +
		structLit("units."+u.Ident+"CallSecrets", secrets) + ")"
	return a
}

func (a *callArgs) takesInput(name string, value any) bool {
	_, ok := a.inputs[name]
	return ok && value != nil
}

func (a *callArgs) takesSecret(name string, value any) bool {
	_, ok := a.secrets[name]
	return ok && value != nil
}

// unitEmitter writes the units package file of one descriptor.
type unitEmitter struct {
	gen      *Generator
	unit     *workflow.LocalUnit
	bindings map[string]UnitBinding
}

func (e *unitEmitter) bind(u *workflow.LocalUnit) {
	if e.bindings == nil {
		e.bindings = make(map[string]UnitBinding)
	}
	name, b := bindingFor(u)
	e.bindings[name] = b
}

func (e *unitEmitter) emitUnit(source string) (string, error) {
	u := e.unit
	_, b := bindingFor(u)
	var sb strings.Builder

	fmt.Fprintf(&sb, "// %sRef references the unit defined in %s.\n", u.Ident, source)
	fmt.Fprintf(&sb, "const %sRef = %s\n\n", u.Ident, goString(u.RefPath))

	fmt.Fprintf(&sb, "// %sInputs holds the inputs of the unit. Nil fields are not passed.\n", u.Ident)
	writeStruct(&sb, u.Ident+"Inputs", b.Inputs, inputDocs(u.Inputs), false)

	c := &chain{head: flowPkg + ".Uses(" + u.Ident + "Ref)"}
	for _, f := range b.Inputs {
		c.add("WithOptional", goString(f.Name), "in."+f.Field)
	}
	if u.Name != "" {
		fmt.Fprintf(&sb, "// %s returns a step running %s\n", u.Ident, commentText(u.Name))
	}
	fmt.Fprintf(&sb, "func %s(in %sInputs) *%s.Step {\n\treturn %s\n}\n\n", u.Ident, u.Ident, flowPkg, c.String())

	def, err := e.definitionChain()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "// %sUnit rebuilds %s.\n", u.Ident, source)
	fmt.Fprintf(&sb, "func %sUnit() *%s.Unit {\n\treturn %s\n}\n", u.Ident, flowPkg, def)
	return sb.String(), nil
}

// definitionChain rebuilds the definition file of a unit.
func (e *unitEmitter) definitionChain() (string, error) {
	u := e.unit
	tree := u.Source.Tree
	name := `""`
	if u.Name != "" {
		name = templateExpr(u.Name)
	}
	c := &chain{head: flowPkg + ".NewUnit(" + name + ")"}
	if u.Description != "" {
		c.add("Description", templateExpr(u.Description))
	}
	if u.Author != "" {
		c.add("Author", templateExpr(u.Author))
	}

	if u.Inputs != nil && len(u.Inputs) == 0 {
		c.add("Set", `"inputs"`, flowPkg+".M{}")
	}
	for _, in := range u.Inputs {
		lit, err := inputLit(in)
		if err != nil {
			return "", fmt.Errorf("inputs.%s: %w", in.Name, err)
		}
		c.add("Input", goString(in.Name), lit)
	}
	if u.Outputs != nil && len(u.Outputs) == 0 {
		c.add("Set", `"outputs"`, flowPkg+".M{}")
	}
	for _, o := range u.Outputs {
		lit, err := outputLit(o)
		if err != nil {
			return "", fmt.Errorf("outputs.%s: %w", o.Name, err)
		}
		c.add("Output", goString(o.Name), lit)
	}

	rawRuns, _ := parser.Lookup(tree, "runs")
	if runs, ok := rawRuns.(yaml.MapSlice); ok {
		extra := "nil"
		if u.Runs != nil || len(runs) == 0 {
			v, err := valueExpr(append(yaml.MapSlice{}, u.Runs...))
			if err != nil {
				return "", fmt.Errorf("runs: %w", err)
			}
			extra = v
		}
		c.add("Runs", goString(u.Using), extra)

		rawSteps, _ := parser.Lookup(runs, "steps")
		stepList, _ := rawSteps.([]any)
		for i, step := range u.Steps {
			stepRaw, _ := stepList[i].(yaml.MapSlice)
			v, err := emitStep(step, stepRaw, e.nestedUnit(u.StepUnits[step]), "", e.bind)
			if err != nil {
				return "", fmt.Errorf("runs.steps[%d]: %w", i, err)
			}
			c.add("Step", v)
		}
	}

	for _, item := range u.Extra {
		if err := addSet(c, item); err != nil {
			return "", err
		}
	}
	return c.String(), nil
}

func (e *unitEmitter) nestedUnit(u *workflow.LocalUnit) *workflow.LocalUnit {
	if u == nil || !u.Emitted() || u.Kind != workflow.UnitAction {
		return nil
	}
	return u
}

func (e *unitEmitter) emitCall(source string) (string, error) {
	u := e.unit
	name, b := bindingFor(u)
	var sb strings.Builder

	fmt.Fprintf(&sb, "// %sCallRef references the reusable pipeline %s.\n", u.Ident, source)
	fmt.Fprintf(&sb, "const %sCallRef = %s\n\n", u.Ident, goString(u.RefPath))

	fmt.Fprintf(&sb, "// %sCallInputs holds the inputs of the pipeline. Nil fields are not passed.\n", u.Ident)
	writeStruct(&sb, u.Ident+"CallInputs", b.Inputs, inputDocs(u.Contract.Inputs), false)

	secretDocs := make(map[string]string, len(u.Contract.Secrets))
	for _, s := range u.Contract.Secrets {
		doc := commentText(s.Description)
		if required, _ := s.Required.(bool); required {
			doc = strings.TrimSpace(doc + " Required.")
		}
		secretDocs[s.Name] = doc
	}
	fmt.Fprintf(&sb, "// %sCallSecrets holds the secrets of the pipeline. Inherit passes every\n// secret of the caller instead.\n", u.Ident)
	writeStruct(&sb, u.Ident+"CallSecrets", b.Secrets, secretDocs, true)

	c := &chain{head: flowPkg + ".CallJob(" + u.Ident + "CallRef)"}
	for _, f := range b.Inputs {
		c.add("WithOptional", goString(f.Name), "in."+f.Field)
	}
	secrets := &chain{head: "job"}
	for _, f := range b.Secrets {
		secrets.add("SecretOptional", goString(f.Name), "secrets."+f.Field)
	}
	fmt.Fprintf(&sb, "// %s returns a job calling the pipeline.\n", name)
	fmt.Fprintf(&sb, "func %s(in %sCallInputs, secrets %sCallSecrets) *%s.Job {\n", name, u.Ident, u.Ident, flowPkg)
	fmt.Fprintf(&sb, "\tjob := %s\n", c.String())
	sb.WriteString("\tif secrets.Inherit {\n\t\treturn job.SecretsInherit()\n\t}\n")
	fmt.Fprintf(&sb, "\treturn %s\n}\n\n", secrets.String())

	contract, err := contractExpr(u.Contract)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "// %sContract rebuilds the workflow_call contract of %s.\n", u.Ident, source)
	fmt.Fprintf(&sb, "func %sContract() *%s.WorkflowCall {\n\treturn %s\n}\n", u.Ident, flowPkg, contract)
	return sb.String(), nil
}

func writeStruct(sb *strings.Builder, typeName string, fields []FieldBinding, docs map[string]string, inherit bool) {
	if len(fields) == 0 && !inherit {
		fmt.Fprintf(sb, "type %s struct{}\n\n", typeName)
		return
	}
	fmt.Fprintf(sb, "type %s struct {\n", typeName)
	for _, f := range fields {
		if doc := docs[f.Name]; doc != "" {
			fmt.Fprintf(sb, "// %s is %q: %s\n", f.Field, f.Name, doc)
		} else {
			fmt.Fprintf(sb, "// %s is %q.\n", f.Field, f.Name)
		}
		fmt.Fprintf(sb, "%s any\n", f.Field)
	}
	if inherit {
		sb.WriteString("Inherit bool\n")
	}
	sb.WriteString("}\n\n")
}

func inputDocs(specs []workflow.InputSpec) map[string]string {
	docs := make(map[string]string, len(specs))
	for _, in := range specs {
		doc := commentText(in.Description)
		if in.IsRequired() {
			doc += " Required."
		}
		if in.Default != nil {
			def := fmt.Sprint(in.Default)
			if s, ok := in.Default.(string); ok {
				def = strconv.Quote(s)
			}
			doc += " Defaults to " + stringutil.Truncate(def, 40) + "."
		}
		docs[in.Name] = strings.TrimSpace(doc)
	}
	return docs
}

// commentText flattens s to one comment line.
func commentText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = stringutil.Truncate(s, 100)
	if s != "" && !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

// check reads the generated file back and compares the rebuilt definition
// with the source.
func (e *unitEmitter) check(content []byte) error {
	u := e.unit
	var want, got any
	if u.Kind == workflow.UnitCall {
		contract, err := ReadContractSource(content, u.Ident+"Contract")
		if err != nil {
			return &GenerationError{Path: u.CanonicalPath, Message: "reading generated source: " + err.Error()}
		}
		trigger, _ := workflow.ParseDocument(u.Source).Trigger("workflow_call")
		want = workflow.CanonicalValue(trigger.Config)
		on, _ := parser.Lookup(flow.NewWorkflow("").OnWorkflowCall(contract).Tree(), "on")
		onMap, _ := on.(yaml.MapSlice)
		rebuilt, _ := parser.Lookup(onMap, "workflow_call")
		got = workflow.CanonicalValue(rebuilt)
	} else {
		unit, err := ReadUnitSource(content, u.Ident+"Unit", e.bindings)
		if err != nil {
			return &GenerationError{Path: u.CanonicalPath, Message: "reading generated source: " + err.Error()}
		}
		want = workflow.CanonicalValue(u.Source.Tree)
		got = workflow.CanonicalValue(unit.Tree())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		unitEmitterLog.Printf("Round trip of %s differs", u.CanonicalPath)
		return &GenerationError{Path: u.CanonicalPath, Message: "generated source does not rebuild the definition (-source +generated)", Diff: diff}
	}
	return nil
}
