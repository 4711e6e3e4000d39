package codegen

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var pipelineEmitterLog = logger.New("codegen:pipeline_emitter")

// chain is a builder expression: a constructor followed by method calls,
// one per line.
type chain struct {
	head  string
	calls []string
}

func (c *chain) add(method string, args ...string) {
	c.calls = append(c.calls, method+"("+strings.Join(args, ", ")+")")
}

func (c *chain) String() string {
	var sb strings.Builder
	sb.WriteString(c.head)
	for _, call := range c.calls {
		sb.WriteString(".\n")
		sb.WriteString(call)
	}
	return sb.String()
}

// pipelineEmitter writes the function rebuilding one document and one
// helper per job.
type pipelineEmitter struct {
	gen   *Generator
	doc   *workflow.Document
	res   *workflow.Resolution
	ident string
	base  string

	helpers   strings.Builder
	bindings  map[string]UnitBinding
	usesUnits bool
}

func (e *pipelineEmitter) emit() (string, error) {
	wf, err := e.workflowChain()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "// %s rebuilds %s.\n", e.ident, e.gen.relSource(e.doc.Path))
	fmt.Fprintf(&sb, "func %s() *%s.Workflow {\n\treturn %s\n}\n", e.ident, flowPkg, wf)
	sb.WriteString(e.helpers.String())
	return sb.String(), nil
}

// workflowChain emits the document in the order name, triggers,
// permissions, env, defaults, concurrency, passthrough keys, jobs.
func (e *pipelineEmitter) workflowChain() (string, error) {
	doc := e.doc
	tree := doc.Source.Tree

	name := `""`
	if doc.Name != "" {
		name = templateExpr(doc.Name)
	}
	c := &chain{head: flowPkg + ".NewWorkflow(" + name + ")"}

	for _, t := range doc.Triggers {
		if err := e.trigger(c, t); err != nil {
			return "", fmt.Errorf("on.%s: %w", t.Event, err)
		}
	}

	for _, key := range []string{"permissions", "env", "defaults", "concurrency"} {
		raw, present := parser.Lookup(tree, key)
		if !present {
			continue
		}
		if key == "env" && doc.Env == nil {
			// kept in Extra
			continue
		}
		value, err := valueExpr(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		if raw == nil {
			c.add("Set", goString(key), "nil")
			continue
		}
		c.add(methodName(key), value)
	}

	for _, item := range doc.Extra {
		if err := addSet(c, item); err != nil {
			return "", err
		}
	}

	for _, job := range doc.Jobs {
		helper, err := e.jobHelper(job)
		if err != nil {
			return "", fmt.Errorf("jobs.%s: %w", job.ID, err)
		}
		c.add("Job", goString(job.ID), helper+"()")
	}
	return c.String(), nil
}

func methodName(key string) string {
	return stringutil.ToPascalIdent(key)
}

func addSet(c *chain, item yaml.MapItem) error {
	key := fmt.Sprint(item.Key)
	value, err := valueExpr(item.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	c.add("Set", goString(key), value)
	return nil
}

func (e *pipelineEmitter) trigger(c *chain, t workflow.Trigger) error {
	switch t.Event {
	case "schedule":
		if crons, ok := scheduleCrons(t.Config); ok {
			args := make([]string, len(crons))
			for i, cron := range crons {
				args[i] = goString(cron)
			}
			c.add("OnSchedule", args...)
			return nil
		}
	case "workflow_call":
		if contract, ok := workflow.ParseCallContract(t.Config); ok {
			expr, err := contractExpr(contract)
			if err != nil {
				return err
			}
			c.add("OnWorkflowCall", expr)
			return nil
		}
	case "workflow_dispatch":
		if expr, ok, err := dispatchExpr(t.Config); ok || err != nil {
			if err != nil {
				return err
			}
			c.add("OnDispatch", expr)
			return nil
		}
	}
	value, err := valueExpr(t.Config)
	if err != nil {
		return err
	}
	c.add("On", goString(t.Event), value)
	return nil
}

// scheduleCrons accepts a non-empty list of {cron: "..."} entries.
func scheduleCrons(config any) ([]string, bool) {
	list, ok := config.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	crons := make([]string, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(yaml.MapSlice)
		if !ok || len(m) != 1 || m[0].Key != "cron" {
			return nil, false
		}
		cron, ok := m[0].Value.(string)
		if !ok {
			return nil, false
		}
		crons = append(crons, cron)
	}
	return crons, true
}

func contractExpr(contract *workflow.CallContract) (string, error) {
	c := &chain{head: flowPkg + ".NewWorkflowCall()"}
	if contract.Inputs != nil && len(contract.Inputs) == 0 {
		c.add("Set", `"inputs"`, flowPkg+".M{}")
	}
	for _, in := range contract.Inputs {
		lit, err := inputLit(in)
		if err != nil {
			return "", fmt.Errorf("inputs.%s: %w", in.Name, err)
		}
		c.add("Input", goString(in.Name), lit)
	}
	if contract.Secrets != nil && len(contract.Secrets) == 0 {
		c.add("Set", `"secrets"`, flowPkg+".M{}")
	}
	for _, s := range contract.Secrets {
		lit, err := secretLit(s)
		if err != nil {
			return "", fmt.Errorf("secrets.%s: %w", s.Name, err)
		}
		c.add("Secret", goString(s.Name), lit)
	}
	if contract.Outputs != nil && len(contract.Outputs) == 0 {
		c.add("Set", `"outputs"`, flowPkg+".M{}")
	}
	for _, o := range contract.Outputs {
		lit, err := outputLit(o)
		if err != nil {
			return "", fmt.Errorf("outputs.%s: %w", o.Name, err)
		}
		c.add("Output", goString(o.Name), lit)
	}
	for _, item := range contract.Extra {
		if err := addSet(c, item); err != nil {
			return "", err
		}
	}
	return c.String(), nil
}

// dispatchExpr types workflow_dispatch inputs. ok is false for configs
// that are neither null nor a mapping.
func dispatchExpr(config any) (string, bool, error) {
	c := &chain{head: flowPkg + ".NewDispatch()"}
	if config == nil {
		return c.String(), true, nil
	}
	m, ok := config.(yaml.MapSlice)
	if !ok {
		return "", false, nil
	}
	for _, item := range m {
		if item.Key == "inputs" {
			if specs, ok := workflow.ParseInputSpecs(item.Value); ok && len(specs) > 0 {
				for _, in := range specs {
					lit, err := inputLit(in)
					if err != nil {
						return "", true, fmt.Errorf("inputs.%s: %w", in.Name, err)
					}
					c.add("Input", goString(in.Name), lit)
				}
				continue
			}
		}
		if err := addSet(c, item); err != nil {
			return "", true, err
		}
	}
	return c.String(), true, nil
}

func inputLit(in workflow.InputSpec) (string, error) {
	fields := [][2]string{{"Description", optString(in.Description)}, {"Type", plainString(in.Type)}}
	for _, f := range []struct {
		name  string
		value any
	}{{"Required", in.Required}, {"Default", in.Default}} {
		if f.value == nil {
			continue
		}
		v, err := valueExpr(f.value)
		if err != nil {
			return "", err
		}
		fields = append(fields, [2]string{f.name, v})
	}
	if in.Options != nil {
		v, err := valueExpr(in.Options)
		if err != nil {
			return "", err
		}
		fields = append(fields, [2]string{"Options", v})
	}
	extra, err := optMap(in.Extra)
	if err != nil {
		return "", err
	}
	fields = append(fields, [2]string{"Extra", extra})
	return structLit(flowPkg+".Input", fields), nil
}

func secretLit(s workflow.SecretSpec) (string, error) {
	fields := [][2]string{{"Description", optString(s.Description)}}
	if s.Required != nil {
		v, err := valueExpr(s.Required)
		if err != nil {
			return "", err
		}
		fields = append(fields, [2]string{"Required", v})
	}
	extra, err := optMap(s.Extra)
	if err != nil {
		return "", err
	}
	fields = append(fields, [2]string{"Extra", extra})
	return structLit(flowPkg+".Secret", fields), nil
}

func outputLit(o workflow.OutputSpec) (string, error) {
	fields := [][2]string{{"Description", optString(o.Description)}}
	if o.Value != nil {
		v, err := valueExpr(o.Value)
		if err != nil {
			return "", err
		}
		fields = append(fields, [2]string{"Value", v})
	}
	extra, err := optMap(o.Extra)
	if err != nil {
		return "", err
	}
	fields = append(fields, [2]string{"Extra", extra})
	return structLit(flowPkg+".Output", fields), nil
}

func optString(s string) string {
	if s == "" {
		return ""
	}
	return templateExpr(s)
}

func plainString(s string) string {
	if s == "" {
		return ""
	}
	return goString(s)
}

func optMap(m yaml.MapSlice) (string, error) {
	if m == nil {
		return "", nil
	}
	return valueExpr(m)
}

// jobHelper writes the helper function of a job and returns its name.
func (e *pipelineEmitter) jobHelper(job *workflow.Job) (string, error) {
	jobs, _ := parser.Lookup(e.doc.Source.Tree, "jobs")
	jobsMap, _ := jobs.(yaml.MapSlice)
	rawJob, _ := parser.Lookup(jobsMap, job.ID)
	raw, _ := rawJob.(yaml.MapSlice)

	expr, err := e.jobChain(job, raw)
	if err != nil {
		return "", err
	}

	prefix := strings.TrimSuffix(stringutil.ToCamelIdent(e.base), "_")
	name := e.gen.claim(prefix + stringutil.ToPascalIdent(job.ID) + "Job")
	fmt.Fprintf(&e.helpers, "\nfunc %s() *%s.Job {\n\treturn %s\n}\n", name, flowPkg, expr)
	return name, nil
}

func (e *pipelineEmitter) jobChain(job *workflow.Job, raw yaml.MapSlice) (string, error) {
	c := &chain{head: flowPkg + ".NewJob()"}

	var call *callArgs
	if u, ok := e.res.Call(job); ok && e.gen.typedUnits() && u.Emitted() && u.Kind == workflow.UnitCall {
		call = newCallArgs(u, job)
		e.bind(u)
		c.head = call.head
	} else if job.Uses != "" {
		c.head = flowPkg + ".CallJob(" + goString(job.Uses) + ")"
	}

	for _, item := range raw {
		key := item.Key.(string)
		handled, err := e.jobField(c, job, call, key, item.Value)
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		if !handled {
			if err := addSet(c, item); err != nil {
				return "", err
			}
		}
	}
	if call != nil && call.err != nil {
		return "", call.err
	}
	return c.String(), nil
}

// jobField emits one job key through its typed method. It returns false
// when the model kept the key as passthrough.
func (e *pipelineEmitter) jobField(c *chain, job *workflow.Job, call *callArgs, key string, raw any) (bool, error) {
	switch key {
	case "name":
		if job.Name == "" {
			return false, nil
		}
		c.add("Name", templateExpr(job.Name))
	case "if":
		if job.If == "" {
			return false, nil
		}
		c.add("If", templateExpr(job.If))
	case "needs":
		if job.Needs == nil {
			return false, nil
		}
		args := make([]string, len(job.Needs))
		for i, id := range job.Needs {
			args[i] = goString(id)
		}
		c.add("Needs", args...)
	case "runs-on", "permissions", "environment", "concurrency", "defaults",
		"container", "services", "timeout-minutes", "continue-on-error":
		v, err := valueExpr(raw)
		if err != nil {
			return false, err
		}
		c.add(methodName(key), v)
	case "outputs", "env":
		m := job.Outputs
		if key == "env" {
			m = job.Env
		}
		if m == nil {
			return false, nil
		}
		v, err := valueExpr(m)
		if err != nil {
			return false, err
		}
		c.add(methodName(key), v)
	case "strategy":
		if job.Strategy == nil {
			return false, nil
		}
		sm, _ := raw.(yaml.MapSlice)
		v, err := strategyExpr(sm)
		if err != nil {
			return false, err
		}
		c.add("Strategy", v)
	case "steps":
		if job.Steps == nil {
			return false, nil
		}
		rawSteps, _ := raw.([]any)
		for i, step := range job.Steps {
			stepRaw, _ := rawSteps[i].(yaml.MapSlice)
			v, err := e.stepExpr(step, stepRaw, e.res.Steps, "units.")
			if err != nil {
				return false, fmt.Errorf("[%d]: %w", i, err)
			}
			c.add("Step", v)
		}
	case "uses":
		return job.Uses != "", nil
	case "with":
		if job.With == nil {
			return false, nil
		}
		for _, item := range job.With {
			name := item.Key.(string)
			if call != nil && call.takesInput(name, item.Value) {
				continue
			}
			v, err := valueExpr(item.Value)
			if err != nil {
				return false, fmt.Errorf("%s: %w", name, err)
			}
			c.add("With", goString(name), v)
		}
	case "secrets":
		if job.SecretsInherit {
			if call == nil {
				c.add("SecretsInherit")
			}
			return true, nil
		}
		if job.Secrets == nil {
			return false, nil
		}
		for _, item := range job.Secrets {
			name := item.Key.(string)
			if call != nil && call.takesSecret(name, item.Value) {
				continue
			}
			v, err := valueExpr(item.Value)
			if err != nil {
				return false, fmt.Errorf("%s: %w", name, err)
			}
			c.add("Secret", goString(name), v)
		}
	default:
		return false, nil
	}
	return true, nil
}

func strategyExpr(raw yaml.MapSlice) (string, error) {
	c := &chain{head: flowPkg + ".NewStrategy()"}
	for _, item := range raw {
		key := item.Key.(string)
		switch key {
		case "matrix", "fail-fast", "max-parallel":
			v, err := valueExpr(item.Value)
			if err != nil {
				return "", fmt.Errorf("%s: %w", key, err)
			}
			c.add(methodName(key), v)
		default:
			if err := addSet(c, item); err != nil {
				return "", err
			}
		}
	}
	return c.String(), nil
}

// stepExpr emits one step. units maps steps to the local units they
// resolved to; qualifier prefixes generated unit helpers.
func (e *pipelineEmitter) stepExpr(step *workflow.WorkflowStep, raw yaml.MapSlice, units map[*workflow.WorkflowStep]*workflow.LocalUnit, qualifier string) (string, error) {
	return emitStep(step, raw, e.typedUnit(units[step]), qualifier, e.bind)
}

// typedUnit returns u when steps referencing it use the generated helper.
func (e *pipelineEmitter) typedUnit(u *workflow.LocalUnit) *workflow.LocalUnit {
	if u == nil || !e.gen.typedUnits() || !u.Emitted() || u.Kind != workflow.UnitAction {
		return nil
	}
	return u
}

// bind records the helper of u for the source reader and marks the units
// import as used.
func (e *pipelineEmitter) bind(u *workflow.LocalUnit) {
	name, binding := bindingFor(u)
	e.bindings[name] = binding
	e.usesUnits = true
}

// emitStep emits a step. A step referencing unit calls the generated
// helper with the declared inputs it passes; every other key goes through
// the step methods, or Set when the model kept it as passthrough.
func emitStep(step *workflow.WorkflowStep, raw yaml.MapSlice, unit *workflow.LocalUnit, qualifier string, bind func(*workflow.LocalUnit)) (string, error) {
	c := &chain{head: flowPkg + ".NewStep()"}
	var args *unitArgs
	switch {
	case unit != nil:
		args = newUnitArgs(unit, step)
		bind(unit)
		lit, err := args.literal(qualifier)
		if err != nil {
			return "", err
		}
		c.head = qualifier + unit.Ident + "(" + lit + ")"
		if step.Uses != unit.RefPath {
			c.add("Uses", goString(step.Uses))
		}
	case step.IsUsesStep():
		c.head = flowPkg + ".Uses(" + goString(step.Uses) + ")"
	case step.IsRunStep():
		c.head = flowPkg + ".Run(" + templateExpr(step.Run) + ")"
	}

	for _, item := range raw {
		key := item.Key.(string)
		handled := true
		switch key {
		case "id":
			handled = addString(c, "ID", step.ID, goString)
		case "name":
			handled = addString(c, "Name", step.Name, templateExpr)
		case "if":
			handled = addString(c, "If", step.If, templateExpr)
		case "shell":
			handled = addString(c, "Shell", step.Shell, goString)
		case "working-directory":
			handled = addString(c, "WorkingDirectory", step.WorkingDirectory, templateExpr)
		case "uses":
			handled = step.IsUsesStep()
		case "run":
			if step.IsUsesStep() && step.IsRunStep() {
				c.add("Run", templateExpr(step.Run))
			}
			handled = step.IsRunStep()
		case "with":
			if step.With == nil {
				handled = false
				break
			}
			for _, w := range step.With {
				name := w.Key.(string)
				if args != nil && args.takes(name, w.Value) {
					continue
				}
				v, err := valueExpr(w.Value)
				if err != nil {
					return "", fmt.Errorf("with.%s: %w", name, err)
				}
				c.add("With", goString(name), v)
			}
		case "env":
			if step.Env == nil {
				handled = false
				break
			}
			v, err := valueExpr(step.Env)
			if err != nil {
				return "", fmt.Errorf("env: %w", err)
			}
			c.add("Env", v)
		case "continue-on-error", "timeout-minutes":
			v, err := valueExpr(item.Value)
			if err != nil {
				return "", fmt.Errorf("%s: %w", key, err)
			}
			c.add(methodName(key), v)
		default:
			handled = false
		}
		if !handled {
			if err := addSet(c, item); err != nil {
				return "", err
			}
		}
	}
	pipelineEmitterLog.Printf("Emitted step with %d call(s)", len(c.calls))
	return c.String(), nil
}

func addString(c *chain, method, value string, render func(string) string) bool {
	if value == "" {
		return false
	}
	c.add(method, render(value))
	return true
}
