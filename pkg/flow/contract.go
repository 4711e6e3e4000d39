package flow

// Input declares an input of workflow_call, workflow_dispatch or a unit.
// Zero fields are omitted; Required and Default keep whatever literal or
// expression they are given.
type Input struct {
	Description string
	Type        string
	Required    any
	Default     any
	// Options lists the choices of a choice input.
	Options L
	// Extra holds keys without a field, e.g. deprecationMessage.
	Extra M
}

func (in Input) tree() any {
	var out M
	out.setString("description", in.Description)
	out.setString("type", in.Type)
	out.setIf("required", in.Required)
	out.setIf("default", in.Default)
	if in.Options != nil {
		out.set("options", in.Options)
	}
	out = append(out, in.Extra...)
	return mapTree(out)
}

// Secret declares a secret of workflow_call.
type Secret struct {
	Description string
	Required    any
	Extra       M
}

func (s Secret) tree() any {
	var out M
	out.setString("description", s.Description)
	out.setIf("required", s.Required)
	out = append(out, s.Extra...)
	return mapTree(out)
}

// Output declares an output of workflow_call or a unit.
type Output struct {
	Description string
	Value       any
	Extra       M
}

func (o Output) tree() any {
	var out M
	out.setString("description", o.Description)
	out.setIf("value", o.Value)
	out = append(out, o.Extra...)
	return mapTree(out)
}

// WorkflowCall is the contract of a reusable pipeline.
type WorkflowCall struct {
	inputs  M
	secrets M
	outputs M
	extra   M
}

// NewWorkflowCall starts an empty contract.
func NewWorkflowCall() *WorkflowCall {
	return &WorkflowCall{}
}

// Input declares an input.
func (c *WorkflowCall) Input(name string, in Input) *WorkflowCall {
	c.inputs.set(name, in)
	return c
}

// Secret declares a secret.
func (c *WorkflowCall) Secret(name string, s Secret) *WorkflowCall {
	c.secrets.set(name, s)
	return c
}

// Output declares an output.
func (c *WorkflowCall) Output(name string, o Output) *WorkflowCall {
	c.outputs.set(name, o)
	return c
}

// Set adds a key the builder has no method for.
func (c *WorkflowCall) Set(key string, value any) *WorkflowCall {
	c.extra.set(key, value)
	return c
}

// Inputs returns the declared input names in order.
func (c *WorkflowCall) Inputs() []string {
	return keys(c.inputs)
}

// Secrets returns the declared secret names in order.
func (c *WorkflowCall) Secrets() []string {
	return keys(c.secrets)
}

func (c *WorkflowCall) tree() any {
	if c == nil {
		return nil
	}
	var out M
	if c.inputs != nil {
		out.set("inputs", c.inputs)
	}
	if c.secrets != nil {
		out.set("secrets", c.secrets)
	}
	if c.outputs != nil {
		out.set("outputs", c.outputs)
	}
	out = append(out, c.extra...)
	return mapTree(out)
}

// Dispatch is a workflow_dispatch trigger.
type Dispatch struct {
	inputs M
	extra  M
}

// NewDispatch starts a manual trigger without inputs.
func NewDispatch() *Dispatch {
	return &Dispatch{}
}

// Input declares an input.
func (d *Dispatch) Input(name string, in Input) *Dispatch {
	d.inputs.set(name, in)
	return d
}

// Set adds a key the builder has no method for.
func (d *Dispatch) Set(key string, value any) *Dispatch {
	d.extra.set(key, value)
	return d
}

func (d *Dispatch) tree() any {
	if d == nil {
		return nil
	}
	var out M
	if d.inputs != nil {
		out.set("inputs", d.inputs)
	}
	out = append(out, d.extra...)
	return mapTree(out)
}

func keys(m M) []string {
	out := make([]string, len(m))
	for i, kv := range m {
		out[i] = kv.Key
	}
	return out
}
