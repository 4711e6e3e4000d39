package flow

// Step is one step of a job or composite unit.
type Step struct {
	fields M
}

// NewStep starts an empty step.
func NewStep() *Step {
	return &Step{}
}

// Run starts a step that runs a shell command.
func Run(command string) *Step {
	return NewStep().Run(command)
}

// Uses starts a step that invokes the unit at ref.
func Uses(ref string) *Step {
	return NewStep().Uses(ref)
}

// ID sets the step id.
func (s *Step) ID(id string) *Step {
	s.fields.set("id", id)
	return s
}

// Name sets the display name.
func (s *Step) Name(name string) *Step {
	s.fields.set("name", name)
	return s
}

// If sets the run condition.
func (s *Step) If(cond string) *Step {
	s.fields.set("if", cond)
	return s
}

// Uses sets or replaces the unit reference.
func (s *Step) Uses(ref string) *Step {
	s.fields.set("uses", ref)
	return s
}

// Run sets or replaces the shell command.
func (s *Step) Run(command string) *Step {
	s.fields.set("run", command)
	return s
}

// Shell sets the shell for run.
func (s *Step) Shell(shell string) *Step {
	s.fields.set("shell", shell)
	return s
}

// WorkingDirectory sets the directory run executes in.
func (s *Step) WorkingDirectory(dir string) *Step {
	s.fields.set("working-directory", dir)
	return s
}

// With passes an input to the unit.
func (s *Step) With(name string, value any) *Step {
	current, _ := s.fields.Get("with")
	m, _ := current.(M)
	m.set(name, value)
	s.fields.set("with", m)
	return s
}

// WithOptional passes an input unless value is nil.
func (s *Step) WithOptional(name string, value any) *Step {
	if value == nil {
		return s
	}
	return s.With(name, value)
}

// Env sets the step environment.
func (s *Step) Env(env M) *Step {
	s.fields.set("env", env)
	return s
}

// ContinueOnError sets continue-on-error, a bool or an expression.
func (s *Step) ContinueOnError(v any) *Step {
	s.fields.set("continue-on-error", v)
	return s
}

// TimeoutMinutes sets the step timeout, a number or an expression.
func (s *Step) TimeoutMinutes(minutes any) *Step {
	s.fields.set("timeout-minutes", minutes)
	return s
}

// Set adds a key the builder has no method for.
func (s *Step) Set(key string, value any) *Step {
	s.fields.set(key, value)
	return s
}

func (s *Step) tree() any {
	if s == nil {
		return nil
	}
	return toTree(s.fields)
}
