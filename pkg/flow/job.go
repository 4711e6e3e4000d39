package flow

// Job is an execution job or a reusable pipeline call.
type Job struct {
	fields M
	steps  []*Step
}

// NewJob starts an execution job.
func NewJob() *Job {
	return &Job{}
}

// CallJob starts a job that calls the reusable pipeline at uses.
func CallJob(uses string) *Job {
	j := &Job{}
	j.fields.set("uses", uses)
	return j
}

// Name sets the display name.
func (j *Job) Name(name string) *Job {
	j.fields.set("name", name)
	return j
}

// RunsOn sets the runner: a label, an L of labels or an M.
func (j *Job) RunsOn(runner any) *Job {
	j.fields.set("runs-on", runner)
	return j
}

// Needs sets the jobs this job waits for. A single id renders as a scalar.
func (j *Job) Needs(ids ...string) *Job {
	if len(ids) == 1 {
		j.fields.set("needs", ids[0])
		return j
	}
	j.fields.set("needs", ids)
	return j
}

// If sets the run condition.
func (j *Job) If(cond string) *Job {
	j.fields.set("if", cond)
	return j
}

// Permissions sets the job token permissions.
func (j *Job) Permissions(p any) *Job {
	j.fields.set("permissions", p)
	return j
}

// Environment sets the deployment environment, a name or an M.
func (j *Job) Environment(env any) *Job {
	j.fields.set("environment", env)
	return j
}

// Concurrency sets the job concurrency group or block.
func (j *Job) Concurrency(c any) *Job {
	j.fields.set("concurrency", c)
	return j
}

// Outputs sets the job outputs.
func (j *Job) Outputs(outputs M) *Job {
	j.fields.set("outputs", outputs)
	return j
}

// Env sets the job environment.
func (j *Job) Env(env M) *Job {
	j.fields.set("env", env)
	return j
}

// Defaults sets the job defaults block.
func (j *Job) Defaults(d any) *Job {
	j.fields.set("defaults", d)
	return j
}

// Strategy sets the job strategy.
func (j *Job) Strategy(s *Strategy) *Job {
	j.fields.set("strategy", s)
	return j
}

// TimeoutMinutes sets the job timeout, a number or an expression.
func (j *Job) TimeoutMinutes(minutes any) *Job {
	j.fields.set("timeout-minutes", minutes)
	return j
}

// ContinueOnError sets continue-on-error, a bool or an expression.
func (j *Job) ContinueOnError(v any) *Job {
	j.fields.set("continue-on-error", v)
	return j
}

// Container sets the job container, an image or an M.
func (j *Job) Container(c any) *Job {
	j.fields.set("container", c)
	return j
}

// Services sets the service containers.
func (j *Job) Services(services any) *Job {
	j.fields.set("services", services)
	return j
}

// Step appends steps.
func (j *Job) Step(steps ...*Step) *Job {
	j.steps = append(j.steps, steps...)
	return j
}

// With passes an input to the called pipeline.
func (j *Job) With(name string, value any) *Job {
	j.addTo("with", name, value)
	return j
}

// WithOptional passes an input unless value is nil.
func (j *Job) WithOptional(name string, value any) *Job {
	if value != nil {
		j.addTo("with", name, value)
	}
	return j
}

// Secret passes a secret to the called pipeline.
func (j *Job) Secret(name string, value any) *Job {
	j.addTo("secrets", name, value)
	return j
}

// SecretOptional passes a secret unless value is nil.
func (j *Job) SecretOptional(name string, value any) *Job {
	if value != nil {
		j.addTo("secrets", name, value)
	}
	return j
}

// SecretsInherit passes every secret of the caller.
func (j *Job) SecretsInherit() *Job {
	j.fields.set("secrets", "inherit")
	return j
}

// Set adds a key the builder has no method for.
func (j *Job) Set(key string, value any) *Job {
	j.fields.set(key, value)
	return j
}

func (j *Job) addTo(block, name string, value any) {
	current, _ := j.fields.Get(block)
	m, _ := current.(M)
	m.set(name, value)
	j.fields.set(block, m)
}

func (j *Job) tree() any {
	if j == nil {
		return nil
	}
	out := make(M, 0, len(j.fields)+1)
	out = append(out, j.fields...)
	if len(j.steps) > 0 {
		steps := make(L, len(j.steps))
		for i, s := range j.steps {
			steps[i] = s
		}
		out.set("steps", steps)
	}
	return toTree(out)
}

// Strategy is a job strategy block.
type Strategy struct {
	fields M
}

// NewStrategy starts a strategy block.
func NewStrategy() *Strategy {
	return &Strategy{}
}

// Matrix sets the matrix: an M of dimensions or an expression.
func (s *Strategy) Matrix(matrix any) *Strategy {
	s.fields.set("matrix", matrix)
	return s
}

// FailFast sets fail-fast, a bool or an expression.
func (s *Strategy) FailFast(v any) *Strategy {
	s.fields.set("fail-fast", v)
	return s
}

// MaxParallel sets max-parallel, a number or an expression.
func (s *Strategy) MaxParallel(v any) *Strategy {
	s.fields.set("max-parallel", v)
	return s
}

// Set adds a key the builder has no method for.
func (s *Strategy) Set(key string, value any) *Strategy {
	s.fields.set(key, value)
	return s
}

func (s *Strategy) tree() any {
	if s == nil {
		return nil
	}
	return toTree(s.fields)
}
