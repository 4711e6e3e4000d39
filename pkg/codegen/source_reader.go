package codegen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/flow"
	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var sourceReaderLog = logger.New("codegen:source_reader")

// The source reader evaluates the subset of Go that generated files use:
// chained calls into the flow package, calls to unit helpers, calls to
// parameterless local functions, composite literals of flow types, string
// concatenation and basic literals. Anything else is an error, which the
// generator reports as a failed round trip.

var flowFuncs = map[string]reflect.Value{
	"NewWorkflow":     reflect.ValueOf(flow.NewWorkflow),
	"NewJob":          reflect.ValueOf(flow.NewJob),
	"CallJob":         reflect.ValueOf(flow.CallJob),
	"NewStep":         reflect.ValueOf(flow.NewStep),
	"Run":             reflect.ValueOf(flow.Run),
	"Uses":            reflect.ValueOf(flow.Uses),
	"NewStrategy":     reflect.ValueOf(flow.NewStrategy),
	"NewWorkflowCall": reflect.ValueOf(flow.NewWorkflowCall),
	"NewDispatch":     reflect.ValueOf(flow.NewDispatch),
	"NewUnit":         reflect.ValueOf(flow.NewUnit),
	"Expr":            reflect.ValueOf(flow.Expr),
	"ExprRaw":         reflect.ValueOf(flow.ExprRaw),
}

var flowTypes = map[string]reflect.Type{
	"M":      reflect.TypeOf(flow.M{}),
	"L":      reflect.TypeOf(flow.L{}),
	"KV":     reflect.TypeOf(flow.KV{}),
	"Input":  reflect.TypeOf(flow.Input{}),
	"Secret": reflect.TypeOf(flow.Secret{}),
	"Output": reflect.TypeOf(flow.Output{}),
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// helperArgs is the value of a unit helper's struct literal: field name to
// value.
type helperArgs map[string]any

const maxCallDepth = 64

type sourceReader struct {
	funcs    map[string]*ast.FuncDecl
	imports  map[string]string
	bindings map[string]UnitBinding
	depth    int
}

// ReadWorkflowSource evaluates the function funcName of a generated
// pipeline file and returns the workflow it builds. bindings describes the
// unit helpers the file calls.
func ReadWorkflowSource(src []byte, funcName string, bindings map[string]UnitBinding) (*flow.Workflow, error) {
	v, err := readSource(src, funcName, bindings)
	if err != nil {
		return nil, err
	}
	wf, ok := v.(*flow.Workflow)
	if !ok {
		return nil, fmt.Errorf("%s returns %T, not *flow.Workflow", funcName, v)
	}
	return wf, nil
}

// ReadUnitSource evaluates a generated unit definition function.
func ReadUnitSource(src []byte, funcName string, bindings map[string]UnitBinding) (*flow.Unit, error) {
	v, err := readSource(src, funcName, bindings)
	if err != nil {
		return nil, err
	}
	u, ok := v.(*flow.Unit)
	if !ok {
		return nil, fmt.Errorf("%s returns %T, not *flow.Unit", funcName, v)
	}
	return u, nil
}

// ReadContractSource evaluates a generated workflow_call contract function.
func ReadContractSource(src []byte, funcName string) (*flow.WorkflowCall, error) {
	v, err := readSource(src, funcName, nil)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*flow.WorkflowCall)
	if !ok {
		return nil, fmt.Errorf("%s returns %T, not *flow.WorkflowCall", funcName, v)
	}
	return c, nil
}

func readSource(src []byte, funcName string, bindings map[string]UnitBinding) (any, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "generated.go", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parsing generated source: %w", err)
	}

	r := &sourceReader{
		funcs:    make(map[string]*ast.FuncDecl),
		imports:  make(map[string]string),
		bindings: bindings,
	}
	for _, imp := range file.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		name := pathBase(path)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		r.imports[name] = path
	}
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil {
			r.funcs[fn.Name.Name] = fn
		}
	}

	fn, ok := r.funcs[funcName]
	if !ok {
		return nil, fmt.Errorf("function %s not found", funcName)
	}
	sourceReaderLog.Printf("Evaluating %s (%d function(s), %d binding(s))", funcName, len(r.funcs), len(bindings))
	v, err := r.callLocal(fn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", funcName, err)
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func pathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// callLocal evaluates a parameterless function whose body is a single
// return statement.
func (r *sourceReader) callLocal(fn *ast.FuncDecl) (reflect.Value, error) {
	if fn.Type.Params != nil && len(fn.Type.Params.List) > 0 {
		return reflect.Value{}, fmt.Errorf("function %s takes parameters", fn.Name.Name)
	}
	if fn.Body == nil || len(fn.Body.List) != 1 {
		return reflect.Value{}, fmt.Errorf("function %s is not a single return", fn.Name.Name)
	}
	ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return reflect.Value{}, fmt.Errorf("function %s is not a single return", fn.Name.Name)
	}
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxCallDepth {
		return reflect.Value{}, errors.New("call depth exceeded")
	}
	return r.eval(ret.Results[0], nil)
}

func (r *sourceReader) isFlow(x ast.Expr) bool {
	id, ok := x.(*ast.Ident)
	return ok && r.imports[id.Name] == constants.FlowImportPath
}

func (r *sourceReader) isUnits(x ast.Expr) bool {
	id, ok := x.(*ast.Ident)
	if !ok {
		return false
	}
	path, imported := r.imports[id.Name]
	return imported && path != constants.FlowImportPath
}

// eval evaluates expr. want is the type the context expects, used for
// composite literals with elided types; it may be nil.
func (r *sourceReader) eval(expr ast.Expr, want reflect.Type) (reflect.Value, error) {
	switch x := expr.(type) {
	case *ast.BasicLit:
		return basicLit(x)
	case *ast.Ident:
		switch x.Name {
		case "true", "false":
			return reflect.ValueOf(x.Name == "true"), nil
		case "nil":
			return reflect.Value{}, nil
		}
		return reflect.Value{}, fmt.Errorf("unknown identifier %s", x.Name)
	case *ast.ParenExpr:
		return r.eval(x.X, want)
	case *ast.UnaryExpr:
		return r.unary(x)
	case *ast.BinaryExpr:
		return r.concat(x)
	case *ast.CompositeLit:
		return r.composite(x, want)
	case *ast.CallExpr:
		return r.call(x)
	}
	return reflect.Value{}, fmt.Errorf("unsupported expression %T", expr)
}

func basicLit(lit *ast.BasicLit) (reflect.Value, error) {
	switch lit.Kind {
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil
	case token.INT:
		if n, err := strconv.ParseInt(lit.Value, 0, 64); err == nil {
			return reflect.ValueOf(int(n)), nil
		}
		n, err := strconv.ParseUint(lit.Value, 0, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported literal %s", lit.Value)
}

func (r *sourceReader) unary(x *ast.UnaryExpr) (reflect.Value, error) {
	v, err := r.eval(x.X, nil)
	if err != nil {
		return v, err
	}
	if x.Op == token.ADD {
		return v, nil
	}
	if x.Op != token.SUB || !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("unsupported operator %s", x.Op)
	}
	switch n := v.Interface().(type) {
	case int:
		return reflect.ValueOf(-n), nil
	case float64:
		return reflect.ValueOf(-n), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot negate %s", v.Type())
}

func (r *sourceReader) concat(x *ast.BinaryExpr) (reflect.Value, error) {
	if x.Op != token.ADD {
		return reflect.Value{}, fmt.Errorf("unsupported operator %s", x.Op)
	}
	left, err := r.eval(x.X, nil)
	if err != nil {
		return left, err
	}
	right, err := r.eval(x.Y, nil)
	if err != nil {
		return right, err
	}
	if !left.IsValid() || !right.IsValid() || left.Kind() != reflect.String || right.Kind() != reflect.String {
		return reflect.Value{}, errors.New("+ is only supported on strings")
	}
	return reflect.ValueOf(left.String() + right.String()), nil
}

// literalType resolves the type of a composite literal. ok is false for
// unit helper structs, which are read into helperArgs.
func (r *sourceReader) literalType(typ ast.Expr, want reflect.Type) (t reflect.Type, helper bool, err error) {
	switch x := typ.(type) {
	case nil:
		if want == nil {
			return nil, false, errors.New("composite literal without type")
		}
		return want, false, nil
	case *ast.SelectorExpr:
		if r.isFlow(x.X) {
			t, ok := flowTypes[x.Sel.Name]
			if !ok {
				return nil, false, fmt.Errorf("unknown type flow.%s", x.Sel.Name)
			}
			return t, false, nil
		}
		if r.isUnits(x.X) {
			return nil, true, nil
		}
	case *ast.Ident:
		// unit helper structs declared in the same package
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("unsupported literal type %T", typ)
}

func (r *sourceReader) composite(lit *ast.CompositeLit, want reflect.Type) (reflect.Value, error) {
	t, helper, err := r.literalType(lit.Type, want)
	if err != nil {
		return reflect.Value{}, err
	}
	if helper {
		args := helperArgs{}
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return reflect.Value{}, errors.New("helper literal needs field names")
			}
			key, ok := kv.Key.(*ast.Ident)
			if !ok {
				return reflect.Value{}, errors.New("helper literal needs field names")
			}
			v, err := r.eval(kv.Value, anyType)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %w", key.Name, err)
			}
			if v.IsValid() {
				args[key.Name] = v.Interface()
			} else {
				args[key.Name] = nil
			}
		}
		return reflect.ValueOf(args), nil
	}

	switch t.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(t, 0, len(lit.Elts))
		for i, elt := range lit.Elts {
			v, err := r.eval(elt, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			v, err = assign(v, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	case reflect.Struct:
		out := reflect.New(t).Elem()
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return reflect.Value{}, fmt.Errorf("%s literal needs field names", t)
			}
			key, ok := kv.Key.(*ast.Ident)
			if !ok {
				return reflect.Value{}, fmt.Errorf("%s literal needs field names", t)
			}
			field := out.FieldByName(key.Name)
			if !field.IsValid() || !field.CanSet() {
				return reflect.Value{}, fmt.Errorf("%s has no field %s", t, key.Name)
			}
			v, err := r.eval(kv.Value, field.Type())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %w", key.Name, err)
			}
			v, err = assign(v, field.Type())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %w", key.Name, err)
			}
			field.Set(v)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported literal of %s", t)
}

func (r *sourceReader) call(call *ast.CallExpr) (reflect.Value, error) {
	if call.Ellipsis.IsValid() {
		return reflect.Value{}, errors.New("variadic spread is not supported")
	}
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		if conv, ok := conversions[fun.Name]; ok {
			return r.convert(call, conv)
		}
		if b, ok := r.bindings[fun.Name]; ok {
			return r.callHelper(fun.Name, b, call.Args)
		}
		if fn, ok := r.funcs[fun.Name]; ok {
			if len(call.Args) > 0 {
				return reflect.Value{}, fmt.Errorf("%s called with arguments", fun.Name)
			}
			return r.callLocal(fn)
		}
		return reflect.Value{}, fmt.Errorf("unknown function %s", fun.Name)
	case *ast.SelectorExpr:
		if r.isFlow(fun.X) {
			fn, ok := flowFuncs[fun.Sel.Name]
			if !ok {
				return reflect.Value{}, fmt.Errorf("unknown function flow.%s", fun.Sel.Name)
			}
			return r.invoke("flow."+fun.Sel.Name, fn, call.Args)
		}
		if r.isUnits(fun.X) {
			b, ok := r.bindings[fun.Sel.Name]
			if !ok {
				return reflect.Value{}, fmt.Errorf("unknown unit helper %s", fun.Sel.Name)
			}
			return r.callHelper(fun.Sel.Name, b, call.Args)
		}
		recv, err := r.eval(fun.X, nil)
		if err != nil {
			return reflect.Value{}, err
		}
		if !recv.IsValid() {
			return reflect.Value{}, fmt.Errorf("method %s called on nil", fun.Sel.Name)
		}
		method := recv.MethodByName(fun.Sel.Name)
		if !method.IsValid() {
			return reflect.Value{}, fmt.Errorf("%s has no method %s", recv.Type(), fun.Sel.Name)
		}
		return r.invoke(fun.Sel.Name, method, call.Args)
	}
	return reflect.Value{}, fmt.Errorf("unsupported call of %T", call.Fun)
}

var conversions = map[string]reflect.Type{
	"int":     reflect.TypeOf(int(0)),
	"uint64":  reflect.TypeOf(uint64(0)),
	"float64": reflect.TypeOf(float64(0)),
	"string":  reflect.TypeOf(""),
}

func (r *sourceReader) convert(call *ast.CallExpr, t reflect.Type) (reflect.Value, error) {
	if len(call.Args) != 1 {
		return reflect.Value{}, fmt.Errorf("conversion to %s takes one argument", t)
	}
	v, err := r.eval(call.Args[0], t)
	if err != nil {
		return v, err
	}
	if !v.IsValid() || !v.Type().ConvertibleTo(t) {
		return reflect.Value{}, fmt.Errorf("cannot convert to %s", t)
	}
	return v.Convert(t), nil
}

// invoke calls fn with the evaluated arguments.
func (r *sourceReader) invoke(name string, fn reflect.Value, argExprs []ast.Expr) (reflect.Value, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		if len(argExprs) < ft.NumIn()-1 {
			return reflect.Value{}, fmt.Errorf("%s: not enough arguments", name)
		}
	} else if len(argExprs) != ft.NumIn() {
		return reflect.Value{}, fmt.Errorf("%s: want %d argument(s), got %d", name, ft.NumIn(), len(argExprs))
	}

	args := make([]reflect.Value, len(argExprs))
	for i, expr := range argExprs {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := r.eval(expr, pt)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %w", name, err)
		}
		v, err = assign(v, pt)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s argument %d: %w", name, i+1, err)
		}
		args[i] = v
	}

	out := fn.Call(args)
	if len(out) != 1 {
		return reflect.Value{}, fmt.Errorf("%s returns %d values", name, len(out))
	}
	return out[0], nil
}

// assign adapts v to a parameter or field of type t.
func assign(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil used as %s", t)
	}
	if v.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface && v.Type() != t {
			out := reflect.New(t).Elem()
			out.Set(v)
			return out, nil
		}
		return v, nil
	}
	if t.Kind() != reflect.Interface && v.Type().ConvertibleTo(t) && v.Kind() != reflect.String {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Type(), t)
}

// callHelper applies a generated unit helper: the step or job it builds
// passes every non-nil field under its declared name.
func (r *sourceReader) callHelper(name string, b UnitBinding, argExprs []ast.Expr) (reflect.Value, error) {
	want := 1
	if b.Call {
		want = 2
	}
	if len(argExprs) != want {
		return reflect.Value{}, fmt.Errorf("%s: want %d argument(s), got %d", name, want, len(argExprs))
	}
	args := make([]helperArgs, want)
	for i, expr := range argExprs {
		v, err := r.eval(expr, nil)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %w", name, err)
		}
		if !v.IsValid() {
			return reflect.Value{}, fmt.Errorf("%s: argument %d is nil", name, i+1)
		}
		a, ok := v.Interface().(helperArgs)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%s: argument %d is not a struct literal", name, i+1)
		}
		args[i] = a
	}
	if err := checkFields(name, args[0], b.Inputs); err != nil {
		return reflect.Value{}, err
	}

	if !b.Call {
		step := flow.Uses(b.Ref)
		for _, f := range b.Inputs {
			step.WithOptional(f.Name, args[0][f.Field])
		}
		return reflect.ValueOf(step), nil
	}

	if err := checkFields(name, args[1], b.Secrets, "Inherit"); err != nil {
		return reflect.Value{}, err
	}
	job := flow.CallJob(b.Ref)
	for _, f := range b.Inputs {
		job.WithOptional(f.Name, args[0][f.Field])
	}
	if inherit, _ := args[1]["Inherit"].(bool); inherit {
		return reflect.ValueOf(job.SecretsInherit()), nil
	}
	for _, f := range b.Secrets {
		job.SecretOptional(f.Name, args[1][f.Field])
	}
	return reflect.ValueOf(job), nil
}

func checkFields(name string, args helperArgs, fields []FieldBinding, extra ...string) error {
	known := make(map[string]bool, len(fields)+len(extra))
	for _, f := range fields {
		known[f.Field] = true
	}
	for _, e := range extra {
		known[e] = true
	}
	for field := range args {
		if !known[field] {
			return fmt.Errorf("%s: unknown field %s", name, field)
		}
	}
	return nil
}
