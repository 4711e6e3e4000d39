package workflow

import (
	"regexp"
	"strings"

	"github.com/rhysd/actionlint"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var classifierLog = logger.New("workflow:expression_classifier")

// ExpressionClass is the context family an expression is rooted in.
type ExpressionClass string

const (
	ClassPipeline     ExpressionClass = "pipeline"
	ClassEnv          ExpressionClass = "env"
	ClassSecrets      ExpressionClass = "secrets"
	ClassInputs       ExpressionClass = "inputs"
	ClassMatrix       ExpressionClass = "matrix"
	ClassSteps        ExpressionClass = "steps"
	ClassNeeds        ExpressionClass = "needs"
	ClassRunner       ExpressionClass = "runner"
	ClassJob          ExpressionClass = "job"
	ClassStatus       ExpressionClass = "status"
	ClassLiteral      ExpressionClass = "literal"
	ClassUnclassified ExpressionClass = "unclassified"
)

var contextRoots = map[string]ExpressionClass{
	"github":   ClassPipeline,
	"vars":     ClassPipeline,
	"env":      ClassEnv,
	"secrets":  ClassSecrets,
	"inputs":   ClassInputs,
	"matrix":   ClassMatrix,
	"steps":    ClassSteps,
	"needs":    ClassNeeds,
	"runner":   ClassRunner,
	"job":      ClassJob,
	"jobs":     ClassJob,
	"strategy": ClassJob,
}

var statusFunctions = map[string]bool{
	"success":   true,
	"failure":   true,
	"always":    true,
	"cancelled": true,
}

// ContextRef is one property access chain such as steps.build.outputs.sha.
// Path holds the accessed properties after the root; "*" marks an object
// filter and an empty string an index that is computed at run time.
type ContextRef struct {
	Root string
	Path []string
}

// Key returns the first property after the root, or "" when there is none
// or it is not statically known.
func (r ContextRef) Key() string {
	if len(r.Path) == 0 || r.Path[0] == "*" {
		return ""
	}
	return r.Path[0]
}

// String renders the reference in dotted form.
func (r ContextRef) String() string {
	if len(r.Path) == 0 {
		return r.Root
	}
	return r.Root + "." + strings.Join(r.Path, ".")
}

// Classification is the result of classifying one expression.
type Classification struct {
	Class ExpressionClass
	Refs  []ContextRef
	// Parsed is false when the expression could not be parsed and was
	// classified from its leading identifier only.
	Parsed bool
	// UnknownRoot names the first variable that is not a known context.
	UnknownRoot string
}

var prefixPattern = regexp.MustCompile(`^\s*!?\s*([A-Za-z_][A-Za-z0-9_-]*)((?:\.[A-Za-z0-9_*-]+|\[\s*'[^']*'\s*\])*)`)

// ClassifyExpression classifies the inner text of a span.
func ClassifyExpression(inner string) Classification {
	node, err := parseExpression(inner)
	if err != nil {
		classifierLog.Printf("Falling back to prefix scan for %q: %v", inner, err)
		return classifyPrefix(inner)
	}

	c := Classification{Parsed: true}
	collector := &refCollector{}
	collector.walk(node)
	c.Refs = collector.refs

	switch {
	case len(c.Refs) > 0:
		c.Class = classOf(c.Refs[0].Root)
	case collector.statusCall:
		c.Class = ClassStatus
	case collector.unknown != "":
		c.Class = ClassUnclassified
	default:
		c.Class = ClassLiteral
	}
	if collector.unknown != "" {
		c.UnknownRoot = collector.unknown
	}
	return c
}

func parseExpression(inner string) (node actionlint.ExprNode, err error) {
	// the parser panics on some inputs it was never meant to see
	defer func() {
		if r := recover(); r != nil {
			node, err = nil, &actionlint.ExprError{Message: "unparsable expression"}
		}
	}()
	lexer := actionlint.NewExprLexer(inner + exprClose)
	parsed, exprErr := actionlint.NewExprParser().Parse(lexer)
	if exprErr != nil {
		return nil, exprErr
	}
	return parsed, nil
}

func classOf(root string) ExpressionClass {
	if class, ok := contextRoots[strings.ToLower(root)]; ok {
		return class
	}
	return ClassUnclassified
}

func classifyPrefix(inner string) Classification {
	c := Classification{Class: ClassUnclassified}
	m := prefixPattern.FindStringSubmatch(inner)
	if m == nil {
		return c
	}
	root := m[1]
	if _, known := contextRoots[strings.ToLower(root)]; !known {
		c.UnknownRoot = root
		return c
	}
	c.Refs = []ContextRef{{Root: strings.ToLower(root), Path: splitAccessors(m[2])}}
	c.Class = classOf(root)
	return c
}

// splitAccessors turns ".a['b'].c" into ["a", "b", "c"].
func splitAccessors(s string) []string {
	var parts []string
	for s != "" {
		switch s[0] {
		case '.':
			s = s[1:]
			end := strings.IndexAny(s, ".[")
			if end < 0 {
				end = len(s)
			}
			parts = append(parts, s[:end])
			s = s[end:]
		case '[':
			end := strings.Index(s, "]")
			if end < 0 {
				return parts
			}
			inner := strings.TrimSpace(s[1:end])
			parts = append(parts, strings.Trim(inner, "'"))
			s = s[end+1:]
		default:
			return parts
		}
	}
	return parts
}

type refCollector struct {
	refs       []ContextRef
	statusCall bool
	unknown    string
}

func (c *refCollector) walk(node actionlint.ExprNode) {
	switch n := node.(type) {
	case *actionlint.VariableNode, *actionlint.ObjectDerefNode, *actionlint.ArrayDerefNode, *actionlint.IndexAccessNode:
		if ref, ok := c.chain(n); ok {
			c.addRef(ref)
		}
	case *actionlint.FuncCallNode:
		if statusFunctions[strings.ToLower(n.Callee)] {
			c.statusCall = true
		}
		for _, arg := range n.Args {
			c.walk(arg)
		}
	case *actionlint.NotOpNode:
		c.walk(n.Operand)
	case *actionlint.CompareOpNode:
		c.walk(n.Left)
		c.walk(n.Right)
	case *actionlint.LogicalOpNode:
		c.walk(n.Left)
		c.walk(n.Right)
	}
}

// chain flattens a property access chain. Dynamic indexes are walked for
// references of their own.
func (c *refCollector) chain(node actionlint.ExprNode) (ContextRef, bool) {
	switch n := node.(type) {
	case *actionlint.VariableNode:
		return ContextRef{Root: strings.ToLower(n.Name)}, true
	case *actionlint.ObjectDerefNode:
		ref, ok := c.chain(n.Receiver)
		if !ok {
			return ref, false
		}
		ref.Path = append(ref.Path, n.Property)
		return ref, true
	case *actionlint.ArrayDerefNode:
		ref, ok := c.chain(n.Receiver)
		if !ok {
			return ref, false
		}
		ref.Path = append(ref.Path, "*")
		return ref, true
	case *actionlint.IndexAccessNode:
		ref, ok := c.chain(n.Operand)
		if !ok {
			c.walk(n.Index)
			return ref, false
		}
		if s, isString := n.Index.(*actionlint.StringNode); isString {
			ref.Path = append(ref.Path, s.Value)
		} else {
			c.walk(n.Index)
			ref.Path = append(ref.Path, "")
		}
		return ref, true
	default:
		// receiver is a call or literal, e.g. fromJSON(x).key
		c.walk(node)
		return ContextRef{}, false
	}
}

func (c *refCollector) addRef(ref ContextRef) {
	if _, known := contextRoots[ref.Root]; !known {
		if c.unknown == "" {
			c.unknown = ref.Root
		}
		return
	}
	c.refs = append(c.refs, ref)
}
