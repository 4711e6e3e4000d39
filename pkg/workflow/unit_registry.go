package workflow

import (
	"fmt"
	"path"
	"sync"

	"github.com/goccy/go-yaml"
	"golang.org/x/sync/singleflight"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var registryLog = logger.New("workflow:unit_registry")

// UnitKind tells composite units and reusable pipelines apart.
type UnitKind int

const (
	UnitAction UnitKind = iota
	UnitCall
)

// LocalUnit describes a unit or reusable pipeline defined in the repository.
// Its identity is the canonical path of the definition file; the content
// of the first resolution is kept for the whole batch.
type LocalUnit struct {
	CanonicalPath string
	// RefPath is the reference as first written, normalized to "./dir".
	RefPath string
	// Ident is the Go identifier used by generated code. It is empty when
	// the identifier collided with an earlier descriptor; such units are
	// referenced literally.
	Ident string
	Kind  UnitKind

	Name        string
	Description string
	Author      string
	Inputs      []InputSpec
	Outputs     []OutputSpec
	// Using is runs.using; Runs keeps the other runs keys in order.
	Using string
	Runs  yaml.MapSlice
	Steps []*WorkflowStep
	// Extra holds unmodelled top-level keys (branding, ...).
	Extra yaml.MapSlice

	// Contract is set for reusable pipelines.
	Contract *CallContract

	// StepUnits maps composite steps that reference other local units to
	// their descriptors.
	StepUnits map[*WorkflowStep]*LocalUnit

	// Issues found while loading the definition, reported once.
	Issues types.Issues

	Source *parser.Document

	// CollidesWith is the canonical path owning Ident when this unit lost
	// an identifier collision.
	CollidesWith string

	delivered bool
}

// Emitted reports whether generated code has a typed helper for the unit.
func (u *LocalUnit) Emitted() bool {
	return u != nil && u.Ident != ""
}

// InputNames returns the declared inputs in source order.
func (u *LocalUnit) InputNames() []string {
	if u.Kind == UnitCall && u.Contract != nil {
		return u.Contract.InputNames()
	}
	names := make([]string, len(u.Inputs))
	for i, in := range u.Inputs {
		names[i] = in.Name
	}
	return names
}

// UnitIdent derives the Go identifier for a local reference path.
func UnitIdent(localPath string, kind UnitKind) string {
	base := path.Base(localPath)
	if kind == UnitCall {
		base = stringutil.TrimYAMLExtension(base)
	} else if parser.IsUnitDefinitionName(base) {
		base = path.Base(path.Dir(localPath))
	}
	if base == "." || base == "/" || base == "" {
		base = "root"
	}
	return stringutil.ToPascalIdent(base)
}

// UnitRegistry is the batch-scoped set of local unit descriptors. It is
// safe for concurrent use: lookups for one canonical path are collapsed
// with singleflight so each path is loaded by a single writer.
type UnitRegistry struct {
	mu     sync.Mutex
	group  singleflight.Group
	byPath map[string]*LocalUnit
	failed map[string]error
	idents map[string]string
	order  []*LocalUnit
}

// NewUnitRegistry returns an empty registry for one batch.
func NewUnitRegistry() *UnitRegistry {
	return &UnitRegistry{
		byPath: make(map[string]*LocalUnit),
		failed: make(map[string]error),
		idents: make(map[string]string),
	}
}

// Resolve returns the descriptor for canonicalPath, calling load when the
// path has not been resolved in this batch yet. first is true for exactly
// one caller per path, the one that should report the descriptor's issues.
// Load failures are remembered and returned to later callers as well.
func (r *UnitRegistry) Resolve(canonicalPath string, load func() (*LocalUnit, error)) (unit *LocalUnit, first bool, err error) {
	v, err, _ := r.group.Do(canonicalPath, func() (any, error) {
		r.mu.Lock()
		if u, ok := r.byPath[canonicalPath]; ok {
			r.mu.Unlock()
			return u, nil
		}
		if err, ok := r.failed[canonicalPath]; ok {
			r.mu.Unlock()
			return nil, err
		}
		r.mu.Unlock()

		u, err := load()

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.failed[canonicalPath] = err
			return nil, err
		}
		u.CanonicalPath = canonicalPath
		r.register(u)
		return u, nil
	})
	if err != nil {
		return nil, false, err
	}

	unit = v.(*LocalUnit)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !unit.delivered {
		unit.delivered = true
		first = true
	}
	return unit, first, nil
}

// register stores u and claims its identifier. Callers hold r.mu.
func (r *UnitRegistry) register(u *LocalUnit) {
	r.byPath[u.CanonicalPath] = u
	r.order = append(r.order, u)

	if owner, taken := r.idents[u.Ident]; taken {
		registryLog.Printf("Identifier %s of %s already used by %s", u.Ident, u.CanonicalPath, owner)
		u.CollidesWith = owner
		u.Ident = ""
		return
	}
	r.idents[u.Ident] = u.CanonicalPath
	registryLog.Printf("Registered %s as %s", u.CanonicalPath, u.Ident)
}

// Lookup returns the descriptor registered for canonicalPath.
func (r *UnitRegistry) Lookup(canonicalPath string) (*LocalUnit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byPath[canonicalPath]
	return u, ok
}

// Units returns the descriptors in registration order.
func (r *UnitRegistry) Units() []*LocalUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*LocalUnit, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered descriptors.
func (r *UnitRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// ParseLocalUnit builds a composite unit descriptor from its loaded
// definition. Values with an unexpected shape are kept in Extra or Runs.
func ParseLocalUnit(src *parser.Document, refPath string) *LocalUnit {
	u := &LocalUnit{
		RefPath: refPath,
		Ident:   UnitIdent(refPath, UnitAction),
		Kind:    UnitAction,
		Source:  src,
	}
	for _, item := range src.Tree {
		key := item.Key.(string)
		switch key {
		case "name":
			if !setString(&u.Name, item.Value) {
				u.Extra = append(u.Extra, item)
			}
		case "description":
			if !setString(&u.Description, item.Value) {
				u.Extra = append(u.Extra, item)
			}
		case "author":
			if !setString(&u.Author, item.Value) {
				u.Extra = append(u.Extra, item)
			}
		case "inputs":
			inputs, ok := ParseInputSpecs(item.Value)
			if !ok || inputs == nil {
				u.Extra = append(u.Extra, item)
				continue
			}
			u.Inputs = inputs
		case "outputs":
			outputs, ok := ParseOutputSpecs(item.Value)
			if !ok || outputs == nil {
				u.Extra = append(u.Extra, item)
				continue
			}
			u.Outputs = outputs
		case "runs":
			runs, ok := item.Value.(yaml.MapSlice)
			if !ok {
				u.Extra = append(u.Extra, item)
				continue
			}
			u.parseRuns(runs)
		default:
			u.Extra = append(u.Extra, item)
		}
	}
	return u
}

func (u *LocalUnit) parseRuns(runs yaml.MapSlice) {
	for _, item := range runs {
		switch item.Key.(string) {
		case "using":
			if !setString(&u.Using, item.Value) {
				u.Runs = append(u.Runs, item)
			}
		case "steps":
			steps, ok := parseSteps(item.Value)
			if !ok || len(steps) == 0 {
				u.Runs = append(u.Runs, item)
				continue
			}
			u.Steps = steps
		default:
			u.Runs = append(u.Runs, item)
		}
	}
}

// ParseLocalCall builds a reusable pipeline descriptor from the called
// document. It fails when the document does not declare workflow_call or
// when the contract cannot be typed.
func ParseLocalCall(src *parser.Document, refPath string) (*LocalUnit, error) {
	doc := ParseDocument(src)
	trigger, ok := doc.Trigger("workflow_call")
	if !ok {
		return nil, fmt.Errorf("%s does not declare a workflow_call trigger", refPath)
	}
	contract, ok := ParseCallContract(trigger.Config)
	if !ok {
		return nil, fmt.Errorf("%s has a workflow_call contract that cannot be typed", refPath)
	}
	return &LocalUnit{
		RefPath:  refPath,
		Ident:    UnitIdent(refPath, UnitCall),
		Kind:     UnitCall,
		Name:     doc.Name,
		Contract: contract,
		Source:   src,
	}, nil
}
