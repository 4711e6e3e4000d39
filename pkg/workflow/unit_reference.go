package workflow

import (
	"fmt"
	"path"
	"strings"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/repoutil"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
)

var unitReferenceLog = logger.New("workflow:unit_reference")

// ReferenceLevel tells where a uses: value appears.
type ReferenceLevel int

const (
	StepLevel ReferenceLevel = iota
	JobLevel
)

// ReferenceKind classifies a uses: value.
type ReferenceKind int

const (
	RefInvalid ReferenceKind = iota
	// RefLocalUnit is ./path/to/unit-dir at step level.
	RefLocalUnit
	// RefLocalCall is ./path/to/pipeline.yml at job level.
	RefLocalCall
	// RefMarketplace is owner/name[/path]@ref at step level.
	RefMarketplace
	// RefRemoteCall is owner/repo/path/to/pipeline.yml@ref at job level.
	RefRemoteCall
	// RefDocker is docker://image at step level.
	RefDocker
)

func (k ReferenceKind) String() string {
	switch k {
	case RefLocalUnit:
		return "local unit"
	case RefLocalCall:
		return "local pipeline call"
	case RefMarketplace:
		return "marketplace unit"
	case RefRemoteCall:
		return "remote pipeline call"
	case RefDocker:
		return "docker image"
	default:
		return "invalid"
	}
}

// UnitReference is a parsed uses: value.
type UnitReference struct {
	Raw  string
	Kind ReferenceKind
	// LocalPath is the slash separated path relative to the scan root for
	// local references, without the leading "./".
	LocalPath string
	// Owner, Repo, SubPath and Ref are set for marketplace and remote
	// references.
	Owner   string
	Repo    string
	SubPath string
	Ref     string
	Image   string
	// Reason explains why a reference is invalid.
	Reason string
}

// IsLocal reports whether the reference targets a path in the repository.
func (r UnitReference) IsLocal() bool {
	return r.Kind == RefLocalUnit || r.Kind == RefLocalCall
}

// Slug returns owner/repo.
func (r UnitReference) Slug() string {
	return r.Owner + "/" + r.Repo
}

// ParseUnitReference classifies uses as it appears at level.
func ParseUnitReference(uses string, level ReferenceLevel) UnitReference {
	ref := UnitReference{Raw: uses}
	trimmed := strings.TrimSpace(uses)

	switch {
	case trimmed == "":
		ref.Reason = "empty reference"
	case HasExpression(trimmed):
		ref.Reason = "reference is computed by an expression"
	case strings.HasPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "../"):
		parseLocalReference(&ref, trimmed, level)
	case strings.HasPrefix(trimmed, "docker://"):
		if level == JobLevel {
			ref.Reason = "docker images cannot be called as pipelines"
			break
		}
		ref.Kind = RefDocker
		ref.Image = strings.TrimPrefix(trimmed, "docker://")
	default:
		parseRemoteReference(&ref, trimmed, level)
	}

	unitReferenceLog.Printf("Parsed %q as %s", uses, ref.Kind)
	return ref
}

func parseLocalReference(ref *UnitReference, trimmed string, level ReferenceLevel) {
	cleaned := path.Clean(trimmed)
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		ref.Reason = "local references cannot leave the repository"
		return
	}
	ref.LocalPath = strings.TrimPrefix(cleaned, "./")

	if level == JobLevel {
		if !stringutil.IsYAMLFile(cleaned) {
			ref.Reason = "local pipeline calls must name a .yml or .yaml file"
			return
		}
		ref.Kind = RefLocalCall
		return
	}
	ref.Kind = RefLocalUnit
}

func parseRemoteReference(ref *UnitReference, trimmed string, level ReferenceLevel) {
	target, version, ok := strings.Cut(trimmed, "@")
	if !ok || version == "" {
		ref.Reason = "missing @ref"
		return
	}
	owner, repo, subPath, err := repoutil.SplitUnitPath(target)
	if err != nil {
		ref.Reason = err.Error()
		return
	}
	ref.Owner, ref.Repo, ref.SubPath, ref.Ref = owner, repo, subPath, version

	if level == JobLevel {
		if !stringutil.IsYAMLFile(subPath) {
			ref.Reason = fmt.Sprintf("remote pipeline calls must name a .yml or .yaml file, got %q", subPath)
			return
		}
		ref.Kind = RefRemoteCall
		return
	}
	ref.Kind = RefMarketplace
}
