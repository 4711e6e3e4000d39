package advisory

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var semverLog = logger.New("advisory:semver")

// canonicalVersion returns the semver form of a unit ref ("v1.2.3") and
// whether it pins an exact release. Floating tags such as "v4", branches
// and commit SHAs are not pinned.
func canonicalVersion(ref string) (string, bool) {
	v := ref
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		semverLog.Printf("Ref %q is not a semantic version", ref)
		return "", false
	}
	// Require major.minor.patch
	core := strings.TrimPrefix(v, "v")
	core, _, _ = strings.Cut(core, "-")
	core, _, _ = strings.Cut(core, "+")
	if strings.Count(core, ".") < 2 {
		semverLog.Printf("Ref %q is a floating tag", ref)
		return "", false
	}
	return semver.Canonical(v), true
}

// inRange reports whether version (canonical semver) satisfies every
// constraint of an advisory range such as ">= 1.0.0, < 1.2.3" or "= 2.0.1".
// ok is false when the range cannot be parsed.
func inRange(version, constraints string) (match, ok bool) {
	constraints = strings.TrimSpace(constraints)
	if constraints == "" {
		return false, false
	}
	for _, c := range strings.Split(constraints, ",") {
		c = strings.TrimSpace(c)
		op, operand := splitOperator(c)
		bound := operand
		if !strings.HasPrefix(bound, "v") {
			bound = "v" + bound
		}
		if !semver.IsValid(bound) {
			semverLog.Printf("Unparsable constraint %q", c)
			return false, false
		}
		cmp := semver.Compare(version, bound)
		var holds bool
		switch op {
		case ">=":
			holds = cmp >= 0
		case ">":
			holds = cmp > 0
		case "<=":
			holds = cmp <= 0
		case "<":
			holds = cmp < 0
		case "=", "":
			holds = cmp == 0
		default:
			return false, false
		}
		if !holds {
			return false, true
		}
	}
	return true, true
}

func splitOperator(c string) (op, operand string) {
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if rest, found := strings.CutPrefix(c, candidate); found {
			return candidate, strings.TrimSpace(rest)
		}
	}
	return "", c
}
