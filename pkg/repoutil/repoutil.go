// Package repoutil splits GitHub repository slugs and marketplace unit
// references.
package repoutil

import (
	"fmt"
	"strings"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var log = logger.New("repoutil:repoutil")

// SplitRepoSlug splits a repository slug (owner/repo) into owner and repo parts.
// Returns an error if the slug format is invalid.
func SplitRepoSlug(slug string) (owner, repo string, err error) {
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		log.Printf("Invalid repo slug format: %s", slug)
		return "", "", fmt.Errorf("invalid repo format: %s", slug)
	}
	return parts[0], parts[1], nil
}

// SplitUnitPath splits the part of a marketplace reference before "@" into
// its repository and an optional sub path:
//
//	actions/checkout               -> actions, checkout, ""
//	github/codeql-action/init      -> github, codeql-action, "init"
//	org/repo/.github/workflows/x.yml -> org, repo, ".github/workflows/x.yml"
func SplitUnitPath(path string) (owner, repo, subPath string, err error) {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid unit reference: %s", path)
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return "", "", "", fmt.Errorf("invalid unit reference: %s", path)
		}
		subPath = parts[2]
	}
	return parts[0], parts[1], subPath, nil
}
