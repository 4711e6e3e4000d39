// Package advisory looks up security advisories for the marketplace units a
// pipeline pins. Lookups go to the GitHub Advisory Database; a failed or
// timed out lookup is reported as a warning and never fails a file.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/timeutil"
	"github.com/githubnext/gh-flowgen/pkg/types"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var checkerLog = logger.New("advisory:checker")

// Advisory is one entry of the GitHub Advisory Database.
type Advisory struct {
	GHSAID          string          `json:"ghsa_id"`
	Summary         string          `json:"summary"`
	Severity        string          `json:"severity"`
	HTMLURL         string          `json:"html_url"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Package identifies an affected package, "owner/name" for units.
type Package struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

// Vulnerability names an affected package and version range.
type Vulnerability struct {
	Package                Package `json:"package"`
	VulnerableVersionRange string  `json:"vulnerable_version_range"`
	FirstPatchedVersion    string  `json:"first_patched_version"`
}

// Affects returns the vulnerability of a matching slug ("owner/name") whose
// range contains version.
func (a Advisory) Affects(slug, version string) (Vulnerability, bool) {
	for _, v := range a.Vulnerabilities {
		if !strings.EqualFold(v.Package.Name, slug) {
			continue
		}
		if match, ok := inRange(version, v.VulnerableVersionRange); ok && match {
			return v, true
		}
	}
	return Vulnerability{}, false
}

// Checker returns the advisories filed against a marketplace unit.
type Checker interface {
	Lookup(ctx context.Context, slug string) ([]Advisory, error)
}

type restClient interface {
	DoWithContext(ctx context.Context, method string, path string, body io.Reader, response any) error
}

// GitHubChecker queries the advisories REST endpoint with the gh
// credentials of the current user.
type GitHubChecker struct {
	client restClient
}

// NewGitHubChecker creates a checker using the default gh REST client.
func NewGitHubChecker() (*GitHubChecker, error) {
	client, err := api.DefaultRESTClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return &GitHubChecker{client: client}, nil
}

// Lookup fetches the advisories of the actions ecosystem affecting slug.
func (c *GitHubChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	query := url.Values{}
	query.Set("ecosystem", "actions")
	query.Set("affects", slug)
	query.Set("per_page", "100")

	checkerLog.Printf("Querying advisories for %s", slug)
	var advisories []Advisory
	if err := c.client.DoWithContext(ctx, http.MethodGet, "advisories?"+query.Encode(), nil, &advisories); err != nil {
		return nil, err
	}
	checkerLog.Printf("%s: %d advisory(ies)", slug, len(advisories))
	return advisories, nil
}

// Check looks up every distinct marketplace reference of doc pinned to an
// exact release. Each lookup is bounded by timeout. Matches and failed
// lookups are both warnings of kind vulnerability.
func Check(ctx context.Context, c Checker, doc *workflow.Document, timeout time.Duration) types.Issues {
	if timeout <= 0 {
		timeout = constants.DefaultLookupTimeout
	}
	var issues types.Issues
	for _, site := range referenceSites(doc) {
		version, pinned := canonicalVersion(site.ref.Ref)
		if !pinned {
			continue
		}
		slug := site.ref.Slug()

		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		advisories, err := c.Lookup(lookupCtx, slug)
		cancel()
		checkerLog.Printf("Lookup of %s took %s", slug, timeutil.FormatDuration(time.Since(start)))

		if err != nil {
			msg := fmt.Sprintf("advisory lookup for %s failed: %v", slug, err)
			if errors.Is(err, context.DeadlineExceeded) {
				msg = fmt.Sprintf("advisory lookup for %s timed out after %s", slug, timeutil.FormatDuration(timeout))
			}
			issues = append(issues, site.issue(doc, "advisory-lookup", msg, ""))
			continue
		}
		for _, a := range advisories {
			vuln, affected := a.Affects(slug, version)
			if !affected {
				continue
			}
			msg := fmt.Sprintf("%s is affected by %s", site.ref.Raw, a.GHSAID)
			if a.Severity != "" {
				msg += " (" + a.Severity + ")"
			}
			if a.Summary != "" {
				msg += ": " + a.Summary
			}
			var hint string
			if vuln.FirstPatchedVersion != "" {
				hint = "upgrade to " + vuln.FirstPatchedVersion
			}
			if a.HTMLURL != "" {
				hint = strings.TrimPrefix(hint+"; see "+a.HTMLURL, "; ")
			}
			issues = append(issues, site.issue(doc, "advisory", msg, hint))
		}
	}
	return issues
}

type referenceSite struct {
	ref  workflow.UnitReference
	path []string
}

func (s referenceSite) issue(doc *workflow.Document, rule, msg, hint string) types.ValidationIssue {
	issue := types.NewWarning(types.KindVulnerability, doc.Path, rule, msg)
	issue.Path = parser.FormatInstancePath(s.path)
	issue.Hint = hint
	if doc.Source != nil {
		if line, col, ok := parser.LocateInstancePath(doc.Source, s.path); ok {
			issue = issue.At(line, col)
		}
	}
	return issue
}

// referenceSites returns the first use of every distinct marketplace
// reference, in document order.
func referenceSites(doc *workflow.Document) []referenceSite {
	refs := workflow.MarketplaceReferences(doc)
	sites := make([]referenceSite, 0, len(refs))
	for _, ref := range refs {
		sites = append(sites, referenceSite{ref: ref, path: firstUse(doc, ref.Raw)})
	}
	return sites
}

func firstUse(doc *workflow.Document, uses string) []string {
	for _, job := range doc.Jobs {
		for i, step := range job.Steps {
			if step.IsUsesStep() && step.Uses == uses {
				return []string{"jobs", job.ID, "steps", strconv.Itoa(i), "uses"}
			}
		}
	}
	return nil
}
