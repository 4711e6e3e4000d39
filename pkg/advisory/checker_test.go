//go:build !integration

package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

const pinnedPipeline = `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: octo-org/setup-tool@v1.1.0
      - uses: octo-org/setup-tool@v1.1.0
      - uses: ./.github/actions/local
      - uses: octo-org/other@v2.0.0
`

func loadDocument(t *testing.T, source string) *workflow.Document {
	t.Helper()
	src, err := parser.LoadDocument([]byte(source), "ci.yml")
	require.NoError(t, err)
	return workflow.ParseDocument(src)
}

var setupToolAdvisory = Advisory{
	GHSAID:   "GHSA-aaaa-bbbb-cccc",
	Summary:  "Command injection in setup-tool",
	Severity: "high",
	HTMLURL:  "https://github.com/advisories/GHSA-aaaa-bbbb-cccc",
	Vulnerabilities: []Vulnerability{
		vulnerability("octo-org/setup-tool", ">= 1.0.0, < 1.2.0", "1.2.0"),
	},
}

func vulnerability(name, rng, patched string) Vulnerability {
	return Vulnerability{
		Package:                Package{Ecosystem: "actions", Name: name},
		VulnerableVersionRange: rng,
		FirstPatchedVersion:    patched,
	}
}

func TestCheck(t *testing.T) {
	doc := loadDocument(t, pinnedPipeline)
	checker := StaticChecker{Advisories: map[string][]Advisory{
		"octo-org/setup-tool": {setupToolAdvisory},
		"octo-org/other": {{
			GHSAID:          "GHSA-dddd-eeee-ffff",
			Vulnerabilities: []Vulnerability{vulnerability("octo-org/other", "< 1.0.0", "")},
		}},
	}}

	issues := Check(context.Background(), checker, doc, time.Second)
	require.Len(t, issues, 1, "only the affected pinned release is reported")

	issue := issues[0]
	assert.Equal(t, types.KindVulnerability, issue.Kind)
	assert.Equal(t, types.SeverityWarning, issue.Severity)
	assert.Equal(t, "advisory", issue.Rule)
	assert.Equal(t, "octo-org/setup-tool@v1.1.0 is affected by GHSA-aaaa-bbbb-cccc (high): Command injection in setup-tool", issue.Message)
	assert.Equal(t, "upgrade to 1.2.0; see https://github.com/advisories/GHSA-aaaa-bbbb-cccc", issue.Hint)
	assert.Equal(t, "jobs.build.steps[1].uses", issue.Path)
	assert.Equal(t, 7, issue.Line)
}

func TestCheck_LookupFailureIsWarning(t *testing.T) {
	doc := loadDocument(t, pinnedPipeline)

	issues := Check(context.Background(), StaticChecker{Err: errors.New("HTTP 503")}, doc, time.Second)
	require.Len(t, issues, 2, "one warning per distinct pinned reference")
	for _, issue := range issues {
		assert.Equal(t, types.SeverityWarning, issue.Severity)
		assert.Equal(t, "advisory-lookup", issue.Rule)
	}
	assert.Contains(t, issues[0].Message, "advisory lookup for octo-org/setup-tool failed: HTTP 503")
}

type blockingChecker struct{}

func (blockingChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCheck_Timeout(t *testing.T) {
	doc := loadDocument(t, "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - uses: octo-org/slow@v1.0.0\n")

	issues := Check(context.Background(), blockingChecker{}, doc, 10*time.Millisecond)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "advisory lookup for octo-org/slow timed out after 10ms")
}

type countingChecker struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (c *countingChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return []Advisory{setupToolAdvisory}, nil
}

func TestCachingChecker(t *testing.T) {
	next := &countingChecker{gate: make(chan struct{})}
	cache := NewCachingChecker(next)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			advisories, err := cache.Lookup(context.Background(), "Octo-Org/Setup-Tool")
			assert.NoError(t, err)
			assert.Len(t, advisories, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(next.gate)
	wg.Wait()

	_, err := cache.Lookup(context.Background(), "octo-org/setup-tool")
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load(), "lookups of one slug share a request")
}

func TestCachingChecker_FailuresAreNotCached(t *testing.T) {
	failing := &flakyChecker{}
	cache := NewCachingChecker(failing)

	_, err := cache.Lookup(context.Background(), "octo-org/tool")
	require.Error(t, err)
	advisories, err := cache.Lookup(context.Background(), "octo-org/tool")
	require.NoError(t, err)
	assert.Empty(t, advisories)
}

type flakyChecker struct {
	calls int
}

func (f *flakyChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("connection reset")
	}
	return nil, nil
}

type fakeREST struct {
	path string
	body string
}

func (f *fakeREST) DoWithContext(ctx context.Context, method string, path string, body io.Reader, response any) error {
	f.path = path
	return json.Unmarshal([]byte(f.body), response)
}

func TestGitHubChecker_Lookup(t *testing.T) {
	rest := &fakeREST{body: `[{
		"ghsa_id": "GHSA-aaaa-bbbb-cccc",
		"summary": "Command injection",
		"severity": "high",
		"vulnerabilities": [{
			"package": {"ecosystem": "actions", "name": "octo-org/setup-tool"},
			"vulnerable_version_range": "< 1.2.0",
			"first_patched_version": "1.2.0"
		}]
	}]`}
	checker := &GitHubChecker{client: rest}

	advisories, err := checker.Lookup(context.Background(), "octo-org/setup-tool")
	require.NoError(t, err)
	assert.Equal(t, "advisories?affects=octo-org%2Fsetup-tool&ecosystem=actions&per_page=100", rest.path)
	require.Len(t, advisories, 1)

	vuln, affected := advisories[0].Affects("octo-org/setup-tool", "v1.1.9")
	assert.True(t, affected)
	assert.Equal(t, "1.2.0", vuln.FirstPatchedVersion)
	_, affected = advisories[0].Affects("octo-org/other", "v1.1.9")
	assert.False(t, affected)
}
