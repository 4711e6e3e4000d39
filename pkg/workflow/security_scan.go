// This file provides the pattern based security scan of pipeline documents.
//
// The scan flattens every string of the document together with its dotted
// path and reports:
//   - literal credentials: secret-looking keys in env/with maps bound to
//     literal values, assignments in scripts, and well known token formats
//   - overly broad permission grants (see dangerous_permissions_validation.go)
//   - untrusted event data interpolated into scripts (see
//     template_injection_validation.go)
//
// Every finding is a warning. Strict mode turns warnings into a failed
// batch; the scan itself never produces errors.

package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var securityScanLog = logger.New("workflow:security_scan")

var (
	// credentialKeyRegex matches map keys that name a credential
	credentialKeyRegex = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|private[_-]?key|access[_-]?key|credentials?)`)

	// scriptAssignmentRegex matches NAME="literal" style assignments in scripts
	scriptAssignmentRegex = regexp.MustCompile(`(?i)\b[A-Za-z0-9_]*(password|passwd|secret|token|api_?key)[A-Za-z0-9_]*\s*[:=]\s*["']([^"'$\s]{8,})["']`)

	// tokenFormats are credential formats that are never legitimate in a
	// checked-in document
	tokenFormats = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{name: "GitHub personal access token", pattern: regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`)},
		{name: "GitHub fine-grained token", pattern: regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}\b`)},
		{name: "GitHub OAuth token", pattern: regexp.MustCompile(`\bgho_[A-Za-z0-9]{36}\b`)},
		{name: "AWS access key id", pattern: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{name: "Slack token", pattern: regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`)},
		{name: "private key", pattern: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	}
)

// FlatString is a string scalar of the document with its location.
type FlatString struct {
	Path  []string
	Key   string
	Value string
}

// FlattenStrings returns every string scalar below v in document order.
func FlattenStrings(v any, path []string) []FlatString {
	var out []FlatString
	var walk func(v any, path []string, key string)
	walk = func(v any, path []string, key string) {
		switch val := v.(type) {
		case yaml.MapSlice:
			for _, item := range val {
				k := item.Key.(string)
				walk(item.Value, appendPath(path, k), k)
			}
		case []any:
			for i, item := range val {
				walk(item, appendPath(path, strconv.Itoa(i)), key)
			}
		case string:
			out = append(out, FlatString{Path: path, Key: key, Value: val})
		}
	}
	walk(v, path, "")
	return out
}

// ScanSecurity runs every security check against doc.
func ScanSecurity(doc *Document) types.Issues {
	securityScanLog.Printf("Scanning %s", doc.Path)

	flat := FlattenStrings(doc.Source.Tree, nil)
	var issues types.Issues
	issues = append(issues, scanCredentials(doc, flat)...)
	issues = append(issues, validateDangerousPermissions(doc)...)
	issues = append(issues, validateNoTemplateInjection(doc)...)
	issues = append(issues, validateUntrustedCheckout(doc)...)

	securityScanLog.Printf("%s: %d security warning(s)", doc.Path, len(issues))
	return issues
}

func scanCredentials(doc *Document, flat []FlatString) types.Issues {
	var issues types.Issues
	for _, s := range flat {
		if finding := credentialFinding(s); finding != "" {
			issues = append(issues, securityWarning(doc, "security-credential", s.Path, finding,
				"store the value as a repository secret and reference it with ${{ secrets.NAME }}"))
		}
	}
	return issues
}

// credentialFinding describes the credential found in s, or returns "".
func credentialFinding(s FlatString) string {
	for _, format := range tokenFormats {
		if format.pattern.MatchString(s.Value) {
			return fmt.Sprintf("value looks like a %s", format.name)
		}
	}

	if isAssignmentMap(s.Path) && credentialKeyRegex.MatchString(s.Key) && isLiteralCredential(s.Value) {
		return fmt.Sprintf("'%s' is assigned a literal value", s.Key)
	}

	if isScriptKey(s.Key) {
		if m := scriptAssignmentRegex.FindStringSubmatch(stripExpressions(s.Value)); m != nil {
			return "script assigns a literal credential"
		}
	}
	return ""
}

// isAssignmentMap reports whether the path points into an env or with map.
func isAssignmentMap(path []string) bool {
	if len(path) < 2 {
		return false
	}
	parent := path[len(path)-2]
	return parent == "env" || parent == "with"
}

func isScriptKey(key string) bool {
	return key == "run" || key == "script"
}

func isLiteralCredential(v string) bool {
	v = strings.TrimSpace(v)
	if len(v) < 8 || HasExpression(v) {
		return false
	}
	// placeholders and booleans are not credentials
	switch strings.ToLower(v) {
	case "true", "false", "required", "optional", "changeme", "password":
		return false
	}
	return !strings.ContainsAny(v, " \n")
}

// stripExpressions removes spans so that ${{ secrets.X }} assignments are
// not mistaken for literals.
func stripExpressions(s string) string {
	var sb strings.Builder
	for _, tok := range LexTemplate(s) {
		if tok.Kind == TokenLiteral {
			sb.WriteString(tok.Text)
		} else {
			sb.WriteString("$EXPR")
		}
	}
	return sb.String()
}

func securityWarning(doc *Document, rule string, path []string, msg, hint string) types.ValidationIssue {
	dotted := parser.FormatInstancePath(path)
	issue := types.NewWarning(types.KindSecurity, doc.Path, rule, dotted+": "+msg)
	issue.Path = dotted
	issue.Hint = hint
	return doc.locate(issue, path...)
}
