package workflow

import (
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var dangerousPermissionsLog = logger.New("workflow:dangerous_permissions_validation")

// validateDangerousPermissions reports write-all grants at the workflow and
// job level.
func validateDangerousPermissions(doc *Document) types.Issues {
	var issues types.Issues
	if isWriteAll(doc.Permissions) {
		issues = append(issues, permissionWarning(doc, []string{"permissions"}))
	}
	for _, job := range doc.Jobs {
		if isWriteAll(job.Permissions) {
			issues = append(issues, permissionWarning(doc, []string{"jobs", job.ID, "permissions"}))
		}
	}
	if len(issues) > 0 {
		dangerousPermissionsLog.Printf("%s: %d broad permission grant(s)", doc.Path, len(issues))
	}
	return issues
}

func isWriteAll(p any) bool {
	s, ok := p.(string)
	return ok && s == "write-all"
}

func permissionWarning(doc *Document, path []string) types.ValidationIssue {
	return securityWarning(doc, "security-permissions", path, "grants write access to every scope",
		"grant only the scopes the job needs, e.g. contents: read")
}
