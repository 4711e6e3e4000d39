package stringutil

import (
	"path/filepath"
	"strings"
)

// Truncate shortens s to at most maxLen runes, ending with "..." when cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// NormalizePath returns p cleaned and with forward slashes, the form used
// in reports and generated file headers regardless of platform.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// TrimYAMLExtension removes a trailing .yml or .yaml.
func TrimYAMLExtension(name string) string {
	for _, ext := range []string{".yml", ".yaml"} {
		if trimmed, ok := strings.CutSuffix(name, ext); ok {
			return trimmed
		}
	}
	return name
}

// IsYAMLFile reports whether name has a .yml or .yaml extension.
func IsYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
