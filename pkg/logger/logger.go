// Package logger provides namespaced debug logging controlled by the DEBUG
// environment variable, in the style of the npm "debug" package.
//
//	DEBUG=*                  all namespaces
//	DEBUG=parser:*           every namespace under parser
//	DEBUG=cli:*,-cli:watch   cli namespaces except cli:watch
//
// Loggers are cheap to create and are normally declared once per file:
//
//	var loaderLog = logger.New("parser:document_loader")
package logger

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/githubnext/gh-flowgen/pkg/timeutil"
	"github.com/githubnext/gh-flowgen/pkg/tty"
)

// Logger writes debug lines for a single namespace.
type Logger struct {
	namespace string
	enabled   bool
	color     string

	mu      sync.Mutex
	lastLog time.Time
}

var (
	debugEnv    = os.Getenv("DEBUG")
	debugColors = os.Getenv("DEBUG_COLORS") != "0"
	isTTY       = tty.IsStderrTerminal()

	// output is shared by every logger so that lines from concurrent
	// file processing do not interleave mid-line.
	output   io.Writer = os.Stderr
	outputMu sync.Mutex

	// ANSI 256-color codes readable on light and dark backgrounds.
	colorPalette = []string{
		"\033[38;5;33m",
		"\033[38;5;35m",
		"\033[38;5;166m",
		"\033[38;5;125m",
		"\033[38;5;37m",
		"\033[38;5;161m",
		"\033[38;5;136m",
		"\033[38;5;28m",
		"\033[38;5;63m",
		"\033[38;5;95m",
	}
)

const colorReset = "\033[0m"

// New creates a Logger for namespace. Whether it is enabled is decided once,
// at construction, from DEBUG.
func New(namespace string) *Logger {
	return &Logger{
		namespace: namespace,
		enabled:   computeEnabled(debugEnv, namespace),
		color:     selectColor(namespace),
		lastLog:   time.Now(),
	}
}

// Enabled reports whether the logger emits anything.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// Namespace returns the namespace the logger was created with.
func (l *Logger) Namespace() string {
	return l.namespace
}

// Printf logs a formatted line followed by the time elapsed since the
// previous line of this logger.
func (l *Logger) Printf(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.write(fmt.Sprintf(format, args...))
}

// Print logs its arguments like fmt.Sprint.
func (l *Logger) Print(args ...any) {
	if !l.enabled {
		return
	}
	l.write(fmt.Sprint(args...))
}

func (l *Logger) write(message string) {
	l.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(l.lastLog)
	l.lastLog = now
	l.mu.Unlock()

	prefix := l.namespace
	if l.color != "" {
		prefix = l.color + l.namespace + colorReset
	}

	outputMu.Lock()
	defer outputMu.Unlock()
	fmt.Fprintf(output, "%s %s +%s\n", prefix, message, timeutil.FormatDuration(elapsed))
}

func selectColor(namespace string) string {
	if !debugColors || !isTTY {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(namespace))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}

// computeEnabled evaluates a comma separated DEBUG value against namespace.
// Exclusions (patterns starting with "-") win over inclusions.
func computeEnabled(debug, namespace string) bool {
	enabled := false
	for pattern := range strings.SplitSeq(debug, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if excluded, ok := strings.CutPrefix(pattern, "-"); ok {
			if matchPattern(namespace, excluded) {
				return false
			}
			continue
		}
		if matchPattern(namespace, pattern) {
			enabled = true
		}
	}
	return enabled
}

// matchPattern supports a single "*" wildcard at the start, end or middle.
func matchPattern(namespace, pattern string) bool {
	if pattern == "*" || pattern == namespace {
		return true
	}
	before, after, found := strings.Cut(pattern, "*")
	if !found {
		return false
	}
	return len(namespace) >= len(before)+len(after) &&
		strings.HasPrefix(namespace, before) &&
		strings.HasSuffix(namespace, after)
}
