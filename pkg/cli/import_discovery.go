package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var importDiscoveryLog = logger.New("cli:import_discovery")

// inputFile is a file the batch will process.
type inputFile struct {
	path string
	kind parser.FileKind
}

// discoverInputs expands paths into the pipeline and unit files to
// process, sorted by path. A path that cannot be read is reported as an io
// error and skipped; excluded directories and the output directory are not
// scanned.
func discoverInputs(paths []string, outDir string) ([]inputFile, types.Issues) {
	var (
		files  []inputFile
		issues types.Issues
		seen   = make(map[string]bool)
	)
	add := func(path string, kind parser.FileKind) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, inputFile{path: path, kind: kind})
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			issues = append(issues, types.NewError(types.KindIO, p, "", err.Error()))
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			issues = append(issues, types.NewError(types.KindIO, abs, "", "cannot read input: "+ioReason(err)))
			continue
		}

		if !info.IsDir() {
			// An explicitly named file is a pipeline unless it is named like
			// a unit definition.
			kind := parser.FileKindPipeline
			if parser.IsUnitDefinitionName(abs) {
				kind = parser.FileKindUnit
			}
			add(abs, kind)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				issues = append(issues, types.NewError(types.KindIO, path, "", "cannot read input: "+ioReason(err)))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != abs && (slices.Contains(constants.SkippedDirectories, d.Name()) || isWithin(path, outDir)) {
					importDiscoveryLog.Printf("Skipping directory %s", path)
					return fs.SkipDir
				}
				return nil
			}
			if !stringutil.IsYAMLFile(path) {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				issues = append(issues, types.NewError(types.KindIO, path, "", "cannot read input: "+ioReason(err)))
				return nil
			}
			switch kind := parser.ClassifyFile(path, content); kind {
			case parser.FileKindPipeline, parser.FileKindUnit:
				add(path, kind)
			default:
				importDiscoveryLog.Printf("Ignoring %s", path)
			}
			return nil
		})
		if err != nil {
			issues = append(issues, types.NewError(types.KindIO, abs, "", "cannot scan directory: "+err.Error()))
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	importDiscoveryLog.Printf("Discovered %d file(s) from %d path(s)", len(files), len(paths))
	return files, issues
}

// isWithin reports whether path is dir or lies below it.
func isWithin(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func ioReason(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}
