package codegen

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/githubnext/gh-flowgen/pkg/constants"
)

// ErrNoModule is returned when no go.mod encloses the output directory.
var ErrNoModule = errors.New("no go.mod found")

// ModuleInfo locates the module that will hold generated code.
type ModuleInfo struct {
	// Dir is the directory containing go.mod.
	Dir string
	// Path is the module path.
	Path string
}

// FindModule walks up from dir to the nearest go.mod and reads its module
// path.
func FindModule(dir string) (ModuleInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ModuleInfo{}, err
	}
	for current := abs; ; {
		data, err := os.ReadFile(filepath.Join(current, "go.mod"))
		if err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				return ModuleInfo{}, fmt.Errorf("%s: go.mod has no module directive", current)
			}
			generatorLog.Printf("Found module %s in %s", modPath, current)
			return ModuleInfo{Dir: current, Path: modPath}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return ModuleInfo{}, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ModuleInfo{}, ErrNoModule
		}
		current = parent
	}
}

// UnitsImportPath returns the import path of the units package under
// outDir, which must lie inside mod.
func (mod ModuleInfo) UnitsImportPath(outDir string) (string, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(mod.Dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside module %s", outDir, mod.Path)
	}
	return path.Join(mod.Path, filepath.ToSlash(rel), constants.UnitsPackageName), nil
}
