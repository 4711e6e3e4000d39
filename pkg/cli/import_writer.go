package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/githubnext/gh-flowgen/pkg/codegen"
	"github.com/githubnext/gh-flowgen/pkg/fileutil"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var importWriterLog = logger.New("cli:import_writer")

// writeOutcome tells what happened to one generated file.
type writeOutcome int

const (
	outcomeWritten writeOutcome = iota
	outcomeUnchanged
	outcomeKept
)

// fileWriter places generated files under outDir. Files whose content is
// already on disk are left alone, so an unchanged input produces no writes.
type fileWriter struct {
	outDir    string
	overwrite bool
	confirm   func(path string) (bool, error)
}

// write stores f and returns where it went. A differing file on disk is
// replaced only with overwrite set or after confirmation; otherwise it is
// kept and a warning is returned.
func (w *fileWriter) write(f codegen.GeneratedFile) (string, writeOutcome, *types.ValidationIssue) {
	dest := filepath.Join(w.outDir, filepath.FromSlash(f.Path))

	existing, err := os.ReadFile(dest)
	switch {
	case err == nil && bytes.Equal(existing, f.Content):
		importWriterLog.Printf("%s is up to date", dest)
		return dest, outcomeUnchanged, nil
	case err == nil && !w.overwrite:
		replace := false
		if w.confirm != nil {
			replace, err = w.confirm(dest)
			if err != nil {
				issue := types.NewError(types.KindIO, dest, "", fmt.Sprintf("overwrite prompt failed: %v", err))
				return dest, outcomeKept, &issue
			}
		}
		if !replace {
			issue := types.NewWarning(types.KindIO, dest, "existing-file", "file exists with different content and was kept")
			issue.Hint = "pass --overwrite-existing to replace it"
			return dest, outcomeKept, &issue
		}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		issue := types.NewError(types.KindIO, dest, "", "cannot read existing file: "+ioReason(err))
		return dest, outcomeKept, &issue
	}

	if err := fileutil.WriteFileAtomic(dest, f.Content, 0o644); err != nil {
		issue := types.NewError(types.KindIO, dest, "", err.Error())
		return dest, outcomeKept, &issue
	}
	return dest, outcomeWritten, nil
}
