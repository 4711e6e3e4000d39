package cli

import (
	"context"

	"github.com/githubnext/gh-flowgen/pkg/codegen"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

// TypeGenerator emits typed input structs for marketplace units, usually
// from their published definitions. It is an extension point: the import
// command calls it with the distinct marketplace references of the batch
// when type generation is requested.
type TypeGenerator interface {
	GenerateTypes(ctx context.Context, refs []workflow.UnitReference, outDir string) ([]codegen.GeneratedFile, error)
}

// TypeGeneratorFunc adapts a function to TypeGenerator.
type TypeGeneratorFunc func(ctx context.Context, refs []workflow.UnitReference, outDir string) ([]codegen.GeneratedFile, error)

func (f TypeGeneratorFunc) GenerateTypes(ctx context.Context, refs []workflow.UnitReference, outDir string) ([]codegen.GeneratedFile, error) {
	return f(ctx, refs, outDir)
}
