//go:build !cgo

package generate

import (
	"context"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/storage"
)

// ParserAvailable reports whether tree-sitter parsing was compiled in.
func ParserAvailable() bool {
	return false
}

// AstGenerator requires cgo for tree-sitter; this stub reports the kind as
// unavailable so the orchestrator records it as a generator failure instead
// of silently producing nothing.
type AstGenerator struct{}

func NewAstGenerator() *AstGenerator { return &AstGenerator{} }

func (g *AstGenerator) Kind() storage.ChunkType { return storage.ChunkTypeAst }

func (g *AstGenerator) Generate(_ context.Context, _ string, _ Options) ([]Candidate, []CandidateRel, error) {
	return nil, nil, opErrors.New(opErrors.GeneratorFailure,
		"ast generation requires a cgo build (tree-sitter unavailable)", nil)
}
