//go:build !cgo

package generate

import (
	"context"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/storage"
)

// CallgraphGenerator requires cgo for tree-sitter; see AstGenerator.
type CallgraphGenerator struct{}

func NewCallgraphGenerator() *CallgraphGenerator { return &CallgraphGenerator{} }

func (g *CallgraphGenerator) Kind() storage.ChunkType { return storage.ChunkTypeCallgraph }

func (g *CallgraphGenerator) Generate(_ context.Context, _ string, _ Options) ([]Candidate, []CandidateRel, error) {
	return nil, nil, opErrors.New(opErrors.GeneratorFailure,
		"callgraph generation requires a cgo build (tree-sitter unavailable)", nil)
}
