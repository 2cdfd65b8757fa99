package generate

import (
	"context"
	"os"

	"github.com/Rixmerz/opcode/internal/storage"
)

// RawSourceGenerator stores each code file whole. Raw source chunks are the
// anchor most other kinds link against.
type RawSourceGenerator struct{}

func NewRawSourceGenerator() *RawSourceGenerator { return &RawSourceGenerator{} }

func (g *RawSourceGenerator) Kind() storage.ChunkType { return storage.ChunkTypeRawSource }

func (g *RawSourceGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	var candidates []Candidate

	err := walkFiles(ctx, projectPath, opts, func(relPath, absPath string) error {
		if !isCodeFile(relPath) {
			return nil
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			// Unreadable files are skipped, not fatal.
			return nil
		}
		candidates = append(candidates, Candidate{
			ChunkType: storage.ChunkTypeRawSource,
			FilePath:  strPtr(relPath),
			Content:   string(content),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, nil, nil
}
