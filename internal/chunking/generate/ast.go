//go:build cgo

package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rixmerz/opcode/internal/storage"
)

const defaultMaxAstDepth = 50

// AstGenerator stores a compressed, depth-capped serialization of each
// file's syntax tree.
type AstGenerator struct{}

func NewAstGenerator() *AstGenerator { return &AstGenerator{} }

func (g *AstGenerator) Kind() storage.ChunkType { return storage.ChunkTypeAst }

func (g *AstGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	maxDepth := opts.MaxAstDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxAstDepth
	}
	parser := NewParser()

	var candidates []Candidate
	var rels []CandidateRel

	err := walkFiles(ctx, projectPath, opts, func(relPath, absPath string) error {
		lang, ok := LanguageFromExtension(strings.ToLower(filepath.Ext(relPath)))
		if !ok {
			return nil
		}
		source, err := os.ReadFile(absPath)
		if err != nil {
			return nil
		}
		root, err := parser.Parse(ctx, source, lang)
		if err != nil {
			return nil
		}

		var sb strings.Builder
		nodeCount, deepest := 0, 0
		serializeNode(root, &sb, 0, maxDepth, &deepest, &nodeCount)

		meta := AstMetadata{
			Language:        string(lang),
			NodeCount:       nodeCount,
			MaxDepth:        deepest,
			HasSyntaxErrors: root.HasError(),
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode ast metadata: %w", err)
		}

		candidates = append(candidates, Candidate{
			ChunkType: storage.ChunkTypeAst,
			FilePath:  strPtr(relPath),
			Content:   sb.String(),
			Metadata:  strPtr(string(metaJSON)),
		})
		rels = append(rels, CandidateRel{
			From:    NaturalKey{ChunkType: storage.ChunkTypeAst, FilePath: relPath},
			To:      NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: relPath},
			RelType: storage.RelDependsOn,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, rels, nil
}

// serializeNode writes one "type:startLine-endLine" line per node, indented
// by depth, descending no further than maxDepth.
func serializeNode(node *sitter.Node, sb *strings.Builder, depth, maxDepth int, deepest, nodeCount *int) {
	*nodeCount++
	if depth > *deepest {
		*deepest = depth
	}

	sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(sb, "%s:%d-%d\n", node.Type(), node.StartPoint().Row, node.EndPoint().Row)

	if depth >= maxDepth {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		serializeNode(node.Child(i), sb, depth+1, maxDepth, deepest, nodeCount)
	}
}
