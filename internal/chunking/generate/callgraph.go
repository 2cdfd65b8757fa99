//go:build cgo

package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rixmerz/opcode/internal/storage"
)

// CallgraphGenerator produces one static callgraph chunk per file from
// tree-sitter call sites and import declarations. Imports that resolve to
// another file of the project become depends_on edges between the raw
// source chunks; the callgraph chunk itself gets a calls edge to the file
// it describes.
type CallgraphGenerator struct{}

func NewCallgraphGenerator() *CallgraphGenerator { return &CallgraphGenerator{} }

func (g *CallgraphGenerator) Kind() storage.ChunkType { return storage.ChunkTypeCallgraph }

func (g *CallgraphGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
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

		calls := extractCallNames(root, source, lang)
		imports := extractImportPaths(root, source, lang)

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Dependencies (%d)\n", len(imports))
		for _, imp := range imports {
			fmt.Fprintf(&sb, "import: %s\n", imp)
		}
		fmt.Fprintf(&sb, "\n# Function Calls (%d)\n", len(calls))
		for _, call := range calls {
			fmt.Fprintf(&sb, "call: %s\n", call)
		}

		meta := CallgraphMetadata{
			IsStatic:      true,
			EntryPoints:   []string{},
			ExternalCalls: imports,
			CallCount:     len(calls),
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode callgraph metadata: %w", err)
		}

		candidates = append(candidates, Candidate{
			ChunkType: storage.ChunkTypeCallgraph,
			FilePath:  strPtr(relPath),
			Content:   sb.String(),
			Metadata:  strPtr(string(metaJSON)),
		})
		rels = append(rels, CandidateRel{
			From:    NaturalKey{ChunkType: storage.ChunkTypeCallgraph, FilePath: relPath},
			To:      NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: relPath},
			RelType: storage.RelCalls,
		})

		for _, imp := range imports {
			if target, ok := resolveLocalImport(projectPath, relPath, imp); ok {
				rels = append(rels, CandidateRel{
					From:    NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: relPath},
					To:      NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: target},
					RelType: storage.RelDependsOn,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, rels, nil
}

// extractCallNames returns the distinct callee identifiers in the file.
func extractCallNames(root *sitter.Node, source []byte, lang Language) []string {
	seen := make(map[string]bool)
	for _, n := range findNodes(root, callNodeTypes(lang)) {
		callee := n.ChildByFieldName("function")
		if callee == nil {
			callee = n.ChildByFieldName("name")
		}
		if callee == nil {
			continue
		}
		name := callee.Content(source)
		// For selector calls keep the final segment.
		if idx := strings.LastIndexAny(name, ".:"); idx >= 0 && idx < len(name)-1 {
			name = name[idx+1:]
		}
		if name != "" {
			seen[name] = true
		}
	}
	return sortedKeys(seen)
}

// extractImportPaths returns the distinct import targets in the file.
func extractImportPaths(root *sitter.Node, source []byte, lang Language) []string {
	seen := make(map[string]bool)
	for _, n := range findNodes(root, importNodeTypes(lang)) {
		target := n.ChildByFieldName("path")
		if target == nil {
			target = n.ChildByFieldName("source")
		}
		text := strings.TrimSpace(n.Content(source))
		if target != nil {
			text = target.Content(source)
		}
		text = strings.Trim(text, `"'`)
		if text != "" {
			seen[text] = true
		}
	}
	return sortedKeys(seen)
}

// resolveLocalImport maps a relative import specifier to a project file.
// Only dot-relative specifiers are attempted; package imports stay external.
func resolveLocalImport(projectPath, fromFile, spec string) (string, bool) {
	if !strings.HasPrefix(spec, ".") {
		return "", false
	}
	base := filepath.Dir(fromFile)
	target := filepath.ToSlash(filepath.Join(base, spec))

	exts := []string{"", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".py"}
	for _, ext := range exts {
		cand := target + ext
		if info, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(cand))); err == nil && !info.IsDir() {
			return cand, true
		}
	}
	for _, index := range []string{"index.ts", "index.js", "__init__.py"} {
		cand := target + "/" + index
		if info, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(cand))); err == nil && !info.IsDir() {
			return cand, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
