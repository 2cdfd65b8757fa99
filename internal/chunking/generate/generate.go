// Package generate holds one generator per chunk kind. Generators read the
// project (or the store, for derived kinds) and emit candidate chunks plus
// candidate relationships keyed by natural keys; the orchestrator resolves
// keys to chunk ids after the upsert pass, so generators never touch the
// database write path themselves.
package generate

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rixmerz/opcode/internal/storage"
)

// NaturalKey identifies a chunk within a project before it has a row id.
type NaturalKey struct {
	ChunkType  storage.ChunkType
	FilePath   string
	EntityName string
}

// Candidate is a chunk a generator wants stored.
type Candidate struct {
	ChunkType  storage.ChunkType
	FilePath   *string
	EntityName *string
	Content    string
	Metadata   *string
}

// Key derives the candidate's natural key.
func (c Candidate) Key() NaturalKey {
	key := NaturalKey{ChunkType: c.ChunkType}
	if c.FilePath != nil {
		key.FilePath = *c.FilePath
	}
	if c.EntityName != nil {
		key.EntityName = *c.EntityName
	}
	return key
}

// CandidateRel is a relationship between two natural keys. Either endpoint
// may belong to a chunk produced by a different generator or already stored.
type CandidateRel struct {
	From     NaturalKey
	To       NaturalKey
	RelType  storage.RelationshipType
	Metadata *string
}

// Options control how generators traverse the project.
type Options struct {
	MaxAstDepth             int
	MaxCommits              int
	IncludeDynamicCallgraph bool
	IgnorePatterns          []string
	GitTimeout              time.Duration
	// Files restricts file-derived generators to these project-relative
	// paths. Empty means the whole tree.
	Files []string
}

// Generator produces the chunks of one kind for a project.
type Generator interface {
	Kind() storage.ChunkType
	Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error)
}

// codeExtensions are the file types the source-derived generators consider.
var codeExtensions = map[string]bool{
	".go": true, ".js": true, ".mjs": true, ".cjs": true, ".jsx": true,
	".ts": true, ".mts": true, ".cts": true, ".tsx": true,
	".py": true, ".pyw": true, ".rs": true, ".java": true, ".kt": true,
	".kts": true, ".rb": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".php": true, ".swift": true,
}

func isCodeFile(path string) bool {
	return codeExtensions[strings.ToLower(filepath.Ext(path))]
}

// isIgnored reports whether any segment of relPath matches an ignore
// pattern. Patterns may be bare names ("node_modules"), globs ("*.min.js"),
// or carry a "/**" suffix ("node_modules/**"); all exclude the subtree.
func isIgnored(relPath string, patterns []string) bool {
	for _, pat := range patterns {
		pat = strings.TrimSuffix(filepath.ToSlash(pat), "/**")
		for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
			if ok, err := path.Match(pat, part); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// walkFiles visits project files honoring the ignore patterns and the
// optional file restriction, calling fn with project-relative slash paths.
func walkFiles(ctx context.Context, projectPath string, opts Options, fn func(relPath, absPath string) error) error {
	if len(opts.Files) > 0 {
		for _, rel := range opts.Files {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if isIgnored(rel, opts.IgnorePatterns) {
				continue
			}
			abs := filepath.Join(projectPath, filepath.FromSlash(rel))
			if info, err := os.Stat(abs); err != nil || info.IsDir() {
				continue
			}
			if err := fn(rel, abs); err != nil {
				return err
			}
		}
		return nil
	}

	return filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(projectPath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && isIgnored(rel, opts.IgnorePatterns) {
				return filepath.SkipDir
			}
			if strings.HasPrefix(d.Name(), ".") && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnored(rel, opts.IgnorePatterns) {
			return nil
		}
		return fn(rel, path)
	})
}

func strPtr(s string) *string { return &s }
