package generate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Rixmerz/opcode/internal/storage"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

func defaultOptions() Options {
	return Options{
		MaxAstDepth:    50,
		MaxCommits:     100,
		IgnorePatterns: []string{"node_modules", "target", "dist", "build", ".git"},
	}
}

func TestRawSourceWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "src/util.py", "def f():\n    pass\n")
	writeFile(t, root, "README.md", "# readme")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, root, "dist/bundle.js", "var x=1")

	gen := NewRawSourceGenerator()
	candidates, rels, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("Raw source emits no relationships, got %d", len(rels))
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}

	paths := map[string]bool{}
	for _, c := range candidates {
		if c.ChunkType != storage.ChunkTypeRawSource {
			t.Errorf("Unexpected chunk type %s", c.ChunkType)
		}
		paths[*c.FilePath] = true
	}
	if !paths["src/main.go"] || !paths["src/util.py"] {
		t.Errorf("Unexpected paths %v", paths)
	}
}

func TestIsIgnoredPatternForms(t *testing.T) {
	tests := []struct {
		name     string
		relPath  string
		patterns []string
		ignored  bool
	}{
		{"bare name", "node_modules/pkg/index.js", []string{"node_modules"}, true},
		{"subtree suffix", "node_modules/pkg/index.js", []string{"node_modules/**"}, true},
		{"subtree suffix on dir", "target", []string{"target/**"}, true},
		{"glob segment", "dist/app.min.js", []string{"*.min.js"}, true},
		{"no match", "src/main.go", []string{"node_modules/**", "dist/**"}, false},
		{"partial segment is not a match", "node_modules_backup/x.js", []string{"node_modules/**"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isIgnored(tt.relPath, tt.patterns); got != tt.ignored {
				t.Errorf("isIgnored(%q, %v) = %v, want %v", tt.relPath, tt.patterns, got, tt.ignored)
			}
		})
	}
}

func TestRawSourceWalkConfigStylePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, root, "build/out.js", "var x=1")

	opts := defaultOptions()
	opts.IgnorePatterns = []string{"node_modules/**", "target/**", "dist/**", "build/**", ".git/**"}

	gen := NewRawSourceGenerator()
	candidates, _, err := gen.Generate(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if *candidates[0].FilePath != "src/main.go" {
		t.Errorf("Unexpected path %s", *candidates[0].FilePath)
	}
}

func TestRawSourceFileRestriction(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	opts := defaultOptions()
	opts.Files = []string{"b.go", "missing.go"}

	gen := NewRawSourceGenerator()
	candidates, _, err := gen.Generate(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 1 || *candidates[0].FilePath != "b.go" {
		t.Errorf("Expected only b.go, got %v", candidates)
	}
}

func TestTestsGenerator(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "calc.go", "package calc\n\nfunc Add(a, b int) int { return a + b }\n")
	writeFile(t, root, "calc_test.go", `package calc

import "testing"

func TestAdd(t *testing.T) {
	if Add(1, 2) != 3 {
		t.Errorf("bad sum")
	}
}

func TestAddNegative(t *testing.T) {
	if Add(-1, -2) != -3 {
		t.Fatal("bad sum")
	}
}
`)

	gen := NewTestsGenerator()
	candidates, rels, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 test chunk, got %d", len(candidates))
	}
	if *candidates[0].FilePath != "calc_test.go" {
		t.Errorf("Unexpected file %s", *candidates[0].FilePath)
	}

	if len(rels) != 1 {
		t.Fatalf("Expected a tested_by edge, got %d", len(rels))
	}
	rel := rels[0]
	if rel.RelType != storage.RelTestedBy {
		t.Errorf("Expected tested_by, got %s", rel.RelType)
	}
	if rel.From.FilePath != "calc.go" || rel.To.FilePath != "calc_test.go" {
		t.Errorf("Edge points the wrong way: %+v", rel)
	}
}

func TestExtractTestNames(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{"go", "x_test.go", "func TestOne(t *testing.T) {}\nfunc TestTwo(t *testing.T) {}", []string{"TestOne", "TestTwo"}},
		{"python", "test_x.py", "def test_alpha():\n    pass\ndef test_beta():\n    pass", []string{"test_alpha", "test_beta"}},
		{"javascript", "x.test.js", "it('does a thing', () => {});\ntest('does more', () => {});", []string{"does a thing", "does more"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTestNames(tt.file, tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestStateConfigGenerator(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.24\n")
	writeFile(t, root, ".env", "PORT=8080\n")
	writeFile(t, root, "config.yaml", "level: debug\n")
	writeFile(t, root, "main.go", "package main")

	gen := NewStateConfigGenerator()
	candidates, rels, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 config chunks, got %d", len(candidates))
	}
	if len(rels) != 2 {
		t.Fatalf("Expected 2 configures_for edges, got %d", len(rels))
	}
	for _, rel := range rels {
		if rel.RelType != storage.RelConfiguresFor {
			t.Errorf("Expected configures_for, got %s", rel.RelType)
		}
		if rel.To.ChunkType != storage.ChunkTypeProjectMetadata || rel.To.FilePath != "go.mod" {
			t.Errorf("Edge should target the root manifest, got %+v", rel.To)
		}
	}
}

func TestProjectMetaGenerator(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"demo","version":"1.2.3","dependencies":{"react":"^18.0.0","zod":"^3.0.0"}}`)
	writeFile(t, root, "Cargo.toml", "[package]\nname = \"demo\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"1\"\n")
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.24\n\nrequire (\n\tgithub.com/google/uuid v1.6.0\n)\n")

	gen := NewProjectMetaGenerator()
	candidates, _, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 manifest chunks, got %d", len(candidates))
	}

	byFile := map[string]Candidate{}
	for _, c := range candidates {
		byFile[*c.FilePath] = c
	}

	var pkgMeta ManifestMetadata
	if err := jsonUnmarshal(t, byFile["package.json"].Metadata, &pkgMeta); err != nil {
		t.Fatalf("package.json metadata: %v", err)
	}
	if pkgMeta.Name != "demo" || pkgMeta.Version != "1.2.3" || len(pkgMeta.Dependencies) != 2 {
		t.Errorf("Unexpected package.json summary %+v", pkgMeta)
	}

	var cargoMeta ManifestMetadata
	if err := jsonUnmarshal(t, byFile["Cargo.toml"].Metadata, &cargoMeta); err != nil {
		t.Fatalf("Cargo.toml metadata: %v", err)
	}
	if cargoMeta.Name != "demo" || len(cargoMeta.Dependencies) != 1 || cargoMeta.Dependencies[0] != "serde" {
		t.Errorf("Unexpected Cargo.toml summary %+v", cargoMeta)
	}

	var goMeta ManifestMetadata
	if err := jsonUnmarshal(t, byFile["go.mod"].Metadata, &goMeta); err != nil {
		t.Fatalf("go.mod metadata: %v", err)
	}
	if goMeta.Name != "example.com/demo" || len(goMeta.Dependencies) != 1 || goMeta.Dependencies[0] != "github.com/google/uuid" {
		t.Errorf("Unexpected go.mod summary %+v", goMeta)
	}
}

func TestAstGeneratorWhenAvailable(t *testing.T) {
	if !ParserAvailable() {
		t.Skip("tree-sitter not compiled in")
	}
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")

	gen := NewAstGenerator()
	candidates, rels, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 ast chunk, got %d", len(candidates))
	}
	if candidates[0].Content == "" || candidates[0].Metadata == nil {
		t.Error("AST chunk should carry serialized tree and metadata")
	}
	if len(rels) != 1 || rels[0].RelType != storage.RelDependsOn {
		t.Errorf("Expected depends_on edge to the raw source chunk, got %v", rels)
	}
}

func TestCallgraphGeneratorWhenAvailable(t *testing.T) {
	if !ParserAvailable() {
		t.Skip("tree-sitter not compiled in")
	}
	root := t.TempDir()
	writeFile(t, root, "util.js", "export function helper() { return 1; }\n")
	writeFile(t, root, "app.js", "import { helper } from './util';\n\nfunction run() {\n  helper();\n}\nrun();\n")

	gen := NewCallgraphGenerator()
	candidates, rels, err := gen.Generate(context.Background(), root, defaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 callgraph chunks, got %d", len(candidates))
	}

	var sawDependsOn bool
	for _, rel := range rels {
		if rel.RelType == storage.RelDependsOn &&
			rel.From.FilePath == "app.js" && rel.To.FilePath == "util.js" {
			sawDependsOn = true
		}
	}
	if !sawDependsOn {
		t.Errorf("Expected app.js depends_on util.js, got %+v", rels)
	}
}

func jsonUnmarshal(t *testing.T, data *string, v any) error {
	t.Helper()
	if data == nil {
		t.Fatal("metadata is nil")
	}
	return json.Unmarshal([]byte(*data), v)
}
