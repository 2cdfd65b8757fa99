package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Rixmerz/opcode/internal/storage"
)

// TestsGenerator summarizes each test file into a chunk listing its test
// functions and assertions, and links the file under test to it with a
// tested_by edge when a sibling source file can be inferred.
type TestsGenerator struct{}

func NewTestsGenerator() *TestsGenerator { return &TestsGenerator{} }

func (g *TestsGenerator) Kind() storage.ChunkType { return storage.ChunkTypeTests }

var (
	goTestRe     = regexp.MustCompile(`func\s+(Test[A-Za-z0-9_]+)\s*\(`)
	jsTestRe     = regexp.MustCompile(`(?:it|test)\s*\(\s*['"` + "`" + `]([^'"` + "`" + `]+)`)
	pyTestRe     = regexp.MustCompile(`def\s+(test_[a-zA-Z0-9_]+)`)
	rustTestRe   = regexp.MustCompile(`#\[test\]\s*(?:\n\s*)?fn\s+([a-zA-Z0-9_]+)`)
	assertionRes = []*regexp.Regexp{
		regexp.MustCompile(`assert[_!]?\s*[\(\.]`),
		regexp.MustCompile(`expect\s*\(`),
		regexp.MustCompile(`\.to[A-Z][a-zA-Z]*\(`),
		regexp.MustCompile(`t\.(Error|Errorf|Fatal|Fatalf)\(`),
	}
)

func (g *TestsGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	var candidates []Candidate
	var rels []CandidateRel

	err := walkFiles(ctx, projectPath, opts, func(relPath, absPath string) error {
		if !isCodeFile(relPath) {
			return nil
		}
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return nil
		}
		content := string(raw)
		if !isTestFile(relPath, content) {
			return nil
		}

		names := extractTestNames(relPath, content)
		assertions := countAssertions(content)

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Test File: %s\n", relPath)
		fmt.Fprintf(&sb, "# Test Functions: %d\n\n", len(names))
		for i, name := range names {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
		}
		fmt.Fprintf(&sb, "\n# Assertions: %d\n", assertions)

		meta := TestMetadata{TestCount: len(names), TestNames: names, AssertionCount: assertions}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode test metadata: %w", err)
		}

		candidates = append(candidates, Candidate{
			ChunkType: storage.ChunkTypeTests,
			FilePath:  strPtr(relPath),
			Content:   sb.String(),
			Metadata:  strPtr(string(metaJSON)),
		})

		if subject, ok := subjectFile(projectPath, relPath); ok {
			rels = append(rels, CandidateRel{
				From:    NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: subject},
				To:      NaturalKey{ChunkType: storage.ChunkTypeTests, FilePath: relPath},
				RelType: storage.RelTestedBy,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, rels, nil
}

func isTestFile(relPath, content string) bool {
	base := filepath.Base(relPath)
	if strings.HasSuffix(base, "_test.go") || strings.HasSuffix(base, "_test.rs") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	return strings.Contains(content, "#[test]") ||
		strings.Contains(content, "describe(") ||
		strings.Contains(content, "def test_")
}

func extractTestNames(relPath, content string) []string {
	var re *regexp.Regexp
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".go":
		re = goTestRe
	case ".py", ".pyw":
		re = pyTestRe
	case ".rs":
		re = rustTestRe
	default:
		re = jsTestRe
	}

	var names []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		names = append(names, m[1])
	}
	return names
}

func countAssertions(content string) int {
	total := 0
	for _, re := range assertionRes {
		total += len(re.FindAllStringIndex(content, -1))
	}
	return total
}

// subjectFile guesses the source file a test file covers and returns it
// only when it exists in the project.
func subjectFile(projectPath, testPath string) (string, bool) {
	dir := filepath.Dir(testPath)
	base := filepath.Base(testPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var subjects []string
	switch {
	case strings.HasSuffix(stem, "_test"):
		subjects = append(subjects, strings.TrimSuffix(stem, "_test")+ext)
	case strings.HasPrefix(stem, "test_"):
		subjects = append(subjects, strings.TrimPrefix(stem, "test_")+ext)
	case strings.HasSuffix(stem, ".test") || strings.HasSuffix(stem, ".spec"):
		trimmed := strings.TrimSuffix(strings.TrimSuffix(stem, ".test"), ".spec")
		subjects = append(subjects, trimmed+ext)
	}

	for _, subject := range subjects {
		for _, candDir := range []string{dir, filepath.Dir(dir), filepath.Join(filepath.Dir(dir), "src")} {
			cand := filepath.ToSlash(filepath.Join(candDir, subject))
			if cand == testPath || strings.HasPrefix(cand, "../") {
				continue
			}
			if info, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(cand))); err == nil && !info.IsDir() {
				return cand, true
			}
		}
	}
	return "", false
}
