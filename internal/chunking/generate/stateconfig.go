package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rixmerz/opcode/internal/storage"
)

// StateConfigGenerator stores configuration and environment files whole, each
// linked with a configures_for edge to the project manifest it applies to.
type StateConfigGenerator struct{}

func NewStateConfigGenerator() *StateConfigGenerator { return &StateConfigGenerator{} }

func (g *StateConfigGenerator) Kind() storage.ChunkType { return storage.ChunkTypeStateConfig }

func (g *StateConfigGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	manifest, hasManifest := rootManifest(projectPath)

	var candidates []Candidate
	var rels []CandidateRel

	err := walkFiles(ctx, projectPath, opts, func(relPath, absPath string) error {
		if !isConfigFile(relPath) {
			return nil
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil
		}

		candidates = append(candidates, Candidate{
			ChunkType: storage.ChunkTypeStateConfig,
			FilePath:  strPtr(relPath),
			Content:   string(content),
		})
		if hasManifest {
			rels = append(rels, CandidateRel{
				From:    NaturalKey{ChunkType: storage.ChunkTypeStateConfig, FilePath: relPath},
				To:      NaturalKey{ChunkType: storage.ChunkTypeProjectMetadata, FilePath: manifest},
				RelType: storage.RelConfiguresFor,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, rels, nil
}

func isConfigFile(relPath string) bool {
	name := filepath.Base(relPath)
	switch name {
	case ".env", ".env.local", ".env.development", ".env.production",
		"config.json", "config.yaml", "config.yml",
		"settings.json", "settings.yaml", "appsettings.json",
		"Dockerfile", "docker-compose.yml", "docker-compose.yaml":
		return true
	}
	return strings.HasSuffix(name, ".config.js") ||
		strings.HasSuffix(name, ".config.ts") ||
		strings.HasSuffix(name, "rc.json") ||
		strings.HasSuffix(name, "rc.yml") ||
		strings.HasSuffix(name, "rc.yaml")
}

// rootManifest returns the first project manifest found at the project root.
func rootManifest(projectPath string) (string, bool) {
	for _, name := range []string{"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "pom.xml", "build.gradle"} {
		if info, err := os.Stat(filepath.Join(projectPath, name)); err == nil && !info.IsDir() {
			return name, true
		}
	}
	return "", false
}
