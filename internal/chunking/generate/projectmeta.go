package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Rixmerz/opcode/internal/storage"
)

// ProjectMetaGenerator stores project manifests whole, attaching a parsed
// summary (name, version, dependency list) as chunk metadata where the
// format is understood.
type ProjectMetaGenerator struct{}

func NewProjectMetaGenerator() *ProjectMetaGenerator { return &ProjectMetaGenerator{} }

func (g *ProjectMetaGenerator) Kind() storage.ChunkType { return storage.ChunkTypeProjectMetadata }

var manifestNames = map[string]bool{
	"package.json": true, "package-lock.json": true, "yarn.lock": true,
	"pnpm-lock.yaml": true, "Cargo.toml": true, "Cargo.lock": true,
	"pyproject.toml": true, "requirements.txt": true, "Pipfile": true,
	"go.mod": true, "go.sum": true, "build.gradle": true, "pom.xml": true,
	"composer.json": true, "Gemfile": true,
}

func (g *ProjectMetaGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	var candidates []Candidate

	err := walkFiles(ctx, projectPath, opts, func(relPath, absPath string) error {
		if !manifestNames[filepath.Base(relPath)] {
			return nil
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil
		}

		cand := Candidate{
			ChunkType: storage.ChunkTypeProjectMetadata,
			FilePath:  strPtr(relPath),
			Content:   string(content),
		}
		if meta := parseManifest(filepath.Base(relPath), content); meta != nil {
			metaJSON, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("failed to encode manifest metadata: %w", err)
			}
			cand.Metadata = strPtr(string(metaJSON))
		}
		candidates = append(candidates, cand)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, nil, nil
}

// parseManifest extracts a normalized summary from a manifest file.
// Returns nil for formats stored without interpretation (lock files, XML).
func parseManifest(name string, content []byte) *ManifestMetadata {
	switch name {
	case "package.json", "composer.json":
		var pkg struct {
			Name         string            `json:"name"`
			Version      string            `json:"version"`
			Dependencies map[string]string `json:"dependencies"`
			Require      map[string]string `json:"require"`
		}
		if err := json.Unmarshal(content, &pkg); err != nil {
			return nil
		}
		deps := pkg.Dependencies
		if len(deps) == 0 {
			deps = pkg.Require
		}
		return &ManifestMetadata{
			Format:       "json",
			Name:         pkg.Name,
			Version:      pkg.Version,
			Dependencies: sortedMapKeys(deps),
		}

	case "Cargo.toml":
		var cargo struct {
			Package struct {
				Name    string `toml:"name"`
				Version string `toml:"version"`
			} `toml:"package"`
			Dependencies map[string]any `toml:"dependencies"`
		}
		if err := toml.Unmarshal(content, &cargo); err != nil {
			return nil
		}
		return &ManifestMetadata{
			Format:       "toml",
			Name:         cargo.Package.Name,
			Version:      cargo.Package.Version,
			Dependencies: sortedAnyMapKeys(cargo.Dependencies),
		}

	case "pyproject.toml":
		var py struct {
			Project struct {
				Name         string   `toml:"name"`
				Version      string   `toml:"version"`
				Dependencies []string `toml:"dependencies"`
			} `toml:"project"`
		}
		if err := toml.Unmarshal(content, &py); err != nil {
			return nil
		}
		return &ManifestMetadata{
			Format:       "toml",
			Name:         py.Project.Name,
			Version:      py.Project.Version,
			Dependencies: py.Project.Dependencies,
		}

	case "pnpm-lock.yaml":
		var lock struct {
			LockfileVersion any            `yaml:"lockfileVersion"`
			Dependencies    map[string]any `yaml:"dependencies"`
		}
		if err := yaml.Unmarshal(content, &lock); err != nil {
			return nil
		}
		return &ManifestMetadata{
			Format:       "yaml",
			Dependencies: sortedAnyMapKeys(lock.Dependencies),
		}

	case "go.mod":
		return parseGoMod(content)

	case "requirements.txt":
		var deps []string
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if idx := strings.IndexAny(line, "=<>~!["); idx > 0 {
				line = line[:idx]
			}
			deps = append(deps, strings.TrimSpace(line))
		}
		return &ManifestMetadata{Format: "text", Dependencies: deps}
	}
	return nil
}

func parseGoMod(content []byte) *ManifestMetadata {
	meta := &ManifestMetadata{Format: "gomod"}
	inRequire := false
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "module "):
			meta.Name = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "go "):
			meta.Version = strings.TrimSpace(strings.TrimPrefix(line, "go "))
		case strings.HasPrefix(line, "require ("):
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire || strings.HasPrefix(line, "require "):
			entry := strings.TrimPrefix(line, "require ")
			fields := strings.Fields(entry)
			if len(fields) >= 2 && !strings.HasPrefix(fields[0], "//") {
				meta.Dependencies = append(meta.Dependencies, fields[0])
			}
		}
	}
	return meta
}

func sortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
