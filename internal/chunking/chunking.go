// Package chunking orchestrates chunk generation: it fans generators out,
// one goroutine per kind, then serializes the upsert pass and resolves
// natural-key relationships in a second phase once every endpoint has a row
// id.
package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rixmerz/opcode/internal/chunking/generate"
	"github.com/Rixmerz/opcode/internal/config"
	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/storage"
)

// ChunkingOptions select which kinds to generate and how.
type ChunkingOptions struct {
	ChunkTypes              []storage.ChunkType `json:"chunkTypes"`
	MaxAstDepth             int                 `json:"maxAstDepth"`
	MaxCommits              int                 `json:"maxCommits"`
	IncludeDynamicCallgraph bool                `json:"includeDynamicCallgraph"`
	IgnorePatterns          []string            `json:"ignorePatterns"`
	GitTimeoutMs            int                 `json:"gitTimeoutMs"`
}

// DefaultOptions generates every file-derived kind with the stock ignore
// list. Derived kinds (business_rules, snapshot, error_log) are opt-in; they
// only add value once the store has rows to project.
func DefaultOptions() ChunkingOptions {
	return ChunkingOptions{
		ChunkTypes: []storage.ChunkType{
			storage.ChunkTypeRawSource,
			storage.ChunkTypeAst,
			storage.ChunkTypeCallgraph,
			storage.ChunkTypeTests,
			storage.ChunkTypeCommitHistory,
			storage.ChunkTypeStateConfig,
			storage.ChunkTypeProjectMetadata,
		},
		MaxAstDepth:    50,
		MaxCommits:     100,
		IgnorePatterns: []string{"node_modules", "target", "dist", "build", ".git"},
		GitTimeoutMs:   5000,
	}
}

// OptionsFromConfig derives chunking options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) ChunkingOptions {
	opts := DefaultOptions()
	if cfg.Chunking.MaxAstDepth > 0 {
		opts.MaxAstDepth = cfg.Chunking.MaxAstDepth
	}
	if cfg.Chunking.MaxCommits > 0 {
		opts.MaxCommits = cfg.Chunking.MaxCommits
	}
	if len(cfg.Chunking.IgnorePatterns) > 0 {
		opts.IgnorePatterns = cfg.Chunking.IgnorePatterns
	}
	opts.IncludeDynamicCallgraph = cfg.Chunking.IncludeDynamicCallgraph
	if cfg.Git.TimeoutMs > 0 {
		opts.GitTimeoutMs = cfg.Git.TimeoutMs
	}
	return opts
}

// ChunkingResult summarizes one processing pass.
type ChunkingResult struct {
	ProjectPath          string    `json:"projectPath"`
	ChunksCreated        int       `json:"chunksCreated"`
	ChunksUpdated        int       `json:"chunksUpdated"`
	RelationshipsCreated int       `json:"relationshipsCreated"`
	RelationshipsSkipped int       `json:"relationshipsSkipped"`
	Errors               []string  `json:"errors"`
	StartedAt            time.Time `json:"startedAt"`
	CompletedAt          time.Time `json:"completedAt"`
}

// Orchestrator runs generators against a project and stores their output.
type Orchestrator struct {
	chunks     *storage.ChunkRepository
	generators map[storage.ChunkType]generate.Generator
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewOrchestrator wires the full generator set over the given repositories.
func NewOrchestrator(db *storage.DB, logger *slog.Logger) *Orchestrator {
	chunks := storage.NewChunkRepository(db)
	gens := []generate.Generator{
		generate.NewRawSourceGenerator(),
		generate.NewAstGenerator(),
		generate.NewCallgraphGenerator(),
		generate.NewTestsGenerator(),
		generate.NewCommitsGenerator(),
		generate.NewStateConfigGenerator(),
		generate.NewProjectMetaGenerator(),
		generate.NewBusinessRulesGenerator(storage.NewBusinessRuleRepository(db)),
		generate.NewSnapshotsGenerator(storage.NewSnapshotRepository(db)),
		generate.NewErrorLogsGenerator(storage.NewErrorLogRepository(db)),
	}

	byKind := make(map[storage.ChunkType]generate.Generator, len(gens))
	for _, g := range gens {
		byKind[g.Kind()] = g
	}
	return &Orchestrator{
		chunks:     chunks,
		generators: byKind,
		logger:     logger,
		inflight:   make(map[string]bool),
	}
}

// Process runs the requested generators over a project. At most one pass per
// project runs at a time; a concurrent call fails fast with
// ALREADY_PROCESSING. A failing generator is recorded in result.Errors and
// never aborts its siblings.
func (o *Orchestrator) Process(ctx context.Context, projectPath string, opts ChunkingOptions) (*ChunkingResult, error) {
	if err := o.acquire(projectPath); err != nil {
		return nil, err
	}
	defer o.release(projectPath)

	result := &ChunkingResult{
		ProjectPath: projectPath,
		Errors:      []string{},
		StartedAt:   time.Now().UTC(),
	}

	genOpts := generate.Options{
		MaxAstDepth:             opts.MaxAstDepth,
		MaxCommits:              opts.MaxCommits,
		IncludeDynamicCallgraph: opts.IncludeDynamicCallgraph,
		IgnorePatterns:          opts.IgnorePatterns,
		GitTimeout:              time.Duration(opts.GitTimeoutMs) * time.Millisecond,
	}

	candidates, rels := o.runGenerators(ctx, projectPath, opts.ChunkTypes, genOpts, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.store(projectPath, 0, candidates, rels, result)
	result.CompletedAt = time.Now().UTC()

	o.logger.Info("Chunking pass completed",
		"project", projectPath,
		"created", result.ChunksCreated,
		"updated", result.ChunksUpdated,
		"relationships", result.RelationshipsCreated,
		"errors", len(result.Errors),
		"duration", result.CompletedAt.Sub(result.StartedAt).String(),
	)
	return result, nil
}

// ReindexFiles reprocesses just the given project-relative files through the
// file-derived generators, tagging produced chunks with the snapshot that
// changed them. Derived and repository-wide kinds are skipped.
func (o *Orchestrator) ReindexFiles(ctx context.Context, projectPath string, files []string, snapshotID int64) error {
	if len(files) == 0 {
		return nil
	}
	if err := o.acquire(projectPath); err != nil {
		return err
	}
	defer o.release(projectPath)

	result := &ChunkingResult{
		ProjectPath: projectPath,
		Errors:      []string{},
		StartedAt:   time.Now().UTC(),
	}

	defaults := DefaultOptions()
	genOpts := generate.Options{
		MaxAstDepth:    defaults.MaxAstDepth,
		IgnorePatterns: defaults.IgnorePatterns,
		Files:          files,
	}
	kinds := []storage.ChunkType{
		storage.ChunkTypeRawSource,
		storage.ChunkTypeAst,
		storage.ChunkTypeCallgraph,
		storage.ChunkTypeTests,
		storage.ChunkTypeStateConfig,
		storage.ChunkTypeProjectMetadata,
	}

	candidates, rels := o.runGenerators(ctx, projectPath, kinds, genOpts, result)
	if err := ctx.Err(); err != nil {
		return err
	}

	o.store(projectPath, snapshotID, candidates, rels, result)
	result.CompletedAt = time.Now().UTC()

	o.logger.Info("Incremental reindex completed",
		"project", projectPath,
		"files", len(files),
		"snapshot_id", snapshotID,
		"created", result.ChunksCreated,
		"updated", result.ChunksUpdated,
	)
	return nil
}

// runGenerators fans the requested kinds out on an errgroup. Each generator
// failure becomes a result error; only context cancellation stops the group.
func (o *Orchestrator) runGenerators(ctx context.Context, projectPath string, kinds []storage.ChunkType, genOpts generate.Options, result *ChunkingResult) ([]generate.Candidate, []generate.CandidateRel) {
	var mu sync.Mutex
	var candidates []generate.Candidate
	var rels []generate.CandidateRel

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		gen, ok := o.generators[kind]
		if !ok {
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unknown chunk type", kind))
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			cands, crels, err := gen.Generate(gctx, projectPath, genOpts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				wrapped := opErrors.New(opErrors.GeneratorFailure,
					fmt.Sprintf("%s generation failed", gen.Kind()), err)
				result.Errors = append(result.Errors, wrapped.Error())
				o.logger.Warn("Generator failed", "kind", gen.Kind(), "error", err)
				return nil
			}
			candidates = append(candidates, cands...)
			rels = append(rels, crels...)
			return nil
		})
	}
	// Only context cancellation surfaces here.
	_ = g.Wait()
	return candidates, rels
}

// store upserts candidates serially, then resolves relationship endpoints:
// first against the keys of this pass, then against chunks already stored
// from earlier passes. Unresolvable edges are skipped and counted.
func (o *Orchestrator) store(projectPath string, snapshotID int64, candidates []generate.Candidate, rels []generate.CandidateRel, result *ChunkingResult) {
	ids := make(map[generate.NaturalKey]int64, len(candidates))

	for _, cand := range candidates {
		chunk := &storage.Chunk{
			ProjectPath: projectPath,
			ChunkType:   cand.ChunkType,
			FilePath:    cand.FilePath,
			EntityName:  cand.EntityName,
			Metadata:    cand.Metadata,
			Content:     cand.Content,
		}
		if snapshotID > 0 {
			chunk.SnapshotID = &snapshotID
		}

		id, created, err := o.chunks.Upsert(chunk)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", cand.ChunkType, err))
			continue
		}
		ids[cand.Key()] = id
		if created {
			result.ChunksCreated++
		} else {
			result.ChunksUpdated++
		}
	}

	for _, rel := range rels {
		fromID, ok := o.resolve(projectPath, rel.From, ids)
		if !ok {
			result.RelationshipsSkipped++
			continue
		}
		toID, ok := o.resolve(projectPath, rel.To, ids)
		if !ok {
			result.RelationshipsSkipped++
			continue
		}
		if _, err := o.chunks.Link(fromID, toID, rel.RelType, rel.Metadata); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("link %s: %v", rel.RelType, err))
			continue
		}
		result.RelationshipsCreated++
	}
}

// resolve maps a natural key to a chunk id, consulting this pass's upserts
// first and the store second.
func (o *Orchestrator) resolve(projectPath string, key generate.NaturalKey, ids map[generate.NaturalKey]int64) (int64, bool) {
	if id, ok := ids[key]; ok {
		return id, true
	}

	query := storage.ChunkQuery{
		ProjectPath: projectPath,
		ChunkTypes:  []storage.ChunkType{key.ChunkType},
		FilePath:    key.FilePath,
		EntityName:  key.EntityName,
		Limit:       1,
	}
	chunks, err := o.chunks.Query(query)
	if err != nil || len(chunks) == 0 {
		return 0, false
	}
	ids[key] = chunks[0].ID
	return chunks[0].ID, true
}

func (o *Orchestrator) acquire(projectPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[projectPath] {
		return opErrors.New(opErrors.AlreadyProcessing,
			fmt.Sprintf("project %s is already being processed", projectPath), nil)
	}
	o.inflight[projectPath] = true
	return nil
}

func (o *Orchestrator) release(projectPath string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, projectPath)
}
