package chunking

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Rixmerz/opcode/internal/config"
	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/storage"
)

func setupOrchestrator(t *testing.T) (*Orchestrator, *storage.DB) {
	tmpDir, err := os.MkdirTemp("", "opcode-chunking-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.Open(tmpDir, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewOrchestrator(db, logger), db
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// fileKinds avoids the git- and cgo-dependent generators so results are
// deterministic in any test environment.
func fileKinds() []storage.ChunkType {
	return []storage.ChunkType{
		storage.ChunkTypeRawSource,
		storage.ChunkTypeTests,
		storage.ChunkTypeStateConfig,
		storage.ChunkTypeProjectMetadata,
	}
}

func seedProject(t *testing.T) string {
	project := t.TempDir()
	writeProjectFile(t, project, "go.mod", "module example.com/demo\n\ngo 1.24\n")
	writeProjectFile(t, project, "calc.go", "package demo\n\nfunc Add(a, b int) int { return a + b }\n")
	writeProjectFile(t, project, "calc_test.go", "package demo\n\nimport \"testing\"\n\nfunc TestAdd(t *testing.T) {\n\tif Add(1, 2) != 3 {\n\t\tt.Error(\"bad\")\n\t}\n}\n")
	writeProjectFile(t, project, ".env", "PORT=8080\n")
	return project
}

func TestProcessWithConfigDefaultsSkipsVendorTrees(t *testing.T) {
	orch, db := setupOrchestrator(t)
	project := seedProject(t)
	writeProjectFile(t, project, "node_modules/pkg/index.js", "module.exports = {}")
	writeProjectFile(t, project, "dist/bundle.js", "var x=1")

	// The stock invocation path: options derived from the default config,
	// whose ignore patterns are glob-style ("node_modules/**").
	opts := OptionsFromConfig(config.DefaultConfig())
	opts.ChunkTypes = fileKinds()

	result, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Expected no generator errors, got %v", result.Errors)
	}

	repo := storage.NewChunkRepository(db)
	for _, prefix := range []string{"node_modules/", "dist/"} {
		leaked, err := repo.Query(storage.ChunkQuery{ProjectPath: project, FilePathPrefix: prefix})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(leaked) != 0 {
			t.Errorf("Ignored tree %s produced %d chunks", prefix, len(leaked))
		}
	}

	indexed, err := repo.Query(storage.ChunkQuery{
		ProjectPath: project,
		ChunkTypes:  []storage.ChunkType{storage.ChunkTypeRawSource},
		FilePath:    "calc.go",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(indexed) != 1 {
		t.Errorf("Expected calc.go to be indexed, got %d chunks", len(indexed))
	}
}

func TestProcessCreatesChunksAndResolvesEdges(t *testing.T) {
	orch, db := setupOrchestrator(t)
	project := seedProject(t)

	opts := DefaultOptions()
	opts.ChunkTypes = fileKinds()

	result, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Expected no generator errors, got %v", result.Errors)
	}
	// calc.go and calc_test.go raw source; one tests chunk; one config
	// chunk; one manifest chunk.
	if result.ChunksCreated != 5 {
		t.Errorf("Expected 5 chunks created, got %d", result.ChunksCreated)
	}
	// tested_by (calc.go -> calc_test.go) and configures_for (.env -> go.mod);
	// both cross generator boundaries, so this exercises key resolution.
	if result.RelationshipsCreated != 2 {
		t.Errorf("Expected 2 relationships, got %d", result.RelationshipsCreated)
	}
	if result.RelationshipsSkipped != 0 {
		t.Errorf("Expected no skipped relationships, got %d", result.RelationshipsSkipped)
	}
	if !result.CompletedAt.After(result.StartedAt) && !result.CompletedAt.Equal(result.StartedAt) {
		t.Error("Completion timestamp should not precede start")
	}

	repo := storage.NewChunkRepository(db)
	sources, err := repo.Query(storage.ChunkQuery{
		ProjectPath: project,
		ChunkTypes:  []storage.ChunkType{storage.ChunkTypeRawSource},
		FilePath:    "calc.go",
	})
	if err != nil || len(sources) != 1 {
		t.Fatalf("Expected calc.go raw source chunk: %v %v", sources, err)
	}
	edges, err := repo.Relationships(sources[0].ID, true)
	if err != nil {
		t.Fatalf("Relationships failed: %v", err)
	}
	if len(edges) != 1 || edges[0].RelationshipType != storage.RelTestedBy {
		t.Errorf("Expected tested_by edge from calc.go, got %+v", edges)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	orch, _ := setupOrchestrator(t)
	project := seedProject(t)

	opts := DefaultOptions()
	opts.ChunkTypes = fileKinds()

	first, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("First pass failed: %v", err)
	}
	second, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("Second pass failed: %v", err)
	}

	if second.ChunksCreated != 0 {
		t.Errorf("Unchanged project should create nothing, got %d", second.ChunksCreated)
	}
	if second.ChunksUpdated != first.ChunksCreated {
		t.Errorf("Expected %d updates, got %d", first.ChunksCreated, second.ChunksUpdated)
	}
}

func TestProcessInflightGuard(t *testing.T) {
	orch, _ := setupOrchestrator(t)
	project := seedProject(t)

	if err := orch.acquire(project); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err := orch.Process(context.Background(), project, DefaultOptions())
	if !opErrors.IsCode(err, opErrors.AlreadyProcessing) {
		t.Errorf("Expected ALREADY_PROCESSING, got %v", err)
	}

	// Another project is unaffected.
	other := seedProject(t)
	opts := DefaultOptions()
	opts.ChunkTypes = fileKinds()
	if _, err := orch.Process(context.Background(), other, opts); err != nil {
		t.Errorf("Unrelated project should process: %v", err)
	}

	orch.release(project)
	if _, err := orch.Process(context.Background(), project, opts); err != nil {
		t.Errorf("Released project should process: %v", err)
	}
}

func TestGeneratorFailureDoesNotAbortSiblings(t *testing.T) {
	orch, _ := setupOrchestrator(t)
	project := seedProject(t)

	opts := DefaultOptions()
	// commit_history fails: the project is not a git repository.
	opts.ChunkTypes = append(fileKinds(), storage.ChunkTypeCommitHistory)

	result, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Expected one generator error, got %v", result.Errors)
	}
	if result.ChunksCreated == 0 {
		t.Error("Sibling generators should still have produced chunks")
	}
}

func TestDerivedGenerators(t *testing.T) {
	orch, db := setupOrchestrator(t)
	project := seedProject(t)

	// Seed store rows for the derived kinds to project.
	ruleRepo := storage.NewBusinessRuleRepository(db)
	ruleID, err := ruleRepo.Create(&storage.BusinessRule{
		ProjectPath:      project,
		EntityName:       "Add",
		FilePath:         "calc.go",
		RuleDescription:  "Addition is commutative",
		AiInterpretation: "Observed symmetric arguments",
	})
	if err != nil {
		t.Fatalf("Create rule failed: %v", err)
	}
	if err := ruleRepo.Validate(ruleID, "Addition is commutative", nil); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	// A second, pending rule must not enter the graph.
	if _, err := ruleRepo.Create(&storage.BusinessRule{
		ProjectPath:     project,
		RuleDescription: "Unreviewed claim",
	}); err != nil {
		t.Fatalf("Create rule failed: %v", err)
	}

	snapRepo := storage.NewSnapshotRepository(db)
	if _, err := snapRepo.CreateMaster(&storage.Snapshot{ProjectPath: project, Message: "User intent: start"}); err != nil {
		t.Fatalf("CreateMaster failed: %v", err)
	}

	errRepo := storage.NewErrorLogRepository(db)
	filePath := "calc.go"
	if _, _, err := errRepo.Log(&storage.ErrorLog{
		ProjectPath: project,
		ErrorType:   "Panic",
		Message:     "integer overflow",
		FilePath:    &filePath,
	}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	opts := DefaultOptions()
	opts.ChunkTypes = []storage.ChunkType{
		storage.ChunkTypeRawSource,
		storage.ChunkTypeBusinessRules,
		storage.ChunkTypeSnapshot,
		storage.ChunkTypeErrorLog,
	}
	result, err := orch.Process(context.Background(), project, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Expected no errors, got %v", result.Errors)
	}

	repo := storage.NewChunkRepository(db)
	assertCount := func(kind storage.ChunkType, want int) {
		t.Helper()
		got, err := repo.Query(storage.ChunkQuery{ProjectPath: project, ChunkTypes: []storage.ChunkType{kind}})
		if err != nil {
			t.Fatalf("Query %s failed: %v", kind, err)
		}
		if len(got) != want {
			t.Errorf("Expected %d %s chunks, got %d", want, kind, len(got))
		}
	}
	assertCount(storage.ChunkTypeBusinessRules, 1)
	assertCount(storage.ChunkTypeSnapshot, 1)
	assertCount(storage.ChunkTypeErrorLog, 1)

	// implements_rule and associated_with_error both anchor on calc.go.
	if result.RelationshipsCreated != 2 {
		t.Errorf("Expected 2 relationships, got %d", result.RelationshipsCreated)
	}
}

func TestReindexFilesTagsSnapshot(t *testing.T) {
	orch, db := setupOrchestrator(t)
	project := seedProject(t)

	snapRepo := storage.NewSnapshotRepository(db)
	snap := &storage.Snapshot{ProjectPath: project, Message: "User intent: tweak calc"}
	if _, err := snapRepo.CreateMaster(snap); err != nil {
		t.Fatalf("CreateMaster failed: %v", err)
	}

	if err := orch.ReindexFiles(context.Background(), project, []string{"calc.go"}, snap.ID); err != nil {
		t.Fatalf("ReindexFiles failed: %v", err)
	}

	repo := storage.NewChunkRepository(db)
	chunks, err := repo.Query(storage.ChunkQuery{
		ProjectPath: project,
		ChunkTypes:  []storage.ChunkType{storage.ChunkTypeRawSource},
		FilePath:    "calc.go",
	})
	if err != nil || len(chunks) != 1 {
		t.Fatalf("Expected calc.go chunk: %v %v", chunks, err)
	}
	if chunks[0].SnapshotID == nil || *chunks[0].SnapshotID != snap.ID {
		t.Errorf("Chunk should carry snapshot id %d, got %v", snap.ID, chunks[0].SnapshotID)
	}

	// Untouched files were not indexed.
	others, err := repo.Query(storage.ChunkQuery{
		ProjectPath: project,
		ChunkTypes:  []storage.ChunkType{storage.ChunkTypeRawSource},
		FilePath:    "calc_test.go",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(others) != 0 {
		t.Errorf("Reindex should only touch listed files, got %v", others)
	}
}
