package generate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rixmerz/opcode/internal/storage"
)

// The derived generators project store rows back into the chunk graph so
// rules, snapshots, and errors are searchable alongside source chunks.

// BusinessRulesGenerator turns validated rules into chunks, each linked to
// the raw source of the file the rule lives in with an implements_rule edge.
// Pending rules stay out of the graph until a human validates them.
type BusinessRulesGenerator struct {
	rules *storage.BusinessRuleRepository
}

func NewBusinessRulesGenerator(rules *storage.BusinessRuleRepository) *BusinessRulesGenerator {
	return &BusinessRulesGenerator{rules: rules}
}

func (g *BusinessRulesGenerator) Kind() storage.ChunkType { return storage.ChunkTypeBusinessRules }

func (g *BusinessRulesGenerator) Generate(ctx context.Context, projectPath string, _ Options) ([]Candidate, []CandidateRel, error) {
	validated, err := g.rules.ListValidated(projectPath)
	if err != nil {
		return nil, nil, err
	}

	var candidates []Candidate
	var rels []CandidateRel

	for _, rule := range validated {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		content, err := json.Marshal(rule)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode rule %d: %w", rule.ID, err)
		}
		entity := fmt.Sprintf("rule-%d", rule.ID)

		candidates = append(candidates, Candidate{
			ChunkType:  storage.ChunkTypeBusinessRules,
			FilePath:   strPtr(rule.FilePath),
			EntityName: strPtr(entity),
			Content:    string(content),
		})
		if rule.FilePath != "" {
			rels = append(rels, CandidateRel{
				From:    NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: rule.FilePath},
				To:      NaturalKey{ChunkType: storage.ChunkTypeBusinessRules, FilePath: rule.FilePath, EntityName: entity},
				RelType: storage.RelImplementsRule,
			})
		}
	}
	return candidates, rels, nil
}

// SnapshotsGenerator turns snapshot rows into chunks keyed by version label.
type SnapshotsGenerator struct {
	snapshots *storage.SnapshotRepository
}

func NewSnapshotsGenerator(snapshots *storage.SnapshotRepository) *SnapshotsGenerator {
	return &SnapshotsGenerator{snapshots: snapshots}
}

func (g *SnapshotsGenerator) Kind() storage.ChunkType { return storage.ChunkTypeSnapshot }

func (g *SnapshotsGenerator) Generate(ctx context.Context, projectPath string, _ Options) ([]Candidate, []CandidateRel, error) {
	snaps, err := g.snapshots.List(projectPath, nil, 0)
	if err != nil {
		return nil, nil, err
	}

	var candidates []Candidate
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		content, err := json.Marshal(snap)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode snapshot %d: %w", snap.ID, err)
		}

		label := fmt.Sprintf("V%d", snap.VersionMajor)
		if snap.VersionMinor != nil {
			label = fmt.Sprintf("v%d.%d", snap.VersionMajor, *snap.VersionMinor)
		}
		candidates = append(candidates, Candidate{
			ChunkType:  storage.ChunkTypeSnapshot,
			EntityName: strPtr(label),
			Content:    string(content),
		})
	}
	return candidates, nil, nil
}

// ErrorLogsGenerator turns unresolved error rows into chunks, each linked to
// the raw source of its file with an associated_with_error edge.
type ErrorLogsGenerator struct {
	errors *storage.ErrorLogRepository
}

func NewErrorLogsGenerator(errors *storage.ErrorLogRepository) *ErrorLogsGenerator {
	return &ErrorLogsGenerator{errors: errors}
}

func (g *ErrorLogsGenerator) Kind() storage.ChunkType { return storage.ChunkTypeErrorLog }

func (g *ErrorLogsGenerator) Generate(ctx context.Context, projectPath string, _ Options) ([]Candidate, []CandidateRel, error) {
	entries, err := g.errors.List(projectPath, true, 0)
	if err != nil {
		return nil, nil, err
	}

	var candidates []Candidate
	var rels []CandidateRel

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		content, err := json.Marshal(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode error log %d: %w", entry.ID, err)
		}
		entity := fmt.Sprintf("error-%d", entry.ID)

		cand := Candidate{
			ChunkType:  storage.ChunkTypeErrorLog,
			FilePath:   entry.FilePath,
			EntityName: strPtr(entity),
			Content:    string(content),
		}
		candidates = append(candidates, cand)

		if entry.FilePath != nil && *entry.FilePath != "" {
			rels = append(rels, CandidateRel{
				From:    NaturalKey{ChunkType: storage.ChunkTypeErrorLog, FilePath: *entry.FilePath, EntityName: entity},
				To:      NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: *entry.FilePath},
				RelType: storage.RelAssociatedWithError,
			})
		}
	}
	return candidates, rels, nil
}
