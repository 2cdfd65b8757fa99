package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/gitutil"
	"github.com/Rixmerz/opcode/internal/storage"
)

const defaultMaxCommits = 100

// CommitsGenerator mines the project's git history into one chunk per
// commit, keyed by commit hash, with modified_with edges pointing at the raw
// source chunks of the files each commit touched.
type CommitsGenerator struct{}

func NewCommitsGenerator() *CommitsGenerator { return &CommitsGenerator{} }

func (g *CommitsGenerator) Kind() storage.ChunkType { return storage.ChunkTypeCommitHistory }

func (g *CommitsGenerator) Generate(ctx context.Context, projectPath string, opts Options) ([]Candidate, []CandidateRel, error) {
	if !gitutil.Available() {
		return nil, nil, opErrors.New(opErrors.GeneratorFailure,
			"commit history requires the git binary on PATH", nil)
	}

	client := gitutil.NewClient(projectPath, opts.GitTimeout)
	if !client.IsRepository(ctx) {
		return nil, nil, opErrors.New(opErrors.GeneratorFailure,
			fmt.Sprintf("%s is not a git repository", projectPath), nil)
	}

	maxCommits := opts.MaxCommits
	if maxCommits <= 0 {
		maxCommits = defaultMaxCommits
	}

	commits, err := client.Log(ctx, maxCommits)
	if err != nil {
		return nil, nil, err
	}

	var candidates []Candidate
	var rels []CandidateRel

	for _, commit := range commits {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		files, err := client.ChangedFiles(ctx, commit.Hash)
		if err != nil {
			files = nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Commit: %s\n", commit.Hash)
		fmt.Fprintf(&sb, "Author: %s\n", commit.Author)
		fmt.Fprintf(&sb, "Date: %s\n\n", commit.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&sb, "Message:\n%s\n\n", commit.Message)
		fmt.Fprintf(&sb, "Files Modified (%d):\n", len(files))
		for _, file := range files {
			fmt.Fprintf(&sb, "  - %s\n", file)
		}

		meta := CommitMetadata{
			CommitHash:    commit.Hash,
			Author:        commit.Author,
			CommitDate:    commit.Timestamp,
			FilesModified: files,
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode commit metadata: %w", err)
		}

		candidates = append(candidates, Candidate{
			ChunkType:  storage.ChunkTypeCommitHistory,
			EntityName: strPtr(commit.Hash),
			Content:    sb.String(),
			Metadata:   strPtr(string(metaJSON)),
		})

		for _, file := range files {
			rels = append(rels, CandidateRel{
				From:    NaturalKey{ChunkType: storage.ChunkTypeCommitHistory, EntityName: commit.Hash},
				To:      NaturalKey{ChunkType: storage.ChunkTypeRawSource, FilePath: file},
				RelType: storage.RelModifiedWith,
			})
		}
	}
	return candidates, rels, nil
}
