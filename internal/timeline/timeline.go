// Package timeline implements the dual snapshot timeline: a master line of
// user intents versioned V1, V2, ... per project, and agent work lines
// versioned v<major>.<minor> under the master they anchor to. Snapshots can
// optionally be mirrored into the project's git repository as commits, tags,
// and branches.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rixmerz/opcode/internal/config"
	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/gitutil"
	"github.com/Rixmerz/opcode/internal/storage"
)

// Reindexer re-chunks a set of changed files, tagging produced chunks with
// the snapshot that changed them. Implemented by the chunking orchestrator.
type Reindexer interface {
	ReindexFiles(ctx context.Context, projectPath string, files []string, snapshotID int64) error
}

// Engine creates, lists, and rewinds snapshots.
type Engine struct {
	snapshots *storage.SnapshotRepository
	cfg       config.GitConfig
	reindexer Reindexer
	logger    *slog.Logger
}

// NewEngine creates a timeline engine. The reindexer may be nil, in which
// case snapshot creation never triggers re-chunking.
func NewEngine(snapshots *storage.SnapshotRepository, cfg config.GitConfig, reindexer Reindexer, logger *slog.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		cfg:       cfg,
		reindexer: reindexer,
		logger:    logger,
	}
}

// CreateMaster records a user intent as the next master version of the
// project. When a parent is given it must be a master snapshot of the same
// project. Changed files, if any, are re-chunked incrementally.
func (e *Engine) CreateMaster(ctx context.Context, projectPath, userMessage string, changedFiles []string, parentID *int64) (*storage.Snapshot, error) {
	if parentID != nil {
		parent, err := e.snapshots.GetByID(*parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ProjectPath != projectPath {
			return nil, opErrors.New(opErrors.InvalidParent,
				fmt.Sprintf("parent snapshot %d does not exist in project %s", *parentID, projectPath), nil)
		}
		if parent.SnapshotType != storage.SnapshotMaster {
			return nil, opErrors.New(opErrors.InvalidParent,
				fmt.Sprintf("parent snapshot %d is not on the master timeline", *parentID), nil)
		}
	}

	snap := &storage.Snapshot{
		ProjectPath:      projectPath,
		ParentSnapshotID: parentID,
		Message:          "User intent: " + userMessage,
		UserMessage:      &userMessage,
		ChangedFiles:     changedFiles,
	}
	if _, err := e.snapshots.CreateMaster(snap); err != nil {
		return nil, err
	}

	e.logger.Info("Master snapshot created",
		"project", projectPath,
		"version", fmt.Sprintf("V%d", snap.VersionMajor),
		"snapshot_id", snap.ID,
	)

	e.mirror(ctx, snap)
	e.reindex(ctx, snap)
	return snap, nil
}

// CreateAgent records an agent work step under the given master anchor.
func (e *Engine) CreateAgent(ctx context.Context, projectPath, message string, changedFiles []string, masterAnchorID int64) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{
		ProjectPath:  projectPath,
		Message:      message,
		ChangedFiles: changedFiles,
	}
	if _, err := e.snapshots.CreateAgent(snap, masterAnchorID); err != nil {
		return nil, err
	}

	e.logger.Info("Agent snapshot created",
		"project", projectPath,
		"version", fmt.Sprintf("v%d.%d", snap.VersionMajor, *snap.VersionMinor),
		"snapshot_id", snap.ID,
	)

	e.mirror(ctx, snap)
	e.reindex(ctx, snap)
	return snap, nil
}

// Get retrieves a snapshot, failing with NOT_FOUND when it does not exist.
func (e *Engine) Get(id int64) (*storage.Snapshot, error) {
	snap, err := e.snapshots.GetByID(id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, opErrors.New(opErrors.NotFound,
			fmt.Sprintf("snapshot %d does not exist", id), nil)
	}
	return snap, nil
}

// List returns a project's snapshots in version order.
func (e *Engine) List(projectPath string, snapshotType *storage.SnapshotType, limit int) ([]*storage.Snapshot, error) {
	return e.snapshots.List(projectPath, snapshotType, limit)
}

// Rewind rolls the master timeline back to the given snapshot: every master
// of the same project with a higher version_major is deleted. Agent history
// is preserved. The target must exist and be a master snapshot.
func (e *Engine) Rewind(id int64) (*storage.Snapshot, int64, error) {
	target, err := e.Get(id)
	if err != nil {
		return nil, 0, err
	}
	if target.SnapshotType != storage.SnapshotMaster {
		return nil, 0, opErrors.New(opErrors.WrongType,
			fmt.Sprintf("snapshot %d is not on the master timeline", id), nil)
	}

	removed, err := e.snapshots.RewindMaster(target.ProjectPath, target.VersionMajor)
	if err != nil {
		return nil, 0, err
	}

	e.logger.Info("Master timeline rewound",
		"project", target.ProjectPath,
		"target", fmt.Sprintf("V%d", target.VersionMajor),
		"removed", removed,
	)
	return target, removed, nil
}

// mirror records the snapshot in the project's git repository. Mirroring is
// best effort: the snapshot row is already committed, so git failures are
// logged and swallowed.
func (e *Engine) mirror(ctx context.Context, snap *storage.Snapshot) {
	if !e.cfg.MirrorSnapshots {
		return
	}
	if !gitutil.Available() {
		e.logger.Warn("Git mirror skipped: git binary not available", "snapshot_id", snap.ID)
		return
	}

	client := gitutil.NewClient(snap.ProjectPath, time.Duration(e.cfg.TimeoutMs)*time.Millisecond)
	if !client.IsRepository(ctx) {
		e.logger.Warn("Git mirror skipped: not a git repository",
			"project", snap.ProjectPath, "snapshot_id", snap.ID)
		return
	}

	hash, err := client.CommitAll(ctx, snap.Message)
	if err != nil {
		e.logger.Warn("Git mirror commit failed", "snapshot_id", snap.ID, "error", err)
		return
	}
	snap.GitCommitHash = &hash

	if snap.SnapshotType == storage.SnapshotMaster {
		tag := fmt.Sprintf("V%d", snap.VersionMajor)
		if err := client.Tag(ctx, tag); err != nil {
			e.logger.Warn("Git mirror tag failed", "snapshot_id", snap.ID, "error", err)
		} else {
			snap.GitTag = &tag
		}
	} else {
		branch := fmt.Sprintf("agent/v%d.%d", snap.VersionMajor, *snap.VersionMinor)
		if err := client.Branch(ctx, branch); err != nil {
			e.logger.Warn("Git mirror branch failed", "snapshot_id", snap.ID, "error", err)
		} else {
			snap.GitBranch = &branch
		}
	}

	if err := e.snapshots.UpdateGitRefs(snap.ID, snap.GitCommitHash, snap.GitTag, snap.GitBranch); err != nil {
		e.logger.Warn("Git mirror refs not persisted", "snapshot_id", snap.ID, "error", err)
	}
}

func (e *Engine) reindex(ctx context.Context, snap *storage.Snapshot) {
	if e.reindexer == nil || len(snap.ChangedFiles) == 0 {
		return
	}
	if err := e.reindexer.ReindexFiles(ctx, snap.ProjectPath, snap.ChangedFiles, snap.ID); err != nil {
		e.logger.Warn("Incremental reindex failed",
			"snapshot_id", snap.ID, "files", len(snap.ChangedFiles), "error", err)
	}
}
