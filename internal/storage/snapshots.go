package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
)

// SnapshotRepository owns the snapshots table. Version assignment and rewind
// run inside a single transaction because the connection pool is capped at
// one writer; two concurrent CreateMaster calls can never read the same max.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, project_path, snapshot_type, parent_snapshot_id, message,
	user_message, changed_files, diff_summary, metadata, git_commit_hash, git_tag,
	git_branch, version_major, version_minor, created_at`

// CreateMaster inserts a master snapshot with the next version_major for the
// project. The caller-supplied VersionMajor is ignored; the assigned number is
// written back into snap.
func (r *SnapshotRepository) CreateMaster(snap *Snapshot) (int64, error) {
	var id int64
	err := r.db.WithTx(func(tx *sql.Tx) error {
		var maxMajor sql.NullInt64
		err := tx.QueryRow(`
			SELECT MAX(version_major) FROM snapshots
			WHERE project_path = ? AND snapshot_type = 'master'
		`, snap.ProjectPath).Scan(&maxMajor)
		if err != nil {
			return fmt.Errorf("failed to read master version: %w", err)
		}

		snap.SnapshotType = SnapshotMaster
		snap.VersionMajor = int(maxMajor.Int64) + 1
		snap.VersionMinor = nil

		id, err = insertSnapshot(tx, snap)
		return err
	})
	if err != nil {
		return 0, err
	}
	snap.ID = id
	return id, nil
}

// CreateAgent inserts an agent snapshot anchored to the given master. The
// anchor's version_major is denormalized into the agent row, and the next
// version_minor under that anchor is assigned. Fails with NOT_FOUND when the
// anchor does not exist, INVALID_PARENT when it belongs to another project,
// and WRONG_TYPE when it is not a master.
func (r *SnapshotRepository) CreateAgent(snap *Snapshot, parentID int64) (int64, error) {
	var id int64
	err := r.db.WithTx(func(tx *sql.Tx) error {
		var parentProject, parentType string
		var parentMajor int
		err := tx.QueryRow(
			"SELECT project_path, snapshot_type, version_major FROM snapshots WHERE id = ?",
			parentID,
		).Scan(&parentProject, &parentType, &parentMajor)
		if err == sql.ErrNoRows {
			return opErrors.New(opErrors.NotFound,
				fmt.Sprintf("parent snapshot %d does not exist", parentID), nil)
		}
		if err != nil {
			return fmt.Errorf("failed to check parent snapshot: %w", err)
		}
		if parentProject != snap.ProjectPath {
			return opErrors.New(opErrors.InvalidParent,
				fmt.Sprintf("parent snapshot %d belongs to project %s", parentID, parentProject), nil)
		}
		if parentType != string(SnapshotMaster) {
			return opErrors.New(opErrors.WrongType,
				fmt.Sprintf("parent snapshot %d is not a master snapshot", parentID), nil)
		}

		var maxMinor sql.NullInt64
		err = tx.QueryRow(`
			SELECT MAX(version_minor) FROM snapshots
			WHERE project_path = ? AND snapshot_type = 'agent' AND version_major = ?
		`, snap.ProjectPath, parentMajor).Scan(&maxMinor)
		if err != nil {
			return fmt.Errorf("failed to read agent version: %w", err)
		}

		minor := int(maxMinor.Int64) + 1
		snap.SnapshotType = SnapshotAgent
		snap.ParentSnapshotID = &parentID
		snap.VersionMajor = parentMajor
		snap.VersionMinor = &minor

		id, err = insertSnapshot(tx, snap)
		return err
	})
	if err != nil {
		return 0, err
	}
	snap.ID = id
	return id, nil
}

func insertSnapshot(tx *sql.Tx, snap *Snapshot) (int64, error) {
	changedFiles, err := json.Marshal(snap.ChangedFiles)
	if err != nil {
		return 0, fmt.Errorf("failed to encode changed files: %w", err)
	}
	if snap.ChangedFiles == nil {
		changedFiles = []byte("[]")
	}

	now := time.Now().UTC()
	snap.CreatedAt = now

	res, err := tx.Exec(`
		INSERT INTO snapshots (project_path, snapshot_type, parent_snapshot_id, message,
			user_message, changed_files, diff_summary, metadata, git_commit_hash, git_tag,
			git_branch, version_major, version_minor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ProjectPath,
		string(snap.SnapshotType),
		snap.ParentSnapshotID,
		snap.Message,
		snap.UserMessage,
		string(changedFiles),
		snap.DiffSummary,
		snap.Metadata,
		snap.GitCommitHash,
		snap.GitTag,
		snap.GitBranch,
		snap.VersionMajor,
		snap.VersionMinor,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}
	return res.LastInsertId()
}

// GetByID retrieves a snapshot by id, or nil if it does not exist.
func (r *SnapshotRepository) GetByID(id int64) (*Snapshot, error) {
	row := r.db.QueryRow("SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// GetMasterByVersion retrieves a project's master snapshot by version_major,
// or nil if none exists.
func (r *SnapshotRepository) GetMasterByVersion(projectPath string, major int) (*Snapshot, error) {
	row := r.db.QueryRow(`
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE project_path = ? AND snapshot_type = 'master' AND version_major = ?
	`, projectPath, major)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get master snapshot: %w", err)
	}
	return snap, nil
}

// List returns a project's snapshots in version order, masters and agents
// interleaved: agents sort under their anchoring major. A zero limit means
// no limit.
func (r *SnapshotRepository) List(projectPath string, snapshotType *SnapshotType, limit int) ([]*Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots WHERE project_path = ?"
	args := []any{projectPath}

	if snapshotType != nil {
		query += " AND snapshot_type = ?"
		args = append(args, string(*snapshotType))
	}
	query += " ORDER BY version_major, version_minor IS NOT NULL, version_minor, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// UpdateGitRefs stores the git mirror results for a snapshot.
func (r *SnapshotRepository) UpdateGitRefs(id int64, commitHash, tag, branch *string) error {
	_, err := r.db.Exec(`
		UPDATE snapshots
		SET git_commit_hash = COALESCE(?, git_commit_hash),
		    git_tag = COALESCE(?, git_tag),
		    git_branch = COALESCE(?, git_branch)
		WHERE id = ?
	`, commitHash, tag, branch, id)
	if err != nil {
		return fmt.Errorf("failed to update git refs: %w", err)
	}
	return nil
}

// RewindMaster deletes the project's master snapshots with version_major
// greater than target, atomically, and reports how many were removed. Agent
// snapshots survive: the parent FK nulls out but the denormalized anchor
// major keeps them addressable. Fails with NOT_FOUND when the target master
// does not exist.
func (r *SnapshotRepository) RewindMaster(projectPath string, targetMajor int) (int64, error) {
	var removed int64
	err := r.db.WithTx(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM snapshots
			WHERE project_path = ? AND snapshot_type = 'master' AND version_major = ?
		`, projectPath, targetMajor).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check rewind target: %w", err)
		}
		if exists == 0 {
			return opErrors.New(opErrors.NotFound,
				fmt.Sprintf("master snapshot V%d does not exist for project %s", targetMajor, projectPath), nil)
		}

		res, err := tx.Exec(`
			DELETE FROM snapshots
			WHERE project_path = ? AND snapshot_type = 'master' AND version_major > ?
		`, projectPath, targetMajor)
		if err != nil {
			return fmt.Errorf("failed to rewind master timeline: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count rewound snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var snapshotType, changedFiles, createdAt string

	err := row.Scan(
		&snap.ID,
		&snap.ProjectPath,
		&snapshotType,
		&snap.ParentSnapshotID,
		&snap.Message,
		&snap.UserMessage,
		&changedFiles,
		&snap.DiffSummary,
		&snap.Metadata,
		&snap.GitCommitHash,
		&snap.GitTag,
		&snap.GitBranch,
		&snap.VersionMajor,
		&snap.VersionMinor,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	snap.SnapshotType = SnapshotType(snapshotType)
	if err := json.Unmarshal([]byte(changedFiles), &snap.ChangedFiles); err != nil {
		return nil, fmt.Errorf("failed to decode changed files: %w", err)
	}
	snap.CreatedAt = parseTimestamp(createdAt)
	return &snap, nil
}
