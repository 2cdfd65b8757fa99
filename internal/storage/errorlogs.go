package storage

import (
	"database/sql"
	"fmt"
	"time"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
)

// ErrorLogRepository owns the error_logs table. An error's identity is the
// (project_path, error_type, message, file_path) signature; repeats of the
// same signature fold into one row.
type ErrorLogRepository struct {
	db *DB
}

// NewErrorLogRepository creates an error log repository.
func NewErrorLogRepository(db *DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

const errorLogColumns = `id, project_path, snapshot_id, file_path, entity_name,
	error_type, message, stacktrace, occurrence_count, first_seen, last_seen, is_resolved`

// Log records an error occurrence. If an unresolved row with the same
// signature exists, its occurrence count and last_seen advance. If a resolved
// row matches, it re-opens in place: the same mistake happening again is the
// old problem back, not a new one. Otherwise a fresh row is inserted. Returns
// the row id and whether it was newly created.
func (r *ErrorLogRepository) Log(entry *ErrorLog) (int64, bool, error) {
	var id int64
	var created bool

	err := r.db.WithTx(func(tx *sql.Tx) error {
		// file_path participates in the signature, NULL matching NULL.
		row := tx.QueryRow(`
			SELECT id FROM error_logs
			WHERE project_path = ? AND error_type = ? AND message = ?
			  AND file_path IS ?
			ORDER BY id LIMIT 1
		`, entry.ProjectPath, entry.ErrorType, entry.Message, entry.FilePath)

		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339)

		var existingID int64
		err := row.Scan(&existingID)
		if err == nil {
			_, err = tx.Exec(`
				UPDATE error_logs
				SET occurrence_count = occurrence_count + 1,
				    last_seen = ?,
				    is_resolved = 0,
				    snapshot_id = COALESCE(?, snapshot_id),
				    entity_name = COALESCE(?, entity_name),
				    stacktrace = COALESCE(?, stacktrace)
				WHERE id = ?
			`, nowStr, entry.SnapshotID, entry.EntityName, entry.Stacktrace, existingID)
			if err != nil {
				return fmt.Errorf("failed to update error log: %w", err)
			}
			id = existingID
			created = false
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up error log: %w", err)
		}

		res, err := tx.Exec(`
			INSERT INTO error_logs (project_path, snapshot_id, file_path, entity_name,
				error_type, message, stacktrace, occurrence_count, first_seen, last_seen, is_resolved)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, 0)
		`,
			entry.ProjectPath,
			entry.SnapshotID,
			entry.FilePath,
			entry.EntityName,
			entry.ErrorType,
			entry.Message,
			entry.Stacktrace,
			nowStr,
			nowStr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert error log: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get error log id: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	entry.ID = id
	return id, created, nil
}

// Resolve marks an error log entry as resolved. Resolving twice is a no-op;
// a missing id fails with NOT_FOUND.
func (r *ErrorLogRepository) Resolve(id int64) error {
	res, err := r.db.Exec("UPDATE error_logs SET is_resolved = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to resolve error log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count resolved rows: %w", err)
	}
	if affected == 0 {
		return opErrors.New(opErrors.NotFound,
			fmt.Sprintf("error log %d does not exist", id), nil)
	}
	return nil
}

// GetByID retrieves an error log entry by id, or nil if it does not exist.
func (r *ErrorLogRepository) GetByID(id int64) (*ErrorLog, error) {
	row := r.db.QueryRow("SELECT "+errorLogColumns+" FROM error_logs WHERE id = ?", id)
	entry, err := scanErrorLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get error log: %w", err)
	}
	return entry, nil
}

// List returns a project's error log entries, most recently seen first.
// When unresolvedOnly is set, resolved entries are skipped.
func (r *ErrorLogRepository) List(projectPath string, unresolvedOnly bool, limit int) ([]*ErrorLog, error) {
	query := "SELECT " + errorLogColumns + " FROM error_logs WHERE project_path = ?"
	args := []any{projectPath}

	if unresolvedOnly {
		query += " AND is_resolved = 0"
	}
	query += " ORDER BY last_seen DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []*ErrorLog
	for rows.Next() {
		entry, err := scanErrorLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error logs: %w", err)
	}
	return entries, nil
}

func scanErrorLog(row rowScanner) (*ErrorLog, error) {
	var entry ErrorLog
	var firstSeen, lastSeen string

	err := row.Scan(
		&entry.ID,
		&entry.ProjectPath,
		&entry.SnapshotID,
		&entry.FilePath,
		&entry.EntityName,
		&entry.ErrorType,
		&entry.Message,
		&entry.Stacktrace,
		&entry.OccurrenceCount,
		&firstSeen,
		&lastSeen,
		&entry.IsResolved,
	)
	if err != nil {
		return nil, err
	}

	entry.FirstSeen = parseTimestamp(firstSeen)
	entry.LastSeen = parseTimestamp(lastSeen)
	return &entry, nil
}
