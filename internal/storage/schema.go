package storage

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database.
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		// snapshots first: chunks and error_logs both reference it
		if err := createSnapshotsTable(tx); err != nil {
			return err
		}
		if err := createChunksTable(tx); err != nil {
			return err
		}
		if err := createChunkRelationshipsTable(tx); err != nil {
			return err
		}
		if err := createBusinessRulesTable(tx); err != nil {
			return err
		}
		if err := createErrorLogsTable(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations runs any pending schema migrations.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)

	// Migrations are applied sequentially as the schema evolves.
	return nil
}

func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createChunksTable creates the chunks table. content_hash is globally unique:
// two chunks with identical content are the same chunk.
func createChunksTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			chunk_type TEXT NOT NULL,
			file_path TEXT,
			entity_name TEXT,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			metadata TEXT,
			snapshot_id INTEGER REFERENCES snapshots(id) ON DELETE SET NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_path)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(chunk_type)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_entity ON chunks(entity_name)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_snapshot ON chunks(snapshot_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createChunkRelationshipsTable creates the relationship graph table.
// The (from, to, type) triple is unique; re-linking updates metadata.
func createChunkRelationshipsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS chunk_relationships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_chunk_id INTEGER NOT NULL,
			to_chunk_id INTEGER NOT NULL,
			relationship_type TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL,
			UNIQUE (from_chunk_id, to_chunk_id, relationship_type),
			FOREIGN KEY (from_chunk_id) REFERENCES chunks(id) ON DELETE CASCADE,
			FOREIGN KEY (to_chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chunk_relationships table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_relationships_from ON chunk_relationships(from_chunk_id)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_to ON chunk_relationships(to_chunk_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createBusinessRulesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS business_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			entity_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			rule_description TEXT NOT NULL,
			ai_interpretation TEXT NOT NULL,
			user_correction TEXT,
			is_validated INTEGER NOT NULL DEFAULT 0,
			validation_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create business_rules table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_business_rules_project ON business_rules(project_path)",
		"CREATE INDEX IF NOT EXISTS idx_business_rules_entity ON business_rules(entity_name)",
		"CREATE INDEX IF NOT EXISTS idx_business_rules_pending ON business_rules(project_path, is_validated)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createSnapshotsTable creates the dual-timeline snapshots table.
// Agent rows carry their anchor's version_major denormalized, so rewinding
// the master line never orphans agent history.
func createSnapshotsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			snapshot_type TEXT NOT NULL CHECK(snapshot_type IN ('master', 'agent')),
			parent_snapshot_id INTEGER,
			message TEXT NOT NULL,
			user_message TEXT,
			changed_files TEXT NOT NULL,
			diff_summary TEXT,
			metadata TEXT,
			git_commit_hash TEXT,
			git_tag TEXT,
			git_branch TEXT,
			version_major INTEGER NOT NULL DEFAULT 1,
			version_minor INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY (parent_snapshot_id) REFERENCES snapshots(id) ON DELETE SET NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots(project_path)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_type ON snapshots(snapshot_type)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_parent ON snapshots(parent_snapshot_id)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_version ON snapshots(project_path, version_major, version_minor)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createErrorLogsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS error_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			snapshot_id INTEGER,
			file_path TEXT,
			entity_name TEXT,
			error_type TEXT NOT NULL,
			message TEXT NOT NULL,
			stacktrace TEXT,
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE SET NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create error_logs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_error_logs_project ON error_logs(project_path)",
		"CREATE INDEX IF NOT EXISTS idx_error_logs_snapshot ON error_logs(snapshot_id)",
		"CREATE INDEX IF NOT EXISTS idx_error_logs_signature ON error_logs(project_path, error_type, message)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
