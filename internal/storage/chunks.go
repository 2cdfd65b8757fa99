package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
)

// ChunkRepository owns the chunks table and the relationship graph.
// All writes funnel through transactions so a failed pass never leaves
// edges referencing chunks that were not committed.
type ChunkRepository struct {
	db *DB
}

// NewChunkRepository creates a chunk repository.
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const chunkColumns = `id, project_path, chunk_type, file_path, entity_name,
	content, content_hash, metadata, snapshot_id, created_at, updated_at`

// Upsert inserts the chunk or, when a chunk with the same content hash already
// exists, touches its updated_at (and metadata/snapshot linkage when supplied).
// Returns the row id and whether a new row was created. Re-processing an
// unchanged file is therefore a timestamp-only write, never a duplicate.
func (r *ChunkRepository) Upsert(chunk *Chunk) (int64, bool, error) {
	if chunk.ContentHash == "" {
		chunk.ContentHash = ComputeContentHash(chunk.Content)
	}
	now := time.Now().UTC()

	var id int64
	var created bool
	err := r.db.WithTx(func(tx *sql.Tx) error {
		err := tx.QueryRow(
			"SELECT id FROM chunks WHERE content_hash = ?", chunk.ContentHash,
		).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.Exec(`
				INSERT INTO chunks (project_path, chunk_type, file_path, entity_name,
					content, content_hash, metadata, snapshot_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				chunk.ProjectPath,
				string(chunk.ChunkType),
				chunk.FilePath,
				chunk.EntityName,
				chunk.Content,
				chunk.ContentHash,
				chunk.Metadata,
				chunk.SnapshotID,
				now.Format(time.RFC3339),
				now.Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get chunk id: %w", err)
			}
			created = true
			return nil

		case err != nil:
			return fmt.Errorf("failed to look up chunk by hash: %w", err)

		default:
			_, err := tx.Exec(`
				UPDATE chunks
				SET updated_at = ?,
				    metadata = COALESCE(?, metadata),
				    snapshot_id = COALESCE(?, snapshot_id)
				WHERE id = ?
			`, now.Format(time.RFC3339), chunk.Metadata, chunk.SnapshotID, id)
			if err != nil {
				return fmt.Errorf("failed to touch chunk: %w", err)
			}
			return nil
		}
	})
	if err != nil {
		return 0, false, err
	}

	chunk.ID = id
	return id, created, nil
}

// Link creates a directed, typed edge between two existing chunks.
// Fails with NOT_FOUND when either endpoint is absent. Idempotent on the
// (from, to, type) triple: re-linking updates metadata instead of duplicating.
func (r *ChunkRepository) Link(from, to int64, relType RelationshipType, metadata *string) (int64, error) {
	var id int64
	err := r.db.WithTx(func(tx *sql.Tx) error {
		for _, endpoint := range []int64{from, to} {
			var exists int64
			err := tx.QueryRow("SELECT id FROM chunks WHERE id = ?", endpoint).Scan(&exists)
			if err == sql.ErrNoRows {
				return opErrors.New(opErrors.NotFound,
					fmt.Sprintf("chunk %d does not exist", endpoint), nil)
			}
			if err != nil {
				return fmt.Errorf("failed to check chunk %d: %w", endpoint, err)
			}
		}

		err := tx.QueryRow(`
			INSERT INTO chunk_relationships (from_chunk_id, to_chunk_id, relationship_type, metadata, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (from_chunk_id, to_chunk_id, relationship_type)
			DO UPDATE SET metadata = COALESCE(excluded.metadata, chunk_relationships.metadata)
			RETURNING id
		`, from, to, string(relType), metadata, time.Now().UTC().Format(time.RFC3339)).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to link chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByID retrieves a chunk by id, or nil if it does not exist.
func (r *ChunkRepository) GetByID(id int64) (*Chunk, error) {
	row := r.db.QueryRow("SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return chunk, nil
}

// Query returns chunks matching the filter, ordered by created_at then id
// ascending. Re-issuing the same query yields a fresh, consistent result.
func (r *ChunkRepository) Query(q ChunkQuery) ([]*Chunk, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + chunkColumns + " FROM chunks WHERE 1=1")
	var args []interface{}

	if q.ProjectPath != "" {
		sb.WriteString(" AND project_path = ?")
		args = append(args, q.ProjectPath)
	}
	if len(q.ChunkTypes) > 0 {
		sb.WriteString(" AND chunk_type IN (?" + strings.Repeat(",?", len(q.ChunkTypes)-1) + ")")
		for _, ct := range q.ChunkTypes {
			args = append(args, string(ct))
		}
	}
	if q.FilePath != "" {
		sb.WriteString(" AND file_path = ?")
		args = append(args, q.FilePath)
	} else if q.FilePathPrefix != "" {
		sb.WriteString(" AND file_path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(q.FilePathPrefix)+"%")
	}
	if q.EntityName != "" {
		sb.WriteString(" AND entity_name = ?")
		args = append(args, q.EntityName)
	}

	sb.WriteString(" ORDER BY created_at, id")

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	} else if q.Offset > 0 {
		// SQLite requires LIMIT before OFFSET
		sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, q.Offset)
	}

	rows, err := r.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// Relationships returns the edges touching a chunk, outgoing or incoming.
func (r *ChunkRepository) Relationships(chunkID int64, outgoing bool) ([]*ChunkRelationship, error) {
	column := "to_chunk_id"
	if outgoing {
		column = "from_chunk_id"
	}

	rows, err := r.db.Query(`
		SELECT id, from_chunk_id, to_chunk_id, relationship_type, metadata, created_at
		FROM chunk_relationships WHERE `+column+` = ?
		ORDER BY id
	`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*ChunkRelationship
	for rows.Next() {
		var rel ChunkRelationship
		var relType, createdAt string
		if err := rows.Scan(&rel.ID, &rel.FromChunkID, &rel.ToChunkID, &relType, &rel.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rel.RelationshipType = RelationshipType(relType)
		rel.CreatedAt = parseTimestamp(createdAt)
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return rels, nil
}

// DeleteProject removes every chunk of a project. Relationship edges go with
// them via cascade. This is the explicit administrative purge; nothing calls
// it automatically.
func (r *ChunkRepository) DeleteProject(projectPath string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM chunks WHERE project_path = ?", projectPath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project chunks: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var chunk Chunk
	var chunkType, createdAt, updatedAt string

	err := row.Scan(
		&chunk.ID,
		&chunk.ProjectPath,
		&chunkType,
		&chunk.FilePath,
		&chunk.EntityName,
		&chunk.Content,
		&chunk.ContentHash,
		&chunk.Metadata,
		&chunk.SnapshotID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	chunk.ChunkType = ChunkType(chunkType)
	chunk.CreatedAt = parseTimestamp(createdAt)
	chunk.UpdatedAt = parseTimestamp(updatedAt)
	return &chunk, nil
}

// parseTimestamp parses an RFC3339 instant, falling back to the zero time for
// rows written by hand or by older versions.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
