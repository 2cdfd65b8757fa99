// Package export streams a project's chunks and relationships as a
// zstd-compressed archive of JSON records.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Rixmerz/opcode/internal/storage"
)

// ArchiveVersion identifies the record layout of an archive.
const ArchiveVersion = 1

// batchSize controls how many chunks are loaded per page while streaming.
const batchSize = 200

// Header is the first record of every archive.
type Header struct {
	Kind        string    `json:"kind"` // "header"
	Version     int       `json:"version"`
	ProjectPath string    `json:"projectPath"`
	Generated   time.Time `json:"generated"`
}

// ChunkRecord wraps a chunk in the archive stream.
type ChunkRecord struct {
	Kind  string         `json:"kind"` // "chunk"
	Chunk *storage.Chunk `json:"chunk"`
}

// RelationshipRecord wraps a relationship edge in the archive stream.
type RelationshipRecord struct {
	Kind         string                     `json:"kind"` // "relationship"
	Relationship *storage.ChunkRelationship `json:"relationship"`
}

// Trailer is the last record of an archive and carries totals so a reader
// can verify it received the whole stream.
type Trailer struct {
	Kind          string `json:"kind"` // "trailer"
	Chunks        int    `json:"chunks"`
	Relationships int    `json:"relationships"`
}

// Stats summarizes a completed export.
type Stats struct {
	ProjectPath   string `json:"projectPath"`
	Chunks        int    `json:"chunks"`
	Relationships int    `json:"relationships"`
}

// Exporter writes chunk archives.
type Exporter struct {
	chunks *storage.ChunkRepository
	logger *slog.Logger
}

// NewExporter creates an exporter over the given store.
func NewExporter(db *storage.DB, logger *slog.Logger) *Exporter {
	return &Exporter{
		chunks: storage.NewChunkRepository(db),
		logger: logger,
	}
}

// Export streams every chunk of a project, and the outgoing edges of those
// chunks, to w as newline-delimited JSON wrapped in a zstd frame. The
// stream is paged so a large project never sits fully in memory.
func (e *Exporter) Export(ctx context.Context, w io.Writer, projectPath string) (*Stats, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)

	header := Header{
		Kind:        "header",
		Version:     ArchiveVersion,
		ProjectPath: projectPath,
		Generated:   time.Now().UTC(),
	}
	if err := enc.Encode(header); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("failed to write archive header: %w", err)
	}

	stats := &Stats{ProjectPath: projectPath}

	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return nil, err
		}

		page, err := e.chunks.Query(storage.ChunkQuery{
			ProjectPath: projectPath,
			Limit:       batchSize,
			Offset:      offset,
		})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("failed to page chunks: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, chunk := range page {
			if err := enc.Encode(ChunkRecord{Kind: "chunk", Chunk: chunk}); err != nil {
				_ = zw.Close()
				return nil, fmt.Errorf("failed to write chunk record: %w", err)
			}
			stats.Chunks++

			rels, err := e.chunks.Relationships(chunk.ID, true)
			if err != nil {
				_ = zw.Close()
				return nil, fmt.Errorf("failed to load relationships: %w", err)
			}
			for _, rel := range rels {
				if err := enc.Encode(RelationshipRecord{Kind: "relationship", Relationship: rel}); err != nil {
					_ = zw.Close()
					return nil, fmt.Errorf("failed to write relationship record: %w", err)
				}
				stats.Relationships++
			}
		}

		if len(page) < batchSize {
			break
		}
	}

	trailer := Trailer{
		Kind:          "trailer",
		Chunks:        stats.Chunks,
		Relationships: stats.Relationships,
	}
	if err := enc.Encode(trailer); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("failed to write archive trailer: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush archive: %w", err)
	}

	e.logger.Info("exported project archive",
		"projectPath", projectPath,
		"chunks", stats.Chunks,
		"relationships", stats.Relationships)

	return stats, nil
}
