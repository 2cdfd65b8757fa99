package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/Rixmerz/opcode/internal/storage"
)

// Archive holds a fully decoded export stream.
type Archive struct {
	Header        Header
	Chunks        []*storage.Chunk
	Relationships []*storage.ChunkRelationship
	Trailer       Trailer
}

// ReadArchive decodes an archive previously produced by Export and checks
// its trailer counts against the records actually read.
func ReadArchive(r io.Reader) (*Archive, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)

	var archive Archive
	if err := dec.Decode(&archive.Header); err != nil {
		return nil, fmt.Errorf("failed to read archive header: %w", err)
	}
	if archive.Header.Kind != "header" {
		return nil, fmt.Errorf("archive does not start with a header record")
	}
	if archive.Header.Version != ArchiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", archive.Header.Version)
	}

	sawTrailer := false
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read archive record: %w", err)
		}

		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("malformed archive record: %w", err)
		}

		switch probe.Kind {
		case "chunk":
			var rec ChunkRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("malformed chunk record: %w", err)
			}
			archive.Chunks = append(archive.Chunks, rec.Chunk)
		case "relationship":
			var rec RelationshipRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("malformed relationship record: %w", err)
			}
			archive.Relationships = append(archive.Relationships, rec.Relationship)
		case "trailer":
			if err := json.Unmarshal(raw, &archive.Trailer); err != nil {
				return nil, fmt.Errorf("malformed trailer record: %w", err)
			}
			sawTrailer = true
		default:
			return nil, fmt.Errorf("unknown archive record kind %q", probe.Kind)
		}

		if sawTrailer {
			break
		}
	}

	if !sawTrailer {
		return nil, fmt.Errorf("archive is truncated: missing trailer")
	}
	if archive.Trailer.Chunks != len(archive.Chunks) {
		return nil, fmt.Errorf("archive chunk count mismatch: trailer says %d, read %d",
			archive.Trailer.Chunks, len(archive.Chunks))
	}
	if archive.Trailer.Relationships != len(archive.Relationships) {
		return nil, fmt.Errorf("archive relationship count mismatch: trailer says %d, read %d",
			archive.Trailer.Relationships, len(archive.Relationships))
	}

	return &archive, nil
}
