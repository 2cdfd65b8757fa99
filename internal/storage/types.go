package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ChunkType identifies one of the ten kinds of extracted project knowledge.
type ChunkType string

const (
	ChunkTypeRawSource       ChunkType = "raw_source"
	ChunkTypeAst             ChunkType = "ast"
	ChunkTypeCallgraph       ChunkType = "callgraph"
	ChunkTypeTests           ChunkType = "tests"
	ChunkTypeCommitHistory   ChunkType = "commit_history"
	ChunkTypeStateConfig     ChunkType = "state_config"
	ChunkTypeProjectMetadata ChunkType = "project_metadata"
	ChunkTypeBusinessRules   ChunkType = "business_rules"
	ChunkTypeSnapshot        ChunkType = "snapshot"
	ChunkTypeErrorLog        ChunkType = "error_log"
)

// AllChunkTypes lists every chunk kind in canonical order.
var AllChunkTypes = []ChunkType{
	ChunkTypeRawSource,
	ChunkTypeAst,
	ChunkTypeCallgraph,
	ChunkTypeTests,
	ChunkTypeCommitHistory,
	ChunkTypeStateConfig,
	ChunkTypeProjectMetadata,
	ChunkTypeBusinessRules,
	ChunkTypeSnapshot,
	ChunkTypeErrorLog,
}

// Valid reports whether t is one of the ten known kinds.
func (t ChunkType) Valid() bool {
	for _, known := range AllChunkTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RelationshipType is the fixed vocabulary of directed edges between chunks.
type RelationshipType string

const (
	RelDependsOn           RelationshipType = "depends_on"
	RelCalls               RelationshipType = "calls"
	RelTestedBy            RelationshipType = "tested_by"
	RelImplementsRule      RelationshipType = "implements_rule"
	RelModifiedWith        RelationshipType = "modified_with"
	RelAssociatedWithError RelationshipType = "associated_with_error"
	RelConfiguresFor       RelationshipType = "configures_for"
)

// Chunk is one unit of extracted project knowledge, content-addressed by hash.
type Chunk struct {
	ID          int64      `json:"id"`
	ProjectPath string     `json:"projectPath"`
	ChunkType   ChunkType  `json:"chunkType"`
	FilePath    *string    `json:"filePath,omitempty"`
	EntityName  *string    `json:"entityName,omitempty"`
	Content     string     `json:"content"`
	ContentHash string     `json:"contentHash"`
	Metadata    *string    `json:"metadata,omitempty"` // kind-specific JSON side channel
	SnapshotID  *int64     `json:"snapshotId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ChunkRelationship is a directed, typed edge between two chunks.
// The (from, to, type) triple is unique; the same pair may carry several types.
type ChunkRelationship struct {
	ID               int64            `json:"id"`
	FromChunkID      int64            `json:"fromChunkId"`
	ToChunkID        int64            `json:"toChunkId"`
	RelationshipType RelationshipType `json:"relationshipType"`
	Metadata         *string          `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// BusinessRule is a domain fact about code, pending until a human validates it.
type BusinessRule struct {
	ID                int64      `json:"id"`
	ProjectPath       string     `json:"projectPath"`
	EntityName        string     `json:"entityName"`
	FilePath          string     `json:"filePath"`
	RuleDescription   string     `json:"ruleDescription"`
	AiInterpretation  string     `json:"aiInterpretation"`
	UserCorrection    *string    `json:"userCorrection,omitempty"`
	IsValidated       bool       `json:"isValidated"`
	ValidationDate    *time.Time `json:"validationDate,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// SnapshotType distinguishes the two parallel timelines.
type SnapshotType string

const (
	// SnapshotMaster is the user-intent timeline.
	SnapshotMaster SnapshotType = "master"
	// SnapshotAgent is the agent-execution timeline, anchored to master versions.
	SnapshotAgent SnapshotType = "agent"
)

// Snapshot is an immutable point in the master or agent timeline.
type Snapshot struct {
	ID               int64        `json:"id"`
	ProjectPath      string       `json:"projectPath"`
	SnapshotType     SnapshotType `json:"snapshotType"`
	ParentSnapshotID *int64       `json:"parentSnapshotId,omitempty"`
	Message          string       `json:"message"`
	UserMessage      *string      `json:"userMessage,omitempty"`
	ChangedFiles     []string     `json:"changedFiles"`
	DiffSummary      *string      `json:"diffSummary,omitempty"`
	Metadata         *string      `json:"metadata,omitempty"`
	GitCommitHash    *string      `json:"gitCommitHash,omitempty"`
	GitTag           *string      `json:"gitTag,omitempty"`
	GitBranch        *string      `json:"gitBranch,omitempty"`
	VersionMajor     int          `json:"versionMajor"`
	VersionMinor     *int         `json:"versionMinor,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// ErrorLog is a deduplicated, occurrence-counted record of a recurring problem.
type ErrorLog struct {
	ID              int64     `json:"id"`
	ProjectPath     string    `json:"projectPath"`
	SnapshotID      *int64    `json:"snapshotId,omitempty"`
	FilePath        *string   `json:"filePath,omitempty"`
	EntityName      *string   `json:"entityName,omitempty"`
	ErrorType       string    `json:"errorType"`
	Message         string    `json:"message"`
	Stacktrace      *string   `json:"stacktrace,omitempty"`
	OccurrenceCount int       `json:"occurrenceCount"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
	IsResolved      bool      `json:"isResolved"`
}

// ChunkQuery filters a chunk search. Zero values mean "no filter".
type ChunkQuery struct {
	ProjectPath    string
	ChunkTypes     []ChunkType
	FilePath       string
	FilePathPrefix string // prefix match; ignored when FilePath is set
	EntityName     string
	Limit          int
	Offset         int
}

// ComputeContentHash returns the hex SHA-256 digest of content.
// Two chunks with the same digest are the same chunk.
func ComputeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
