package generate

import "time"

// AstMetadata describes a serialized syntax tree chunk.
type AstMetadata struct {
	Language        string `json:"language"`
	NodeCount       int    `json:"nodeCount"`
	MaxDepth        int    `json:"maxDepth"`
	HasSyntaxErrors bool   `json:"hasSyntaxErrors"`
}

// CallgraphMetadata describes a callgraph chunk.
type CallgraphMetadata struct {
	IsStatic      bool     `json:"isStatic"`
	EntryPoints   []string `json:"entryPoints"`
	ExternalCalls []string `json:"externalCalls"`
	CallCount     int      `json:"callCount"`
}

// CommitMetadata describes a commit history chunk.
type CommitMetadata struct {
	CommitHash    string    `json:"commitHash"`
	Author        string    `json:"author"`
	CommitDate    time.Time `json:"commitDate"`
	FilesModified []string  `json:"filesModified"`
}

// TestMetadata describes a test file chunk.
type TestMetadata struct {
	TestCount      int      `json:"testCount"`
	TestNames      []string `json:"testNames"`
	AssertionCount int      `json:"assertionCount"`
}

// ManifestMetadata describes a parsed project manifest chunk.
type ManifestMetadata struct {
	Format       string   `json:"format"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}
