package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/storage"
)

var (
	searchProject string
	searchTypes   string
	searchFile    string
	searchPrefix  string
	searchEntity  string
	searchLimit   int
	searchOffset  int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored chunks",
	Long: `Search chunks by project, type, file path, or entity name. Filters
combine with AND; file matching is exact or by prefix.

Examples:
  opcode search --project /path/to/repo
  opcode search --types ast,callgraph --file src/main.go
  opcode search --prefix src/api/ --limit 10`,
	Run: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchProject, "project", "", "Filter by project path")
	searchCmd.Flags().StringVar(&searchTypes, "types", "", "Filter by chunk types (comma-separated)")
	searchCmd.Flags().StringVar(&searchFile, "file", "", "Filter by exact file path")
	searchCmd.Flags().StringVar(&searchPrefix, "prefix", "", "Filter by file path prefix")
	searchCmd.Flags().StringVar(&searchEntity, "entity", "", "Filter by entity name")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Result offset for paging")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	db := mustOpenStore(root, logger)
	defer func() { _ = db.Close() }()

	q := storage.ChunkQuery{
		ProjectPath:    searchProject,
		FilePath:       searchFile,
		FilePathPrefix: searchPrefix,
		EntityName:     searchEntity,
		Limit:          searchLimit,
		Offset:         searchOffset,
	}
	if searchTypes != "" {
		for _, raw := range strings.Split(searchTypes, ",") {
			ct := storage.ChunkType(strings.TrimSpace(raw))
			if !ct.Valid() {
				fail("unknown chunk type %q", raw)
			}
			q.ChunkTypes = append(q.ChunkTypes, ct)
		}
	}

	chunks, err := storage.NewChunkRepository(db).Query(q)
	if err != nil {
		fail("search failed: %v", err)
	}
	if chunks == nil {
		chunks = []*storage.Chunk{}
	}
	printJSON(chunks)
}
