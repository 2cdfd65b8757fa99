package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/export"
)

var (
	exportProject string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a project's chunks as a compressed archive",
	Long: `Export streams every chunk of a project, with its relationship edges,
as zstd-compressed JSON records.

Examples:
  opcode export --out project.opcode.zst
  opcode export --project /path/to/repo --out repo.opcode.zst`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportProject, "project", "", "Project path (default: store root)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file path")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	project := exportProject
	if project == "" {
		project = root
	}

	db := mustOpenStore(root, logger)
	defer func() { _ = db.Close() }()

	out, err := os.Create(exportOut)
	if err != nil {
		fail("failed to create output file: %v", err)
	}
	defer func() { _ = out.Close() }()

	stats, err := export.NewExporter(db, logger).Export(context.Background(), out, project)
	if err != nil {
		_ = os.Remove(exportOut)
		fail("export failed: %v", err)
	}
	printJSON(stats)
}
