package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/chunking"
	"github.com/Rixmerz/opcode/internal/jobs"
	"github.com/Rixmerz/opcode/internal/storage"
)

var (
	processTypes   string
	processProject string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a chunking pass over a project",
	Long: `Run a full chunking pass: every requested generator walks the project,
produces chunk candidates, and the results are stored with their
relationship edges resolved.

Examples:
  opcode process
  opcode process --project /path/to/repo
  opcode process --types raw_source,tests,commit_history`,
	Run: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processProject, "project", "",
		"Project path to process (default: store root)")
	processCmd.Flags().StringVar(&processTypes, "types", "",
		"Chunk types to generate (comma-separated; default: all file-derived kinds)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	project := processProject
	if project == "" {
		project = root
	}

	db := mustOpenStore(root, logger)
	defer func() { _ = db.Close() }()

	opts := chunking.OptionsFromConfig(cfg)
	if processTypes != "" {
		var kinds []storage.ChunkType
		for _, raw := range strings.Split(processTypes, ",") {
			ct := storage.ChunkType(strings.TrimSpace(raw))
			if !ct.Valid() {
				fail("unknown chunk type %q", raw)
			}
			kinds = append(kinds, ct)
		}
		opts.ChunkTypes = kinds
	}

	orchestrator := chunking.NewOrchestrator(db, logger)

	// Long passes run through the job runner so their progress is
	// observable the same way background passes are.
	store := jobs.NewStore()
	runner := jobs.NewRunner(store, logger, jobs.DefaultRunnerConfig())
	runner.RegisterHandler(jobs.TypeProcess, func(ctx context.Context, job *jobs.Job, progress func(int)) (interface{}, error) {
		progress(10)
		result, err := orchestrator.Process(ctx, job.ProjectPath, opts)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
	runner.Start()
	defer func() { _ = runner.Stop(5 * time.Second) }()

	job := jobs.New(jobs.TypeProcess, project)
	if err := runner.Submit(job); err != nil {
		fail("failed to start processing: %v", err)
	}

	final := waitForJob(runner, job.ID)
	if final.Status != jobs.StatusCompleted {
		fail("processing failed: %s", final.Error)
	}

	var result chunking.ChunkingResult
	if err := json.Unmarshal([]byte(final.Result), &result); err != nil {
		fail("failed to decode result: %v", err)
	}
	printJSON(result)
}

func waitForJob(runner *jobs.Runner, jobID string) *jobs.Job {
	for {
		job := runner.GetJob(jobID)
		if job != nil && job.IsTerminal() {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
}
