package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/chunking"
	"github.com/Rixmerz/opcode/internal/storage"
	"github.com/Rixmerz/opcode/internal/timeline"
)

var (
	snapProject string
	snapMessage string
	snapFiles   string
	snapParent  int64
	snapType    string
	snapLimit   int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage the project timeline",
	Long: `Snapshots record project state on two parallel timelines: masters (V1,
V2, ...) capture user intent, agents (v1.1, v1.2, ...) capture agent
work anchored to a master. Rewinding a master removes every later
master; agent history survives.`,
}

var snapshotCreateMasterCmd = &cobra.Command{
	Use:   "create-master",
	Short: "Create a master snapshot",
	Run:   runSnapshotCreateMaster,
}

var snapshotCreateAgentCmd = &cobra.Command{
	Use:   "create-agent",
	Short: "Create an agent snapshot anchored to a master",
	Run:   runSnapshotCreateAgent,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in timeline order",
	Run:   runSnapshotList,
}

var snapshotRewindCmd = &cobra.Command{
	Use:   "rewind <snapshot-id>",
	Short: "Rewind the master timeline to a snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotRewind,
}

func init() {
	for _, c := range []*cobra.Command{snapshotCreateMasterCmd, snapshotCreateAgentCmd, snapshotListCmd} {
		c.Flags().StringVar(&snapProject, "project", "", "Project path (default: store root)")
	}

	snapshotCreateMasterCmd.Flags().StringVar(&snapMessage, "message", "", "User intent message")
	snapshotCreateMasterCmd.Flags().StringVar(&snapFiles, "files", "", "Changed files (comma-separated)")
	snapshotCreateMasterCmd.Flags().Int64Var(&snapParent, "parent", 0, "Parent master snapshot id")
	_ = snapshotCreateMasterCmd.MarkFlagRequired("message")

	snapshotCreateAgentCmd.Flags().StringVar(&snapMessage, "message", "", "Agent work description")
	snapshotCreateAgentCmd.Flags().StringVar(&snapFiles, "files", "", "Changed files (comma-separated)")
	snapshotCreateAgentCmd.Flags().Int64Var(&snapParent, "anchor", 0, "Master snapshot id to anchor to")
	_ = snapshotCreateAgentCmd.MarkFlagRequired("message")
	_ = snapshotCreateAgentCmd.MarkFlagRequired("anchor")

	snapshotListCmd.Flags().StringVar(&snapType, "type", "", "Filter by timeline: master or agent")
	snapshotListCmd.Flags().IntVar(&snapLimit, "limit", 0, "Maximum number of results")

	snapshotCmd.AddCommand(snapshotCreateMasterCmd, snapshotCreateAgentCmd, snapshotListCmd, snapshotRewindCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func newTimelineEngine() (*timeline.Engine, func()) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	db := mustOpenStore(root, logger)

	orchestrator := chunking.NewOrchestrator(db, logger)
	engine := timeline.NewEngine(storage.NewSnapshotRepository(db), cfg.Git, orchestrator, logger)
	return engine, func() { _ = db.Close() }
}

func snapshotProject() string {
	if snapProject != "" {
		return snapProject
	}
	return mustGetRoot()
}

func splitFiles(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func runSnapshotCreateMaster(cmd *cobra.Command, args []string) {
	engine, closeStore := newTimelineEngine()
	defer closeStore()

	var parent *int64
	if snapParent > 0 {
		parent = &snapParent
	}

	snap, err := engine.CreateMaster(context.Background(), snapshotProject(), snapMessage, splitFiles(snapFiles), parent)
	if err != nil {
		fail("failed to create master snapshot: %v", err)
	}
	printJSON(snap)
}

func runSnapshotCreateAgent(cmd *cobra.Command, args []string) {
	engine, closeStore := newTimelineEngine()
	defer closeStore()

	snap, err := engine.CreateAgent(context.Background(), snapshotProject(), snapMessage, splitFiles(snapFiles), snapParent)
	if err != nil {
		fail("failed to create agent snapshot: %v", err)
	}
	printJSON(snap)
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	engine, closeStore := newTimelineEngine()
	defer closeStore()

	var typeFilter *storage.SnapshotType
	switch snapType {
	case "":
	case "master":
		t := storage.SnapshotMaster
		typeFilter = &t
	case "agent":
		t := storage.SnapshotAgent
		typeFilter = &t
	default:
		fail("unknown snapshot type %q (want master or agent)", snapType)
	}

	snaps, err := engine.List(snapshotProject(), typeFilter, snapLimit)
	if err != nil {
		fail("failed to list snapshots: %v", err)
	}
	if snaps == nil {
		snaps = []*storage.Snapshot{}
	}
	printJSON(snaps)
}

func runSnapshotRewind(cmd *cobra.Command, args []string) {
	engine, closeStore := newTimelineEngine()
	defer closeStore()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fail("invalid snapshot id %q", args[0])
	}

	snap, removed, err := engine.Rewind(id)
	if err != nil {
		fail("failed to rewind: %v", err)
	}
	printJSON(map[string]interface{}{
		"rewoundTo":        snap,
		"snapshotsRemoved": removed,
	})
}
