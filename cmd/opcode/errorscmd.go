package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/storage"
)

var (
	errProject    string
	errUnresolved bool
	errLimit      int
	errType       string
	errMessage    string
	errFile       string
	errEntity     string
	errStacktrace string
	errSnapshotID int64
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Manage the deduplicated error log",
	Long: `The error log deduplicates recurring problems by signature (project,
type, message, file). Logging a known signature bumps its occurrence
count; logging a resolved one re-opens it.`,
}

var errorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged errors, most recent first",
	Run:   runErrorsList,
}

var errorsLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Record an error occurrence",
	Run:   runErrorsLog,
}

var errorsResolveCmd = &cobra.Command{
	Use:   "resolve <error-id>",
	Short: "Mark an error as resolved",
	Args:  cobra.ExactArgs(1),
	Run:   runErrorsResolve,
}

func init() {
	errorsListCmd.Flags().StringVar(&errProject, "project", "", "Filter by project path")
	errorsListCmd.Flags().BoolVar(&errUnresolved, "unresolved", false, "Only show unresolved errors")
	errorsListCmd.Flags().IntVar(&errLimit, "limit", 50, "Maximum number of results")

	errorsLogCmd.Flags().StringVar(&errProject, "project", "", "Project path (default: store root)")
	errorsLogCmd.Flags().StringVar(&errType, "type", "", "Error type")
	errorsLogCmd.Flags().StringVar(&errMessage, "message", "", "Error message")
	errorsLogCmd.Flags().StringVar(&errFile, "file", "", "File the error occurred in")
	errorsLogCmd.Flags().StringVar(&errEntity, "entity", "", "Entity the error relates to")
	errorsLogCmd.Flags().StringVar(&errStacktrace, "stacktrace", "", "Stacktrace text")
	errorsLogCmd.Flags().Int64Var(&errSnapshotID, "snapshot", 0, "Snapshot id the error was seen at")
	_ = errorsLogCmd.MarkFlagRequired("type")
	_ = errorsLogCmd.MarkFlagRequired("message")

	errorsCmd.AddCommand(errorsListCmd, errorsLogCmd, errorsResolveCmd)
	rootCmd.AddCommand(errorsCmd)
}

func newErrorLogRepo() (*storage.ErrorLogRepository, func()) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	db := mustOpenStore(root, logger)
	return storage.NewErrorLogRepository(db), func() { _ = db.Close() }
}

func runErrorsList(cmd *cobra.Command, args []string) {
	repo, closeStore := newErrorLogRepo()
	defer closeStore()

	list, err := repo.List(errProject, errUnresolved, errLimit)
	if err != nil {
		fail("failed to list errors: %v", err)
	}
	if list == nil {
		list = []*storage.ErrorLog{}
	}
	printJSON(list)
}

func runErrorsLog(cmd *cobra.Command, args []string) {
	repo, closeStore := newErrorLogRepo()
	defer closeStore()

	project := errProject
	if project == "" {
		project = mustGetRoot()
	}

	entry := &storage.ErrorLog{
		ProjectPath: project,
		ErrorType:   errType,
		Message:     errMessage,
	}
	if errFile != "" {
		entry.FilePath = &errFile
	}
	if errEntity != "" {
		entry.EntityName = &errEntity
	}
	if errStacktrace != "" {
		entry.Stacktrace = &errStacktrace
	}
	if errSnapshotID > 0 {
		entry.SnapshotID = &errSnapshotID
	}

	id, created, err := repo.Log(entry)
	if err != nil {
		fail("failed to log error: %v", err)
	}

	logged, err := repo.GetByID(id)
	if err != nil {
		fail("failed to load logged error: %v", err)
	}
	printJSON(map[string]interface{}{
		"created": created,
		"error":   logged,
	})
}

func runErrorsResolve(cmd *cobra.Command, args []string) {
	repo, closeStore := newErrorLogRepo()
	defer closeStore()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fail("invalid error id %q", args[0])
	}

	if err := repo.Resolve(id); err != nil {
		fail("failed to resolve error: %v", err)
	}

	resolved, err := repo.GetByID(id)
	if err != nil {
		fail("failed to load resolved error: %v", err)
	}
	printJSON(resolved)
}
