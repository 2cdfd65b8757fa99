package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/config"
	"github.com/Rixmerz/opcode/internal/slogutil"
	"github.com/Rixmerz/opcode/internal/storage"
	"github.com/Rixmerz/opcode/internal/version"
)

var (
	rootFlag     string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "opcode",
	Short: "opcode - code chunk repository",
	Long: `opcode maintains a content-addressed repository of code chunks with a
typed relationship graph, a business rule validation workflow, and a
dual-timeline snapshot engine for rewinding project state.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("opcode version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Store root directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (default: from config)")
}

// mustGetRoot resolves the store root from --root or the working directory.
func mustGetRoot() string {
	if rootFlag != "" {
		return rootFlag
	}
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
	return wd
}

// mustLoadConfig loads the store configuration, exiting on parse errors.
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds the slog logger used by all commands. Logs go to stderr
// so stdout stays clean JSON.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromString(level))
}

// mustOpenStore opens the chunk store under root.
func mustOpenStore(root string, logger *slog.Logger) *storage.DB {
	db, err := storage.Open(root, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	return db
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// fail prints an error and exits.
func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
