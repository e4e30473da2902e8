// Package cli implements the repobrain command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	configfile "github.com/repobrain/repobrain/internal/adapters/driven/config/file"
	filestore "github.com/repobrain/repobrain/internal/adapters/driven/storage/file"
	"github.com/repobrain/repobrain/internal/adapters/driven/storage/memory"
	"github.com/repobrain/repobrain/internal/adapters/driven/storage/sqlite"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "repobrain",
	Short: "Keep an engineering brain document in sync with a repository",
	Long: `repobrain turns a repository into a continuously synced engineering
brain: a root document plus release notes, architecture decision records,
engineering tasks and a documentation history, all kept up to date from
merged pull requests and direct commits.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err == nil && verbose {
			logger.SetVerbose(true)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config directory (default ~/.repobrain)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configStore opens the TOML config store for the directory selected on the
// command line.
func configStore(cmd *cobra.Command) (driven.ConfigStore, error) {
	dir, err := cmd.Flags().GetString("config")
	if err != nil {
		dir = ""
	}
	store, err := configfile.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	return store, nil
}

// openConnectionStore opens the relational store, falling back to the JSON
// file store when the database cannot be opened. The second return value is
// the history store, nil when unavailable.
func openConnectionStore(dataDir string) (driven.ConnectionStore, driven.HistoryStore, error) {
	store, err := sqlite.NewStore(dataDir)
	if err == nil {
		return store, store, nil
	}
	logger.Warn("opening sqlite store: %v, falling back to JSON store", err)

	if dataDir == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, nil, fmt.Errorf("resolving home directory: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".repobrain", "data")
	}
	fallback, err := filestore.NewStore(filepath.Join(dataDir, "connections.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening fallback store: %w", err)
	}
	return fallback, nil, nil
}

// newSessionStore builds the process-scoped session store.
func newSessionStore() driven.SessionStore {
	return memory.NewSessionStore(0)
}
