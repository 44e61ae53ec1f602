// Mnemod is the maintenance CLI for the tri-store memory engine. It removes
// data items, datasets, or everything a user owns across the relational,
// graph, and vector stores, and prunes documents that retrieval has stopped
// touching.
//
// Configuration is loaded from a YAML file plus environment overrides; a
// local .env file is read first when present. See internal/config for the
// full surface.
//
// Usage:
//
//	# Delete one data item from a dataset
//	mnemod delete --dataset-name docs --data-id 6f1c...
//
//	# Delete a dataset, its items, and its raw files without prompting
//	mnemod delete --dataset-name docs --force
//
//	# Delete every dataset the default user may delete
//	mnemod delete --all
//
//	# Preview what a 30-day prune would remove
//	mnemod prune --older-than 720h --dry-run
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// userIDFlag selects the acting principal; empty means the default user.
	userIDFlag string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	// A local .env supplements the environment; absence is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mnemod",
	Short: "Maintenance CLI for the mnemod memory engine",
	Long: `mnemod manages destructive operations against the memory engine's
three stores: relational metadata, knowledge graph, and vector collections.

Deletes preserve graph structure still referenced by surviving data and keep
every vector collection consistent with the graph. All commands act as the
default user unless --user-id is given.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&userIDFlag, "user-id", "", "acting principal id (default: built-in default user)")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(datasetsCmd)
}
