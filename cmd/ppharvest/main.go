// ppharvest retrieves historical Reddit records from the PullPush archive:
// paced, concurrent pagination with duplicate reconciliation, optional nested
// comments, and JSON output keyed by record ID.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arkivist/pullpush-archive-client/pkg/logging"
)

var version = "0.1.0"

func main() {
	// Missing .env is fine; explicit env vars still apply.
	godotenv.Load()

	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configFile string

func buildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ppharvest",
		Short:   "ppharvest: a PullPush archive harvester",
		Long:    "ppharvest sweeps the PullPush Reddit archive with concurrent,\nrate-limited pagination and writes deduplicated JSON results.",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (YAML)")

	rootCmd.AddCommand(buildFetchCommand())

	return rootCmd
}

// setupLogging applies the config's log section process-wide.
func setupLogging(cfg *Config) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
}
