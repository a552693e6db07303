// Package main provides convctl, the operations CLI for the conversion
// engine. Local commands run conversion and extraction in process; admin
// commands talk to the shared database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/observability"
)

var (
	cfgFile    string
	outputJSON bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "convctl",
	Short: "Conversion engine CLI for conversions, extraction, and administration",
	Long: `convctl provides commands for operating the conversion engine.

Use this tool to:
- Convert documents between formats locally
- Extract positioned text elements from PDFs
- Apply content modifications to PDFs
- Inspect and retry conversion jobs
- Provision tenants and apply schema migrations

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logLevel := cfg.Observability.LogLevel
		if verbose {
			logLevel = "debug"
		}
		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       logLevel,
			Format:      logFormat,
			ServiceName: "convctl",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newModifyCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newTenantCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("convctl 0.3.0")
		},
	}
}
