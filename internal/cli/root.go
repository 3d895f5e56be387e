// Package cli implements the command-line interface for daotrace.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/config"
)

// Exit codes.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitInvalidPatternConfig = 2
)

var (
	cfgFile string
	verbose bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daotrace",
		Short: "daotrace - trace logic methods to DAO methods to mapped statements",
		Long: `daotrace analyzes a layered Java code base and resolves which logic
methods call which DAO methods, and which "Namespace.Operation" mapped
statements each DAO method executes.

Commands:
  analyze    Analyze a source tree and write the call graph
  query      Query a graph saved with analyze --store
  export     Copy a saved graph to Neo4j, SQLite or JSON lines
  import     Load a JSON-lines export into a store
  status     Show saved graphs and their statistics
  config     View or initialize configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .daotrace.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalidPatternConfig):
		return ExitInvalidPatternConfig
	default:
		return ExitFailure
	}
}

// newLogger writes text logs to w, at debug level with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrInvalidPatternConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
