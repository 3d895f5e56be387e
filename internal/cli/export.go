package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/graph/embedded"
	"github.com/imyousuf/daotrace/internal/graph/neo4jgraph"
	"github.com/imyousuf/daotrace/internal/graph/sqlite"
)

func newExportCmd() *cobra.Command {
	var sf storeFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a saved graph to Neo4j, SQLite or JSON lines",
		Long: `Export copies the graph saved by 'daotrace analyze --store' to another store.

Subcommands:
  neo4j    Load the graph into a Neo4j database
  sqlite   Write the graph to a SQLite file
  jsonl    Write the graph as JSON lines (readable by 'daotrace import')`,
	}

	cmd.PersistentFlags().StringVar(&sf.dir, "store", "", "graph store directory")
	cmd.PersistentFlags().StringVar(&sf.project, "project", "", "registered project whose store to read")

	cmd.AddCommand(newExportNeo4jCmd(&sf))
	cmd.AddCommand(newExportSQLiteCmd(&sf))
	cmd.AddCommand(newExportJSONLCmd(&sf))
	return cmd
}

// loadSnapshot reads the saved snapshot from the selected store.
func loadSnapshot(sf *storeFlags) (*graph.Snapshot, error) {
	var snap *graph.Snapshot
	err := withStore(sf, func(ctx context.Context, store *embedded.Store) error {
		var err error
		snap, err = store.Load(ctx)
		return err
	})
	return snap, err
}

// exportTo loads the saved snapshot and writes it to sink.
func exportTo(cmd *cobra.Command, sf *storeFlags, sink graph.Sink, target string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := loadSnapshot(sf)
	if err != nil {
		return err
	}
	if err := sink.Write(ctx, snap); err != nil {
		return fmt.Errorf("export to %s: %w", target, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d nodes, %d edges and %d diagnostics to %s\n",
		len(snap.Nodes), len(snap.Edges), len(snap.Diagnostics), target)
	return nil
}

func newExportNeo4jCmd(sf *storeFlags) *cobra.Command {
	var (
		uri       string
		username  string
		password  string
		database  string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "neo4j",
		Short: "Load the graph into a Neo4j database",
		Long: `Load the saved graph into Neo4j, replacing any graph loaded before.

Connection settings default to the neo4j section of the configuration and
can be overridden with flags or DAOTRACE_NEO4J_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := neo4jgraph.Options{
				URI:       cfg.Neo4j.URI,
				Username:  cfg.Neo4j.Username,
				Password:  cfg.Neo4j.Password,
				Database:  cfg.Neo4j.Database,
				BatchSize: batchSize,
				Logger:    newLogger(cmd.ErrOrStderr()),
			}
			flags := cmd.Flags()
			if flags.Changed("uri") {
				opts.URI = uri
			}
			if flags.Changed("username") {
				opts.Username = username
			}
			if flags.Changed("password") {
				opts.Password = password
			}
			if flags.Changed("database") {
				opts.Database = database
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			loader, err := neo4jgraph.New(ctx, opts)
			if err != nil {
				return err
			}
			defer loader.Close(ctx)
			return exportTo(cmd, sf, loader, opts.URI)
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "bolt URI (default from config)")
	cmd.Flags().StringVar(&username, "username", "", "Neo4j user (default from config)")
	cmd.Flags().StringVar(&password, "password", "", "Neo4j password (default from config)")
	cmd.Flags().StringVar(&database, "database", "", "Neo4j database (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", neo4jgraph.DefaultBatchSize, "rows per UNWIND batch")
	return cmd
}

func newExportSQLiteCmd(sf *storeFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sqlite",
		Short: "Write the graph to a SQLite file",
		Long: `Write the saved graph to a SQLite database file. Existing rows are
replaced. The file has nodes, edges and diagnostics tables and a traces
view joining logic methods to DAO methods to statements.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			db, err := sqlite.Open(output)
			if err != nil {
				return err
			}
			defer db.Close()
			return exportTo(cmd, sf, db, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "daotrace.db", "SQLite file to write")
	return cmd
}

func newExportJSONLCmd(sf *storeFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "jsonl",
		Short: "Write the graph as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(sf, func(ctx context.Context, store *embedded.Store) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create output: %w", err)
					}
					defer f.Close()
					w = f
				}
				if err := store.Export(ctx, w); err != nil {
					return fmt.Errorf("export: %w", err)
				}
				if output != "" && output != "-" {
					newLogger(cmd.ErrOrStderr()).Info("exported graph", slog.String("path", output))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var storeDir string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON-lines export into a store",
		Long: `Import replaces the contents of a graph store with a file written by
'daotrace export jsonl'. Use - to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storeDir == "" {
				storeDir = cfg.Store.Dir
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}

			store, err := embedded.Open(storeDir)
			if err != nil {
				return fmt.Errorf("open graph store: %w", err)
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.Import(ctx, r); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			meta, err := store.Meta(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes, %d edges and %d diagnostics into %s\n",
				meta.Nodes, meta.Edges, meta.Diagnostics, storeDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "graph store directory (default from config)")
	return cmd
}
