package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/graph/embedded"
)

func newQueryCmd() *cobra.Command {
	var sf storeFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a graph saved with analyze --store",
		Long: `Query reads a graph saved by 'daotrace analyze --store'.

A node may be named by its full id (method:pkg.Type#name(params) or
statement:Namespace.op) or by any unique substring of it.

Subcommands:
  node          Show nodes matching a name
  callers       List the callers of a method or statement
  callees       List what a method calls
  chain         Show logic to DAO to statement chains through a method
  diagnostics   List stored diagnostics`,
	}

	cmd.PersistentFlags().StringVar(&sf.dir, "store", "", "graph store directory")
	cmd.PersistentFlags().StringVar(&sf.project, "project", "", "registered project whose store to read")

	cmd.AddCommand(newQueryNodeCmd(&sf))
	cmd.AddCommand(newQueryNeighborsCmd(&sf, "callers", "List the callers of a method or statement"))
	cmd.AddCommand(newQueryNeighborsCmd(&sf, "callees", "List what a method calls"))
	cmd.AddCommand(newQueryChainCmd(&sf))
	cmd.AddCommand(newQueryDiagnosticsCmd(&sf))
	return cmd
}

// withStore opens the selected store for the duration of fn.
func withStore(sf *storeFlags, fn func(ctx context.Context, store *embedded.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, *sf)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}

// resolveNode finds the single node a user query names.
func resolveNode(ctx context.Context, store *embedded.Store, query string) (graph.Node, error) {
	n, err := store.Node(ctx, query)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, embedded.ErrNotFound) {
		return graph.Node{}, err
	}
	matches, err := store.Find(ctx, query)
	if err != nil {
		return graph.Node{}, err
	}
	switch len(matches) {
	case 0:
		return graph.Node{}, fmt.Errorf("no node matches %q", query)
	case 1:
		return matches[0], nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%q matches %d nodes:", query, len(matches))
	for i, m := range matches {
		if i == 10 {
			fmt.Fprintf(&b, "\n  ... and %d more", len(matches)-i)
			break
		}
		fmt.Fprintf(&b, "\n  %s", m.ID)
	}
	return graph.Node{}, errors.New(b.String())
}

func newQueryNodeCmd(sf *storeFlags) *cobra.Command {
	var (
		kind    string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "node [name]",
		Short: "Show nodes matching a name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(sf, func(ctx context.Context, store *embedded.Store) error {
				var (
					nodes []graph.Node
					err   error
				)
				switch {
				case len(args) == 1:
					nodes, err = store.Find(ctx, args[0])
				case kind != "":
					nodes, err = store.NodesOfKind(ctx, graph.NodeKind(strings.ToUpper(kind)))
				default:
					return fmt.Errorf("give a name or --kind")
				}
				if err != nil {
					return err
				}
				if kind != "" && len(args) == 1 {
					nodes = filterKind(nodes, graph.NodeKind(strings.ToUpper(kind)))
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, nodes)
				}
				if len(nodes) == 0 {
					fmt.Fprintln(out, "No results found.")
					return nil
				}
				fmt.Fprintf(out, "%-16s  %-60s  %s\n", "Kind", "Name", "Location")
				fmt.Fprintf(out, "%-16s  %-60s  %s\n", "----------------", strings.Repeat("-", 60), "--------")
				for _, n := range nodes {
					fmt.Fprintf(out, "%-16s  %-60s  %s\n", n.Kind, nodeName(n), location(n))
				}
				fmt.Fprintf(out, "\n%d result(s)\n", len(nodes))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by node kind (logic_method, dao_method, statement, method)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newQueryNeighborsCmd(sf *storeFlags, use, short string) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   use + " <node>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(sf, func(ctx context.Context, store *embedded.Store) error {
				n, err := resolveNode(ctx, store, args[0])
				if err != nil {
					return err
				}
				var neighbors []embedded.Neighbor
				if use == "callers" {
					neighbors, err = store.Callers(ctx, n.ID)
				} else {
					neighbors, err = store.Callees(ctx, n.ID)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, neighbors)
				}
				fmt.Fprintf(out, "%s of %s\n\n", strings.ToUpper(use[:1])+use[1:], nodeName(n))
				if len(neighbors) == 0 {
					fmt.Fprintln(out, "  (none)")
					return nil
				}
				for _, nb := range neighbors {
					fmt.Fprintf(out, "  %-18s %s %s\n", nb.Edge.Kind, nodeName(nb.Node), edgeDetails(nb.Edge))
				}
				fmt.Fprintf(out, "\n%d result(s)\n", len(neighbors))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newQueryChainCmd(sf *storeFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "chain <node>",
		Short: "Show logic to DAO to statement chains through a logic or DAO method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(sf, func(ctx context.Context, store *embedded.Store) error {
				n, err := resolveNode(ctx, store, args[0])
				if err != nil {
					return err
				}
				chains, err := store.Chains(ctx, n.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, chains)
				}
				if len(chains) == 0 {
					fmt.Fprintf(out, "No chains through %s.\n", nodeName(n))
					return nil
				}
				for _, c := range chains {
					fmt.Fprintf(out, "%s\n  -> %s %s\n", nodeName(c.Logic), nodeName(c.DAO), edgeDetails(c.Call))
					if c.DAO.HasTag(graph.TagExternallyResolved) {
						fmt.Fprintf(out, "       [%s]\n", graph.TagExternallyResolved)
					}
					for _, s := range c.Statements {
						fmt.Fprintf(out, "       -> %s %s\n", nodeName(s.Node), edgeDetails(s.Edge))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newQueryDiagnosticsCmd(sf *storeFlags) *cobra.Command {
	var (
		kind     string
		severity string
		subject  string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List stored diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(sf, func(ctx context.Context, store *embedded.Store) error {
				ds, err := store.Diagnostics(ctx, embedded.DiagnosticFilter{
					Kind:     diag.Kind(strings.ToUpper(kind)),
					Severity: diag.Severity(strings.ToLower(severity)),
					Subject:  subject,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					if ds == nil {
						ds = []diag.Diagnostic{}
					}
					return writeJSON(out, ds)
				}
				if len(ds) == 0 {
					fmt.Fprintln(out, "No diagnostics.")
					return nil
				}
				for _, d := range ds {
					pos := ""
					if d.Position.File != "" {
						pos = d.Position.String() + ": "
					}
					fmt.Fprintf(out, "%-7s %s%s %s\n", d.Severity, pos, d.Kind, d.Message)
				}
				fmt.Fprintf(out, "\n%d diagnostic(s)\n", len(ds))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by diagnostic kind (e.g. UNRESOLVED_STATEMENT_REF)")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity (info, warning, error)")
	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject substring")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func filterKind(nodes []graph.Node, kind graph.NodeKind) []graph.Node {
	var out []graph.Node
	for _, n := range nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// nodeName is the node id without its kind prefix.
func nodeName(n graph.Node) string {
	if _, rest, ok := strings.Cut(n.ID, ":"); ok {
		return rest
	}
	return n.ID
}

func location(n graph.Node) string {
	if n.Position == nil {
		return ""
	}
	return n.Position.String()
}

func edgeDetails(e graph.Edge) string {
	s := fmt.Sprintf("(x%d", e.OccurrenceCount)
	if len(e.Access) > 0 {
		s += " " + strings.Join(e.Access, ",")
	}
	return s + ")"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
