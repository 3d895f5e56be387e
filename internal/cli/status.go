package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/config"
	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/graph/embedded"
)

func newStatusCmd() *cobra.Command {
	var sf storeFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show saved graphs and their statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Trace Graph Status\n")
			fmt.Fprintf(out, "==================\n\n")

			err := withStore(&sf, func(ctx context.Context, store *embedded.Store) error {
				return printStoreStatus(ctx, out, store)
			})
			if err != nil {
				fmt.Fprintf(out, "  %v\n\n", err)
			}

			projects := config.ListProjects()
			fmt.Fprintf(out, "  Registered projects (%s):\n", config.RegistryPath())
			if len(projects) == 0 {
				fmt.Fprintf(out, "    (none)\n")
			}
			for _, p := range projects {
				fmt.Fprintf(out, "    %-20s %s\n", p.Name, p.Root)
				fmt.Fprintf(out, "    %-20s store %s\n", "", p.Store)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sf.dir, "store", "", "graph store directory")
	cmd.Flags().StringVar(&sf.project, "project", "", "registered project whose store to read")
	return cmd
}

func printStoreStatus(ctx context.Context, out io.Writer, store *embedded.Store) error {
	meta, err := store.Meta(ctx)
	if errors.Is(err, embedded.ErrEmpty) {
		return fmt.Errorf("the store holds no graph yet")
	}
	if err != nil {
		return err
	}
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	stats := snap.Graph().Stats()

	fmt.Fprintf(out, "  Root:        %s\n", meta.Root)
	if meta.Version != "" {
		fmt.Fprintf(out, "  Analyzed by: daotrace %s\n", meta.Version)
	}
	fmt.Fprintf(out, "  Saved at:    %s\n", meta.SavedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Total nodes: %d\n", meta.Nodes)
	fmt.Fprintf(out, "  Total edges: %d\n\n", meta.Edges)

	if len(stats.Nodes) > 0 {
		fmt.Fprintf(out, "  Nodes by kind:\n")
		for _, k := range sortedKeys(stats.Nodes) {
			fmt.Fprintf(out, "    %-20s %d\n", k, stats.Nodes[k])
		}
		fmt.Fprintln(out)
	}
	if len(stats.Edges) > 0 {
		fmt.Fprintf(out, "  Edges by kind:\n")
		for _, k := range sortedKeys(stats.Edges) {
			fmt.Fprintf(out, "    %-20s %d\n", k, stats.Edges[k])
		}
		fmt.Fprintln(out)
	}

	external := 0
	for _, n := range snap.Nodes {
		if n.HasTag(graph.TagExternallyResolved) {
			external++
		}
	}
	fmt.Fprintf(out, "  Externally resolved DAO methods: %d\n\n", external)

	bySeverity := diag.BySeverity(snap.Diagnostics)
	fmt.Fprintf(out, "  Diagnostics: %d\n", meta.Diagnostics)
	for _, s := range []diag.Severity{diag.SeverityError, diag.SeverityWarning, diag.SeverityInfo} {
		if bySeverity[s] > 0 {
			fmt.Fprintf(out, "    %-20s %d\n", s, bySeverity[s])
		}
	}
	fmt.Fprintln(out)
	return nil
}

func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
