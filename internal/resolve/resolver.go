// Package resolve runs the validation passes over a built call graph and
// freezes it.
package resolve

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/pattern"
)

// StatementIndex answers lookups against externally configured statements,
// such as those declared in mapper XML files.
type StatementIndex interface {
	// HasNamespace reports whether any statement is declared under ns.
	HasNamespace(ns string) bool
	// Lookup returns the declaring tag of a statement.
	Lookup(ref pattern.StatementRef) (tag string, ok bool)
}

// Options configures a Resolver.
type Options struct {
	// Statements enables the mapper cross-check. Nil skips it.
	Statements StatementIndex
	Logger     *slog.Logger
}

// Resolver validates a graph and freezes it.
type Resolver struct {
	statements StatementIndex
	log        *slog.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{statements: opts.Statements, log: logger}
}

// Resolve runs every pass in order, freezes g, and returns the frozen graph
// with its sorted diagnostics. Resolving an already frozen graph fails with
// graph.ErrFrozen.
func (r *Resolver) Resolve(g *graph.Graph) (*graph.Frozen, []diag.Diagnostic, error) {
	if g.Frozen() {
		return nil, nil, graph.ErrFrozen
	}
	var diags []diag.Diagnostic

	// 0. Assign node kinds from layer hints, inferring unknown layers.
	inferred, err := r.assignRoles(g)
	if err != nil {
		return nil, nil, fmt.Errorf("assign roles: %w", err)
	}
	r.log.Debug("roles assigned", slog.Int("inferred", inferred))

	// 1. Report sites that produced no edge.
	pending := r.reportPending(g)
	diags = append(diags, pending...)
	r.log.Debug("unresolved references", slog.Int("count", len(pending)))

	// 2. Tag methods bound by external configuration.
	tagged, err := r.markExternallyBound(g)
	if err != nil {
		return nil, nil, fmt.Errorf("mark externally bound: %w", err)
	}
	r.log.Debug("externally resolved methods", slog.Int("count", tagged))

	// 3. Report methods nothing reaches.
	orphans := r.findOrphans(g)
	diags = append(diags, orphans...)
	r.log.Debug("unreached methods", slog.Int("count", len(orphans)))

	// 4. Record methods with several statement targets.
	multi, err := r.recordStatementTargets(g)
	if err != nil {
		return nil, nil, fmt.Errorf("record statement targets: %w", err)
	}
	r.log.Debug("methods with several statements", slog.Int("count", multi))

	// 5. Cross-check statements against the mapper index.
	if r.statements != nil {
		unknown, err := r.crossCheck(g)
		if err != nil {
			return nil, nil, fmt.Errorf("mapper cross-check: %w", err)
		}
		diags = append(diags, unknown...)
		r.log.Debug("unknown statements", slog.Int("count", len(unknown)))
	}

	frozen := g.Freeze()
	diag.Sort(diags)
	return frozen, diags, nil
}
