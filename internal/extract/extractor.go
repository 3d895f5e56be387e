// Package extract walks compilation units in parallel and turns every
// method declaration and call site into call facts.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// Config holds extractor settings.
type Config struct {
	// Workers is the size of the worker pool. Zero means runtime.NumCPU().
	Workers int
	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Result is the merged output of one extraction.
type Result struct {
	Facts       []pattern.Fact
	Diagnostics []diag.Diagnostic
	// Units is the number of units walked.
	Units int
}

// Extractor applies a pattern catalog to units.
type Extractor struct {
	catalog *pattern.Catalog
	index   *pattern.Index
	workers int
	log     *slog.Logger
}

// New creates an Extractor over the units known to index.
func New(catalog *pattern.Catalog, index *pattern.Index, cfg Config) *Extractor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{catalog: catalog, index: index, workers: workers, log: logger}
}

// Workers returns the pool size.
func (e *Extractor) Workers() int { return e.workers }

// collector is the single merge point shared by workers.
type collector struct {
	mu    sync.Mutex
	facts []pattern.Fact
	diags []diag.Diagnostic
}

func (c *collector) add(facts []pattern.Fact, diags []diag.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facts = append(c.facts, facts...)
	c.diags = append(c.diags, diags...)
}

// Extract walks every canonical unit with a fixed-size worker pool. Units
// already submitted always complete; a failure inside one unit becomes a
// diagnostic and never aborts the others. The multiset of facts does not
// depend on input order or worker count.
func (e *Extractor) Extract(ctx context.Context, units []*unit.CompilationUnit) Result {
	c := &collector{}
	c.add(nil, e.index.Duplicates())

	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	walked := 0
	for _, u := range units {
		if !e.index.Canonical(u) {
			continue
		}
		walked++
		g.Go(func() error {
			facts, diags := e.extractUnit(u)
			c.add(facts, diags)
			return nil
		})
	}
	_ = g.Wait()

	e.log.DebugContext(ctx, "extraction complete",
		slog.Int("units", walked),
		slog.Int("facts", len(c.facts)),
		slog.Int("diagnostics", len(c.diags)),
		slog.Int("workers", e.workers))

	return Result{Facts: c.facts, Diagnostics: c.diags, Units: walked}
}

// extractUnit walks one unit. A panic is recovered into an EXTRACTION_FAILED
// diagnostic and the facts gathered so far are kept.
func (e *Extractor) extractUnit(u *unit.CompilationUnit) (facts []pattern.Fact, diags []diag.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			diags = append(diags, diag.Diagnostic{
				Kind:     diag.ExtractionFailed,
				Severity: diag.SeverityError,
				Subject:  "type:" + u.QualifiedName(),
				Message:  fmt.Sprintf("extraction aborted: %v", r),
				Position: unit.Position{File: u.File},
			})
		}
	}()

	for i := range u.Methods {
		m := &u.Methods[i]
		scope := pattern.Scope{Unit: u, Method: m, Index: e.index}

		facts = append(facts, pattern.Fact{
			Kind:     pattern.FactDeclared,
			Status:   pattern.StatusResolved,
			Source:   m.ID,
			Layer:    u.Layer,
			UnitKind: u.Kind,
			Position: m.Position,
		})
		if f, ok := e.catalog.MatchMethod(m, scope); ok {
			facts = append(facts, f)
		}

		for j := range m.Body {
			node := &m.Body[j]
			if node.Kind != unit.NodeCall {
				continue
			}
			site := node.Call
			if d, bad := malformed(site, m, j); bad {
				diags = append(diags, d)
				continue
			}
			if site.Caller.IsZero() {
				// Units are shared across workers; bind a copy.
				bound := *site
				bound.Caller = m.ID
				site = &bound
			}
			if f, ok := e.catalog.Match(site, scope); ok {
				facts = append(facts, f)
			}
		}
	}
	return facts, diags
}

// malformed checks the shape of a call node.
func malformed(site *unit.CallSite, m *unit.Method, idx int) (diag.Diagnostic, bool) {
	reason := ""
	pos := m.Position
	switch {
	case site == nil:
		reason = "call node has no call site"
	case site.Member == "":
		reason = "call site has no member name"
		pos = site.Position
	}
	if reason == "" {
		return diag.Diagnostic{}, false
	}
	return diag.Diagnostic{
		Kind:     diag.MalformedCallSite,
		Severity: diag.SeverityWarning,
		Subject:  "method:" + m.ID.String(),
		Message:  fmt.Sprintf("body node %d: %s", idx, reason),
		Position: pos,
	}, true
}
