// Package pipeline runs a full analysis: discover files, parse and classify
// them, validate the unit stream, extract facts, build the graph, and resolve
// it into a frozen graph with diagnostics.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/discover"
	"github.com/imyousuf/daotrace/internal/extract"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/metrics"
	"github.com/imyousuf/daotrace/internal/parser"
	"github.com/imyousuf/daotrace/internal/parser/java"
	"github.com/imyousuf/daotrace/internal/parser/mapperxml"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/resolve"
	"github.com/imyousuf/daotrace/internal/tracing"
	"github.com/imyousuf/daotrace/internal/unit"
)

const mapperExt = ".xml"

// Options configures an Analyzer.
type Options struct {
	// Workers bounds both parsing and extraction. Zero means runtime.NumCPU().
	Workers int
	// Patterns tunes the default pattern catalog. Nil selects
	// pattern.DefaultOptions().
	Patterns *pattern.Options
	// Rules classify units into layers. Nil selects parser.DefaultRules().
	Rules []parser.LayerRule
	// Exclude holds gitignore-style patterns skipped during discovery.
	Exclude []string
	// MaxFileSize skips larger source files. Zero means no limit.
	MaxFileSize int64
	// SkipMappers disables mapper XML indexing and the mapper cross-check.
	SkipMappers bool

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// Tracer wraps each stage in a span. Nil uses the global provider.
	Tracer trace.Tracer
}

// Summary counts what a run consumed and produced.
type Summary struct {
	Files       int           `json:"files"`
	MapperFiles int           `json:"mapperFiles"`
	Statements  int           `json:"statements"`
	Units       int           `json:"units"`
	Facts       int           `json:"facts"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of a run.
type Result struct {
	Graph       *graph.Frozen
	Diagnostics []diag.Diagnostic
	// Statements is the mapper index, or nil when mappers were skipped.
	Statements *mapperxml.Index
	Summary    Summary
}

// Snapshot returns the sorted, serializable form of the result.
func (r *Result) Snapshot() *graph.Snapshot {
	return graph.NewSnapshot(r.Graph, r.Diagnostics)
}

// Analyzer runs analyses. It holds no per-run state and may be reused.
type Analyzer struct {
	opts     Options
	patterns pattern.Options
	registry *parser.Registry
	classify *parser.Classifier
	log      *slog.Logger
	tracer   trace.Tracer
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	patterns := pattern.DefaultOptions()
	if opts.Patterns != nil {
		patterns = *opts.Patterns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	return &Analyzer{
		opts:     opts,
		patterns: patterns,
		registry: parser.NewRegistry(java.NewParser()),
		classify: parser.NewClassifier(opts.Rules),
		log:      logger,
		tracer:   tracer,
	}
}

// parsed is one file's slot in the parse stage.
type parsed struct {
	result *parser.ParseResult
	mapper *mapperxml.Mapper
	diags  []diag.Diagnostic
}

// Run analyzes every source and mapper file under root. Positions in the
// result are relative to root.
func (a *Analyzer) Run(ctx context.Context, root string) (res *Result, err error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "analyze", trace.WithAttributes(attribute.String("root", root)))
	defer func() {
		a.opts.Metrics.Run(err)
		endSpan(span, err)
	}()

	files, err := a.discover(ctx, root)
	if err != nil {
		return nil, err
	}

	slots, err := a.parse(ctx, files)
	if err != nil {
		return nil, err
	}

	var (
		units   []*unit.CompilationUnit
		diags   []diag.Diagnostic
		summary = Summary{Files: len(files)}
	)
	statements := mapperxml.NewIndex()
	for _, s := range slots {
		diags = append(diags, s.diags...)
		if s.result != nil {
			a.classify.Classify(s.result)
			units = append(units, s.result.Units...)
			diags = append(diags, s.result.Diagnostics...)
		}
		if s.mapper != nil {
			diags = append(diags, statements.Add(s.mapper)...)
		}
	}
	summary.MapperFiles = statements.Files()
	summary.Statements = statements.Len()

	var index resolve.StatementIndex
	if !a.opts.SkipMappers {
		index = statements
	}
	res, err = a.analyze(ctx, units, index)
	if err != nil {
		return nil, err
	}
	if !a.opts.SkipMappers {
		res.Statements = statements
	}
	res.Diagnostics = append(res.Diagnostics, diags...)
	diag.Sort(res.Diagnostics)
	a.opts.Metrics.Diagnostics(diags)

	summary.Units = res.Summary.Units
	summary.Facts = res.Summary.Facts
	summary.Duration = time.Since(start)
	res.Summary = summary

	a.log.InfoContext(ctx, "analysis complete",
		slog.String("root", root),
		slog.Int("files", summary.Files),
		slog.Int("units", summary.Units),
		slog.Int("nodes", len(res.Graph.Nodes())),
		slog.Int("edges", len(res.Graph.Edges())),
		slog.Int("diagnostics", len(res.Diagnostics)),
		slog.Duration("duration", summary.Duration))
	return res, nil
}

// AnalyzeUnits runs the resolution engine over already parsed units.
// statements may be nil to skip the mapper cross-check. An invalid unit
// stream fails the run with an error wrapping unit.ErrInvalidUnit.
func (a *Analyzer) AnalyzeUnits(ctx context.Context, units []*unit.CompilationUnit, statements resolve.StatementIndex) (res *Result, err error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "analyze-units")
	defer func() { endSpan(span, err) }()

	res, err = a.analyze(ctx, units, statements)
	if err != nil {
		return nil, err
	}
	res.Summary.Duration = time.Since(start)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, units []*unit.CompilationUnit, statements resolve.StatementIndex) (*Result, error) {
	var idx *pattern.Index
	if err := a.stage(ctx, "validate", func(context.Context) error {
		if err := unit.Validate(units); err != nil {
			return fmt.Errorf("%s: %w", unit.ErrInvalidUnit, err)
		}
		idx = pattern.NewIndex(units, a.patterns)
		return nil
	}); err != nil {
		return nil, err
	}

	var extracted extract.Result
	_ = a.stage(ctx, "extract", func(ctx context.Context) error {
		ex := extract.New(pattern.NewDefault(a.patterns), idx, extract.Config{
			Workers: a.opts.Workers,
			Logger:  a.log,
		})
		extracted = ex.Extract(ctx, units)
		return nil
	})
	a.opts.Metrics.Units(extracted.Units)
	a.opts.Metrics.Facts(extracted.Facts)

	var g *graph.Graph
	if err := a.stage(ctx, "build", func(context.Context) error {
		var err error
		g, err = graph.Build(extracted.Facts)
		if err != nil {
			return fmt.Errorf("build graph: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var (
		frozen *graph.Frozen
		diags  []diag.Diagnostic
	)
	if err := a.stage(ctx, "resolve", func(context.Context) error {
		var err error
		frozen, diags, err = resolve.New(resolve.Options{Statements: statements, Logger: a.log}).Resolve(g)
		if err != nil {
			return fmt.Errorf("resolve graph: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	diags = append(diags, extracted.Diagnostics...)
	diag.Sort(diags)
	a.opts.Metrics.Diagnostics(diags)
	a.opts.Metrics.Graph(frozen.Stats())

	return &Result{
		Graph:       frozen,
		Diagnostics: diags,
		Summary: Summary{
			Units: extracted.Units,
			Facts: len(extracted.Facts),
		},
	}, nil
}

func (a *Analyzer) discover(ctx context.Context, root string) ([]discover.File, error) {
	var files []discover.File
	err := a.stage(ctx, "discover", func(ctx context.Context) error {
		exts := a.registry.Extensions()
		if !a.opts.SkipMappers {
			exts = append(exts, mapperExt)
		}
		var err error
		files, err = discover.Walk(ctx, root, discover.Options{
			Extensions:  exts,
			Exclude:     a.opts.Exclude,
			MaxFileSize: a.opts.MaxFileSize,
			Logger:      a.log,
		})
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}
		return nil
	})
	return files, err
}

// parse reads and parses files concurrently. Each file owns one slot, so
// the unit order equals the sorted file order whatever the worker count.
func (a *Analyzer) parse(ctx context.Context, files []discover.File) ([]parsed, error) {
	slots := make([]parsed, len(files))
	err := a.stage(ctx, "parse", func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.opts.Workers)
		for i, f := range files {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[i] = a.parseFile(f)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (a *Analyzer) parseFile(f discover.File) parsed {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		a.opts.Metrics.File(fileType(f), err)
		return parsed{diags: []diag.Diagnostic{parseFailed(f, err)}}
	}

	if f.Ext == mapperExt {
		m, err := mapperxml.Parse(f.Rel, bytes.NewReader(content))
		if errors.Is(err, mapperxml.ErrNotMapper) {
			return parsed{}
		}
		a.opts.Metrics.File(fileType(f), err)
		if err != nil {
			return parsed{diags: []diag.Diagnostic{parseFailed(f, err)}}
		}
		return parsed{mapper: m}
	}

	p, ok := a.registry.For(f.Rel)
	if !ok {
		return parsed{}
	}
	result, err := p.ParseFile(f.Rel, content)
	a.opts.Metrics.File(fileType(f), err)
	if err != nil {
		return parsed{diags: []diag.Diagnostic{parseFailed(f, err)}}
	}
	return parsed{result: result}
}

// stage runs fn inside a child span and records its duration.
func (a *Analyzer) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, name)
	err := fn(ctx)
	endSpan(span, err)
	d := time.Since(start)
	a.opts.Metrics.Stage(name, d)
	a.log.DebugContext(ctx, "stage finished", slog.String("stage", name), slog.Duration("duration", d))
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func parseFailed(f discover.File, err error) diag.Diagnostic {
	return diag.Diagnostic{
		Kind:     diag.ParseFailed,
		Severity: diag.SeverityError,
		Subject:  "file:" + f.Rel,
		Message:  err.Error(),
		Position: unit.Position{File: f.Rel},
	}
}

func fileType(f discover.File) string {
	if f.Ext == mapperExt {
		return "xml"
	}
	return string(parser.LangJava)
}
