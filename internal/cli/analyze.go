package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/config"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/graph/embedded"
	"github.com/imyousuf/daotrace/internal/metrics"
	"github.com/imyousuf/daotrace/internal/pipeline"
	"github.com/imyousuf/daotrace/internal/render"
	"github.com/imyousuf/daotrace/internal/tracing"
	"github.com/imyousuf/daotrace/internal/watcher"
)

type analyzeFlags struct {
	patternConfig string
	workers       int
	format        string
	output        string
	store         string
	metricsFile   string
	color         string
	exclude       []string
	skipMappers   bool
	trace         bool
	watch         bool
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <rootDir>",
		Short: "Analyze a source tree and write the call graph",
		Long: `Analyze discovers the Java sources and MyBatis mapper files under rootDir,
resolves logic to DAO calls and DAO to statement references, and writes
the resulting graph with its diagnostics.

Exit status is 0 on success (diagnostics included), 1 on a fatal error,
and 2 when the pattern configuration is invalid or unreadable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.patternConfig, "pattern-config", "", "pattern configuration file (YAML or TOML)")
	flags.IntVar(&f.workers, "workers", 0, "parse and extraction workers (default: one per CPU)")
	flags.StringVar(&f.format, "format", "", "output format: json, csv or text (default from config: json)")
	flags.StringVarP(&f.output, "output", "o", "", "write the result to a file instead of stdout")
	flags.StringVar(&f.store, "store", "", "also save the graph into a badger store at this directory")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write prometheus metrics in textfile format")
	flags.StringVar(&f.color, "color", "", "color for text output: auto, always or never")
	flags.StringSliceVar(&f.exclude, "exclude", nil, "extra gitignore-style patterns to skip")
	flags.BoolVar(&f.skipMappers, "skip-mappers", false, "do not index mapper XML files")
	flags.BoolVar(&f.trace, "trace", false, "print OpenTelemetry spans of each stage to stderr")
	flags.BoolVar(&f.watch, "watch", false, "re-analyze whenever sources or mappers change")

	return cmd
}

// analysis holds everything one analyze invocation reuses across runs.
type analysis struct {
	root     string
	format   render.Format
	color    string
	output   string
	store    string
	metrics  string
	analyzer *pipeline.Analyzer
	recorder *metrics.Recorder
	log      *slog.Logger
	stdout   io.Writer
}

func runAnalyze(cmd *cobra.Command, root string, f *analyzeFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	patterns := cfg.Patterns
	if f.patternConfig != "" {
		pc, err := config.LoadPatterns(f.patternConfig)
		if err != nil {
			return err
		}
		patterns = *pc
	}

	applyAnalyzeFlags(cmd, cfg, f)
	format, err := render.ParseFormat(cfg.Analyze.Format)
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("root %s is not a readable directory", root)
	}

	logger := newLogger(cmd.ErrOrStderr())
	if f.trace {
		shutdown, err := tracing.Setup(cmd.ErrOrStderr(), Version)
		if err != nil {
			return fmt.Errorf("set up tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	opts := patterns.Options()
	recorder := metrics.NewRecorder()
	a := &analysis{
		root:    root,
		format:  format,
		color:   cfg.Analyze.Color,
		output:  f.output,
		store:   f.store,
		metrics: cfg.Analyze.MetricsFile,
		analyzer: pipeline.New(pipeline.Options{
			Workers:     cfg.Analyze.Workers,
			Patterns:    &opts,
			Rules:       patterns.Rules(),
			Exclude:     cfg.Analyze.Exclude,
			MaxFileSize: cfg.Analyze.MaxFileSize,
			SkipMappers: cfg.Analyze.SkipMappers,
			Logger:      logger,
			Metrics:     recorder,
		}),
		recorder: recorder,
		log:      logger,
		stdout:   cmd.OutOrStdout(),
	}

	ctx := cmd.Context()
	if err := a.run(ctx); err != nil {
		if !f.watch {
			return err
		}
		logger.ErrorContext(ctx, "analysis failed", slog.String("error", err.Error()))
	}
	if !f.watch {
		return nil
	}
	return a.watch(ctx, cfg)
}

// applyAnalyzeFlags lets explicitly set flags override the configuration.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, f *analyzeFlags) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Analyze.Workers = f.workers
	}
	if flags.Changed("format") {
		cfg.Analyze.Format = f.format
	}
	if flags.Changed("color") {
		cfg.Analyze.Color = f.color
	}
	if flags.Changed("metrics-file") {
		cfg.Analyze.MetricsFile = f.metricsFile
	}
	if flags.Changed("skip-mappers") {
		cfg.Analyze.SkipMappers = f.skipMappers
	}
	cfg.Analyze.Exclude = append(cfg.Analyze.Exclude, f.exclude...)
}

// run performs one analysis and writes every requested output.
func (a *analysis) run(ctx context.Context) error {
	res, err := a.analyzer.Run(ctx, a.root)
	if err != nil {
		return err
	}
	snap := res.Snapshot()

	if err := a.write(snap); err != nil {
		return err
	}
	if a.store != "" {
		if err := a.save(ctx, snap); err != nil {
			return err
		}
	}
	if a.metrics != "" {
		if err := a.recorder.WriteFile(a.metrics); err != nil {
			return err
		}
	}
	return nil
}

func (a *analysis) write(snap *graph.Snapshot) error {
	if a.output == "" {
		color := false
		if out, ok := a.stdout.(*os.File); ok {
			color = render.ColorEnabled(a.color, out)
		} else {
			color = a.color == "always"
		}
		return render.Write(a.stdout, a.format, snap, render.Options{Color: color, Root: a.root})
	}

	file, err := os.Create(a.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	opts := render.Options{Color: a.color == "always", Root: a.root}
	if err := render.Write(file, a.format, snap, opts); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	a.log.Info("wrote result", slog.String("path", a.output), slog.String("format", string(a.format)))
	return nil
}

func (a *analysis) save(ctx context.Context, snap *graph.Snapshot) error {
	store, err := embedded.Open(a.store)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer store.Close()

	root, _ := filepath.Abs(a.root)
	if err := store.Save(ctx, snap, embedded.Meta{Root: root, Version: Version}); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	if err := config.RegisterProject("", root, a.store); err != nil {
		a.log.Warn("could not register project", slog.String("error", err.Error()))
	}
	a.log.Info("saved graph", slog.String("store", a.store), slog.Int("nodes", len(snap.Nodes)))
	return nil
}

// watch re-runs the analysis after every batch of changes until
// interrupted. Failed runs are logged and the previous outputs are kept.
func (a *analysis) watch(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(watcher.Config{
		Root:       a.root,
		Exclude:    cfg.Analyze.Exclude,
		Extensions: []string{".java", ".xml"},
		Debounce:   time.Duration(cfg.Analyze.DebounceMS) * time.Millisecond,
		Logger:     a.log,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	batches, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	a.log.Info("watching for changes", slog.String("root", a.root))

	for batch := range batches {
		a.log.Info("change detected", slog.Int("files", len(batch.Events)), slog.String("first", batch.Events[0].Path))
		if err := a.run(ctx); err != nil {
			a.log.Error("analysis failed", slog.String("error", err.Error()))
		}
	}
	a.log.Info("stopped watching")
	return nil
}
