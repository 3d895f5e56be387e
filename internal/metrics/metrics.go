// Package metrics records prometheus metrics for analysis runs. A Recorder
// owns its registry, so several runs in one process do not collide, and the
// registry can be written as a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/pattern"
)

const namespace = "daotrace"

// Recorder collects run metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	reg *prometheus.Registry

	runs          *prometheus.CounterVec
	files         *prometheus.CounterVec
	units         prometheus.Counter
	facts         *prometheus.CounterVec
	diagnostics   *prometheus.CounterVec
	nodes         *prometheus.GaugeVec
	edges         *prometheus.GaugeVec
	stageDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"status"}),
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files read by type and outcome.",
		}, []string{"type", "status"}),
		units: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Compilation units extracted.",
		}),
		facts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_total",
			Help:      "Call facts emitted by kind and status.",
		}, []string{"kind", "status"}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported by kind and severity.",
		}, []string{"kind", "severity"}),
		nodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Nodes in the last frozen graph by kind.",
		}, []string{"kind"}),
		edges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Edges in the last frozen graph by kind.",
		}, []string{"kind"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Run counts a finished run.
func (r *Recorder) Run(err error) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status(err)).Inc()
}

// File counts one file of the given type ("java", "xml").
func (r *Recorder) File(fileType string, err error) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(fileType, status(err)).Inc()
}

// Units adds extracted units.
func (r *Recorder) Units(n int) {
	if r == nil {
		return
	}
	r.units.Add(float64(n))
}

// Facts counts facts by kind and status.
func (r *Recorder) Facts(facts []pattern.Fact) {
	if r == nil {
		return
	}
	for _, f := range facts {
		r.facts.WithLabelValues(string(f.Kind), f.Status.String()).Inc()
	}
}

// Diagnostics counts diagnostics by kind and severity.
func (r *Recorder) Diagnostics(ds []diag.Diagnostic) {
	if r == nil {
		return
	}
	for _, d := range ds {
		r.diagnostics.WithLabelValues(string(d.Kind), string(d.Severity)).Inc()
	}
}

// Graph sets the node and edge gauges from a frozen graph.
func (r *Recorder) Graph(s graph.Stats) {
	if r == nil {
		return
	}
	r.nodes.Reset()
	r.edges.Reset()
	for k, n := range s.Nodes {
		r.nodes.WithLabelValues(string(k)).Set(float64(n))
	}
	for k, n := range s.Edges {
		r.edges.WithLabelValues(string(k)).Set(float64(n))
	}
}

// Stage observes the duration of one pipeline stage.
func (r *Recorder) Stage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteFile writes the registry in the text exposition format, atomically
// replacing path.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
