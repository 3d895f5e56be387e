// Package neo4jgraph loads analysis snapshots into Neo4j using batched
// UNWIND queries.
package neo4jgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/imyousuf/daotrace/internal/graph"
)

// DefaultBatchSize bounds the rows sent per UNWIND query.
const DefaultBatchSize = 500

// labels maps node kinds to Neo4j labels. Every node also carries the
// TraceNode label, which holds the id constraint.
var labels = map[graph.NodeKind]string{
	graph.NodeLogicMethod: "LogicMethod",
	graph.NodeDAOMethod:   "DaoMethod",
	graph.NodeStatement:   "Statement",
	graph.NodeMethod:      "Method",
}

// Label returns the Neo4j label of a node kind.
func Label(kind graph.NodeKind) string {
	if l, ok := labels[kind]; ok {
		return l
	}
	return "Method"
}

// Query is one Cypher statement with its parameters.
type Query struct {
	Cypher string
	Params map[string]any
}

// Queries builds every statement needed to replace the graph in Neo4j with
// snap: cleanup, constraints, then node, edge and diagnostic batches.
func Queries(snap *graph.Snapshot, batchSize int) []Query {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	qs := []Query{
		{Cypher: "MATCH (n:TraceNode) DETACH DELETE n"},
		{Cypher: "MATCH (d:TraceDiagnostic) DETACH DELETE d"},
		{Cypher: "CREATE CONSTRAINT trace_node_id IF NOT EXISTS FOR (n:TraceNode) REQUIRE n.id IS UNIQUE"},
		{Cypher: "CREATE INDEX trace_statement_key IF NOT EXISTS FOR (n:Statement) ON (n.namespace, n.operation)"},
	}

	byLabel := make(map[string][]map[string]any)
	var order []string
	for _, n := range snap.Nodes {
		l := Label(n.Kind)
		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], nodeRow(n))
	}
	for _, l := range order {
		cypher := fmt.Sprintf(`UNWIND $batch AS row
MERGE (n:TraceNode {id: row.id})
SET n:%s, n += row.props`, l)
		qs = append(qs, batches(cypher, byLabel[l], batchSize)...)
	}

	byKind := make(map[graph.EdgeKind][]map[string]any)
	var kinds []graph.EdgeKind
	for _, e := range snap.Edges {
		if _, ok := byKind[e.Kind]; !ok {
			kinds = append(kinds, e.Kind)
		}
		byKind[e.Kind] = append(byKind[e.Kind], edgeRow(e))
	}
	for _, k := range kinds {
		cypher := fmt.Sprintf(`UNWIND $batch AS row
MATCH (s:TraceNode {id: row.source}), (t:TraceNode {id: row.target})
MERGE (s)-[r:%s]->(t)
SET r += row.props`, k)
		qs = append(qs, batches(cypher, byKind[k], batchSize)...)
	}

	if len(snap.Diagnostics) > 0 {
		rows := make([]map[string]any, 0, len(snap.Diagnostics))
		for i, d := range snap.Diagnostics {
			rows = append(rows, map[string]any{
				"seq":      i,
				"kind":     string(d.Kind),
				"severity": string(d.Severity),
				"subject":  d.Subject,
				"message":  d.Message,
				"file":     d.Position.File,
				"line":     d.Position.Line,
			})
		}
		qs = append(qs, batches(`UNWIND $batch AS row
CREATE (d:TraceDiagnostic {seq: row.seq, kind: row.kind, severity: row.severity,
  message: row.message, file: row.file, line: row.line})
WITH d, row
OPTIONAL MATCH (n:TraceNode {id: row.subject})
FOREACH (_ IN CASE WHEN n IS NULL THEN [] ELSE [1] END | MERGE (d)-[:ABOUT]->(n))`, rows, batchSize)...)
	}
	return qs
}

func batches(cypher string, rows []map[string]any, size int) []Query {
	var qs []Query
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		qs = append(qs, Query{Cypher: cypher, Params: map[string]any{"batch": rows[start:end]}})
	}
	return qs
}

// nodeRow flattens a node into Neo4j-storable properties: scalars and
// lists of strings only.
func nodeRow(n graph.Node) map[string]any {
	props := map[string]any{"kind": string(n.Kind)}
	if n.Method != nil {
		props["package"] = n.Method.Package
		props["type"] = n.Method.Type
		props["name"] = n.Method.Name
		props["params"] = n.Method.Params
		props["signature"] = n.Method.String()
	}
	if n.Statement != nil {
		props["namespace"] = n.Statement.Namespace
		props["operation"] = n.Statement.Operation
		props["key"] = n.Statement.String()
	}
	if len(n.Tags) > 0 {
		props["tags"] = append([]string(nil), n.Tags...)
	}
	for k, v := range n.Attributes {
		props["attr_"+k] = v
	}
	if n.Position != nil {
		props["file"] = n.Position.File
		props["line"] = n.Position.Line
	}
	return map[string]any{"id": n.ID, "props": props}
}

func edgeRow(e graph.Edge) map[string]any {
	props := map[string]any{"occurrence_count": e.OccurrenceCount}
	if len(e.Access) > 0 {
		props["access"] = append([]string(nil), e.Access...)
	}
	if len(e.Sites) > 0 {
		sites := make([]string, 0, len(e.Sites))
		for _, s := range e.Sites {
			sites = append(sites, s.String())
		}
		props["sites"] = sites
	}
	return map[string]any{"source": e.Source, "target": e.Target, "props": props}
}

// Loader writes snapshots to a Neo4j database.
type Loader struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	log       *slog.Logger
}

// Options configures a Loader.
type Options struct {
	URI      string
	Username string
	Password string
	// Database selects a database; empty uses the server default.
	Database  string
	BatchSize int
	Logger    *slog.Logger
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, opts Options) (*Loader, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", opts.URI, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{driver: driver, database: opts.Database, batchSize: opts.BatchSize, log: logger}, nil
}

// Close releases the driver.
func (l *Loader) Close(ctx context.Context) error {
	return l.driver.Close(ctx)
}

// Write replaces the trace graph in Neo4j with snap.
func (l *Loader) Write(ctx context.Context, snap *graph.Snapshot) error {
	qs := Queries(snap, l.batchSize)
	l.log.InfoContext(ctx, "loading graph into neo4j",
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("edges", len(snap.Edges)),
		slog.Int("queries", len(qs)))
	for i, q := range qs {
		if err := l.run(ctx, q); err != nil {
			return fmt.Errorf("query %d (%s): %w", i, firstLine(q.Cypher), err)
		}
	}
	return nil
}

var _ graph.Sink = (*Loader)(nil)

func (l *Loader) run(ctx context.Context, q Query) error {
	var cfg []neo4j.ExecuteQueryConfigurationOption
	if l.database != "" {
		cfg = append(cfg, neo4j.ExecuteQueryWithDatabase(l.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, l.driver, q.Cypher, q.Params, neo4j.EagerResultTransformer, cfg...)
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
