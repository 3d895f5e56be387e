package embedded

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
)

// Record kinds of the JSON-lines format.
const (
	RecordMeta       = "meta"
	RecordNode       = "node"
	RecordEdge       = "edge"
	RecordDiagnostic = "diagnostic"
)

// exportRecord is the JSON-lines format for export/import.
type exportRecord struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Export writes the meta record, then nodes, edges and diagnostics in
// canonical order, one JSON record per line.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	meta, err := s.Meta(ctx)
	if err != nil {
		return err
	}
	snap, err := s.Load(ctx)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	emit := func(kind string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		if err := enc.Encode(exportRecord{Kind: kind, Data: data}); err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return nil
	}

	if err := emit(RecordMeta, meta); err != nil {
		return err
	}
	for i := range snap.Nodes {
		if err := emit(RecordNode, &snap.Nodes[i]); err != nil {
			return err
		}
	}
	for i := range snap.Edges {
		if err := emit(RecordEdge, &snap.Edges[i]); err != nil {
			return err
		}
	}
	for i := range snap.Diagnostics {
		if err := emit(RecordDiagnostic, &snap.Diagnostics[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Import reads JSON-lines from r, clears the store, and inserts all records.
// Diagnostics are kept in file order; counts in the meta record are
// recomputed.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	w := s.newWriter()
	defer w.wb.Cancel()

	scanner := bufio.NewScanner(r)
	// Increase buffer for potentially large lines.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	var meta Meta
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec exportRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: unmarshal record: %w", line, err)
		}

		switch rec.Kind {
		case RecordMeta:
			if err := json.Unmarshal(rec.Data, &meta); err != nil {
				return fmt.Errorf("line %d: unmarshal meta: %w", line, err)
			}
		case RecordNode:
			var node graph.Node
			if err := json.Unmarshal(rec.Data, &node); err != nil {
				return fmt.Errorf("line %d: unmarshal node: %w", line, err)
			}
			if node.ID == "" {
				return fmt.Errorf("line %d: node without id", line)
			}
			if err := w.node(&node); err != nil {
				return err
			}
		case RecordEdge:
			var edge graph.Edge
			if err := json.Unmarshal(rec.Data, &edge); err != nil {
				return fmt.Errorf("line %d: unmarshal edge: %w", line, err)
			}
			if edge.Source == "" || edge.Target == "" || edge.Kind == "" {
				return fmt.Errorf("line %d: edge needs source, target and kind", line)
			}
			if err := w.edge(&edge); err != nil {
				return err
			}
		case RecordDiagnostic:
			var d diag.Diagnostic
			if err := json.Unmarshal(rec.Data, &d); err != nil {
				return fmt.Errorf("line %d: unmarshal diagnostic: %w", line, err)
			}
			if err := w.diagnostic(&d); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: unknown record kind: %q", line, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return w.finish(meta)
}

var (
	_ graph.Exporter = (*Store)(nil)
	_ graph.Importer = (*Store)(nil)
)
