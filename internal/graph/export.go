package graph

import (
	"context"
	"io"

	"github.com/imyousuf/daotrace/internal/diag"
)

// Snapshot is the serialized result of one run: the frozen graph plus its
// diagnostics, each in canonical order.
type Snapshot struct {
	Nodes       []Node            `json:"nodes"`
	Edges       []Edge            `json:"edges"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// NewSnapshot captures a frozen graph and its diagnostics. Diagnostics are
// copied and sorted.
func NewSnapshot(f *Frozen, diags []diag.Diagnostic) *Snapshot {
	s := &Snapshot{
		Nodes:       append([]Node{}, f.Nodes()...),
		Edges:       append([]Edge{}, f.Edges()...),
		Diagnostics: append([]diag.Diagnostic{}, diags...),
	}
	diag.Sort(s.Diagnostics)
	return s
}

// Graph rebuilds the frozen graph held by the snapshot.
func (s *Snapshot) Graph() *Frozen { return Restore(s.Nodes, s.Edges) }

// Sink persists a snapshot to an external store.
type Sink interface {
	Write(ctx context.Context, s *Snapshot) error
}

// Exporter can serialize stored graph data to a writer.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// Importer can deserialize graph data from a reader, replacing existing data.
type Importer interface {
	Import(ctx context.Context, r io.Reader) error
}
