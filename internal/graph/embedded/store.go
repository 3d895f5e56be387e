// Package embedded persists analysis snapshots in BadgerDB and answers
// node, caller, callee, chain and diagnostic queries against them.
package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
)

// FormatVersion is bumped whenever the key scheme or value layout changes.
const FormatVersion = 1

// Key prefixes for the BadgerDB key scheme.
const (
	prefixNode           = "n:"
	prefixEdge           = "e:"
	prefixDiag           = "d:"
	prefixIdxKind        = "idx:kind:"
	prefixIdxFile        = "idx:file:"
	prefixIdxEdge        = "idx:edge:"
	prefixIdxReverseEdge = "idx:redge:"
	keyMeta              = "meta"
)

var (
	// ErrNotFound is returned for unknown node IDs.
	ErrNotFound = errors.New("not found")
	// ErrEmpty is returned when the store holds no saved snapshot.
	ErrEmpty = errors.New("store is empty")
)

// Meta describes the saved snapshot.
type Meta struct {
	FormatVersion int       `json:"formatVersion"`
	Root          string    `json:"root"`
	Version       string    `json:"version,omitempty"`
	SavedAt       time.Time `json:"savedAt"`
	Nodes         int       `json:"nodes"`
	Edges         int       `json:"edges"`
	Diagnostics   int       `json:"diagnostics"`
}

// Store is a BadgerDB-backed snapshot store. A store holds one snapshot;
// Save replaces whatever was there.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // suppress badger logs
	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- key functions ---

func nodeKey(id string) []byte { return []byte(prefixNode + id) }

func edgeKey(id string) []byte { return []byte(prefixEdge + id) }

// diagKey keeps diagnostics in their canonical order.
func diagKey(seq int) []byte { return []byte(fmt.Sprintf("%s%08d", prefixDiag, seq)) }

func indexKindKey(kind graph.NodeKind, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixIdxKind, kind, id))
}

func indexFileKey(file, id string) []byte {
	return []byte(fmt.Sprintf("%s%s|%s", prefixIdxFile, file, id))
}

func indexEdgeKey(sourceID string, kind graph.EdgeKind, edgeID string) []byte {
	return []byte(fmt.Sprintf("%s%s|%s:%s", prefixIdxEdge, sourceID, kind, edgeID))
}

func indexReverseEdgeKey(targetID string, kind graph.EdgeKind, edgeID string) []byte {
	return []byte(fmt.Sprintf("%s%s|%s:%s", prefixIdxReverseEdge, targetID, kind, edgeID))
}

// edgeIndexPrefix narrows an edge index scan to one node and optionally
// one edge kind.
func edgeIndexPrefix(prefix, nodeID string, kind graph.EdgeKind) []byte {
	p := prefix + nodeID + "|"
	if kind != "" {
		p += string(kind) + ":"
	}
	return []byte(p)
}

// --- writes ---

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snap *graph.Snapshot, meta Meta) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	w := s.newWriter()
	defer w.wb.Cancel()

	for i := range snap.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.node(&snap.Nodes[i]); err != nil {
			return err
		}
	}
	for i := range snap.Edges {
		if err := w.edge(&snap.Edges[i]); err != nil {
			return err
		}
	}
	for i := range snap.Diagnostics {
		if err := w.diagnostic(&snap.Diagnostics[i]); err != nil {
			return err
		}
	}
	return w.finish(meta)
}

// writer batches the records of one snapshot.
type writer struct {
	wb                  *badger.WriteBatch
	nodes, edges, diags int
}

func (s *Store) newWriter() *writer {
	return &writer{wb: s.db.NewWriteBatch()}
}

func (w *writer) set(key, value []byte) error {
	if err := w.wb.Set(key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (w *writer) node(n *graph.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", n.ID, err)
	}
	if err := w.set(nodeKey(n.ID), data); err != nil {
		return err
	}
	if err := w.set(indexKindKey(n.Kind, n.ID), nil); err != nil {
		return err
	}
	if n.Position != nil && n.Position.File != "" {
		if err := w.set(indexFileKey(n.Position.File, n.ID), nil); err != nil {
			return err
		}
	}
	w.nodes++
	return nil
}

func (w *writer) edge(e *graph.Edge) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal edge %s->%s: %w", e.Source, e.Target, err)
	}
	id := e.ID()
	if err := w.set(edgeKey(id), data); err != nil {
		return err
	}
	if err := w.set(indexEdgeKey(e.Source, e.Kind, id), nil); err != nil {
		return err
	}
	if err := w.set(indexReverseEdgeKey(e.Target, e.Kind, id), nil); err != nil {
		return err
	}
	w.edges++
	return nil
}

func (w *writer) diagnostic(d *diag.Diagnostic) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal diagnostic: %w", err)
	}
	if err := w.set(diagKey(w.diags), data); err != nil {
		return err
	}
	w.diags++
	return nil
}

// finish writes the meta record with the final counts and flushes.
func (w *writer) finish(meta Meta) error {
	meta.FormatVersion = FormatVersion
	meta.Nodes, meta.Edges, meta.Diagnostics = w.nodes, w.edges, w.diags
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := w.set([]byte(keyMeta), data); err != nil {
		return err
	}
	if err := w.wb.Flush(); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	return nil
}

// --- reads ---

// Meta returns the description of the saved snapshot. It fails with
// ErrEmpty before the first Save and on a format version mismatch.
func (s *Store) Meta(_ context.Context) (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(keyMeta), &meta)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Meta{}, ErrEmpty
	}
	if err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	if meta.FormatVersion != FormatVersion {
		return Meta{}, fmt.Errorf("store format version %d, want %d: re-run analyze --store", meta.FormatVersion, FormatVersion)
	}
	return meta, nil
}

// Load reads the whole snapshot back.
func (s *Store) Load(ctx context.Context) (*graph.Snapshot, error) {
	if _, err := s.Meta(ctx); err != nil {
		return nil, err
	}
	var (
		nodes []graph.Node
		edges []graph.Edge
		diags []diag.Diagnostic
	)
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scanValues(txn, []byte(prefixNode), func(val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("unmarshal node: %w", err)
			}
			nodes = append(nodes, n)
			return nil
		}); err != nil {
			return err
		}
		if err := scanValues(txn, []byte(prefixEdge), func(val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("unmarshal edge: %w", err)
			}
			edges = append(edges, e)
			return nil
		}); err != nil {
			return err
		}
		return scanValues(txn, []byte(prefixDiag), func(val []byte) error {
			var d diag.Diagnostic
			if err := json.Unmarshal(val, &d); err != nil {
				return fmt.Errorf("unmarshal diagnostic: %w", err)
			}
			diags = append(diags, d)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return graph.NewSnapshot(graph.Restore(nodes, edges), diags), nil
}

// Node returns one node by ID.
func (s *Store) Node(_ context.Context, id string) (graph.Node, error) {
	var n graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, nodeKey(id), &n)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return graph.Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return graph.Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

// Find resolves a user-supplied name to nodes. An exact ID wins; otherwise
// every node whose ID contains query is returned, in ID order.
func (s *Store) Find(ctx context.Context, query string) ([]graph.Node, error) {
	if n, err := s.Node(ctx, query); err == nil {
		return []graph.Node{n}, nil
	}
	var out []graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		return scanValues(txn, []byte(prefixNode), func(val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("unmarshal node: %w", err)
			}
			if strings.Contains(n.ID, query) {
				out = append(out, n)
			}
			return nil
		})
	})
	return out, err
}

// NodesOfKind lists the nodes of one kind in ID order.
func (s *Store) NodesOfKind(_ context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	var out []graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Sprintf("%s%s:", prefixIdxKind, kind)
		ids, err := scanIndexPrefix(txn, []byte(prefix))
		if err != nil {
			return err
		}
		for _, id := range ids {
			var n graph.Node
			if err := getJSON(txn, nodeKey(id), &n); err != nil {
				continue // index entry without node; skip
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// NodesInFile lists the nodes declared in one root-relative file.
func (s *Store) NodesInFile(_ context.Context, file string) ([]graph.Node, error) {
	var out []graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIndexPrefix(txn, []byte(prefixIdxFile+file+"|"))
		if err != nil {
			return err
		}
		for _, id := range ids {
			var n graph.Node
			if err := getJSON(txn, nodeKey(id), &n); err != nil {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// Outgoing returns the edges leaving id, optionally of one kind.
func (s *Store) Outgoing(_ context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	return s.edges(edgeIndexPrefix(prefixIdxEdge, id, kind))
}

// Incoming returns the edges entering id, optionally of one kind.
func (s *Store) Incoming(_ context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	return s.edges(edgeIndexPrefix(prefixIdxReverseEdge, id, kind))
}

func (s *Store) edges(prefix []byte) ([]graph.Edge, error) {
	var out []graph.Edge
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIndexPrefix(txn, prefix)
		if err != nil {
			return err
		}
		for _, rest := range ids {
			// rest is "<edge kind>:<edge id>" unless the prefix named the kind.
			eid := rest[strings.LastIndexByte(rest, ':')+1:]
			var e graph.Edge
			if err := getJSON(txn, edgeKey(eid), &e); err != nil {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEdges(out)
	return out, nil
}

// Neighbor is a node reached over one edge.
type Neighbor struct {
	Node graph.Node `json:"node"`
	Edge graph.Edge `json:"edge"`
}

// Callers returns the nodes with an edge into id.
func (s *Store) Callers(ctx context.Context, id string) ([]Neighbor, error) {
	in, err := s.Incoming(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return s.neighbors(ctx, in, func(e graph.Edge) string { return e.Source })
}

// Callees returns the nodes id has an edge to.
func (s *Store) Callees(ctx context.Context, id string) ([]Neighbor, error) {
	out, err := s.Outgoing(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return s.neighbors(ctx, out, func(e graph.Edge) string { return e.Target })
}

func (s *Store) neighbors(ctx context.Context, edges []graph.Edge, end func(graph.Edge) string) ([]Neighbor, error) {
	out := make([]Neighbor, 0, len(edges))
	for _, e := range edges {
		n, err := s.Node(ctx, end(e))
		if err != nil {
			return nil, err
		}
		out = append(out, Neighbor{Node: n, Edge: e})
	}
	return out, nil
}

// Chain is one logic method's path down to statements through one DAO
// method.
type Chain struct {
	Logic      graph.Node `json:"logic"`
	Call       graph.Edge `json:"call"`
	DAO        graph.Node `json:"dao"`
	Statements []Neighbor `json:"statements"`
}

// Chains expands id into logic to DAO to statement chains. A logic method
// yields one chain per DAO callee; a DAO method yields one chain per
// calling logic method.
func (s *Store) Chains(ctx context.Context, id string) ([]Chain, error) {
	n, err := s.Node(ctx, id)
	if err != nil {
		return nil, err
	}

	var calls []graph.Edge
	switch n.Kind {
	case graph.NodeLogicMethod:
		calls, err = s.Outgoing(ctx, id, graph.EdgeLogicToDAO)
	case graph.NodeDAOMethod:
		calls, err = s.Incoming(ctx, id, graph.EdgeLogicToDAO)
	default:
		return nil, fmt.Errorf("chain of %s: want a %s or %s node, got %s",
			id, graph.NodeLogicMethod, graph.NodeDAOMethod, n.Kind)
	}
	if err != nil {
		return nil, err
	}

	chains := make([]Chain, 0, len(calls))
	for _, call := range calls {
		logic, err := s.Node(ctx, call.Source)
		if err != nil {
			return nil, err
		}
		dao, err := s.Node(ctx, call.Target)
		if err != nil {
			return nil, err
		}
		stmts, err := s.Outgoing(ctx, dao.ID, graph.EdgeDAOToStatement)
		if err != nil {
			return nil, err
		}
		targets, err := s.neighbors(ctx, stmts, func(e graph.Edge) string { return e.Target })
		if err != nil {
			return nil, err
		}
		chains = append(chains, Chain{Logic: logic, Call: call, DAO: dao, Statements: targets})
	}
	return chains, nil
}

// DiagnosticFilter narrows a diagnostics query. Empty fields match all.
type DiagnosticFilter struct {
	Kind     diag.Kind
	Severity diag.Severity
	// Subject matches diagnostics whose subject contains it.
	Subject string
}

func (f DiagnosticFilter) match(d *diag.Diagnostic) bool {
	if f.Kind != "" && d.Kind != f.Kind {
		return false
	}
	if f.Severity != "" && d.Severity != f.Severity {
		return false
	}
	return f.Subject == "" || strings.Contains(d.Subject, f.Subject)
}

// Diagnostics returns the stored diagnostics matching filter, in canonical
// order.
func (s *Store) Diagnostics(_ context.Context, filter DiagnosticFilter) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	err := s.db.View(func(txn *badger.Txn) error {
		return scanValues(txn, []byte(prefixDiag), func(val []byte) error {
			var d diag.Diagnostic
			if err := json.Unmarshal(val, &d); err != nil {
				return fmt.Errorf("unmarshal diagnostic: %w", err)
			}
			if filter.match(&d) {
				out = append(out, d)
			}
			return nil
		})
	})
	return out, err
}

// --- scan helpers ---

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanValues calls fn with the value of every key under prefix, in key
// order.
func scanValues(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// scanIndexPrefix returns the remainder of every index key under prefix.
func scanIndexPrefix(txn *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
	}
	return ids, nil
}

func sortEdges(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})
}
