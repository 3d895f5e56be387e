// Package graph holds the layered call graph: the mutable form the builder
// folds facts into, and the frozen form handed to rendering and sinks.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// ErrFrozen is returned by every mutation of a frozen graph.
var ErrFrozen = errors.New("graph is frozen")

type nodeState struct {
	ref             Ref
	kind            NodeKind
	layer           unit.Layer
	unitKind        unit.Kind
	position        *unit.Position
	declared        bool
	externallyBound bool
	tags            map[string]bool
	attrs           map[string]string
}

type edgeState struct {
	count  int
	access map[pattern.Access]bool
	sites  []unit.Position
}

// Graph is the call graph under construction. It is not safe for
// concurrent use; the builder runs after the extraction barrier.
type Graph struct {
	nodes   map[Ref]*nodeState
	edges   map[EdgeKey]*edgeState
	pending []Pending
	frozen  bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[Ref]*nodeState),
		edges: make(map[EdgeKey]*edgeState),
	}
}

// NodeInfo is a read-only view of a node under construction.
type NodeInfo struct {
	Ref             Ref
	Kind            NodeKind
	Layer           unit.Layer
	UnitKind        unit.Kind
	Declared        bool
	ExternallyBound bool
	// Position is the declaration position; zero when undeclared.
	Position unit.Position
}

func (g *Graph) ensure(ref Ref) *nodeState {
	n, ok := g.nodes[ref]
	if !ok {
		n = &nodeState{ref: ref, kind: NodeMethod}
		if ref.IsStatement() {
			n.kind = NodeStatement
		}
		g.nodes[ref] = n
	}
	return n
}

// AddMethod registers a declared method with its unit's layer hint. Hints
// merge commutatively: a non-empty hint wins over an empty one and two
// different hints settle on the lexically smaller.
func (g *Graph) AddMethod(id unit.MethodID, layer unit.Layer, unitKind unit.Kind, pos unit.Position) error {
	if g.frozen {
		return ErrFrozen
	}
	n := g.ensure(MethodRef(id))
	n.declared = true
	n.layer = mergeLayer(n.layer, layer)
	if n.unitKind == "" || (unitKind != "" && unitKind < n.unitKind) {
		n.unitKind = unitKind
	}
	if pos != (unit.Position{}) && (n.position == nil || pos.Less(*n.position)) {
		p := pos
		n.position = &p
	}
	n.kind = kindForLayer(n.layer)
	return nil
}

// AddEdge creates or increments the edge (src, dst, kind). Both endpoints
// are registered as nodes.
func (g *Graph) AddEdge(src, dst Ref, kind EdgeKind, access pattern.Access, pos unit.Position) error {
	if g.frozen {
		return ErrFrozen
	}
	g.ensure(src)
	g.ensure(dst)
	key := EdgeKey{Source: src, Target: dst, Kind: kind}
	e, ok := g.edges[key]
	if !ok {
		e = &edgeState{access: make(map[pattern.Access]bool)}
		g.edges[key] = e
	}
	e.count++
	if access != "" {
		e.access[access] = true
	}
	if pos != (unit.Position{}) {
		e.sites = append(e.sites, pos)
	}
	return nil
}

// MarkExternallyBound records that a method's statement is bound externally.
func (g *Graph) MarkExternallyBound(id unit.MethodID) error {
	if g.frozen {
		return ErrFrozen
	}
	g.ensure(MethodRef(id)).externallyBound = true
	return nil
}

// AddPending records a recognized site that produced no edge. Its source
// method is registered as a node.
func (g *Graph) AddPending(p Pending) error {
	if g.frozen {
		return ErrFrozen
	}
	g.ensure(MethodRef(p.Source))
	g.pending = append(g.pending, p)
	return nil
}

// SetKind changes the kind of a method node.
func (g *Graph) SetKind(ref Ref, kind NodeKind) error {
	if g.frozen {
		return ErrFrozen
	}
	n, ok := g.nodes[ref]
	if !ok {
		return fmt.Errorf("set kind: unknown node %s", ref.ID())
	}
	n.kind = kind
	return nil
}

// Tag adds a tag to a node.
func (g *Graph) Tag(ref Ref, tag string) error {
	if g.frozen {
		return ErrFrozen
	}
	n, ok := g.nodes[ref]
	if !ok {
		return fmt.Errorf("tag: unknown node %s", ref.ID())
	}
	if n.tags == nil {
		n.tags = make(map[string]bool)
	}
	n.tags[tag] = true
	return nil
}

// SetAttr sets a node attribute.
func (g *Graph) SetAttr(ref Ref, key, value string) error {
	if g.frozen {
		return ErrFrozen
	}
	n, ok := g.nodes[ref]
	if !ok {
		return fmt.Errorf("set attribute: unknown node %s", ref.ID())
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[key] = value
	return nil
}

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool { return g.frozen }

// Refs returns every node ref sorted by ID.
func (g *Graph) Refs() []Ref {
	refs := make([]Ref, 0, len(g.nodes))
	for r := range g.nodes {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID() < refs[j].ID() })
	return refs
}

// Info returns a view of one node.
func (g *Graph) Info(ref Ref) (NodeInfo, bool) {
	n, ok := g.nodes[ref]
	if !ok {
		return NodeInfo{}, false
	}
	info := NodeInfo{
		Ref:             n.ref,
		Kind:            n.kind,
		Layer:           n.layer,
		UnitKind:        n.unitKind,
		Declared:        n.declared,
		ExternallyBound: n.externallyBound,
	}
	if n.position != nil {
		info.Position = *n.position
	}
	return info, true
}

// EdgeKeys returns every edge key sorted by source, target, then kind.
func (g *Graph) EdgeKeys() []EdgeKey {
	keys := make([]EdgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return edgeKeyLess(keys[i], keys[j]) })
	return keys
}

// Count returns the occurrence count of an edge, or zero.
func (g *Graph) Count(key EdgeKey) int {
	if e, ok := g.edges[key]; ok {
		return e.count
	}
	return 0
}

// Pending returns the pending sites sorted by source, position, then raw text.
func (g *Graph) Pending() []Pending {
	out := append([]Pending(nil), g.pending...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source.String() < b.Source.String()
		}
		if a.Position != b.Position {
			return a.Position.Less(b.Position)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Raw < b.Raw
	})
	return out
}

// Freeze seals the graph and returns its read-only form. Later mutations
// return ErrFrozen.
func (g *Graph) Freeze() *Frozen {
	g.frozen = true

	f := &Frozen{
		byID: make(map[string]int, len(g.nodes)),
		out:  make(map[string][]int),
		in:   make(map[string][]int),
	}
	for _, ref := range g.Refs() {
		f.byID[ref.ID()] = len(f.nodes)
		f.nodes = append(f.nodes, g.freezeNode(g.nodes[ref]))
	}
	for _, key := range g.EdgeKeys() {
		e := g.edges[key]
		edge := Edge{
			Source:          key.Source.ID(),
			Target:          key.Target.ID(),
			Kind:            key.Kind,
			OccurrenceCount: e.count,
		}
		for a := range e.access {
			edge.Access = append(edge.Access, string(a))
		}
		sort.Strings(edge.Access)
		edge.Sites = append([]unit.Position(nil), e.sites...)
		sort.Slice(edge.Sites, func(i, j int) bool { return edge.Sites[i].Less(edge.Sites[j]) })

		idx := len(f.edges)
		f.edges = append(f.edges, edge)
		f.out[edge.Source] = append(f.out[edge.Source], idx)
		f.in[edge.Target] = append(f.in[edge.Target], idx)
	}
	return f
}

func (g *Graph) freezeNode(n *nodeState) Node {
	node := Node{ID: n.ref.ID(), Kind: n.kind, Position: n.position}
	if n.ref.IsStatement() {
		s := n.ref.Statement
		node.Statement = &s
	} else {
		m := n.ref.Method
		node.Method = &m
	}
	for t := range n.tags {
		node.Tags = append(node.Tags, t)
	}
	sort.Strings(node.Tags)
	attrs := make(map[string]string, len(n.attrs)+2)
	for k, v := range n.attrs {
		attrs[k] = v
	}
	if !n.ref.IsStatement() {
		if n.layer != unit.LayerUnknown {
			attrs[AttrLayer] = string(n.layer)
		}
		if n.unitKind != "" {
			attrs[AttrUnitKind] = string(n.unitKind)
		}
	}
	if len(attrs) > 0 {
		node.Attributes = attrs
	}
	return node
}

func mergeLayer(cur, next unit.Layer) unit.Layer {
	switch {
	case next == unit.LayerUnknown:
		return cur
	case cur == unit.LayerUnknown:
		return next
	case next < cur:
		return next
	default:
		return cur
	}
}

func kindForLayer(l unit.Layer) NodeKind {
	switch l {
	case unit.LayerDAO:
		return NodeDAOMethod
	case unit.LayerLogic, unit.LayerController:
		return NodeLogicMethod
	default:
		return NodeMethod
	}
}

func edgeKeyLess(a, b EdgeKey) bool {
	if as, bs := a.Source.ID(), b.Source.ID(); as != bs {
		return as < bs
	}
	if at, bt := a.Target.ID(), b.Target.ID(); at != bt {
		return at < bt
	}
	return a.Kind < b.Kind
}

// Frozen is an immutable call graph. Slices returned by its methods must
// not be modified.
type Frozen struct {
	nodes []Node
	edges []Edge
	byID  map[string]int
	out   map[string][]int
	in    map[string][]int
}

// Nodes returns all nodes sorted by ID.
func (f *Frozen) Nodes() []Node { return f.nodes }

// Edges returns all edges sorted by source, target, then kind.
func (f *Frozen) Edges() []Edge { return f.edges }

// Node returns the node with the given ID.
func (f *Frozen) Node(id string) (Node, bool) {
	i, ok := f.byID[id]
	if !ok {
		return Node{}, false
	}
	return f.nodes[i], true
}

// Outgoing returns the edges leaving id, in sorted order.
func (f *Frozen) Outgoing(id string) []Edge { return f.pick(f.out[id]) }

// Incoming returns the edges entering id, in sorted order.
func (f *Frozen) Incoming(id string) []Edge { return f.pick(f.in[id]) }

func (f *Frozen) pick(idx []int) []Edge {
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = f.edges[j]
	}
	return out
}

// EdgesOfKind returns the edges of one kind.
func (f *Frozen) EdgesOfKind(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range f.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Stats counts nodes and edges by kind.
func (f *Frozen) Stats() Stats {
	s := Stats{Nodes: make(map[NodeKind]int), Edges: make(map[EdgeKind]int)}
	for _, n := range f.nodes {
		s.Nodes[n.Kind]++
	}
	for _, e := range f.edges {
		s.Edges[e.Kind]++
	}
	return s
}

// Restore rebuilds a frozen graph from stored nodes and edges.
func Restore(nodes []Node, edges []Edge) *Frozen {
	nodes = append([]Node(nil), nodes...)
	edges = append([]Edge(nil), edges...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
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
	f := &Frozen{
		nodes: nodes,
		edges: edges,
		byID:  make(map[string]int, len(nodes)),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
	}
	for i, n := range nodes {
		f.byID[n.ID] = i
	}
	for i, e := range edges {
		f.out[e.Source] = append(f.out[e.Source], i)
		f.in[e.Target] = append(f.in[e.Target], i)
	}
	return f
}
