package graph

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// NodeKind is the kind of a call graph node.
type NodeKind string

const (
	NodeLogicMethod NodeKind = "LOGIC_METHOD"
	NodeDAOMethod   NodeKind = "DAO_METHOD"
	NodeStatement   NodeKind = "STATEMENT"
	// NodeMethod is a known method outside the logic and DAO layers.
	NodeMethod NodeKind = "METHOD"
)

// EdgeKind is the kind of a call graph edge.
type EdgeKind string

const (
	EdgeLogicToDAO     EdgeKind = "LOGIC_TO_DAO"
	EdgeDAOToStatement EdgeKind = "DAO_TO_STATEMENT"
	// EdgeUnclassified links an unmatched call to a known in-graph method.
	EdgeUnclassified EdgeKind = "UNCLASSIFIED"
)

// TagExternallyResolved marks a DAO method bound by external configuration.
const TagExternallyResolved = "EXTERNALLY_RESOLVED"

// Node attribute keys.
const (
	AttrLayer            = "layer"
	AttrUnitKind         = "unitKind"
	AttrXMLTag           = "xmlTag"
	AttrMappedStatement  = "mappedStatement"
	AttrStatementTargets = "statementTargets"
)

// Ref identifies a node: either a method or a statement reference.
type Ref struct {
	Method    unit.MethodID
	Statement pattern.StatementRef
}

// MethodRef returns the ref of a method node.
func MethodRef(id unit.MethodID) Ref { return Ref{Method: id} }

// StatementNodeRef returns the ref of a statement node.
func StatementNodeRef(s pattern.StatementRef) Ref { return Ref{Statement: s} }

// IsStatement reports whether the ref names a statement.
func (r Ref) IsStatement() bool { return !r.Statement.IsZero() }

// ID returns the node identity used in serialized output.
func (r Ref) ID() string {
	if r.IsStatement() {
		return "statement:" + r.Statement.String()
	}
	return "method:" + r.Method.String()
}

// Node is a frozen call graph node.
type Node struct {
	ID         string                `json:"id"`
	Kind       NodeKind              `json:"kind"`
	Method     *unit.MethodID        `json:"method,omitempty"`
	Statement  *pattern.StatementRef `json:"statement,omitempty"`
	Tags       []string              `json:"tags,omitempty"`
	Attributes map[string]string     `json:"attributes,omitempty"`
	Position   *unit.Position        `json:"position,omitempty"`
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge is a frozen, deduplicated call graph edge.
type Edge struct {
	Source          string          `json:"source"`
	Target          string          `json:"target"`
	Kind            EdgeKind        `json:"kind"`
	OccurrenceCount int             `json:"occurrenceCount"`
	Access          []string        `json:"access,omitempty"`
	Sites           []unit.Position `json:"sites,omitempty"`
}

// ID returns a stable short identifier for the edge.
func (e *Edge) ID() string {
	return NewNodeID(string(e.Kind), e.Source, e.Target)
}

// EdgeKey is the deduplication key of an edge.
type EdgeKey struct {
	Source Ref
	Target Ref
	Kind   EdgeKind
}

// Pending is a recognized site that produced no edge: a malformed or
// non-literal statement key, or a delegation without a unique target.
type Pending struct {
	Kind     pattern.FactKind
	Status   pattern.Status
	Pattern  string
	Source   unit.MethodID
	Raw      string
	Position unit.Position
}

// Stats holds node and edge counts by kind.
type Stats struct {
	Nodes map[NodeKind]int `json:"nodes"`
	Edges map[EdgeKind]int `json:"edges"`
}

// NewNodeID generates a deterministic short ID from its parts.
func NewNodeID(kind, a, b string) string {
	h := sha256.Sum256([]byte(kind + ":" + a + ":" + b))
	return hex.EncodeToString(h[:12])
}
