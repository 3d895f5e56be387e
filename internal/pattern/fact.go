package pattern

import (
	"fmt"
	"sort"

	"github.com/imyousuf/daotrace/internal/unit"
)

// FactKind is the kind of a call fact.
type FactKind string

const (
	// FactDeclared registers a known method, with or without calls.
	FactDeclared        FactKind = "DECLARED"
	FactLogicToDAO      FactKind = "LOGIC_TO_DAO"
	FactDAOToStatement  FactKind = "DAO_TO_STATEMENT"
	FactExternallyBound FactKind = "EXTERNALLY_BOUND"
	// FactUnclassified is an unmatched call into a known in-graph method.
	FactUnclassified FactKind = "UNCLASSIFIED"
)

// Status reports whether a fact names a usable target.
type Status int

const (
	StatusResolved Status = iota
	// StatusUnresolved marks a site whose target cannot be determined
	// statically, such as a non-literal statement key.
	StatusUnresolved
	// StatusMalformed marks a literal key without the Namespace.Operation shape.
	StatusMalformed
	// StatusAmbiguous marks a delegation matching several overloads.
	StatusAmbiguous
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusUnresolved:
		return "unresolved"
	case StatusMalformed:
		return "malformed"
	case StatusAmbiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Fact is one recognized call site or declaration before aggregation.
type Fact struct {
	Kind    FactKind
	Status  Status
	Pattern string
	Source  unit.MethodID
	// Target is set for LOGIC_TO_DAO and UNCLASSIFIED facts.
	Target unit.MethodID
	// Statement is set for resolved DAO_TO_STATEMENT facts.
	Statement StatementRef
	Access    Access
	// Layer and UnitKind describe the source unit on DECLARED facts.
	Layer    unit.Layer
	UnitKind unit.Kind
	// Raw is the unparsed key or the unresolved expression.
	Raw      string
	Position unit.Position
}

// Key renders every field of the fact, for stable ordering and comparison.
func (f Fact) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		f.Kind, f.Source, f.Target, f.Statement, f.Status, f.Pattern,
		f.Access, f.Layer, f.UnitKind, f.Raw, f.Position)
}

// SortFacts orders facts by Key.
func SortFacts(fs []Fact) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Key() < fs[j].Key() })
}
