package graph

import (
	"fmt"

	"github.com/imyousuf/daotrace/internal/pattern"
)

// Build folds facts into a new graph. The fold is commutative: any
// permutation of the same facts yields the same graph.
func Build(facts []pattern.Fact) (*Graph, error) {
	g := New()
	for i := range facts {
		if err := g.Apply(facts[i]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Apply folds one fact into the graph. Resolved facts add nodes and edges;
// the rest are kept as pending sites for the resolver.
func (g *Graph) Apply(f pattern.Fact) error {
	if g.frozen {
		return ErrFrozen
	}
	if f.Source.IsZero() {
		return fmt.Errorf("apply %s fact: missing source method", f.Kind)
	}

	if f.Status != pattern.StatusResolved {
		return g.AddPending(Pending{
			Kind:     f.Kind,
			Status:   f.Status,
			Pattern:  f.Pattern,
			Source:   f.Source,
			Raw:      f.Raw,
			Position: f.Position,
		})
	}

	switch f.Kind {
	case pattern.FactDeclared:
		return g.AddMethod(f.Source, f.Layer, f.UnitKind, f.Position)
	case pattern.FactLogicToDAO:
		if f.Target.IsZero() {
			return fmt.Errorf("apply %s fact from %s: missing target", f.Kind, f.Source)
		}
		return g.AddEdge(MethodRef(f.Source), MethodRef(f.Target), EdgeLogicToDAO, "", f.Position)
	case pattern.FactUnclassified:
		if f.Target.IsZero() {
			return fmt.Errorf("apply %s fact from %s: missing target", f.Kind, f.Source)
		}
		return g.AddEdge(MethodRef(f.Source), MethodRef(f.Target), EdgeUnclassified, "", f.Position)
	case pattern.FactDAOToStatement:
		if f.Statement.IsZero() {
			return fmt.Errorf("apply %s fact from %s: missing statement", f.Kind, f.Source)
		}
		return g.AddEdge(MethodRef(f.Source), StatementNodeRef(f.Statement), EdgeDAOToStatement, f.Access, f.Position)
	case pattern.FactExternallyBound:
		return g.MarkExternallyBound(f.Source)
	default:
		return fmt.Errorf("apply fact: unknown kind %q", f.Kind)
	}
}
