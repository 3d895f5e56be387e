package resolve

import (
	"fmt"
	"strconv"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// assignRoles gives every method node of an unclassified unit a kind from
// the edges around it. Methods without evidence of their own take the role
// of their unit when that unit shows exactly one role.
func (r *Resolver) assignRoles(g *graph.Graph) (int, error) {
	dao := make(map[unit.MethodID]bool)
	logic := make(map[unit.MethodID]bool)
	for _, k := range g.EdgeKeys() {
		switch k.Kind {
		case graph.EdgeDAOToStatement:
			dao[k.Source.Method] = true
		case graph.EdgeLogicToDAO:
			dao[k.Target.Method] = true
			logic[k.Source.Method] = true
		}
	}

	var unknown []graph.NodeInfo
	for _, ref := range g.Refs() {
		if ref.IsStatement() {
			continue
		}
		info, _ := g.Info(ref)
		if info.ExternallyBound {
			dao[ref.Method] = true
		}
		if info.Layer == unit.LayerUnknown {
			unknown = append(unknown, info)
		}
	}

	role := func(id unit.MethodID) graph.NodeKind {
		switch {
		case dao[id]:
			return graph.NodeDAOMethod
		case logic[id]:
			return graph.NodeLogicMethod
		default:
			return ""
		}
	}

	unitRoles := make(map[string]map[graph.NodeKind]bool)
	for _, info := range unknown {
		k := role(info.Ref.Method)
		if k == "" {
			continue
		}
		t := info.Ref.Method.TypeName()
		if unitRoles[t] == nil {
			unitRoles[t] = make(map[graph.NodeKind]bool)
		}
		unitRoles[t][k] = true
	}

	inferred := 0
	for _, info := range unknown {
		kind := role(info.Ref.Method)
		if kind == "" {
			if roles := unitRoles[info.Ref.Method.TypeName()]; len(roles) == 1 {
				for k := range roles {
					kind = k
				}
			}
		}
		if kind == "" {
			kind = graph.NodeMethod
		} else {
			inferred++
		}
		if kind != info.Kind {
			if err := g.SetKind(info.Ref, kind); err != nil {
				return inferred, err
			}
		}
	}
	return inferred, nil
}

// reportPending turns every pending site into a warning. None of them adds
// an edge.
func (r *Resolver) reportPending(g *graph.Graph) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, p := range g.Pending() {
		d := diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Subject:  graph.MethodRef(p.Source).ID(),
			Position: p.Position,
		}
		switch {
		case p.Kind == pattern.FactDAOToStatement && p.Status == pattern.StatusMalformed:
			d.Kind = diag.MalformedStatementRef
			d.Message = fmt.Sprintf("statement key %q is not of the form Namespace.Operation", p.Raw)
		case p.Kind == pattern.FactDAOToStatement:
			d.Kind = diag.UnresolvedStatementRef
			d.Message = fmt.Sprintf("statement key %s is not statically determinable", p.Raw)
		case p.Kind == pattern.FactLogicToDAO && p.Status == pattern.StatusAmbiguous:
			d.Kind = diag.AmbiguousTarget
			d.Message = fmt.Sprintf("call to %s matches several overloads", p.Raw)
		case p.Kind == pattern.FactLogicToDAO:
			d.Kind = diag.UnresolvedDelegation
			d.Message = fmt.Sprintf("no method %s with a matching parameter count", p.Raw)
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}

func (r *Resolver) markExternallyBound(g *graph.Graph) (int, error) {
	n := 0
	for _, ref := range g.Refs() {
		info, _ := g.Info(ref)
		if !info.ExternallyBound {
			continue
		}
		if err := g.Tag(ref, graph.TagExternallyResolved); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// findOrphans reports DAO methods without an incoming LOGIC_TO_DAO edge and
// logic methods without a caller outside their own type.
func (r *Resolver) findOrphans(g *graph.Graph) []diag.Diagnostic {
	daoReached := make(map[graph.Ref]bool)
	logicReached := make(map[graph.Ref]bool)
	for _, k := range g.EdgeKeys() {
		if k.Target.IsStatement() {
			continue
		}
		if k.Kind == graph.EdgeLogicToDAO {
			daoReached[k.Target] = true
		}
		if k.Source.Method.TypeName() != k.Target.Method.TypeName() {
			logicReached[k.Target] = true
		}
	}

	var out []diag.Diagnostic
	for _, ref := range g.Refs() {
		info, _ := g.Info(ref)
		var msg string
		switch {
		case info.Kind == graph.NodeDAOMethod && !daoReached[ref]:
			msg = "DAO method has no incoming LOGIC_TO_DAO edge"
		case info.Kind == graph.NodeLogicMethod && !logicReached[ref]:
			msg = "logic method has no caller outside its own type"
		default:
			continue
		}
		out = append(out, diag.Diagnostic{
			Kind:     diag.UnreachedMethod,
			Severity: diag.SeverityInfo,
			Subject:  ref.ID(),
			Message:  msg,
			Position: info.Position,
		})
	}
	return out
}

func (r *Resolver) recordStatementTargets(g *graph.Graph) (int, error) {
	targets := make(map[graph.Ref]int)
	for _, k := range g.EdgeKeys() {
		if k.Kind == graph.EdgeDAOToStatement {
			targets[k.Source]++
		}
	}
	n := 0
	for _, ref := range g.Refs() {
		if targets[ref] < 2 {
			continue
		}
		if err := g.SetAttr(ref, graph.AttrStatementTargets, strconv.Itoa(targets[ref])); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// crossCheck annotates statements with their declaring tag and warns about
// ids missing from a known namespace. Externally resolved methods whose
// qualified type and name form a declared statement get that statement as an
// attribute.
func (r *Resolver) crossCheck(g *graph.Graph) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, ref := range g.Refs() {
		if ref.IsStatement() {
			tag, ok := r.statements.Lookup(ref.Statement)
			if ok {
				if err := g.SetAttr(ref, graph.AttrXMLTag, tag); err != nil {
					return out, err
				}
				continue
			}
			if r.statements.HasNamespace(ref.Statement.Namespace) {
				out = append(out, diag.Diagnostic{
					Kind:     diag.UnknownStatement,
					Severity: diag.SeverityWarning,
					Subject:  ref.ID(),
					Message: fmt.Sprintf("namespace %s declares no statement %q",
						ref.Statement.Namespace, ref.Statement.Operation),
				})
			}
			continue
		}

		info, _ := g.Info(ref)
		if !info.ExternallyBound {
			continue
		}
		mapped := pattern.StatementRef{Namespace: ref.Method.TypeName(), Operation: ref.Method.Name}
		if tag, ok := r.statements.Lookup(mapped); ok {
			if err := g.SetAttr(ref, graph.AttrMappedStatement, mapped.String()); err != nil {
				return out, err
			}
			if err := g.SetAttr(ref, graph.AttrXMLTag, tag); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}
