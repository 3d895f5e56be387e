package pattern

import "github.com/imyousuf/daotrace/internal/unit"

type paramBoundPattern struct {
	binding []string
	mapper  []string
}

// NewParamBoundPattern recognizes DAO methods without a body whose statement
// is bound by an external mapping layer. A method qualifies when one of its
// parameters carries a binding marker, when its unit carries a mapper marker,
// or when its unit is an interface classified as DAO.
func NewParamBoundPattern(opts Options) MethodPattern {
	return &paramBoundPattern{
		binding: append([]string(nil), opts.BindingAnnotations...),
		mapper:  append([]string(nil), opts.MapperAnnotations...),
	}
}

func (p *paramBoundPattern) Name() string { return "parameter-bound-interface" }

func (p *paramBoundPattern) MatchMethod(m *unit.Method, s Scope) (Fact, bool) {
	if m.HasBody || m.Constructor {
		return Fact{}, false
	}
	if s.Unit.Layer != unit.LayerDAO && s.Unit.Layer != unit.LayerUnknown {
		return Fact{}, false
	}
	if !p.bound(m, s.Unit) {
		return Fact{}, false
	}
	return Fact{
		Kind:     FactExternallyBound,
		Status:   StatusResolved,
		Pattern:  p.Name(),
		Source:   m.ID,
		Raw:      s.Unit.QualifiedName() + "." + m.ID.Name,
		Position: m.Position,
	}, true
}

func (p *paramBoundPattern) bound(m *unit.Method, u *unit.CompilationUnit) bool {
	for i := range m.Params {
		if m.Params[i].HasAnnotation(p.binding...) {
			return true
		}
	}
	if len(p.mapper) > 0 && u.HasAnnotation(p.mapper...) {
		return true
	}
	return u.Kind == unit.KindInterface && u.Layer == unit.LayerDAO
}
