package pattern

import "github.com/imyousuf/daotrace/internal/unit"

type delegationPattern struct {
	layers map[unit.Layer]bool
}

// NewDelegationPattern recognizes calls through an injected or directly
// instantiated field. The field's declared type selects the callee unit and
// the target method is matched by name and accepted arity.
func NewDelegationPattern(opts Options) Pattern {
	layers := make(map[unit.Layer]bool, len(opts.DelegateLayers))
	for _, l := range opts.DelegateLayers {
		layers[l] = true
	}
	return &delegationPattern{layers: layers}
}

func (p *delegationPattern) Name() string { return "structural-delegation" }

func (p *delegationPattern) Match(site *unit.CallSite, s Scope) (Fact, bool) {
	field, ok := receiverField(site, s)
	if !ok {
		return Fact{}, false
	}
	callee, ok := s.Index.Binding(s.Unit, field)
	if !ok || !p.layers[callee.Layer] {
		return Fact{}, false
	}

	f := Fact{
		Kind:     FactLogicToDAO,
		Pattern:  p.Name(),
		Source:   site.Caller,
		Raw:      callee.QualifiedName() + "." + site.Member,
		Position: site.Position,
	}
	cands := s.Index.Methods(callee, site.Member, len(site.Args))
	if len(cands) > 1 {
		if narrowed := narrow(cands, site.Args); len(narrowed) > 0 {
			cands = narrowed
		}
	}
	switch len(cands) {
	case 0:
		f.Status = StatusUnresolved
	case 1:
		f.Status = StatusResolved
		f.Target = cands[0].ID
	default:
		f.Status = StatusAmbiguous
	}
	return f, true
}
