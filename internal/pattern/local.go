package pattern

import (
	"strings"

	"github.com/imyousuf/daotrace/internal/unit"
)

type localCallPattern struct{}

// NewLocalCallPattern is the fallback for calls no idiom claims. It matches
// only when the call lands on a unique known method: same-unit calls, calls
// on typed fields, parameters or locals, and static calls on a known type.
// The resulting facts are UNCLASSIFIED.
func NewLocalCallPattern() Pattern {
	return localCallPattern{}
}

func (localCallPattern) Name() string { return "local-call" }

func (p localCallPattern) Match(site *unit.CallSite, s Scope) (Fact, bool) {
	if site.Member == "" {
		return Fact{}, false
	}
	target := p.receiverUnit(site, s)
	if target == nil {
		return Fact{}, false
	}
	cands := s.Index.Methods(target, site.Member, len(site.Args))
	if len(cands) > 1 {
		cands = narrow(cands, site.Args)
	}
	if len(cands) != 1 {
		return Fact{}, false
	}
	return Fact{
		Kind:     FactUnclassified,
		Status:   StatusResolved,
		Pattern:  p.Name(),
		Source:   site.Caller,
		Target:   cands[0].ID,
		Position: site.Position,
	}, true
}

func (localCallPattern) receiverUnit(site *unit.CallSite, s Scope) *unit.CompilationUnit {
	resolve := func(typeName string) *unit.CompilationUnit {
		u, ok := s.Index.ResolveType(s.Unit, typeName)
		if !ok {
			return nil
		}
		return u
	}

	r := site.Receiver
	switch r.Kind {
	case unit.ArgNone:
		return s.Unit
	case unit.ArgNew:
		return resolve(r.Value)
	case unit.ArgField:
		if f, ok := s.Unit.Field(r.Value); ok {
			return resolve(f.Type)
		}
	case unit.ArgVariable:
		name := r.Value
		if name == "this" {
			return s.Unit
		}
		if name == "super" || strings.HasPrefix(name, "super.") {
			return nil
		}
		if s.Method != nil {
			if prm, ok := s.Method.Param(name); ok {
				return resolve(prm.Type)
			}
			if l, ok := s.Method.Local(name); ok {
				return resolve(l.Type)
			}
		}
		if f, ok := s.Unit.Field(name); ok {
			return resolve(f.Type)
		}
		return resolve(name)
	}
	return nil
}
