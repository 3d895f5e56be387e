package pattern

import (
	"fmt"
	"strings"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/unit"
)

// Index is the structural lookup table over a unit set. Field bindings are
// resolved once at construction and never change afterwards.
type Index struct {
	opts       Options
	units      []*unit.CompilationUnit
	canonical  map[*unit.CompilationUnit]bool
	byQName    map[string]*unit.CompilationUnit
	bySimple   map[string][]*unit.CompilationUnit
	bindings   map[*unit.CompilationUnit]map[string]*unit.CompilationUnit
	duplicates []diag.Diagnostic
}

// NewIndex indexes units and precomputes field bindings. When two units share
// a qualified name, the one from the lexically smallest file is kept and the
// other is reported as DUPLICATE_UNIT.
func NewIndex(units []*unit.CompilationUnit, opts Options) *Index {
	ix := &Index{
		opts:      opts,
		canonical: make(map[*unit.CompilationUnit]bool),
		byQName:   make(map[string]*unit.CompilationUnit),
		bySimple:  make(map[string][]*unit.CompilationUnit),
		bindings:  make(map[*unit.CompilationUnit]map[string]*unit.CompilationUnit),
	}

	var dropped []*unit.CompilationUnit
	for _, u := range units {
		qn := u.QualifiedName()
		prev, exists := ix.byQName[qn]
		if !exists {
			ix.byQName[qn] = u
			continue
		}
		if u.File < prev.File {
			ix.byQName[qn] = u
			dropped = append(dropped, prev)
		} else {
			dropped = append(dropped, u)
		}
	}
	for _, u := range dropped {
		kept := ix.byQName[u.QualifiedName()]
		ix.duplicates = append(ix.duplicates, diag.Diagnostic{
			Kind:     diag.DuplicateUnit,
			Severity: diag.SeverityWarning,
			Subject:  "type:" + u.QualifiedName(),
			Message:  fmt.Sprintf("%s is declared again in %s; keeping %s", u.QualifiedName(), u.File, kept.File),
			Position: unit.Position{File: u.File},
		})
	}

	for _, u := range units {
		if ix.byQName[u.QualifiedName()] != u {
			continue
		}
		ix.canonical[u] = true
		ix.units = append(ix.units, u)
		simple := simpleName(u.Name)
		ix.bySimple[simple] = append(ix.bySimple[simple], u)
	}

	for _, u := range ix.units {
		ix.bindings[u] = ix.bindFields(u)
	}
	return ix
}

// Options returns the options the index was built with.
func (ix *Index) Options() Options { return ix.opts }

// Units returns the canonical units in input order.
func (ix *Index) Units() []*unit.CompilationUnit { return ix.units }

// Canonical reports whether u is the unit kept for its qualified name.
func (ix *Index) Canonical(u *unit.CompilationUnit) bool { return ix.canonical[u] }

// Duplicates returns the DUPLICATE_UNIT diagnostics found at construction.
func (ix *Index) Duplicates() []diag.Diagnostic { return ix.duplicates }

// Lookup returns the unit with the given qualified name.
func (ix *Index) Lookup(qualifiedName string) (*unit.CompilationUnit, bool) {
	u, ok := ix.byQName[qualifiedName]
	return u, ok
}

// ResolveType resolves a type name as written inside from.
//
// Resolution order: qualified name, nested type, single-type import, same
// package, wildcard import, and finally a unique simple name when the
// fallback is enabled. A single-type import naming the type decides the
// result even when the imported type is outside the index.
func (ix *Index) ResolveType(from *unit.CompilationUnit, typeName string) (*unit.CompilationUnit, bool) {
	name := normalizeType(typeName)
	if name == "" {
		return nil, false
	}
	if u, ok := ix.byQName[name]; ok {
		return u, true
	}
	if u, ok := ix.byQName[qualify(from.Package, from.Name+"."+name)]; ok {
		return u, true
	}

	first := name
	rest := ""
	if i := strings.IndexByte(name, '.'); i > 0 {
		first, rest = name[:i], name[i:]
	}
	for _, imp := range from.Imports {
		if strings.HasSuffix(imp, ".*") {
			continue
		}
		if imp == first || strings.HasSuffix(imp, "."+first) {
			u, ok := ix.byQName[imp+rest]
			return u, ok
		}
	}
	if u, ok := ix.byQName[qualify(from.Package, name)]; ok {
		return u, true
	}
	for _, imp := range from.Imports {
		if prefix, ok := strings.CutSuffix(imp, ".*"); ok {
			if u, ok := ix.byQName[prefix+"."+name]; ok {
				return u, true
			}
		}
	}

	if ix.opts.SimpleNameFallback && rest == "" {
		if cands := ix.bySimple[name]; len(cands) == 1 {
			return cands[0], true
		}
	}
	return nil, false
}

// Binding returns the unit a bound field of u resolves to. Only injected or
// directly instantiated fields are bound.
func (ix *Index) Binding(u *unit.CompilationUnit, field string) (*unit.CompilationUnit, bool) {
	b, ok := ix.bindings[u][field]
	return b, ok
}

// Methods returns the non-constructor methods of u with the given name that
// accept arity arguments. A varargs method accepts any arity from its fixed
// parameter count upwards.
func (ix *Index) Methods(u *unit.CompilationUnit, name string, arity int) []*unit.Method {
	var out []*unit.Method
	for i := range u.Methods {
		m := &u.Methods[i]
		if m.Constructor || m.ID.Name != name || !acceptsArity(m, arity) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func acceptsArity(m *unit.Method, arity int) bool {
	n := m.ID.Arity()
	if n == arity {
		return true
	}
	return isVarargs(m) && arity >= n-1
}

func isVarargs(m *unit.Method) bool {
	types := m.ID.ParamTypes()
	return len(types) > 0 && strings.HasSuffix(types[len(types)-1], "...")
}

func (ix *Index) bindFields(u *unit.CompilationUnit) map[string]*unit.CompilationUnit {
	out := make(map[string]*unit.CompilationUnit)
	for i := range u.Fields {
		f := &u.Fields[i]
		injected := f.Injected || f.HasAnnotation(ix.opts.InjectAnnotations...)
		if !injected && f.Instantiated == "" {
			continue
		}
		target, ok := ix.ResolveType(u, f.Type)
		if !ok && f.Instantiated != "" {
			target, ok = ix.ResolveType(u, f.Instantiated)
		}
		if ok && target != u {
			out[f.Name] = target
		}
	}
	return out
}

// normalizeType strips generic arguments, array brackets, and varargs.
func normalizeType(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSuffix(t, "...")
	for strings.HasSuffix(t, "[]") {
		t = strings.TrimSuffix(t, "[]")
	}
	return strings.TrimSpace(t)
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
