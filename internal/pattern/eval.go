package pattern

import (
	"strings"

	"github.com/imyousuf/daotrace/internal/unit"
)

// evalString statically evaluates a string expression. It accepts string
// literals, static final String constants, and concatenations of those.
func evalString(arg unit.Arg, s Scope) (string, bool) {
	switch arg.Kind {
	case unit.ArgLiteral:
		if arg.Literal != unit.LiteralString {
			return "", false
		}
		return arg.Value, true
	case unit.ArgField:
		return constantOf(s.Unit, arg.Value)
	case unit.ArgVariable:
		if shadowed(s.Method, arg.Value) {
			return "", false
		}
		if typ, name, ok := splitQualified(arg.Value); ok {
			owner, found := s.Index.ResolveType(s.Unit, typ)
			if !found {
				return "", false
			}
			return constantOf(owner, name)
		}
		return constantOf(s.Unit, arg.Value)
	case unit.ArgConcat:
		var b strings.Builder
		for _, part := range arg.Parts {
			v, ok := evalString(part, s)
			if !ok {
				return "", false
			}
			b.WriteString(v)
		}
		return b.String(), true
	}
	return "", false
}

func constantOf(u *unit.CompilationUnit, name string) (string, bool) {
	if u == nil {
		return "", false
	}
	f, ok := u.Field(name)
	if !ok || !f.HasConstant {
		return "", false
	}
	return f.Constant, true
}

// shadowed reports whether a bare name refers to a parameter or local rather
// than a field.
func shadowed(m *unit.Method, name string) bool {
	if m == nil || strings.Contains(name, ".") {
		return false
	}
	if _, ok := m.Param(name); ok {
		return true
	}
	_, ok := m.Local(name)
	return ok
}

// splitQualified splits "Type.NAME" into its owner and member.
func splitQualified(name string) (string, string, bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// receiverField returns the field a call receiver refers to, if any.
func receiverField(site *unit.CallSite, s Scope) (string, bool) {
	switch site.Receiver.Kind {
	case unit.ArgField:
		return site.Receiver.Value, true
	case unit.ArgVariable:
		name := site.Receiver.Value
		if strings.Contains(name, ".") || shadowed(s.Method, name) {
			return "", false
		}
		if _, ok := s.Unit.Field(name); ok {
			return name, true
		}
	}
	return "", false
}

// describeArg renders an argument for diagnostics.
func describeArg(a unit.Arg) string {
	switch a.Kind {
	case unit.ArgLiteral:
		if a.Literal == unit.LiteralString {
			return `"` + a.Value + `"`
		}
		return a.Value
	case unit.ArgNew:
		return "new " + a.Value + "(...)"
	case unit.ArgConcat:
		parts := make([]string, len(a.Parts))
		for i, p := range a.Parts {
			parts[i] = describeArg(p)
		}
		return strings.Join(parts, " + ")
	case unit.ArgField:
		return "this." + a.Value
	case unit.ArgNone:
		return ""
	default:
		return a.Value
	}
}

// literalFits reports whether a literal argument can be passed to a
// parameter of the given declared type. Non-literal arguments fit anything.
func literalFits(a unit.Arg, paramType string) bool {
	if a.Kind != unit.ArgLiteral {
		return true
	}
	t := normalizeType(paramType)
	if t == "Object" || t == "java.lang.Object" {
		return true
	}
	switch a.Literal {
	case unit.LiteralString:
		return t == "String" || t == "CharSequence" || t == "java.lang.String"
	case unit.LiteralBool:
		return t == "boolean" || t == "Boolean"
	case unit.LiteralChar:
		return t == "char" || t == "Character" || isIntegral(t)
	case unit.LiteralNull:
		return !isPrimitive(t)
	case unit.LiteralNumber:
		if isFloating(a.Value) {
			return t == "double" || t == "float" || t == "Double" || t == "Float" || t == "Number"
		}
		return isIntegral(t) || t == "double" || t == "float" || t == "Double" || t == "Float" ||
			t == "Integer" || t == "Long" || t == "Short" || t == "Byte" || t == "Number"
	}
	return true
}

func isFloating(v string) bool {
	v = strings.ToLower(v)
	if strings.HasPrefix(v, "0x") {
		return false
	}
	return strings.ContainsAny(v, ".e") || strings.HasSuffix(v, "f") || strings.HasSuffix(v, "d")
}

func isIntegral(t string) bool {
	switch t {
	case "int", "long", "short", "byte":
		return true
	}
	return false
}

func isPrimitive(t string) bool {
	switch t {
	case "int", "long", "short", "byte", "char", "boolean", "double", "float":
		return true
	}
	return false
}

// narrow keeps the candidates whose parameter types accept the literal
// arguments. Trailing arguments of a varargs call are checked against the
// element type.
func narrow(cands []*unit.Method, args []unit.Arg) []*unit.Method {
	var out []*unit.Method
	for _, m := range cands {
		types := m.ID.ParamTypes()
		varargs := isVarargs(m)
		fits := true
		for i, a := range args {
			j := i
			if varargs && j >= len(types)-1 {
				j = len(types) - 1
			}
			if j >= len(types) || !literalFits(a, types[j]) {
				fits = false
				break
			}
		}
		if fits {
			out = append(out, m)
		}
	}
	return out
}
