// Package unit defines the normalized, read-only model of one parsed
// compilation unit that the resolution engine consumes.
//
// Units are produced by a parser collaborator and must not be modified after
// they have been handed to Validate. Slices keep declaration order as written
// in the source so that every traversal is deterministic.
package unit

import (
	"fmt"
	"strings"
)

// Layer is the architectural layer a unit belongs to.
type Layer string

const (
	LayerUnknown    Layer = ""
	LayerLogic      Layer = "logic"
	LayerDAO        Layer = "dao"
	LayerModel      Layer = "model"
	LayerController Layer = "controller"
)

// Kind is the declaration kind of a unit.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindEnum      Kind = "enum"
)

// MethodID is the fully qualified identity of a method. It is comparable and
// used as a map key throughout the engine.
type MethodID struct {
	Package string `json:"package,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	// Params is the comma-joined ordered list of parameter types.
	Params string `json:"params,omitempty"`
}

// NewMethodID builds a MethodID from its parts.
func NewMethodID(pkg, typeName, name string, params ...string) MethodID {
	return MethodID{
		Package: pkg,
		Type:    typeName,
		Name:    name,
		Params:  strings.Join(params, ","),
	}
}

// ParamTypes returns the ordered parameter types.
func (id MethodID) ParamTypes() []string {
	if id.Params == "" {
		return nil
	}
	return strings.Split(id.Params, ",")
}

// Arity returns the number of parameters.
func (id MethodID) Arity() int {
	if id.Params == "" {
		return 0
	}
	return strings.Count(id.Params, ",") + 1
}

// TypeName returns the qualified name of the declaring type.
func (id MethodID) TypeName() string {
	if id.Package == "" {
		return id.Type
	}
	return id.Package + "." + id.Type
}

// String renders the id as pkg.Type#name(T1,T2).
func (id MethodID) String() string {
	return id.TypeName() + "#" + id.Name + "(" + id.Params + ")"
}

// IsZero reports whether the id is unset.
func (id MethodID) IsZero() bool {
	return id == MethodID{}
}

// Position locates a node in source.
type Position struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Less orders positions by file, line, then column.
func (p Position) Less(o Position) bool {
	if p.File != o.File {
		return p.File < o.File
	}
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Annotation is a marker attached to a unit, field, method, or parameter.
// Name has no leading "@"; Args holds the raw argument text without parens.
type Annotation struct {
	Name string
	Args string
}

// CompilationUnit is one analyzed type.
type CompilationUnit struct {
	Package     string
	Name        string
	Kind        Kind
	File        string
	Imports     []string
	Annotations []Annotation
	// Layer is a classification hint from the parser collaborator.
	Layer   Layer
	Fields  []Field
	Methods []Method
	// Metadata carries extra parser output. The engine ignores it.
	Metadata map[string]string
}

// QualifiedName returns the package-qualified type name.
func (u *CompilationUnit) QualifiedName() string {
	if u.Package == "" {
		return u.Name
	}
	return u.Package + "." + u.Name
}

// Field returns the field with the given name.
func (u *CompilationUnit) Field(name string) (*Field, bool) {
	for i := range u.Fields {
		if u.Fields[i].Name == name {
			return &u.Fields[i], true
		}
	}
	return nil, false
}

// HasAnnotation reports whether the unit carries any of the named annotations.
func (u *CompilationUnit) HasAnnotation(names ...string) bool {
	return hasAnnotation(u.Annotations, names)
}

// Field is a field declaration.
type Field struct {
	Name        string
	Type        string
	Annotations []Annotation
	// Injected is set when the field carries an injection marker.
	Injected bool
	// Instantiated is the type name of a direct instantiation stored in the
	// field, from its initializer or a constructor assignment.
	Instantiated string
	Static       bool
	Final        bool
	// Constant is the value of a static final String initialized from a
	// literal. HasConstant distinguishes an empty constant from none.
	Constant    string
	HasConstant bool
	Position    Position
}

// HasAnnotation reports whether the field carries any of the named annotations.
func (f *Field) HasAnnotation(names ...string) bool {
	return hasAnnotation(f.Annotations, names)
}

// Param is a method parameter.
type Param struct {
	Name        string
	Type        string
	Annotations []Annotation
}

// HasAnnotation reports whether the parameter carries any of the named annotations.
func (p *Param) HasAnnotation(names ...string) bool {
	return hasAnnotation(p.Annotations, names)
}

// Local is a local variable declared in a method body.
type Local struct {
	Name string
	Type string
}

// Method is a method or constructor declaration.
type Method struct {
	ID          MethodID
	Params      []Param
	Locals      []Local
	Annotations []Annotation
	Constructor bool
	// HasBody is false for interface and abstract declarations.
	HasBody  bool
	Body     []Node
	Position Position
}

// Param returns the parameter with the given name.
func (m *Method) Param(name string) (*Param, bool) {
	for i := range m.Params {
		if m.Params[i].Name == name {
			return &m.Params[i], true
		}
	}
	return nil, false
}

// Local returns the local variable with the given name.
func (m *Method) Local(name string) (*Local, bool) {
	for i := range m.Locals {
		if m.Locals[i].Name == name {
			return &m.Locals[i], true
		}
	}
	return nil, false
}

// CallSites returns the call sites of the body in order.
func (m *Method) CallSites() []*CallSite {
	var sites []*CallSite
	for i := range m.Body {
		if m.Body[i].Kind == NodeCall && m.Body[i].Call != nil {
			sites = append(sites, m.Body[i].Call)
		}
	}
	return sites
}

// NodeKind discriminates body nodes.
type NodeKind int

const (
	NodeCall NodeKind = iota
	NodeLiteral
)

// Node is one element of a method body.
type Node struct {
	Kind    NodeKind
	Call    *CallSite
	Literal *Literal
}

// CallSite is one call expression inside a method body.
type CallSite struct {
	Caller MethodID
	// Receiver is the zero Arg for an unqualified call.
	Receiver Arg
	Member   string
	Args     []Arg
	Position Position
}

// Unqualified reports whether the call has no receiver expression.
func (c *CallSite) Unqualified() bool {
	return c.Receiver.Kind == ArgNone
}

// ArgKind discriminates argument and receiver expressions.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgLiteral
	ArgVariable
	ArgField
	ArgNew
	ArgConcat
	ArgOpaque
)

func (k ArgKind) String() string {
	switch k {
	case ArgNone:
		return "none"
	case ArgLiteral:
		return "literal"
	case ArgVariable:
		return "variable"
	case ArgField:
		return "field"
	case ArgNew:
		return "new"
	case ArgConcat:
		return "concat"
	case ArgOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// LiteralKind is the type of a literal value.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralChar
	LiteralNull
)

// Arg is an argument or receiver expression.
//
// Value holds the decoded literal for ArgLiteral, the name for ArgVariable
// and ArgField, the type name for ArgNew, and the source text for ArgOpaque.
type Arg struct {
	Kind    ArgKind
	Value   string
	Literal LiteralKind
	Parts   []Arg
}

// StringLiteral builds a string literal argument.
func StringLiteral(v string) Arg { return Arg{Kind: ArgLiteral, Literal: LiteralString, Value: v} }

// NumberLiteral builds a numeric literal argument.
func NumberLiteral(v string) Arg { return Arg{Kind: ArgLiteral, Literal: LiteralNumber, Value: v} }

// Variable builds a variable reference.
func Variable(name string) Arg { return Arg{Kind: ArgVariable, Value: name} }

// FieldRef builds a this-qualified field access.
func FieldRef(name string) Arg { return Arg{Kind: ArgField, Value: name} }

// Opaque builds an opaque sub-expression.
func Opaque(text string) Arg { return Arg{Kind: ArgOpaque, Value: text} }

// Literal is a literal value appearing in a method body.
type Literal struct {
	Kind     LiteralKind
	Value    string
	Position Position
}

func hasAnnotation(anns []Annotation, names []string) bool {
	for _, a := range anns {
		for _, n := range names {
			if a.Name == n || strings.HasSuffix(a.Name, "."+n) {
				return true
			}
		}
	}
	return false
}
