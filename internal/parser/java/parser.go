// Package java parses Java source files with tree-sitter into compilation
// units: types with their fields, methods, and call sites.
package java

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/parser"
	"github.com/imyousuf/daotrace/internal/unit"
)

// JavaParser extracts compilation units from Java source files.
type JavaParser struct{}

// NewParser creates a new Java parser.
func NewParser() *JavaParser {
	return &JavaParser{}
}

func (p *JavaParser) Language() parser.Language {
	return parser.LangJava
}

func (p *JavaParser) Extensions() []string {
	return parser.FileExtensions[parser.LangJava]
}

// ParseFile parses one file. Syntax errors do not fail the parse; they are
// reported as a PARSE_INCOMPLETE diagnostic next to whatever was recovered.
func (p *JavaParser) ParseFile(filePath string, content []byte) (*parser.ParseResult, error) {
	lang := java.GetLanguage()
	sitterParser := sitter.NewParser()
	sitterParser.SetLanguage(lang)

	tree, err := sitterParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}

	e := &extractor{
		filePath: filePath,
		content:  content,
	}
	root := tree.RootNode()
	e.walkProgram(root)

	result := &parser.ParseResult{
		Units:    e.units,
		FilePath: filePath,
		Language: parser.LangJava,
	}
	if root.HasError() {
		result.Diagnostics = append(result.Diagnostics, diag.Diagnostic{
			Kind:     diag.ParseIncomplete,
			Severity: diag.SeverityWarning,
			Subject:  "file:" + filePath,
			Message:  "source has syntax errors; declarations near them may be missing",
			Position: e.position(firstError(root)),
		})
	}
	return result, nil
}

// extractor walks a tree-sitter Java AST and builds compilation units.
type extractor struct {
	filePath string
	content  []byte
	pkgName  string
	imports  []string
	units    []*unit.CompilationUnit
}

// typeScope collects constructor assignments of new instances to fields
// while a type body is walked.
type typeScope struct {
	u       *unit.CompilationUnit
	ctorNew map[string]string
}

func (e *extractor) walkProgram(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_declaration":
			e.extractPackage(child)
		case "import_declaration":
			e.extractImport(child)
		case "class_declaration":
			e.extractType(child, "", unit.KindClass)
		case "interface_declaration":
			e.extractType(child, "", unit.KindInterface)
		case "enum_declaration":
			e.extractType(child, "", unit.KindEnum)
		}
	}
}

func (e *extractor) extractPackage(node *sitter.Node) {
	// package_declaration contains a scoped_identifier or identifier
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
			e.pkgName = e.nodeText(child)
		}
	}
}

// extractImport records single-type and wildcard imports. Static imports
// name members, not types, and are skipped.
func (e *extractor) extractImport(node *sitter.Node) {
	name := ""
	wildcard := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "static":
			return
		case "scoped_identifier", "identifier":
			name = e.nodeText(child)
		case "asterisk":
			wildcard = true
		}
	}
	if name == "" {
		return
	}
	if wildcard {
		name += ".*"
	}
	e.imports = append(e.imports, name)
}

func (e *extractor) extractType(node *sitter.Node, outer string, kind unit.Kind) {
	name := ""
	var bodyNode *sitter.Node
	var annotations []unit.Annotation
	meta := make(map[string]string)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier":
			name = e.nodeText(child)
		case "modifiers":
			_, annotations = e.extractModifiers(child)
		case "superclass":
			if s := e.extractSuperclass(child); s != "" {
				meta["extends"] = s
			}
		case "super_interfaces", "extends_interfaces":
			if ifaces := e.extractSuperInterfaces(child); len(ifaces) > 0 {
				meta["implements"] = strings.Join(ifaces, ",")
			}
		case "class_body", "interface_body", "enum_body":
			bodyNode = child
		}
	}
	if name == "" {
		return
	}
	if outer != "" {
		name = outer + "." + name
	}

	u := &unit.CompilationUnit{
		Package:     e.pkgName,
		Name:        name,
		Kind:        kind,
		File:        e.filePath,
		Imports:     append([]string(nil), e.imports...),
		Annotations: annotations,
	}
	if len(meta) > 0 {
		u.Metadata = meta
	}
	e.units = append(e.units, u)

	if bodyNode == nil {
		return
	}
	scope := &typeScope{u: u, ctorNew: make(map[string]string)}
	e.walkTypeBody(bodyNode, scope)

	for i := range u.Fields {
		f := &u.Fields[i]
		if f.Instantiated == "" {
			f.Instantiated = scope.ctorNew[f.Name]
		}
	}
}

func (e *extractor) walkTypeBody(body *sitter.Node, scope *typeScope) {
	interfaceBody := body.Type() == "interface_body"
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "method_declaration":
			e.extractMethod(child, scope, false)
		case "constructor_declaration":
			e.extractMethod(child, scope, true)
		case "field_declaration":
			e.extractField(child, scope, interfaceBody)
		case "constant_declaration":
			e.extractField(child, scope, true)
		case "enum_body_declarations":
			e.walkTypeBody(child, scope)
		case "class_declaration":
			e.extractType(child, scope.u.Name, unit.KindClass)
		case "interface_declaration":
			e.extractType(child, scope.u.Name, unit.KindInterface)
		case "enum_declaration":
			e.extractType(child, scope.u.Name, unit.KindEnum)
		}
	}
}

func (e *extractor) extractField(node *sitter.Node, scope *typeScope, implicitConstant bool) {
	modifiers := ""
	var annotations []unit.Annotation
	fieldType := ""

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "modifiers" {
			modifiers, annotations = e.extractModifiers(child)
		}
	}
	if t := node.ChildByFieldName("type"); t != nil {
		fieldType = e.nodeText(t)
	}
	mods := strings.Fields(modifiers)
	static := implicitConstant || containsWord(mods, "static")
	final := implicitConstant || containsWord(mods, "final")

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		f := unit.Field{
			Name:        e.nodeText(nameNode),
			Type:        fieldType,
			Annotations: annotations,
			Static:      static,
			Final:       final,
			Position:    e.position(child),
		}
		if value := child.ChildByFieldName("value"); value != nil {
			if value.Type() == "object_creation_expression" {
				f.Instantiated = e.creationType(value)
			}
			if static && final && isStringType(fieldType) {
				if v, ok := e.constantValue(value, scope.u); ok {
					f.Constant, f.HasConstant = v, true
				}
			}
		}
		scope.u.Fields = append(scope.u.Fields, f)
	}
}

func (e *extractor) extractMethod(node *sitter.Node, scope *typeScope, constructor bool) {
	name := ""
	var annotations []unit.Annotation
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "modifiers" {
			_, annotations = e.extractModifiers(child)
		}
	}
	if n := node.ChildByFieldName("name"); n != nil {
		name = e.nodeText(n)
	}
	if name == "" {
		return
	}

	var params []unit.Param
	if ps := node.ChildByFieldName("parameters"); ps != nil {
		params = e.extractParams(ps)
	}
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = eraseGenerics(p.Type)
	}

	u := scope.u
	m := unit.Method{
		ID:          unit.NewMethodID(u.Package, u.Name, name, types...),
		Params:      params,
		Annotations: annotations,
		Constructor: constructor,
		Position:    e.position(node),
	}
	if body := node.ChildByFieldName("body"); body != nil {
		m.HasBody = true
		e.walkBody(body, &m)
		if constructor {
			e.collectConstructorAssignments(body, &m, scope)
		}
	}
	u.Methods = append(u.Methods, m)
}

func (e *extractor) extractParams(node *sitter.Node) []unit.Param {
	var params []unit.Param
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var p unit.Param
		switch child.Type() {
		case "formal_parameter":
			if t := child.ChildByFieldName("type"); t != nil {
				p.Type = e.nodeText(t)
			}
			if n := child.ChildByFieldName("name"); n != nil {
				p.Name = e.nodeText(n)
			}
		case "spread_parameter":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				c := child.NamedChild(j)
				switch c.Type() {
				case "modifiers":
				case "variable_declarator":
					if n := c.ChildByFieldName("name"); n != nil {
						p.Name = e.nodeText(n)
					}
				default:
					if p.Type == "" {
						p.Type = e.nodeText(c) + "..."
					}
				}
			}
		default:
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if c := child.NamedChild(j); c.Type() == "modifiers" {
				_, p.Annotations = e.extractModifiers(c)
			}
		}
		p.Type = compact(p.Type)
		params = append(params, p)
	}
	return params
}

// walkBody records locals, call sites, and string literals of a method
// body in source order.
func (e *extractor) walkBody(node *sitter.Node, m *unit.Method) {
	switch node.Type() {
	case "local_variable_declaration":
		typ := ""
		if t := node.ChildByFieldName("type"); t != nil {
			typ = compact(e.nodeText(t))
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() != "variable_declarator" {
				continue
			}
			if n := child.ChildByFieldName("name"); n != nil {
				m.Locals = append(m.Locals, unit.Local{Name: e.nodeText(n), Type: typ})
			}
		}
	case "enhanced_for_statement", "catch_formal_parameter", "resource":
		n := node.ChildByFieldName("name")
		t := node.ChildByFieldName("type")
		if t == nil {
			for i := 0; i < int(node.NamedChildCount()); i++ {
				if c := node.NamedChild(i); c.Type() == "catch_type" {
					t = c
				}
			}
		}
		if n != nil && t != nil {
			m.Locals = append(m.Locals, unit.Local{Name: e.nodeText(n), Type: compact(e.nodeText(t))})
		}
	case "method_invocation":
		m.Body = append(m.Body, unit.Node{Kind: unit.NodeCall, Call: e.callSite(node, m.ID)})
	case "string_literal":
		v, _ := e.stringValue(node)
		m.Body = append(m.Body, unit.Node{Kind: unit.NodeLiteral, Literal: &unit.Literal{
			Kind:     unit.LiteralString,
			Value:    v,
			Position: e.position(node),
		}})
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walkBody(node.NamedChild(i), m)
	}
}

func (e *extractor) callSite(node *sitter.Node, caller unit.MethodID) *unit.CallSite {
	site := &unit.CallSite{
		Caller:   caller,
		Position: e.position(node),
	}
	if obj := node.ChildByFieldName("object"); obj != nil {
		site.Receiver = e.arg(obj)
	}
	if n := node.ChildByFieldName("name"); n != nil {
		site.Member = e.nodeText(n)
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			a := args.NamedChild(i)
			if a.Type() == "line_comment" || a.Type() == "block_comment" {
				continue
			}
			site.Args = append(site.Args, e.arg(a))
		}
	}
	return site
}

// arg classifies an argument or receiver expression.
func (e *extractor) arg(node *sitter.Node) unit.Arg {
	text := e.nodeText(node)
	switch node.Type() {
	case "string_literal":
		if v, ok := e.stringValue(node); ok {
			return unit.StringLiteral(v)
		}
		return unit.Opaque(text)
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal",
		"binary_integer_literal", "decimal_floating_point_literal", "hex_floating_point_literal":
		return unit.NumberLiteral(text)
	case "true", "false":
		return unit.Arg{Kind: unit.ArgLiteral, Literal: unit.LiteralBool, Value: text}
	case "character_literal":
		return unit.Arg{Kind: unit.ArgLiteral, Literal: unit.LiteralChar, Value: text}
	case "null_literal":
		return unit.Arg{Kind: unit.ArgLiteral, Literal: unit.LiteralNull, Value: text}
	case "identifier", "this", "super":
		return unit.Variable(text)
	case "field_access":
		obj := node.ChildByFieldName("object")
		field := node.ChildByFieldName("field")
		if obj != nil && field != nil && obj.Type() == "this" {
			return unit.FieldRef(e.nodeText(field))
		}
		return unit.Variable(compact(text))
	case "scoped_identifier":
		return unit.Variable(compact(text))
	case "object_creation_expression":
		return unit.Arg{Kind: unit.ArgNew, Value: e.creationType(node)}
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return e.arg(node.NamedChild(0))
		}
	case "binary_expression":
		if op := node.ChildByFieldName("operator"); op != nil && op.Type() == "+" {
			left, right := node.ChildByFieldName("left"), node.ChildByFieldName("right")
			if left != nil && right != nil {
				var parts []unit.Arg
				for _, a := range []unit.Arg{e.arg(left), e.arg(right)} {
					if a.Kind == unit.ArgConcat {
						parts = append(parts, a.Parts...)
					} else {
						parts = append(parts, a)
					}
				}
				return unit.Arg{Kind: unit.ArgConcat, Parts: parts}
			}
		}
	}
	return unit.Opaque(text)
}

// constantValue statically evaluates a constant initializer from string
// literals and constants declared earlier in the same type.
func (e *extractor) constantValue(node *sitter.Node, u *unit.CompilationUnit) (string, bool) {
	a := e.arg(node)
	return evalConstant(a, u)
}

func evalConstant(a unit.Arg, u *unit.CompilationUnit) (string, bool) {
	switch a.Kind {
	case unit.ArgLiteral:
		if a.Literal == unit.LiteralString {
			return a.Value, true
		}
	case unit.ArgVariable, unit.ArgField:
		if f, ok := u.Field(a.Value); ok && f.HasConstant {
			return f.Constant, true
		}
	case unit.ArgConcat:
		var b strings.Builder
		for _, p := range a.Parts {
			v, ok := evalConstant(p, u)
			if !ok {
				return "", false
			}
			b.WriteString(v)
		}
		return b.String(), true
	}
	return "", false
}

// collectConstructorAssignments records "this.f = new T()" and "f = new T()"
// assignments to fields not shadowed by a parameter.
func (e *extractor) collectConstructorAssignments(node *sitter.Node, m *unit.Method, scope *typeScope) {
	if node.Type() == "assignment_expression" {
		left, right := node.ChildByFieldName("left"), node.ChildByFieldName("right")
		if left != nil && right != nil && right.Type() == "object_creation_expression" {
			field := ""
			switch left.Type() {
			case "field_access":
				obj, f := left.ChildByFieldName("object"), left.ChildByFieldName("field")
				if obj != nil && f != nil && obj.Type() == "this" {
					field = e.nodeText(f)
				}
			case "identifier":
				name := e.nodeText(left)
				_, isParam := m.Param(name)
				_, isLocal := m.Local(name)
				if !isParam && !isLocal {
					field = name
				}
			}
			if field != "" {
				if _, seen := scope.ctorNew[field]; !seen {
					scope.ctorNew[field] = e.creationType(right)
				}
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.collectConstructorAssignments(node.NamedChild(i), m, scope)
	}
}

// creationType returns the instantiated type of "new T(...)".
func (e *extractor) creationType(node *sitter.Node) string {
	if t := node.ChildByFieldName("type"); t != nil {
		return compact(e.nodeText(t))
	}
	return ""
}

// extractModifiers returns the keyword modifiers and the annotations of a
// modifiers node.
func (e *extractor) extractModifiers(node *sitter.Node) (string, []unit.Annotation) {
	var mods []string
	var annotations []unit.Annotation
	// Iterate all children (named and unnamed) to get keyword modifiers and annotations
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "marker_annotation", "annotation":
			annotations = append(annotations, parseAnnotation(e.nodeText(child)))
		default:
			text := e.nodeText(child)
			switch text {
			case "public", "private", "protected", "static", "final", "abstract",
				"synchronized", "volatile", "transient", "native", "default":
				mods = append(mods, text)
			}
		}
	}

	return strings.Join(mods, " "), annotations
}

func (e *extractor) extractSuperclass(node *sitter.Node) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_identifier" || child.Type() == "generic_type" || child.Type() == "scoped_type_identifier" {
			return e.nodeText(child)
		}
	}
	return ""
}

func (e *extractor) extractSuperInterfaces(node *sitter.Node) []string {
	var ifaces []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_list" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				ifaces = append(ifaces, e.nodeText(child.NamedChild(j)))
			}
		} else if child.Type() == "type_identifier" || child.Type() == "generic_type" {
			ifaces = append(ifaces, e.nodeText(child))
		}
	}
	return ifaces
}

// stringValue decodes a Java string literal. Text blocks and literals with
// escapes Go cannot decode report false.
func (e *extractor) stringValue(node *sitter.Node) (string, bool) {
	raw := e.nodeText(node)
	if strings.HasPrefix(raw, `"""`) {
		return raw, false
	}
	if v, err := strconv.Unquote(raw); err == nil {
		return v, true
	}
	if strings.Contains(raw, `\`) {
		return cleanJavaString(raw), false
	}
	return cleanJavaString(raw), true
}

func (e *extractor) nodeText(node *sitter.Node) string {
	return node.Content(e.content)
}

func (e *extractor) position(node *sitter.Node) unit.Position {
	if node == nil {
		return unit.Position{File: e.filePath}
	}
	p := node.StartPoint()
	return unit.Position{File: e.filePath, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// Helper functions

// firstError returns the first error or missing node in document order.
func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

// parseAnnotation splits `@Name(args)` into its name and raw arguments.
func parseAnnotation(text string) unit.Annotation {
	text = strings.TrimPrefix(strings.TrimSpace(text), "@")
	i := strings.IndexByte(text, '(')
	if i < 0 {
		return unit.Annotation{Name: strings.TrimSpace(text)}
	}
	args := strings.TrimSpace(text[i+1:])
	args = strings.TrimSuffix(args, ")")
	return unit.Annotation{Name: strings.TrimSpace(text[:i]), Args: strings.TrimSpace(args)}
}

// eraseGenerics drops type arguments so "Map<String, User>" becomes "Map".
func eraseGenerics(t string) string {
	var b strings.Builder
	depth := 0
	for _, r := range t {
		switch {
		case r == '<':
			depth++
		case r == '>':
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return compact(b.String())
}

// compact removes all whitespace from a type or name expression.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// cleanJavaString removes surrounding quotes from a Java string literal.
func cleanJavaString(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isStringType(t string) bool {
	t = compact(t)
	return t == "String" || t == "java.lang.String"
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
