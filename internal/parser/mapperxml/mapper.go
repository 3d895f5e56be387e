// Package mapperxml indexes MyBatis mapper XML files by namespace, tag and
// statement id. Statement bodies are never read.
package mapperxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// ErrNotMapper is returned for well-formed XML whose root is not <mapper>.
var ErrNotMapper = errors.New("not a mapper document")

// Tags that declare a statement inside <mapper>.
var statementTags = map[string]bool{
	"select": true,
	"insert": true,
	"update": true,
	"delete": true,
	"sql":    true,
}

// Statement is one declared statement.
type Statement struct {
	Ref      pattern.StatementRef `json:"ref"`
	Tag      string               `json:"tag"`
	Position unit.Position        `json:"position"`
}

// Mapper is the parsed form of one mapper file.
type Mapper struct {
	File       string
	Namespace  string
	Statements []Statement
}

// Parse reads one mapper document. It returns ErrNotMapper when the root
// element is something else, so callers can skip unrelated XML files.
func Parse(file string, r io.Reader) (*Mapper, error) {
	dec := xml.NewDecoder(r)

	var (
		m     *Mapper
		depth int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if t.Name.Local != "mapper" {
					return nil, ErrNotMapper
				}
				m = &Mapper{File: file, Namespace: attr(t, "namespace")}
				if m.Namespace == "" {
					return nil, fmt.Errorf("parse %s: mapper has no namespace", file)
				}
				continue
			}
			if depth != 2 || !statementTags[t.Name.Local] {
				continue
			}
			id := attr(t, "id")
			if id == "" {
				continue
			}
			line, col := dec.InputPos()
			m.Statements = append(m.Statements, Statement{
				Ref:      pattern.StatementRef{Namespace: m.Namespace, Operation: id},
				Tag:      t.Name.Local,
				Position: unit.Position{File: file, Line: line, Column: col},
			})
		case xml.EndElement:
			depth--
		}
	}
	if m == nil {
		return nil, ErrNotMapper
	}
	return m, nil
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Index is a lookup table of declared statements. It satisfies the resolver's
// statement index. Add is not safe for concurrent use; lookups are once
// loading is done.
type Index struct {
	namespaces map[string]string
	statements map[pattern.StatementRef]Statement
	files      int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		namespaces: make(map[string]string),
		statements: make(map[pattern.StatementRef]Statement),
	}
}

// AddFile parses content and adds it to the index. Files that are not
// mappers are skipped and report false. Statements already declared by an
// earlier file keep their first declaration and yield DUPLICATE_STATEMENT.
func (ix *Index) AddFile(file string, content []byte) (bool, []diag.Diagnostic, error) {
	m, err := Parse(file, bytes.NewReader(content))
	if errors.Is(err, ErrNotMapper) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, ix.Add(m), nil
}

// Add merges a parsed mapper into the index.
func (ix *Index) Add(m *Mapper) []diag.Diagnostic {
	var diags []diag.Diagnostic
	ix.files++
	if _, ok := ix.namespaces[m.Namespace]; !ok {
		ix.namespaces[m.Namespace] = m.File
	}
	for _, s := range m.Statements {
		if prev, ok := ix.statements[s.Ref]; ok {
			diags = append(diags, diag.Diagnostic{
				Kind:     diag.DuplicateStatement,
				Severity: diag.SeverityWarning,
				Subject:  "statement:" + s.Ref.String(),
				Message:  fmt.Sprintf("statement also declared at %s", prev.Position),
				Position: s.Position,
			})
			continue
		}
		ix.statements[s.Ref] = s
	}
	return diags
}

// HasNamespace reports whether a mapper declared ns.
func (ix *Index) HasNamespace(ns string) bool {
	_, ok := ix.namespaces[ns]
	return ok
}

// Lookup returns the tag that declares ref.
func (ix *Index) Lookup(ref pattern.StatementRef) (string, bool) {
	s, ok := ix.statements[ref]
	return s.Tag, ok
}

// Statement returns the full declaration of ref.
func (ix *Index) Statement(ref pattern.StatementRef) (Statement, bool) {
	s, ok := ix.statements[ref]
	return s, ok
}

// Len returns the number of indexed statements.
func (ix *Index) Len() int { return len(ix.statements) }

// Files returns the number of mapper files added.
func (ix *Index) Files() int { return ix.files }

// Statements returns every declaration sorted by reference.
func (ix *Index) Statements() []Statement {
	out := make([]Statement, 0, len(ix.statements))
	for _, s := range ix.statements {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out
}
