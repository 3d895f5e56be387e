package parser

import (
	"path/filepath"
	"sort"
	"strings"
)

// Registry maps file extensions to source parsers. It is built once and
// read concurrently by the parse workers.
type Registry struct {
	byExt map[string]Parser
	langs []Language
}

// NewRegistry indexes parsers by their extensions. A later parser claiming
// an extension replaces an earlier one.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	seen := make(map[Language]bool)
	for _, p := range parsers {
		if !seen[p.Language()] {
			seen[p.Language()] = true
			r.langs = append(r.langs, p.Language())
		}
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// For returns the parser for path, chosen by its extension without regard
// to case.
func (r *Registry) For(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Languages returns the registered languages in registration order.
func (r *Registry) Languages() []Language {
	return append([]Language(nil), r.langs...)
}

// Extensions returns every handled extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
