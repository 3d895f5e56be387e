// Package pattern holds the catalog of recognizers that turn call sites and
// method declarations into normalized call facts.
package pattern

import (
	"sync"

	"github.com/imyousuf/daotrace/internal/unit"
)

// Scope is the context a pattern sees around a call site.
type Scope struct {
	Unit   *unit.CompilationUnit
	Method *unit.Method
	Index  *Index
}

// Pattern recognizes one calling idiom at a call site.
type Pattern interface {
	// Name identifies the pattern in facts and logs.
	Name() string
	// Match returns a fact when the site follows the idiom.
	Match(site *unit.CallSite, scope Scope) (Fact, bool)
}

// MethodPattern recognizes an idiom from a method declaration alone.
type MethodPattern interface {
	Name() string
	MatchMethod(m *unit.Method, scope Scope) (Fact, bool)
}

// Catalog is an ordered registry of patterns. Patterns are tried in
// registration order and the first match wins. Safe for concurrent Match
// calls.
type Catalog struct {
	mu             sync.RWMutex
	patterns       []Pattern
	methodPatterns []MethodPattern
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// NewDefault creates a catalog with the built-in patterns registered in order:
// structural delegation, literal session call, and the local-call fallback,
// plus the parameter-bound interface declaration pattern.
func NewDefault(opts Options) *Catalog {
	c := New()
	c.Register(NewDelegationPattern(opts))
	c.Register(NewSessionPattern(opts))
	c.Register(NewLocalCallPattern())
	c.RegisterMethod(NewParamBoundPattern(opts))
	return c
}

// Register appends a call-site pattern.
func (c *Catalog) Register(p Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, p)
}

// RegisterMethod appends a declaration pattern.
func (c *Catalog) RegisterMethod(p MethodPattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methodPatterns = append(c.methodPatterns, p)
}

// Names returns the registered pattern names in order, call-site patterns first.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.patterns)+len(c.methodPatterns))
	for _, p := range c.patterns {
		names = append(names, p.Name())
	}
	for _, p := range c.methodPatterns {
		names = append(names, p.Name())
	}
	return names
}

// Match tries every call-site pattern in order.
func (c *Catalog) Match(site *unit.CallSite, scope Scope) (Fact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.patterns {
		if f, ok := p.Match(site, scope); ok {
			if f.Pattern == "" {
				f.Pattern = p.Name()
			}
			return f, true
		}
	}
	return Fact{}, false
}

// MatchMethod tries every declaration pattern in order.
func (c *Catalog) MatchMethod(m *unit.Method, scope Scope) (Fact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.methodPatterns {
		if f, ok := p.MatchMethod(m, scope); ok {
			if f.Pattern == "" {
				f.Pattern = p.Name()
			}
			return f, true
		}
	}
	return Fact{}, false
}
