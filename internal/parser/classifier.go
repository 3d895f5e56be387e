package parser

import (
	"path"
	"strings"

	"github.com/imyousuf/daotrace/internal/unit"
)

// LayerRule lists the markers that place a unit in one layer.
type LayerRule struct {
	Layer unit.Layer
	// Annotations on the type, without "@".
	Annotations []string
	// Suffixes of the simple type name, e.g. "Dao" for UserDao.
	Suffixes []string
	// Packages are package or directory segments, e.g. "dao".
	Packages []string
}

// DefaultRules returns the layer rules for conventional Java projects. Rules
// are tried in order within each kind of evidence.
func DefaultRules() []LayerRule {
	return []LayerRule{
		{
			Layer:       unit.LayerController,
			Annotations: []string{"Controller", "RestController"},
			Suffixes:    []string{"Controller"},
			Packages:    []string{"controller", "controllers", "web"},
		},
		{
			Layer:       unit.LayerDAO,
			Annotations: []string{"Repository", "Mapper"},
			Suffixes:    []string{"Dao", "DAO", "Mapper", "Repository"},
			Packages:    []string{"dao", "mapper", "repository", "repositories"},
		},
		{
			Layer:       unit.LayerLogic,
			Annotations: []string{"Service"},
			Suffixes:    []string{"Logic", "Service", "ServiceImpl"},
			Packages:    []string{"logic", "service", "services"},
		},
		{
			Layer:       unit.LayerModel,
			Annotations: []string{"Entity", "Table"},
			Packages:    []string{"model", "entity", "domain", "dto"},
		},
	}
}

// Classifier performs post-parse layer classification of units based on
// annotations, naming conventions, and package paths.
type Classifier struct {
	rules []LayerRule
}

// NewClassifier creates a Classifier. Nil rules select DefaultRules.
func NewClassifier(rules []LayerRule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify sets the layer of every unit in result that has none yet.
func (c *Classifier) Classify(result *ParseResult) *ParseResult {
	for _, u := range result.Units {
		if u.Layer == unit.LayerUnknown {
			u.Layer = c.ClassifyUnit(u)
		}
	}
	return result
}

// ClassifyUnit returns the layer of a unit. Annotations win over the type
// name, and the type name wins over the package path. Nested types are
// classified by their own simple name.
func (c *Classifier) ClassifyUnit(u *unit.CompilationUnit) unit.Layer {
	for _, r := range c.rules {
		if len(r.Annotations) > 0 && u.HasAnnotation(r.Annotations...) {
			return r.Layer
		}
	}

	name := u.Name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	for _, r := range c.rules {
		for _, s := range r.Suffixes {
			if strings.HasSuffix(name, s) && len(name) > len(s) {
				return r.Layer
			}
		}
	}

	// The innermost package segment decides; directories stand in for a
	// missing package declaration.
	segments := packageSegments(u)
	for i := len(segments) - 1; i >= 0; i-- {
		for _, r := range c.rules {
			if containsAny(r.Packages, segments[i]) {
				return r.Layer
			}
		}
	}
	return unit.LayerUnknown
}

func packageSegments(u *unit.CompilationUnit) []string {
	if u.Package != "" {
		return strings.Split(u.Package, ".")
	}
	dir := path.Dir(strings.ReplaceAll(u.File, "\\", "/"))
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(strings.Trim(dir, "/"), "/")
}

// containsAny checks whether any of the target values appear in the slice.
func containsAny(slice []string, targets ...string) bool {
	for _, s := range slice {
		for _, t := range targets {
			if s == t {
				return true
			}
		}
	}
	return false
}
