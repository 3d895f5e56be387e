package parser

import (
	"testing"

	"github.com/imyousuf/daotrace/internal/unit"
)

func TestClassifyUnit(t *testing.T) {
	tests := []struct {
		name string
		u    unit.CompilationUnit
		want unit.Layer
	}{
		{
			name: "dao suffix",
			u:    unit.CompilationUnit{Name: "UserDao", File: "UserDao.java"},
			want: unit.LayerDAO,
		},
		{
			name: "upper DAO suffix",
			u:    unit.CompilationUnit{Name: "UserDAO", Kind: unit.KindInterface},
			want: unit.LayerDAO,
		},
		{
			name: "logic suffix",
			u:    unit.CompilationUnit{Package: "com.example", Name: "UserLogic"},
			want: unit.LayerLogic,
		},
		{
			name: "service annotation beats package",
			u: unit.CompilationUnit{Package: "com.example.dao", Name: "Helper",
				Annotations: []unit.Annotation{{Name: "Service"}}},
			want: unit.LayerLogic,
		},
		{
			name: "qualified annotation",
			u: unit.CompilationUnit{Name: "Orders",
				Annotations: []unit.Annotation{{Name: "org.apache.ibatis.annotations.Mapper"}}},
			want: unit.LayerDAO,
		},
		{
			name: "rest controller",
			u: unit.CompilationUnit{Name: "Users",
				Annotations: []unit.Annotation{{Name: "RestController"}}},
			want: unit.LayerController,
		},
		{
			name: "innermost package segment",
			u:    unit.CompilationUnit{Package: "com.example.model.dao", Name: "Rows"},
			want: unit.LayerDAO,
		},
		{
			name: "model package",
			u:    unit.CompilationUnit{Package: "model", Name: "User"},
			want: unit.LayerModel,
		},
		{
			name: "directory without package",
			u:    unit.CompilationUnit{Name: "Product", File: "sample_project/model/Product.java"},
			want: unit.LayerModel,
		},
		{
			name: "nested type uses its own name",
			u:    unit.CompilationUnit{Package: "app", Name: "UserLogic.RowDao"},
			want: unit.LayerDAO,
		},
		{
			name: "bare suffix is not a match",
			u:    unit.CompilationUnit{Package: "app", Name: "Dao"},
			want: unit.LayerUnknown,
		},
		{
			name: "unknown",
			u:    unit.CompilationUnit{Package: "util", Name: "Strings"},
			want: unit.LayerUnknown,
		},
	}

	c := NewClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ClassifyUnit(&tt.u); got != tt.want {
				t.Errorf("ClassifyUnit() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyKeepsExistingLayer(t *testing.T) {
	u := &unit.CompilationUnit{Name: "UserDao", Layer: unit.LayerLogic}
	other := &unit.CompilationUnit{Name: "OrderDao"}
	NewClassifier(nil).Classify(&ParseResult{Units: []*unit.CompilationUnit{u, other}})

	if u.Layer != unit.LayerLogic {
		t.Errorf("preset layer overwritten: %q", u.Layer)
	}
	if other.Layer != unit.LayerDAO {
		t.Errorf("layer = %q, want dao", other.Layer)
	}
}

func TestCustomRules(t *testing.T) {
	c := NewClassifier([]LayerRule{{Layer: unit.LayerDAO, Suffixes: []string{"Store"}}})
	if got := c.ClassifyUnit(&unit.CompilationUnit{Name: "UserStore"}); got != unit.LayerDAO {
		t.Errorf("custom suffix: got %q, want dao", got)
	}
	if got := c.ClassifyUnit(&unit.CompilationUnit{Name: "UserDao"}); got != unit.LayerUnknown {
		t.Errorf("default rule applied with custom rules: got %q", got)
	}
}

type stubParser struct{ lang Language }

func (s stubParser) Language() Language   { return s.lang }
func (s stubParser) Extensions() []string { return FileExtensions[s.lang] }
func (s stubParser) ParseFile(string, []byte) (*ParseResult, error) {
	return &ParseResult{Language: s.lang}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubParser{lang: LangJava})

	tests := []struct {
		path string
		want bool
	}{
		{"dao/UserDao.java", true},
		{"legacy/OLD.JAVA", true},
		{"build.kt", false},
		{"Makefile", false},
	}
	for _, tt := range tests {
		if _, ok := r.For(tt.path); ok != tt.want {
			t.Errorf("For(%q) found = %v, want %v", tt.path, ok, tt.want)
		}
	}
	if got := r.Extensions(); len(got) != 1 || got[0] != ".java" {
		t.Errorf("Extensions() = %v", got)
	}
	if got := r.Languages(); len(got) != 1 || got[0] != LangJava {
		t.Errorf("Languages() = %v", got)
	}
}
