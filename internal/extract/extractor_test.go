package extract

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

func call(caller unit.MethodID, recv unit.Arg, member string, line int, args ...unit.Arg) unit.Node {
	return unit.Node{Kind: unit.NodeCall, Call: &unit.CallSite{
		Caller:   caller,
		Receiver: recv,
		Member:   member,
		Args:     args,
		Position: unit.Position{File: caller.Type + ".java", Line: line},
	}}
}

// sampleUnits returns n logic classes delegating to one session-style DAO.
func sampleUnits(n int) []*unit.CompilationUnit {
	get := unit.NewMethodID("dao", "UserDao", "getUser", "int")
	del := unit.NewMethodID("dao", "UserDao", "deleteUser", "int")
	dao := &unit.CompilationUnit{
		Package: "dao", Name: "UserDao", Kind: unit.KindClass, File: "dao/UserDao.java", Layer: unit.LayerDAO,
		Fields: []unit.Field{{Name: "sqlSession", Type: "SqlSession"}},
		Methods: []unit.Method{
			{ID: get, Params: []unit.Param{{Name: "id", Type: "int"}}, HasBody: true, Body: []unit.Node{
				call(get, unit.FieldRef("sqlSession"), "selectOne", 10, unit.StringLiteral("UserMapper.getUserById"), unit.Variable("id")),
			}},
			{ID: del, Params: []unit.Param{{Name: "id", Type: "int"}}, HasBody: true, Body: []unit.Node{
				call(del, unit.FieldRef("sqlSession"), "delete", 20, unit.StringLiteral("UserMapper.deleteUser"), unit.Variable("id")),
				call(del, unit.FieldRef("sqlSession"), "delete", 21, unit.Variable("key")),
			}},
		},
	}
	units := []*unit.CompilationUnit{dao}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Logic%02d", i)
		run := unit.NewMethodID("logic", name, "run")
		units = append(units, &unit.CompilationUnit{
			Package: "logic", Name: name, Kind: unit.KindClass, File: "logic/" + name + ".java",
			Layer:   unit.LayerLogic,
			Imports: []string{"dao.UserDao"},
			Fields:  []unit.Field{{Name: "userDao", Type: "UserDao", Instantiated: "UserDao"}},
			Methods: []unit.Method{
				{ID: run, HasBody: true, Body: []unit.Node{
					call(run, unit.FieldRef("userDao"), "getUser", 5, unit.NumberLiteral("1")),
					call(run, unit.FieldRef("userDao"), "deleteUser", 6, unit.NumberLiteral("2")),
					call(run, unit.FieldRef("userDao"), "getUser", 7, unit.NumberLiteral("3")),
				}},
			},
		})
	}
	return units
}

func extract(t *testing.T, units []*unit.CompilationUnit, workers int) Result {
	t.Helper()
	opts := pattern.DefaultOptions()
	ix := pattern.NewIndex(units, opts)
	ex := New(pattern.NewDefault(opts), ix, Config{Workers: workers})
	res := ex.Extract(context.Background(), units)
	pattern.SortFacts(res.Facts)
	diag.Sort(res.Diagnostics)
	return res
}

func TestExtractDeterministicAcrossWorkers(t *testing.T) {
	units := sampleUnits(24)
	want := extract(t, units, 1)
	if len(want.Facts) == 0 {
		t.Fatal("expected facts")
	}

	for _, workers := range []int{2, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got := extract(t, units, workers)
			if !reflect.DeepEqual(got.Facts, want.Facts) {
				t.Errorf("facts with %d workers differ from 1 worker", workers)
			}
			if !reflect.DeepEqual(got.Diagnostics, want.Diagnostics) {
				t.Errorf("diagnostics with %d workers differ from 1 worker", workers)
			}
		})
	}
}

func TestExtractInputOrderIndependent(t *testing.T) {
	units := sampleUnits(10)
	want := extract(t, units, 4)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]*unit.CompilationUnit(nil), units...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := extract(t, shuffled, 4)
		if !reflect.DeepEqual(got.Facts, want.Facts) {
			t.Fatalf("shuffle %d: facts differ", i)
		}
	}
}

func TestExtractFacts(t *testing.T) {
	res := extract(t, sampleUnits(1), 2)
	if res.Units != 2 {
		t.Errorf("Units = %d, want 2", res.Units)
	}

	counts := make(map[pattern.FactKind]map[pattern.Status]int)
	for _, f := range res.Facts {
		if counts[f.Kind] == nil {
			counts[f.Kind] = make(map[pattern.Status]int)
		}
		counts[f.Kind][f.Status]++
	}

	tests := []struct {
		kind   pattern.FactKind
		status pattern.Status
		want   int
	}{
		{pattern.FactDeclared, pattern.StatusResolved, 3},
		{pattern.FactLogicToDAO, pattern.StatusResolved, 3},
		{pattern.FactDAOToStatement, pattern.StatusResolved, 2},
		{pattern.FactDAOToStatement, pattern.StatusUnresolved, 1},
	}
	for _, tt := range tests {
		if got := counts[tt.kind][tt.status]; got != tt.want {
			t.Errorf("%s/%s facts = %d, want %d", tt.kind, tt.status, got, tt.want)
		}
	}
}

type panicPattern struct{ member string }

func (p panicPattern) Name() string { return "panics" }

func (p panicPattern) Match(site *unit.CallSite, _ pattern.Scope) (pattern.Fact, bool) {
	if site.Member == p.member {
		panic("boom")
	}
	return pattern.Fact{}, false
}

func TestExtractRecoversFromPanic(t *testing.T) {
	units := sampleUnits(2)
	bad := unit.NewMethodID("logic", "Broken", "run")
	units = append(units, &unit.CompilationUnit{
		Package: "logic", Name: "Broken", Kind: unit.KindClass, File: "logic/Broken.java",
		Methods: []unit.Method{{ID: bad, HasBody: true, Body: []unit.Node{
			call(bad, unit.Arg{}, "explode", 3),
		}}},
	})

	opts := pattern.DefaultOptions()
	cat := pattern.NewDefault(opts)
	cat.Register(panicPattern{member: "explode"})
	ex := New(cat, pattern.NewIndex(units, opts), Config{Workers: 3})
	res := ex.Extract(context.Background(), units)

	if n := diag.Count(res.Diagnostics, diag.ExtractionFailed); n != 1 {
		t.Fatalf("EXTRACTION_FAILED = %d, want 1", n)
	}
	for _, d := range res.Diagnostics {
		if d.Kind == diag.ExtractionFailed && d.Subject != "type:logic.Broken" {
			t.Errorf("subject = %q, want type:logic.Broken", d.Subject)
		}
	}

	// The other units still produce their facts.
	edges := 0
	for _, f := range res.Facts {
		if f.Kind == pattern.FactLogicToDAO {
			edges++
		}
	}
	if edges != 6 {
		t.Errorf("LOGIC_TO_DAO facts = %d, want 6", edges)
	}
}

func TestExtractMalformedCallSite(t *testing.T) {
	m := unit.NewMethodID("logic", "Odd", "run")
	units := []*unit.CompilationUnit{{
		Package: "logic", Name: "Odd", Kind: unit.KindClass, File: "logic/Odd.java",
		Methods: []unit.Method{{ID: m, HasBody: true, Body: []unit.Node{
			{Kind: unit.NodeCall},
			{Kind: unit.NodeCall, Call: &unit.CallSite{Caller: m, Position: unit.Position{File: "logic/Odd.java", Line: 4}}},
			{Kind: unit.NodeCall, Call: &unit.CallSite{Member: "go", Position: unit.Position{File: "logic/Odd.java", Line: 5}}},
			{Kind: unit.NodeLiteral, Literal: &unit.Literal{Kind: unit.LiteralString, Value: "x"}},
		}}},
	}}

	res := extract(t, units, 1)
	if n := diag.Count(res.Diagnostics, diag.MalformedCallSite); n != 2 {
		t.Fatalf("MALFORMED_CALL_SITE = %d, want 2: %+v", n, res.Diagnostics)
	}
	for _, d := range res.Diagnostics {
		if d.Severity != diag.SeverityWarning {
			t.Errorf("severity = %s, want warning", d.Severity)
		}
	}
	if len(res.Facts) != 1 || res.Facts[0].Kind != pattern.FactDeclared {
		t.Errorf("facts = %+v, want only the declaration", res.Facts)
	}
}

func TestExtractBindsMissingCaller(t *testing.T) {
	units := sampleUnits(0)
	get := &units[0].Methods[0]
	get.Body[0].Call.Caller = unit.MethodID{}

	res := extract(t, units, 1)
	if n := diag.Count(res.Diagnostics, diag.MalformedCallSite); n != 0 {
		t.Errorf("MALFORMED_CALL_SITE = %d, want 0: %+v", n, res.Diagnostics)
	}
	var found bool
	for _, f := range res.Facts {
		if f.Kind == pattern.FactDAOToStatement && f.Statement.String() == "UserMapper.getUserById" {
			found = true
			if f.Source != get.ID {
				t.Errorf("Source = %s, want %s", f.Source, get.ID)
			}
		}
	}
	if !found {
		t.Fatalf("no statement fact for getUser: %+v", res.Facts)
	}
	if !get.Body[0].Call.Caller.IsZero() {
		t.Error("input call site was mutated")
	}
}

func TestExtractSkipsDuplicateUnits(t *testing.T) {
	units := sampleUnits(1)
	dup := *units[0]
	dup.File = "zz/UserDao.java"
	units = append(units, &dup)

	res := extract(t, units, 2)
	if n := diag.Count(res.Diagnostics, diag.DuplicateUnit); n != 1 {
		t.Fatalf("DUPLICATE_UNIT = %d, want 1", n)
	}
	if res.Units != 2 {
		t.Errorf("Units = %d, want 2", res.Units)
	}
	declared := 0
	for _, f := range res.Facts {
		if f.Kind == pattern.FactDeclared {
			declared++
		}
	}
	if declared != 3 {
		t.Errorf("DECLARED facts = %d, want 3", declared)
	}
}

func TestNewDefaultsWorkers(t *testing.T) {
	ex := New(pattern.New(), pattern.NewIndex(nil, pattern.DefaultOptions()), Config{})
	if ex.Workers() < 1 {
		t.Errorf("Workers() = %d, want >= 1", ex.Workers())
	}
}
