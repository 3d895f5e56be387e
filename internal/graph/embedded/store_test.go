package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	getAll   = unit.NewMethodID("logic", "UserLogic", "getAllUsers")
	register = unit.NewMethodID("logic", "SignupLogic", "register", "User")
	findAll  = unit.NewMethodID("dao", "UserDao", "findAllUsers")
	insert   = unit.NewMethodID("dao", "UserDao", "insertUser", "User")
)

func methodNode(kind graph.NodeKind, id unit.MethodID, file string, line int) graph.Node {
	return graph.Node{
		ID:       graph.MethodRef(id).ID(),
		Kind:     kind,
		Method:   &id,
		Position: &unit.Position{File: file, Line: line, Column: 5},
	}
}

func stmtNode(key string) graph.Node {
	ref, _ := pattern.ParseStatementRef(key)
	return graph.Node{
		ID:         graph.StatementNodeRef(ref).ID(),
		Kind:       graph.NodeStatement,
		Statement:  &ref,
		Attributes: map[string]string{graph.AttrXMLTag: "select"},
	}
}

func id(m unit.MethodID) string { return graph.MethodRef(m).ID() }

func sampleSnapshot() *graph.Snapshot {
	nodes := []graph.Node{
		methodNode(graph.NodeLogicMethod, getAll, "logic/UserLogic.java", 9),
		methodNode(graph.NodeLogicMethod, register, "logic/SignupLogic.java", 12),
		methodNode(graph.NodeDAOMethod, findAll, "dao/UserDao.java", 14),
		methodNode(graph.NodeDAOMethod, insert, "dao/UserDao.java", 20),
		stmtNode("UserMapper.findAllUsers"),
		stmtNode("UserMapper.insertUser"),
	}
	edges := []graph.Edge{
		{Source: id(getAll), Target: id(findAll), Kind: graph.EdgeLogicToDAO, OccurrenceCount: 2},
		{Source: id(register), Target: id(insert), Kind: graph.EdgeLogicToDAO, OccurrenceCount: 1},
		{Source: id(register), Target: id(findAll), Kind: graph.EdgeLogicToDAO, OccurrenceCount: 1},
		{Source: id(findAll), Target: nodes[4].ID, Kind: graph.EdgeDAOToStatement, OccurrenceCount: 1, Access: []string{"read"}},
		{Source: id(insert), Target: nodes[5].ID, Kind: graph.EdgeDAOToStatement, OccurrenceCount: 1, Access: []string{"create"}},
	}
	return graph.NewSnapshot(graph.Restore(nodes, edges), []diag.Diagnostic{
		{Kind: diag.UnreachedMethod, Severity: diag.SeverityInfo, Subject: id(getAll), Message: "no caller"},
		{Kind: diag.UnresolvedStatementRef, Severity: diag.SeverityWarning, Subject: id(insert),
			Message:  "statement key is not statically determinable",
			Position: unit.Position{File: "dao/UserDao.java", Line: 21, Column: 9}},
	})
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func saveSample(t *testing.T, s *Store) *graph.Snapshot {
	t.Helper()
	snap := sampleSnapshot()
	if err := s.Save(context.Background(), snap, Meta{Root: "/src/shop", Version: "test"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return snap
}

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Load on empty store = %v, want ErrEmpty", err)
	}

	want := saveSample(t, s)
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mustJSON(t, got) != mustJSON(t, want) {
		t.Errorf("round trip differs:\ngot  %s\nwant %s", mustJSON(t, got), mustJSON(t, want))
	}

	meta, err := s.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.Root != "/src/shop" || meta.Nodes != 6 || meta.Edges != 5 || meta.Diagnostics != 2 {
		t.Errorf("Meta = %+v", meta)
	}
	if meta.FormatVersion != FormatVersion || meta.SavedAt.IsZero() {
		t.Errorf("Meta = %+v, want version and timestamp set", meta)
	}

	// A second save replaces the first.
	empty := graph.NewSnapshot(graph.Restore(nil, nil), nil)
	if err := s.Save(ctx, empty, Meta{Root: "/src/other"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Nodes) != 0 || len(got.Edges) != 0 || len(got.Diagnostics) != 0 {
		t.Errorf("second Save did not replace the snapshot: %+v", got)
	}
}

func TestQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveSample(t, s)

	t.Run("node", func(t *testing.T) {
		n, err := s.Node(ctx, id(findAll))
		if err != nil {
			t.Fatalf("Node: %v", err)
		}
		if n.Kind != graph.NodeDAOMethod || n.Method.Name != "findAllUsers" {
			t.Errorf("Node = %+v", n)
		}
		if _, err := s.Node(ctx, "method:nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Node(unknown) = %v, want ErrNotFound", err)
		}
	})

	t.Run("find", func(t *testing.T) {
		nodes, err := s.Find(ctx, "UserDao#")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(nodes) != 2 {
			t.Fatalf("Find(UserDao#) = %d nodes, want 2", len(nodes))
		}
		if nodes[0].Method.Name != "findAllUsers" || nodes[1].Method.Name != "insertUser" {
			t.Errorf("Find order = %s, %s", nodes[0].ID, nodes[1].ID)
		}
		exact, err := s.Find(ctx, id(getAll))
		if err != nil || len(exact) != 1 {
			t.Errorf("Find(exact) = %v, %v", exact, err)
		}
	})

	t.Run("kind and file", func(t *testing.T) {
		logic, err := s.NodesOfKind(ctx, graph.NodeLogicMethod)
		if err != nil {
			t.Fatal(err)
		}
		if len(logic) != 2 {
			t.Errorf("NodesOfKind(LOGIC_METHOD) = %d, want 2", len(logic))
		}
		inFile, err := s.NodesInFile(ctx, "dao/UserDao.java")
		if err != nil {
			t.Fatal(err)
		}
		if len(inFile) != 2 {
			t.Errorf("NodesInFile = %d, want 2", len(inFile))
		}
	})

	t.Run("callers and callees", func(t *testing.T) {
		callers, err := s.Callers(ctx, id(findAll))
		if err != nil {
			t.Fatal(err)
		}
		if len(callers) != 2 {
			t.Fatalf("Callers = %d, want 2", len(callers))
		}
		if callers[0].Node.ID != id(register) || callers[1].Node.ID != id(getAll) {
			t.Errorf("Callers not sorted by source: %s, %s", callers[0].Node.ID, callers[1].Node.ID)
		}
		if callers[1].Edge.OccurrenceCount != 2 {
			t.Errorf("OccurrenceCount = %d, want 2", callers[1].Edge.OccurrenceCount)
		}

		callees, err := s.Callees(ctx, id(register))
		if err != nil {
			t.Fatal(err)
		}
		if len(callees) != 2 {
			t.Errorf("Callees = %d, want 2", len(callees))
		}

		l2d, err := s.Outgoing(ctx, id(findAll), graph.EdgeLogicToDAO)
		if err != nil {
			t.Fatal(err)
		}
		if len(l2d) != 0 {
			t.Errorf("Outgoing(findAll, LOGIC_TO_DAO) = %d, want 0", len(l2d))
		}
	})

	t.Run("chains", func(t *testing.T) {
		chains, err := s.Chains(ctx, id(register))
		if err != nil {
			t.Fatal(err)
		}
		if len(chains) != 2 {
			t.Fatalf("Chains(register) = %d, want 2", len(chains))
		}
		for _, c := range chains {
			if len(c.Statements) != 1 {
				t.Errorf("chain via %s has %d statements, want 1", c.DAO.ID, len(c.Statements))
			}
		}

		up, err := s.Chains(ctx, id(findAll))
		if err != nil {
			t.Fatal(err)
		}
		if len(up) != 2 {
			t.Errorf("Chains(findAll) = %d, want 2", len(up))
		}

		if _, err := s.Chains(ctx, "statement:UserMapper.findAllUsers"); err == nil {
			t.Error("Chains of a statement node should fail")
		}
	})

	t.Run("diagnostics", func(t *testing.T) {
		all, err := s.Diagnostics(ctx, DiagnosticFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Fatalf("Diagnostics = %d, want 2", len(all))
		}
		warn, err := s.Diagnostics(ctx, DiagnosticFilter{Severity: diag.SeverityWarning})
		if err != nil {
			t.Fatal(err)
		}
		if len(warn) != 1 || warn[0].Kind != diag.UnresolvedStatementRef {
			t.Errorf("warnings = %+v", warn)
		}
		bySubject, err := s.Diagnostics(ctx, DiagnosticFilter{Subject: "UserLogic"})
		if err != nil {
			t.Fatal(err)
		}
		if len(bySubject) != 1 || bySubject[0].Kind != diag.UnreachedMethod {
			t.Errorf("by subject = %+v", bySubject)
		}
	})
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	want := saveSample(t, src)

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+6+5+2 {
		t.Fatalf("Export wrote %d lines, want 14", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"kind":"meta"`) {
		t.Errorf("first record = %s, want meta", lines[0])
	}

	dst := newTestStore(t)
	if err := dst.Import(ctx, &buf); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := dst.Load(ctx)
	if err != nil {
		t.Fatalf("Load after import: %v", err)
	}
	if mustJSON(t, got) != mustJSON(t, want) {
		t.Error("imported snapshot differs from the exported one")
	}
	meta, err := dst.Meta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Root != "/src/shop" || meta.Nodes != 6 {
		t.Errorf("imported meta = %+v", meta)
	}
}

func TestImportRejects(t *testing.T) {
	tests := map[string]string{
		"bad json":     "{not json}\n",
		"unknown kind": `{"kind":"vertex","data":{}}` + "\n",
		"node no id":   `{"kind":"node","data":{"kind":"DAO_METHOD"}}` + "\n",
		"edge no kind": `{"kind":"edge","data":{"source":"a","target":"b"}}` + "\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			if err := s.Import(context.Background(), strings.NewReader(input)); err == nil {
				t.Error("Import succeeded, want error")
			}
		})
	}
}
