package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
	"github.com/imyousuf/daotrace/internal/metrics"
	"github.com/imyousuf/daotrace/internal/unit"
)

// Scenario A: the DAO is an interface bound by an external mapping layer.
var paramBoundProject = map[string]string{
	"UserDAO.java": `public interface UserDAO {
    User getUserById(@Param("id") int id);
    void insertUser(@Param("name") String name, @Param("email") String email);
}`,
	"UserLogic.java": `/*
 * UserLogic.java
 */
@Service
public class UserLogic {
    @Autowired
    private UserDAO userDAO;

    public User fetchUserById(int id) {
        return userDAO.getUserById(id);
    }

    public void addUser(String name, String email) {
        userDAO.insertUser(name, email);
    }
}`,
}

// Scenarios B and C: a session-backed DAO reached from a logic class.
var layeredProject = map[string]string{
	"model/User.java": `package model;

public class User {
    private String name;
    public String getName() { return name; }
}`,
	"dao/UserDao.java": `package dao;

import java.util.List;
import model.User;

public class UserDao {
    private static final String NS = "UserMapper.";

    public List<User> findAllUsers() {
        return sqlSession.selectList("UserMapper.findAllUsers");
    }

    public User findUserById(int id) {
        return sqlSession.selectOne(NS + "findUserById", id);
    }

    public void insertUser(User user) {
        sqlSession.insert("UserMapper.insertUser", user);
    }

    public void remove(String key) {
        sqlSession.delete(key);
    }
}`,
	"logic/UserLogic.java": `package logic;

import dao.UserDao;
import model.User;

public class UserLogic {
    private UserDao userDao = new UserDao();

    public List<User> getAllUsers() {
        return userDao.findAllUsers();
    }

    public User getUser(int id) {
        return userDao.findUserById(id);
    }

    public User getUserAgain(int id) {
        userDao.findUserById(id);
        return userDao.findUserById(id);
    }
}`,
	"mapper/UserMapper.xml": `<?xml version="1.0" encoding="UTF-8"?>
<mapper namespace="UserMapper">
  <select id="findAllUsers" resultType="User">SELECT * FROM users</select>
  <select id="findUserById" resultType="User">SELECT * FROM users WHERE id = #{id}</select>
</mapper>`,
	"pom.xml": `<project><modelVersion>4.0.0</modelVersion></project>`,
}

// Scenario D: one DAO method executing two statements.
var twoStatementProject = map[string]string{
	"dao/AccountDao.java": `package dao;

public class AccountDao {
    private SqlSession sqlSession;

    public Account load(int id, String name) {
        Account a = sqlSession.selectOne("AccountMapper.getById", id);
        if (a == null) {
            a = sqlSession.selectOne("AccountMapper.getByName", name);
        }
        return sqlSession.selectOne("AccountMapper.getById", id);
    }
}`,
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func analyze(t *testing.T, root string, opts Options) *Result {
	t.Helper()
	res, err := New(opts).Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func mid(pkg, typ, name string, params ...string) string {
	return graph.MethodRef(unit.NewMethodID(pkg, typ, name, params...)).ID()
}

func TestParameterBoundInterface(t *testing.T) {
	res := analyze(t, writeProject(t, paramBoundProject), Options{Workers: 2})
	f := res.Graph

	getUser := mid("", "UserDAO", "getUserById", "int")
	fetch := mid("", "UserLogic", "fetchUserById", "int")

	out := f.Outgoing(fetch)
	if len(out) != 1 || out[0].Target != getUser || out[0].Kind != graph.EdgeLogicToDAO {
		t.Fatalf("fetchUserById edges = %+v", out)
	}
	if out[0].Sites[0].File != "UserLogic.java" || out[0].Sites[0].Line != 10 {
		t.Errorf("site = %+v, want UserLogic.java:10", out[0].Sites[0])
	}
	n, ok := f.Node(getUser)
	if !ok || n.Kind != graph.NodeDAOMethod || !n.HasTag(graph.TagExternallyResolved) {
		t.Errorf("getUserById = %+v, want tagged DAO_METHOD", n)
	}
	if l, _ := f.Node(fetch); l.Kind != graph.NodeLogicMethod {
		t.Errorf("fetchUserById kind = %s", l.Kind)
	}
	if len(f.EdgesOfKind(graph.EdgeDAOToStatement)) != 0 {
		t.Error("interface DAO has statement edges")
	}
	if diag.Count(res.Diagnostics, diag.MalformedStatementRef) != 0 {
		t.Error("unexpected MALFORMED_STATEMENT_REF")
	}
	if res.Summary.Files != 2 || res.Summary.Units != 2 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestLayeredProject(t *testing.T) {
	res := analyze(t, writeProject(t, layeredProject), Options{Workers: 4})
	f := res.Graph

	findAll := mid("dao", "UserDao", "findAllUsers")
	findByID := mid("dao", "UserDao", "findUserById", "int")
	insert := mid("dao", "UserDao", "insertUser", "User")
	remove := mid("dao", "UserDao", "remove", "String")

	tests := []struct {
		source string
		target string
		kind   graph.EdgeKind
		count  int
	}{
		{mid("logic", "UserLogic", "getAllUsers"), findAll, graph.EdgeLogicToDAO, 1},
		{mid("logic", "UserLogic", "getUser", "int"), findByID, graph.EdgeLogicToDAO, 1},
		{mid("logic", "UserLogic", "getUserAgain", "int"), findByID, graph.EdgeLogicToDAO, 2},
		{findAll, "statement:UserMapper.findAllUsers", graph.EdgeDAOToStatement, 1},
		{findByID, "statement:UserMapper.findUserById", graph.EdgeDAOToStatement, 1},
		{insert, "statement:UserMapper.insertUser", graph.EdgeDAOToStatement, 1},
	}
	for _, tt := range tests {
		out := f.Outgoing(tt.source)
		if len(out) != 1 {
			t.Errorf("%s: edges = %+v, want 1", tt.source, out)
			continue
		}
		if out[0].Target != tt.target || out[0].Kind != tt.kind || out[0].OccurrenceCount != tt.count {
			t.Errorf("%s: edge = %+v, want %s x%d to %s", tt.source, out[0], tt.kind, tt.count, tt.target)
		}
	}

	if n, _ := f.Node("statement:UserMapper.findAllUsers"); n.Attributes[graph.AttrXMLTag] != "select" {
		t.Errorf("findAllUsers xmlTag = %q, want select", n.Attributes[graph.AttrXMLTag])
	}
	if n, _ := f.Node(mid("model", "User", "getName")); n.Kind != graph.NodeMethod {
		t.Errorf("model getter kind = %s, want METHOD", n.Kind)
	}

	// insertUser is not declared in the mapper; remove uses a parameter key.
	if got := diag.Count(res.Diagnostics, diag.UnknownStatement); got != 1 {
		t.Errorf("UNKNOWN_STATEMENT = %d, want 1", got)
	}
	var unresolved []diag.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Kind == diag.UnresolvedStatementRef {
			unresolved = append(unresolved, d)
		}
	}
	if len(unresolved) != 1 || unresolved[0].Subject != remove || unresolved[0].Position.File != "dao/UserDao.java" {
		t.Errorf("UNRESOLVED_STATEMENT_REF = %+v", unresolved)
	}
	if len(f.Outgoing(remove)) != 0 {
		t.Error("remove has a guessed statement edge")
	}

	if res.Statements == nil || res.Statements.Len() != 2 || res.Summary.MapperFiles != 1 {
		t.Errorf("mapper index = %+v, summary = %+v", res.Statements, res.Summary)
	}
}

func TestTwoStatementTargets(t *testing.T) {
	res := analyze(t, writeProject(t, twoStatementProject), Options{Workers: 1})
	load := mid("dao", "AccountDao", "load", "int", "String")

	out := res.Graph.Outgoing(load)
	if len(out) != 2 {
		t.Fatalf("edges = %+v, want 2", out)
	}
	if out[0].Target != "statement:AccountMapper.getById" || out[0].OccurrenceCount != 2 || len(out[0].Sites) != 2 {
		t.Errorf("getById edge = %+v", out[0])
	}
	if out[1].Target != "statement:AccountMapper.getByName" || out[1].OccurrenceCount != 1 {
		t.Errorf("getByName edge = %+v", out[1])
	}
	n, _ := res.Graph.Node(load)
	if n.Attributes[graph.AttrStatementTargets] != "2" {
		t.Errorf("statementTargets = %q", n.Attributes[graph.AttrStatementTargets])
	}
	for _, d := range res.Diagnostics {
		if d.Severity != diag.SeverityInfo {
			t.Errorf("unexpected diagnostic %+v", d)
		}
	}
}

func snapshotJSON(t *testing.T, res *Result) []byte {
	t.Helper()
	data, err := json.MarshalIndent(res.Snapshot(), "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDeterminism(t *testing.T) {
	files := make(map[string]string)
	for _, set := range []map[string]string{layeredProject, twoStatementProject} {
		for k, v := range set {
			files[k] = v
		}
	}
	files["broken/Broken.java"] = "package broken;\npublic class Broken { void f( { }"
	root := writeProject(t, files)

	want := snapshotJSON(t, analyze(t, root, Options{Workers: 1}))
	for _, workers := range []int{1, 2, 8} {
		got := snapshotJSON(t, analyze(t, root, Options{Workers: workers}))
		if !bytes.Equal(got, want) {
			t.Errorf("workers=%d: output differs from the single-worker run", workers)
		}
	}
}

func TestSkipMappers(t *testing.T) {
	res := analyze(t, writeProject(t, layeredProject), Options{SkipMappers: true})
	if len(res.Graph.EdgesOfKind(graph.EdgeLogicToDAO)) == 0 {
		t.Error("java sources not analyzed with mappers skipped")
	}
	if res.Statements != nil || res.Summary.MapperFiles != 0 {
		t.Errorf("mappers indexed: %+v", res.Summary)
	}
	if diag.Count(res.Diagnostics, diag.UnknownStatement) != 0 {
		t.Error("cross-check ran without mappers")
	}
	if n, _ := res.Graph.Node("statement:UserMapper.findAllUsers"); n.Attributes[graph.AttrXMLTag] != "" {
		t.Error("xmlTag set without mappers")
	}
}

func TestParseDiagnostics(t *testing.T) {
	root := writeProject(t, map[string]string{
		"dao/Broken.java":      "package dao;\npublic class BrokenDao { void f( { }",
		"mapper/BadMapper.xml": `<mapper namespace="Bad"><select id="x">`,
	})
	res := analyze(t, root, Options{})
	if diag.Count(res.Diagnostics, diag.ParseIncomplete) != 1 {
		t.Errorf("PARSE_INCOMPLETE missing: %+v", res.Diagnostics)
	}
	var failed *diag.Diagnostic
	for i := range res.Diagnostics {
		if res.Diagnostics[i].Kind == diag.ParseFailed {
			failed = &res.Diagnostics[i]
		}
	}
	if failed == nil || failed.Subject != "file:mapper/BadMapper.xml" {
		t.Errorf("PARSE_FAILED = %+v", failed)
	}
}

func TestAnalyzeUnitsInvalid(t *testing.T) {
	units := []*unit.CompilationUnit{{
		Name: "UserDao", File: "UserDao.java",
		Methods: []unit.Method{{ID: unit.NewMethodID("", "OtherDao", "find")}},
	}}
	_, err := New(Options{}).AnalyzeUnits(context.Background(), units, nil)
	if !errors.Is(err, unit.ErrInvalidUnit) {
		t.Fatalf("err = %v, want ErrInvalidUnit", err)
	}
	var verr *unit.ValidationError
	if !errors.As(err, &verr) {
		t.Error("validation detail lost")
	}
}

func TestRunMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	analyze(t, writeProject(t, layeredProject), Options{Metrics: rec})

	out := filepath.Join(t.TempDir(), "run.prom")
	if err := rec.WriteFile(out); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`daotrace_runs_total{status="success"} 1`,
		`daotrace_files_total{status="success",type="java"} 3`,
		`daotrace_files_total{status="success",type="xml"} 1`,
		`daotrace_graph_edges{kind="LOGIC_TO_DAO"} 3`,
	} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRunMissingRoot(t *testing.T) {
	if _, err := New(Options{}).Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}
