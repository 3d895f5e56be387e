package mapperxml

import (
	"errors"
	"strings"
	"testing"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/pattern"
)

const userMapper = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE mapper PUBLIC "-//mybatis.org//DTD Mapper 3.0//EN" "http://mybatis.org/dtd/mybatis-3-mapper.dtd">
<mapper namespace="UserMapper">
  <sql id="columns">id, name, email</sql>
  <select id="findAllUsers" resultType="User">
    SELECT <include refid="columns"/> FROM users
  </select>
  <select id="getUserById" parameterType="int" resultType="User">
    SELECT * FROM users WHERE id = #{id} AND age &lt; 100
  </select>
  <insert id="insertUser"><![CDATA[
    INSERT INTO users (name, email) VALUES (#{name}, #{email})
  ]]></insert>
  <update id="updateUser">UPDATE users SET name = #{name}</update>
  <delete id="deleteUser">DELETE FROM users WHERE id = #{id}</delete>
  <resultMap id="userMap" type="User"/>
</mapper>
`

func TestParse(t *testing.T) {
	m, err := Parse("mapper/UserMapper.xml", strings.NewReader(userMapper))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Namespace != "UserMapper" {
		t.Errorf("namespace = %q, want UserMapper", m.Namespace)
	}

	want := []struct{ id, tag string }{
		{"columns", "sql"},
		{"findAllUsers", "select"},
		{"getUserById", "select"},
		{"insertUser", "insert"},
		{"updateUser", "update"},
		{"deleteUser", "delete"},
	}
	if len(m.Statements) != len(want) {
		t.Fatalf("statements = %+v, want %d", m.Statements, len(want))
	}
	for i, w := range want {
		s := m.Statements[i]
		if s.Ref.Operation != w.id || s.Tag != w.tag || s.Ref.Namespace != "UserMapper" {
			t.Errorf("statement %d = %+v, want %s <%s>", i, s, w.id, w.tag)
		}
		if s.Position.File != "mapper/UserMapper.xml" || s.Position.Line == 0 {
			t.Errorf("statement %d position = %s", i, s.Position)
		}
	}
	if m.Statements[1].Position.Line != 5 {
		t.Errorf("findAllUsers line = %d, want 5", m.Statements[1].Position.Line)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		notMapper  bool
		wantErrMsg string
	}{
		{name: "other root", src: `<configuration><settings/></configuration>`, notMapper: true},
		{name: "empty", src: ``, notMapper: true},
		{name: "no namespace", src: `<mapper><select id="a"/></mapper>`, wantErrMsg: "no namespace"},
		{name: "truncated", src: `<mapper namespace="A"><select id="a">`, wantErrMsg: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("x.xml", strings.NewReader(tt.src))
			if tt.notMapper {
				if !errors.Is(err, ErrNotMapper) {
					t.Errorf("err = %v, want ErrNotMapper", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErrMsg) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErrMsg)
			}
		})
	}
}

func TestIndex(t *testing.T) {
	ix := NewIndex()
	ok, diags, err := ix.AddFile("mapper/UserMapper.xml", []byte(userMapper))
	if err != nil || !ok || len(diags) != 0 {
		t.Fatalf("AddFile = %v, %v, %v", ok, diags, err)
	}
	ok, _, err = ix.AddFile("pom.xml", []byte(`<project><modelVersion>4.0.0</modelVersion></project>`))
	if err != nil || ok {
		t.Errorf("non-mapper AddFile = %v, %v; want skipped", ok, err)
	}

	dup := `<mapper namespace="UserMapper"><select id="getUserById"/><select id="countUsers"/></mapper>`
	_, diags, err = ix.AddFile("other/UserMapper.xml", []byte(dup))
	if err != nil {
		t.Fatalf("AddFile dup: %v", err)
	}
	if diag.Count(diags, diag.DuplicateStatement) != 1 {
		t.Errorf("diagnostics = %+v, want one DUPLICATE_STATEMENT", diags)
	}

	if !ix.HasNamespace("UserMapper") || ix.HasNamespace("OrderMapper") {
		t.Error("HasNamespace mismatch")
	}
	tag, ok := ix.Lookup(pattern.StatementRef{Namespace: "UserMapper", Operation: "insertUser"})
	if !ok || tag != "insert" {
		t.Errorf("Lookup(insertUser) = %q, %v", tag, ok)
	}
	if _, ok := ix.Lookup(pattern.StatementRef{Namespace: "UserMapper", Operation: "userMap"}); ok {
		t.Error("resultMap indexed as a statement")
	}
	s, ok := ix.Statement(pattern.StatementRef{Namespace: "UserMapper", Operation: "getUserById"})
	if !ok || s.Position.File != "mapper/UserMapper.xml" {
		t.Errorf("first declaration not kept: %+v", s)
	}

	if ix.Len() != 7 || ix.Files() != 2 {
		t.Errorf("Len = %d, Files = %d; want 7, 2", ix.Len(), ix.Files())
	}
	all := ix.Statements()
	for i := 1; i < len(all); i++ {
		if all[i-1].Ref.String() >= all[i].Ref.String() {
			t.Fatalf("statements not sorted at %d: %v", i, all)
		}
	}
}
