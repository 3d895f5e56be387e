package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMatcherRules(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"extension glob", []string{"*.class"}, "dao/UserDao.class", false, true},
		{"different extension", []string{"*.class"}, "dao/UserDao.java", false, false},
		{"directory name anywhere", []string{"generated"}, "src/generated/dao/A.java", false, true},
		{"double star", []string{"**/test/**"}, "module/src/test/java/A.java", false, true},
		{"anchored", []string{"/legacy"}, "legacy/A.java", false, true},
		{"anchored does not float", []string{"/legacy"}, "src/legacy/A.java", false, false},
		{"slash pattern is anchored", []string{"src/gen"}, "src/gen/A.java", false, true},
		{"dir only on file", []string{"out/"}, "out", false, false},
		{"dir only on dir", []string{"out/"}, "out", true, true},
		{"dir only parent", []string{"out/"}, "out/A.java", false, true},
		{"negation", []string{"*.java", "!Keep.java"}, "dao/Keep.java", false, false},
		{"built-in skip", nil, "target/classes/A.java", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(t.TempDir(), tt.patterns)
			if err := m.Load(); err != nil {
				t.Fatal(err)
			}
			if got := m.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatcherNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "# comment\n\n*.bak\n")
	writeFile(t, root, "module/.gitignore", "Generated*.java\n")

	m := NewMatcher(root, nil)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	tests := map[string]bool{
		"a.bak":                        true,
		"module/GeneratedDao.java":     true,
		"module/dao/GeneratedDao.java": true,
		"GeneratedDao.java":            false,
		"module/UserDao.java":          false,
	}
	for p, want := range tests {
		if got := m.Match(p, false); got != want {
			t.Errorf("Match(%q) = %v, want %v", p, got, want)
		}
	}
	if !m.Match(filepath.Join(root, "module", "GeneratedX.java"), false) {
		t.Error("absolute path under root not matched")
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "logic/UserLogic.java", "class UserLogic {}")
	writeFile(t, root, "dao/UserDao.java", "class UserDao {}")
	writeFile(t, root, "dao/UserMapper.XML", "<mapper namespace=\"UserMapper\"/>")
	writeFile(t, root, "README.md", "# readme")
	writeFile(t, root, "target/classes/Stale.java", "class Stale {}")
	writeFile(t, root, "gen/Generated.java", "class Generated {}")
	writeFile(t, root, ".gitignore", "gen/\n")
	writeFile(t, root, "big/Huge.java", strings.Repeat("x", 2048))

	files, err := Walk(context.Background(), root, Options{
		Extensions:  []string{".java", ".xml"},
		MaxFileSize: 1024,
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"dao/UserDao.java", "dao/UserMapper.XML", "logic/UserLogic.java"}
	if len(files) != len(want) {
		t.Fatalf("files = %+v, want %v", files, want)
	}
	for i, w := range want {
		if files[i].Rel != w {
			t.Errorf("file %d = %q, want %q", i, files[i].Rel, w)
		}
	}
	if files[1].Ext != ".xml" {
		t.Errorf("ext = %q, want lower-cased .xml", files[1].Ext)
	}
	if _, err := os.Stat(files[0].Path); err != nil {
		t.Errorf("Path not usable: %v", err)
	}
}

func TestWalkExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/UserDao.java", "")
	writeFile(t, root, "src/test/UserDaoTest.java", "")

	files, err := Walk(context.Background(), root, Options{Exclude: []string{"test/"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Rel != "src/UserDao.java" {
		t.Errorf("files = %+v", files)
	}
}

func TestWalkErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.java", "")
	if _, err := Walk(context.Background(), filepath.Join(root, "missing"), Options{}); err == nil {
		t.Error("missing root: expected error")
	}
	if _, err := Walk(context.Background(), filepath.Join(root, "a.java"), Options{}); err == nil {
		t.Error("file root: expected error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Walk(ctx, root, Options{}); err == nil {
		t.Error("cancelled context: expected error")
	}
}
