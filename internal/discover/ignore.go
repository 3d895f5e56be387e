package discover

import (
	"bufio"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"build":        true,
}

// Matcher decides whether a path under a root is excluded, combining
// configured exclude patterns with every .gitignore below the root.
type Matcher struct {
	root    string
	exclude []string
	rules   []rule
}

type rule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
	// base is the slash-separated directory of the .gitignore, relative to
	// the root. Empty for configured excludes.
	base string
}

// NewMatcher creates a matcher for root. Call Load before Match.
func NewMatcher(root string, exclude []string) *Matcher {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Matcher{root: root, exclude: exclude}
}

// Load reads the exclude patterns and all .gitignore files under the root.
// Unreadable .gitignore files are skipped.
func (m *Matcher) Load() error {
	m.rules = m.rules[:0]
	for _, p := range m.exclude {
		if r, ok := parseRule(p, ""); ok {
			m.rules = append(m.rules, r)
		}
	}
	return filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != m.root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, err := filepath.Rel(m.root, filepath.Dir(p))
		if err != nil {
			return nil
		}
		rules, err := readIgnoreFile(p, filepath.ToSlash(base))
		if err != nil {
			return nil
		}
		m.rules = append(m.rules, rules...)
		return nil
	})
}

// Match reports whether p is excluded. p may be absolute or relative to the
// root. The last matching rule wins, so a negation can re-include a path.
func (m *Matcher) Match(p string, isDir bool) bool {
	rel := m.relative(p)
	if rel == "" {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if skipDirs[part] {
			return true
		}
	}
	matched := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			matched = !r.negate
		}
	}
	return matched
}

func (m *Matcher) relative(p string) string {
	if filepath.IsAbs(p) && m.root != "" {
		rel, err := filepath.Rel(m.root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return ""
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." {
		return ""
	}
	return p
}

func readIgnoreFile(file, base string) ([]rule, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if base == "." {
		base = ""
	}
	var rules []rule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if r, ok := parseRule(sc.Text(), base); ok {
			rules = append(rules, r)
		}
	}
	return rules, sc.Err()
}

func parseRule(line, base string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}
	r := rule{base: base}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		r.anchored = true
	}
	r.glob = line
	return r, r.glob != ""
}

// matches tests a root-relative slash path. A rule that matches a parent
// directory excludes everything below it.
func (r rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}
	parts := strings.Split(rel, "/")

	if r.anchored || strings.Contains(r.glob, "/") {
		pat := strings.Split(r.glob, "/")
		// Try the path and each of its parent directories.
		for n := len(parts); n > 0; n-- {
			if n < len(parts) || !r.dirOnly || isDir {
				if globParts(pat, parts[:n]) {
					return true
				}
			}
		}
		return false
	}

	for i, part := range parts {
		last := i == len(parts)-1
		if r.dirOnly && last && !isDir {
			continue
		}
		if ok, _ := path.Match(r.glob, part); ok {
			return true
		}
	}
	return false
}

// globParts matches path segments against pattern segments, where "**"
// spans zero or more segments.
func globParts(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if globParts(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, _ := path.Match(pat[0], parts[0]); !ok {
		return false
	}
	return globParts(pat[1:], parts[1:])
}
