package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, ".daotrace.yaml", `analyze:
  workers: 4
  format: csv
  exclude:
    - "**/generated/**"
patterns:
  session_methods:
    - name: selectOne
      access: read
    - name: queryForList
      access: read
  inject_annotations: [Autowired]
store:
  dir: /tmp/daotrace-store
`)
	t.Chdir(tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analyze.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Analyze.Workers)
	}
	if cfg.Analyze.Format != "csv" {
		t.Errorf("Format = %q, want %q", cfg.Analyze.Format, "csv")
	}
	if len(cfg.Analyze.Exclude) != 1 || cfg.Analyze.Exclude[0] != "**/generated/**" {
		t.Errorf("Exclude = %v, want [**/generated/**]", cfg.Analyze.Exclude)
	}
	if cfg.Analyze.Color != "auto" {
		t.Errorf("Color = %q, want default %q", cfg.Analyze.Color, "auto")
	}
	if cfg.Store.Dir != "/tmp/daotrace-store" {
		t.Errorf("Store.Dir = %q", cfg.Store.Dir)
	}
	if len(cfg.Patterns.SessionMethods) != 2 || cfg.Patterns.SessionMethods[1].Name != "queryForList" {
		t.Errorf("SessionMethods = %+v, want verb case preserved", cfg.Patterns.SessionMethods)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analyze.Format != "json" {
		t.Errorf("Format = %q, want %q", cfg.Analyze.Format, "json")
	}
	if cfg.Analyze.DebounceMS != 500 {
		t.Errorf("DebounceMS = %d, want 500", cfg.Analyze.DebounceMS)
	}
	if cfg.Store.Dir != DefaultStoreDir {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, DefaultStoreDir)
	}
	if cfg.Neo4j.URI != "bolt://localhost:7687" {
		t.Errorf("Neo4j.URI = %q", cfg.Neo4j.URI)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DAOTRACE_ANALYZE_WORKERS", "3")
	t.Setenv("DAOTRACE_STORE_DIR", "/var/lib/daotrace")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analyze.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Analyze.Workers)
	}
	if cfg.Store.Dir != "/var/lib/daotrace" {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, "/var/lib/daotrace")
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.toml", `[analyze]
format = "text"
color = "never"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Analyze.Format != "text" || cfg.Analyze.Color != "never" {
		t.Errorf("Analyze = %+v", cfg.Analyze)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of an explicit missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Analyze.Workers = -1 },
			wantErr: "analyze.workers",
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Analyze.Format = "xml" },
			wantErr: "analyze.format",
		},
		{
			name:    "bad color",
			mutate:  func(c *Config) { c.Analyze.Color = "sometimes" },
			wantErr: "analyze.color",
		},
		{
			name: "bad access class",
			mutate: func(c *Config) {
				c.Patterns.SessionMethods = []SessionMethod{{Name: "selectOne", Access: "fetch"}}
			},
			wantErr: "session_methods[0].access",
		},
		{
			name:    "bad annotation",
			mutate:  func(c *Config) { c.Patterns.InjectAnnotations = []string{"@Autowired"} },
			wantErr: "not a Java identifier",
		},
		{
			name:    "bad delegate layer",
			mutate:  func(c *Config) { c.Patterns.DelegateLayers = []string{"service"} },
			wantErr: "delegate_layers[0]",
		},
		{
			name:    "layer rule without layer",
			mutate:  func(c *Config) { c.Patterns.Layers = []LayerRuleConfig{{Suffixes: []string{"Dao"}}} },
			wantErr: "layers[0].layer: is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestPatternErrorsWrapSentinel(t *testing.T) {
	pc := PatternConfig{SessionReceivers: []string{"my session"}}
	err := pc.Validate()
	if !errors.Is(err, ErrInvalidPatternConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidPatternConfig", err)
	}
	if !strings.HasPrefix(err.Error(), "invalid pattern config: ") {
		t.Errorf("error %q lacks the taxonomy prefix", err)
	}
}

func TestLoadPatterns(t *testing.T) {
	dir := t.TempDir()

	t.Run("top level keys", func(t *testing.T) {
		path := writeFile(t, dir, "patterns.yaml", `session_methods:
  - name: queryForObject
    access: read
  - name: insert
    access: create
session_receivers: [sqlSession, template]
simple_name_fallback: false
layers:
  - layer: dao
    suffixes: [Repo]
`)
		pc, err := LoadPatterns(path)
		if err != nil {
			t.Fatalf("LoadPatterns() error: %v", err)
		}
		opts := pc.Options()
		if opts.SessionMethods["queryForObject"] != pattern.AccessRead {
			t.Errorf("queryForObject = %q, want read", opts.SessionMethods["queryForObject"])
		}
		if _, ok := opts.SessionMethods["selectOne"]; ok {
			t.Error("configured verbs should replace the defaults")
		}
		if len(opts.SessionReceivers) != 2 {
			t.Errorf("SessionReceivers = %v", opts.SessionReceivers)
		}
		if opts.SimpleNameFallback {
			t.Error("SimpleNameFallback = true, want false")
		}
		if len(opts.InjectAnnotations) == 0 {
			t.Error("unset inject annotations should keep the defaults")
		}
		rules := pc.Rules()
		if len(rules) != 1 || rules[0].Layer != unit.LayerDAO || rules[0].Suffixes[0] != "Repo" {
			t.Errorf("Rules() = %+v", rules)
		}
	})

	t.Run("patterns section", func(t *testing.T) {
		path := writeFile(t, dir, "full.yaml", `analyze:
  workers: 2
patterns:
  delegate_layers: [dao, unknown]
`)
		pc, err := LoadPatterns(path)
		if err != nil {
			t.Fatalf("LoadPatterns() error: %v", err)
		}
		layers := pc.Options().DelegateLayers
		if len(layers) != 2 || layers[0] != unit.LayerDAO || layers[1] != unit.LayerUnknown {
			t.Errorf("DelegateLayers = %v", layers)
		}
	})

	bad := map[string]string{
		"missing":     "",
		"unknown key": "sesion_methods: []\n",
		"bad verb":    "session_methods:\n  - name: \"select one\"\n    access: read\n",
		"bad syntax":  "session_methods: [\n",
	}
	for name, content := range bad {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			if content != "" {
				writeFile(t, dir, filepath.Base(path), content)
			}
			_, err := LoadPatterns(path)
			if !errors.Is(err, ErrInvalidPatternConfig) {
				t.Errorf("LoadPatterns() = %v, want ErrInvalidPatternConfig", err)
			}
		})
	}
}

func TestDefaultPatternConfigRoundTrip(t *testing.T) {
	pc := DefaultPatternConfig()
	if err := pc.Validate(); err != nil {
		t.Fatalf("default patterns invalid: %v", err)
	}
	got := pc.Options()
	want := pattern.DefaultOptions()
	if len(got.SessionMethods) != len(want.SessionMethods) {
		t.Fatalf("SessionMethods = %d, want %d", len(got.SessionMethods), len(want.SessionMethods))
	}
	for name, access := range want.SessionMethods {
		if got.SessionMethods[name] != access {
			t.Errorf("SessionMethods[%s] = %q, want %q", name, got.SessionMethods[name], access)
		}
	}
	if len(got.DelegateLayers) != len(want.DelegateLayers) {
		t.Errorf("DelegateLayers = %v, want %v", got.DelegateLayers, want.DelegateLayers)
	}
	if len(pc.Rules()) == 0 {
		t.Error("default layer rules missing")
	}
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := WriteConfig(Default(), path); err != nil {
				t.Fatalf("WriteConfig() error: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), "# daotrace configuration\n") {
				t.Errorf("missing header:\n%s", data)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() of written file: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("written config invalid: %v", err)
			}
			if len(cfg.Patterns.SessionMethods) != len(pattern.DefaultOptions().SessionMethods) {
				t.Errorf("SessionMethods = %d after reload", len(cfg.Patterns.SessionMethods))
			}
			if _, err := LoadPatterns(path); err != nil {
				t.Errorf("LoadPatterns() of written file: %v", err)
			}
		})
	}
}

func TestFilled(t *testing.T) {
	off := false
	pc := PatternConfig{
		InjectAnnotations:  []string{"Inject"},
		SimpleNameFallback: &off,
	}
	got := pc.Filled()
	d := DefaultPatternConfig()

	if len(got.InjectAnnotations) != 1 || got.InjectAnnotations[0] != "Inject" {
		t.Errorf("InjectAnnotations = %v, want the configured value", got.InjectAnnotations)
	}
	if *got.SimpleNameFallback {
		t.Error("SimpleNameFallback overridden by default")
	}
	if len(got.SessionMethods) != len(d.SessionMethods) || len(got.Layers) != len(d.Layers) {
		t.Errorf("unset fields not filled: %d verbs, %d layers", len(got.SessionMethods), len(got.Layers))
	}
	if len(pc.SessionMethods) != 0 {
		t.Error("Filled modified its receiver")
	}
}
