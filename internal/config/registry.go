package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

const registryFileName = ".daotrace.conf"

// ProjectEntry records where analyze --store left the graph of a project.
type ProjectEntry struct {
	Name  string `yaml:"name"`
	Root  string `yaml:"root"`
	Store string `yaml:"store"`
}

type registryFile struct {
	Projects []ProjectEntry `yaml:"projects"`
}

// RegistryPath returns the path to the global project registry file (~/.daotrace.conf).
func RegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, registryFileName)
}

// RegisterProject adds or updates the entry for root. Root and store are
// stored as absolute paths. An empty name defaults to the base of root.
func RegisterProject(name, root, store string) error {
	root = absPath(root)
	store = absPath(store)
	if name == "" {
		name = filepath.Base(root)
	}

	entries := ListProjects()
	found := false
	for i, entry := range entries {
		if entry.Root == root {
			entries[i].Name = name
			entries[i].Store = store
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, ProjectEntry{Name: name, Root: root, Store: store})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Root < entries[j].Root })

	return writeRegistry(entries)
}

// LookupProject finds the entry whose Root equals or contains path. The
// deepest root wins when projects nest.
func LookupProject(path string) (*ProjectEntry, bool) {
	p := absPath(path)
	var best *ProjectEntry
	for _, entry := range ListProjects() {
		root := absPath(entry.Root)
		if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(best.Root) {
			e := entry
			best = &e
		}
	}
	return best, best != nil
}

// FindProject finds an entry by name.
func FindProject(name string) (*ProjectEntry, bool) {
	for _, entry := range ListProjects() {
		if entry.Name == name {
			e := entry
			return &e, true
		}
	}
	return nil, false
}

// ListProjects returns all registered projects from the global registry.
func ListProjects() []ProjectEntry {
	regPath := RegistryPath()
	if regPath == "" {
		return nil
	}

	data, err := os.ReadFile(regPath)
	if err != nil {
		return nil
	}

	var reg registryFile
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil
	}
	return reg.Projects
}

func writeRegistry(entries []ProjectEntry) error {
	regPath := RegistryPath()
	if regPath == "" {
		return nil
	}

	data, err := yaml.Marshal(&registryFile{Projects: entries})
	if err != nil {
		return err
	}
	return os.WriteFile(regPath, data, 0644)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
