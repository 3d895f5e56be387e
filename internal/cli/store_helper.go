package cli

import (
	"fmt"
	"os"

	"github.com/imyousuf/daotrace/internal/config"
	"github.com/imyousuf/daotrace/internal/graph/embedded"
)

// storeFlags select the graph store a command reads.
type storeFlags struct {
	dir     string
	project string
}

// resolveStoreDir picks the store directory: --store, then the registered
// project named by --project, then the registered project containing the
// working directory, then the configured default.
func resolveStoreDir(cfg *config.Config, f storeFlags) (string, error) {
	if f.dir != "" {
		return f.dir, nil
	}
	if f.project != "" {
		p, ok := config.FindProject(f.project)
		if !ok {
			return "", fmt.Errorf("no registered project named %q; run 'daotrace status' to list them", f.project)
		}
		return p.Store, nil
	}
	if wd, err := os.Getwd(); err == nil {
		if p, ok := config.LookupProject(wd); ok {
			return p.Store, nil
		}
	}
	return cfg.Store.Dir, nil
}

// openStore opens the store chosen by f. The store must already hold a
// saved graph.
func openStore(cfg *config.Config, f storeFlags) (*embedded.Store, error) {
	dir, err := resolveStoreDir(cfg, f)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("no graph store at %s; run 'daotrace analyze --store %s <rootDir>' first", dir, dir)
	}
	store, err := embedded.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return store, nil
}
