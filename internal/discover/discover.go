// Package discover finds the source and mapper files under a project root.
package discover

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one discovered file.
type File struct {
	// Path is the file path as walked, rooted at the walk root.
	Path string
	// Rel is the slash-separated path relative to the root. It is what
	// diagnostics and graph positions report.
	Rel string
	// Ext is the lower-cased extension including the dot.
	Ext string
}

// Options controls a walk.
type Options struct {
	// Extensions selects files by extension, e.g. ".java". Empty selects
	// every file.
	Extensions []string
	// Exclude holds gitignore-style patterns applied on top of .gitignore.
	Exclude []string
	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64
	Logger      *slog.Logger
}

// Walk returns the matching files under root sorted by relative path.
func Walk(ctx context.Context, root string, opts Options) ([]File, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	m := NewMatcher(root, opts.Exclude)
	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	var files []File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("skipping unreadable path", slog.String("path", p), slog.Any("error", err))
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if m.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if len(exts) > 0 && !exts[ext] {
			return nil
		}
		if opts.MaxFileSize > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > opts.MaxFileSize {
				log.Debug("skipping large file", slog.String("path", p), slog.Int64("size", fi.Size()))
				return nil
			}
		}
		files = append(files, File{Path: p, Rel: rel, Ext: ext})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	log.Debug("discovered files", slog.String("root", root), slog.Int("files", len(files)))
	return files, nil
}
