// Package watcher watches a source tree and emits debounced batches of
// changes to the files an analysis reads.
package watcher

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/imyousuf/daotrace/internal/discover"
)

// DefaultDebounce is the quiet period before a batch is emitted.
const DefaultDebounce = 500 * time.Millisecond

// EventOp represents the type of file system operation.
type EventOp int

const (
	Create EventOp = iota
	Write
	Remove
	Rename
)

// String returns the string representation of EventOp.
func (op EventOp) String() string {
	switch op {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	case Rename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// Event represents a file system change event.
type Event struct {
	Path string
	Op   EventOp
	Time time.Time
}

// Batch is every change seen during one debounce window, one event per
// path (the latest), sorted by path.
type Batch struct {
	Events []Event
	Time   time.Time
}

// Config holds configuration for the file system watcher.
type Config struct {
	Root string
	// Exclude holds gitignore-style patterns on top of .gitignore files.
	Exclude []string
	// Extensions limits events to these lower-case file extensions.
	// Empty means every file.
	Extensions []string
	// Debounce is the quiet period; zero means DefaultDebounce.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches a tree for changes and emits debounced batches.
type Watcher struct {
	cfg     Config
	exts    map[string]bool
	matcher *discover.Matcher
	log     *slog.Logger
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

// New creates a watcher for cfg.Root. Ignore files are read once here and
// event paths are absolute.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	matcher := discover.NewMatcher(cfg.Root, cfg.Exclude)
	if err := matcher.Load(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Watcher{cfg: cfg, exts: exts, matcher: matcher, log: logger}, nil
}

// Start begins watching and returns a channel of batches. The channel is
// closed when ctx is done or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) (<-chan Batch, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addRecursive(w.cfg.Root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan Batch, 4)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && w.matcher.Match(path, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// relevant reports whether a change to path can affect an analysis.
func (w *Watcher) relevant(path string) bool {
	if w.matcher.Match(path, false) {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Batch) {
	defer close(out)

	pending := make(map[string]Event)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}
			op, valid := convertOp(fsEvent.Op)
			if !valid {
				continue
			}

			// New directories are watched too; their files arrive as
			// separate events.
			if op == Create {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if !w.matcher.Match(fsEvent.Name, true) {
						_ = w.addRecursive(fsEvent.Name)
					}
					continue
				}
			}
			if !w.relevant(fsEvent.Name) {
				continue
			}

			pending[fsEvent.Name] = Event{Path: fsEvent.Name, Op: op, Time: time.Now()}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			batch := Batch{Events: make([]Event, 0, len(pending)), Time: time.Now()}
			for _, e := range pending {
				batch.Events = append(batch.Events, e)
			}
			sort.Slice(batch.Events, func(i, j int) bool { return batch.Events[i].Path < batch.Events[j].Path })
			pending = make(map[string]Event)

			w.log.DebugContext(ctx, "change batch", slog.Int("events", len(batch.Events)))
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WarnContext(ctx, "watch error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Create, true
	case op.Has(fsnotify.Write):
		return Write, true
	case op.Has(fsnotify.Remove):
		return Remove, true
	case op.Has(fsnotify.Rename):
		return Rename, true
	default:
		return 0, false
	}
}
