package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/dicebot/internal/gamesystem"
)

// Library is the [gamesystem.Source] of the bot: the compiled-in systems
// plus table systems read from a directory of YAML files.
//
// Catalog scans the directory and remembers which file defines which id;
// Dynamic parses the full file only when a system is first resolved.
type Library struct {
	dir    string
	roller Roller

	mu    sync.Mutex
	files map[string]string
}

var _ gamesystem.Source = (*Library)(nil)

// LibraryOption configures a [Library].
type LibraryOption func(*Library)

// WithRoller replaces [DefaultRoller] for every system the library builds.
func WithRoller(r Roller) LibraryOption {
	return func(l *Library) { l.roller = r }
}

// NewLibrary returns a library reading table systems from dir. An empty dir
// disables file-backed systems.
func NewLibrary(dir string, opts ...LibraryOption) *Library {
	l := &Library{
		dir:    dir,
		roller: DefaultRoller,
		files:  make(map[string]string),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// staticSystems lists the compiled-in constructors by id.
var staticSystems = map[string]func(Roller) *System{
	gamesystem.DefaultID: NewGeneric,
	"Cthulhu":            NewCthulhu,
}

// Catalog implements [gamesystem.Source]. Unreadable or invalid files are
// logged and left out.
func (l *Library) Catalog(ctx context.Context) ([]gamesystem.Descriptor, error) {
	ids := make([]string, 0, len(staticSystems))
	for id := range staticSystems {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]gamesystem.Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, staticSystems[id](l.roller).Descriptor())
	}

	files, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, ok := staticSystems[f.ID]; ok {
			slog.Warn("builtin: table system shadows a built-in system, ignored", "id", f.ID)
			continue
		}
		out = append(out, f.Descriptor())
	}
	return out, nil
}

// scan reads every *.yaml and *.yml file in the directory and rebuilds the
// id to path index.
func (l *Library) scan(ctx context.Context) ([]*TableFile, error) {
	index := make(map[string]string)
	defer func() {
		l.mu.Lock()
		l.files = index
		l.mu.Unlock()
	}()

	if l.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("builtin: read systems dir %q: %w", l.dir, err)
	}

	var files []*TableFile
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		tf, err := LoadTableFile(path)
		if err != nil {
			slog.Warn("builtin: skipping table system", "path", path, "err", err)
			continue
		}
		if prev, dup := index[tf.ID]; dup {
			slog.Warn("builtin: duplicate table system id, ignored", "id", tf.ID, "path", path, "first", prev)
			continue
		}
		index[tf.ID] = path
		files = append(files, tf)
	}
	return files, nil
}

// Static implements [gamesystem.Source].
func (l *Library) Static(id string) (gamesystem.Evaluator, bool) {
	build, ok := staticSystems[id]
	if !ok {
		return nil, false
	}
	return build(l.roller), true
}

// Dynamic implements [gamesystem.Source]. The id must have been seen by the
// last Catalog scan.
func (l *Library) Dynamic(ctx context.Context, id string) (gamesystem.Evaluator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	path, ok := l.files[id]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("builtin: no definition file for %q", id)
	}

	tf, err := LoadTableFile(path)
	if err != nil {
		return nil, err
	}
	if tf.ID != id {
		return nil, fmt.Errorf("builtin: %q now defines %q instead of %q", path, tf.ID, id)
	}
	return NewTableSystem(tf, l.roller)
}
