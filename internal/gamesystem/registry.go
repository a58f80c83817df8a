package gamesystem

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/dicebot/internal/loadqueue"
	"github.com/MrWong99/dicebot/internal/observe"
	"github.com/MrWong99/dicebot/internal/resilience"
)

// Load sources recorded on the load-duration metric.
const (
	sourceCache   = "cache"
	sourceStatic  = "static"
	sourceDynamic = "dynamic"
)

// Option configures a [Registry].
type Option func(*Registry)

// WithDefaultSystem overrides the fallback id used for unknown game types.
// Default: [DefaultID].
func WithDefaultSystem(id string) Option {
	return func(r *Registry) {
		if id != "" {
			r.defaultID = id
		}
	}
}

// WithDisabled hides the given ids from the catalog. Messages naming them
// fall back to the default system. The default system cannot be disabled.
func WithDisabled(ids ...string) Option {
	return func(r *Registry) {
		for _, id := range ids {
			r.disabled[id] = struct{}{}
		}
	}
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithBreakerConfig tunes the circuit breakers that guard dynamic loads.
func WithBreakerConfig(cfg resilience.Config) Option {
	return func(r *Registry) { r.breakerCfg = cfg }
}

// Registry owns the game-system catalog and the cache of loaded evaluators.
// Both are mutated only by tasks running on the load queue; the read-side
// accessors are safe for concurrent use.
type Registry struct {
	queue      *loadqueue.Queue
	source     Source
	defaultID  string
	disabled   map[string]struct{}
	metrics    *observe.Metrics
	breakerCfg resilience.Config
	breakers   *resilience.Breakers

	initOnce sync.Once
	initFut  *loadqueue.Future[int]

	mu      sync.RWMutex
	catalog []Descriptor
	known   map[string]struct{}
	cache   map[string]Evaluator
	ready   bool
}

// NewRegistry returns a registry that resolves through src on queue. The
// catalog stays empty until [Registry.Init] runs.
func NewRegistry(queue *loadqueue.Queue, src Source, opts ...Option) *Registry {
	r := &Registry{
		queue:      queue,
		source:     src,
		defaultID:  DefaultID,
		disabled:   make(map[string]struct{}),
		breakerCfg: resilience.Config{Name: "gamesystem"},
		known:      make(map[string]struct{}),
		cache:      make(map[string]Evaluator),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.breakers = resilience.NewBreakers(r.breakerCfg)
	return r
}

// Init enqueues the catalog load. It must be called before any resolution is
// submitted; repeated calls return the same future. Callers that need the
// catalog size can wait on the returned future, but resolution does not
// require it because the queue runs tasks in submission order.
func (r *Registry) Init(ctx context.Context) *loadqueue.Future[int] {
	r.initOnce.Do(func() {
		r.initFut = loadqueue.Go(ctx, r.queue, r.loadCatalog)
	})
	return r.initFut
}

// Reload re-reads the catalog and drops every cached evaluator. It runs on
// the load queue like any other registry mutation.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	return loadqueue.Submit(ctx, r.queue, func(ctx context.Context) (int, error) {
		n, err := r.loadCatalog(ctx)
		if err != nil {
			return 0, err
		}
		r.mu.Lock()
		clear(r.cache)
		r.mu.Unlock()
		r.breakers.Reset()
		return n, nil
	})
}

// Ready reports whether the catalog has been loaded.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// DefaultSystem returns the fallback game-system id.
func (r *Registry) DefaultSystem() string { return r.defaultID }

// ListAvailable returns a copy of the catalog ordered by sort key.
func (r *Registry) ListAvailable() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.catalog)
}

// Known reports whether id is in the catalog.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[id]
	return ok
}

// Resolve returns the evaluator for gameType. Unknown ids resolve to the
// default system. The lookup is queued behind every earlier registry task.
func (r *Registry) Resolve(ctx context.Context, gameType string) (Evaluator, error) {
	return loadqueue.Submit(ctx, r.queue, func(ctx context.Context) (Evaluator, error) {
		return r.resolve(ctx, gameType)
	})
}

// Lookup is Resolve without the fallback: a non-empty gameType that is not
// in the catalog yields [ErrUnknownSystem]. An empty gameType selects the
// default system.
func (r *Registry) Lookup(ctx context.Context, gameType string) (Evaluator, error) {
	return loadqueue.Submit(ctx, r.queue, func(ctx context.Context) (Evaluator, error) {
		if gameType != "" && !r.Known(gameType) {
			return nil, fmt.Errorf("gamesystem: lookup %q: %w", gameType, ErrUnknownSystem)
		}
		return r.resolve(ctx, gameType)
	})
}

func (r *Registry) loadCatalog(ctx context.Context) (int, error) {
	ds, err := r.source.Catalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("gamesystem: load catalog: %w", err)
	}

	catalog := make([]Descriptor, 0, len(ds))
	known := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		if _, off := r.disabled[d.ID]; off && d.ID != r.defaultID {
			continue
		}
		if _, dup := known[d.ID]; dup {
			slog.Warn("gamesystem: duplicate catalog entry ignored", "id", d.ID)
			continue
		}
		known[d.ID] = struct{}{}
		catalog = append(catalog, d)
	}
	SortDescriptors(catalog)

	r.mu.Lock()
	r.catalog = catalog
	r.known = known
	r.ready = true
	r.mu.Unlock()

	slog.Info("gamesystem: catalog loaded", "systems", len(catalog))
	return len(catalog), nil
}

// resolve runs on the queue.
func (r *Registry) resolve(ctx context.Context, gameType string) (Evaluator, error) {
	ctx, span := observe.StartSpan(ctx, "gamesystem.resolve",
		trace.WithAttributes(attribute.String("gamesystem.requested", gameType)))
	defer span.End()

	start := time.Now()
	id := r.canonical(ctx, gameType)
	span.SetAttributes(attribute.String("gamesystem.id", id))

	r.mu.RLock()
	ev, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		r.metrics.RecordLoad(ctx, id, sourceCache, "ok", time.Since(start).Seconds())
		return ev, nil
	}

	if ev, ok := r.source.Static(id); ok {
		r.remember(id, ev)
		r.metrics.RecordLoad(ctx, id, sourceStatic, "ok", time.Since(start).Seconds())
		return ev, nil
	}

	var loaded Evaluator
	err := r.breakers.Execute(id, func() error {
		var err error
		loaded, err = r.source.Dynamic(ctx, id)
		return err
	})
	if err != nil {
		r.metrics.RecordLoad(ctx, id, sourceDynamic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, fmt.Errorf("gamesystem: resolve %q: %w: %w", id, ErrUnknownSystem, err)
	}

	r.remember(id, loaded)
	r.metrics.RecordLoad(ctx, id, sourceDynamic, "ok", time.Since(start).Seconds())
	observe.Logger(ctx).Info("gamesystem: loaded on demand", "id", id)
	return loaded, nil
}

// canonical maps gameType to a catalog id, falling back to the default.
func (r *Registry) canonical(ctx context.Context, gameType string) string {
	if r.Known(gameType) {
		return gameType
	}
	if gameType != "" {
		log := observe.Logger(ctx).With("requested", gameType, "fallback", r.defaultID)
		if s := r.Suggest(gameType, 1); len(s) > 0 && s[0].ID != r.defaultID {
			log = log.With("did_you_mean", s[0].ID)
		}
		log.Debug("gamesystem: unknown game type")
	}
	return r.defaultID
}

func (r *Registry) remember(id string, ev Evaluator) {
	r.mu.Lock()
	r.cache[id] = ev
	r.mu.Unlock()
}
