// Package app wires the dice bot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the processing loops, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithCharacterStore,
// WithGameSystemSource, WithGateway). When an option is not provided, New
// creates real implementations from the config: a PostgreSQL character
// store when campaign.postgres_dsn is set, the Discord bot when a token is
// configured and the browser chat gateway when webchat is enabled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dicebot/internal/bus"
	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/config"
	"github.com/MrWong99/dicebot/internal/dicebot"
	"github.com/MrWong99/dicebot/internal/discord"
	"github.com/MrWong99/dicebot/internal/discord/commands"
	"github.com/MrWong99/dicebot/internal/gamesystem"
	"github.com/MrWong99/dicebot/internal/gamesystem/builtin"
	"github.com/MrWong99/dicebot/internal/loadqueue"
	"github.com/MrWong99/dicebot/internal/mcp"
	"github.com/MrWong99/dicebot/internal/observe"
	"github.com/MrWong99/dicebot/internal/resilience"
	"github.com/MrWong99/dicebot/internal/webchat"
)

// maxParallelImports bounds concurrent character file reads in New.
const maxParallelImports = 4

// Gateway is a chat platform connection. [discord.Bot] implements it.
type Gateway interface {
	Run(ctx context.Context) error
	Close() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	version  string

	queue    *loadqueue.Queue
	source   gamesystem.Source
	registry *gamesystem.Registry
	catalog  *loadqueue.Future[int]
	chars    character.Store
	pool     *pgxpool.Pool
	chat     *chat.MemStore
	bus      *bus.Bus
	ctrl     *dicebot.Controller
	bridge   *discord.Bridge
	gateway  Gateway
	web      *webchat.Gateway
	mcp      *mcp.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCharacterStore injects a character store instead of creating a MemStore.
func WithCharacterStore(s character.Store) Option {
	return func(a *App) { a.chars = s }
}

// WithGameSystemSource injects the game-system source instead of the
// built-in library.
func WithGameSystemSource(src gamesystem.Source) Option {
	return func(a *App) { a.source = src }
}

// WithGateway injects a chat gateway instead of connecting to Discord.
func WithGateway(g Gateway) Option {
	return func(a *App) { a.gateway = g }
}

// New creates an App by wiring all subsystems together. Character files are
// imported synchronously. The game-system catalog load is queued before any
// subsystem that resolves game systems is created, so it precedes every
// lookup; Run waits for it.
// A Discord connection is opened only when a token is configured and no
// gateway was injected.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	defer func() {
		if err == nil {
			return
		}
		for _, closeFn := range a.closers {
			_ = closeFn()
		}
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.version == "" {
		a.version = "dev"
	}

	// ── 1. Characters ────────────────────────────────────────────────────
	if err := a.initCharacters(ctx); err != nil {
		return nil, fmt.Errorf("app: init characters: %w", err)
	}

	// ── 2. Game systems ──────────────────────────────────────────────────
	a.initGameSystems(ctx)

	// ── 3. Chat store, bus and controller ────────────────────────────────
	a.chat = chat.NewMemStore(cfg.Campaign.HistoryLimit)
	a.bus = bus.New(cfg.DiceBot.BusBuffer)
	a.closers = append(a.closers, func() error {
		a.bus.Close()
		return nil
	})
	a.ctrl = dicebot.NewController(a.registry, a.chat, a.chars, a.bus, dicebot.WithMetrics(a.metrics))

	// ── 4. Discord ───────────────────────────────────────────────────────
	a.bridge = discord.NewBridge(a.chat, a.bus, a.chars, cfg.Discord.ChannelSystems, cfg.Discord.Players)
	if err := a.initDiscord(ctx); err != nil {
		return nil, fmt.Errorf("app: init discord: %w", err)
	}

	// ── 5. Web chat and MCP ──────────────────────────────────────────────
	if cfg.WebChat.Enabled {
		a.web = webchat.New(a.chat, a.bus, cfg.WebChat.Rooms,
			webchat.WithCharacters(a.chars),
			webchat.WithOriginPatterns(cfg.WebChat.OriginPatterns...),
		)
		a.closers = append([]func() error{a.web.Close}, a.closers...)
	}
	if cfg.Server.MCP {
		a.mcp = mcp.New(a.ctrl, a.registry, a.version)
	}

	// The pool outlives every subsystem that writes characters.
	if a.pool != nil {
		a.closers = append(a.closers, func() error {
			a.pool.Close()
			return nil
		})
	}

	return a, nil
}

// initCharacters sets up the character store and imports the configured
// files. Files are parsed concurrently and imported in config order.
func (a *App) initCharacters(ctx context.Context) error {
	if a.chars == nil {
		if err := a.initCharacterStore(ctx); err != nil {
			return err
		}
	}

	paths := a.cfg.Campaign.CharacterFiles
	files := make([]*character.File, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelImports)
	for i, path := range paths {
		g.Go(func() error {
			f, err := character.LoadFile(path)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, f := range files {
		n, err := character.Import(ctx, a.chars, f)
		if err != nil {
			return fmt.Errorf("import %q: %w", paths[i], err)
		}
		slog.Info("imported characters", "path", paths[i], "count", n)
	}
	return nil
}

// initCharacterStore opens the PostgreSQL store when a DSN is configured and
// falls back to memory otherwise.
func (a *App) initCharacterStore(ctx context.Context) error {
	dsn := a.cfg.Campaign.PostgresDSN
	if dsn == "" {
		a.chars = character.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	store := character.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	a.chars = store
	a.pool = pool
	slog.Info("character store connected", "backend", "postgres")
	return nil
}

// initGameSystems creates the load queue and the registry on top of it and
// queues the catalog load as the first task.
func (a *App) initGameSystems(ctx context.Context) {
	dc := a.cfg.DiceBot
	a.queue = loadqueue.New(loadqueue.WithName("gamesystem"), loadqueue.WithTaskTimeout(dc.LoadTimeout))
	if reg, err := a.metrics.ObserveQueueDepth("gamesystem", a.queue.Len); err != nil {
		slog.Warn("load queue depth metric unavailable", "err", err)
	} else {
		a.closers = append(a.closers, reg.Unregister)
	}
	a.closers = append(a.closers, func() error {
		a.queue.Close()
		return nil
	})

	if a.source == nil {
		a.source = builtin.NewLibrary(dc.SystemsDir)
	}
	a.registry = gamesystem.NewRegistry(a.queue, a.source,
		gamesystem.WithDefaultSystem(dc.DefaultSystem),
		gamesystem.WithDisabled(dc.DisabledSystems...),
		gamesystem.WithMetrics(a.metrics),
		gamesystem.WithBreakerConfig(resilience.Config{
			Name:        "gamesystem",
			MaxFailures: dc.Breaker.MaxFailures,
			Cooldown:    dc.Breaker.Cooldown,
		}),
	)
	a.catalog = a.registry.Init(context.WithoutCancel(ctx))
}

// initDiscord connects the bot and registers the /dice commands.
func (a *App) initDiscord(ctx context.Context) error {
	if a.gateway != nil {
		return nil
	}
	dc := a.cfg.Discord
	if dc.Token == "" {
		slog.Warn("discord token not configured, running without a chat gateway")
		return nil
	}

	bot, err := discord.New(ctx, discord.Config{
		Token:    dc.Token,
		GuildID:  dc.GuildID,
		GMRoleID: dc.GMRoleID,
	}, a.bridge)
	if err != nil {
		return err
	}
	commands.NewDiceCommands(bot.Router(), a.ctrl, a.registry, a.bridge, bot.Permissions())
	a.gateway = bot
	a.closers = append([]func() error{bot.Close}, a.closers...)
	return nil
}

// Registry returns the game-system registry.
func (a *App) Registry() *gamesystem.Registry { return a.registry }

// Controller returns the dice bot controller.
func (a *App) Controller() *dicebot.Controller { return a.ctrl }

// Bridge returns the Discord bridge.
func (a *App) Bridge() *discord.Bridge { return a.bridge }

// Chat returns the chat store.
func (a *App) Chat() *chat.MemStore { return a.chat }

// Bus returns the event bus.
func (a *App) Bus() *bus.Bus { return a.bus }

// WebChat returns the browser chat gateway, or nil when disabled.
func (a *App) WebChat() *webchat.Gateway { return a.web }

// Mount registers the MCP endpoint and the web chat handler on mux when
// they are enabled.
func (a *App) Mount(mux *http.ServeMux) {
	if a.mcp != nil {
		mux.Handle("/mcp", a.mcp.Handler())
		slog.Info("mcp endpoint mounted", "path", "/mcp")
	}
	if a.web != nil {
		mux.Handle("GET "+a.cfg.WebChat.Path, a.web.Handler())
		slog.Info("web chat mounted", "path", a.cfg.WebChat.Path, "rooms", len(a.cfg.WebChat.Rooms))
	}
}

// Run waits for the game-system catalog and runs the controller, the result
// delivery loop and the gateway until ctx is cancelled. A failed catalog
// load or gateway error stops every loop and is returned.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.catalog.Wait(gctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("app: load game systems: %w", err)
		}
		slog.Info("game systems loaded", "count", n, "default", a.registry.DefaultSystem())
		return nil
	})
	g.Go(func() error { return a.ctrl.Run(gctx, a.bus) })
	g.Go(func() error { return a.deliver(gctx) })
	if a.gateway != nil {
		g.Go(func() error { return a.gateway.Run(gctx) })
	}

	slog.Info("app running", "gateway", a.gateway != nil, "webchat", a.web != nil)
	return g.Wait()
}

// deliver routes generated messages to the web chat or Discord, depending
// on the tab, until ctx is cancelled or the bus is closed. Delivery
// failures are logged.
func (a *App) deliver(ctx context.Context) error {
	for {
		m, ok := a.bus.ConsumeOutbound(ctx)
		if !ok {
			return nil
		}
		var err error
		if a.web != nil && a.web.Owns(m.TabID) {
			err = a.web.Deliver(ctx, m)
		} else {
			err = a.bridge.Deliver(ctx, m)
		}
		if err != nil {
			slog.Warn("app: delivery failed", "tab", m.TabID, "err", err)
		}
	}
}

// ApplyConfig hot-applies the reloadable settings of next. Settings that
// need a restart are logged.
func (a *App) ApplyConfig(prev, next *config.Config) {
	d := config.Diff(prev, next)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ChannelSystemsChanged {
		a.bridge.SetChannelSystems(next.Discord.ChannelSystems)
		for _, c := range d.ChannelChanges {
			slog.Info("channel game system changed", "channel", c.ChannelID, "old", c.Old, "new", c.New)
		}
	}
	if d.RoomsChanged && a.web != nil {
		a.web.SetRooms(d.NewRooms)
		slog.Info("web chat rooms changed", "rooms", len(d.NewRooms))
	}
	for _, field := range d.RestartRequired {
		slog.Warn("config change requires a restart", "field", field)
	}
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
