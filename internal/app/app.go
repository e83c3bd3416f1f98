// Package app assembles the engine from configuration. Both the desktop
// shell and the headless server build on it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/api"
	"github.com/MJE43/neon-arcade/internal/config"
	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/metrics"
	"github.com/MJE43/neon-arcade/internal/profile"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scheduler"
	"github.com/MJE43/neon-arcade/internal/scripting"
	"github.com/MJE43/neon-arcade/internal/store"
)

// Listener receives every engine event alongside the websocket hub.
type Listener interface {
	round.Emitter
	scripting.EventEmitter
	EmitBalance(balance decimal.Decimal)
}

type Option func(*App)

// WithListener adds an event sink, such as the desktop event bridge.
func WithListener(l Listener) Option { return func(a *App) { a.listeners = append(a.listeners, l) } }

// WithProfileStore overrides the configured profile backend.
func WithProfileStore(s profile.Store) Option { return func(a *App) { a.profileStore = s } }

// App owns every long-lived component.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *store.SQLiteDB
	Profile   *profile.Profile
	Ledger    *ledger.Ledger
	Rounds    *round.Manager
	Metrics   *metrics.Metrics
	Hub       *api.Hub
	Autoplay  *scripting.Engine
	Scheduler *scheduler.Scheduler

	listeners    []Listener
	profileStore profile.Store
	rng          engine.Source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New opens storage, restores the profile and wires the engine. Nothing
// runs until Start.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}
	for _, o := range opts {
		o(a)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.NewSQLiteDB(cfg.Database.SQLitePath,
		store.WithProfile(cfg.Profile.Name),
		store.WithLogger(log.Named("store")),
	)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.DB = db

	if a.profileStore == nil {
		a.profileStore = a.configuredProfileStore()
	}
	a.Profile = profile.New(a.profileStore, log.Named("profile"))

	start, err := a.Profile.LoadBalance(ctx)
	if err != nil {
		// memory stays authoritative; start from the default
		log.Warn("failed to restore balance", zap.Error(err))
		start = nil
	}
	a.Ledger = ledger.New(start,
		ledger.WithDefault(cfg.Profile.StartingBalance),
		ledger.WithPersister(a.Profile),
		ledger.WithJournal(db),
		ledger.WithLogger(log.Named("ledger")),
	)

	a.Metrics = metrics.New()
	a.Metrics.SetBalance(a.Ledger.Balance())
	a.Hub = api.NewHub(api.OriginChecker(cfg.Server.AllowedOrigins), log.Named("ws"))

	a.rng = a.source()
	a.Rounds = round.New(games.DefaultRegistry(), a.Ledger,
		round.WithSource(a.rng),
		round.WithPacing(cfg.Pacing.Enabled),
		round.WithRecorder(db),
		round.WithEmitter(a.roundEmitter()),
		round.WithObserver(a.Metrics),
		round.WithLogger(log.Named("round")),
	)

	a.Autoplay = scripting.NewEngine(scripting.NewManagerPlacer(a.Rounds), a.scriptEmitter(),
		scripting.WithMaxBets(cfg.Autoplay.MaxBets),
		scripting.WithLogger(log.Named("autoplay")),
	)

	a.Scheduler = scheduler.New(a.ctx, a.Rounds, cfg.Sweeper.IdleTTL, log.Named("scheduler"))
	if cfg.Sweeper.Cron != "" {
		if err := a.Scheduler.RegisterSweep(cfg.Sweeper.Cron); err != nil {
			db.Close()
			return nil, err
		}
	}

	log.Info("engine ready",
		zap.String("profile", cfg.Profile.Name),
		zap.String("backend", cfg.Profile.Backend),
		zap.String("balance", a.Ledger.Balance().String()),
		zap.Bool("pacing", cfg.Pacing.Enabled),
		zap.Bool("seeded", cfg.Seeded()),
	)
	return a, nil
}

func (a *App) configuredProfileStore() profile.Store {
	if a.Config.Profile.Backend != config.BackendKeyring {
		return a.DB
	}
	fallback := a.Config.Profile.FallbackPath
	if fallback == "" {
		fallback = filepath.Join(filepath.Dir(a.Config.Database.SQLitePath), "profile.json")
	}
	return profile.NewKeyringStore(a.Config.Profile.KeyringService, a.Config.Profile.Name, fallback)
}

// source is the HMAC stream when seeds are configured, so a session can be
// replayed, and the PCG generator otherwise.
func (a *App) source() engine.Source {
	if a.Config.Seeded() {
		return a.Config.Seeds().Stream(0, 0)
	}
	return engine.NewSource()
}

// Server builds the HTTP API over this engine.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Rounds:      a.Rounds,
		Wallet:      a.Ledger,
		History:     a.DB,
		Preferences: a.Profile,
		Autoplay:    a.Autoplay,
		Metrics:     a.Metrics,
		Hub:         a.Hub,
		Source:      a.rng,
	}, a.Log.Named("api"),
		api.WithAllowedOrigins(a.Config.Server.AllowedOrigins),
		api.WithRequestTimeout(a.Config.Server.RequestTimeout),
	)
}

// Start runs the sweeper and the balance fan-out.
func (a *App) Start() {
	updates, unsubscribe := a.Ledger.Subscribe()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-a.ctx.Done():
				return
			case bal := <-updates:
				a.Metrics.SetBalance(bal)
				a.Hub.Broadcast(api.EventBalance, api.BalanceResponse{Balance: bal})
				for _, l := range a.listeners {
					l.EmitBalance(bal)
				}
			}
		}
	}()
	a.Scheduler.Start()
}

// Shutdown stops autoplay, force-settles every open round and closes
// storage. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.once.Do(func() {
		if a.Autoplay.GetState().State == scripting.StateRunning {
			_ = a.Autoplay.Stop()
		}
		if n := a.Rounds.AbandonAll(ctx); n > 0 {
			a.Log.Info("abandoned open rounds on shutdown", zap.Int("rounds", n))
		}
		a.Scheduler.Stop()
		a.cancel()
		a.wg.Wait()
		a.Hub.Close()
		err = a.DB.Close()
	})
	return err
}

func (a *App) roundEmitter() round.Emitter {
	return roundFanout{hub: a.Hub, listeners: a.listeners}
}

func (a *App) scriptEmitter() scripting.EventEmitter {
	return scriptFanout{hub: a.Hub, listeners: a.listeners}
}

type roundFanout struct {
	hub       *api.Hub
	listeners []Listener
}

func (f roundFanout) EmitRound(s round.Snapshot) {
	f.hub.EmitRound(s)
	for _, l := range f.listeners {
		l.EmitRound(s)
	}
}

type scriptFanout struct {
	hub       *api.Hub
	listeners []Listener
}

func (f scriptFanout) EmitScriptState(s scripting.EngineSnapshot) {
	f.hub.EmitScriptState(s)
	for _, l := range f.listeners {
		l.EmitScriptState(s)
	}
}

func (f scriptFanout) EmitScriptLog(entries []scripting.LogEntry) {
	f.hub.EmitScriptLog(entries)
	for _, l := range f.listeners {
		l.EmitScriptLog(entries)
	}
}
