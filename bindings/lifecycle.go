package bindings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/app"
	"github.com/MJE43/neon-arcade/internal/config"
	"github.com/MJE43/neon-arcade/internal/logging"
)

const appDirName = "neon-arcade"

// App is the object bound to the desktop frontend.
type App struct {
	ctx  context.Context
	mu   sync.RWMutex
	core *app.App
	log  *zap.Logger
	// emit overrides the Wails event call outside a window.
	emit func(ctx context.Context, name string, data ...interface{})
}

func New() *App { return &App{log: zap.NewNop()} }

// DataDir is where the desktop build keeps its database and config.
func DataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appDirName)
	}
	return "."
}

// desktopConfig reads config.yaml from the data dir. The database lives
// next to it unless the file says otherwise.
func desktopConfig(dir string) (*config.Config, error) {
	def := config.Default().Database.SQLitePath
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	if cfg.Database.SQLitePath == def {
		cfg.Database.SQLitePath = filepath.Join(dir, "arcade.db")
	}
	return cfg, nil
}

// Startup is called by Wails once the window context exists.
func (a *App) Startup(ctx context.Context) {
	if err := a.start(ctx, DataDir()); err != nil {
		panic(err)
	}
}

func (a *App) start(ctx context.Context, dir string) error {
	cfg, err := desktopConfig(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.Must("neon-arcade-desktop", cfg.Env)

	core, err := app.New(ctx, cfg, log, app.WithListener(&eventBridge{ctx: ctx, emit: a.emit}))
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	core.Start()

	a.mu.Lock()
	a.ctx, a.core, a.log = ctx, core, log
	a.mu.Unlock()
	return nil
}

// Shutdown settles open rounds and closes storage.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	core := a.core
	a.core = nil
	a.mu.Unlock()
	if core == nil {
		return
	}
	if err := core.Shutdown(ctx); err != nil {
		a.log.Warn("shutdown failed", zap.Error(err))
	}
	_ = a.log.Sync()
}

var errNotStarted = errors.New("engine not started")

func (a *App) engine() (*app.App, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.core == nil {
		return nil, errNotStarted
	}
	return a.core, nil
}
