package main

import (
	"context"
	"embed"
	"log"
	"net/url"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/neon-arcade/bindings"
	"github.com/MJE43/neon-arcade/internal/api"
)

//go:embed all:frontend/dist
var assets embed.FS

const repoURL = "https://github.com/MJE43/neon-arcade"

// Window chrome colours; the background matches the frontend's base.
var (
	background = &options.RGBA{R: 12, G: 8, B: 28, A: 255}
	accent     = windows.RGB(255, 46, 166)
)

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex
)

func icon() []byte {
	data, err := assets.ReadFile("frontend/dist/assets/logo.png")
	if err != nil {
		return nil
	}
	return data
}

func platformOptions() (*windows.Options, *mac.Options, *linux.Options) {
	win := &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.Dark,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:  windows.RGB(12, 8, 28),
			DarkModeTitleText: windows.RGB(240, 236, 255),
			DarkModeBorder:    accent,
		},
		ZoomFactor:      1.0,
		WindowClassName: "NeonArcadeWindow",
	}
	macOpts := &mac.Options{
		TitleBar: mac.TitleBarHiddenInset(),
		About: &mac.AboutInfo{
			Title:   "Neon Arcade",
			Message: "Play-money casino games. Balances and round history stay on this machine.",
			Icon:    icon(),
		},
	}
	lin := &linux.Options{
		Icon:             icon(),
		WebviewGpuPolicy: linux.WebviewGpuPolicyOnDemand,
		ProgramName:      "neon-arcade",
	}
	return win, macOpts, lin
}

func main() {
	v := api.GetVersionInfo()
	log.Printf("Starting Neon Arcade %s (%s, Go %s)", v.EngineVersion, v.GitCommit, runtime.Version())

	app := bindings.New()
	win, macOpts, lin := platformOptions()

	err := wails.Run(&options.App{
		Title:            "Neon Arcade",
		Width:            1280,
		Height:           800,
		MinWidth:         1024,
		MinHeight:        720,
		BackgroundColour: background,
		AssetServer:      &assetserver.Options{Assets: assets},

		OnStartup: func(ctx context.Context) {
			app.Startup(ctx)
			setAppContext(ctx)
		},
		OnBeforeClose: func(ctx context.Context) bool {
			setAppContext(nil)
			return false
		},
		// open rounds are force-settled before the database closes
		OnShutdown: app.Shutdown,

		Menu: buildAppMenu(app),
		Bind: []interface{}{app},

		LogLevel:           logger.INFO,
		LogLevelProduction: logger.ERROR,

		// The frontend gets the same error shape as the HTTP API.
		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return api.FromError(err)
		},

		// one process owns the balance
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "7d1e6c2a-5b4f-4e39-a0c8-neon-arcade",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				withAppContext(wruntime.WindowShow)
			},
		},
		DragAndDrop: &options.DragAndDrop{DisableWebViewDrop: true},

		Windows: win,
		Mac:     macOpts,
		Linux:   lin,
	})
	if err != nil {
		log.Fatalf("wails: %v", err)
	}
}

type menuItem struct {
	label  string
	accel  *keys.Accelerator
	action func(ctx context.Context)
}

func submenu(title string, items ...menuItem) *menu.MenuItem {
	m := menu.NewMenu()
	for _, it := range items {
		if it.label == "" {
			m.AddSeparator()
			continue
		}
		action := it.action
		m.AddText(it.label, it.accel, func(*menu.CallbackData) { withAppContext(action) })
	}
	return menu.SubMenu(title, m)
}

func buildAppMenu(app *bindings.App) *menu.Menu {
	root := menu.NewMenu()
	if runtime.GOOS == "darwin" {
		root.Append(menu.AppMenu())
	}

	root.Append(submenu("File",
		menuItem{"Open Data Directory", keys.CmdOrCtrl("o"), func(ctx context.Context) {
			openPath(ctx, bindings.DataDir())
		}},
		menuItem{},
		menuItem{"Quit", keys.CmdOrCtrl("q"), wruntime.Quit},
	))
	root.Append(submenu("Game",
		menuItem{"Stop Autoplay", keys.CmdOrCtrl("."), func(context.Context) {
			if err := app.StopAutoplay(); err != nil {
				log.Printf("stop autoplay: %v", err)
			}
		}},
		menuItem{"Reset Balance", nil, func(ctx context.Context) {
			if _, err := app.ResetBalance(); err != nil {
				log.Printf("reset balance: %v", err)
			}
		}},
	))
	root.Append(submenu("View",
		menuItem{"Reload Frontend", keys.CmdOrCtrl("r"), wruntime.WindowReloadApp},
		menuItem{"Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), toggleFullscreen},
	))
	root.Append(submenu("Help",
		menuItem{"Project Repository", nil, func(ctx context.Context) { wruntime.BrowserOpenURL(ctx, repoURL) }},
	))
	return root
}

func openPath(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	clean := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" && clean != "" && clean[0] != '/' {
		clean = "/" + clean
	}
	wruntime.BrowserOpenURL(ctx, (&url.URL{Scheme: "file", Path: clean}).String())
}

func toggleFullscreen(ctx context.Context) {
	if wruntime.WindowIsFullscreen(ctx) {
		wruntime.WindowUnfullscreen(ctx)
		return
	}
	wruntime.WindowFullscreen(ctx)
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

// withAppContext runs action once the window exists; menu clicks before
// startup are dropped.
func withAppContext(action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		return
	}
	action(ctx)
}
