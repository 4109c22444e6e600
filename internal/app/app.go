package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"qrstudio/internal/config"
	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/service"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx     context.Context
	emitter service.EventEmitter

	*core
	assets  *assetServer
	watcher *changeWatcher

	// Last editor session the frontend focused, for window title and
	// last-template bookkeeping.
	mu            sync.Mutex
	activeSession string
}

// New creates a new App.
func New() *App {
	return &App{}
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	a.emitter = wailsEmitter{ctx: ctx}

	cfg, err := config.Load()
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to load config: %v", err)
		return
	}
	c, err := newCore(ctx, cfg, a.emitter)
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to start: %v", err)
		return
	}
	a.core = c

	if a.assets, err = startAssetServer(cfg.DownloadListen, c.objects); err != nil {
		wailsRuntime.LogErrorf(ctx, "Failed to start asset server on %s: %v", cfg.DownloadListen, err)
	}

	a.imports.RestartWatchers(ctx)

	a.watcher = newChangeWatcher(ctx, c.db.Conn(), a.emitter)
	a.watcher.Start()

	size := a.settings.LoadWindowSize()
	wailsRuntime.WindowSetSize(ctx, size.Width, size.Height)
	wailsRuntime.LogInfof(ctx, "[App] started, data dir %s", cfg.DataDir)
}

// BeforeClose saves the window size. It never vetoes closing.
func (a *App) BeforeClose(ctx context.Context) bool {
	if a.core == nil {
		return false
	}
	w, h := wailsRuntime.WindowGetSize(ctx)
	if err := a.settings.SaveWindowSize(w, h); err != nil {
		wailsRuntime.LogErrorf(ctx, "Failed to save window size: %v", err)
	}
	return false
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.assets != nil {
		a.assets.Close()
	}
	if a.core != nil {
		a.imports.WaitRunning(ctx)
		a.core.close()
	}
}

// ── Binding boundary ───────────────────────────────────────

// bound runs fn at the binding boundary. A panic is logged, reported to the
// frontend as the generic fallback and returned as an error. When notify is
// set an ordinary error is reported too; editor sessions report their own.
func (a *App) bound(op string, notify bool, fn func() error) (err error) {
	var n domain.Notification
	panicked := true
	func() {
		defer domain.RecoverToNotification(&n)
		err = fn()
		panicked = false
	}()
	if panicked {
		a.emitter.Emit(a.ctx, editor.EventNotify, n)
		return fmt.Errorf("%s: %s", op, n.Title)
	}
	if err != nil {
		log.Printf("[App] %s: %v", op, err)
		if notify {
			a.emitter.Emit(a.ctx, editor.EventNotify, domain.NotificationFor(err))
		}
	}
	return err
}

// Config returns the effective configuration without secrets.
func (a *App) Config() config.Config {
	cfg := a.cfg
	cfg.ConvertAPIKey = ""
	cfg.ObjectStore.MongoURI = ""
	cfg.Cache.RedisPW = ""
	return cfg
}

// contextWithTimeout applies d when it is set.
func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
