package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"qrstudio/internal/auth"
	"qrstudio/internal/cache"
	"qrstudio/internal/config"
	"qrstudio/internal/convert"
	"qrstudio/internal/editor"
	"qrstudio/internal/etl/sources"
	"qrstudio/internal/objstore"
	"qrstudio/internal/pdfdoc"
	"qrstudio/internal/qr"
	"qrstudio/internal/render"
	"qrstudio/internal/secret"
	"qrstudio/internal/service"
	"qrstudio/internal/storage"
)

// core holds everything the desktop app and the standalone MCP server share:
// storage, collaborators and services.
type core struct {
	cfg config.Config

	db      *storage.DB
	secrets secret.SecretStore
	objects objstore.Store
	cache   cache.Cache
	guard   *auth.Guard
	authc   *auth.Client
	gen     *qr.Generator

	editors     *service.EditorService
	templates   *service.TemplateService
	campaigns   *service.CampaignService
	imports     *service.ImportService
	connections *service.ConnectionService
	uploads     *service.UploadService
	settings    *service.SettingsService
}

// cacheSweepSpec runs the in-memory render cache sweep.
const cacheSweepSpec = "@every 10m"

// newCore opens storage and builds the services. ctx is the lifetime of the
// process; emitter receives service and session events.
func newCore(ctx context.Context, cfg config.Config, emitter service.EventEmitter) (*core, error) {
	db, err := storage.New(cfg.DBPath, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c := &core{cfg: cfg, db: db}

	if c.secrets, err = secret.Open(cfg.DataDir); err != nil {
		c.close()
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	if c.objects, err = objstore.Open(ctx, cfg.ObjectStore, filesBaseURL(cfg.DownloadListen)); err != nil {
		c.close()
		return nil, fmt.Errorf("open object store: %w", err)
	}
	if c.cache, err = cache.Open(cfg.Cache); err != nil {
		log.Printf("[Editor] render cache unavailable, using memory: %v", err)
		c.cache = cache.NewMemory()
	}

	c.authc = auth.NewClient(cfg.AuthURL, cfg.AuthClientID)
	c.guard = auth.NewGuard(c.authc, c.secrets)
	if _, err := c.guard.Restore(ctx); err != nil {
		log.Printf("[Auth] no restored session: %v", err)
	}

	conv := convert.NewClient(cfg.ConvertURL, cfg.ConvertAPIKey, cfg.ExportTimeout.Duration)
	fetcher := pdfdoc.HTTPFetcher{MaxBytes: cfg.MaxPDFBytes}
	loader := &pdfdoc.DocumentLoader{
		Loader: pdfdoc.NewLoader(fetcher, conv, cfg.RenderWorkers),
		Cache:  c.cache,
		TTL:    cfg.Cache.TTL.Duration,
		Render: pdfdoc.RenderOptions{DPI: cfg.RenderDPI},
	}
	exporter := editor.NewExporter(conv, render.NewLocal(c.objects, fetcher), qr.EncodeBody)

	c.gen = qr.NewGenerator(nil)
	campaignStore := storage.NewCampaignStore(db)
	templateStore := storage.NewTemplateStore(db)

	c.templates = service.NewTemplateService(templateStore, storage.NewVersionStore(db))
	c.editors = service.NewEditorService(editor.Deps{
		Loader:       loader,
		Exporter:     exporter,
		Emitter:      emitter,
		HistoryLimit: cfg.HistoryLimit,
	}, c.templates)
	c.campaigns = service.NewCampaignService(campaignStore, templateStore, c.gen, c.objects)
	c.imports = service.NewImportService(storage.NewImportJobStore(db), campaignStore, c.campaigns.RowPayload, emitter)
	c.connections = service.NewConnectionService(storage.NewDBConnectionStore(db), c.secrets)
	c.uploads = service.NewUploadService(c.objects, c.guard, service.UploadLimits{
		PDF:   cfg.MaxPDFBytes,
		Image: cfg.MaxImageBytes,
	})
	c.settings = service.NewSettingsService(db)

	sources.SetDBProvider(c.connections)

	if mem, ok := c.cache.(*cache.Memory); ok {
		err := c.imports.AddMaintenance(cacheSweepSpec, "render cache sweep", func() {
			if n := mem.Sweep(); n > 0 {
				log.Printf("[Editor] swept %d expired renders", n)
			}
		})
		if err != nil {
			log.Printf("[Campaign] schedule cache sweep: %v", err)
		}
	}
	return c, nil
}

// close releases everything newCore opened, in reverse order.
func (c *core) close() {
	if c.editors != nil {
		c.editors.CloseAll()
	}
	if c.imports != nil {
		c.imports.Stop()
	}
	if c.connections != nil {
		c.connections.Close()
		sources.SetDBProvider(nil)
	}
	if c.cache != nil {
		c.cache.Close()
	}
	if closer, ok := c.objects.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(context.Background()); err != nil {
			log.Printf("[Upload] close object store: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
}

// filesBaseURL is the public root of stored objects, served by the asset
// routes on the download listener.
func filesBaseURL(listen string) string {
	if !strings.Contains(listen, "://") {
		listen = "http://" + listen
	}
	return strings.TrimRight(listen, "/") + filesPrefix
}
