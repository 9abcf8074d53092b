// Package callcenter wires the call center components into a single
// application and exposes the caller-context boundary over HTTP: dialing,
// utterances, hold and hang-up, plus a websocket stream of call events.
package callcenter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/eburon/callerpro/internal/config"
	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/audio"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/call"
	"github.com/eburon/callerpro/pkg/callcenter/crm"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	"github.com/eburon/callerpro/pkg/callcenter/tools"
)

// MetricsNamespace prefixes every exported collector.
const MetricsNamespace = "callerpro"

// App represents the callerpro application
type App struct {
	Config       *config.Config
	Catalog      agent.Catalog
	Metrics      *metrics.Metrics
	Director     *audio.Director
	Router       *backend.Router
	Dispatcher   *tools.Dispatcher
	CRM          crm.Service
	Orchestrator *call.Orchestrator

	// KeepAliveInterval overrides stream.KeepAliveInterval for event streams.
	KeepAliveInterval time.Duration

	cache  *audio.AssetCache
	sink   audio.Sink
	db     *gorm.DB
	router *mux.Router
}

// NewApp builds every component from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{
		Config:  cfg,
		Metrics: metrics.New(MetricsNamespace),
	}

	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	app.Catalog = catalog

	app.initializeAudio()

	registry, err := backend.NewRegistry(
		backend.NewHostedConnector(backend.HostedConfig{Model: cfg.Hosted.Model, APIKey: cfg.Hosted.APIKey}),
		backend.NewLocalConnector(backend.LocalConfig{MaxRetries: cfg.Local.MaxRetries}),
	)
	if err != nil {
		return nil, err
	}
	app.Router = backend.NewRouter(registry, backend.RouterConfig{
		OpenTimeout: cfg.Call.OpenTimeout,
		Metrics:     app.Metrics,
	})

	if err := app.initializeCRM(ctx); err != nil {
		_ = app.closeDB()
		return nil, err
	}

	app.Dispatcher, err = tools.NewDispatcher(app.Metrics, tools.CRMTools(app.CRM)...)
	if err != nil {
		_ = app.closeDB()
		return nil, err
	}

	app.Orchestrator = call.NewOrchestrator(app.Catalog, app.Director, app.Router, app.Dispatcher, call.Config{
		BusyDuration: cfg.Call.BusyDuration,
		Metrics:      app.Metrics,
		Sink:         app.sink,
	})

	return app, nil
}

// LoadCatalog reads the configured catalog, or the built-in personas, and
// applies the process-wide backend defaults to its entries.
func LoadCatalog(cfg *config.Config) (*agent.StaticCatalog, error) {
	var (
		catalog *agent.StaticCatalog
		err     error
	)
	if cfg.Catalog.Path != "" {
		catalog, err = agent.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
	} else {
		catalog = agent.DefaultCatalog()
	}

	agents, err := catalog.ListAgents(context.Background())
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		applyBackendDefaults(a, cfg)
	}
	return agent.NewStaticCatalog(agents...)
}

// applyBackendDefaults fills unset local backend fields from the process
// configuration. Hosted agents fall back to the connector's defaults.
func applyBackendDefaults(a *agent.Agent, cfg *config.Config) {
	local, ok := a.Backend.(*agent.LocalSettings)
	if !ok {
		return
	}
	if local.BaseURL == "" {
		local.BaseURL = cfg.Local.BaseURL
	}
	if local.Model == "" {
		local.Model = cfg.Local.Model
	}
	if local.APIKey == nil && cfg.Local.APIKey != "" {
		key := cfg.Local.APIKey
		local.APIKey = &key
	}
}

func (a *App) initializeAudio() {
	cfg := a.Config.Audio

	if cfg.CacheDir != "" {
		a.cache = audio.NewAssetCache(cfg.CacheDir, nil)
	}

	var device audio.Device
	switch cfg.Device {
	case "silent":
		device = &audio.SilentDevice{}
	default:
		device = audio.NewFFPlayDevice(cfg.FFPlayPath, a.cache)
		a.sink = audio.NewFFPlaySink(cfg.FFPlayPath, cfg.SampleRate)
	}

	a.Director = audio.NewDirector(device, audio.DirectorConfig{
		Assets:         cfg.Assets,
		ProgressVolume: cfg.ProgressVolume,
		AmbientVolume:  cfg.AmbientVolume,
		Metrics:        a.Metrics,
	})
}

func (a *App) initializeCRM(ctx context.Context) error {
	cfg := a.Config.CRM

	if cfg.Driver == "http" {
		token := cfg.Token
		a.CRM = crm.NewHTTPService(cfg.BaseURL, func() string { return token })
		return nil
	}

	db, err := crm.OpenDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	a.db = db

	store, err := crm.NewStore(db)
	if err != nil {
		return err
	}
	if cfg.SeedEnabled() {
		if err := store.Seed(ctx, crm.DefaultListings()); err != nil {
			return fmt.Errorf("failed to seed listings: %w", err)
		}
	}
	a.CRM = store
	return nil
}

// Preload downloads the call audio assets into the cache directory.
// Failures are logged; playback falls back to the remote assets.
func (a *App) Preload(ctx context.Context) {
	if a.cache == nil || !a.Config.Audio.PreloadEnabled() {
		return
	}
	log := ctrllog.FromContext(ctx).WithName("app")
	if err := a.cache.Preload(ctx, a.Config.Audio.Assets.All()...); err != nil {
		a.Metrics.RecordPlaybackError("preload")
		log.Error(apperrors.New(apperrors.ErrCodePlayback, "failed to preload audio assets", err), "Continuing with remote assets")
	}
}

// Handler returns the HTTP handler serving the caller API.
func (a *App) Handler() http.Handler {
	if a.router == nil {
		a.router = mux.NewRouter()
		a.setupRoutes()
	}
	return a.router
}

// Build creates the HTTP server for the caller API
func (a *App) Build(ctx context.Context) (*http.Server, error) {
	if a.Orchestrator == nil {
		return nil, fmt.Errorf("app is not initialized")
	}

	server := &http.Server{
		Addr:         a.Config.Addr(),
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return server, nil
}

// Close hangs up any active call and releases the CRM connection.
func (a *App) Close(ctx context.Context) error {
	if a.Orchestrator != nil {
		a.Orchestrator.Close(ctx)
	}

	var result *multierror.Error
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := a.closeDB(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	a.db = nil
	return sqlDB.Close()
}
