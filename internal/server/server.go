package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-patch/internal/api"
	"github.com/joeblew999/plat-patch/internal/api/viewer"
	"github.com/joeblew999/plat-patch/internal/cache"
	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/db"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/prefs"
	"github.com/joeblew999/plat-patch/internal/service"
	"github.com/joeblew999/plat-patch/internal/templates"
)

// sampleSize is how many loaded patches the schema is checked against.
const sampleSize = 50

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string // optional web/ directory for static files and template overrides
	Deployment string // built-in name or YAML path

	RedisAddr     string // empty keeps the stats cache in memory
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	PrefsPath   string // defaults to <DataDir>/prefs.db
	SessionIdle time.Duration

	// NoDuckDB skips the DuckDB store; GeoParquet sources then cannot load.
	NoDuckDB bool
}

// Server is the patch map HTTP server.
type Server struct {
	config     Config
	mux        *http.ServeMux
	humaAPI    huma.API
	deployment *config.Deployment
	db         *sql.DB
	services   *api.Services
	renderer   *templates.Renderer
	viewer     *viewer.Handler
	redis      *cache.Redis
	prefs      *prefs.Store
	cacheName  string
	cancel     context.CancelFunc
}

// New loads the deployment and its patches and wires every route. It fails
// when the deployment is invalid or the patch data does not carry the
// configured attributes.
func New(cfg Config) (*Server, error) {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.SessionIdle == 0 {
		cfg.SessionIdle = 30 * time.Minute
	}
	if cfg.PrefsPath == "" {
		cfg.PrefsPath = filepath.Join(cfg.DataDir, "prefs.db")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	d, err := config.Load(cfg.Deployment)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		mux:        http.NewServeMux(),
		deployment: d,
		cancel:     cancel,
	}
	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	cfg, d := s.config, s.deployment
	log := logger.L()

	if !cfg.NoDuckDB {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "patch"})
		if err != nil {
			log.Warn("duckdb_unavailable", "err", err)
		} else {
			s.db = conn
		}
	}

	bus := service.NewEventBus()
	patches := service.NewPatchService(d.Schema())
	sources := service.NewSourceService(cfg.DataDir, d.Source)
	if err := s.loadPatches(ctx, patches, sources); err != nil {
		return err
	}
	if d.DeriveENN {
		n := patches.DeriveENN()
		log.Info("enn_derived", "filled", n)
	}
	if patches.Count() > 0 {
		if err := d.Schema().CheckSample(patches.Samples(sampleSize)); err != nil {
			return fmt.Errorf("deployment %s: %w", d.Name, err)
		}
	}

	statsCache, err := s.openCache(ctx)
	if err != nil {
		return err
	}

	s.prefs, err = prefs.Open(cfg.PrefsPath)
	if err != nil {
		return err
	}

	s.renderer, err = templates.New(templates.Dir(cfg.WebDir))
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	sessions := service.NewSessionService(d.TierNames())
	go sessions.Run(ctx, time.Minute, cfg.SessionIdle)

	s.services = &api.Services{
		Deployment: d,
		Patch:      patches,
		Stats:      service.NewStatsService(patches, statsCache, cache.Namespace(d.Name, sources.Active())),
		Tile:       service.NewTileService(cfg.DataDir),
		Source:     sources,
		Tiler:      service.NewTilerService(cfg.DataDir, patches, d.Schema(), bus),
		Prefs:      s.prefs,
		DB:         s.db,
	}
	s.viewer = viewer.NewHandler(viewer.Deps{
		Deployment: d,
		Sessions:   sessions,
		Patches:    patches,
		Stats:      s.services.Stats,
		Prefs:      s.prefs,
		Bus:        bus,
		Renderer:   s.renderer,
	})

	humaConfig := huma.DefaultConfig("plat-patch API", "1.0.0")
	humaConfig.Info.Description = "Forest patch map API: tier and area filters, visible patch statistics, tiles and viewer preferences."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	return s.routes()
}

// loadPatches fills the index from the deployment's source. GeoJSON is read
// directly; GeoParquet goes through DuckDB. A GeoJSON source is also
// imported into DuckDB when it is available, for the tier summary.
func (s *Server) loadPatches(ctx context.Context, patches *service.PatchService, sources *service.SourceService) error {
	log := logger.L()
	name := sources.Active()
	if name == "" {
		log.Warn("no_patch_source", "deployment", s.deployment.Name)
		return nil
	}
	path, err := sources.Resolve(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("patch_source_missing", "source", name, "dir", sources.SourcesDir())
			return nil
		}
		return fmt.Errorf("patch source: %w", err)
	}

	kind, _ := service.SourceType(name)
	switch kind {
	case "GeoParquet":
		if s.db == nil {
			return fmt.Errorf("patch source %s needs DuckDB", name)
		}
		if _, err := db.ImportPatches(ctx, s.db, path); err != nil {
			return err
		}
		if err := patches.Load(ctx, db.Loader(s.db)); err != nil {
			return err
		}
	default:
		if err := patches.LoadGeoJSON(path); err != nil {
			return err
		}
		if s.db != nil {
			if _, err := db.ImportPatches(ctx, s.db, path); err != nil {
				log.Warn("duckdb_import", "source", name, "err", err)
			}
		}
	}
	log.Info("patches_loaded", "source", name, "count", patches.Count())
	return nil
}

func (s *Server) openCache(ctx context.Context) (cache.Cache, error) {
	cfg := s.config
	if cfg.RedisAddr == "" {
		s.cacheName = "memory"
		return cache.NewMemory(1024, cfg.CacheTTL), nil
	}
	rc, err := cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	s.redis = cache.NewRedis(rc, cfg.CacheTTL)
	s.cacheName = "redis"
	return s.redis, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Deployment returns the loaded deployment.
func (s *Server) Deployment() *config.Deployment {
	return s.deployment
}

// Services exposes the wired services, e.g. for CLI commands.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.prefs != nil {
		errs = append(errs, s.prefs.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() error {
	cfg := s.config

	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(cfg.DataDir, s.db != nil, s.cacheName, s.deployment, s.services.Patch).RegisterRoutes(s.humaAPI)

	// Viewer SSE routes using Huma + Datastar SDK
	s.viewer.RegisterRoutes(s.humaAPI)

	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return fmt.Errorf("compression: %w", err)
	}

	// Tiles are read with range requests, so they are served uncompressed.
	tilesDir := filepath.Join(cfg.DataDir, "tiles")
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(tilesDir)))

	if cfg.WebDir != "" {
		staticDir := filepath.Join(cfg.WebDir, "static")
		s.mux.Handle("/static/", compress(http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))))
	}

	// Page routes
	s.mux.Handle("/viewer", compress(http.HandlerFunc(s.viewer.Page)))
	s.mux.HandleFunc("/", s.handleRoot)
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if accepts(r, "text/html") {
		http.Redirect(w, r, "/viewer", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service":    "plat-patch",
		"deployment": s.deployment.Name,
		"status":     "running",
	})
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}

func accepts(r *http.Request, mime string) bool {
	return strings.Contains(r.Header.Get("Accept"), mime)
}
