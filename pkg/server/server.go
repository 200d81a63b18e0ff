// Package server provides a public API for embedding the mosaic service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rkm/pgstac-mosaic/internal/api"
	"github.com/rkm/pgstac-mosaic/internal/backend"
	"github.com/rkm/pgstac-mosaic/internal/config"
	"github.com/rkm/pgstac-mosaic/internal/db"
	"github.com/rkm/pgstac-mosaic/internal/registry"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// Options configures an embedded mosaic server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://tiles.example.com/mosaic" or "http://localhost:8080"
	BaseURL string

	// DatabaseURL is the pgstac connection string. When empty the server
	// runs on the in-memory backend.
	DatabaseURL string

	// Migrate applies the mosaic schema migrations on startup.
	// Default: false
	Migrate bool

	// CatalogFile is a GeoJSON FeatureCollection of STAC items loaded into
	// the in-memory backend. Ignored when DatabaseURL is set.
	CatalogFile string

	// SearchesDir holds JSON seed searches registered on startup.
	// Default: "" (no seeds)
	SearchesDir string

	// StatementTimeout bounds every database round-trip.
	// Default: 10s
	StatementTimeout time.Duration

	// Title is the landing page title.
	// Default: "pgstac mosaic API"
	Title string

	// Description is the landing page description.
	Description string

	// DefaultLimit is the default page size of the search list.
	// Default: 10
	DefaultLimit int

	// MaxLimit caps the search list page size and the asset limit.
	// Default: 1000
	MaxLimit int

	// AssetLimit is the default number of items an asset lookup returns.
	// Default: 100
	AssetLimit int

	// EnableMapViewer exposes the map.html viewer.
	// Default: false
	EnableMapViewer bool

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a mosaic server that can be embedded in another application.
type Server struct {
	router chi.Router
	store  registry.Store
	pool   *pgxpool.Pool
}

// New creates a mosaic server with the given options.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.StatementTimeout == 0 {
		opts.StatementTimeout = 10 * time.Second
	}
	if opts.Title == "" {
		opts.Title = "pgstac mosaic API"
	}
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit == 0 {
		opts.MaxLimit = 1000
	}
	if opts.AssetLimit == 0 {
		opts.AssetLimit = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: config.BackendConfig{
			Type:        config.BackendMemory,
			CatalogFile: opts.CatalogFile,
		},
		Database: config.DatabaseConfig{
			URL:              opts.DatabaseURL,
			MaxConns:         10,
			StatementTimeout: opts.StatementTimeout,
			Migrate:          opts.Migrate,
		},
		Mosaic: config.MosaicConfig{
			BaseURL:      opts.BaseURL,
			Title:        opts.Title,
			Description:  opts.Description,
			DefaultLimit: opts.DefaultLimit,
			MaxLimit:     opts.MaxLimit,
			AssetLimit:   opts.AssetLimit,
			SearchesDir:  opts.SearchesDir,
		},
		Cache: config.CacheConfig{
			Control:      "public, max-age=3600",
			ExcludePaths: []string{"/searches/list", "/searches/register", "/healthz"},
		},
		Features: config.FeatureConfig{
			EnableMapViewer: opts.EnableMapViewer,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
	if opts.DatabaseURL != "" {
		cfg.Backend.Type = config.BackendPgstac
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	return FromConfig(ctx, cfg, opts.Logger)
}

// FromConfig wires the registry, the asset backend and the HTTP router
// described by cfg. Seed searches are registered before it returns.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{}

	var (
		store        registry.Store
		assetBackend backend.AssetBackend
	)
	switch cfg.Backend.Type {
	case config.BackendPgstac:
		pool, err := db.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		if cfg.Database.Migrate {
			if err := db.Migrate(pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		store = registry.NewPostgresStore(pool,
			registry.WithTimeout(cfg.Database.StatementTimeout),
			registry.WithLogger(logger),
		)
		assetBackend = backend.NewPgstac(pool, cfg.Database.StatementTimeout, logger)
	default:
		items, err := loadCatalog(cfg.Backend.CatalogFile)
		if err != nil {
			return nil, err
		}
		mem, err := backend.NewMemory(items, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build memory backend: %w", err)
		}
		logger.Info("using memory backend", "items", mem.Len(), "catalog", cfg.Backend.CatalogFile)
		store = registry.NewMemoryStore(registry.WithLogger(logger))
		assetBackend = mem
	}
	s.store = registry.Instrument(store, nil)

	if cfg.Mosaic.SearchesDir != "" {
		if err := seedSearches(ctx, s.store, backend.Operators(assetBackend), cfg.Mosaic.SearchesDir, logger); err != nil {
			s.Close()
			return nil, err
		}
	}

	handlers := api.NewHandlers(cfg, s.store, assetBackend, logger)
	s.router = api.NewRouter(handlers, logger)
	return s, nil
}

func loadCatalog(path string) ([]*backend.Item, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	items, err := backend.LoadItems(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %q: %w", path, err)
	}
	return items, nil
}

// seedSearches registers every search file found in dir. Registration is
// idempotent so restarts leave the registry unchanged.
func seedSearches(ctx context.Context, store registry.Store, operators []string, dir string, logger *slog.Logger) error {
	seeds, err := config.LoadSearches(dir)
	if err != nil {
		return err
	}
	normalizer := translate.NewNormalizer(logger, translate.WithOperators(operators...))
	for _, seed := range seeds {
		def, err := normalizer.Normalize(seed.Search)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.File, err)
		}
		entry, err := store.Register(ctx, def, seed.Metadata)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.File, err)
		}
		logger.Info("registered seed search", "file", seed.File, "search_id", entry.ID)
	}
	return nil
}

// Router returns the chi router for mounting in another application.
// Example:
//
//	mainRouter.Mount("/mosaic", srv.Router())
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the search registry backing the server.
func (s *Server) Store() registry.Store {
	return s.store
}

// Close releases the database pool, if any.
func (s *Server) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
