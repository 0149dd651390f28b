// Package app initializes and holds the long-lived services of a harvesting
// run and exposes each pipeline stage as a method.
package app

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/batch"
	"github.com/JakeFAU/afd-harvester/internal/clock/system"
	"github.com/JakeFAU/afd-harvester/internal/config"
	"github.com/JakeFAU/afd-harvester/internal/id/uuid"
	"github.com/JakeFAU/afd-harvester/internal/logging"
	"github.com/JakeFAU/afd-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/afd-harvester/internal/resolver"
	"github.com/JakeFAU/afd-harvester/internal/server"
	gcsstorage "github.com/JakeFAU/afd-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/afd-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/afd-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/afd-harvester/internal/storage/postgres"
	"github.com/JakeFAU/afd-harvester/internal/wiki"
)

// App holds the services shared by the pipeline stages.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	clock    afd.Clock
	wiki     *wiki.Client
	docs     afd.BlobStore
	resolver *resolver.Resolver
	meta     *pgstore.MetaStore
	gcs      *storage.Client
	progress *server.Progress
	sleeper  batch.Sleeper

	stopServer context.CancelFunc
	serverDone chan error
}

// Option customizes New.
type Option func(*App)

// WithClock replaces the wall clock.
func WithClock(c afd.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithBlobStore replaces the configured document store.
func WithBlobStore(s afd.BlobStore) Option {
	return func(a *App) {
		if s != nil {
			a.docs = s
		}
	}
}

// WithSleeper replaces the real-timer cooldown sleeper.
func WithSleeper(s batch.Sleeper) Option {
	return func(a *App) {
		a.sleeper = s
	}
}

// New creates the output directories and every configured service. It fails
// fast: an output directory that cannot be created is a storage failure.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, command string, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ids afd.IDGenerator = uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a := &App{
		cfg:    cfg,
		runID:  runID,
		clock:  system.New(),
		logger: logging.ForRun(logger, command, runID),
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, dir := range cfg.OutputDirs() {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", afd.ErrStorage, dir, err)
		}
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.API.MaxRPS, DefaultBurst: cfg.API.Burst})
	a.wiki, err = wiki.New(wiki.Config{
		Endpoint:     cfg.API.Endpoint,
		UserAgent:    cfg.API.UserAgent,
		Redirects:    cfg.API.Redirects,
		Timeout:      cfg.Timeout(),
		MaxBodyBytes: cfg.API.MaxBodyBytes,
	}, limiter, a.logger.Named("wiki"))
	if err != nil {
		return nil, fmt.Errorf("init wiki client: %w", err)
	}

	if a.docs == nil {
		if err := a.initDocuments(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.resolver = resolver.New(a.wiki, a.docs, a.logger.Named("resolver"))

	if cfg.DB.DSN != "" {
		if err := a.initMetaStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.progress = server.NewProgress(runID, command, a.clock)
	if cfg.Metrics.Addr != "" {
		a.startServer(ctx)
	}

	a.logger.Info("application initialized",
		zap.String("endpoint", cfg.API.Endpoint),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("meta_db", a.meta != nil),
		zap.String("output_root", cfg.Output.Root))
	return a, nil
}

func (a *App) initDocuments(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return fmt.Errorf("init gcs store: %w", err)
		}
		a.docs = store
	case config.BackendMemory:
		a.logger.Warn("using in-memory document store; discussions are discarded at exit")
		a.docs = memorystorage.NewBlobStore()
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.DocumentsDir()})
		if err != nil {
			return fmt.Errorf("%w: init local store: %w", afd.ErrStorage, err)
		}
		a.docs = store
	}
	return nil
}

func (a *App) initMetaStore(ctx context.Context) error {
	store, err := pgstore.NewMetaStore(ctx, pgstore.MetaStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		RunID:           a.runID,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: minutes(a.cfg.DB.MaxConnLifetimeMinutes),
	}, a.clock)
	if err != nil {
		return fmt.Errorf("init meta store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return fmt.Errorf("init meta store: %w", err)
	}
	a.meta = store
	return nil
}

func (a *App) startServer(ctx context.Context) {
	srvCtx, cancel := context.WithCancel(ctx)
	a.stopServer = cancel
	a.serverDone = make(chan error, 1)
	srv := server.New(a.progress, a.logger.Named("server"))
	go func() {
		a.serverDone <- srv.Serve(srvCtx, a.cfg.Metrics.Addr)
	}()
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID returns the identifier attached to every log entry of this run.
func (a *App) RunID() string {
	return a.runID
}

// Close releases every service. It is safe to call more than once.
func (a *App) Close() {
	if a.stopServer != nil {
		a.stopServer()
		if err := <-a.serverDone; err != nil {
			a.logger.Warn("ops server stopped with error", zap.Error(err))
		}
		a.stopServer = nil
	}
	if a.meta != nil {
		a.meta.Close()
		a.meta = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
		a.gcs = nil
	}
	// Syncing stderr fails on some terminals; nothing to do about it.
	_ = a.logger.Sync()
}

func (a *App) runnerOptions() ([]batch.Option, error) {
	opts := []batch.Option{batch.WithProgress(a.progress.Update), batch.WithSleeper(a.sleeper)}
	tiers := a.cfg.CooldownTiers()
	if len(tiers) == 0 {
		return append(opts, batch.WithCooldown(batch.NoCooldown{})), nil
	}
	policy, err := batch.NewEveryN(tiers...)
	if err != nil {
		return nil, fmt.Errorf("cooldown policy: %w", err)
	}
	return append(opts, batch.WithCooldown(policy)), nil
}
