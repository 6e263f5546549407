package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kode4food/timebox"
	"github.com/redis/go-redis/v9"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	app "github.com/botflow/engine"
	"github.com/botflow/engine/internal/client"
	"github.com/botflow/engine/internal/config"
	"github.com/botflow/engine/internal/engine"
	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/server"
	"github.com/botflow/engine/internal/session"
	"github.com/botflow/engine/internal/tenantdb"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/log"
)

type botflow struct {
	cfg          *config.Config
	timebox      *timebox.Timebox
	catalogStore *timebox.Store
	redis        *redis.Client
	files        *blob.Bucket
	flows        *flow.Registry
	sessions     *session.Store
	engine       *engine.Engine
	apiServer    *server.Server
	httpServer   *http.Server
	quit         chan os.Signal
}

var (
	ErrCreateTimebox      = errors.New("failed to create timebox")
	ErrCreateCatalogStore = errors.New("failed to create catalog store")
	ErrOpenFileBucket     = errors.New("failed to open file bucket")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &botflow{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *botflow) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	s.initializeEngine()
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *botflow) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Botflow Engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("catalog_redis_addr", s.cfg.CatalogStore.Addr),
		slog.Int("catalog_redis_db", s.cfg.CatalogStore.DB),
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *botflow) initializeStores() error {
	var err error

	s.timebox, err = timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  s.cfg.FlowCacheSize,
		Workers:    true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateTimebox, err)
	}

	s.catalogStore, err = s.timebox.NewStore(s.cfg.CatalogStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateCatalogStore, err)
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})

	s.files, err = blob.OpenBucket(
		context.Background(), s.cfg.FileBucketURL,
	)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrOpenFileBucket, err)
	}

	return nil
}

func (s *botflow) initializeEngine() {
	s.flows = flow.NewRegistry(s.catalogStore, s.cfg.FlowCacheSize)
	s.sessions = session.NewStore(
		s.redis, s.cfg.Redis.Prefix, s.cfg.SessionTTL,
	)

	s.engine = engine.New(&engine.Deps{
		Flows:    s.flows,
		Sessions: s.sessions,
		Transport: transport.NewWebhook(
			s.cfg.WebhookBaseURL, s.cfg.HTTPTimeout,
		),
		Invoker: client.NewHTTPInvoker(s.cfg.HTTPTimeout),
		Inference: client.NewModelClient(
			s.cfg.ModelEndpoint, s.cfg.ModelAPIKey, s.cfg.HTTPTimeout,
		),
		Database: tenantdb.NewRedisStore(
			s.redis, s.cfg.Redis.Prefix, s.cfg.DBTables...,
		),
		Files:    s.files,
		Redis:    s.redis,
		Hub:      s.timebox.GetHub(),
	}, s.cfg)
	s.engine.Start()
}

func (s *botflow) startServer() {
	s.apiServer = server.NewServer(s.engine, s.flows, s.sessions)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *botflow) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	_ = s.files.Close()
	_ = s.redis.Close()
	_ = s.timebox.Close()

	slog.Info("Server exited")
}
