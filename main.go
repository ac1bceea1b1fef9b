package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/abdusco/shortlink/internal/cache"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/abdusco/shortlink/internal/handler"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/metrics"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/shortcode"
	"github.com/abdusco/shortlink/internal/shortener"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Port           string
	BaseURL        string
	StoreDriver    string
	DBPath         string
	DatabaseURL    string `json:"-"`
	RedisAddr      string
	RedisPassword  string `json:"-"`
	CacheTTL       time.Duration
	CodeBytes      int
	MaxAttempts    int
	ClickTimeout   time.Duration
	MetricsEnabled bool
	LogLevel       string
	Debug          bool
}

func newConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:           cmp.Or(os.Getenv("PORT"), "8080"),
		BaseURL:        os.Getenv("BASE_URL"),
		StoreDriver:    cmp.Or(os.Getenv("STORE_DRIVER"), db.DriverSQLite),
		DBPath:         cmp.Or(os.Getenv("DB_PATH"), "shortlink.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		MetricsEnabled: os.Getenv("METRICS_ENABLED") != "0",
		LogLevel:       cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:          os.Getenv("DEBUG") == "1",
	}

	var err error
	if cfg.CacheTTL, err = time.ParseDuration(cmp.Or(os.Getenv("CACHE_TTL"), "24h")); err != nil {
		return Config{}, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.ClickTimeout, err = time.ParseDuration(cmp.Or(os.Getenv("CLICK_TIMEOUT"), "5s")); err != nil {
		return Config{}, fmt.Errorf("invalid CLICK_TIMEOUT: %w", err)
	}
	if cfg.MaxAttempts, err = strconv.Atoi(cmp.Or(os.Getenv("MAX_ATTEMPTS"), strconv.Itoa(shortener.DefaultMaxAttempts))); err != nil || cfg.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("invalid MAX_ATTEMPTS %q", os.Getenv("MAX_ATTEMPTS"))
	}
	if cfg.CodeBytes, err = strconv.Atoi(cmp.Or(os.Getenv("CODE_BYTES"), strconv.Itoa(shortcode.DefaultBytes))); err != nil || cfg.CodeBytes < 1 {
		return Config{}, fmt.Errorf("invalid CODE_BYTES %q", os.Getenv("CODE_BYTES"))
	}

	switch cfg.StoreDriver {
	case db.DriverSQLite, "memory":
	case db.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := newConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to set up logging")
	}

	log.Info().
		Interface("config", cfg).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []shortener.Option{
		shortener.WithMaxAttempts(cfg.MaxAttempts),
		shortener.WithClickTimeout(cfg.ClickTimeout),
		shortener.WithMetrics(metrics.New(registry)),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, resolving without cache")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
			opts = append(opts, shortener.WithCache(cache.NewRedisCache(rdb, cfg.CacheTTL)))
		}
	}

	codes := shortcode.NewRandom(cfg.CodeBytes)
	service := shortener.NewService(store, codes, opts...)

	e := echo.New()
	defer e.Close()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	linkHandler := handler.NewLinkHandler(service, cfg.BaseURL)
	linkHandler.Register(e)

	log.Info().Str("address", cfg.Port).Msg("server starting")

	// Run server and handle graceful shutdown
	runServer(ctx, e, cfg.Port)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("gave up waiting for pending click updates")
	}

	return nil
}

func openStore(ctx context.Context, cfg Config) (shortener.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store, mappings are lost on restart")
		return repo.NewMemoryStore(), func() {}, nil
	}

	dsn := cfg.DBPath
	if cfg.StoreDriver == db.DriverPostgres {
		dsn = cfg.DatabaseURL
	}

	instance, err := db.Open(ctx, cfg.StoreDriver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	closeFn := func() {
		if err := instance.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}

	return repo.NewMappingsRepo(instance, db.Dialect(cfg.StoreDriver)), closeFn, nil
}

func runServer(ctx context.Context, e *echo.Echo, port string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + port)
	}()

	// Wait for context cancellation (Ctrl+C or SIGTERM)
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, gracefully shutting down...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server exited unexpectedly")
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
