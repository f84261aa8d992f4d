package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/suPer8Hu/summarizer/internal/config"
	"github.com/suPer8Hu/summarizer/internal/db"
	"github.com/suPer8Hu/summarizer/internal/httpapi"
	"github.com/suPer8Hu/summarizer/internal/httpapi/handlers"
	"github.com/suPer8Hu/summarizer/internal/jobs"
	"github.com/suPer8Hu/summarizer/internal/logging"
	"github.com/suPer8Hu/summarizer/internal/observability"
	"github.com/suPer8Hu/summarizer/internal/store/rabbitmq"
	"github.com/suPer8Hu/summarizer/internal/store/redisstore"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Setup("api", cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, "api", version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup")
	}

	gdb, err := db.Connect(db.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		Tracing: cfg.OTEL.Enabled,
		Debug:   cfg.LogLevel == "debug",
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db connect")
	}
	if err := jobs.Migrate(gdb); err != nil {
		logger.Fatal().Err(err).Msg("db migrate")
	}
	repo := jobs.NewRepo(gdb)

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit publisher")
	}

	svc := jobs.NewService(repo, pub, cache, logger)
	h := handlers.NewHandler(svc, map[string]handlers.Pinger{
		"database": repo,
		"redis":    cache,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(h, cfg),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("api shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := pub.Close(); err != nil {
		logger.Warn().Err(err).Msg("rabbit close")
	}
	if err := cache.Close(); err != nil {
		logger.Warn().Err(err).Msg("redis close")
	}
	if err := db.Close(gdb); err != nil {
		logger.Warn().Err(err).Msg("db close")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown")
	}
	logger.Info().Msg("api stopped")
}
