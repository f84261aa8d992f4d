package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/suPer8Hu/summarizer/internal/ai"
	"github.com/suPer8Hu/summarizer/internal/config"
	"github.com/suPer8Hu/summarizer/internal/db"
	"github.com/suPer8Hu/summarizer/internal/jobs"
	"github.com/suPer8Hu/summarizer/internal/logging"
	"github.com/suPer8Hu/summarizer/internal/observability"
	"github.com/suPer8Hu/summarizer/internal/resolver"
	"github.com/suPer8Hu/summarizer/internal/store/rabbitmq"
	"github.com/suPer8Hu/summarizer/internal/store/redisstore"
	"github.com/suPer8Hu/summarizer/internal/worker"
)

var version = "dev"

// retries never park a message for longer than this
const maxRetryDelay = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Setup("worker", cfg.LogLevel, cfg.LogPretty)

	err = run(cfg, logger)
	if code := exitCode(err); code != 0 {
		logger.Error().Err(err).Int("exit_code", code).Msg("worker exiting")
		os.Exit(code)
	}
}

// exitCode maps the consumer outcome to the process status. Losing the
// broker is a failure so that an on-failure supervisor restarts the worker.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// run wires the worker and blocks until a signal or until the consumer stops.
// Every dependency is closed before it returns.
func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, "worker", version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}

	gdb, err := db.Connect(db.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		Tracing: cfg.OTEL.Enabled,
		Debug:   cfg.LogLevel == "debug",
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("db connect (%s): %w", cfg.DBDriver, err)
	}
	if err := jobs.Migrate(gdb); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	repo := jobs.NewRepo(gdb)

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)

	reg := ai.NewDefaultRegistry(ai.Settings{
		GroqAPIKey:        cfg.GroqAPIKey,
		GroqBaseURL:       cfg.GroqBaseURL,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		GeminiAPIKey:      cfg.GeminiAPIKey,
	})
	provider, err := reg.Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		return fmt.Errorf("ai provider %q (available %v): %w", cfg.AIProvider, reg.Names(), err)
	}

	res := resolver.New(resolver.Options{
		Timeout:      cfg.FetchTimeout,
		MaxRedirects: cfg.FetchMaxRedirects,
		MaxChars:     cfg.FetchMaxChars,
	})

	pipeline := worker.NewPipeline(repo, cache, res, ai.NewSummarizer(provider), cfg.CacheTTL, logger)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, rabbitmq.RetryPolicy{
		MaxRetries: cfg.QueueMaxRetries,
		BaseDelay:  cfg.QueueRetryBaseDelay,
		MaxDelay:   maxRetryDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("rabbit consumer: %w", err)
	}

	// the sweeper publishes on its own connection
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		return fmt.Errorf("rabbit publisher: %w", err)
	}
	sweeper := worker.NewSweeper(repo, pub, cfg.SweepInterval, cfg.SweepStaleAfter, logger)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Str("queue", cfg.RabbitQueue).
		Str("provider", cfg.AIProvider).
		Str("version", version).
		Msg("worker started")

	runErr := consumer.Run(ctx, pipeline.Process)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("consumer stopped")
		stop()
	}
	<-sweepDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics shutdown")
	}
	if err := consumer.Close(); err != nil {
		logger.Warn().Err(err).Msg("consumer close")
	}
	if err := pub.Close(); err != nil {
		logger.Warn().Err(err).Msg("publisher close")
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
	logger.Info().Msg("worker stopped")
	return runErr
}
