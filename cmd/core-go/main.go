package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"encwatch/core-go/internal/db"
	"encwatch/core-go/internal/httpapi"
	"encwatch/core-go/internal/ingest"
	"encwatch/core-go/internal/metrics"
	"encwatch/core-go/internal/prober"
	"encwatch/core-go/internal/reportworker"
	"encwatch/core-go/internal/statusfeed"
)

func main() {
	_ = godotenv.Load()

	addr := envOr("HTTP_ADDR", ":8081")
	logLevel := envOr("LOG_LEVEL", "info")
	databaseURL := envOr("DATABASE_URL", "")

	logger := httpapi.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	if databaseURL != "" {
		p, err := db.Open(ctx, databaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
	}

	m := metrics.New()

	// Ingestion collaborators share one importer; all of them need storage.
	var importer *ingest.Importer
	if pool != nil {
		importer = ingest.NewImporter(logger, pool.Queries(), m)

		worker := reportworker.New(logger, pool.Queries(), reportworker.Options{
			PollInterval: envDuration(logger, "REPORT_POLL_INTERVAL", 2*time.Second),
		}, m)
		go worker.Run(ctx)
	}

	if dir := envOr("CSV_WATCH_DIR", ""); dir != "" {
		if importer == nil {
			logger.Warn().Msg("CSV_WATCH_DIR set but no database configured; drop watcher disabled")
		} else {
			watcher := ingest.NewWatcher(logger, importer, ingest.WatcherOptions{Dir: dir})
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error().Err(err).Str("dir", dir).Msg("csv drop watcher stopped")
				}
			}()
		}
	}

	if broker := envOr("MQTT_BROKER", ""); broker != "" {
		if importer == nil {
			logger.Warn().Msg("MQTT_BROKER set but no database configured; status feed disabled")
		} else {
			feed, err := statusfeed.New(logger, importer, statusfeed.Options{
				Broker:   broker,
				ClientID: envOr("MQTT_CLIENT_ID", ""),
				Username: envOr("MQTT_USERNAME", ""),
				Password: envOr("MQTT_PASSWORD", ""),
				Topics:   splitList(envOr("MQTT_TOPICS", "")),
			})
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to configure mqtt status feed")
			}
			go func() {
				if err := feed.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("mqtt status feed stopped")
				}
			}()
		}
	}

	if targetsFile := envOr("PROBE_TARGETS_FILE", ""); targetsFile != "" {
		if importer == nil {
			logger.Warn().Msg("PROBE_TARGETS_FILE set but no database configured; prober disabled")
		} else {
			targets, err := prober.LoadTargets(targetsFile)
			if err != nil {
				logger.Fatal().Err(err).Str("path", targetsFile).Msg("failed to load probe targets")
			}
			p, err := prober.New(logger, importer, targets, prober.Options{
				Interval:  envDuration(logger, "PROBE_INTERVAL", 30*time.Second),
				Community: envOr("PROBE_COMMUNITY", "public"),
				Resolver:  envOr("PROBE_DNS_RESOLVER", ""),
			}, m)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to configure prober")
			}
			go func() {
				if err := p.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("prober stopped")
				}
			}()
		}
	}

	h := httpapi.NewHandler(logger, pool, m)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("core-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envDuration(log zerolog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", v).Msg("invalid duration in environment")
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
