package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/clinic"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/config"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/events"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/httpapi"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/hub"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/logging"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/store/postgres"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "clinic-service"

func main() {
	cfg := config.Load()
	logging.Init(serviceName, cfg.Env, cfg.LogLevel)

	shutdownTelemetry := telemetry.Setup(serviceName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("parse db dsn")
	}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	bus, err := newBus(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("event bus")
	}
	defer bus.Close()

	svc := clinic.New(postgres.NewStore(pool), bus, clinic.Options{
		LatePenalty:      cfg.LatePenalty,
		AutoOfflineAfter: cfg.AutoOfflineAfter,
	})
	auth := httpapi.NewAuthenticator(cfg.JWTSecret, cfg.StaffPasswordHash, cfg.JWTTTL)
	handler := httpapi.NewHandler(svc, auth, httpapi.Options{PortalDomain: cfg.PortalDomain})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		DisplayPerMinute: cfg.DisplayRateLimitPerMinute,
		DisplayBurst:     cfg.DisplayRateLimitBurst,
	})
	displays := hub.New()
	broadcaster := httpapi.NewBroadcaster(svc, displays, 0)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", broadcaster.RealtimeHandler("/realtime"))
	mux.Handle("/", handler.Routes())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(auth.Middleware(mux))), serviceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("clinic-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	go func() {
		if err := broadcaster.Run(ctx, bus); err != nil {
			log.Error().Err(err).Msg("realtime broadcaster stopped")
		}
	}()

	go runEvery(ctx, cfg.LateScanInterval, "late sweep", func(ctx context.Context) error {
		count, err := svc.SweepLate(ctx)
		if count > 0 {
			log.Info().Int("count", count).Msg("late sweep marked patients")
		}
		return err
	})
	go runEvery(ctx, cfg.AutoOfflineEvery, "auto offline", func(ctx context.Context) error {
		_, err := svc.AutoOffline(ctx)
		return err
	})
	go runEvery(ctx, 5*time.Minute, "rate limit prune", func(ctx context.Context) error {
		limiter.Prune()
		return nil
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func newBus(cfg config.Config) (events.Bus, error) {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, using in-process event bus")
		return events.NewLocalBus(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return events.NewRedisBus(client, events.Channel), nil
}

// runEvery calls fn on each tick until ctx ends. A tick that arrives while the
// previous call is still running is skipped.
func runEvery(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		go func() {
			defer atomic.StoreInt32(&running, 0)
			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := fn(callCtx); err != nil {
				log.Error().Err(err).Str("job", name).Msg("background job failed")
			}
		}()
	}
}
