// Command goguard serves the goGuard engine over HTTP.
//
// Configuration comes from an optional YAML file (-config), a .env file in
// the working directory and GOGUARD_* environment variables, e.g.
//
//	GOGUARD_BACKEND=redis GOGUARD_REDIS_ADDR=localhost:6379 \
//	GOGUARD_JWT_SECRET=... goguard
//
// Access tokens are issued elsewhere; this service only verifies them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/kafkasink"
	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/httpapi"
	"github.com/MrEthical07/goGuard/jwt"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/store"
	"github.com/MrEthical07/goGuard/store/dynamostore"
	"github.com/MrEthical07/goGuard/store/memstore"
	"github.com/MrEthical07/goGuard/store/redisstore"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", os.Getenv("GOGUARD_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.Env)
	if err := run(cfg, logger); err != nil {
		logger.Error("goguard stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level, env string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h).With(slog.String("service", "goguard"), slog.String("env", env))
}

func run(cfg *config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, redisClient, closeBackend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	engineCfg := goGuard.DefaultConfig()
	engineCfg.TOTP.Issuer = cfg.TwoFactor.Issuer
	engineCfg.TOTP.RejectReplayedCodes = cfg.TwoFactor.RejectReplay
	engineCfg.TwoFactor.MaxAttempts = cfg.TwoFactor.MaxAttempts
	engineCfg.TwoFactor.Cooldown = cfg.TwoFactor.Cooldown
	engineCfg.Metrics.Enabled = true
	engineCfg.Metrics.EnableLatencyHistograms = true

	b := goGuard.New().
		WithStore(backend).
		WithLogger(logger).
		WithQRRenderer(otp.NewPNGRenderer())
	if redisClient != nil {
		b.WithRedis(redisClient)
	}

	if cfg.GeoIPPath != "" {
		resolver, err := geo.OpenMaxMind(cfg.GeoIPPath)
		if err != nil {
			return err
		}
		defer resolver.Close()
		b.WithGeoResolver(resolver)
	}

	var sinks goGuard.MultiSink
	if cfg.AuditStdout {
		sinks = append(sinks, goGuard.NewJSONWriterSink(os.Stdout))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, logger)
		if err != nil {
			return err
		}
		// Deferred before the engine's Close so the dispatcher drains first.
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		engineCfg.Audit.Enabled = true
		b.WithAuditSink(sinks)
	}

	engine, err := b.WithConfig(engineCfg).Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	verifier, err := newVerifier(cfg.JWT)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Handle(cfg.HTTP.MetricsPath, promexport.NewCollector(engine).Handler())
	router.Mount("/", httpapi.NewRouter(engine, httpapi.Options{
		Verifier:       verifier,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
		StrictSessions: cfg.HTTP.StrictSessions,
		Logger:         logger,
	}))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	if cfg.MaintenanceInterval > 0 {
		go runMaintenance(ctx, engine, cfg.MaintenanceInterval, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("goguard starting", "addr", cfg.HTTP.Addr, "backend", cfg.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutdown started")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config, logger *slog.Logger) (store.Store, redis.UniversalClient, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		s := redisstore.New(client, redisstore.Options{Prefix: cfg.Redis.Prefix})
		return s, client, func() { _ = client.Close() }, nil

	case "dynamodb":
		client, err := dynamostore.NewClient(ctx, dynamostore.ClientConfig{
			Region:      cfg.Dynamo.Region,
			AccessKeyID: cfg.Dynamo.AccessKeyID,
			SecretKey:   cfg.Dynamo.SecretKey,
			EndpointURL: cfg.Dynamo.Endpoint,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		s := dynamostore.New(client, cfg.Dynamo.TablePrefix, dynamostore.WithLogger(logger))
		if cfg.Dynamo.Bootstrap {
			if err := s.Bootstrap(ctx, goGuard.Collections()...); err != nil {
				return nil, nil, nil, err
			}
		}
		return s, nil, func() {}, nil

	default:
		return memstore.New(), nil, func() {}, nil
	}
}

func newVerifier(cfg jwtConfig) (*jwt.Manager, error) {
	jc := jwt.Config{
		// Verification only; the TTL bounds nothing here but must be valid.
		AccessTTL: 15 * time.Minute,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		Leeway:    cfg.Leeway,
	}
	switch cfg.Method {
	case "ed25519":
		pem, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		jc.SigningMethod = jwt.MethodEd25519
		jc.PublicKey = pem
	default:
		jc.SigningMethod = jwt.MethodHS256
		jc.PrivateKey = []byte(cfg.Secret)
	}
	return jwt.NewManager(jc)
}

func runMaintenance(ctx context.Context, engine *goGuard.Engine, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := engine.RunMaintenance(ctx)
			if err != nil {
				// RunMaintenance already logged the failure.
				continue
			}
			logger.Info("maintenance complete",
				"sessions_purged", report.SessionsPurged,
				"events_purged", report.EventsPurged,
			)
		}
	}
}
