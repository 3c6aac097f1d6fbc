// Command goconsole-devserver serves a local admin API with seeded
// operators for developing against goConsole.
//
//	goconsole-devserver -addr :8080 -latency 300ms
//
// Seeded accounts: admin@example.com / admin-secret and
// viewer@example.com / viewer-secret. Failed logins are throttled through
// redis (-redis-addr, REDIS_ADDR, or an in-process miniredis).
// When -metrics is set, a goconsole Store signed in as the admin operator
// probes the server and its counters are served on /metrics.
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
	"syscall"
	"time"

	goConsole "github.com/MrEthical07/goConsole"
	"github.com/MrEthical07/goConsole/devserver"
	"github.com/MrEthical07/goConsole/internal/bootstrap"
	"github.com/MrEthical07/goConsole/internal/logging"
	"github.com/MrEthical07/goConsole/internal/rate"
	"github.com/MrEthical07/goConsole/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8080", "listen address")
		latency     = flag.Duration("latency", 300*time.Millisecond, "artificial latency before each auth answer")
		ttl         = flag.Duration("token-ttl", 8*time.Hour, "issued credential lifetime")
		redisAddr   = flag.String("redis-addr", "", "redis address for login throttling; if empty, REDIS_ADDR env or miniredis is used")
		maxAttempts = flag.Int("max-attempts", 5, "failed logins before an identifier is throttled")
		cooldown    = flag.Duration("cooldown", 15*time.Minute, "throttle window")
		metrics     = flag.Bool("metrics", false, "serve a probe Store's counters on /metrics")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")
		logFormat   = flag.String("log-format", "text", "text or json")
	)
	flag.Parse()

	logger := logging.New(*logLevel, *logFormat, os.Stderr)
	if err := run(logger, *addr, *latency, *ttl, *redisAddr, *maxAttempts, *cooldown, *metrics); err != nil {
		logger.Error("devserver stopped", logging.Error(err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr string, latency, ttl time.Duration, redisAddr string, maxAttempts int, cooldown time.Duration, withMetrics bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_ADDR")
	}
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		logger.Info("using miniredis", slog.String("addr", redisAddr))
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	defer client.Close()

	cfg := devserver.DefaultConfig()
	cfg.Latency = latency
	cfg.TokenTTL = ttl

	limiter := rate.New(client, rate.Config{
		Prefix:      "devserver",
		MaxAttempts: maxAttempts,
		Cooldown:    cooldown,
	})
	srv, err := devserver.New(cfg, devserver.WithLogger(logger), devserver.WithLimiter(limiter))
	if err != nil {
		return err
	}
	if err := srv.Seed(devserver.DefaultOperators()); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv)

	var probe *bootstrap.Runtime
	if withMetrics {
		probe, err = openProbe(addr)
		if err != nil {
			return err
		}
		defer probe.Close()
		mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(probe.Store).Handler())
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("devserver listening", slog.String("addr", addr), logging.Duration(latency))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if probe != nil {
		g.Go(func() error {
			signInProbe(gctx, logger, probe.Store)
			return nil
		})
	}

	return g.Wait()
}

func openProbe(addr string) (*bootstrap.Runtime, error) {
	cfg := goConsole.DefaultConfig()
	cfg.API.BaseURL = "http://" + addr
	cfg.Credential.Backend = goConsole.CredentialMemory
	cfg.Metrics.EnableLatencyHistograms = true
	return bootstrap.Open(cfg, os.Stderr)
}

func signInProbe(ctx context.Context, logger *slog.Logger, store *goConsole.Store) {
	admin := devserver.DefaultOperators()[0]
	// give ListenAndServe a moment to bind
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return
	}
	if _, err := store.Login(ctx, goConsole.Credentials{Identifier: admin.Email, Secret: admin.Secret}); err != nil {
		logger.Warn("metrics probe sign-in failed", logging.Error(err))
		return
	}
	logger.Info("metrics probe signed in", slog.String("operator", admin.Email))
}
