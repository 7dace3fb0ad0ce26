// Command radiusd runs the policy-server core: it loads a config file,
// builds the pool/match/reply/dialog component graph, and serves RADIUS
// Access-Request and Accounting-Request traffic over UDP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lion7/radiusd/internal/backend"
	"github.com/lion7/radiusd/internal/config"
	"github.com/lion7/radiusd/internal/dialogstore"
	"github.com/lion7/radiusd/internal/healthz"
	"github.com/lion7/radiusd/internal/pool"
	"github.com/lion7/radiusd/internal/raddict"
	"github.com/lion7/radiusd/internal/udpserver"
)

func main() {
	var (
		configPath = flag.String("config", "radiusd.yml", "path to the radiusd configuration file")
		debug      = flag.Bool("debug", false, "enable development-mode (human-readable) logging")
		healthAddr = flag.String("health-addr", ":8080", "address for the /healthz and /metrics HTTP listener")
		secret     = flag.String("secret", "", "shared RADIUS secret (overrides RADIUSD_SECRET)")
	)
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *healthAddr, resolveSecret(*secret), logger); err != nil {
		logger.Fatal("radiusd exited with error", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func resolveSecret(flagValue string) []byte {
	if flagValue != "" {
		return []byte(flagValue)
	}
	return []byte(os.Getenv("RADIUSD_SECRET"))
}

func run(configPath, healthAddr string, secret []byte, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pools := make(map[string]*pool.Runtime, len(cfg.AddressPools))
	for name, p := range cfg.AddressPools {
		runtime, err := pool.NewRuntime(name, p, logger)
		if err != nil {
			return fmt.Errorf("building pool %q: %w", name, err)
		}
		pools[name] = runtime
	}

	redisAddr := cfg.RedisStorage.Addr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	store := dialogstore.New(redisClient, cfg.RedisStorage, 24*time.Hour, logger)

	registry := prometheus.NewRegistry()
	metrics := healthz.NewMetrics(registry)

	be, err := backend.New(cfg, pools, store, metrics, logger)
	if err != nil {
		return fmt.Errorf("building backend: %w", err)
	}

	decode := raddict.NewDecoder(secret)
	encode := raddict.NewEncoder(secret)

	authServer, err := udpserver.Start(udpserver.Config{Host: "0.0.0.0", Port: 1812, MaxConcurrent: 64}, be, decode, encode, metrics, logger)
	if err != nil {
		return fmt.Errorf("starting auth listener: %w", err)
	}
	acctServer, err := udpserver.Start(udpserver.Config{Host: "0.0.0.0", Port: 1813, MaxConcurrent: 64}, be, decode, encode, metrics, logger)
	if err != nil {
		return fmt.Errorf("starting acct listener: %w", err)
	}

	health := healthz.NewServer(healthAddr, registry, logger)
	health.Start()
	health.SetReady(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutdown signal received")

	var g errgroup.Group
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g.Go(func() error { return authServer.Close(shutdownCtx) })
	g.Go(func() error { return acctServer.Close(shutdownCtx) })
	g.Go(func() error { return health.Close(shutdownCtx) })
	return g.Wait()
}
