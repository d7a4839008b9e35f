package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dmitrymomot/certward/core/acme"
	"github.com/dmitrymomot/certward/core/certcache"
	"github.com/dmitrymomot/certward/core/certstore"
	"github.com/dmitrymomot/certward/core/challenge"
	"github.com/dmitrymomot/certward/core/config"
	"github.com/dmitrymomot/certward/core/logger"
	"github.com/dmitrymomot/certward/core/middleware"
	"github.com/dmitrymomot/certward/core/renewal"
	"github.com/dmitrymomot/certward/core/server"
	"github.com/dmitrymomot/certward/core/sni"
	"github.com/dmitrymomot/certward/core/telemetry"
	redisstore "github.com/dmitrymomot/certward/integration/certstore/redis"
	s3store "github.com/dmitrymomot/certward/integration/certstore/s3"
	pgdomains "github.com/dmitrymomot/certward/integration/domainstore/pg"
	"github.com/dmitrymomot/certward/pkg/selfsigned"
)

type appConfig struct {
	Environment  string   `env:"ENVIRONMENT" envDefault:"production"`
	Domains      []string `env:"DOMAINS" envSeparator:","`
	CertDir      string   `env:"CERT_DIR" envDefault:"certs"`
	BootstrapDir string   `env:"BOOTSTRAP_DIR" envDefault:"certs/bootstrap"`

	// Backend selects the persistent certificate store: fs, redis, or s3.
	Backend string `env:"CERT_STORE_BACKEND" envDefault:"fs"`

	// TenantDomains enables the Postgres tenant domain source when set.
	TenantDomains bool `env:"TENANT_DOMAINS_ENABLED" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("certward exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var acmeCfg acme.Config
	if err := config.Load(&acmeCfg); err != nil {
		return fmt.Errorf("load acme config: %w", err)
	}
	var serverCfg server.Config
	if err := config.Load(&serverCfg); err != nil {
		return fmt.Errorf("load server config: %w", err)
	}

	loggerOpts := []logger.Option{logger.WithProduction("certward")}
	if cfg.Environment == "development" {
		loggerOpts = []logger.Option{logger.WithDevelopment("certward")}
	}
	log := logger.New(loggerOpts...)
	slog.SetDefault(log)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	cache := certcache.New(
		certcache.WithFallback(store),
		certcache.WithLogger(log),
	)
	defer cache.Close()

	challenges := challenge.NewStore()
	defer challenges.Close()

	sink := telemetry.NewLogSink(log)

	client, err := acme.New(acmeCfg, challenges,
		acme.WithLogger(log),
		acme.WithSink(sink),
	)
	if err != nil {
		return fmt.Errorf("build acme client: %w", err)
	}

	bootstrap := selfsigned.New(cfg.BootstrapDir)
	dispatcher := sni.New(cache, bootstrap, cfg.Domains, sni.WithLogger(log))

	renewalOpts := []renewal.Option{
		renewal.WithRegistrar(dispatcher),
		renewal.WithLogger(log),
		renewal.WithSink(sink),
	}
	if cfg.TenantDomains {
		var pgCfg pgdomains.Config
		if err := config.Load(&pgCfg); err != nil {
			return fmt.Errorf("load tenant domain config: %w", err)
		}
		source, err := pgdomains.New(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect tenant domain source: %w", err)
		}
		renewalOpts = append(renewalOpts, renewal.WithDomainSource(source))
	}

	orchestrator, err := renewal.New(client, store, cache, bootstrap, cfg.Domains, renewalOpts...)
	if err != nil {
		return fmt.Errorf("build renewal orchestrator: %w", err)
	}
	go func() {
		if err := orchestrator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("renewal orchestrator stopped", slog.Any("error", err))
		}
	}()

	srv, err := server.New(serverCfg, challenges.Handler(), dispatcher, log)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	log.InfoContext(ctx, "certward starting",
		slog.String("backend", cfg.Backend),
		slog.Int("domains", len(cfg.Domains)))

	handler := middleware.Chain(appHandler(orchestrator),
		middleware.RequestID,
		middleware.Logging(log),
		middleware.SecurityHeaders,
	)

	if err := srv.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStore selects the persistent certificate store backend.
func buildStore(ctx context.Context, cfg appConfig) (certstore.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "fs", "":
		store, err := certstore.NewFS(cfg.CertDir)
		if err != nil {
			return nil, fmt.Errorf("init fs certificate store: %w", err)
		}
		return store, nil
	case "redis":
		var redisCfg redisstore.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, fmt.Errorf("load redis config: %w", err)
		}
		store, err := redisstore.New(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("init redis certificate store: %w", err)
		}
		return store, nil
	case "s3":
		var s3Cfg s3store.Config
		if err := config.Load(&s3Cfg); err != nil {
			return nil, fmt.Errorf("load s3 config: %w", err)
		}
		store, err := s3store.New(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 certificate store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown certificate store backend: %s", cfg.Backend)
	}
}

// appHandler exposes the domain status endpoint served over HTTPS.
func appHandler(orchestrator *renewal.Orchestrator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status/{domain}", func(w http.ResponseWriter, r *http.Request) {
		status, err := orchestrator.Status(r.PathValue("domain"))
		if err != nil {
			http.Error(w, "unknown domain", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "domain: %s\nstate: %s\nexpires_at: %s\n",
			status.Domain, status.State, status.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	})
	return mux
}
