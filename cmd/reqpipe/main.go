// Package main is the entry point for the request pipeline service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reqpipe/reqpipe/internal/auth"
	"github.com/reqpipe/reqpipe/internal/authz"
	"github.com/reqpipe/reqpipe/internal/cache"
	"github.com/reqpipe/reqpipe/internal/circuitbreaker"
	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
	"github.com/reqpipe/reqpipe/internal/pipeline"
	"github.com/reqpipe/reqpipe/internal/retry"
	"github.com/reqpipe/reqpipe/internal/server"
	"github.com/reqpipe/reqpipe/internal/upstream"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// jwksRefreshInterval is how often a remote key set is refetched.
const jwksRefreshInterval = 15 * time.Minute

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runPipeline(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("REQPIPE_CONFIG_PATH", "configs/reqpipe.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("REQPIPE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("REQPIPE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("reqpipe version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// fatal logs the error and exits with a non-zero status.
func fatal(logger observability.Logger, msg string, err error) {
	logger.Error(msg, observability.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.PipelineConfig {
	logger.Info("starting reqpipe",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatal(logger, "failed to load configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	logger.Info("configuration loaded",
		observability.String("addr", cfg.Server.Addr),
		observability.String("upstream", cfg.Upstream.Name),
		observability.String("cache", string(cfg.Cache.Type)),
		observability.Int("authz_rules", len(cfg.Authz.Rules)),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server        *server.Server
	engine        *authz.Engine
	store         cache.Store
	policyWatcher *config.FileWatcher
	config        *config.PipelineConfig
}

// initApplication initializes all application components.
func initApplication(cfg *config.PipelineConfig, logger observability.Logger) *application {
	verifier := buildVerifier(cfg, logger)
	engine, policyWatcher := buildAuthz(cfg, logger)

	store, err := cache.NewStore(&cfg.Cache, logger)
	if err != nil {
		fatal(logger, "failed to create cache store", err)
	}
	responseCache := cache.NewResponseCache(store, cfg.Cache.TTL.Duration(),
		cache.WithCacheLogger(logger))

	breakers := circuitbreaker.NewRegistry(circuitbreaker.FromConfig(cfg.CircuitBreaker), logger)
	executor := retry.NewExecutor(retry.FromConfig(cfg.Retry), breakers,
		retry.WithExecutorLogger(logger))

	client, err := upstream.NewHTTPClient(cfg.Upstream,
		upstream.WithHTTPClientLogger(logger))
	if err != nil {
		fatal(logger, "failed to create upstream client", err)
	}

	stages := []pipeline.Stage{
		pipeline.NewAuthenticateStage(verifier),
		pipeline.NewAuthorizeStage(engine),
		pipeline.NewFetchStage(responseCache, executor, client),
	}
	pipe := pipeline.NewExecutor(stages, pipeline.WithLogger(logger))

	srv := server.NewServer(&cfg.Server, pipe, server.WithServerLogger(logger))

	return &application{
		server:        srv,
		engine:        engine,
		store:         store,
		policyWatcher: policyWatcher,
		config:        cfg,
	}
}

// buildVerifier builds the credential verifier from the auth configuration.
// A JWT verifier and an API key verifier are chained when both are
// configured; the API key verifier runs when JWT verification fails.
func buildVerifier(cfg *config.PipelineConfig, logger observability.Logger) auth.Verifier {
	var jwtVerifier auth.Verifier

	switch {
	case cfg.Auth.JWKSFile != "":
		resolver, err := auth.NewFileKeyResolver(cfg.Auth.JWKSFile)
		if err != nil {
			fatal(logger, "failed to load JWKS file", err)
		}
		jwtVerifier = newJWTVerifier(resolver, cfg, logger)
	case cfg.Auth.JWKSURL != "":
		resolver, err := auth.NewRemoteKeyResolver(context.Background(), cfg.Auth.JWKSURL, jwksRefreshInterval)
		if err != nil {
			fatal(logger, "failed to fetch remote JWKS", err)
		}
		jwtVerifier = newJWTVerifier(resolver, cfg, logger)
	}

	var apiKeyVerifier auth.Verifier
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyVerifier = auth.NewAPIKeyVerifier(cfg.Auth.APIKeys, logger)
	}

	switch {
	case jwtVerifier != nil && apiKeyVerifier != nil:
		return auth.NewChainVerifier(jwtVerifier, apiKeyVerifier)
	case jwtVerifier != nil:
		return jwtVerifier
	case apiKeyVerifier != nil:
		return apiKeyVerifier
	default:
		fatal(logger, "no credential verifier configured",
			fmt.Errorf("auth requires jwksFile, jwksUrl, or apiKeys"))
		return nil
	}
}

func newJWTVerifier(resolver auth.KeyResolver, cfg *config.PipelineConfig, logger observability.Logger) auth.Verifier {
	verifier, err := auth.NewJWTVerifier(resolver,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithRolesClaim(cfg.Auth.RolesClaim),
		auth.WithClockSkew(cfg.Auth.ClockSkew.Duration()),
		auth.WithVerifierLogger(logger),
	)
	if err != nil {
		fatal(logger, "failed to create JWT verifier", err)
	}
	return verifier
}

// buildAuthz builds the authorization engine and, when the rules come
// from a policy file, a watcher that hot-reloads them on change.
func buildAuthz(cfg *config.PipelineConfig, logger observability.Logger) (*authz.Engine, *config.FileWatcher) {
	if cfg.Authz.PolicyFile == "" {
		rules, err := authz.FromConfig(cfg.Authz.Rules)
		if err != nil {
			fatal(logger, "invalid authorization rules", err)
		}
		return authz.NewEngine(rules, authz.WithEngineLogger(logger)), nil
	}

	source := authz.NewFileSource(cfg.Authz.PolicyFile)
	rules, err := source.Load()
	if err != nil {
		fatal(logger, "failed to load policy file", err)
	}
	engine := authz.NewEngine(rules, authz.WithEngineLogger(logger))

	watcher, err := config.NewFileWatcher(cfg.Authz.PolicyFile, func(path string) {
		newRules, loadErr := source.Load()
		if loadErr != nil {
			logger.Error("failed to reload policy file",
				observability.String("path", path),
				observability.Error(loadErr))
			return
		}
		engine.Reload(newRules)
		logger.Info("policy reloaded",
			observability.String("path", path),
			observability.Int("rules", len(newRules)))
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("failed to create policy watcher", observability.Error(err))
		return engine, nil
	}

	return engine, watcher
}

// runPipeline runs the service and handles shutdown.
func runPipeline(app *application, logger observability.Logger) {
	if app.policyWatcher != nil {
		if err := app.policyWatcher.Start(context.Background()); err != nil {
			logger.Warn("failed to start policy watcher", observability.Error(err))
		}
	}

	metricsServer := startMetricsServerIfEnabled(app, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	waitForShutdown(app, metricsServer, errCh, logger)
}

// startMetricsServerIfEnabled starts the Prometheus metrics server when
// a metrics address is configured.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) *http.Server {
	addr := app.config.Server.MetricsAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	logger.Info("starting metrics server", observability.String("addr", addr))
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", observability.Error(err))
		}
	}()

	return metricsServer
}

// waitForShutdown waits for a shutdown signal or a listener failure and
// performs graceful shutdown.
func waitForShutdown(
	app *application,
	metricsServer *http.Server,
	errCh chan error,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if app.policyWatcher != nil {
		_ = app.policyWatcher.Stop()
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", observability.Error(err))
		}
	}

	if err := app.store.Close(); err != nil {
		logger.Error("failed to close cache store", observability.Error(err))
	}

	logger.Info("reqpipe stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
