package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/walrus-tools/sites-gateway/internal/decompress"
	"github.com/walrus-tools/sites-gateway/internal/failover"
	"github.com/walrus-tools/sites-gateway/internal/nameresolver"
	"github.com/walrus-tools/sites-gateway/internal/resourcefetcher"
	"github.com/walrus-tools/sites-gateway/internal/router"
	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
	"github.com/walrus-tools/sites-gateway/internal/sitecache"
	"github.com/walrus-tools/sites-gateway/internal/urlfetcher"
	"github.com/walrus-tools/sites-gateway/pkg/audit"
	"github.com/walrus-tools/sites-gateway/pkg/cache"
	"github.com/walrus-tools/sites-gateway/pkg/config"
	"github.com/walrus-tools/sites-gateway/pkg/logger"
	"github.com/walrus-tools/sites-gateway/pkg/metrics"
)

func main() {
	cfg := config.MustLoad()

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	m := metrics.Init(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		logger.Log.Error("failed to build fetcher", "error", err)
		os.Exit(1)
	}

	negCache, err := buildNegativeCache(cfg)
	if err != nil {
		logger.Log.Warn("failed to build negative-result cache, continuing without it", "error", err)
	}

	auditLogger, err := audit.New(audit.DefaultConfig())
	if err != nil {
		logger.Log.Warn("failed to build audit logger, continuing without it", "error", err)
		auditLogger = &audit.NoopLogger{}
	}

	if cfg.Metrics.Enabled {
		go func() {
			logger.Log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				logger.Log.Error("metrics server failed", "error", err)
			}
		}()
	}

	handler := NewHandler(fetcher, m, negCache)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	if err := run(cfg, server, auditLogger); err != nil {
		logger.Log.Error("portal exited with error", "error", err)
		os.Exit(1)
	}
}

// buildFetcher wires the gateway core (chain RPC, name resolution,
// resource fetching, routing, aggregator retrieval) from validated
// configuration. The core itself carries no cache — negative-result
// memoization is a collaborator concern built separately in
// buildNegativeCache and wired around the core by the Handler.
func buildFetcher(cfg *config.Config) (*urlfetcher.Fetcher, error) {
	rpcRetryDelay := time.Duration(cfg.Chain.RetryDelayMs) * time.Millisecond
	rpcCallTimeout := time.Duration(cfg.Chain.RPCRequestTimeoutMs) * time.Millisecond

	rpcList := failover.NewList(toFailoverURLs(cfg.Chain.RPCURLs))
	rpc := rpcselector.New(rpcList, rpcRetryDelay, rpcCallTimeout, &http.Client{Timeout: rpcCallTimeout})

	resolver := nameresolver.New(cfg.Chain.StaticNames, cfg.Chain.B36DomainResolution, rpc)
	resources := resourcefetcher.New(rpc, cfg.Chain.SitePackage, cfg.Chain.MaxRedirectDepth)
	rt := router.New(rpc, cfg.Chain.SitePackage)

	aggList := failover.NewList(toFailoverURLs(cfg.Aggregator.URLs))
	dec := decompress.New(cfg.Aggregator.MaxDecompressionBytes, decompress.DefaultChunkSize)

	return urlfetcher.New(resolver, resources, rt, aggList, rpcRetryDelay, &http.Client{}, dec), nil
}

// buildNegativeCache builds the Handler-level negative-result cache, a
// collaborator deliberately kept outside the core Fetcher (see
// buildFetcher). Returns a nil *sitecache.Cache, not an error, when
// caching is disabled in configuration.
func buildNegativeCache(cfg *config.Config) (*sitecache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	backend, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("building negative-result cache: %w", err)
	}
	return sitecache.New(backend, cfg.Cache.DefaultTTL), nil
}

// toFailoverURLs adapts the config layer's Endpoint list to failover.URL.
func toFailoverURLs(eps []config.Endpoint) []failover.URL {
	urls := make([]failover.URL, len(eps))
	for i, e := range eps {
		urls[i] = failover.URL{Addr: e.URL, Retries: e.Retries, Metric: e.Metric}
	}
	return urls
}

// run starts server and blocks until a termination signal is received,
// then drains in-flight requests within the configured shutdown window.
func run(cfg *config.Config, server *http.Server, auditLogger audit.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Log.Info("starting portal", "addr", server.Addr, "environment", cfg.App.Environment, "version", cfg.App.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logStartAudit(auditLogger, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Log.Info("received shutdown signal", "signal", sig)
	}

	logStopAudit(auditLogger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Warn("forcing server close", "error", err)
		return server.Close()
	}

	logger.Log.Info("portal stopped gracefully")
	return auditLogger.Close()
}

func logStartAudit(auditLogger audit.Logger, cfg *config.Config) {
	entry := audit.NewEntry().
		Service(cfg.App.Name).
		Method("portal.Start").
		Action(audit.ActionCreate).
		Outcome(audit.OutcomeSuccess).
		Meta("port", cfg.HTTP.Port).
		Meta("version", cfg.App.Version).
		Meta("environment", cfg.App.Environment).
		Build()
	if err := auditLogger.Log(context.Background(), entry); err != nil {
		logger.Log.Warn("failed to log audit entry", "error", err)
	}
}

func logStopAudit(auditLogger audit.Logger) {
	entry := audit.NewEntry().
		Method("portal.Shutdown").
		Action(audit.ActionUpdate).
		Outcome(audit.OutcomeSuccess).
		Meta("reason", "signal").
		Build()
	if err := auditLogger.Log(context.Background(), entry); err != nil {
		logger.Log.Warn("failed to log audit entry", "error", err)
	}
}
