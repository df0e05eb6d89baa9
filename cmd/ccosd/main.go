// Command ccosd wires the capability marketplace, discovery engine,
// plan orchestrator, and administrative HTTP surface into a single
// runnable process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ccos-project/ccos-core/api"
	"github.com/ccos-project/ccos-core/arbiter"
	"github.com/ccos-project/ccos-core/ccosconfig"
	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/orchestrator"
	"github.com/ccos-project/ccos-core/session"
)

func main() {
	cfg, err := ccosconfig.New()
	if err != nil {
		ccoslog.New("ccosd").Error("failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger := ccoslog.New(cfg.ServiceName, ccoslog.WithLevel(cfg.LogLevel), ccoslog.WithFormat(cfg.LogFormat))

	// No span processor/exporter is registered: this process has no
	// deployment target to export traces to, but every suspension point
	// still creates real spans so a future exporter can be added without
	// touching the call sites.
	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	registry := executor.NewDefaultRegistry(nil, nil)
	pool := session.NewPool(cfg.AuthTokenEnvVars, logger)
	auditChain := chain.New(prometheus.DefaultRegisterer)
	emitter := chain.NewEmitter(auditChain, logger)

	mk := marketplace.New(registry, pool, emitter, logger, marketplace.WithNamespace(cfg.Namespace))
	engine := discovery.New(mk, logger, discovery.WithEmitter(emitter))

	var orch *orchestrator.Orchestrator
	// CCOS_ARBITER_ALIAS selects a provider alias of the shape
	// "openai.<alias>", e.g. "openai.groq" or "openai.ollama".
	if alias := os.Getenv("CCOS_ARBITER_ALIAS"); alias != "" {
		arbiterCfg := arbiter.NewConfig(arbiter.WithProviderAlias(alias))
		httpArbiter := arbiter.NewHTTPArbiter(arbiterCfg, logger)
		orch = orchestrator.New(mk, engine, logger, orchestrator.WithArbiter(httpArbiter))
	} else if os.Getenv("OPENAI_API_KEY") != "" {
		arbiterCfg := arbiter.NewConfig()
		httpArbiter := arbiter.NewHTTPArbiter(arbiterCfg, logger)
		orch = orchestrator.New(mk, engine, logger, orchestrator.WithArbiter(httpArbiter))
	} else {
		logger.Warn("no arbiter provider configured, orchestration will fall back to static plan skeletons", nil)
		orch = orchestrator.New(mk, engine, logger)
	}

	server := api.NewServer(mk, engine, orch, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ccosd listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
