// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires the assistant's components into an HTTP
// service.
//
// # Components
//
//	HTTP (gin + otelgin)
//	  │
//	  ▼
//	AssistantService ──► Classifier ──► knowledge.Client ──► knowledge API
//	  │        │
//	  │        └───────► Cache (category summaries)
//	  ▼
//	generation.Orchestrator ──► Selector ──► llm.Provider ──► Gemini / OpenAI
//	  │
//	  ▼
//	audit.Sink (redaction, JSON lines file, Postgres)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/mlab-assistant/pkg/config"
	"github.com/AleutianAI/mlab-assistant/services/generation"
	"github.com/AleutianAI/mlab-assistant/services/knowledge"
	"github.com/AleutianAI/mlab-assistant/services/llm"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/audit"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/composer"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/middleware"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/observability"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/routes"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/services"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the assembled assistant.
//
// # Thread Safety
//
// Safe for concurrent use after New returns. Run should be called once.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully
	// within the configured shutdown timeout. Resources are released on
	// return.
	Run(ctx context.Context) error

	// Router returns the configured gin engine.
	Router() *gin.Engine

	// Assistant returns the business logic behind the HTTP API.
	Assistant() *services.AssistantService

	// TrialOrder returns the models the next request would try, in order.
	TrialOrder(ctx context.Context) []string

	// Close releases sinks, the tracer and connections. Run calls it.
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// Option customizes New.
type Option func(*options)

type options struct {
	provider llm.Provider
	keys     generation.KeyProvider
	registry *prometheus.Registry
	logger   *slog.Logger
}

// WithProvider replaces the configured generation backend.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithKeys replaces the environment/secret-file key source.
func WithKeys(k generation.KeyProvider) Option {
	return func(o *options) { o.keys = k }
}

// WithRegistry registers metrics on reg and serves /metrics from it instead
// of the global Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	cfg       config.Config
	logger    *slog.Logger
	router    *gin.Engine
	assistant *services.AssistantService
	selector  *generation.Selector
	keys      generation.KeyProvider
	cache     *knowledge.Cache
	sink      audit.Sink

	tracerCleanup func(context.Context)
}

// New assembles every component from cfg.
//
// # Description
//
//  1. Initializes tracing (no-op without an OTLP endpoint)
//  2. Registers Prometheus metrics
//  3. Builds the knowledge client, classifier and cache
//  4. Builds the provider, selector and generation orchestrator
//  5. Opens audit sinks; a Postgres sink that cannot connect is skipped
//  6. Registers HTTP routes
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Invalid configuration, unknown backend, tracer or audit file
//     setup failure.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (Service, error) {
	if cfg == nil {
		return nil, errors.New("orchestrator: nil config")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s := &service{cfg: *cfg, logger: o.logger}

	cleanup, err := initTracer(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.Metrics
	metricsHandler := promhttp.Handler()
	if o.registry != nil {
		metrics = observability.NewMetrics(o.registry)
		metricsHandler = promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
	} else {
		metrics = observability.InitMetrics()
	}

	kc := cfg.Knowledge
	client := knowledge.NewClient(knowledge.ClientConfig{
		BaseURL:            kc.BaseURL,
		Timeout:            kc.Timeout,
		PageSize:           kc.PageSize,
		MaxPages:           kc.MaxPages,
		DefaultProgrammeID: kc.ProgrammeID,
	}, knowledge.WithObserver(metrics), knowledge.WithLogger(o.logger))

	classifierCfg := knowledge.DefaultClassifierConfig()
	classifierCfg.Scope = kc.Scope
	classifierCfg.ProgrammeID = kc.ProgrammeID
	classifierCfg.Concurrency = kc.Concurrency
	classifier := knowledge.NewClassifier(client, classifierCfg, o.logger)

	s.cache = knowledge.NewCache(client, knowledge.CacheConfig{
		Scope:       kc.Scope,
		ProgrammeID: kc.ProgrammeID,
	}, o.logger)

	provider := o.provider
	if provider == nil {
		provider, err = llm.NewProvider(cfg.LLM.Backend, llm.ProviderOptions{BaseURL: cfg.LLM.BaseURL})
		if err != nil {
			s.cleanup()
			return nil, err
		}
	}
	s.keys = o.keys
	if s.keys == nil {
		s.keys = llm.NewKeySource(cfg.LLM.SecretFile, cfg.LLM.APIKeyEnv...)
	}
	s.selector = generation.NewSelector(provider, cfg.LLM.PreferredModels, cfg.LLM.ProbeModels, o.logger)
	generator := generation.NewOrchestrator(provider, s.selector, s.keys, generation.Config{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BackoffStep: cfg.LLM.BackoffStep,
		BackoffCap:  cfg.LLM.BackoffCap,
		Budget:      cfg.LLM.Budget,
	}, generation.WithAttemptObserver(metrics), generation.WithLogger(o.logger))

	s.sink, err = openSinks(ctx, cfg.Audit, o.logger)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	s.assistant = services.NewAssistantService(services.AssistantDeps{
		Classifier: classifier,
		Snapshots:  s.cache,
		Composer: composer.New(composer.Config{
			Organization: cfg.Assistant.Organization,
			SupportEmail: cfg.Assistant.SupportEmail,
		}),
		Generator: generator,
		Audit:     s.sink,
		Metrics:   metrics,
		Logger:    o.logger,
	})

	gin.SetMode(cfg.Server.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	routes.SetupRoutes(s.router, routes.Deps{
		Assistant:   s.assistant,
		CacheLoaded: s.cache.Loaded,
		Limiter: middleware.NewClientLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Limits.RequestsPerSecond,
			Burst:             cfg.Limits.Burst,
		}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsHandler: metricsHandler,
	})

	o.logger.Info("Assistant initialized",
		"backend", provider.Name(),
		"knowledge_base_url", kc.BaseURL,
		"api_key_present", s.keys.Key() != "",
	)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	if s.cfg.Knowledge.WarmCache {
		go s.cache.Warm(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting assistant server", "port", s.cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down assistant server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Assistant() *services.AssistantService {
	return s.assistant
}

func (s *service) TrialOrder(ctx context.Context) []string {
	return s.selector.SelectTrialOrder(ctx, s.keys.Key())
}

func (s *service) Close() error {
	var err error
	if s.sink != nil {
		err = s.sink.Close()
		s.sink = nil
	}
	s.cleanup()
	return err
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// openSinks builds the configured audit sinks. A file sink failure is fatal;
// a database that cannot be reached is logged and skipped so that chat keeps
// working.
func openSinks(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (audit.Sink, error) {
	var sinks []audit.Sink
	if cfg.FilePath != "" {
		fs, err := audit.NewFileSink(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		sinks = append(sinks, fs)
	}
	if cfg.PostgresDSN != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ps, err := audit.OpenPostgresSink(pctx, cfg.PostgresDSN, cfg.Table)
		cancel()
		if err != nil {
			logger.Warn("Postgres audit sink unavailable, continuing without it", "error", err)
		} else {
			sinks = append(sinks, ps)
		}
	}
	if len(sinks) == 0 {
		return audit.NopSink{}, nil
	}
	var sink audit.Sink = audit.NewMultiSink(sinks...)
	if cfg.Redact {
		redactor, err := audit.NewRedactor()
		if err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("failed to load redaction patterns: %w", err)
		}
		sink = audit.NewRedactingSink(sink, redactor)
	}
	return sink, nil
}

// initTracer installs an OTLP gRPC exporter when an endpoint is configured.
// Without one the global no-op tracer provider stays in place.
func initTracer(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context), error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(cfg.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}, nil
}

func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

var _ Service = (*service)(nil)
