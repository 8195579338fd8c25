package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scttfrdmn/travelrouter/adapter/llm"
	"github.com/scttfrdmn/travelrouter/agents/flightanalytics"
	"github.com/scttfrdmn/travelrouter/agents/flightstatus"
	"github.com/scttfrdmn/travelrouter/classifier"
	"github.com/scttfrdmn/travelrouter/config"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/memory"
	"github.com/scttfrdmn/travelrouter/middleware"
	"github.com/scttfrdmn/travelrouter/observability"
	"github.com/scttfrdmn/travelrouter/router"
	"github.com/scttfrdmn/travelrouter/session"
)

// app holds the wired assistant and everything that must be closed with it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	recorder  *observability.Recorder
	assistant *session.Assistant
	sessions  *session.Manager

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.initTelemetry(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	store, err := a.openMemory()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	status, err := a.openStatus()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	analytics, err := a.openAnalytics(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	rtr, err := router.New(router.Config{
		Status:              status,
		Analytics:           analytics,
		CollaboratorTimeout: cfg.Router.CollaboratorTimeout,
		Breaker: middleware.CircuitBreakerConfig{
			FailureThreshold: cfg.Router.FailureThreshold,
			RecoveryTimeout:  cfg.Router.RecoveryTimeout,
		},
		Recorder: a.recorder,
		Logger:   logger,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating router: %w", err)
	}

	a.sessions = session.NewManager(store,
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithManagerLogger(logger),
	)

	a.assistant, err = session.NewAssistant(session.Config{
		Classifier: a.newClassifier(ctx),
		Router:     rtr,
		Sessions:   a.sessions,
		Recorder:   a.recorder,
		Logger:     logger,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) initTelemetry() error {
	tel := a.cfg.Telemetry
	if tel.OTLPEndpoint != "" || tel.ConsoleTraces {
		if _, err := observability.InitTracing(tel.ServiceName, tel.OTLPEndpoint, tel.ConsoleTraces); err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		a.closers = append(a.closers, observability.Shutdown)
	}
	if tel.Metrics {
		if _, err := observability.InitMetrics(tel.ServiceName); err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		a.closers = append(a.closers, observability.ShutdownMetrics)
	}

	rec, err := observability.NewRecorder(a.logger)
	if err != nil {
		return fmt.Errorf("creating recorder: %w", err)
	}
	a.recorder = rec
	return nil
}

// newClassifier builds the LLM-first classifier. A model that cannot be
// created leaves the assistant on rules alone.
func (a *app) newClassifier(ctx context.Context) *classifier.QueryClassifier {
	cfg := classifier.Config{
		Rules:    classifier.NewRuleBasedClassifier(),
		Window:   a.cfg.Classifier.Window,
		Recorder: a.recorder,
		Logger:   a.logger,
	}
	if !a.cfg.Classifier.UseLLM {
		return classifier.NewQueryClassifier(cfg)
	}

	model, err := llm.New(ctx, llm.Config{
		Provider: a.cfg.LLM.Provider,
		Model:    a.cfg.LLM.Model,
		APIKey:   a.cfg.LLM.APIKey,
		BaseURL:  a.cfg.LLM.BaseURL,
		Region:   a.cfg.LLM.Region,
		Profile:  a.cfg.LLM.Profile,
	})
	if err != nil {
		a.logger.Warn("LLM unavailable, classifying with rules only",
			"provider", a.cfg.LLM.Provider, "error", err)
		return classifier.NewQueryClassifier(cfg)
	}

	a.closeOnShutdown(model)

	cfg.LLM = classifier.NewLLMClassifier(model, classifier.LLMConfig{
		Timeout:   a.cfg.Classifier.Timeout,
		RateLimit: a.cfg.Classifier.RateLimit,
		Burst:     a.cfg.Classifier.Burst,
	}, a.logger)
	a.logger.Info("LLM classifier enabled", "provider", a.cfg.LLM.Provider, "model", model.Model())
	return classifier.NewQueryClassifier(cfg)
}

func (a *app) openMemory() (memory.Store, error) {
	mc := a.cfg.Memory
	switch mc.Backend {
	case "redis":
		store, err := memory.NewRedisStore(mc.RedisURL, mc.TTL, mc.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("opening redis memory: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case "sqlite":
		if err := ensureDir(mc.SQLitePath); err != nil {
			return nil, err
		}
		store, err := memory.NewSQLiteStore(mc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite memory: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return memory.NewInMemoryStore(mc.MaxTurns), nil
	}
}

func (a *app) openStatus() (inquiry.FlightStatusProvider, error) {
	sc := a.cfg.Status
	var provider inquiry.FlightStatusProvider
	switch sc.Provider {
	case "aviationstack":
		retry := middleware.DefaultRetryConfig()
		if sc.RetryAttempts > 0 {
			retry.MaxAttempts = sc.RetryAttempts
		}
		provider = flightstatus.NewAviationStackClient(flightstatus.Config{
			APIKey:  sc.APIKey,
			BaseURL: sc.BaseURL,
			Retry:   retry,
			Logger:  a.logger,
		})
	case "static":
		a.logger.Info("using sample flight status data; set AVIATIONSTACK_API_KEY for live lookups")
		return flightstatus.NewStaticProvider(flightstatus.SampleRecords()...), nil
	default:
		return nil, fmt.Errorf("unknown status provider %q", sc.Provider)
	}
	return flightstatus.NewCachedProvider(provider, sc.CacheSize, sc.CacheTTL), nil
}

func (a *app) openAnalytics(ctx context.Context) (inquiry.FlightAnalyticsProvider, error) {
	ac := a.cfg.Analytics
	if err := ensureDir(ac.DatabasePath); err != nil {
		return nil, err
	}
	db, err := flightanalytics.NewSQLiteProvider(ac.DatabasePath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening flight database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	if ac.Seed {
		n, err := db.Seed(ctx)
		if err != nil {
			return nil, fmt.Errorf("seeding flight database: %w", err)
		}
		if n > 0 {
			a.logger.Info("seeded flight database", "path", ac.DatabasePath, "flights", n)
		}
	}

	cached, err := flightanalytics.NewCachedProvider(db, flightanalytics.CacheConfig{TTL: ac.CacheTTL})
	if err != nil {
		return nil, fmt.Errorf("creating analytics cache: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { cached.Close(); return nil })
	return cached, nil
}

// closeOnShutdown registers v with Close when it holds a client connection.
func (a *app) closeOnShutdown(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
