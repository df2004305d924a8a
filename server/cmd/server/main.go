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

	"github.com/surgecast/surgecast/server/internal/alerts"
	"github.com/surgecast/surgecast/server/internal/api"
	"github.com/surgecast/surgecast/server/internal/auth"
	"github.com/surgecast/surgecast/server/internal/compute"
	"github.com/surgecast/surgecast/server/internal/config"
	"github.com/surgecast/surgecast/server/internal/db"
	"github.com/surgecast/surgecast/server/internal/events"
	"github.com/surgecast/surgecast/server/internal/features"
	"github.com/surgecast/surgecast/server/internal/forecast"
	"github.com/surgecast/surgecast/server/internal/hospital"
	"github.com/surgecast/surgecast/server/internal/ledger"
	"github.com/surgecast/surgecast/server/internal/metrics"
	"github.com/surgecast/surgecast/server/internal/model"
	"github.com/surgecast/surgecast/server/internal/scheduler"
	"github.com/surgecast/surgecast/server/internal/signals"
	"github.com/surgecast/surgecast/server/internal/store"
	"github.com/surgecast/surgecast/server/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("surgecast-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Driver,
		"signals", cfg.Server.Signals.Driver,
		"model_endpoint", cfg.Server.Model.Endpoint,
		"forecast_ttl", cfg.Server.Forecast.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, cfg, level); err != nil {
		slog.Error("surgecast-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar) error {
	sc := cfg.Server
	m := metrics.New()

	// Storage: hospital state and briefing history.
	hospitals, history, closeDB, err := openStorage(ctx, sc.Storage)
	if err != nil {
		return err
	}
	defer closeDB()

	// Environmental signals.
	sigs, closeSignals, err := openSignals(ctx, sc.Signals)
	if err != nil {
		return err
	}
	defer closeSignals()

	// Forecast pipeline.
	classifier, err := compute.NewClassifier(compute.Thresholds{
		Elevated: sc.Risk.Elevated,
		High:     sc.Risk.High,
		Critical: sc.Risk.Critical,
	})
	if err != nil {
		return fmt.Errorf("risk thresholds: %w", err)
	}
	planner := compute.NewPlanner(sc.Planning.PatientsPerStaff, sc.Planning.SupplySurgeThreshold)
	pipeline := forecast.New(features.New(hospitals, sigs), newPredictor(sc.Model, m), classifier, planner)

	// Forecast cache with background eviction.
	cache := store.New(pipeline, history, m, store.Config{
		MaxStale:       sc.Forecast.MaxStale,
		ComputeTimeout: sc.Forecast.ComputeTimeout,
	})
	go cache.Run(ctx)

	// Alerts engine: evaluates rules on every published briefing.
	alertEngine := alerts.New(sc.Alerts, m)
	cache.OnPublish(alertEngine.Evaluate)

	// WebSocket hub: streams published briefings and the admin status view.
	status := api.NewStatus(cache, alertEngine, sc.Forecast.TTL)
	hub := ws.New(status.Build, sc.Stream.Interval)
	cache.OnPublish(hub.Publish)
	go hub.Run(ctx)

	// Briefing events on Kafka.
	if sc.Events.Enabled() {
		pub := events.New(sc.Events, m)
		cache.OnPublish(pub.Ship)
		go pub.Run(ctx)
		defer func() {
			if err := pub.Close(); err != nil {
				slog.Warn("events: close failed", "err", err)
			}
		}()
		slog.Info("events: publishing briefings", "brokers", sc.Events.Brokers, "topic", sc.Events.Topic)
	}

	// Periodic recomputation of every known hospital.
	sched := scheduler.New(hospitals, cache, sc.Scheduler.Interval, sc.Scheduler.Workers, sc.Location())
	go sched.Run(ctx)

	// Hot reload: log level and alert rules.
	go func() {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			level.Set(next.Server.SlogLevel())
			alertEngine.SetRules(next.Server.Alerts)
			slog.Info("config: applied reload",
				"log_level", next.Server.LogLevel,
				"alert_rules", len(next.Server.Alerts.Rules))
		})
		if err != nil {
			slog.Warn("config: hot reload disabled", "err", err)
		}
	}()

	resolver, err := newResolver(sc.Auth)
	if err != nil {
		return err
	}

	handler := api.New(api.Deps{
		Briefings: cache,
		Hospitals: hospitals,
		Signals:   sigs,
		Ledger:    history,
		Deriver:   signals.NewDeriver(sc.Signals.Festivals),
		Status:    status,
		Resolver:  resolver,
		Metrics:   m,
		Stream:    hub,
		TTL:       sc.Forecast.TTL,
		Location:  sc.Location(),
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("surgecast-server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// openStorage returns the hospital repository and briefing ledger for the
// configured driver, plus a close function.
func openStorage(ctx context.Context, cfg config.StorageConfig) (hospital.Repository, ledger.Ledger, func(), error) {
	if cfg.Driver != "postgres" {
		slog.Info("storage: using in-memory hospital state and history")
		return hospital.NewMemory(), ledger.NewMemory(), func() {}, nil
	}

	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage: %w", err)
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			slog.Warn("storage: close failed", "err", err)
		}
	}
	if cfg.Migrate {
		if err := db.Migrate(conn); err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("storage: %w", err)
		}
	}
	return hospital.NewPostgres(conn), ledger.NewPostgres(conn), closeFn, nil
}

// openSignals returns the signal store for the configured driver.
func openSignals(ctx context.Context, cfg config.SignalsConfig) (signals.Store, func(), error) {
	if cfg.Driver != "redis" {
		slog.Info("signals: using in-memory store")
		return signals.NewMemory(), func() {}, nil
	}
	r, err := signals.NewRedis(ctx, signals.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword(),
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("signals: %w", err)
	}
	slog.Info("signals: using redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return r, func() {
		if err := r.Close(); err != nil {
			slog.Warn("signals: close failed", "err", err)
		}
	}, nil
}

// newPredictor returns the HTTP model client, or the heuristic when no
// endpoint is configured.
func newPredictor(cfg config.ModelConfig, m *metrics.Metrics) model.Predictor {
	if cfg.Endpoint == "" {
		slog.Warn("model: no endpoint configured, using heuristic", "version", model.HeuristicVersion)
		return model.Heuristic{}
	}
	c := model.NewHTTPClient(model.ClientConfig{
		Endpoint:     cfg.Endpoint,
		Version:      cfg.Version,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RateLimit,
		Burst:        cfg.Burst,
	})
	c.OnRetry(func(attempt int, err error) {
		m.ModelRetry()
		slog.Warn("model: retrying", "attempt", attempt, "err", err)
	})
	return c
}

// newResolver builds the caller resolver for the configured auth mode.
func newResolver(cfg config.AuthConfig) (auth.Resolver, error) {
	switch cfg.Mode {
	case "header":
		slog.Warn("auth: trusting identity headers; deploy behind an authenticating gateway",
			"role_header", cfg.RoleHeader, "hospital_header", cfg.HospitalHeader)
		return auth.HeaderResolver{RoleHeader: cfg.RoleHeader, HospitalHeader: cfg.HospitalHeader}, nil
	case "none":
		slog.Warn("auth: disabled, every caller is admin")
		return auth.Anonymous{}, nil
	default:
		r, err := auth.NewJWTResolver(cfg.Secret(), cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		return r, nil
	}
}
