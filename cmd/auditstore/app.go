package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auditstore/internal/config"
	"auditstore/internal/database"
	"auditstore/internal/feed"
	"auditstore/internal/logging"
	"auditstore/internal/metrics"
	"auditstore/internal/otel"
	"auditstore/internal/repository"
	"auditstore/internal/repository/postgres"
	"auditstore/internal/service"
	"auditstore/internal/storage"
	"auditstore/internal/validator"
)

// app is the process-wide object graph. Each repository exists once per
// process; every command shares the same instances and identity maps.
type app struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	db     *sql.DB

	users   repository.UserRepository
	domains repository.ForbiddenDomainRepository
	history repository.HistoryRepository

	closers []func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, time.Local)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		a.serveMetrics(reg, cfg.MetricsAddr)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	opts := []postgres.Option{
		postgres.WithLogger(logger),
		postgres.WithMetrics(collector),
		postgres.WithCacheSize(cfg.Cache.Size),
	}
	a.domains = postgres.NewForbiddenDomainPostgres(db, opts...)
	a.history = postgres.NewHistoryPostgres(db, opts...)
	a.users = postgres.NewUserPostgres(db,
		validator.NewMapper(a.domains),
		service.NewHistoryService(a.history),
		opts...,
	)

	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	a.closers = append(a.closers, srv.Shutdown)
}

// feedSource reads the domain list from object storage when a bucket and
// object are configured, and over HTTP otherwise.
func (a *app) feedSource() (feed.Source, error) {
	c := a.cfg.Feed
	if c.Bucket == "" || c.Object == "" {
		return feed.NewHTTPSource(c.URL, c.Timeout), nil
	}
	store, err := storage.NewMinIO(a.cfg.MinIO, c.Bucket)
	if err != nil {
		return nil, fmt.Errorf("initialize object storage: %w", err)
	}
	return feed.NewObjectSource(store, c.Object), nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
