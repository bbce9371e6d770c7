package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/batchkv/go-batchkv/client"
	"github.com/batchkv/go-batchkv/config"
	"github.com/batchkv/go-batchkv/internal/logging"
	"github.com/batchkv/go-batchkv/metrics"
)

// env is what every command needs after flags are parsed.
type env struct {
	cfg     *config.Config
	client  client.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	server  *http.Server
}

func setup() (*env, error) {
	log := logging.New(logLevel, os.Stderr)
	slog.SetDefault(log)

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	if clientKind != "" {
		cfg.Client = clientKind
	}

	ccfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	ccfg.Logger = log
	ccfg.Metrics = m

	e := &env{cfg: cfg, client: ccfg, log: log, metrics: m}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		e.server = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", "addr", metricsAddr, "err", err)
			}
		}()
		log.Info("serving metrics", "addr", metricsAddr)
	}
	return e, nil
}

func (e *env) close(ctx context.Context) {
	if e.server != nil {
		_ = e.server.Shutdown(ctx)
	}
}
