package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/flow/broker"
	"github.com/tailored-agentic-units/flow/config"
	"github.com/tailored-agentic-units/flow/observability"
	"github.com/tailored-agentic-units/flow/store"
	"github.com/tailored-agentic-units/flow/workflow"
)

// App wires together a workflow.Store, a workflow.Broker, and a
// workflow.Engine from config, then runs the trigger ticker, broker
// subscriptions, and a metrics server, grounded on
// C360Studio-semspec's cmd/semspec/app.go App struct that assembles
// NATS/storage/tool components behind a Start method.
type App struct {
	cfg *config.EngineConfig

	store    workflow.Store
	brk      workflow.Broker
	observer *observability.PrometheusObserver
	engine   *workflow.Engine
}

// NewApp builds an App's collaborators from cfg without starting
// anything.
func NewApp(cfg *config.EngineConfig) (*App, error) {
	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	brk, err := buildBroker(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("build broker: %w", err)
	}

	obs := observability.NewPrometheusObserver(nil)
	engine := workflow.NewEngine(st, brk,
		workflow.WithObserver(obs),
		workflow.WithPartitions(cfg.Partitions),
	)

	return &App{cfg: cfg, store: st, brk: brk, observer: obs, engine: engine}, nil
}

func buildStore(cfg config.StoreConfig) (workflow.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return store.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildBroker(cfg config.BrokerConfig) (workflow.Broker, error) {
	switch cfg.Backend {
	case "", "memory":
		return broker.NewMemoryBroker(), nil
	case "nats":
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
		}
		return broker.NewNATSBroker(conn), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Backend)
	}
}

// Run starts the trigger-sweep ticker and a metrics HTTP server, and
// blocks until ctx is cancelled or SIGINT/SIGTERM is received, the same
// signal-then-ctx.Done()-fan-in shape 88lin-divinesense's
// cmd/divinesense/main.go uses around its own server.Start/Shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.observer.Handler())
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}

	errCh := make(chan error, 2+len(a.cfg.Broker.InboundStreams))
	for _, stream := range a.cfg.Broker.InboundStreams {
		stream := stream
		if err := a.brk.Subscribe(ctx, stream, a.cfg.Broker.DefaultSubCount, a.engine.Dispatch); err != nil {
			errCh <- fmt.Errorf("subscribe %s: %w", stream, err)
		}
	}

	go func() {
		if err := a.engine.RunSystemTimer(ctx, a.cfg.TickInterval); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("trigger ticker: %w", err)
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		stopErr := srv.Close()
		if err != nil {
			return err
		}
		return stopErr
	}
}

// TickOnce runs a single due-trigger sweep and returns, for cron-style
// invocation instead of RunSystemTimer's continuous ticker.
func (a *App) TickOnce(ctx context.Context) error {
	return a.engine.Tick(ctx)
}
