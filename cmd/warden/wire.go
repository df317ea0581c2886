package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/action"
	"github.com/triage-ai/warden/internal/config"
	"github.com/triage-ai/warden/internal/engine"
	"github.com/triage-ai/warden/internal/engine/detectors"
	"github.com/triage-ai/warden/internal/metrics"
	"github.com/triage-ai/warden/internal/notify"
	"github.com/triage-ai/warden/internal/storage"
	"github.com/triage-ai/warden/internal/store"
)

const tracerName = "github.com/triage-ai/warden/internal/engine"

// app holds everything serve and check share.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	// pg is nil unless storage.postgres_dsn is set.
	pg        *store.Store
	events    *storage.MultiStore
	writer    *storage.Writer
	alerts    *notify.Dispatcher
	offenders action.OffenderStore
	memory    *action.MemoryStore

	detectors []engine.Detector
	orch      *engine.Orchestrator
	metrics   *metrics.Recorder
}

type appOptions struct {
	// persist enables the event writer and alert dispatcher.
	persist bool
	tracer  trace.TracerProvider
	metrics *metrics.Recorder
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: opts.metrics}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if cfg.Storage.PostgresDSN != "" {
		a.pg, err = store.Open(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if err = a.pg.Migrate(); err != nil {
			return nil, err
		}
		a.offenders = a.pg.Offenders()
	} else {
		a.memory = action.NewMemoryStore(cfg.Actions.ViolationWindow)
		a.offenders = a.memory
	}

	policy, err := cfg.ActionPolicy()
	if err != nil {
		return nil, err
	}
	actions := action.NewEngine(policy, a.offenders, logger)

	a.detectors, err = detectors.Build(cfg.Modules, detectors.BuildOptions{
		Gitleaks: cfg.GitleaksRules,
		Remote:   cfg.RemoteConfig(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	engOpts := engine.Options{
		Detectors:           a.detectors,
		Modules:             cfg.Modules,
		FastModules:         cfg.FastModules,
		EarlyExitOnCritical: cfg.EarlyExitOnCritical,
		Disabled:            !cfg.Enabled,
		ModuleTimeout:       cfg.ModuleTimeout(),
		EntropyThreshold:    cfg.EntropyThreshold,
		Cache:               engine.NewLRUCache(cfg.CacheSize, cfg.CacheTTL()),
		Actions:             actions,
		Logger:              logger,
	}
	if opts.tracer != nil {
		engOpts.Tracer = opts.tracer.Tracer(tracerName)
	}
	if opts.metrics != nil {
		engOpts.Recorder = opts.metrics
	}

	if opts.persist {
		a.events, err = openEventStores(ctx, cfg, a.pg, logger)
		if err != nil {
			return nil, err
		}
		a.writer = storage.NewWriter(a.events, cfg.QueueConfig(), logger)
		engOpts.Events = a.writer

		var notifier notify.Notifier
		notifier, err = newNotifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.alerts = notify.NewDispatcher(notifier, cfg.QueueConfig(), logger)
		engOpts.Alerts = a.alerts

		if opts.metrics != nil {
			if err = errors.Join(
				opts.metrics.RegisterQueue("events", a.writer),
				opts.metrics.RegisterQueue("alerts", a.alerts),
			); err != nil {
				return nil, err
			}
		}
	}

	a.orch, err = engine.New(engOpts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// openEventStores connects every configured backend.
func openEventStores(ctx context.Context, cfg *config.Config, pg *store.Store, logger *zap.Logger) (*storage.MultiStore, error) {
	var stores []storage.EventStore
	fail := func(err error) (*storage.MultiStore, error) {
		_ = storage.NewMultiStore(stores...).Close()
		return nil, err
	}

	for _, b := range cfg.Storage.Backends {
		switch b {
		case config.BackendLog:
			stores = append(stores, storage.NewLogStore(logger))
		case config.BackendSQLite:
			s, err := storage.NewSQLiteStore(ctx, cfg.Storage.SQLitePath, logger)
			if err != nil {
				return fail(err)
			}
			stores = append(stores, s)
		case config.BackendClickHouse:
			s, err := storage.NewClickHouseStore(ctx, cfg.Storage.ClickHouseDSN, logger)
			if err != nil {
				return fail(err)
			}
			stores = append(stores, s)
			if err := s.EnsureSchema(ctx); err != nil {
				return fail(err)
			}
		case config.BackendPostgres:
			stores = append(stores, pg.Events())
		case config.BackendKafka:
			producer, err := storage.NewKafkaProducer(storage.KafkaConfig{
				Brokers:  cfg.Storage.Kafka.Brokers,
				Topic:    cfg.Storage.Kafka.Topic,
				ClientID: cfg.Telemetry.ServiceName,
			})
			if err != nil {
				return fail(err)
			}
			stores = append(stores, storage.NewKafkaStore(producer, cfg.Storage.Kafka.Topic, logger))
		}
		logger.Info("event store enabled", zap.String("backend", b))
	}
	return storage.NewMultiStore(stores...), nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if cfg.Notify.MQTT.Broker == "" {
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewMQTTNotifier(notify.MQTTConfig{
		Broker:   cfg.Notify.MQTT.Broker,
		Topic:    cfg.Notify.MQTT.Topic,
		ClientID: cfg.Notify.MQTT.ClientID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("newNotifier: %w", err)
	}
	return n, nil
}

// sweepOffenders forgets violations older than the escalation window until
// ctx is done.
func (a *app) sweepOffenders(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if a.memory != nil {
				a.memory.Sweep(now)
				continue
			}
			n, err := a.pg.Offenders().Prune(ctx, now.Add(-a.cfg.Actions.ViolationWindow))
			if err != nil {
				a.logger.Warn("pruning offender history failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Debug("pruned offender history", zap.Int64("rows", n))
			}
		}
	}
}

// close drains the orchestrator's sinks and releases every connection.
func (a *app) close(ctx context.Context) error {
	var errs []error
	switch {
	case a.orch != nil:
		errs = append(errs, a.orch.Stop(ctx))
	default:
		if a.writer != nil {
			errs = append(errs, a.writer.Stop(ctx))
		} else if a.events != nil {
			errs = append(errs, a.events.Close())
		}
		if a.alerts != nil {
			errs = append(errs, a.alerts.Stop(ctx))
		}
	}
	if len(a.detectors) > 0 {
		errs = append(errs, detectors.Close(a.detectors))
	}
	if a.pg != nil {
		a.pg.Close()
	}
	return errors.Join(errs...)
}
