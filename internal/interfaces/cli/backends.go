package cli

import (
	"context"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/pipeline"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/reduction"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/run"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/catalog"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/database/postgres"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/database/redis"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/geoprocessing"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/messaging/kafka"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/prometheus"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/storage/localfs"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/storage/minio"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// cleanup releases a backend. Cleanups run in reverse order of creation.
type cleanup func()

type cleanups []cleanup

func (c *cleanups) add(fn cleanup) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStore builds the table store selected by store.backend.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (table.Store, cleanup, error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case "memory":
		return table.NewMemoryStore(), noop, nil
	case "", "dir":
		s, err := localfs.NewDirStore(cfg.Store.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "postgres":
		conn, err := postgres.NewConnection(cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewTableStore(conn.DB(), logger), func() {
			if err := conn.Close(); err != nil {
				logger.Warn("closing database", logging.Err(err))
			}
		}, nil
	case "minio":
		client, err := minio.NewMinIOClient(cfg.MinIO, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return minio.NewTableStore(client, cfg.Store.Prefix), noop, nil
	}
	return nil, nil, errors.New(errors.ErrCodeBackendDisabled, "unknown store backend").WithDetail(cfg.Store.Backend)
}

// runPorts builds the optional lock, event notifier and metrics recorder.
// A disabled adapter is replaced by its no-op variant.
func runPorts(ctx context.Context, cfg *config.Config, logger logging.Logger, done *cleanups) (run.Locker, run.Notifier, run.Recorder, error) {
	var (
		locker   run.Locker   = run.NopLocker{}
		notifier run.Notifier = run.NopNotifier{}
		recorder run.Recorder = run.NopRecorder{}
	)

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		done.add(func() { _ = client.Close() })
		locker = redis.NewRunLocker(client, cfg.Redis.LockTTL, cfg.Redis.LockWait, logger)
	}

	if cfg.Kafka.Enabled {
		topics, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		err = topics.EnsureTopic(ctx, kafka.EventTopic(cfg.Kafka.Topic))
		_ = topics.Close()
		if err != nil {
			logger.Warn("event topic not ensured", logging.String("topic", cfg.Kafka.Topic), logging.Err(err))
		}
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		done.add(func() { _ = producer.Close() })
		notifier = producer
	}

	if cfg.Metrics.Enabled {
		metrics, err := prometheus.NewFromConfig(cfg.Metrics, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		recorder = metrics
	}
	return locker, notifier, recorder, nil
}

func newCatalog(cliCtx *CLIContext) (*catalog.FileCatalog, error) {
	return catalog.New(cliCtx.Config, cliCtx.Logger)
}

func validationFailed(n int) error {
	return errors.Newf(errors.ErrCodeValidation, "validation found %d blocking problems", n)
}

// newRunner wires the file catalog, the store, the geoprocessing engine and
// the run ports into a pipeline runner.
func newRunner(ctx context.Context, cliCtx *CLIContext, done *cleanups) (*pipeline.Runner, error) {
	cfg, logger := cliCtx.Config, cliCtx.Logger

	cat, err := newCatalog(cliCtx)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	done.add(closeStore)

	locker, notifier, recorder, err := runPorts(ctx, cfg, logger, done)
	if err != nil {
		return nil, err
	}

	engine := geoprocessing.New(logger.Named("geo"))
	ports := reduction.Ports{Overlay: engine, Decay: engine, Zonal: engine, Classifier: engine}
	opts := pipeline.OptionsFromConfig(cfg.Pipeline)
	return pipeline.NewRunner(pipeline.Dependencies{
		Catalog:  cat,
		Store:    store,
		Services: pipeline.NewServices(ports, store, opts, logger),
		Locker:   locker,
		Notifier: notifier,
		Recorder: recorder,
	}, opts, logger), nil
}
