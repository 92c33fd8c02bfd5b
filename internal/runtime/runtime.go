package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/cache"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/clock"
	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/eventlog"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/events"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/retry"
	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/store/memory"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/store/pebblekv"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/store/postgres"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/store/redisstore"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workorder"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workqueue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

const (
	healthKey          = "walkin/health"
	journalName        = "queue"
	migrateTimeout     = 30 * time.Second
	cacheSweepInterval = time.Minute
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	Clock  clock.Clock
	// Store overrides the configured backend, mainly for tests.
	Store queue.Store
}

// Runtime owns every component opened for one process.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger

	db      *pebblestore.DB
	rdb     *redis.Client
	sqlDB   *sql.DB
	amqp    *events.AMQP
	memory  *cache.Memory
	evlog   *eventlog.Log
	journal *events.Journal

	store   queue.Store
	wq      *workqueue.WorkQueue
	outbox  *workorder.Outbox
	engine  *queue.Engine
	closers []func() error

	stop     chan struct{}
	stopOnce sync.Once
}

// Open initializes storage and the engine. On failure everything opened so
// far is closed again.
func Open(opts Options) (rt *Runtime, err error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	rt = &Runtime{config: cfg, logger: opts.Logger.WithComponent("runtime"), stop: make(chan struct{})}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	needPebble := cfg.Store.Backend == cfgpkg.BackendPebble || cfg.WorkOrders.Enabled || cfg.Events.Journal
	if opts.Store != nil {
		needPebble = cfg.WorkOrders.Enabled || cfg.Events.Journal
	}
	if needPebble {
		db, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir, Fsync: pebblestore.ParseFsyncMode(cfg.Store.Fsync)})
		if err != nil {
			return rt, fmt.Errorf("open pebble: %w", err)
		}
		rt.db = db
		rt.closers = append(rt.closers, db.Close)
	}
	if cfg.Redis.URL != "" {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return rt, fmt.Errorf("parse redis url: %w", err)
		}
		rt.rdb = redis.NewClient(ropts)
		rt.closers = append(rt.closers, rt.rdb.Close)
	}

	store, err := rt.openStore(opts)
	if err != nil {
		return rt, err
	}
	rt.store = store

	sink, err := rt.openSinks(opts.Clock)
	if err != nil {
		return rt, err
	}

	var creator queue.WorkOrderCreator = workorder.Noop{}
	if cfg.WorkOrders.Enabled {
		wq, err := workqueue.OpenQueue(rt.db, cfg.WorkOrders.Queue, opts.Logger)
		if err != nil {
			return rt, fmt.Errorf("open work-order queue: %w", err)
		}
		rt.wq = wq
		rt.outbox = workorder.NewOutbox(wq, workorder.Options{
			Lease:         cfg.WorkOrders.Lease(),
			MaxDeliveries: cfg.WorkOrders.MaxDeliveries,
			Clock:         opts.Clock,
			Logger:        opts.Logger,
		})
		creator = rt.outbox
		if cfg.WorkOrders.Sweep() > 0 {
			wq.StartSweeper(cfg.WorkOrders.Sweep(), 128)
		}
	}

	engine, err := queue.NewEngine(queue.Options{
		Store:      store,
		Cache:      rt.openCache(opts.Clock),
		Sink:       sink,
		WorkOrders: creator,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
		Retry: retry.Config{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			BaseDelay:     cfg.Retry.BaseDelay(),
			MaxDelay:      cfg.Retry.MaxDelay(),
			BackoffFactor: cfg.Retry.BackoffFactor,
		},
		EntryTTL:       cfg.Queue.EntryTTL(),
		SessionTTL:     cfg.Queue.SessionTTL(),
		ScanLimit:      cfg.Queue.ScanLimit,
		AvgServiceTime: cfg.Queue.AvgServiceTime(),
		WatchPoll:      cfg.Queue.WatchPoll(),
	})
	if err != nil {
		return rt, err
	}
	rt.engine = engine
	if cfg.Queue.SessionSweep() > 0 {
		engine.StartSessionSweeper(cfg.Queue.SessionSweep())
	}
	rt.logger.Info("runtime opened",
		logpkg.Str("store", cfg.Store.Backend),
		logpkg.Str("cache", cfg.Cache.Backend),
		logpkg.Bool("work_orders", cfg.WorkOrders.Enabled))
	return rt, nil
}

func (r *Runtime) openStore(opts Options) (queue.Store, error) {
	if opts.Store != nil {
		return opts.Store, nil
	}
	switch r.config.Store.Backend {
	case cfgpkg.BackendMemory:
		return memory.New(), nil
	case cfgpkg.BackendPebble:
		return pebblekv.New(r.db), nil
	case cfgpkg.BackendRedis:
		return redisstore.New(r.rdb, r.config.Redis.Prefix), nil
	case cfgpkg.BackendPostgres:
		db, err := postgres.Open(r.config.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		r.sqlDB = db
		r.closers = append(r.closers, db.Close)
		s := postgres.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", r.config.Store.Backend)
}

func (r *Runtime) openCache(c clock.Clock) *cache.Layer {
	var backend cache.Backend
	switch r.config.Cache.Backend {
	case cfgpkg.BackendRedis:
		backend = cache.NewRedis(r.rdb, r.config.Redis.Prefix+"cache:")
	case cfgpkg.BackendMemory:
		r.memory = cache.NewMemory(c)
		backend = r.memory
		go r.sweepCache()
	default:
		return nil
	}
	return cache.NewLayer(backend, r.config.Cache.TTL(), r.logger)
}

func (r *Runtime) sweepCache() {
	t := time.NewTicker(cacheSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			if n := r.memory.Sweep(); n > 0 {
				r.logger.Debug("cache sweep", logpkg.Int("removed", n))
			}
		}
	}
}

func (r *Runtime) openSinks(c clock.Clock) (queue.EventSink, error) {
	var sinks events.Multi
	ec := r.config.Events
	if ec.Journal {
		l, err := eventlog.Open(r.db, journalName)
		if err != nil {
			return nil, fmt.Errorf("open event journal: %w", err)
		}
		r.evlog = l
		r.journal = events.NewJournal(l)
		sinks = append(sinks, r.journal)
		l.StartRetention(ec.JournalTrim(), ec.JournalRetention(), c.Now, func(err error) {
			r.logger.Warn("journal trim failed", logpkg.Err(err))
		})
	}
	if ec.Log {
		sinks = append(sinks, events.NewLog(r.logger))
	}
	if ec.RedisChannel != "" {
		sinks = append(sinks, events.NewRedis(r.rdb, ec.RedisChannel))
	}
	if ec.AMQPURL != "" {
		a, err := events.DialAMQP(ec.AMQPURL, ec.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		r.amqp = a
		r.closers = append(r.closers, a.Close)
		sinks = append(sinks, a)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

// Close stops background work and closes resources in reverse open order.
func (r *Runtime) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.engine != nil {
		r.engine.Close()
	}
	if r.wq != nil {
		r.wq.StopSweeper()
	}
	if r.evlog != nil {
		r.evlog.StopRetention()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// CheckHealth pings every backing service that was opened.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.engine == nil {
		return errors.New("runtime not open")
	}
	if r.db != nil {
		if _, err := r.db.Get([]byte(healthKey)); err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
			return fmt.Errorf("pebble: %w", err)
		}
	}
	if r.rdb != nil {
		if err := r.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if r.sqlDB != nil {
		if err := r.sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// Engine returns the queue engine.
func (r *Runtime) Engine() *queue.Engine { return r.engine }

// Outbox returns the work-order outbox, or nil when work orders are disabled.
func (r *Runtime) Outbox() *workorder.Outbox { return r.outbox }

// Journal returns the event journal, or nil when it is disabled.
func (r *Runtime) Journal() *events.Journal { return r.journal }

// DB exposes the Pebble database when one was opened (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
