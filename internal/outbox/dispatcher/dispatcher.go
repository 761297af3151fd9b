package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qrpay/internal/config"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	"github.com/smallbiznis/qrpay/internal/outbox/domain"
	"github.com/smallbiznis/qrpay/internal/redisx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaseName = "outbox.dispatch"

// lease is satisfied by *redisx.Lease.
type lease interface {
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// acquireFunc returns a nil lease when another replica is dispatching.
type acquireFunc func(ctx context.Context, ttl time.Duration) (lease, error)

type Params struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Redis      *redis.Client       `optional:"true"`
	Locker     *redisx.Locker      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher moves stored outbox events to the broker on a fixed interval.
// Only one replica dispatches at a time.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	sink       domain.Sink
	acquire    acquireFunc
	obsMetrics *obsmetrics.Metrics

	interval  time.Duration
	batchSize int
	lockTTL   time.Duration
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns nil when dispatching is disabled or Redis is unavailable.
func New(p Params) *Dispatcher {
	log := p.Log.Named("outbox.dispatcher")
	cfg := p.Config.Outbox
	if !cfg.Enabled || p.Redis == nil {
		log.Info("outbox dispatcher disabled")
		return nil
	}

	d := newDispatcher(p.DB, log, p.Repo, NewStreamSink(p.Redis, cfg.Stream), cfg)
	if p.Locker != nil {
		d.acquire = func(ctx context.Context, ttl time.Duration) (lease, error) {
			held, err := p.Locker.Acquire(ctx, leaseName, ttl)
			if held == nil {
				return nil, err
			}
			return held, nil
		}
	}
	d.obsMetrics = p.ObsMetrics
	return d
}

func newDispatcher(db *gorm.DB, log *zap.Logger, repo domain.Repository, sink domain.Sink, cfg config.OutboxConfig) *Dispatcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Dispatcher{
		db:        db,
		log:       log,
		repo:      repo,
		sink:      sink,
		interval:  interval,
		batchSize: batch,
		lockTTL:   ttl,
		now:       func() time.Time { return time.Now().UTC() },
		stopCh:    make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
	d.log.Info("outbox dispatcher started", zap.Duration("interval", d.interval))
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.lockTTL)
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.log.Warn("outbox dispatch failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// DispatchOnce publishes one batch and returns how many events were sent.
// Events are marked published only after the sink accepted them, so a
// crash in between redelivers rather than drops.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	var held lease
	if d.acquire != nil {
		var err error
		held, err = d.acquire(ctx, d.lockTTL)
		if err != nil {
			return 0, err
		}
		if held == nil {
			return 0, nil
		}
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn("release outbox lease", zap.Error(err))
			}
		}()
	}

	events, err := d.repo.ListUnpublished(ctx, d.db, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]snowflake.ID, 0, len(events))
	counts := map[string]int{}
	var publishErr error
	renewAt := d.now().Add(d.lockTTL / 2)
	for _, event := range events {
		if held != nil && d.now().After(renewAt) {
			ok, err := held.Extend(ctx, d.lockTTL)
			if err != nil || !ok {
				d.log.Warn("outbox lease lost", zap.Error(err))
				break
			}
			renewAt = d.now().Add(d.lockTTL / 2)
		}
		if err := d.sink.Publish(ctx, event); err != nil {
			publishErr = err
			break
		}
		published = append(published, event.ID)
		counts[event.EventType]++
	}

	if err := d.repo.MarkPublished(ctx, d.db, published, d.now()); err != nil {
		return 0, err
	}
	for eventType, n := range counts {
		d.obsMetrics.RecordOutboxPublished(ctx, eventType, n)
	}
	if len(published) > 0 {
		d.log.Info("outbox events published", zap.Int("count", len(published)))
	}
	return len(published), publishErr
}
