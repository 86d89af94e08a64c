package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/clock"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMarkOverdue = "mark_overdue"

	lockKeyPrefix = "freightpay:scheduler:"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Invoices invoicedomain.Service
	Config   Config            `optional:"true"`
	Locker   *ratelimit.Locker `optional:"true"`
	Metrics  *metrics.Metrics  `optional:"true"`
}

// Scheduler runs the periodic overdue sweep. With a redis locker configured only
// one replica sweeps per interval.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	genID    *snowflake.Node
	invoices invoicedomain.Service
	locker   *ratelimit.Locker
	metrics  *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Invoices == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		genID:    p.GenID,
		invoices: p.Invoices,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}, nil
}

// RunOnce sweeps overdue invoices and returns how many were marked.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	var marked int
	err := s.runJob(ctx, JobMarkOverdue, s.cfg.BatchSize, s.cfg.LockTTL, func(ctx context.Context, run *jobRun) error {
		for i := 0; i < s.cfg.MaxBatches; i++ {
			n, err := s.invoices.MarkOverdueInvoices(ctx, s.cfg.BatchSize)
			marked += n
			run.AddProcessed(n)
			if err != nil {
				return err
			}
			if n < s.cfg.BatchSize {
				return nil
			}
		}
		return nil
	})
	return marked, err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()

	release, acquired := s.acquire(parent, name)
	if !acquired {
		s.log.Debug("job held by another instance", zap.String("job", name))
		s.metrics.RecordJobRun(name, "skipped", 0)
		return nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(run)
	}

	err := fn(ctx, run)
	if err != nil {
		run.IncError()
	}
	if owner {
		s.logJobFinish(run)
	}
	took := s.clock.Now().Sub(start)

	if err == nil {
		s.metrics.RecordJobRun(name, "ok", took)
		return nil
	}
	// Deadlines are soft: the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.RecordJobRun(name, "timeout", took)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	s.metrics.RecordJobRun(name, "error", took)
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the redis lease for job. Without a locker, or when redis is
// unreachable, the job runs unguarded; the sweep is safe to run concurrently.
func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool) {
	noop := func() {}
	if !s.locker.Enabled() {
		return noop, true
	}
	key := lockKeyPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("job lock unavailable; running unguarded", zap.String("job", job), zap.Error(err))
		return noop, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", job), zap.Error(err))
		}
	}, true
}
