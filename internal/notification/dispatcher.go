package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// Message is one templated email.
type Message struct {
	Kind string
	To   []string
	Data map[string]any
}

// Notifier accepts messages without blocking the caller.
type Notifier interface {
	Enqueue(msg Message) bool
}

type Params struct {
	fx.In

	Config   config.Config
	Provider email.Provider
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

// Dispatcher delivers messages from a bounded queue with a fixed worker pool.
// A full queue drops the message; delivery failures are retried with linear backoff.
type Dispatcher struct {
	provider   email.Provider
	log        *zap.Logger
	metrics    *metrics.Metrics
	queue      chan Message
	workers    int
	maxRetries int
	backoff    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(p Params) *Dispatcher {
	cfg := p.Config.Notify
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Dispatcher{
		provider:   p.Provider,
		log:        p.Log.Named("notification.dispatcher"),
		metrics:    p.Metrics,
		queue:      make(chan Message, cfg.QueueSize),
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		stop:       make(chan struct{}),
	}
}

func (d *Dispatcher) Enqueue(msg Message) bool {
	if len(msg.To) == 0 {
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.log.Warn("notification queue full, dropping message", zap.String("kind", msg.Kind))
		d.metrics.RecordNotification(msg.Kind, "dropped")
		return false
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop signals workers and waits for in-flight deliveries or ctx expiry.
// Messages still queued are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })

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

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case msg := <-d.queue:
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.provider.SendTemplate(ctx, msg.To, msg.Kind, msg.Data)
		cancel()
		if err == nil {
			d.metrics.RecordNotification(msg.Kind, "delivered")
			return
		}
		if attempt >= d.maxRetries {
			d.log.Error("notification delivery failed",
				zap.String("kind", msg.Kind),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			d.metrics.RecordNotification(msg.Kind, "failed")
			return
		}

		d.log.Warn("notification delivery retry",
			zap.String("kind", msg.Kind),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-d.stop:
			d.metrics.RecordNotification(msg.Kind, "abandoned")
			return
		case <-time.After(d.backoff * time.Duration(attempt+1)):
		}
	}
}
