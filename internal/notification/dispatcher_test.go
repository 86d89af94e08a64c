package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
	done     chan struct{}
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject, body string) error {
	return nil
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, name string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("smtp unavailable")
	}
	p.sent = append(p.sent, name)
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	return nil
}

func newDispatcher(provider *recordingProvider, notify config.NotifyConfig) *Dispatcher {
	return NewDispatcher(Params{
		Config:   config.Config{Notify: notify},
		Provider: provider,
		Log:      zap.NewNop(),
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	provider := &recordingProvider{failures: 2, done: make(chan struct{})}
	d := newDispatcher(provider, config.NotifyConfig{Workers: 1, QueueSize: 4, MaxRetries: 3, Backoff: time.Millisecond})
	d.Start()
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	require.True(t, d.Enqueue(Message{Kind: "invoice_sent", To: []string{"ap@shipper.test"}}))

	select {
	case <-provider.done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, []string{"invoice_sent"}, provider.sent)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	d := newDispatcher(&recordingProvider{}, config.NotifyConfig{Workers: 1, QueueSize: 1})

	msg := Message{Kind: "invoice_paid", To: []string{"ops@carrier.test"}}
	assert.True(t, d.Enqueue(msg))
	assert.False(t, d.Enqueue(msg), "second message must be dropped while no worker runs")
	assert.False(t, d.Enqueue(Message{Kind: "invoice_paid"}), "messages without recipients are ignored")
}

func TestStopIsIdempotent(t *testing.T) {
	d := newDispatcher(&recordingProvider{}, config.NotifyConfig{Workers: 2, QueueSize: 2})
	d.Start()
	assert.NoError(t, d.Stop(context.Background()))
	assert.NoError(t, d.Stop(context.Background()))
}
