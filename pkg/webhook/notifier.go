// Package webhook delivers order status changes to an external automation
// endpoint. Delivery is best effort: failures are logged and counted, never
// returned to the caller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// EventType is the envelope type of every delivery.
const EventType = "order.status.update"

// Delivery results.
const (
	ResultDelivered = "delivered"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
)

// Observer records delivery outcomes.
type Observer interface {
	RecordWebhook(result string)
}

// Config tunes the notifier. URL is read on every Notify.
type Config struct {
	URL       func() string
	Timeout   time.Duration
	QueueSize int
	Workers   int
}

type job struct {
	url  string
	body []byte
}

// Notifier posts JSON envelopes from a bounded queue.
type Notifier struct {
	url        func() string
	httpClient *http.Client
	queue      chan job
	workers    int
	observer   Observer
	logger     *otelzap.Logger
	now        func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// New creates a notifier. Call Start before Notify is used and Close on shutdown.
func New(cfg Config, observer Observer, logger *otelzap.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	url := cfg.URL
	if url == nil {
		url = func() string { return "" }
	}

	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		queue:      make(chan job, size),
		workers:    workers,
		observer:   observer,
		logger:     logger,
		now:        time.Now,
	}
}

// Start launches the delivery workers.
func (n *Notifier) Start() {
	n.startOnce.Do(func() {
		for i := 0; i < n.workers; i++ {
			n.wg.Add(1)
			go n.work()
		}
	})
}

// Close stops accepting events, delivers what is queued and waits for the
// workers until ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify queues payload for delivery and returns immediately. It does
// nothing when no endpoint is configured. A full queue drops the event.
func (n *Notifier) Notify(payload any) {
	url := n.url()
	if url == "" {
		return
	}

	body, err := n.envelope(payload)
	if err != nil {
		n.logger.Error("Webhook payload not serializable", zap.Error(err))
		n.record(ResultFailed)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn("Webhook notifier closed, event dropped")
		n.record(ResultDropped)
		return
	}

	select {
	case n.queue <- job{url: url, body: body}:
	default:
		n.logger.Warn("Webhook queue full, event dropped", zap.Int("capacity", cap(n.queue)))
		n.record(ResultDropped)
	}
}

// envelope merges payload's fields with the event type and timestamp.
func (n *Notifier) envelope(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not an object: nest it.
		fields = map[string]json.RawMessage{"data": raw}
	}

	typ, _ := json.Marshal(EventType)
	ts, _ := json.Marshal(n.now().UTC().Format(time.RFC3339Nano))
	fields["type"] = typ
	fields["timestamp"] = ts

	return json.Marshal(fields)
}

func (n *Notifier) work() {
	defer n.wg.Done()
	for j := range n.queue {
		n.deliver(j)
	}
}

func (n *Notifier) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(j.body))
	if err != nil {
		n.logger.Error("Webhook request invalid", zap.Error(err))
		n.record(ResultFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("Webhook delivery failed", zap.Error(err))
		n.record(ResultFailed)
		return
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("Webhook endpoint rejected event", zap.Int("status_code", resp.StatusCode))
		n.record(ResultRejected)
		return
	}
	n.record(ResultDelivered)
}

func (n *Notifier) record(result string) {
	if n.observer != nil {
		n.observer.RecordWebhook(result)
	}
}
