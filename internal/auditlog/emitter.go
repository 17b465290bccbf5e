package auditlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink consumes audit entries (store, JSONL mirror, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Entry) error
	Close(context.Context) error
}

// Metrics holds counters for audit delivery.
type Metrics struct {
	enqueued uint64
	dropped  uint64

	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func (m *Metrics) Enqueued() uint64 { return m.enqueued }
func (m *Metrics) Dropped() uint64  { return m.dropped }
func (m *Metrics) SinkSuccess(name string) uint64 {
	if m == nil {
		return 0
	}
	return m.sinkSuccess[name]
}
func (m *Metrics) SinkFailure(name string) uint64 {
	if m == nil {
		return 0
	}
	return m.sinkFailure[name]
}

// Snapshot copies the counters for observation/testing.
func (m *Metrics) Snapshot() Metrics {
	if m == nil {
		return Metrics{}
	}
	out := Metrics{
		enqueued:    m.enqueued,
		dropped:     m.dropped,
		sinkSuccess: make(map[string]uint64, len(m.sinkSuccess)),
		sinkFailure: make(map[string]uint64, len(m.sinkFailure)),
	}
	for k, v := range m.sinkSuccess {
		out.sinkSuccess[k] = v
	}
	for k, v := range m.sinkFailure {
		out.sinkFailure[k] = v
	}
	return out
}

// Emitter buffers and delivers entries to sinks off the request path.
// Logging is best-effort: a full queue drops the entry, a failing sink is
// counted and reported, and neither ever surfaces to the caller.
type Emitter struct {
	queue           chan *Entry
	sinks           []Sink
	metrics         *Metrics
	logger          *zap.Logger
	shutdownTimeout time.Duration
	onDrop          func()

	mu        sync.RWMutex
	metricsMu sync.Mutex
	closed    bool
	wg        sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing. OnDrop, when set, is called
// once per dropped entry (the metrics collector hooks in here).
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	OnDrop          func()
}

// NewEmitter starts background workers delivering entries to the sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink, logger *zap.Logger) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	m := &Metrics{
		sinkSuccess: make(map[string]uint64, len(sinks)),
		sinkFailure: make(map[string]uint64, len(sinks)),
	}
	for _, s := range sinks {
		m.sinkSuccess[s.Name()] = 0
		m.sinkFailure[s.Name()] = 0
	}

	em := &Emitter{
		queue:           make(chan *Entry, queueSize),
		sinks:           sinks,
		metrics:         m,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
		onDrop:          cfg.OnDrop,
	}

	for i := 0; i < workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}

	return em
}

// Emit attempts to enqueue the entry without blocking the request path.
func (e *Emitter) Emit(ctx context.Context, entry *Entry) {
	if e == nil || entry == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.markDropped()
		return
	}

	select {
	case e.queue <- entry:
		e.metricsMu.Lock()
		e.metrics.enqueued++
		e.metricsMu.Unlock()
	default:
		e.markDropped()
		e.logger.Warn("audit queue full, entry dropped", zap.String("request_id", entry.RequestID))
	}
}

func (e *Emitter) markDropped() {
	e.metricsMu.Lock()
	e.metrics.dropped++
	e.metricsMu.Unlock()
	if e.onDrop != nil {
		e.onDrop()
	}
}

// Close stops accepting new entries and waits briefly to drain the queue.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	if e.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, e.shutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
	case <-waitCtx.Done():
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Warn("audit sink close error", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// MetricsSnapshot safely copies current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil || e.metrics == nil {
		return Metrics{}
	}
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	return e.metrics.Snapshot()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for entry := range e.queue {
		e.deliver(entry)
	}
}

func (e *Emitter) deliver(entry *Entry) {
	for _, s := range e.sinks {
		if err := s.Deliver(context.Background(), entry); err != nil {
			e.logger.Warn("audit sink failed",
				zap.String("sink", s.Name()),
				zap.String("request_id", entry.RequestID),
				zap.Error(err))
			e.metricsMu.Lock()
			e.metrics.sinkFailure[s.Name()]++
			e.metricsMu.Unlock()
			continue
		}
		e.metricsMu.Lock()
		e.metrics.sinkSuccess[s.Name()]++
		e.metricsMu.Unlock()
	}
}

// StoreSink adapts a Store to the Sink interface.
type StoreSink struct {
	store *Store
}

func NewStoreSink(store *Store) *StoreSink { return &StoreSink{store: store} }

func (s *StoreSink) Name() string { return "sqlite" }

func (s *StoreSink) Deliver(ctx context.Context, e *Entry) error {
	return s.store.Append(ctx, e)
}

func (s *StoreSink) Close(context.Context) error { return nil }
