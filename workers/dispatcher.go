package workers

import (
	"context"
	"sync"
	"time"

	"tournament-ledger/models"
	"tournament-ledger/services"
	"tournament-ledger/utils"
)

type DispatcherOptions struct {
	Workers   int
	QueueSize int
	Attempts  int
	Backoff   time.Duration
	Timeout   time.Duration // per delivery attempt
}

type sideEffect struct {
	notification *models.Notification
	audit        *models.AdminAuditLog
}

// Dispatcher delivers post-commit notifications and audit records on its own
// goroutines. Enqueueing never blocks: when the queue is full the event is
// dropped and logged. Each sink gets a fixed number of attempts with
// exponential backoff.
type Dispatcher struct {
	opts      DispatcherOptions
	notifiers []services.Notifier
	audits    []services.AuditSink
	metrics   *services.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan sideEffect
	wg     sync.WaitGroup
}

var _ services.SideEffects = (*Dispatcher)(nil)

func NewDispatcher(opts DispatcherOptions, notifiers []services.Notifier, audits []services.AuditSink, metrics *services.Metrics) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		opts:      opts,
		notifiers: notifiers,
		audits:    audits,
		metrics:   metrics,
		queue:     make(chan sideEffect, opts.QueueSize),
	}
}

func (d *Dispatcher) Start() {
	utils.Infof("[DISPATCH] 🔁 Starting %d side-effect worker(s), queue %d", d.opts.Workers, d.opts.QueueSize)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ev)
			}
		}()
	}
}

// Stop refuses new events, delivers what is queued and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	utils.Info("[DISPATCH] ⏹️ Side-effect workers stopped")
}

func (d *Dispatcher) Notify(n models.Notification) {
	d.enqueue(sideEffect{notification: &n})
}

func (d *Dispatcher) Audit(a models.AdminAuditLog) {
	d.enqueue(sideEffect{audit: &a})
}

func (d *Dispatcher) enqueue(ev sideEffect) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		utils.Warn("[DISPATCH] ⚠️ Dispatcher stopped, dropping side effect")
		d.metrics.DispatchDropped()
		return
	}
	select {
	case d.queue <- ev:
	default:
		utils.Warn("[DISPATCH] ⚠️ Queue full, dropping side effect")
		d.metrics.DispatchDropped()
	}
}

func (d *Dispatcher) deliver(ev sideEffect) {
	if ev.notification != nil {
		n := *ev.notification
		for _, sink := range d.notifiers {
			d.retry(sink.Name(), func(ctx context.Context) error { return sink.Deliver(ctx, n) })
		}
	}
	if ev.audit != nil {
		a := *ev.audit
		for _, sink := range d.audits {
			d.retry(sink.Name(), func(ctx context.Context) error { return sink.Record(ctx, a) })
		}
	}
}

func (d *Dispatcher) retry(name string, fn func(ctx context.Context) error) {
	backoff := d.opts.Backoff
	var err error
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err = fn(ctx)
		cancel()
		if err == nil {
			d.metrics.Dispatch(name, nil)
			return
		}
		if attempt < d.opts.Attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	d.metrics.Dispatch(name, err)
	utils.Errorf("[DISPATCH] ❌ %s failed after %d attempts: %v", name, d.opts.Attempts, err)
}
