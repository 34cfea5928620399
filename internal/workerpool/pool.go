package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"photonix-core/internal/errs"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
)

const (
	heartbeatInterval   = 5 * time.Second
	missedHeartbeatsMax = 2
	restartBudget       = 3
	restartWindow       = 60 * time.Second
	defaultDrainTimeout = 30 * time.Second
)

// Task is one unit of work dispatched to a pool worker.
type Task struct {
	ID    string
	Run   func(ctx context.Context) (any, error)
	Trace *eventbus.TraceContext
}

// Result is delivered on the future channel returned by Submit.
type Result struct {
	TaskID string
	Value  any
	Err    error
}

// HealthStatus is a worker's reported health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// WorkerHealth is one row of Health()'s snapshot.
type WorkerHealth struct {
	WorkerID      string
	Status        HealthStatus
	LastHeartbeat time.Time
	Inflight      int
}

type worker struct {
	id            string
	pool          *Pool
	tasks         chan *Envelope
	stop          chan struct{}
	done          chan struct{}
	lastHeartbeat atomic.Int64 // unix nanos
	inflight      atomic.Int32
	unhealthy     atomic.Bool
}

type taskItem struct {
	task   Task
	future chan Result
}

// Pool is a supervised, fixed-shape group of long-lived workers consuming
// from a shared task channel, each enforcing a concurrency of 1 (one task
// in flight at a time), mirroring the thumbnail pool's per-worker vips
// cache isolation.
type Pool struct {
	Name string

	mu           sync.Mutex
	workers      map[string]*worker
	queue        chan *Envelope
	drainTimeout time.Duration

	restartsInWindow int
	windowStart       time.Time
	degraded          atomic.Bool
}

// NewPool creates a pool named name with concurrency long-lived workers.
func NewPool(name string, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pool{
		Name:         name,
		workers:      make(map[string]*worker),
		queue:        make(chan *Envelope, concurrency*4),
		drainTimeout: defaultDrainTimeout,
		windowStart:  time.Now(),
	}
	for i := 0; i < concurrency; i++ {
		p.spawnWorker()
	}
	return p
}

func (p *Pool) spawnWorker() *worker {
	w := &worker{
		id:    uuid.NewString(),
		pool:  p,
		tasks: p.queue,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	w.lastHeartbeat.Store(time.Now().UnixNano())

	p.mu.Lock()
	p.workers[w.id] = w
	p.mu.Unlock()

	metrics.WorkerPoolWorkers.WithLabelValues(p.Name, "healthy").Inc()
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-w.tasks:
			if !ok {
				return
			}
			w.handleEnvelope(env)
			if w.unhealthy.Load() {
				// handleWorkerExit has already removed this worker and
				// spawned its replacement.
				return
			}
		case <-ticker.C:
			w.lastHeartbeat.Store(time.Now().UnixNano())
			w.pool.routeEnvelope(&Envelope{Channel: w.pool.Name, Kind: KindHeartbeat, Payload: w.id})
		case <-w.stop:
			return
		}
	}
}

// handleEnvelope dispatches on the envelope's Kind, the multiplexing point
// spec.md §4.4 describes. Only KindTask carries work on this channel;
// anything else (a future message kind the pool doesn't yet act on) is
// ignored rather than rejected, per the envelope's "unknown kinds are
// ignored" contract.
func (w *worker) handleEnvelope(env *Envelope) {
	if env.Kind != KindTask {
		return
	}
	item, ok := env.Payload.(*taskItem)
	if !ok {
		return
	}
	w.execute(item)
}

func (w *worker) execute(item *taskItem) {
	w.inflight.Add(1)
	defer w.inflight.Add(-1)
	w.lastHeartbeat.Store(time.Now().UnixNano())

	metrics.WorkerPoolTasksSubmitted.WithLabelValues(w.pool.Name).Inc()
	start := time.Now()

	value, err := w.runSafely(item.task)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.WorkerPoolTasksCompleted.WithLabelValues(w.pool.Name, outcome).Inc()
	_ = start

	resultKind := KindResult
	if err != nil {
		resultKind = KindError
	}
	result := Result{TaskID: item.task.ID, Value: value, Err: err}
	w.pool.routeEnvelope(&Envelope{
		Channel: w.pool.Name,
		Kind:    resultKind,
		Payload: result,
		Trace:   item.task.Trace,
	})

	select {
	case item.future <- result:
	default:
	}
	close(item.future)
}

func (w *worker) runSafely(task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.unhealthy.Store(true)
			err = errs.New(errs.Internal, "workerpool.panic", fmt.Sprintf("worker panic: %v", r))
			w.pool.routeEnvelope(&Envelope{
				Channel: w.pool.Name,
				Kind:    KindLog,
				Payload: LogPayload{Level: "error", Message: fmt.Sprintf("worker panic: %v", r)},
			})
			w.pool.handleWorkerExit(w)
		}
	}()
	return task.Run(context.Background())
}

// routeEnvelope applies the handling spec.md §4.4 assigns to each message
// kind. KindResult/KindError are already delivered to the caller on the
// task's own future channel by execute, so routing them here is a no-op by
// design — this is the one place that actually inspects Kind, and it's
// where a KindLog envelope reaches the parent logger and every other kind,
// known or not, is otherwise ignored rather than rejected.
func (p *Pool) routeEnvelope(env *Envelope) {
	switch env.Kind {
	case KindLog:
		payload, ok := env.Payload.(LogPayload)
		if !ok {
			return
		}
		switch payload.Level {
		case "error":
			logging.Error("workerpool %s: %s", p.Name, payload.Message)
		case "warn":
			logging.Warn("workerpool %s: %s", p.Name, payload.Message)
		default:
			logging.Info("workerpool %s: %s", p.Name, payload.Message)
		}
	case KindResult, KindError, KindHeartbeat, KindTask, KindShutdown:
		// delivered (or, for heartbeat/shutdown, recorded) through their
		// own dedicated path; nothing further to do here.
	default:
		// unrecognized kind: ignored per the envelope contract.
	}
}

// Submit enqueues task and returns its ID plus a future channel delivering
// exactly one Result. Non-blocking as long as the queue has room; if full,
// Submit blocks until a slot frees (backpressure rather than drop).
func (p *Pool) Submit(task Task) (string, <-chan Result) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	future := make(chan Result, 1)
	item := &taskItem{task: task, future: future}

	metrics.WorkerPoolQueueDepth.WithLabelValues(p.Name).Set(float64(len(p.queue)))
	p.queue <- &Envelope{Channel: p.Name, Kind: KindTask, Payload: item, Trace: task.Trace}
	return task.ID, future
}

// Health returns a snapshot of every worker's reported health, promoting a
// worker to unhealthy if it has missed missedHeartbeatsMax heartbeats.
func (p *Pool) Health() []WorkerHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]WorkerHealth, 0, len(p.workers))
	now := time.Now()
	for id, w := range p.workers {
		last := time.Unix(0, w.lastHeartbeat.Load())
		status := HealthHealthy
		if w.unhealthy.Load() || now.Sub(last) > heartbeatInterval*time.Duration(missedHeartbeatsMax+1) {
			status = HealthUnhealthy
		}
		out = append(out, WorkerHealth{
			WorkerID:      id,
			Status:        status,
			LastHeartbeat: last,
			Inflight:      int(w.inflight.Load()),
		})
	}
	return out
}

// handleWorkerExit is called when a worker panics or its goroutine exits
// unexpectedly; it applies the restart budget (3 restarts within 60s) before
// marking the pool degraded.
func (p *Pool) handleWorkerExit(w *worker) {
	metrics.WorkerPoolWorkers.WithLabelValues(p.Name, "healthy").Dec()

	p.mu.Lock()
	delete(p.workers, w.id)
	now := time.Now()
	if now.Sub(p.windowStart) > restartWindow {
		p.windowStart = now
		p.restartsInWindow = 0
	}
	p.restartsInWindow++
	exceeded := p.restartsInWindow > restartBudget
	p.mu.Unlock()

	metrics.WorkerPoolRestarts.WithLabelValues(p.Name).Inc()

	if exceeded {
		p.degraded.Store(true)
		metrics.WorkerPoolDegraded.WithLabelValues(p.Name).Set(1)
		p.routeEnvelope(&Envelope{
			Channel: p.Name,
			Kind:    KindLog,
			Payload: LogPayload{Level: "error", Message: fmt.Sprintf("exceeded restart budget (%d in %s), marking degraded", restartBudget, restartWindow)},
		})
		return
	}

	p.routeEnvelope(&Envelope{
		Channel: p.Name,
		Kind:    KindLog,
		Payload: LogPayload{Level: "warn", Message: fmt.Sprintf("restarting worker %s (%d/%d in window)", w.id, p.restartsInWindow, restartBudget)},
	})
	p.spawnWorker()
}

// Degraded reports whether the pool has exhausted its restart budget.
func (p *Pool) Degraded() bool {
	return p.degraded.Load()
}

// SetDrainTimeout overrides the default 30s drain wait.
func (p *Pool) SetDrainTimeout(d time.Duration) {
	p.drainTimeout = d
}

// Shutdown waits up to the drain timeout for in-flight tasks to finish,
// then terminates every worker. Submit is not refused afterwards: a task
// submitted after Shutdown is queued and never run.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	deadline := time.NewTimer(p.drainTimeout)
	defer deadline.Stop()

	drained := make(chan struct{})
	go func() {
		for _, w := range workers {
			for w.inflight.Load() > 0 {
				select {
				case <-time.After(50 * time.Millisecond):
				case <-ctx.Done():
					close(drained)
					return
				}
			}
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-deadline.C:
		logging.Warn("workerpool %s: drain timeout exceeded, terminating with tasks outstanding", p.Name)
	case <-ctx.Done():
	}

	for _, w := range workers {
		close(w.stop)
		metrics.WorkerPoolWorkers.WithLabelValues(p.Name, "healthy").Dec()
	}
	for _, w := range workers {
		<-w.done
	}
	return nil
}
