package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/services"
)

var ErrPoolClosed = errors.New("lifecycle pool is shut down")

const DefaultWorkers = 4

// Dispatcher hands instance runs and resets to whatever executes them.
type Dispatcher interface {
	DispatchRun(ctx context.Context, instance *models.AppInstance) error
	DispatchReset(ctx context.Context, instance *models.AppInstance) error
}

// Runner is the work a Pool executes. *Controller implements it.
type Runner interface {
	Run(ctx context.Context, instance *models.AppInstance) models.InstanceStatus
	Reset(ctx context.Context, instance *models.AppInstance) error
}

type task struct {
	kind     string
	instance *models.AppInstance
	lease    lock.Lease
}

// Pool executes runs and resets on a fixed number of workers. Every task
// holds the instance lock from submission until it returns. Submission never
// waits for a free worker: tasks queue in arrival order.
type Pool struct {
	runner Runner
	locker lock.Locker
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  []task
	ready  chan struct{}
	closed bool
}

func NewPool(runner Runner, locker lock.Locker, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		runner: runner,
		locker: locker,
		logger: log.WithModule("lifecycle-pool"),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}, 1),
	}

	p.wg.Add(workers)
	for i := range workers {
		go p.work(i)
	}

	return p
}

// DispatchRun queues the workflow pipeline of instance. It fails with
// services.ErrInstanceBusy when the instance is locked.
func (p *Pool) DispatchRun(ctx context.Context, instance *models.AppInstance) error {
	return p.submit(ctx, "run", instance)
}

// DispatchReset queues a reset of instance.
func (p *Pool) DispatchReset(ctx context.Context, instance *models.AppInstance) error {
	return p.submit(ctx, "reset", instance)
}

// Queued reports how many tasks wait for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *Pool) submit(ctx context.Context, kind string, instance *models.AppInstance) error {
	if p.isClosed() {
		return ErrPoolClosed
	}

	lease, err := p.locker.TryAcquire(ctx, lock.InstanceKey(instance.ID))
	if errors.Is(err, lock.ErrLocked) {
		return &services.ServiceError{Op: "Dispatch", Code: "instance_busy", Message: "instance is busy", Err: services.ErrInstanceBusy}
	}
	if err != nil {
		return fmt.Errorf("lock instance %s: %w", instance.ID, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.release(lease, instance.ID)

		return ErrPoolClosed
	}
	p.queue = append(p.queue, task{kind: kind, instance: instance, lease: lease})
	queued := len(p.queue)
	p.mu.Unlock()

	p.signal()
	p.logger.InfoContext(ctx, "Queued instance task", "kind", kind, "instance_id", instance.ID, "queued", queued)

	return nil
}

func (p *Pool) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// next pops the oldest queued task, waiting until one arrives or the pool
// shuts down.
func (p *Pool) next() (task, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			t := p.queue[0]
			p.queue[0] = task{}
			p.queue = p.queue[1:]
			more := len(p.queue) > 0
			p.mu.Unlock()

			if more {
				p.signal()
			}

			return t, true
		}
		p.mu.Unlock()

		select {
		case <-p.ctx.Done():
			return task{}, false
		case <-p.ready:
		}
	}
}

func (p *Pool) work(worker int) {
	defer p.wg.Done()

	for {
		t, ok := p.next()
		if !ok {
			return
		}

		if p.ctx.Err() != nil {
			p.release(t.lease, t.instance.ID)

			return
		}
		p.execute(worker, t)
	}
}

func (p *Pool) execute(worker int, t task) {
	logger := p.logger.With("worker", worker, "kind", t.kind, "instance_id", t.instance.ID)

	stop := p.keepAlive(t, logger)

	defer p.release(t.lease, t.instance.ID)
	defer stop()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Instance task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch t.kind {
	case "run":
		p.runner.Run(p.ctx, t.instance)
	case "reset":
		if err := p.runner.Reset(p.ctx, t.instance); err != nil {
			logger.Error("Instance reset failed", "error", err)
		}
	}
}

// keepAlive extends an expiring lease every third of its TTL until the
// returned stop func is called. Stop waits for the renewer to exit.
func (p *Pool) keepAlive(t task, logger *slog.Logger) func() {
	ttl := t.lease.TTL()
	if ttl <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(p.ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := t.lease.Extend(ctx)
				if errors.Is(err, lock.ErrLost) {
					logger.Error("Instance lock lost while the task was running")

					return
				}
				if err != nil && ctx.Err() == nil {
					logger.Warn("Failed to extend instance lock", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (p *Pool) release(lease lock.Lease, instanceID string) {
	if err := lease.Release(context.WithoutCancel(p.ctx)); err != nil {
		p.logger.Warn("Failed to release instance lock", "instance_id", instanceID, "error", err)
	}
}

// Shutdown stops accepting tasks, cancels the running ones and waits for the
// workers until ctx is done. Queued tasks that never started release their
// locks.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, t := range pending {
		p.release(t.lease, t.instance.ID)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
