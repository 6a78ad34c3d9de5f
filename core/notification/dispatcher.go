package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
)

type (
	// Job is a fan-out to run once the state change that triggered it has been committed.
	Job struct {
		Recipients []string
		Event      Event
		SocketOnly bool
	}

	Dispatcher interface {
		Dispatch(job Job)
	}

	Runner interface {
		FanOut(ctx context.Context, recipients []string, ev Event) Result
		Broadcast(ctx context.Context, recipients []string, ev Event) Result
	}
)

func run(ctx context.Context, runner Runner, job Job) Result {
	if job.SocketOnly {
		return runner.Broadcast(ctx, job.Recipients, job.Event)
	}
	return runner.FanOut(ctx, job.Recipients, job.Event)
}

// AsyncDispatcher runs jobs on a pool of workers fed by a bounded queue.
// When the queue is full the job runs on its own goroutine, so Dispatch never blocks the caller.
type AsyncDispatcher struct {
	runner  Runner
	logger  core.Logger
	workers int
	jobs    chan Job

	mu       sync.RWMutex
	started  bool
	stopped  bool
	wg       sync.WaitGroup
	overflow sync.WaitGroup
}

var _ Dispatcher = (*AsyncDispatcher)(nil)

func NewAsyncDispatcher(runner Runner, conf core.NotificationConfig, logger core.Logger) *AsyncDispatcher {
	workers := conf.Workers
	if workers <= 0 {
		workers = 1
	}
	size := conf.QueueSize
	if size < 0 {
		size = 0
	}
	return &AsyncDispatcher{
		runner:  runner,
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, size),
	}
}

func (d *AsyncDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				d.run(job)
			}
		}()
	}
}

func (d *AsyncDispatcher) Dispatch(job Job) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.logger.Warn(fmt.Sprintf("dispatcher stopped: dropping %s notification", job.Event.Kind()))
		return
	}
	select {
	case d.jobs <- job:
	default:
		d.overflow.Add(1)
		go func() {
			defer d.overflow.Done()
			d.run(job)
		}()
	}
}

// Stop refuses new jobs and waits for queued and running ones until ctx is done.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	if !d.started {
		// nobody will consume the queue otherwise
		d.started = true
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				d.run(job)
			}
		}()
	}
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "draining notification jobs")
	}
}

func (d *AsyncDispatcher) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(fmt.Sprintf("notification job panicked: %v", r))
		}
	}()
	run(context.Background(), d.runner, job)
}

// SyncDispatcher runs every job on the caller's goroutine.
type SyncDispatcher struct {
	Runner Runner

	mu      sync.Mutex
	Results []Result
}

var _ Dispatcher = (*SyncDispatcher)(nil)

func (d *SyncDispatcher) Dispatch(job Job) {
	res := run(context.Background(), d.Runner, job)
	d.mu.Lock()
	d.Results = append(d.Results, res)
	d.mu.Unlock()
}
