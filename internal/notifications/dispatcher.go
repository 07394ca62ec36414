package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/tartanilla-earnings/pkg/async"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("notification dispatcher is stopped")
)

const (
	defaultJobTimeout = 30 * time.Second
	defaultRetention  = 1000
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// DispatcherConfig sizes the pool.
type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Retain bounds how many job statuses stay queryable.
	Retain int
}

type job struct {
	id   string
	name string
	tc   async.TaskContext
	fn   Task
}

// Dispatcher runs submitted tasks on a fixed pool of workers fed by a
// bounded queue. Tasks run on a fresh context carrying the submitter's
// correlation ID, so they outlive the request that queued them.
type Dispatcher struct {
	workers int
	timeout time.Duration
	retain  int
	logger  *zap.Logger
	now     func() time.Time

	queue chan job
	wg    sync.WaitGroup

	mu       sync.Mutex
	started  bool
	closed   bool
	statuses map[string]*JobStatus
	order    []string
}

// NewDispatcher creates a stopped dispatcher; call Start to run workers.
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.Retain <= 0 {
		cfg.Retain = defaultRetention
	}
	if floor := cfg.QueueSize + cfg.Workers; cfg.Retain < floor {
		cfg.Retain = floor
	}

	return &Dispatcher{
		workers:  cfg.Workers,
		timeout:  cfg.JobTimeout,
		retain:   cfg.Retain,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan job, cfg.QueueSize),
		statuses: make(map[string]*JobStatus),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLocked()
}

func (d *Dispatcher) startLocked() {
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.logger.Info("notification dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_size", cap(d.queue)))
}

// Submit queues fn without blocking and returns the job ID.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn Task) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		jobsRejectedTotal.WithLabelValues(name, "stopped").Inc()
		return "", ErrStopped
	}

	j := job{id: uuid.NewString(), name: name, tc: async.CaptureContext(ctx, name), fn: fn}
	select {
	case d.queue <- j:
	default:
		jobsRejectedTotal.WithLabelValues(name, "queue_full").Inc()
		return "", ErrQueueFull
	}

	d.track(&JobStatus{ID: j.id, Name: name, State: JobQueued, SubmittedAt: d.now()})
	jobsSubmittedTotal.WithLabelValues(name).Inc()
	queueDepthGauge.Set(float64(len(d.queue)))
	return j.id, nil
}

// Status returns a copy of the job's current status.
func (d *Dispatcher) Status(id string) (JobStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.statuses[id]
	if !ok {
		return JobStatus{}, false
	}
	return *s, true
}

// Stop refuses new jobs, runs everything already queued and waits for the
// workers until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.startLocked()
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification dispatcher stop timed out", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	queueDepthGauge.Set(float64(len(d.queue)))
	d.update(j.id, func(s *JobStatus) {
		at := d.now()
		s.State = JobRunning
		s.StartedAt = &at
	})

	ctx, cancel := j.tc.NewContextWithTimeout(d.timeout)
	defer cancel()

	start := time.Now()
	err := async.Run(ctx, j.tc, j.fn)
	jobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	jobsCompletedTotal.WithLabelValues(j.name, resultLabel(err)).Inc()

	d.update(j.id, func(s *JobStatus) {
		at := d.now()
		s.FinishedAt = &at
		if err != nil {
			s.State = JobFailed
			s.Error = err.Error()
			return
		}
		s.State = JobSucceeded
	})

	if err != nil {
		d.logger.Warn("notification job failed",
			zap.String("job_id", j.id),
			zap.String("job", j.name),
			zap.String("correlation_id", j.tc.CorrelationID),
			zap.Error(err))
		return
	}
	d.logger.Debug("notification job finished",
		zap.String("job_id", j.id),
		zap.String("job", j.name),
		zap.Duration("duration", time.Since(start)))
}

func (d *Dispatcher) update(id string, fn func(*JobStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.statuses[id]; ok {
		fn(s)
	}
}

// track must be called with mu held.
func (d *Dispatcher) track(s *JobStatus) {
	d.statuses[s.ID] = s
	d.order = append(d.order, s.ID)
	for len(d.order) > d.retain {
		delete(d.statuses, d.order[0])
		d.order = d.order[1:]
	}
}
