package queue

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/cache"
	"github.com/mediafetch/botcore/internal/metrics"
	"github.com/mediafetch/botcore/internal/provider"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/transport"
)

// Config carries the queue's tunables.
type Config struct {
	MaxArtifactSize int64
	PoolSize        int
	SendTimeout     time.Duration
	StatusThrottle  time.Duration
	InterJobPause   time.Duration
	DownloadDir     string
}

// Queue is the ordered download pipeline. Enqueue appends and starts the
// worker if none is running; the worker stops once the queue drains.
type Queue struct {
	mu            sync.Mutex
	waiting       []*Job
	inflight      *Job
	positions     map[int64]int
	workerRunning bool

	cfg       Config
	pool      chan struct{}
	provider  provider.Provider
	cache     *cache.Cache
	users     *store.UserStore
	messenger transport.Messenger
	operator  *transport.Operator
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New creates the queue. The pool bounds concurrent provider calls even
// though only one job is processed at a time; pollers and probes share it.
func New(cfg Config, p provider.Provider, c *cache.Cache, users *store.UserStore,
	messenger transport.Messenger, operator *transport.Operator, logger *zap.Logger) *Queue {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	return &Queue{
		positions: make(map[int64]int),
		cfg:       cfg,
		pool:      make(chan struct{}, cfg.PoolSize),
		provider:  p,
		cache:     c,
		users:     users,
		messenger: messenger,
		operator:  operator,
		logger:    logger,
	}
}

// Enqueue appends a job, recomputes every requester's position and returns
// the new job's 1-based position. If no worker loop is active, one is
// started; the running flag is flipped under the same lock as the append so
// two loops can never start.
func (q *Queue) Enqueue(job *Job) int {
	q.mu.Lock()
	job.EnqueuedAt = time.Now()
	q.waiting = append(q.waiting, job)
	q.recomputePositionsLocked()
	pos := q.positions[job.OwnerID]

	start := !q.workerRunning
	if start {
		q.workerRunning = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.workerLoop()
	}
	return pos
}

// Position returns a requester's 1-based queue position, or 0 if they have
// nothing queued or in flight.
func (q *Queue) Position(ownerID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positions[ownerID]
}

// Len reports waiting plus in-flight jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.waiting)
	if q.inflight != nil {
		n++
	}
	return n
}

// Snapshot returns the current queue contents for the ops surface.
func (q *Queue) Snapshot() []QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedJob, 0, len(q.waiting)+1)
	pos := 1
	if q.inflight != nil {
		out = append(out, QueuedJob{OwnerID: q.inflight.OwnerID, URL: q.inflight.URL, Position: pos, InFlight: true})
		pos++
	}
	for _, job := range q.waiting {
		out = append(out, QueuedJob{OwnerID: job.OwnerID, URL: job.URL, Position: pos})
		pos++
	}
	return out
}

// Wait blocks until the worker loop has stopped. Used on shutdown to let an
// in-flight job finish.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// workerLoop drains the queue and exits when empty. One job in flight at a
// time; a failure is terminal for that job only.
func (q *Queue) workerLoop() {
	defer q.wg.Done()
	q.logger.Info("download worker started")

	for {
		job := q.next()
		if job == nil {
			q.logger.Info("download queue drained, worker stopping")
			return
		}

		q.process(job)

		q.mu.Lock()
		q.inflight = nil
		q.recomputePositionsLocked()
		q.mu.Unlock()

		if q.cfg.InterJobPause > 0 {
			time.Sleep(q.cfg.InterJobPause)
		}
	}
}

// next pops the head job, or clears the running flag and returns nil when the
// queue is empty. Flag and pop happen under one lock so Enqueue observes a
// consistent state.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiting) == 0 {
		q.workerRunning = false
		return nil
	}

	job := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.inflight = job
	q.recomputePositionsLocked()
	return job
}

// recomputePositionsLocked rebuilds the per-requester position table:
// in-flight job first, then waiting jobs in order. A requester with several
// jobs keeps the position of their earliest one.
func (q *Queue) recomputePositionsLocked() {
	positions := make(map[int64]int, len(q.waiting)+1)
	pos := 1
	if q.inflight != nil {
		positions[q.inflight.OwnerID] = pos
		pos++
	}
	for _, job := range q.waiting {
		if _, ok := positions[job.OwnerID]; !ok {
			positions[job.OwnerID] = pos
		}
		pos++
	}
	q.positions = positions

	depth := len(q.waiting)
	if q.inflight != nil {
		depth++
	}
	metrics.QueueDepth.Set(float64(depth))
}
