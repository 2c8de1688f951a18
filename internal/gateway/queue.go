package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/healthchat/internal/types"
)

const laneBuffer = 100

// DefaultLaneIdle is how long an empty lane keeps its goroutine.
const DefaultLaneIdle = time.Minute

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = fmt.Errorf("queue stopped")

// Queue manages per-conversation lanes with a global concurrency semaphore.
// Each conversation gets its own FIFO channel (lane) so that its questions
// are answered strictly in order, while the semaphore limits the total
// number of concurrent jobs across all conversations.
type Queue struct {
	lanes     map[types.ConversationID]chan *Job
	semaphore *semaphore.Weighted
	processor func(*Job) (*types.Answer, error)
	idle      time.Duration
	active    atomic.Int64
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent jobs to execute
// simultaneously across all conversation lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ConversationID]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		idle:      DefaultLaneIdle,
	}
}

// SetLaneIdle sets how long an empty lane waits before it is torn down.
// Must be called before Start.
func (q *Queue) SetLaneIdle(d time.Duration) {
	if d > 0 {
		q.idle = d
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for lane
// goroutines to exit. Jobs still queued finish with the context error.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Job to its conversation's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return ErrQueueStopped
	}
	lane, exists := q.lanes[job.ConversationID]
	if !exists {
		lane = make(chan *Job, laneBuffer)
		q.lanes[job.ConversationID] = lane
		q.wg.Add(1)
		go q.processLane(job.ConversationID, lane)
	}

	select {
	case lane <- job:
		return nil
	default:
		return fmt.Errorf("queue full for conversation %s", job.ConversationID)
	}
}

// processLane drains a single conversation lane, acquiring a semaphore slot
// before running the processor synchronously. A lane that stays empty for
// the idle period removes itself; the next job recreates it.
func (q *Queue) processLane(id types.ConversationID, lane chan *Job) {
	defer q.wg.Done()
	timer := time.NewTimer(q.idle)
	defer timer.Stop()

	for {
		select {
		case job, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				job.finish(nil, err)
			} else {
				q.run(job)
				q.semaphore.Release(1)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(q.idle)
		case <-timer.C:
			if q.retire(id, lane) {
				return
			}
			timer.Reset(q.idle)
		}
	}
}

// retire drops an empty lane. Enqueue sends under the same lock, so a lane
// seen empty here cannot receive a job afterwards.
func (q *Queue) retire(id types.ConversationID, lane chan *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || len(lane) > 0 || q.lanes[id] != lane {
		return false
	}
	delete(q.lanes, id)
	return true
}

func (q *Queue) run(job *Job) {
	q.active.Add(1)
	defer q.active.Add(-1)

	if job.Ctx == nil {
		job.Ctx = q.ctx
	}
	job.start()
	if q.processor == nil {
		job.finish(nil, fmt.Errorf("no processor configured"))
		return
	}
	answer, err := q.processor(job)
	if err != nil {
		slog.Error("job failed", "job_id", job.ID, "conversation_id", string(job.ConversationID), "error", err)
	}
	job.finish(answer, err)
}

// WaitIdle blocks until no jobs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Job.
func (q *Queue) SetProcessor(fn func(*Job) (*types.Answer, error)) {
	q.processor = fn
}

// Lanes returns the number of conversations with a lane.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}
