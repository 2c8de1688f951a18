package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/user/healthchat/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	queue.Start(context.Background())
	defer queue.Stop()

	var running int32
	var maxSeen int32

	queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &types.Answer{}, nil
	})

	var jobs []*Job
	for i := 0; i < 5; i++ {
		job := NewJob(types.ConversationID(fmt.Sprintf("conv-%d", i)), "q")
		if err := queue.Enqueue(job); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		if _, err := job.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
	if queue.Lanes() != 5 {
		t.Errorf("expected 5 lanes, got %d", queue.Lanes())
	}
}

func TestQueueSameConversationOrdering(t *testing.T) {
	queue := NewQueue(4)
	queue.Start(context.Background())
	defer queue.Stop()

	var mu sync.Mutex
	var order []string

	queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, job.Text)
		mu.Unlock()
		return &types.Answer{Text: job.Text}, nil
	})

	var last *Job
	for i := 0; i < 5; i++ {
		last = NewJob("same", fmt.Sprintf("q%d", i))
		if err := queue.Enqueue(last); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-last.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if want := fmt.Sprintf("q%d", i); v != want {
			t.Errorf("order[%d] = %s, want %s", i, v, want)
		}
	}
}

func TestQueueJobLifecycle(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		if job.Status != JobRunning || job.StartedAt == nil {
			t.Errorf("job not running inside processor: %s", job.Status)
		}
		if job.Text == "bad" {
			return nil, errors.New("boom")
		}
		return &types.Answer{Text: "ok"}, nil
	})

	var completed atomic.Int32
	good := NewJob("c", "good")
	good.OnComplete = func(*Job) { completed.Add(1) }
	bad := NewJob("c", "bad")
	if err := queue.Enqueue(good); err != nil {
		t.Fatal(err)
	}
	if err := queue.Enqueue(bad); err != nil {
		t.Fatal(err)
	}

	answer, err := good.Wait(context.Background())
	if err != nil || answer.Text != "ok" || good.Status != JobComplete {
		t.Errorf("good job = %+v, %v, %s", answer, err, good.Status)
	}
	if _, err := bad.Wait(context.Background()); err == nil || bad.Status != JobFailed {
		t.Errorf("bad job err = %v, status %s", err, bad.Status)
	}
	if bad.EndedAt == nil {
		t.Error("EndedAt not set")
	}
	if completed.Load() != 1 {
		t.Errorf("OnComplete called %d times", completed.Load())
	}
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	job := NewJob("no-proc", "q")
	if err := queue.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	if _, err := job.Wait(context.Background()); err == nil {
		t.Error("expected error without a processor")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	queue.Stop()

	if err := queue.Enqueue(NewJob("c", "q")); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped, got %v", err)
	}
	// Stop is safe to call twice.
	queue.Stop()
}

func TestQueueWaitIdle(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	release := make(chan struct{})
	queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		<-release
		return &types.Answer{}, nil
	})
	job := NewJob("c", "q")
	queue.Enqueue(job)

	time.Sleep(20 * time.Millisecond)
	if queue.WaitIdle(30 * time.Millisecond) {
		t.Error("expected queue to be busy")
	}
	close(release)
	job.Wait(context.Background())
	if !queue.WaitIdle(time.Second) {
		t.Error("expected queue to become idle")
	}
}

func TestQueueRetiresIdleLanes(t *testing.T) {
	queue := NewQueue(2)
	queue.SetLaneIdle(30 * time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()
	queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		return &types.Answer{Text: job.Text}, nil
	})

	for i := 0; i < 20; i++ {
		job := NewJob(types.ConversationID(fmt.Sprintf("conv-%d", i)), "q")
		if err := queue.Enqueue(job); err != nil {
			t.Fatal(err)
		}
		if _, err := job.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for queue.Lanes() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := queue.Lanes(); n != 0 {
		t.Fatalf("expected idle lanes to be retired, %d remain", n)
	}

	// A retired conversation gets a fresh lane on its next question.
	job := NewJob("conv-3", "again")
	if err := queue.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	answer, err := job.Wait(context.Background())
	if err != nil || answer.Text != "again" {
		t.Fatalf("answer = %+v, err = %v", answer, err)
	}
}
