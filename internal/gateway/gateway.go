package gateway

import (
	"context"

	"github.com/user/healthchat/internal/types"
)

// Asker answers one question within a conversation.
type Asker interface {
	AskIn(ctx context.Context, conv types.ConversationID, text string) (*types.Answer, error)
}

// Gateway serializes questions per conversation. Turns of one conversation
// run one at a time in arrival order; separate conversations run in
// parallel up to the concurrency limit.
type Gateway struct {
	asker Asker
	Queue *Queue
}

// New creates a Gateway in front of asker with the given concurrency limit.
func New(asker Asker, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{asker: asker, Queue: NewQueue(concurrency)}
	g.Queue.SetProcessor(func(job *Job) (*types.Answer, error) {
		return g.asker.AskIn(job.Ctx, job.ConversationID, job.Text)
	})
	return g
}

func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// JobOption configures optional behavior on a Job.
type JobOption func(*Job)

// WithOnComplete sets a callback invoked when the job finishes.
func WithOnComplete(fn func(*Job)) JobOption {
	return func(j *Job) { j.OnComplete = fn }
}

// Submit enqueues a question and returns its job without waiting.
func (g *Gateway) Submit(ctx context.Context, conv types.ConversationID, text string, opts ...JobOption) (*Job, error) {
	if conv == "" {
		conv = types.DefaultConversation
	}
	job := NewJob(conv, text)
	job.Ctx = ctx
	for _, opt := range opts {
		opt(job)
	}
	if err := g.Queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Ask enqueues a question and waits for its answer.
func (g *Gateway) Ask(ctx context.Context, conv types.ConversationID, text string) (*types.Answer, error) {
	job, err := g.Submit(ctx, conv, text)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}
