package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/user/healthchat/internal/types"
)

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is one question waiting in, or taken from, a conversation lane.
type Job struct {
	ID             string
	ConversationID types.ConversationID
	Text           string
	Status         JobStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time

	Answer *types.Answer
	Err    error

	Ctx        context.Context
	OnComplete func(*Job)
	done       chan struct{}
}

// NewJob creates a Job in the Queued state.
func NewJob(conv types.ConversationID, text string) *Job {
	return &Job{
		ID:             uuid.NewString(),
		ConversationID: conv,
		Text:           text,
		Status:         JobQueued,
		CreatedAt:      time.Now(),
		done:           make(chan struct{}),
	}
}

// Done is closed once the job has finished, successfully or not.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (*types.Answer, error) {
	select {
	case <-j.done:
		return j.Answer, j.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) start() {
	now := time.Now()
	j.StartedAt = &now
	j.Status = JobRunning
}

func (j *Job) finish(answer *types.Answer, err error) {
	now := time.Now()
	j.EndedAt = &now
	j.Answer, j.Err = answer, err
	if err != nil {
		j.Status = JobFailed
	} else {
		j.Status = JobComplete
	}
	if j.OnComplete != nil {
		j.OnComplete(j)
	}
	close(j.done)
}
