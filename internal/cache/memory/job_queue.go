package memory

import (
	"context"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// JobQueue is a channel-backed job queue for single-process deployments and
// tests. Enqueue never blocks until the buffer is full.
type JobQueue struct {
	jobs chan domain.ResolutionJob
}

// NewJobQueue creates a queue with the given buffer size.
func NewJobQueue(size int) *JobQueue {
	if size <= 0 {
		size = 128
	}
	return &JobQueue{jobs: make(chan domain.ResolutionJob, size)}
}

// Enqueue adds a job, failing if the buffer is full or the context is done.
func (q *JobQueue) Enqueue(ctx context.Context, job domain.ResolutionJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until a job is available or the context is done.
func (q *JobQueue) Next(ctx context.Context) (domain.ResolutionJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return domain.ResolutionJob{}, ctx.Err()
	}
}

// Compile-time interface check.
var _ domain.JobQueue = (*JobQueue)(nil)
