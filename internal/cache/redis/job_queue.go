package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

const (
	// jobStream is the Redis stream carrying resolution jobs.
	jobStream = "resolutions:jobs"
	// jobBlock is the per-XREAD block interval. Short enough that context
	// cancellation is noticed promptly.
	jobBlock = 2 * time.Second
	// jobMaxLen soft-caps the stream so an idle consumer never leaks memory.
	jobMaxLen = 10000
)

// JobQueue implements domain.JobQueue on a Redis stream, letting any process
// enqueue work for the resolver pool.
type JobQueue struct {
	rdb    *redis.Client
	lastID string
}

// NewJobQueue creates a JobQueue that consumes entries added after its
// creation.
func NewJobQueue(c *Client) *JobQueue {
	return &JobQueue{rdb: c.Underlying(), lastID: "$"}
}

// Enqueue appends a job to the stream.
func (q *JobQueue) Enqueue(ctx context.Context, job domain.ResolutionJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: encode job: %w", err)
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: jobStream,
		MaxLen: jobMaxLen,
		Approx: true,
		Values: map[string]interface{}{"job": body},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: enqueue job %s: %w", job.MarketID, err)
	}
	return nil
}

// Next blocks until a job arrives or ctx is done. Reads happen in short
// blocking windows so cancellation cannot be stuck behind a long XREAD.
func (q *JobQueue) Next(ctx context.Context) (domain.ResolutionJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ResolutionJob{}, err
		}

		streams, err := q.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{jobStream, q.lastID},
			Count:   1,
			Block:   jobBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.ResolutionJob{}, ctx.Err()
			}
			return domain.ResolutionJob{}, fmt.Errorf("redis: read job stream: %w", err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		msg := streams[0].Messages[0]
		q.lastID = msg.ID

		raw, ok := msg.Values["job"].(string)
		if !ok {
			continue
		}
		var job domain.ResolutionJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.ResolutionJob{}, fmt.Errorf("redis: decode job %s: %w", msg.ID, err)
		}
		return job, nil
	}
}

// Compile-time interface check.
var _ domain.JobQueue = (*JobQueue)(nil)
