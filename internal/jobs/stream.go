package jobs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const TaskTypeAnalysis = "analysis"

// StreamDispatcher hands jobs to worker processes through a Redis stream.
// The job input stays in the store; the message only carries the id.
type StreamDispatcher struct {
	client *redis.Client
	stream string
}

func NewStreamDispatcher(client *redis.Client, stream string) *StreamDispatcher {
	return &StreamDispatcher{client: client, stream: stream}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, job Job) error {
	_, err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{
			"type":  TaskTypeAnalysis,
			"jobId": job.ID,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", d.stream, err)
	}
	return nil
}
