package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"knitkart/internal/models"
)

// createScript registers a job hash unless the key already exists.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'input', ARGV[2], 'created_at', ARGV[3], 'updated_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// finishScript moves a pending job to a terminal status in one step so a
// reader never sees the status without its payload.
var finishScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if status ~= 'pending' then
	return 2
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'result', ARGV[2], 'error', ARGV[3], 'updated_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisStore shares jobs between API instances and workers. Expiry is
// delegated to key TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "analysis:job:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, job Job) (bool, error) {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return false, fmt.Errorf("encode input: %w", err)
	}

	created, err := createScript.Run(ctx, s.client, []string{s.key(job.ID)},
		string(StatusPending),
		string(input),
		strconv.FormatInt(job.CreatedAt.UnixMilli(), 10),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("create job: %w", err)
	}
	return created == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return Job{}, ErrUnknownJob
	}
	return decodeJob(id, fields)
}

func (s *RedisStore) Complete(ctx context.Context, id string, result models.ProductAnalysis, at time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.finish(ctx, id, StatusCompleted, string(payload), "", at)
}

func (s *RedisStore) Fail(ctx context.Context, id string, message string, at time.Time) error {
	return s.finish(ctx, id, StatusError, "", message, at)
}

func (s *RedisStore) finish(ctx context.Context, id string, status Status, result string, message string, at time.Time) error {
	code, err := finishScript.Run(ctx, s.client, []string{s.key(id)},
		string(status),
		result,
		message,
		strconv.FormatInt(at.UnixMilli(), 10),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	switch code {
	case 0:
		return ErrUnknownJob
	case 2:
		return ErrJobFinished
	}
	return nil
}

func decodeJob(id string, fields map[string]string) (Job, error) {
	job := Job{
		ID:     id,
		Status: Status(fields["status"]),
		Error:  fields["error"],
	}

	if raw := fields["input"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Input); err != nil {
			return Job{}, fmt.Errorf("decode input: %w", err)
		}
	}
	if raw := fields["result"]; raw != "" && job.Status == StatusCompleted {
		var result models.ProductAnalysis
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}

	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return Job{}, fmt.Errorf("decode created_at: %w", err)
	}
	job.CreatedAt = time.UnixMilli(created)

	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return Job{}, fmt.Errorf("decode updated_at: %w", err)
	}
	job.UpdatedAt = time.UnixMilli(updated)

	return job, nil
}
