package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "voiceshape:job:"
)

// RedisStore はジョブ状態を Redis に保存します。
// ttl が0の場合は有効期限を設定しません。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewRedisClient は接続URLから Redis クライアントを作成し、疎通を確認します。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if !safeID(job.ID) {
		return fmt.Errorf("invalid job id: %q", job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(job.ID), payload, s.ttl).Err()
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStore) ClaimDispatch(ctx context.Context, jobID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, jobKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrJobNotFound
	}
	return s.rdb.SetNX(ctx, dispatchKey(jobID), time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
}

func (s *RedisStore) ReleaseDispatch(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, dispatchKey(jobID)).Err()
}

func (s *RedisStore) PutProgress(ctx context.Context, jobID string, fraction float64) error {
	value := strconv.FormatFloat(clampFraction(fraction), 'f', -1, 64)
	return s.rdb.Set(ctx, progressKey(jobID), value, s.ttl).Err()
}

// PutResult は SETNX で最終結果を一度だけ書き込みます。
func (s *RedisStore) PutResult(ctx context.Context, jobID string, record *TerminalRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, resultKey(jobID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyTerminal
	}
	return nil
}

func (s *RedisStore) ClearProgress(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, progressKey(jobID)).Err()
}

// GetState は最終結果・進捗・ジョブ情報を1回の MGET で読み出します。
func (s *RedisStore) GetState(ctx context.Context, jobID string) (State, error) {
	values, err := s.rdb.MGet(ctx, resultKey(jobID), progressKey(jobID), jobKey(jobID)).Result()
	if err != nil {
		return State{}, err
	}

	var record *TerminalRecord
	if raw, ok := values[0].(string); ok {
		record = &TerminalRecord{}
		if err := json.Unmarshal([]byte(raw), record); err != nil {
			return State{}, fmt.Errorf("failed to decode result %s: %w", jobID, err)
		}
	}

	var progress *float64
	if raw, ok := values[1].(string); ok {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return State{}, fmt.Errorf("failed to decode progress %s: %w", jobID, err)
		}
		progress = &f
	}

	pending := false
	if raw, ok := values[2].(string); ok && record == nil && progress == nil {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return State{}, fmt.Errorf("failed to decode job %s: %w", jobID, err)
		}
		pending = uploadPresent(&job)
	}
	return resolveState(record, progress, pending)
}

func (s *RedisStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, jobKey(jobID), progressKey(jobID), resultKey(jobID), dispatchKey(jobID)).Err()
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func progressKey(id string) string {
	return jobKey(id) + ":progress"
}

func resultKey(id string) string {
	return jobKey(id) + ":result"
}

func dispatchKey(id string) string {
	return jobKey(id) + ":dispatched"
}
