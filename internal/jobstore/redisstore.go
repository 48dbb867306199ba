package jobstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"posterforge/internal/pkg/errors"
)

const redisKeyPrefix = "posterforge:job:"

// RedisStore keeps each record as a JSON string under a prefixed key.
// SET is atomic in Redis, so readers never observe a partial record.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "jobstore.create", "encode job record")
	}
	ok, err := s.rdb.SetNX(ctx, s.key(id), data, 0).Result()
	if err != nil {
		return errors.Wrap(err, "jobstore.create", "redis setnx")
	}
	if !ok {
		return errors.AlreadyExists("job", id)
	}
	return nil
}

func (s *RedisStore) Overwrite(ctx context.Context, id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "jobstore.overwrite", "encode job record")
	}
	if err := s.rdb.Set(ctx, s.key(id), data, 0).Err(); err != nil {
		return errors.Wrap(err, "jobstore.overwrite", "redis set")
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, id string) (Record, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, errors.NotFound("job", id)
		}
		return Record{}, errors.Wrap(err, "jobstore.read", "redis get")
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "jobstore.read", "decode job record")
	}
	return rec, nil
}
