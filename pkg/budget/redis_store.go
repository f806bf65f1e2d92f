package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 16

// RedisUsageStore shares usage between kernel replicas. Each subject is a
// hash keyed by dimension; Apply runs check inside an optimistic
// WATCH/MULTI transaction and retries when another replica wins the race.
type RedisUsageStore struct {
	client *redis.Client
	prefix string
}

// NewRedisUsageStore creates a store backed by Redis.
func NewRedisUsageStore(addr, password string, db int) *RedisUsageStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisUsageStoreWithClient(rdb, "deedchain:usage:")
}

func NewRedisUsageStoreWithClient(client *redis.Client, prefix string) *RedisUsageStore {
	return &RedisUsageStore{client: client, prefix: prefix}
}

func (s *RedisUsageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisUsageStore) key(subject string) string {
	return s.prefix + subject
}

func parseUsage(fields map[string]string) (Envelope, error) {
	out := make(Envelope, len(fields))
	for dim, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %v", ErrStoreUnavailable, dim, raw, err)
		}
		out[dim] = v
	}
	return out, nil
}

func (s *RedisUsageStore) Apply(ctx context.Context, subject string, demand Envelope, check func(current Envelope) error) (Envelope, error) {
	key := s.key(subject)
	var next Envelope
	var rejected error

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := parseUsage(fields)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(current.Clone()); err != nil {
				rejected = err
				return nil
			}
		}
		next = current.Plus(demand)

		values := make(map[string]any, len(next))
		for dim, v := range next {
			values[dim] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(values) > 0 {
				pipe.HSet(ctx, key, values)
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		rejected = nil
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			if rejected != nil {
				return nil, rejected
			}
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil, fmt.Errorf("%w: subject %s: too much contention", ErrStoreUnavailable, subject)
}

func (s *RedisUsageStore) Usage(ctx context.Context, subject string) (Envelope, error) {
	fields, err := s.client.HGetAll(ctx, s.key(subject)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return parseUsage(fields)
}

func (s *RedisUsageStore) Reset(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisUsageStore) ResetAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisUsageStore) Close() error {
	return s.client.Close()
}
