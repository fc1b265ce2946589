package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON blob per account plus an id index set, so partial
// reads stay cheap and Save can drop removed accounts.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) keyAccount(id string) string { return "wolf:acct:" + strings.TrimSpace(id) }
func (s *RedisStore) keyIndex() string            { return "wolf:acct:index" }

func (s *RedisStore) Save(ctx context.Context, recs []Record) error {
	keep := make(map[string]struct{}, len(recs))
	pipe := s.rdb.TxPipeline()
	for _, rec := range recs {
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		rec.Secret = MaskedSecret
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal account %s: %w", rec.ID, err)
		}
		keep[rec.ID] = struct{}{}
		pipe.Set(ctx, s.keyAccount(rec.ID), raw, 0)
		pipe.SAdd(ctx, s.keyIndex(), rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	// Drop records for accounts no longer present.
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.rdb.Del(ctx, s.keyAccount(id)).Err(); err != nil {
			return err
		}
		if err := s.rdb.SRem(ctx, s.keyIndex(), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, s.keyAccount(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
