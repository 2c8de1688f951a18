package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/user/healthchat/internal/types"
)

// RedisStore keeps one hash per (subject, resource type), keyed by record id,
// plus a set of the types present for each subject. HSET on an existing
// field replaces it, so the last writer wins.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordsKey(subject types.SubjectID, rt types.ResourceType) string {
	return fmt.Sprintf("%srecords:%s:%s", s.prefix, subject, rt)
}

func (s *RedisStore) typesKey(subject types.SubjectID) string {
	return fmt.Sprintf("%stypes:%s", s.prefix, subject)
}

// GetRecords returns records ordered by id; hash iteration order is not
// stable.
func (s *RedisStore) GetRecords(ctx context.Context, subject types.SubjectID, rt types.ResourceType) ([]types.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.recordsKey(subject, rt)).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]types.Record, 0, len(fields))
	for id, raw := range fields {
		var rec types.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s/%s: %w", rt, id, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) UpsertRecord(ctx context.Context, subject types.SubjectID, rec types.Record) error {
	if err := validate(subject, rec); err != nil {
		return err
	}
	rec.Subject = subject
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordsKey(subject, rec.ResourceType), string(rec.ID), data)
		pipe.SAdd(ctx, s.typesKey(subject), string(rec.ResourceType))
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}
	return nil
}

func (s *RedisStore) DeleteAllForSubject(ctx context.Context, subject types.SubjectID) error {
	present, err := s.client.SMembers(ctx, s.typesKey(subject)).Result()
	if err != nil {
		return fmt.Errorf("list record types: %w", err)
	}
	keys := []string{s.typesKey(subject)}
	for _, rt := range present {
		keys = append(keys, s.recordsKey(subject, types.ResourceType(rt)))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete records for %s: %w", subject, err)
	}
	return nil
}

func (s *RedisStore) GetCounts(ctx context.Context, subject types.SubjectID) (map[types.ResourceType]int, error) {
	present, err := s.client.SMembers(ctx, s.typesKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("list record types: %w", err)
	}
	counts := make(map[types.ResourceType]int)
	for _, name := range present {
		rt := types.ResourceType(name)
		n, err := s.client.HLen(ctx, s.recordsKey(subject, rt)).Result()
		if err != nil {
			return nil, fmt.Errorf("count %s records: %w", rt, err)
		}
		if n > 0 {
			counts[rt] = int(n)
		}
	}
	return counts, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
