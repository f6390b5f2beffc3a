package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/fluxnode/pkg/api"
)

// RedisStore is a RegistryStore and TraceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>rec:<task_id>      => JSON-encoded OptimizationRecord
//	<prefix>idx:all            => SET of all task ids with a record
//	<prefix>idx:sig:<hash>     => SET of task ids for a signature hash
//	<prefix>traces:<task_id>   => LIST of JSON-encoded TraceEntry, oldest first
//
// Index entries may go stale when a record's signature hash changes;
// ListRecords filters on the decoded payload, so stale entries are harmless.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ RegistryStore = (*RedisStore)(nil)
	_ TraceStore    = (*RedisStore)(nil)
)

// NewRedisStore creates a RedisStore. prefix defaults to "fluxnode:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fluxnode:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyRecord(taskID string) string { return s.prefix + "rec:" + taskID }
func (s *RedisStore) keyAll() string                 { return s.prefix + "idx:all" }
func (s *RedisStore) keySignature(h string) string   { return s.prefix + "idx:sig:" + h }
func (s *RedisStore) keyTraces(taskID string) string { return s.prefix + "traces:" + taskID }

func (s *RedisStore) SaveRecord(ctx context.Context, rec api.OptimizationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRecord(rec.TaskID), data, 0)
	pipe.SAdd(ctx, s.keyAll(), rec.TaskID)
	pipe.SAdd(ctx, s.keySignature(rec.SignatureHash), rec.TaskID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetRecord(ctx context.Context, taskID string) (api.OptimizationRecord, error) {
	data, err := s.client.Get(ctx, s.keyRecord(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return api.OptimizationRecord{}, ErrRecordNotFound
		}
		return api.OptimizationRecord{}, err
	}
	var rec api.OptimizationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return api.OptimizationRecord{}, err
	}
	return rec, nil
}

// ListRecords returns matching records ordered by task id.
func (s *RedisStore) ListRecords(ctx context.Context, filter RegistryFilter) ([]api.OptimizationRecord, error) {
	key := s.keyAll()
	if filter.SignatureHash != "" {
		key = s.keySignature(filter.SignatureHash)
	}
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	var out []api.OptimizationRecord
	for _, id := range ids {
		rec, err := s.GetRecord(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *RedisStore) DeleteRecord(ctx context.Context, taskID string) error {
	rec, err := s.GetRecord(ctx, taskID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyRecord(taskID))
	pipe.SRem(ctx, s.keyAll(), taskID)
	pipe.SRem(ctx, s.keySignature(rec.SignatureHash), taskID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AppendTraces(ctx context.Context, entries []api.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, s.keyTraces(e.TaskID), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListTraces(ctx context.Context, taskID string) ([]api.TraceEntry, error) {
	items, err := s.client.LRange(ctx, s.keyTraces(taskID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.TraceEntry, 0, len(items))
	for _, item := range items {
		var e api.TraceEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
