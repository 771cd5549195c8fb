package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/tokenmeter/pkg/usage"
)

// DefaultKeyPrefix namespaces Redis keys when none is configured.
const DefaultKeyPrefix = "tokenmeter"

const (
	indexDay      = "day"
	indexAgent    = "agent"
	indexIncident = "incident"

	redisPageSize = 100
)

// RedisStore keeps one JSON value per record, expired natively with
// EXPIREAT, plus sorted-set indexes scored by timestamp in milliseconds.
// Index members whose record has expired are pruned lazily on read.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	opts   options
	logger *slog.Logger
}

// NewRedisStore creates a store on client. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		opts:   newOptions(opts),
		logger: slog.Default().With("component", "store.redis"),
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return usage.NewStorageError(BackendRedis, "ping", err)
	}
	return nil
}

func (s *RedisStore) recordKey(member string) string {
	return s.prefix + ":record:" + member
}

func (s *RedisStore) indexKey(kind, id string) string {
	return s.prefix + ":idx:" + kind + ":" + id
}

// Put implements usage.Writer.
func (s *RedisStore) Put(ctx context.Context, rec *usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.queuePut(ctx, pipe, rec, s.opts.expiresAt())
	})
	if err != nil {
		return usage.NewStorageError(BackendRedis, "put", err)
	}
	return nil
}

// BatchPut implements usage.Writer. Each chunk is one MULTI/EXEC
// transaction.
func (s *RedisStore) BatchPut(ctx context.Context, records []*usage.Record) (*usage.BatchResult, error) {
	result := &usage.BatchResult{}
	valid := splitValid(records, result)
	expires := s.opts.expiresAt()

	var errs []error
	for _, batch := range chunk(valid, s.opts.batchSize) {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, rec := range batch {
				if err := s.queuePut(ctx, pipe, rec, expires); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			result.Reject(batch...)
			errs = append(errs, usage.NewStorageError(BackendRedis, "batch_put", err))
			continue
		}
		result.Succeeded += len(batch)
	}
	return result, errors.Join(errs...)
}

func (s *RedisStore) queuePut(ctx context.Context, pipe redis.Pipeliner, rec *usage.Record, expires int64) error {
	it := newItem(rec, expires)
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	member := it.key()
	key := s.recordKey(member)
	score := float64(rec.Timestamp.UnixMilli())

	pipe.Set(ctx, key, data, 0)
	pipe.ExpireAt(ctx, key, time.Unix(expires, 0))
	pipe.ZAdd(ctx, s.indexKey(indexDay, it.DatePartition), redis.Z{Score: score, Member: member})
	pipe.ZAdd(ctx, s.indexKey(indexAgent, it.AgentID), redis.Z{Score: score, Member: member})
	if it.IncidentID != "" {
		pipe.ZAdd(ctx, s.indexKey(indexIncident, it.IncidentID), redis.Z{Score: score, Member: member})
	}
	return nil
}

// ByAgent implements usage.Reader.
func (s *RedisStore) ByAgent(ctx context.Context, agentID string, dates *usage.DateRange, limit int) ([]*usage.Record, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if dates != nil {
		start, end := dates.Bounds()
		by.Min = strconv.FormatInt(start.UnixMilli(), 10)
		by.Max = strconv.FormatInt(end.UnixMilli(), 10)
	}
	return s.scanIndex(ctx, s.indexKey(indexAgent, agentID), by, limit, nil)
}

// ByIncident implements usage.Reader.
func (s *RedisStore) ByIncident(ctx context.Context, incidentID string, limit int) ([]*usage.Record, error) {
	return s.scanIndex(ctx, s.indexKey(indexIncident, incidentID), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}, limit, nil)
}

// ByDateRange implements usage.Reader. Day indexes are read newest first.
func (s *RedisStore) ByDateRange(ctx context.Context, start, end time.Time, agentID string, limit int) ([]*usage.Record, error) {
	var match func(*usage.Record) bool
	if agentID != "" {
		match = func(r *usage.Record) bool { return r.AgentID == agentID }
	}

	days := usage.NewDateRange(start, end).Days()
	var all []*usage.Record
	for i := len(days) - 1; i >= 0; i-- {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(all)
			if remaining <= 0 {
				break
			}
		}
		records, err := s.scanIndex(ctx, s.indexKey(indexDay, days[i]), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}, remaining, match)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return truncate(all, limit), nil
}

// scanIndex pages through an index from the highest score down, loading
// records until limit matching records are found.
func (s *RedisStore) scanIndex(ctx context.Context, index string, by *redis.ZRangeBy, limit int, match func(*usage.Record) bool) ([]*usage.Record, error) {
	var records []*usage.Record
	var offset int64

	for {
		page := *by
		page.Offset = offset
		page.Count = redisPageSize

		members, err := s.client.ZRevRangeByScore(ctx, index, &page).Result()
		if err != nil {
			return nil, usage.NewQueryError(index, err)
		}
		if len(members) == 0 {
			break
		}
		offset += int64(len(members))

		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = s.recordKey(m)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, usage.NewQueryError(index, err)
		}

		var dangling []any
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				dangling = append(dangling, members[i])
				continue
			}
			var it item
			if err := json.Unmarshal([]byte(raw), &it); err != nil {
				return nil, usage.NewStorageError(BackendRedis, "decode", err)
			}
			rec, err := it.record()
			if err != nil {
				return nil, usage.NewStorageError(BackendRedis, "decode", err)
			}
			if match == nil || match(rec) {
				records = append(records, rec)
			}
		}

		if len(dangling) > 0 {
			if err := s.client.ZRem(ctx, index, dangling...).Err(); err != nil {
				s.logger.WarnContext(ctx, "failed to prune index", "index", index, "error", err)
			} else {
				offset -= int64(len(dangling))
			}
		}

		if (limit > 0 && len(records) >= limit) || len(members) < redisPageSize {
			break
		}
	}
	return truncate(records, limit), nil
}

// PurgeExpired removes index entries whose record has been reaped by
// EXPIREAT and returns how many were removed.
func (s *RedisStore) PurgeExpired(ctx context.Context) (int64, error) {
	var removed int64
	iter := s.client.Scan(ctx, 0, s.prefix+":idx:*", 100).Iterator()
	for iter.Next(ctx) {
		index := iter.Val()
		members, err := s.client.ZRange(ctx, index, 0, -1).Result()
		if err != nil {
			return removed, usage.NewStorageError(BackendRedis, "purge", err)
		}
		for _, batch := range chunk(members, redisPageSize) {
			keys := make([]string, len(batch))
			for i, m := range batch {
				keys[i] = s.recordKey(m)
			}
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return removed, usage.NewStorageError(BackendRedis, "purge", err)
			}
			var dangling []any
			for i, v := range values {
				if v == nil {
					dangling = append(dangling, batch[i])
				}
			}
			if len(dangling) == 0 {
				continue
			}
			n, err := s.client.ZRem(ctx, index, dangling...).Result()
			if err != nil {
				return removed, usage.NewStorageError(BackendRedis, "purge", err)
			}
			removed += n
		}
	}
	if err := iter.Err(); err != nil {
		return removed, usage.NewStorageError(BackendRedis, "purge", err)
	}

	s.logger.InfoContext(ctx, "pruned expired index entries", "deleted_count", removed)
	return removed, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
