package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the underlying Redis call fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Filter narrows a ledger query. Zero-valued fields match everything;
// Success is a tri-state pointer so "only failures" is expressible.
type Filter struct {
	UserID   string
	Action   string
	Severity Severity
	IP       string
	Success  *bool
	From     time.Time
	To       time.Time
	Offset   int
	Limit    int
}

// Counts aggregates ledger totals per action and per severity.
type Counts struct {
	Total      int64
	ByAction   map[string]int64
	BySeverity map[Severity]int64
}

// Store is the Redis-backed audit ledger. Events are JSON records with a
// retention TTL, indexed by a time-ordered zset; aggregate hashes track
// totals per action and severity.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates an audit [Store]. retention bounds how long individual
// events stay queryable; aggregates survive event expiry.
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "aud"
	}
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}
	return &Store{redis: redisClient, prefix: prefix, retention: retention}
}

func (s *Store) eventKey(id string) string {
	return s.prefix + ":e:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + ":idx"
}

func (s *Store) actionAggKey() string {
	return s.prefix + ":agg:action"
}

func (s *Store) severityAggKey() string {
	return s.prefix + ":agg:severity"
}

// Append persists one event: record with retention TTL, index entry scored
// by timestamp, and aggregate increments, in a single transaction.
//
//	Performance: 4 Redis commands in one transaction.
func (s *Store) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	data, err := encodeEvent(event)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.eventKey(event.ID), data, s.retention)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(event.Timestamp.UnixNano()),
			Member: event.ID,
		})
		pipe.HIncrBy(ctx, s.actionAggKey(), event.Action, 1)
		pipe.HIncrBy(ctx, s.severityAggKey(), string(event.Severity), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Query returns matching events newest-first, plus the total match count
// before pagination. Expired index strays are skipped.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Event, int, error) {
	min, max := "-inf", "+inf"
	if !filter.From.IsZero() {
		min = fmt.Sprintf("%d", filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		max = fmt.Sprintf("%d", filter.To.UnixNano())
	}

	ids, err := s.redis.ZRevRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Event{}, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []Event{}, 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.eventKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	matched := make([]Event, 0, len(ids))
	for _, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		event, decErr := decodeEvent(data)
		if decErr != nil {
			continue
		}
		if filter.matches(event) {
			matched = append(matched, event)
		}
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return matched[start:end], total, nil
}

func (f Filter) matches(event Event) bool {
	if f.UserID != "" && event.UserID != f.UserID {
		return false
	}
	if f.Action != "" && event.Action != f.Action {
		return false
	}
	if f.Severity != "" && event.Severity != f.Severity {
		return false
	}
	if f.IP != "" && event.IP != f.IP {
		return false
	}
	if f.Success != nil && event.Success != *f.Success {
		return false
	}
	return true
}

// TotalCounts returns the lifetime aggregates per action and severity.
func (s *Store) TotalCounts(ctx context.Context) (Counts, error) {
	counts := Counts{
		ByAction:   map[string]int64{},
		BySeverity: map[Severity]int64{},
	}

	actions, err := s.redis.HGetAll(ctx, s.actionAggKey()).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for action, raw := range actions {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		counts.ByAction[action] = n
		counts.Total += n
	}

	severities, err := s.redis.HGetAll(ctx, s.severityAggKey()).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for severity, raw := range severities {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		counts.BySeverity[Severity(severity)] = n
	}

	return counts, nil
}

// CleanupExpired prunes index members whose event records have expired.
// Record keys expire through their own TTLs; the index zset does not.
//
// Returns the number of pruned index entries.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := s.redis.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, s.eventKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	stale := make([]interface{}, 0, len(ids))
	for i, cmd := range existsCmds {
		v, cmdErr := cmd.Result()
		if cmdErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if v == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.redis.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(stale), nil
}

// RedisSink persists events through a [Store]. Append failures are logged
// and swallowed; audit persistence never fails the operation that emitted
// the event.
type RedisSink struct {
	store *Store
}

func NewRedisSink(store *Store) *RedisSink {
	return &RedisSink{store: store}
}

func (s *RedisSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Append(ctx, event); err != nil {
		log.Print("authcore: audit append failed: ", err)
	}
}
