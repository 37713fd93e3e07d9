package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lexiconary/authcore/internal"
)

// ErrRedisUnavailable is returned when the underlying Redis call fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrTokenNotFound is returned when no ledger record matches the lookup.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrTokenExpired is returned when the matched record's lifetime has passed.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrTokenCorrupt is returned when a stored record blob fails to decode.
var ErrTokenCorrupt = errors.New("refresh token record corrupt")

// ErrRotateConflict is returned when a concurrent rotation changed the record
// between read and compare-and-swap. The caller must re-read the record.
var ErrRotateConflict = errors.New("refresh token rotation conflict")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// maxChainWalk bounds the iterative rotation-chain traversal. A chain longer
// than this indicates corrupted links.
const maxChainWalk = 1000

const rotateScript = `
local old = redis.call("GET", KEYS[1])
if not old then
  return {0}
end
if old ~= ARGV[1] then
  return {2, old}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return {1}
end

redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
redis.call("SET", KEYS[2], ARGV[3], "PX", tonumber(ARGV[5]))
redis.call("SET", KEYS[3], ARGV[4], "PX", tonumber(ARGV[5]))
redis.call("SADD", KEYS[4], ARGV[4])
return {3}
`

var rotateLua = redis.NewScript(rotateScript)

// Store is the Redis-backed refresh-token ledger.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a ledger [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rt"
	}
	return &Store{redis: redis, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":t:" + id
}

func (s *Store) hashKey(hash string) string {
	return s.prefix + ":h:" + hash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// CreateParams carries the inputs for minting a new ledger record.
type CreateParams struct {
	UserID     string
	TTL        time.Duration
	IP         string
	UserAgent  string
	ReplacesID string
}

// Create mints a new refresh token: generates the raw value, persists its
// record and hash index, and adds the ID to the user's set. The raw value is
// returned exactly once and never stored.
//
//	Performance: 3 Redis commands in one transaction.
func (s *Store) Create(ctx context.Context, p CreateParams) (string, *RefreshToken, error) {
	raw, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	rec := &RefreshToken{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		TokenHash:  internal.HashRefreshSecret(raw),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(p.TTL).Unix(),
		ReplacesID: p.ReplacesID,
		IP:         p.IP,
		UserAgent:  p.UserAgent,
	}

	data, err := Encode(rec)
	if err != nil {
		return "", nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), data, p.TTL)
		pipe.Set(ctx, s.hashKey(rec.TokenHash), rec.ID, p.TTL)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return raw, rec, nil
}

// FindByHash resolves a token-hash digest to its ledger record. Revoked
// records are still returned; the caller inspects the revocation reason.
//
//	Performance: 2 Redis GETs.
func (s *Store) FindByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	id, err := s.redis.Get(ctx, s.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// FindByID retrieves a ledger record by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	data, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrTokenCorrupt, err)
	}
	return rec, nil
}

// Touch updates a record's last-used timestamp, preserving its TTL.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	key := s.recordKey(id)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return errors.Join(ErrTokenCorrupt, err)
	}
	rec.LastUsedAt = at.Unix()

	return s.writeBack(ctx, key, rec)
}

// Rotate atomically replaces old with a freshly minted successor. The old
// record is compare-and-swapped to its revoked form (reason "rotated",
// ReplacedByID set) while the successor record and hash index are written in
// the same script.
//
// Rotate returns [ErrRotateConflict] when a concurrent rotation modified the
// old record first; exactly one concurrent caller succeeds.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (s *Store) Rotate(ctx context.Context, old *RefreshToken, p CreateParams) (string, *RefreshToken, error) {
	raw, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	next := &RefreshToken{
		ID:         uuid.NewString(),
		UserID:     old.UserID,
		TokenHash:  internal.HashRefreshSecret(raw),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(p.TTL).Unix(),
		ReplacesID: old.ID,
		IP:         p.IP,
		UserAgent:  p.UserAgent,
	}

	expected, err := Encode(old)
	if err != nil {
		return "", nil, err
	}

	revoked := *old
	revoked.Revoked = true
	revoked.RevokedAt = now.Unix()
	revoked.RevokedReason = ReasonRotated
	revoked.ReplacedByID = next.ID
	revoked.LastUsedAt = now.Unix()
	revokedBlob, err := Encode(&revoked)
	if err != nil {
		return "", nil, err
	}

	nextBlob, err := Encode(next)
	if err != nil {
		return "", nil, err
	}

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{
			s.recordKey(old.ID),
			s.recordKey(next.ID),
			s.hashKey(next.TokenHash),
			s.userKey(old.UserID),
		},
		expected,
		revokedBlob,
		nextBlob,
		next.ID,
		p.TTL.Milliseconds(),
	).Result()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return "", nil, ErrTokenNotFound
	case rotateStatusExpired:
		return "", nil, ErrTokenExpired
	case rotateStatusMismatch:
		return "", nil, ErrRotateConflict
	case rotateStatusRotated:
		return raw, next, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// RevokeByID marks a record revoked with the given reason, preserving its
// TTL. Revoking an already-revoked record keeps the original reason.
func (s *Store) RevokeByID(ctx context.Context, id, reason string) error {
	key := s.recordKey(id)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return errors.Join(ErrTokenCorrupt, err)
	}
	if rec.Revoked {
		return nil
	}

	rec.Revoked = true
	rec.RevokedAt = time.Now().Unix()
	rec.RevokedReason = reason

	return s.writeBack(ctx, key, rec)
}

// RevokeAllForUser marks every live record in the user's set revoked with the
// given reason and reports how many records changed state.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		err := s.RevokeByID(ctx, id, reason)
		if errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// ChainIDs walks a record's rotation chain in both directions and returns
// every reachable ID, starting record included. The walk is iterative and
// bounded by maxChainWalk.
func (s *Store) ChainIDs(ctx context.Context, id string) ([]string, error) {
	seen := map[string]bool{}
	chain := []string{}

	cursor := id
	for steps := 0; cursor != "" && !seen[cursor] && steps < maxChainWalk; steps++ {
		seen[cursor] = true
		chain = append(chain, cursor)

		rec, err := s.FindByID(ctx, cursor)
		if errors.Is(err, ErrTokenNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		cursor = rec.ReplacesID
	}

	// Forward from the starting record.
	rec, err := s.FindByID(ctx, id)
	if errors.Is(err, ErrTokenNotFound) {
		return chain, nil
	}
	if err != nil {
		return nil, err
	}
	cursor = rec.ReplacedByID
	for steps := 0; cursor != "" && !seen[cursor] && steps < maxChainWalk; steps++ {
		seen[cursor] = true
		chain = append(chain, cursor)

		next, err := s.FindByID(ctx, cursor)
		if errors.Is(err, ErrTokenNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		cursor = next.ReplacedByID
	}

	return chain, nil
}

// ActiveIDsForUser returns the tracked record IDs for a user. The set may
// contain IDs whose records have already expired; CleanupExpired prunes them.
func (s *Store) ActiveIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// CleanupExpired removes user-set members whose record keys have expired.
// Record and hash-index keys expire through their own TTLs; this sweep only
// prunes the stray set entries left behind.
//
// Returns the number of pruned entries.
func (s *Store) CleanupExpired(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
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
		existsCmds[i] = pipe.Exists(ctx, s.recordKey(id))
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

	if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(stale), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) writeBack(ctx context.Context, key string, rec *RefreshToken) error {
	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return ErrTokenExpired
	}

	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, data, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
