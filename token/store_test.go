package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lexiconary/authcore/internal"
)

func newTokenStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "rt"), mr, rdb
}

func TestCreateAndFindByHash(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	raw, rec, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if raw == "" {
		t.Fatal("expected a raw token value")
	}
	if rec.TokenHash == raw {
		t.Fatal("raw token must not equal its stored hash")
	}
	if rec.TokenHash != internal.HashRefreshSecret(raw) {
		t.Fatal("stored hash does not match the raw token digest")
	}

	found, err := store.FindByHash(ctx, internal.HashRefreshSecret(raw))
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if found.ID != rec.ID || found.UserID != "u-1" {
		t.Fatalf("unexpected record: %+v", found)
	}
	if found.IP != "203.0.113.7" {
		t.Fatalf("expected IP to be persisted, got %q", found.IP)
	}
}

func TestFindByHashUnknownToken(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)

	_, err := store.FindByHash(context.Background(), internal.HashRefreshSecret("no-such-token"))
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRotateLinksChainAndRevokesOld(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	_, first, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rawNext, next, err := store.Rotate(ctx, first, CreateParams{TTL: time.Hour})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.ReplacesID != first.ID {
		t.Fatalf("expected successor to link back to %s, got %s", first.ID, next.ReplacesID)
	}

	old, err := store.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("find old: %v", err)
	}
	if !old.Revoked || old.RevokedReason != ReasonRotated {
		t.Fatalf("expected old record revoked as rotated, got %+v", old)
	}
	if old.ReplacedByID != next.ID {
		t.Fatalf("expected old record to point at %s, got %s", next.ID, old.ReplacedByID)
	}

	// The successor is findable by its raw token's digest.
	found, err := store.FindByHash(ctx, internal.HashRefreshSecret(rawNext))
	if err != nil {
		t.Fatalf("find successor: %v", err)
	}
	if found.ID != next.ID {
		t.Fatalf("expected successor %s, got %s", next.ID, found.ID)
	}
}

func TestRotateConflictExactlyOneWinner(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	_, rec, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Both rotations start from the same snapshot; the second CAS must fail.
	snapshot := *rec
	if _, _, err := store.Rotate(ctx, rec, CreateParams{TTL: time.Hour}); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	_, _, err = store.Rotate(ctx, &snapshot, CreateParams{TTL: time.Hour})
	if !errors.Is(err, ErrRotateConflict) {
		t.Fatalf("expected ErrRotateConflict, got %v", err)
	}

	// The loser re-reads and finds the record revoked as rotated.
	current, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if !current.Revoked || current.RevokedReason != ReasonRotated {
		t.Fatalf("expected rotated record after conflict, got %+v", current)
	}
}

func TestRotateSentinelErrors(t *testing.T) {
	store, _, rdb := newTokenStoreTest(t)
	ctx := context.Background()

	missing := &RefreshToken{ID: "missing", UserID: "u-1"}
	_, _, err := store.Rotate(ctx, missing, CreateParams{TTL: time.Hour})
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	// Corrupt blob never matches the expected encoding.
	if err := rdb.Set(ctx, store.recordKey("corrupt"), []byte("bad"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	corrupt := &RefreshToken{ID: "corrupt", UserID: "u-1"}
	_, _, err = store.Rotate(ctx, corrupt, CreateParams{TTL: time.Hour})
	if !errors.Is(err, ErrRotateConflict) {
		t.Fatalf("expected ErrRotateConflict for corrupt blob, got %v", err)
	}
}

func TestRevokeByIDIdempotentKeepsFirstReason(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	_, rec, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.RevokeByID(ctx, rec.ID, ReasonLogout); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := store.RevokeByID(ctx, rec.ID, ReasonAdminRevoked); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	current, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if current.RevokedReason != ReasonLogout {
		t.Fatalf("expected first reason to stick, got %q", current.RevokedReason)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, _, err := store.Create(ctx, CreateParams{UserID: "u-2", TTL: time.Hour}); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	revoked, err := store.RevokeAllForUser(ctx, "u-1", ReasonReuseDetected)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revocations, got %d", revoked)
	}

	ids, err := store.ActiveIDsForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	for _, id := range ids {
		rec, err := store.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("find %s: %v", id, err)
		}
		if !rec.Revoked || rec.RevokedReason != ReasonReuseDetected {
			t.Fatalf("expected record %s revoked for reuse, got %+v", id, rec)
		}
	}

	// The other user's token is untouched.
	otherIDs, err := store.ActiveIDsForUser(ctx, "u-2")
	if err != nil {
		t.Fatalf("active ids u-2: %v", err)
	}
	if len(otherIDs) != 1 {
		t.Fatalf("expected 1 token for u-2, got %d", len(otherIDs))
	}
	other, err := store.FindByID(ctx, otherIDs[0])
	if err != nil {
		t.Fatalf("find u-2 token: %v", err)
	}
	if other.Revoked {
		t.Fatal("expected u-2 token to remain live")
	}
}

func TestChainIDsWalksBothDirections(t *testing.T) {
	store, _, _ := newTokenStoreTest(t)
	ctx := context.Background()

	_, rec, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ids := []string{rec.ID}
	current := rec
	for i := 0; i < 4; i++ {
		_, next, err := store.Rotate(ctx, current, CreateParams{TTL: time.Hour})
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
		ids = append(ids, next.ID)
		current = next
	}

	// Walk from the middle of the chain; every link must be reachable.
	chain, err := store.ChainIDs(ctx, ids[2])
	if err != nil {
		t.Fatalf("chain ids: %v", err)
	}
	if len(chain) != len(ids) {
		t.Fatalf("expected %d chain members, got %d: %v", len(ids), len(chain), chain)
	}
	members := map[string]bool{}
	for _, id := range chain {
		members[id] = true
	}
	for _, id := range ids {
		if !members[id] {
			t.Fatalf("chain missing %s", id)
		}
	}
}

func TestCleanupExpiredPrunesStaleSetMembers(t *testing.T) {
	store, mr, _ := newTokenStoreTest(t)
	ctx := context.Background()

	_, short, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Minute})
	if err != nil {
		t.Fatalf("create short: %v", err)
	}
	if _, _, err := store.Create(ctx, CreateParams{UserID: "u-1", TTL: time.Hour}); err != nil {
		t.Fatalf("create long: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	pruned, err := store.CleanupExpired(ctx, "u-1")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", pruned)
	}

	ids, err := store.ActiveIDsForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 remaining id, got %v", ids)
	}
	if ids[0] == short.ID {
		t.Fatal("expected the expired id to be pruned")
	}
}
