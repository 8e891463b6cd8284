package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPut_Get_MarkCompleted(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()

	rec, err := s.Put(ctx, "t1", "tok-abc", "u1", "hash-1")
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", rec.Status)
	}
	if rec.ExpiresAt <= rec.CreatedAtUnix {
		t.Fatalf("expiresAt must be after createdAt")
	}

	// second create under a live PENDING token loses the race
	if _, err := s.Put(ctx, "t1", "tok-abc", "u1", "hash-1"); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}

	got, err := s.Get(ctx, "t1", "tok-abc")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.Status != StatusPending {
		t.Fatalf("expected PENDING record, got %+v", got)
	}
	if got.TenantID != "t1" || got.UserID != "u1" || got.RequestHash != "hash-1" {
		t.Fatalf("record fields mismatch: %+v", got)
	}

	if err := s.MarkCompleted(ctx, "t1", "tok-abc", "order-123", `{"ok":true}`, 201); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}

	got, err = s.Get(ctx, "t1", "tok-abc")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != StatusCompleted || got.OrderID != "order-123" {
		t.Fatalf("unexpected record after completion: %+v", got)
	}
	if got.ResponseBody != `{"ok":true}` || got.ResponseStatus != 201 {
		t.Fatalf("snapshot not stored: %+v", got)
	}
}

func TestSettle_IsCompareAndSwap(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.MarkCompleted(ctx, "t1", "tok-1", "o1", "{}", 201); err != nil {
		t.Fatalf("first settle error: %v", err)
	}

	// the PENDING -> terminal transition happens at most once
	if err := s.MarkCompleted(ctx, "t1", "tok-1", "o2", "{}", 201); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second complete, got %v", err)
	}
	if err := s.MarkFailed(ctx, "t1", "tok-1", "late failure"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on fail-after-complete, got %v", err)
	}

	got, _ := s.Get(ctx, "t1", "tok-1")
	if got.OrderID != "o1" {
		t.Fatalf("losing settle must not overwrite, got order %s", got.OrderID)
	}
}

func TestPut_AllowsRetryAfterFailure(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.MarkFailed(ctx, "t1", "tok-1", "saga failed"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}

	// a FAILED token permits a retry under the same key
	rec, err := s.Put(ctx, "t1", "tok-1", "u1", "h1")
	if err != nil {
		t.Fatalf("expected retry to claim key, got %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("expected fresh PENDING, got %s", rec.Status)
	}
}

func TestPut_AllowsTakeoverOfExpiredPending(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	s.nowFunc = func() time.Time { return past }
	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	// owner presumed dead once expires_at passed; a new caller takes over
	s.nowFunc = time.Now
	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("expected takeover of expired pending token, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	// same token value under another tenant must not collide
	if _, err := s.Put(ctx, "t2", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("expected tenant-scoped key, got %v", err)
	}

	got, err := s.Get(ctx, "t2", "tok-1")
	if err != nil || got == nil {
		t.Fatalf("Get t2 failed: %v %v", got, err)
	}
	if got.TenantID != "t2" {
		t.Fatalf("wrong tenant: %s", got.TenantID)
	}
}

func TestFindCompletedByUserAndHash(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, "t1", "tok-1", "u1", "h1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	// pending tokens are not content duplicates
	rec, err := s.FindCompletedByUserAndHash(ctx, "t1", "u1", "h1")
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no completed token yet, got %+v", rec)
	}

	if err := s.MarkCompleted(ctx, "t1", "tok-1", "o1", "{}", 201); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}

	rec, err = s.FindCompletedByUserAndHash(ctx, "t1", "u1", "h1")
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if rec == nil || rec.OrderID != "o1" {
		t.Fatalf("expected completed token for o1, got %+v", rec)
	}

	// different hash, different user, different tenant: no match
	for _, q := range [][3]string{{"t1", "u1", "h2"}, {"t1", "u2", "h1"}, {"t2", "u1", "h1"}} {
		rec, err := s.FindCompletedByUserAndHash(ctx, q[0], q[1], q[2])
		if err != nil {
			t.Fatalf("query error: %v", err)
		}
		if rec != nil {
			t.Fatalf("unexpected match for %v: %+v", q, rec)
		}
	}
}

func TestCountActiveSince(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if _, err := s.Put(ctx, "t1", tok, "u1", "h-"+tok); err != nil {
			t.Fatalf("Put %s error: %v", tok, err)
		}
	}
	// settled tokens are no longer active
	if err := s.MarkCompleted(ctx, "t1", "tok-3", "o3", "{}", 201); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	// other user's tokens don't count
	if _, err := s.Put(ctx, "t1", "tok-4", "u2", "h4"); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	n, err := s.CountActiveSince(ctx, "t1", "u1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 active tokens, got %d", n)
	}

	// a window starting in the future matches nothing
	n, err = s.CountActiveSince(ctx, "t1", "u1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 active tokens, got %d", n)
	}
}
