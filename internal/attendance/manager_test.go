package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpenSessionUnknownClass(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.mgr.OpenSession(context.Background(), "missing"); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("expected ErrClassNotFound, got %v", err)
	}
}

func TestOpenSessionOneActivePerClass(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.State != StateActive {
		t.Fatalf("expected active state, got %s", s.State)
	}
	if s.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if !s.ExpiresAt.Equal(s.OpenedAt.Add(15 * time.Minute)) {
		t.Fatalf("expected 15m window, got %s", s.ExpiresAt.Sub(s.OpenedAt))
	}

	if _, err := e.mgr.OpenSession(ctx, "cs101"); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	if _, err := e.mgr.CloseSession(ctx, s.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.mgr.OpenSession(ctx, "cs101"); err != nil {
		t.Fatalf("open after close: %v", err)
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice"); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	backfilled, err := e.mgr.CloseSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if backfilled != 2 {
		t.Fatalf("expected 2 backfilled absences, got %d", backfilled)
	}

	// Second close is a no-op success, never an error.
	backfilled, err = e.mgr.CloseSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if backfilled != 0 {
		t.Fatalf("expected no new records on second close, got %d", backfilled)
	}

	got, err := e.store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateClosed {
		t.Fatalf("expected closed state, got %s", got.State)
	}
}

func TestCloseSessionUnknown(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.mgr.CloseSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestTokensUniqueAcrossSessions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 25; i++ {
		s, err := e.mgr.OpenSession(ctx, "cs101")
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if _, dup := seen[s.Token]; dup {
			t.Fatalf("token reused: %s", s.Token)
		}
		seen[s.Token] = struct{}{}
		if _, err := e.mgr.CloseSession(ctx, s.ID); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func TestLazySweepOnSessionList(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e.clock.Advance(16 * time.Minute)

	sessions, err := e.mgr.ListClassSessions(ctx, "cs101")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].State != StateClosed {
		t.Fatalf("expected sweep to close session, got %s", sessions[0].State)
	}

	records, err := e.store.ListSessionRecords(ctx, s.ID)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 absent records after sweep, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != StatusAbsent {
			t.Fatalf("expected absent, got %s for %s", rec.Status, rec.StudentID)
		}
	}
}

func TestStudentAttendanceSweepsExpiredSessions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.mgr.OpenSession(ctx, "cs101"); err != nil {
		t.Fatalf("open: %v", err)
	}
	e.clock.Advance(20 * time.Minute)

	records, err := e.mgr.ListStudentAttendance(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Status != StatusAbsent || records[0].CheckInAt != nil {
		t.Fatalf("expected synthetic absent record, got %+v", records[0])
	}
}

func TestSessionAttendanceSweepsOnRead(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "bob"); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	e.clock.Advance(15 * time.Minute)

	records, err := e.mgr.ListSessionAttendance(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	byStudent := make(map[string]Status)
	for _, rec := range records {
		byStudent[rec.StudentID] = rec.Status
	}
	if byStudent["bob"] != StatusPresent {
		t.Fatalf("expected bob present, got %s", byStudent["bob"])
	}
	if byStudent["alice"] != StatusAbsent || byStudent["carol"] != StatusAbsent {
		t.Fatalf("expected alice and carol absent, got %v", byStudent)
	}
}
