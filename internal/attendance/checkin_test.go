package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubmitCheckInInvalidToken(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.proc.SubmitCheckIn(context.Background(), "bogus", "alice"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSubmitCheckInNotEnrolled(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "mallory"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
	records, _ := e.store.ListSessionRecords(ctx, s.ID)
	if len(records) != 0 {
		t.Fatalf("no record should exist on failure, got %d", len(records))
	}
}

func TestSubmitCheckInExpiredByDeadline(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Deadline passed but the Closed transition not yet persisted: the
	// liveness predicate, not raw state, gates acceptance.
	e.clock.Set(s.ExpiresAt)
	got, _ := e.store.GetSession(ctx, s.ID)
	if got.State != StateActive {
		t.Fatalf("precondition: session should still be marked active")
	}
	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSubmitCheckInClosedSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := e.mgr.CloseSession(ctx, s.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSubmitCheckInExactlyOnceConcurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyRecorded):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 success, got %d", successes)
	}
	if duplicates != callers-1 {
		t.Fatalf("expected %d duplicates, got %d", callers-1, duplicates)
	}

	records, _ := e.store.ListSessionRecords(ctx, s.ID)
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
}

// Scenario from the class schedule: official start 09:00, 15 minute
// late threshold, 15 minute window. A session opened at 09:05:30 sees
// a 09:06 check-in as Present, a 09:20 check-in as Late, and the
// student who never scans ends up Absent after closure.
func TestCheckInClassificationScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.clock.Set(classStart.Add(5*time.Minute + 30*time.Second))
	s, err := e.mgr.OpenSession(ctx, "cs101")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e.clock.Set(classStart.Add(6 * time.Minute))
	recA, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice")
	if err != nil {
		t.Fatalf("alice check-in: %v", err)
	}
	if recA.Status != StatusPresent {
		t.Fatalf("expected alice present, got %s", recA.Status)
	}
	if recA.CheckInAt == nil || !recA.CheckInAt.Equal(e.clock.Now()) {
		t.Fatalf("expected check-in timestamp %v, got %v", e.clock.Now(), recA.CheckInAt)
	}

	e.clock.Set(classStart.Add(20 * time.Minute))
	recB, err := e.proc.SubmitCheckIn(ctx, s.Token, "bob")
	if err != nil {
		t.Fatalf("bob check-in: %v", err)
	}
	if recB.Status != StatusLate {
		t.Fatalf("expected bob late, got %s", recB.Status)
	}

	e.clock.Set(s.OpenedAt.Add(15 * time.Minute))
	backfilled, err := e.mgr.CloseSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if backfilled != 1 {
		t.Fatalf("expected carol backfilled, got %d", backfilled)
	}

	if _, err := e.proc.SubmitCheckIn(ctx, s.Token, "alice"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after closure, got %v", err)
	}

	again, err := e.rec.ReconcileAbsences(ctx, s.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if again != 0 {
		t.Fatalf("re-run wrote %d records, expected 0", again)
	}

	records, _ := e.store.ListSessionRecords(ctx, s.ID)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
}
