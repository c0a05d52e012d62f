package attendance

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Reconciler backfills Absent records for roster members with no
// check-in once a session closes. It is safe to re-run: every insert
// goes through create-if-absent, and an insert losing a race to a
// genuine check-in is silently skipped so the real status always wins
// over the synthetic Absent.
type Reconciler struct {
	store  Store
	roster RosterProvider
	clock  Clock
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, roster RosterProvider, clock Clock) *Reconciler {
	return &Reconciler{store: store, roster: roster, clock: clock}
}

// ReconcileAbsences writes Absent records for every enrolled student
// without a record for the session and returns how many it wrote.
// Callers should close the session first; running against an Active
// session is allowed but the result goes stale as check-ins keep
// landing.
func (r *Reconciler) ReconcileAbsences(ctx context.Context, sessionID string) (int, error) {
	s, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	roster, err := r.roster.GetEnrolledStudents(ctx, s.ClassID)
	if err != nil {
		return 0, err
	}
	recorded, err := r.store.RecordedStudents(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	written := 0
	for studentID := range roster {
		if _, has := recorded[studentID]; has {
			continue
		}
		rec := Record{
			SessionID:  sessionID,
			StudentID:  studentID,
			Status:     StatusAbsent,
			RecordedAt: now,
		}
		inserted, err := r.store.InsertRecord(ctx, rec)
		if err != nil {
			return written, err
		}
		if inserted {
			written++
			absencesBackfilled.Inc()
		}
	}

	if written > 0 {
		logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"absent":     written,
		}).Info("absences backfilled")
	}
	return written, nil
}
