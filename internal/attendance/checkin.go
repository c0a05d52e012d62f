package attendance

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Processor validates and records a single student's check-in against
// an active session. The exactly-once guarantee rides entirely on the
// store's create-if-absent insert, never on a read-then-write.
type Processor struct {
	store  Store
	roster RosterProvider
	clock  Clock
}

// NewProcessor creates a processor.
func NewProcessor(store Store, roster RosterProvider, clock Clock) *Processor {
	return &Processor{store: store, roster: roster, clock: clock}
}

// SubmitCheckIn records one student's check-in for the session the
// token identifies. Failure modes, in validation order: ErrInvalidToken,
// ErrSessionExpired (covers both explicit closure and natural expiry),
// ErrNotEnrolled, ErrAlreadyRecorded. No record is created on any
// failure path.
func (p *Processor) SubmitCheckIn(ctx context.Context, token, studentID string) (Record, error) {
	now := p.clock.Now()

	s, err := p.store.GetSessionByToken(ctx, token)
	if err != nil {
		checkinRejections.WithLabelValues("invalid_token").Inc()
		return Record{}, err
	}

	if !s.IsLive(now) {
		checkinRejections.WithLabelValues("expired").Inc()
		return Record{}, ErrSessionExpired
	}

	roster, err := p.roster.GetEnrolledStudents(ctx, s.ClassID)
	if err != nil {
		return Record{}, err
	}
	if _, enrolled := roster[studentID]; !enrolled {
		checkinRejections.WithLabelValues("not_enrolled").Inc()
		return Record{}, ErrNotEnrolled
	}

	class, err := p.store.GetClass(ctx, s.ClassID)
	if err != nil {
		return Record{}, err
	}

	checkInAt := now
	rec := Record{
		SessionID:  s.ID,
		StudentID:  studentID,
		Status:     classify(now, class, s.LateThreshold),
		CheckInAt:  &checkInAt,
		RecordedAt: now,
	}
	inserted, err := p.store.InsertRecord(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if !inserted {
		checkinRejections.WithLabelValues("duplicate").Inc()
		return Record{}, ErrAlreadyRecorded
	}

	checkins.WithLabelValues(string(rec.Status)).Inc()
	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"student_id": studentID,
		"status":     rec.Status,
	}).Info("check-in recorded")
	return rec, nil
}
