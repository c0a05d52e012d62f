package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rollcall/internal/queue"
)

// DefaultWindow is how long a session accepts check-ins after opening.
const DefaultWindow = 15 * time.Minute

// DefaultLateThreshold is how long after the class's official start a
// check-in still counts as Present.
const DefaultLateThreshold = 15 * time.Minute

// Manager owns session creation and the Active→Closed transition. Both
// closure triggers, the explicit close and the lazy expiry sweep the
// query methods run, converge on the same idempotent close-and-reconcile
// path.
type Manager struct {
	store         Store
	rec           *Reconciler
	clock         Clock
	tokens        TokenSource
	events        queue.Publisher
	window        time.Duration
	lateThreshold time.Duration
}

// NewManager creates a manager. Zero durations fall back to the defaults.
func NewManager(store Store, rec *Reconciler, clock Clock, tokens TokenSource, events queue.Publisher, window, lateThreshold time.Duration) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	if lateThreshold <= 0 {
		lateThreshold = DefaultLateThreshold
	}
	return &Manager{
		store:         store,
		rec:           rec,
		clock:         clock,
		tokens:        tokens,
		events:        events,
		window:        window,
		lateThreshold: lateThreshold,
	}
}

// OpenSession creates an Active session with a fresh token for a class.
// One live session per class at a time; a second open fails with
// ErrAlreadyActive so two tokens can never be ambiguous.
func (m *Manager) OpenSession(ctx context.Context, classID string) (Session, error) {
	if _, err := m.store.GetClass(ctx, classID); err != nil {
		return Session{}, err
	}

	now := m.clock.Now()
	s := Session{
		ID:            uuid.NewString(),
		ClassID:       classID,
		Token:         m.tokens.NewToken(),
		OpenedAt:      now,
		ExpiresAt:     now.Add(m.window),
		State:         StateActive,
		LateThreshold: m.lateThreshold,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return Session{}, err
	}

	sessionsOpened.Inc()
	m.publish(ctx, queue.Event{Type: queue.EventSessionOpened, SessionID: s.ID, ClassID: s.ClassID, At: now})
	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"class_id":   s.ClassID,
		"expires_at": s.ExpiresAt,
	}).Info("session opened")
	return s, nil
}

// CloseSession transitions a session to Closed and backfills Absent
// records, returning the backfill count. Closing an already-Closed
// session is a no-op success; the explicit teacher action and the
// expiry sweep may race here and both must win.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) (int, error) {
	return m.closeAndReconcile(ctx, sessionID, "explicit")
}

func (m *Manager) closeAndReconcile(ctx context.Context, sessionID, trigger string) (int, error) {
	now := m.clock.Now()
	transitioned, err := m.store.CloseSession(ctx, sessionID, now)
	if err != nil {
		return 0, err
	}
	if transitioned {
		sessionsClosed.WithLabelValues(trigger).Inc()
		s, err := m.store.GetSession(ctx, sessionID)
		if err == nil {
			m.publish(ctx, queue.Event{Type: queue.EventSessionClosed, SessionID: s.ID, ClassID: s.ClassID, At: now})
		}
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "trigger": trigger}).Info("session closed")
	}
	return m.rec.ReconcileAbsences(ctx, sessionID)
}

func (m *Manager) publish(ctx context.Context, evt queue.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, evt); err != nil {
		logrus.WithError(err).WithField("type", evt.Type).Warn("event publish failed")
	}
}

// sweep closes and reconciles every session in the slice whose deadline
// has passed while still marked Active. There is no background
// scheduler; expiry is detected on next access.
func (m *Manager) sweep(ctx context.Context, sessions []Session) {
	now := m.clock.Now()
	for _, s := range sessions {
		if s.State == StateActive && !now.Before(s.ExpiresAt) {
			if _, err := m.closeAndReconcile(ctx, s.ID, "expiry"); err != nil {
				logrus.WithError(err).WithField("session_id", s.ID).Error("expiry sweep failed")
			}
		}
	}
}

// ListClassSessions returns all sessions for a class after sweeping
// expired ones.
func (m *Manager) ListClassSessions(ctx context.Context, classID string) ([]Session, error) {
	if _, err := m.store.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	sessions, err := m.store.ListSessions(ctx, classID)
	if err != nil {
		return nil, err
	}
	m.sweep(ctx, sessions)
	return m.store.ListSessions(ctx, classID)
}

// ListSessionAttendance returns a session's records after sweeping it
// if expired.
func (m *Manager) ListSessionAttendance(ctx context.Context, sessionID string) ([]Record, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.sweep(ctx, []Session{s})
	return m.store.ListSessionRecords(ctx, sessionID)
}

// ListClassAttendance returns records across all sessions of a class
// after sweeping expired ones.
func (m *Manager) ListClassAttendance(ctx context.Context, classID string) ([]Record, error) {
	if _, err := m.store.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	sessions, err := m.store.ListSessions(ctx, classID)
	if err != nil {
		return nil, err
	}
	m.sweep(ctx, sessions)
	return m.store.ListClassRecords(ctx, classID)
}

// ListStudentAttendance returns one student's records after sweeping
// all expired sessions, so a just-expired session shows the student's
// backfilled Absent rather than a gap.
func (m *Manager) ListStudentAttendance(ctx context.Context, studentID string) ([]Record, error) {
	expired, err := m.store.ListExpiredActive(ctx, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.sweep(ctx, expired)
	return m.store.ListStudentRecords(ctx, studentID)
}
