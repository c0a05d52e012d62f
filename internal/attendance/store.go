package attendance

import (
	"context"
	"time"
)

// Store is the durable state for sessions and attendance records. All
// cross-request serialization happens through its two atomic primitives:
// the create-if-absent insert of a record and the conditional
// Active→Closed update. Every other method may return an
// eventually-consistent snapshot; writers re-validate against the store
// at write time, so correctness holds with any number of engine
// instances sharing one store.
type Store interface {
	// GetClass returns the scheduled class or ErrClassNotFound.
	GetClass(ctx context.Context, classID string) (Class, error)

	// CreateSession persists a new session atomically. It fails with
	// ErrAlreadyActive when an Active session already exists for the
	// class, without partial writes.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns a session by id or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// GetSessionByToken returns the session a token belongs to or
	// ErrInvalidToken.
	GetSessionByToken(ctx context.Context, token string) (Session, error)

	// CloseSession transitions Active→Closed only if the session is
	// still Active. It reports whether this call performed the
	// transition; a session already Closed yields (false, nil) so both
	// an explicit close and the expiry sweep can race safely. Unknown
	// ids fail with ErrSessionNotFound.
	CloseSession(ctx context.Context, sessionID string, closedAt time.Time) (bool, error)

	// InsertRecord is the create-if-absent primitive keyed on
	// (SessionID, StudentID). It reports whether the record was
	// inserted; a conflicting existing record yields (false, nil) with
	// no side effect.
	InsertRecord(ctx context.Context, r Record) (bool, error)

	// RecordedStudents returns the ids of students already holding a
	// record for the session.
	RecordedStudents(ctx context.Context, sessionID string) (map[string]struct{}, error)

	// ListSessions returns all sessions for a class, newest first.
	ListSessions(ctx context.Context, classID string) ([]Session, error)

	// ListExpiredActive returns sessions still marked Active whose
	// deadline has passed, for the lazy expiry sweep.
	ListExpiredActive(ctx context.Context, now time.Time) ([]Session, error)

	// ListSessionRecords returns the records of one session.
	ListSessionRecords(ctx context.Context, sessionID string) ([]Record, error)

	// ListClassRecords returns the records of every session of a class,
	// newest first.
	ListClassRecords(ctx context.Context, classID string) ([]Record, error)

	// ListStudentRecords returns one student's records across sessions,
	// newest first.
	ListStudentRecords(ctx context.Context, studentID string) ([]Record, error)
}

// RosterProvider supplies the set of enrolled students for a class.
// Enrollment is owned by an external collaborator; the engine treats
// the result as a read-only snapshot taken at call time.
type RosterProvider interface {
	GetEnrolledStudents(ctx context.Context, classID string) (map[string]struct{}, error)
}
