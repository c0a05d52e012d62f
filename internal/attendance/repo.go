package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists sessions and attendance records in Postgres and
// doubles as the roster provider over the enrollments table. The two
// atomicity requirements of the engine map onto the schema directly: a
// partial unique index keeps one Active session per class, and the
// composite primary key on (session_id, student_id) backs the
// create-if-absent insert.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ Store          = (*Repository)(nil)
	_ RosterProvider = (*Repository)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	start_minutes INT  NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	class_id   TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	student_id TEXT NOT NULL,
	PRIMARY KEY (class_id, student_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	class_id            TEXT NOT NULL REFERENCES classes(id) ON DELETE RESTRICT,
	token               TEXT NOT NULL UNIQUE,
	opened_at           TIMESTAMPTZ NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL,
	state               TEXT NOT NULL,
	late_threshold_secs INT NOT NULL,
	closed_at           TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_class
	ON sessions (class_id) WHERE state = 'active';

CREATE TABLE IF NOT EXISTS attendance_records (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE RESTRICT,
	student_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	check_in_at TIMESTAMPTZ,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, student_id)
);
`

// EnsureSchema creates tables and the uniqueness constraints the engine
// relies on. Sessions and records are retained for audit, so both carry
// ON DELETE RESTRICT rather than cascades.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// GetClass returns a class by id.
func (r *Repository) GetClass(ctx context.Context, classID string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, start_minutes FROM classes WHERE id = $1
	`, classID)
	var c Class
	var startMin int
	if err := row.Scan(&c.ID, &c.Name, &startMin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, ErrClassNotFound
		}
		return Class{}, err
	}
	c.StartOfDay = time.Duration(startMin) * time.Minute
	return c, nil
}

// CreateSession inserts a session; the partial unique index rejects a
// second Active session for the same class without a prior read.
func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, class_id, token, opened_at, expires_at, state, late_threshold_secs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (class_id) WHERE state = 'active' DO NOTHING
	`, s.ID, s.ClassID, s.Token, s.OpenedAt, s.ExpiresAt, string(s.State), int(s.LateThreshold.Seconds()))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyActive
	}
	return nil
}

const sessionCols = `id, class_id, token, opened_at, expires_at, state, late_threshold_secs`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var state string
	var thresholdSecs int
	if err := row.Scan(&s.ID, &s.ClassID, &s.Token, &s.OpenedAt, &s.ExpiresAt, &state, &thresholdSecs); err != nil {
		return Session{}, err
	}
	s.State = SessionState(state)
	s.LateThreshold = time.Duration(thresholdSecs) * time.Second
	return s, nil
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// GetSessionByToken returns the session a token belongs to.
func (r *Repository) GetSessionByToken(ctx context.Context, token string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE token = $1`, token)
	s, err := scanSession(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrInvalidToken
	}
	return s, err
}

// CloseSession performs the conditional Active→Closed update.
func (r *Repository) CloseSession(ctx context.Context, sessionID string, closedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET state = $2, closed_at = $3
		WHERE id = $1 AND state = $4
	`, sessionID, string(StateClosed), closedAt, string(StateActive))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// No transition: either already closed (fine) or unknown id.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrSessionNotFound
	}
	return false, nil
}

// InsertRecord is the create-if-absent primitive; a conflict on the
// (session_id, student_id) key leaves the existing record untouched.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, check_in_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, rec.SessionID, rec.StudentID, string(rec.Status), rec.CheckInAt, rec.RecordedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordedStudents returns the student ids already recorded for a session.
func (r *Repository) RecordedStudents(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM attendance_records WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = struct{}{}
	}
	return res, rows.Err()
}

// ListSessions returns all sessions for a class, newest first.
func (r *Repository) ListSessions(ctx context.Context, classID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE class_id = $1
		ORDER BY opened_at DESC
	`, classID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListExpiredActive returns Active sessions whose deadline has passed.
func (r *Repository) ListExpiredActive(ctx context.Context, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE state = $1 AND expires_at <= $2
	`, string(StateActive), now)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const recordCols = `session_id, student_id, status, check_in_at, recorded_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(&rec.SessionID, &rec.StudentID, &status, &rec.CheckInAt, &rec.RecordedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// ListSessionRecords returns the records of one session.
func (r *Repository) ListSessionRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE session_id = $1
		ORDER BY recorded_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListClassRecords returns the records of every session of a class.
func (r *Repository) ListClassRecords(ctx context.Context, classID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.session_id, a.student_id, a.status, a.check_in_at, a.recorded_at
		FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.class_id = $1
		ORDER BY a.recorded_at DESC
	`, classID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListStudentRecords returns one student's records across sessions.
func (r *Repository) ListStudentRecords(ctx context.Context, studentID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE student_id = $1
		ORDER BY recorded_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// GetEnrolledStudents returns the roster snapshot for a class.
func (r *Repository) GetEnrolledStudents(ctx context.Context, classID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM enrollments WHERE class_id = $1
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roster := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roster[id] = struct{}{}
	}
	return roster, rows.Err()
}
