package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	sessionID string
	studentID string
}

// MemoryStore is a mutex-guarded Store for dev mode and tests. The
// single lock gives it the same atomicity the Postgres schema provides:
// create-if-absent and the conditional close are indivisible.
type MemoryStore struct {
	mu       sync.Mutex
	classes  map[string]Class
	rosters  map[string]map[string]struct{}
	sessions map[string]Session
	records  map[recordKey]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:  make(map[string]Class),
		rosters:  make(map[string]map[string]struct{}),
		sessions: make(map[string]Session),
		records:  make(map[recordKey]Record),
	}
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ RosterProvider = (*MemoryStore)(nil)
)

// AddClass registers a class and its roster. Enrollment is owned by
// external collaborators; for the in-memory backend this is the seam
// they load through.
func (m *MemoryStore) AddClass(c Class, studentIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
	roster := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		roster[id] = struct{}{}
	}
	m.rosters[c.ID] = roster
}

// Enroll adds one student to a class roster.
func (m *MemoryStore) Enroll(classID, studentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rosters[classID] == nil {
		m.rosters[classID] = make(map[string]struct{})
	}
	m.rosters[classID][studentID] = struct{}{}
}

// GetClass returns a class by id.
func (m *MemoryStore) GetClass(_ context.Context, classID string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

// CreateSession inserts a session unless the class already has an
// Active one.
func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.ClassID == s.ClassID && existing.State == StateActive {
			return ErrAlreadyActive
		}
	}
	m.sessions[s.ID] = s
	return nil
}

// GetSession returns a session by id.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// GetSessionByToken returns the session a token belongs to.
func (m *MemoryStore) GetSessionByToken(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			return s, nil
		}
	}
	return Session{}, ErrInvalidToken
}

// CloseSession transitions Active→Closed if still Active.
func (m *MemoryStore) CloseSession(_ context.Context, sessionID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if s.State != StateActive {
		return false, nil
	}
	s.State = StateClosed
	m.sessions[sessionID] = s
	return true, nil
}

// InsertRecord inserts unless the (session, student) pair already holds
// a record.
func (m *MemoryStore) InsertRecord(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{rec.SessionID, rec.StudentID}
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.records[key] = rec
	return true, nil
}

// RecordedStudents returns student ids already recorded for a session.
func (m *MemoryStore) RecordedStudents(_ context.Context, sessionID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make(map[string]struct{})
	for key := range m.records {
		if key.sessionID == sessionID {
			res[key.studentID] = struct{}{}
		}
	}
	return res, nil
}

// ListSessions returns all sessions for a class, newest first.
func (m *MemoryStore) ListSessions(_ context.Context, classID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if s.ClassID == classID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OpenedAt.After(res[j].OpenedAt) })
	return res, nil
}

// ListExpiredActive returns Active sessions past their deadline.
func (m *MemoryStore) ListExpiredActive(_ context.Context, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if s.State == StateActive && !now.Before(s.ExpiresAt) {
			res = append(res, s)
		}
	}
	return res, nil
}

// ListSessionRecords returns the records of one session.
func (m *MemoryStore) ListSessionRecords(_ context.Context, sessionID string) ([]Record, error) {
	return m.filterRecords(func(rec Record) bool { return rec.SessionID == sessionID })
}

// ListClassRecords returns the records of every session of a class.
func (m *MemoryStore) ListClassRecords(_ context.Context, classID string) ([]Record, error) {
	m.mu.Lock()
	sessionIDs := make(map[string]struct{})
	for _, s := range m.sessions {
		if s.ClassID == classID {
			sessionIDs[s.ID] = struct{}{}
		}
	}
	m.mu.Unlock()
	return m.filterRecords(func(rec Record) bool {
		_, ok := sessionIDs[rec.SessionID]
		return ok
	})
}

// ListStudentRecords returns one student's records across sessions.
func (m *MemoryStore) ListStudentRecords(_ context.Context, studentID string) ([]Record, error) {
	return m.filterRecords(func(rec Record) bool { return rec.StudentID == studentID })
}

func (m *MemoryStore) filterRecords(keep func(Record) bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.records {
		if keep(rec) {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RecordedAt.After(res[j].RecordedAt) })
	return res, nil
}

// GetEnrolledStudents returns a copy of the roster snapshot.
func (m *MemoryStore) GetEnrolledStudents(_ context.Context, classID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roster, ok := m.rosters[classID]
	if !ok {
		return map[string]struct{}{}, nil
	}
	snapshot := make(map[string]struct{}, len(roster))
	for id := range roster {
		snapshot[id] = struct{}{}
	}
	return snapshot, nil
}
