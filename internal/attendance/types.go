package attendance

import "time"

// SessionState tracks the lifecycle of a check-in window.
// Active sessions accept check-ins; Closed is terminal.
type SessionState string

const (
	StateActive SessionState = "active"
	StateClosed SessionState = "closed"
)

// Status is the outcome recorded for one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

// Session is one open attendance window for one class meeting.
// The token is the opaque credential students present to check in;
// it is generated once and never reused across sessions.
type Session struct {
	ID            string        `json:"id"`
	ClassID       string        `json:"class_id"`
	Token         string        `json:"token"`
	OpenedAt      time.Time     `json:"opened_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	State         SessionState  `json:"state"`
	LateThreshold time.Duration `json:"late_threshold"`
}

// IsLive reports whether the session still accepts check-ins. A session
// whose deadline has passed is dead even if the Closed transition has
// not been persisted yet, so callers must gate on this and never on
// State alone.
func (s Session) IsLive(now time.Time) bool {
	return s.State == StateActive && now.Before(s.ExpiresAt)
}

// Record is the single outcome for a (session, student) pair. At most
// one record per pair exists for the lifetime of the system; CheckInAt
// is nil for Absent records written by reconciliation.
type Record struct {
	SessionID  string     `json:"session_id"`
	StudentID  string     `json:"student_id"`
	Status     Status     `json:"status"`
	CheckInAt  *time.Time `json:"check_in_at,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Class is the scheduled class a session belongs to. StartOfDay is the
// official start time expressed as an offset from midnight; check-ins
// after StartOfDay plus the session's late threshold classify as Late.
type Class struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	StartOfDay time.Duration `json:"start_of_day"`
}

// classify compares the check-in wall-clock time of day against the
// class start plus threshold.
func classify(now time.Time, class Class, threshold time.Duration) Status {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Sub(midnight) > class.StartOfDay+threshold {
		return StatusLate
	}
	return StatusPresent
}
