// Package attendance owns check-in sessions and their records and enforces
// the session lifecycle: a session is active from creation until it is ended
// manually or its duration elapses, and records are frozen once it has ended.
package attendance

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// EndReason records what ended a session.
type EndReason string

const (
	EndManual  EndReason = "manual"
	EndExpired EndReason = "expired"
)

// RecordStatus classifies a student's attendance in one session.
type RecordStatus string

const (
	RecordPresent RecordStatus = "present"
	RecordLate    RecordStatus = "late"
	RecordAbsent  RecordStatus = "absent"
)

// Valid reports whether s is a known record status.
func (s RecordStatus) Valid() bool {
	return s == RecordPresent || s == RecordLate || s == RecordAbsent
}

const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 60
)

// Session is one time-boxed check-in window for a course.
type Session struct {
	ID              string        `json:"id"`
	Code            string        `json:"session_code"`
	CourseID        string        `json:"course_id"`
	CreatedBy       string        `json:"created_by"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	EndTime         *time.Time    `json:"end_time"`
	EndReason       EndReason     `json:"end_reason,omitempty"`
}

// Duration is the configured length of the session.
func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Deadline is the instant the session expires if nobody ends it sooner.
func (s Session) Deadline() time.Time {
	return s.StartTime.Add(s.Duration())
}

// Active reports whether the session still accepts check-ins.
func (s Session) Active() bool { return s.Status == StatusActive }

// Overdue reports whether an active session has outlived its duration at now.
func (s Session) Overdue(now time.Time) bool {
	return s.Active() && !now.Before(s.Deadline())
}

// Record is a student's check-in state within a session.
type Record struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	StudentID   string       `json:"student_id"`
	CheckinTime *time.Time   `json:"checkin_time"`
	Status      RecordStatus `json:"status"`
	Manual      bool         `json:"manual"`
}

// CheckedIn reports whether the record carries a check-in time.
func (r Record) CheckedIn() bool { return r.CheckinTime != nil }

// Filter narrows ListSessions.
type Filter struct {
	CourseID  string
	CreatedBy string
	Status    SessionStatus
	Limit     int
	Offset    int
}

// EndResult is returned by EndSession; AlreadyEnded is set when the call had no effect.
type EndResult struct {
	Session      Session
	AlreadyEnded bool
}

// CheckinResult is returned by RecordCheckin; AlreadyCheckedIn is set when the call had no effect.
type CheckinResult struct {
	Record           Record
	AlreadyCheckedIn bool
}

// SessionInfo is the public view of a session looked up by its code.
type SessionInfo struct {
	Session    Session
	CourseName string
	CourseCode string
}

// Summary aggregates the records of a session.
type Summary struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Present   int    `json:"present"`
	Late      int    `json:"late"`
	Absent    int    `json:"absent"`
	Final     bool   `json:"final"`
}

func summarize(s Session, records []Record) Summary {
	sum := Summary{SessionID: s.ID, Total: len(records), Final: !s.Active()}
	for _, r := range records {
		switch r.Status {
		case RecordPresent:
			sum.Present++
		case RecordLate:
			sum.Late++
		default:
			sum.Absent++
		}
	}
	return sum
}
