package api

import (
	"time"

	"classcheckin/internal/attendance"
	"classcheckin/internal/share"
)

// sessionView adds the derived deadline to a session. Clients count down
// against Deadline but only the server decides when the session ends.
type sessionView struct {
	attendance.Session
	Deadline time.Time `json:"deadline"`
}

func newSessionView(s attendance.Session) sessionView {
	return sessionView{Session: s, Deadline: s.Deadline()}
}

func newSessionViews(sessions []attendance.Session) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionView(s))
	}
	return out
}

type createSessionResponse struct {
	Session sessionView  `json:"session"`
	Share   *share.Share `json:"share,omitempty"`
}

type endSessionResponse struct {
	Session      sessionView `json:"session"`
	AlreadyEnded bool        `json:"already_ended"`
}

type checkinResponse struct {
	Record           attendance.Record `json:"record"`
	AlreadyCheckedIn bool              `json:"already_checked_in"`
}

// recordsResponse marks records of an active session as provisional.
type recordsResponse struct {
	SessionID   string              `json:"session_id"`
	Provisional bool                `json:"provisional"`
	Records     []attendance.Record `json:"records"`
}

// publicSessionView is what anyone holding a session code may see.
type publicSessionView struct {
	Code       string                   `json:"session_code"`
	CourseName string                   `json:"course_name,omitempty"`
	CourseCode string                   `json:"course_code,omitempty"`
	StartTime  time.Time                `json:"start_time"`
	Deadline   time.Time                `json:"deadline"`
	Status     attendance.SessionStatus `json:"status"`
	EndTime    *time.Time               `json:"end_time"`
}

func newPublicSessionView(info attendance.SessionInfo) publicSessionView {
	return publicSessionView{
		Code:       info.Session.Code,
		CourseName: info.CourseName,
		CourseCode: info.CourseCode,
		StartTime:  info.Session.StartTime,
		Deadline:   info.Session.Deadline(),
		Status:     info.Session.Status,
		EndTime:    info.Session.EndTime,
	}
}
