package attendance

import "errors"

var (
	ErrInvalidDuration    = errors.New("duration must be between 1 and 60 minutes")
	ErrInvalidStatus      = errors.New("status must be present, late or absent")
	ErrCourseNotFound     = errors.New("course not found")
	ErrUnauthorized       = errors.New("not permitted to manage this session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionEnded       = errors.New("session has ended")
	ErrStudentNotEnrolled = errors.New("student is not enrolled in this session's course")
	ErrCodeTaken          = errors.New("session code already in use")
	ErrTransient          = errors.New("temporarily unavailable")
)

// Kind is the error class a caller reacts to.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

// KindOf classifies err. Storage and directory failures are transient and may be retried.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInvalidStatus):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrCourseNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrStudentNotEnrolled):
		return KindNotFound
	case errors.Is(err, ErrSessionEnded):
		return KindConflict
	case errors.Is(err, ErrTransient):
		return KindTransient
	}
	return KindInternal
}

// Code returns a stable machine-readable reason for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrCourseNotFound):
		return "course_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, ErrStudentNotEnrolled):
		return "student_not_enrolled"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "internal"
}

type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string { return e.op + ": " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// transient marks an infrastructure failure. Known domain errors pass through unchanged.
func transient(op string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	return &transientError{op: op, err: err}
}
