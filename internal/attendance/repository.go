package attendance

import (
	"context"
	"time"
)

// Repository persists sessions and their records.
//
// Implementations must apply every mutation atomically: CreateSession stores
// the session and all of its records or nothing, and the conditional updates
// below only take effect while the session is still active.
type Repository interface {
	// CreateSession stores s and its records. A duplicate code yields ErrCodeTaken.
	CreateSession(ctx context.Context, s Session, records []Record) error
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByCode(ctx context.Context, code string) (Session, error)
	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, f Filter) ([]Session, error)
	ListActiveSessions(ctx context.Context) ([]Session, error)
	// EndSession moves an active session to ended. ended is false when the
	// session had already ended, in which case the stored session is returned.
	EndSession(ctx context.Context, id string, at time.Time, reason EndReason) (s Session, ended bool, err error)
	// MarkCheckin sets the check-in time and status of a record that has none.
	// applied is false when the record was already checked in; the stored
	// record is returned unchanged.
	MarkCheckin(ctx context.Context, sessionID, studentID string, at time.Time, status RecordStatus) (r Record, applied bool, err error)
	// SetRecord overwrites a record by hand. A nil at clears the check-in time.
	SetRecord(ctx context.Context, sessionID, studentID string, at *time.Time, status RecordStatus) (Record, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
}
