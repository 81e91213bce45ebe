package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classcheckin/internal/store"
)

// PostgresRepository persists sessions and records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, session_code, course_id, created_by, start_time, duration_minutes, status, end_time, end_reason`

const recordColumns = `id, session_id, student_id, checkin_time, status, manual`

type scanner interface{ Scan(...any) error }

func scanSession(row scanner) (Session, error) {
	var (
		s       Session
		endTime sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Code, &s.CourseID, &s.CreatedBy, &s.StartTime, &s.DurationMinutes, &s.Status, &endTime, &s.EndReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	s.StartTime = s.StartTime.UTC()
	if endTime.Valid {
		t := endTime.Time.UTC()
		s.EndTime = &t
	}
	return s, nil
}

func scanRecord(row scanner) (Record, error) {
	var (
		r  Record
		at sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.SessionID, &r.StudentID, &at, &r.Status, &r.Manual); err != nil {
		return Record{}, err
	}
	if at.Valid {
		t := at.Time.UTC()
		r.CheckinTime = &t
	}
	return r, nil
}

// CreateSession inserts the session and its records in one transaction.
func (r *PostgresRepository) CreateSession(ctx context.Context, s Session, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, session_code, course_id, created_by, start_time, duration_minutes, status, end_time, end_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, '')
	`, s.ID, s.Code, s.CourseID, s.CreatedBy, s.StartTime, s.DurationMinutes, s.Status)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return ErrCodeTaken
		}
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checkin_records (id, session_id, student_id, checkin_time, status, manual)
		VALUES ($1, $2, $3, NULL, $4, FALSE)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, s.ID, rec.StudentID, rec.Status); err != nil {
			return fmt.Errorf("insert record for %s: %w", rec.StudentID, err)
		}
	}
	return tx.Commit()
}

// GetSession returns a single session by id.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
}

// GetSessionByCode returns a single session by its share code.
func (r *PostgresRepository) GetSessionByCode(ctx context.Context, code string) (Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE session_code = $1`, code))
}

// ListSessions returns sessions with basic filters, newest first.
func (r *PostgresRepository) ListSessions(ctx context.Context, f Filter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions`
	args := []any{}
	clauses := []string{}
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.CourseID != "" {
		add("course_id", f.CourseID)
	}
	if f.CreatedBy != "" {
		add("created_by", f.CreatedBy)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

// ListActiveSessions returns every session still accepting check-ins.
func (r *PostgresRepository) ListActiveSessions(ctx context.Context) ([]Session, error) {
	return r.ListSessions(ctx, Filter{Status: StatusActive})
}

// EndSession ends an active session; the status guard makes the update idempotent.
func (r *PostgresRepository) EndSession(ctx context.Context, id string, at time.Time, reason EndReason) (Session, bool, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET status = 'ended', end_time = $2, end_reason = $3
		WHERE id = $1 AND status = 'active'
		RETURNING `+sessionColumns,
		id, at, reason))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, false, err
	}
	s, err = r.GetSession(ctx, id)
	if err != nil {
		return Session{}, false, err
	}
	return s, false, nil
}

// lockActive takes a row lock on the session so concurrent ends and check-ins serialise.
func lockActive(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var status SessionStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM attendance_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusActive {
		return ErrSessionEnded
	}
	return nil
}

// MarkCheckin records a first check-in for an enrolled student.
func (r *PostgresRepository) MarkCheckin(ctx context.Context, sessionID, studentID string, at time.Time, status RecordStatus) (Record, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, err
	}
	defer tx.Rollback()

	if err := lockActive(ctx, tx, sessionID); err != nil {
		return Record{}, false, err
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		UPDATE checkin_records
		SET checkin_time = $3, status = $4
		WHERE session_id = $1 AND student_id = $2 AND checkin_time IS NULL
		RETURNING `+recordColumns,
		sessionID, studentID, at, status))
	if err == nil {
		return rec, true, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, err
	}

	rec, err = scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM checkin_records WHERE session_id = $1 AND student_id = $2`, sessionID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, ErrStudentNotEnrolled
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, false, tx.Commit()
}

// SetRecord overwrites a record's status by hand.
func (r *PostgresRepository) SetRecord(ctx context.Context, sessionID, studentID string, at *time.Time, status RecordStatus) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	if err := lockActive(ctx, tx, sessionID); err != nil {
		return Record{}, err
	}
	var checkinTime any
	if at != nil {
		checkinTime = *at
	}
	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		UPDATE checkin_records
		SET checkin_time = $3, status = $4, manual = TRUE
		WHERE session_id = $1 AND student_id = $2
		RETURNING `+recordColumns,
		sessionID, studentID, checkinTime, status))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrStudentNotEnrolled
	}
	if err != nil {
		return Record{}, err
	}
	return rec, tx.Commit()
}

// ListRecords returns every record of a session.
func (r *PostgresRepository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM checkin_records WHERE session_id = $1 ORDER BY student_id`, sessionID)
	if err != nil {
		return nil, err
	}
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
