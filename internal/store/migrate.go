package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT UNIQUE NOT NULL,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('admin', 'teacher', 'student')),
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS courses (
	id         TEXT PRIMARY KEY,
	code       TEXT UNIQUE NOT NULL,
	name       TEXT NOT NULL,
	teacher_id TEXT NOT NULL,
	credit     INTEGER NOT NULL DEFAULT 0,
	semester   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrollments (
	id          TEXT PRIMARY KEY,
	course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	student_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	enrolled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (course_id, student_id)
);

CREATE TABLE IF NOT EXISTS attendance_sessions (
	id               TEXT PRIMARY KEY,
	session_code     TEXT UNIQUE NOT NULL,
	course_id        TEXT NOT NULL,
	created_by       TEXT NOT NULL,
	start_time       TIMESTAMPTZ NOT NULL,
	duration_minutes INTEGER NOT NULL CHECK (duration_minutes BETWEEN 1 AND 60),
	status           TEXT NOT NULL CHECK (status IN ('active', 'ended')),
	end_time         TIMESTAMPTZ,
	end_reason       TEXT NOT NULL DEFAULT '',
	CHECK ((status = 'active') = (end_time IS NULL))
);

CREATE TABLE IF NOT EXISTS checkin_records (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
	student_id   TEXT NOT NULL,
	checkin_time TIMESTAMPTZ,
	status       TEXT NOT NULL CHECK (status IN ('present', 'late', 'absent')),
	manual       BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (session_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_courses_teacher   ON courses(teacher_id);
CREATE INDEX IF NOT EXISTS idx_sessions_course   ON attendance_sessions(course_id, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_active   ON attendance_sessions(status) WHERE status = 'active';
`

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
