package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classcheckin/internal/store"
)

// PostgresRepository persists courses and enrollments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const courseColumns = `id, code, name, teacher_id, credit, semester, created_at`

func scanCourse(row interface{ Scan(...any) error }) (Course, error) {
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID, &c.Credit, &c.Semester, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrCourseNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// CreateCourse inserts a course.
func (r *PostgresRepository) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, code, name, teacher_id, credit, semester, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Code, c.Name, c.TeacherID, c.Credit, c.Semester, c.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Course{}, ErrCourseCodeTaken
		}
		return Course{}, err
	}
	return c, nil
}

// GetCourse returns one course by id.
func (r *PostgresRepository) GetCourse(ctx context.Context, id string) (Course, error) {
	return scanCourse(r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
}

// ListCourses returns courses ordered by code, optionally for a single teacher.
func (r *PostgresRepository) ListCourses(ctx context.Context, teacherID string) ([]Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	args := []any{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, teacherID)
	}
	query += ` ORDER BY code`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// UpdateCourse writes every editable column and returns the stored row.
func (r *PostgresRepository) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	updated, err := scanCourse(r.db.QueryRowContext(ctx, `
		UPDATE courses SET code = $2, name = $3, teacher_id = $4, credit = $5, semester = $6
		WHERE id = $1
		RETURNING `+courseColumns,
		c.ID, c.Code, c.Name, c.TeacherID, c.Credit, c.Semester))
	if store.IsUniqueViolation(err) {
		return Course{}, ErrCourseCodeTaken
	}
	return updated, err
}

// DeleteCourse removes a course; enrollments cascade.
func (r *PostgresRepository) DeleteCourse(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCourseNotFound
	}
	return nil
}

// CreateEnrollment inserts an enrollment.
func (r *PostgresRepository) CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.EnrolledAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, course_id, student_id, enrolled_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.CourseID, e.StudentID, e.EnrolledAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, err
	}
	return e, nil
}

// DeleteEnrollment removes a (course, student) pair.
func (r *PostgresRepository) DeleteEnrollment(ctx context.Context, courseID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

// ListEnrollments returns enrollments of a course in enrollment order.
func (r *PostgresRepository) ListEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, student_id, enrolled_at
		FROM enrollments WHERE course_id = $1
		ORDER BY enrolled_at, student_id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.CourseID, &e.StudentID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
