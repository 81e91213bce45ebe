// Package directory resolves courses and their enrolled students.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"classcheckin/internal/auth"
)

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrCourseCodeTaken    = errors.New("course code already exists")
	ErrInvalidCourse      = errors.New("course code and name are required")
	ErrAlreadyEnrolled    = errors.New("student already enrolled in course")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrNotAStudent        = errors.New("only students can be enrolled")
	ErrNotATeacher        = errors.New("course teacher must have the teacher role")
	ErrForbidden          = errors.New("not permitted to manage this course")
)

// Course is the display metadata of a course.
type Course struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacher_id"`
	Credit    int       `json:"credit"`
	Semester  string    `json:"semester,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CourseUpdate changes a course. Empty strings and a nil Credit keep the
// current value.
type CourseUpdate struct {
	Code      string
	Name      string
	TeacherID string
	Credit    *int
	Semester  string
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Repository persists courses and enrollments.
type Repository interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context, teacherID string) ([]Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	DeleteEnrollment(ctx context.Context, courseID, studentID string) error
	ListEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
}

// UserLookup resolves accounts so enrollments only reference students.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
}

// Service is the course directory.
type Service struct {
	repo  Repository
	users UserLookup
}

// NewService creates a directory backed by repo. users may be nil, which skips role checks.
func NewService(repo Repository, users UserLookup) *Service {
	return &Service{repo: repo, users: users}
}

// ResolveCourse returns course metadata or ErrCourseNotFound.
func (s *Service) ResolveCourse(ctx context.Context, courseID string) (Course, error) {
	if strings.TrimSpace(courseID) == "" {
		return Course{}, ErrCourseNotFound
	}
	return s.repo.GetCourse(ctx, courseID)
}

// ListEnrolledStudents returns the ids of every student enrolled in the course.
func (s *Service) ListEnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListEnrollments(ctx, courseID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.StudentID)
	}
	return ids, nil
}

// CreateCourse stores a course. Teachers always own the courses they create;
// admins may assign any teacher and default to themselves.
func (s *Service) CreateCourse(ctx context.Context, p auth.Principal, c Course) (Course, error) {
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	if c.Code == "" || c.Name == "" || c.Credit < 0 {
		return Course{}, ErrInvalidCourse
	}
	switch {
	case p.Role == auth.RoleTeacher:
		c.TeacherID = p.UserID
	case p.IsAdmin():
		if c.TeacherID == "" {
			c.TeacherID = p.UserID
		} else if err := s.requireRole(ctx, c.TeacherID, auth.RoleTeacher, ErrNotATeacher); err != nil {
			return Course{}, err
		}
	default:
		return Course{}, ErrForbidden
	}
	return s.repo.CreateCourse(ctx, c)
}

// GetCourse returns one course.
func (s *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return s.repo.GetCourse(ctx, id)
}

// ListCourses returns all courses, or only those taught by teacherID.
func (s *Service) ListCourses(ctx context.Context, teacherID string) ([]Course, error) {
	return s.repo.ListCourses(ctx, teacherID)
}

// UpdateCourse applies u to a course the principal manages. Only admins can
// hand a course to another teacher.
func (s *Service) UpdateCourse(ctx context.Context, p auth.Principal, id string, u CourseUpdate) (Course, error) {
	c, err := s.manageable(ctx, p, id)
	if err != nil {
		return Course{}, err
	}
	if code := strings.TrimSpace(u.Code); code != "" {
		c.Code = code
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		c.Name = name
	}
	if u.Credit != nil {
		if *u.Credit < 0 {
			return Course{}, ErrInvalidCourse
		}
		c.Credit = *u.Credit
	}
	if u.Semester != "" {
		c.Semester = strings.TrimSpace(u.Semester)
	}
	if u.TeacherID != "" && u.TeacherID != c.TeacherID {
		if !p.IsAdmin() {
			return Course{}, ErrForbidden
		}
		if err := s.requireRole(ctx, u.TeacherID, auth.RoleTeacher, ErrNotATeacher); err != nil {
			return Course{}, err
		}
		c.TeacherID = u.TeacherID
	}
	return s.repo.UpdateCourse(ctx, c)
}

// DeleteCourse removes a course the principal manages.
func (s *Service) DeleteCourse(ctx context.Context, p auth.Principal, id string) error {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return err
	}
	return s.repo.DeleteCourse(ctx, id)
}

// Enroll adds a student to a course the principal manages.
func (s *Service) Enroll(ctx context.Context, p auth.Principal, courseID, studentID string) (Enrollment, error) {
	if _, err := s.manageable(ctx, p, courseID); err != nil {
		return Enrollment{}, err
	}
	if err := s.requireRole(ctx, studentID, auth.RoleStudent, ErrNotAStudent); err != nil {
		return Enrollment{}, err
	}
	return s.repo.CreateEnrollment(ctx, Enrollment{CourseID: courseID, StudentID: studentID})
}

// Unenroll removes a student from a course the principal manages.
func (s *Service) Unenroll(ctx context.Context, p auth.Principal, courseID, studentID string) error {
	if _, err := s.manageable(ctx, p, courseID); err != nil {
		return err
	}
	return s.repo.DeleteEnrollment(ctx, courseID, studentID)
}

// ListEnrollments returns the enrollments of a course.
func (s *Service) ListEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.repo.ListEnrollments(ctx, courseID)
}

func (s *Service) manageable(ctx context.Context, p auth.Principal, courseID string) (Course, error) {
	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if p.IsAdmin() || (p.Role == auth.RoleTeacher && c.TeacherID == p.UserID) {
		return c, nil
	}
	return Course{}, ErrForbidden
}

func (s *Service) requireRole(ctx context.Context, userID string, role auth.Role, mismatch error) error {
	if s.users == nil {
		return nil
	}
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return mismatch
	}
	if err != nil {
		return err
	}
	if u.Role != role {
		return mismatch
	}
	return nil
}
