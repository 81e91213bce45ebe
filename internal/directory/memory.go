package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps courses and enrollments in process memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	courses     map[string]Course
	enrollments map[string][]Enrollment // courseID -> enrollments
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		courses:     make(map[string]Course),
		enrollments: make(map[string][]Enrollment),
	}
}

func (m *MemoryRepository) CreateCourse(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.Code == c.Code {
			return Course{}, ErrCourseCodeTaken
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryRepository) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	return c, nil
}

func (m *MemoryRepository) ListCourses(_ context.Context, teacherID string) ([]Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Course
	for _, c := range m.courses {
		if teacherID == "" || c.TeacherID == teacherID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) UpdateCourse(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.courses[c.ID]
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	for id, other := range m.courses {
		if id != c.ID && other.Code == c.Code {
			return Course{}, ErrCourseCodeTaken
		}
	}
	c.CreatedAt = existing.CreatedAt
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryRepository) DeleteCourse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return ErrCourseNotFound
	}
	delete(m.courses, id)
	delete(m.enrollments, id)
	return nil
}

func (m *MemoryRepository) CreateEnrollment(_ context.Context, e Enrollment) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[e.CourseID]; !ok {
		return Enrollment{}, ErrCourseNotFound
	}
	for _, existing := range m.enrollments[e.CourseID] {
		if existing.StudentID == e.StudentID {
			return Enrollment{}, ErrAlreadyEnrolled
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.EnrolledAt = time.Now().UTC()
	m.enrollments[e.CourseID] = append(m.enrollments[e.CourseID], e)
	return e, nil
}

func (m *MemoryRepository) DeleteEnrollment(_ context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.enrollments[courseID]
	for i, e := range list {
		if e.StudentID == studentID {
			m.enrollments[courseID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrEnrollmentNotFound
}

func (m *MemoryRepository) ListEnrollments(_ context.Context, courseID string) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Enrollment(nil), m.enrollments[courseID]...), nil
}
