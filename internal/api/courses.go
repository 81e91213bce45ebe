package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classcheckin/internal/directory"
)

func (s *server) listCourses(c *gin.Context) {
	p := principal(c)
	teacherID := c.Query("teacher_id")
	if !p.IsAdmin() {
		teacherID = p.UserID
	}
	courses, err := s.courses.ListCourses(c.Request.Context(), teacherID)
	if err != nil {
		writeError(c, err)
		return
	}
	if courses == nil {
		courses = []directory.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (s *server) createCourse(c *gin.Context) {
	var req struct {
		Code      string `json:"code" binding:"required"`
		Name      string `json:"name" binding:"required"`
		TeacherID string `json:"teacher_id"`
		Credit    int    `json:"credit"`
		Semester  string `json:"semester"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	course, err := s.courses.CreateCourse(c.Request.Context(), principal(c), directory.Course{
		Code:      req.Code,
		Name:      req.Name,
		TeacherID: req.TeacherID,
		Credit:    req.Credit,
		Semester:  req.Semester,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (s *server) getCourse(c *gin.Context) {
	course, err := s.courses.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (s *server) updateCourse(c *gin.Context) {
	var req struct {
		Code      string `json:"code"`
		Name      string `json:"name"`
		TeacherID string `json:"teacher_id"`
		Credit    *int   `json:"credit"`
		Semester  string `json:"semester"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	course, err := s.courses.UpdateCourse(c.Request.Context(), principal(c), c.Param("id"), directory.CourseUpdate{
		Code:      req.Code,
		Name:      req.Name,
		TeacherID: req.TeacherID,
		Credit:    req.Credit,
		Semester:  req.Semester,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (s *server) deleteCourse(c *gin.Context) {
	if err := s.courses.DeleteCourse(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) listEnrollments(c *gin.Context) {
	enrollments, err := s.courses.ListEnrollments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if enrollments == nil {
		enrollments = []directory.Enrollment{}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

func (s *server) enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.courses.Enroll(c.Request.Context(), principal(c), c.Param("id"), req.StudentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *server) unenroll(c *gin.Context) {
	if err := s.courses.Unenroll(c.Request.Context(), principal(c), c.Param("id"), c.Param("student_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
