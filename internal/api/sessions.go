package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
)

func (s *server) createSession(c *gin.Context) {
	var req struct {
		CourseID        string `json:"course_id" binding:"required"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sess, err := s.sessions.CreateSession(ctx, principal(c), req.CourseID, req.DurationMinutes)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := createSessionResponse{Session: newSessionView(sess)}
	if s.share != nil {
		sh, err := s.share.Render(ctx, sess.Code)
		if err != nil {
			log.Printf("render share for session %s: %v", sess.ID, err)
		} else {
			resp.Share = &sh
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *server) listSessions(c *gin.Context) {
	p := principal(c)
	f := attendance.Filter{
		CourseID: c.Query("course_id"),
		Status:   attendance.SessionStatus(c.Query("status")),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if f.Status != "" && f.Status != attendance.StatusActive && f.Status != attendance.StatusEnded {
		badRequest(c, errInvalidStatusFilter)
		return
	}
	if !p.IsAdmin() {
		if f.CourseID == "" {
			f.CreatedBy = p.UserID
		} else if err := s.ownedCourse(c, f.CourseID); err != nil {
			writeError(c, err)
			return
		}
	}
	sessions, err := s.sessions.ListSessions(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": newSessionViews(sessions)})
}

// visibleSession loads the :id session and checks the caller may see it.
func (s *server) visibleSession(c *gin.Context) (attendance.Session, bool) {
	ctx := c.Request.Context()
	sess, err := s.sessions.GetSession(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return attendance.Session{}, false
	}
	if err := s.sessions.Authorize(ctx, principal(c), sess); err != nil {
		writeError(c, err)
		return attendance.Session{}, false
	}
	return sess, true
}

func (s *server) getSession(c *gin.Context) {
	sess, ok := s.visibleSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionView(sess))
}

func (s *server) endSession(c *gin.Context) {
	res, err := s.sessions.EndSession(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, endSessionResponse{Session: newSessionView(res.Session), AlreadyEnded: res.AlreadyEnded})
}

func (s *server) listRecords(c *gin.Context) {
	sess, ok := s.visibleSession(c)
	if !ok {
		return
	}
	records, err := s.sessions.ListRecords(c.Request.Context(), sess.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, recordsResponse{SessionID: sess.ID, Provisional: sess.Active(), Records: records})
}

func (s *server) setRecord(c *gin.Context) {
	var req struct {
		Status attendance.RecordStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.sessions.ManualCheckin(c.Request.Context(), principal(c), c.Param("id"), c.Param("student_id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *server) summary(c *gin.Context) {
	sess, ok := s.visibleSession(c)
	if !ok {
		return
	}
	sum, err := s.sessions.Summary(c.Request.Context(), sess.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// checkIn records the calling student against a session code.
func (s *server) checkIn(c *gin.Context) {
	var req struct {
		SessionCode string `json:"session_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.SessionCode))
	res, err := s.sessions.RecordCheckin(c.Request.Context(), code, principal(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyCheckedIn {
		status = http.StatusOK
	}
	c.JSON(status, checkinResponse{Record: res.Record, AlreadyCheckedIn: res.AlreadyCheckedIn})
}

func (s *server) publicSession(c *gin.Context) {
	info, err := s.sessions.GetSessionByCode(c.Request.Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPublicSessionView(info))
}

func (s *server) qrCode(c *gin.Context) {
	if s.share == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	info, err := s.sessions.GetSessionByCode(c.Request.Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := s.share.PNG(info.Session.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}

func (s *server) ownedCourse(c *gin.Context, courseID string) error {
	course, err := s.courses.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		return err
	}
	p := principal(c)
	if !p.IsAdmin() && !(p.Role == auth.RoleTeacher && course.TeacherID == p.UserID) {
		return attendance.ErrUnauthorized
	}
	return nil
}
