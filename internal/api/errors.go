package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
	"classcheckin/internal/directory"
)

const kindUnauthenticated = "unauthenticated"

var errInvalidStatusFilter = errors.New("status must be active or ended")

type apiError struct {
	status int
	kind   string
	code   string
}

var directoryErrors = map[error]apiError{
	directory.ErrCourseNotFound:     {http.StatusNotFound, string(attendance.KindNotFound), "course_not_found"},
	directory.ErrEnrollmentNotFound: {http.StatusNotFound, string(attendance.KindNotFound), "enrollment_not_found"},
	directory.ErrCourseCodeTaken:    {http.StatusConflict, string(attendance.KindConflict), "course_code_taken"},
	directory.ErrAlreadyEnrolled:    {http.StatusConflict, string(attendance.KindConflict), "already_enrolled"},
	directory.ErrInvalidCourse:      {http.StatusBadRequest, string(attendance.KindValidation), "invalid_course"},
	directory.ErrNotAStudent:        {http.StatusBadRequest, string(attendance.KindValidation), "not_a_student"},
	directory.ErrNotATeacher:        {http.StatusBadRequest, string(attendance.KindValidation), "not_a_teacher"},
	directory.ErrForbidden:          {http.StatusForbidden, string(attendance.KindUnauthorized), "forbidden"},
	auth.ErrUserNotFound:            {http.StatusNotFound, string(attendance.KindNotFound), "user_not_found"},
	auth.ErrUsernameTaken:           {http.StatusConflict, string(attendance.KindConflict), "username_taken"},
	auth.ErrInvalidRole:             {http.StatusBadRequest, string(attendance.KindValidation), "invalid_role"},
	auth.ErrInvalidUser:             {http.StatusBadRequest, string(attendance.KindValidation), "invalid_user"},
	auth.ErrAdminUndeletable:        {http.StatusConflict, string(attendance.KindConflict), "admin_undeletable"},
	auth.ErrAdminRoleLocked:         {http.StatusConflict, string(attendance.KindConflict), "admin_role_locked"},
	auth.ErrWeakPassword:            {http.StatusBadRequest, string(attendance.KindValidation), "weak_password"},
	auth.ErrBadCredentials:          {http.StatusUnauthorized, kindUnauthenticated, "bad_credentials"},
}

var kindStatus = map[attendance.Kind]int{
	attendance.KindValidation:   http.StatusBadRequest,
	attendance.KindUnauthorized: http.StatusForbidden,
	attendance.KindNotFound:     http.StatusNotFound,
	attendance.KindConflict:     http.StatusConflict,
	attendance.KindTransient:    http.StatusServiceUnavailable,
}

func classify(err error) apiError {
	for target, e := range directoryErrors {
		if errors.Is(err, target) {
			return e
		}
	}
	kind := attendance.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		return apiError{status, string(kind), attendance.Code(err)}
	}
	return apiError{http.StatusInternalServerError, string(attendance.KindInternal), "internal"}
}

// writeError maps a service error onto a status and a {"error","kind","code"} body.
func writeError(c *gin.Context, err error) {
	e := classify(err)
	msg := err.Error()
	if e.status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if e.status == http.StatusInternalServerError {
			msg = "internal error"
		} else {
			msg = "service temporarily unavailable, retry"
		}
	}
	c.AbortWithStatusJSON(e.status, gin.H{"error": msg, "kind": e.kind, "code": e.code})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(attendance.KindValidation), "code": "invalid_request"})
}
