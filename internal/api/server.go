// Package api exposes the check-in service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
	"classcheckin/internal/directory"
	"classcheckin/internal/httpmiddleware"
	"classcheckin/internal/share"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the router serves.
type Deps struct {
	Sessions *attendance.Service
	Courses  *directory.Service
	Auth     *auth.Provider
	Share    *share.Renderer
	Limiter  httpmiddleware.Limiter
	Health   map[string]HealthCheck

	// Origins allowed to call the API from a browser; "*" allows any.
	AllowedOrigins []string
}

type server struct {
	sessions *attendance.Service
	courses  *directory.Service
	auth     *auth.Provider
	share    *share.Renderer
	health   map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	s := &server{sessions: d.Sessions, courses: d.Courses, auth: d.Auth, share: d.Share, health: d.Health}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS(d.AllowedOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", s.login)
	v1.GET("/checkin/:code", s.publicSession)
	v1.GET("/checkin/:code/qr.png", s.qrCode)

	authed := v1.Group("", auth.Bearer(d.Auth))
	authed.POST("/checkins", auth.RequireRole(auth.RoleStudent), s.checkIn)

	staff := authed.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))
	staff.POST("/sessions", s.createSession)
	staff.GET("/sessions", s.listSessions)
	staff.GET("/sessions/:id", s.getSession)
	staff.POST("/sessions/:id/end", s.endSession)
	staff.GET("/sessions/:id/records", s.listRecords)
	staff.PUT("/sessions/:id/records/:student_id", s.setRecord)
	staff.GET("/sessions/:id/summary", s.summary)

	staff.GET("/courses", s.listCourses)
	staff.POST("/courses", s.createCourse)
	staff.GET("/courses/:id", s.getCourse)
	staff.PUT("/courses/:id", s.updateCourse)
	staff.DELETE("/courses/:id", s.deleteCourse)
	staff.GET("/courses/:id/enrollments", s.listEnrollments)
	staff.POST("/courses/:id/enrollments", s.enroll)
	staff.DELETE("/courses/:id/enrollments/:student_id", s.unenroll)

	admin := authed.Group("/users", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", s.listUsers)
	admin.POST("", s.createUser)
	admin.GET("/:id", s.getUser)
	admin.PUT("/:id", s.updateUser)
	admin.PUT("/:id/password", s.resetPassword)
	admin.DELETE("/:id", s.deleteUser)

	return r
}

func (s *server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.CurrentPrincipal(c)
	return p
}
