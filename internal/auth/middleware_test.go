package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAndRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := NewSigner("secret", "test", time.Minute)
	p := NewProvider(NewMemoryRepository(), signer)

	r := gin.New()
	r.GET("/teach", Bearer(p), RequireRole(RoleTeacher, RoleAdmin), func(c *gin.Context) {
		principal, ok := PrincipalFrom(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, principal.UserID)
	})

	teacher, err := signer.Issue(Principal{UserID: "t1", Role: RoleTeacher})
	require.NoError(t, err)
	student, err := signer.Issue(Principal{UserID: "s1", Role: RoleStudent})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "no header", code: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", code: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + student.AccessToken, code: http.StatusForbidden},
		{name: "ok", header: "bearer " + teacher.AccessToken, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/teach", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "t1", w.Body.String())
			}
		})
	}
}
