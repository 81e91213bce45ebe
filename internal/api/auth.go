package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classcheckin/internal/auth"
)

func (s *server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, tok, err := s.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   tok.ExpiresAt,
		"user":         user,
	})
}

func (s *server) listUsers(c *gin.Context) {
	users, err := s.auth.ListUsers(c.Request.Context(), auth.Role(c.Query("role")))
	if err != nil {
		writeError(c, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *server) createUser(c *gin.Context) {
	var req struct {
		Username string    `json:"username" binding:"required"`
		Name     string    `json:"name" binding:"required"`
		Password string    `json:"password" binding:"required"`
		Role     auth.Role `json:"role" binding:"required"`
		Email    string    `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := s.auth.CreateUser(c.Request.Context(), auth.NewUser{
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		Email:    req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *server) getUser(c *gin.Context) {
	u, err := s.auth.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *server) updateUser(c *gin.Context) {
	var req struct {
		Name  string    `json:"name" binding:"required"`
		Role  auth.Role `json:"role" binding:"required"`
		Email string    `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := s.auth.UpdateUser(c.Request.Context(), c.Param("id"), auth.UserUpdate{
		Name:  req.Name,
		Role:  req.Role,
		Email: req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *server) resetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.auth.ResetPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) deleteUser(c *gin.Context) {
	if err := s.auth.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
