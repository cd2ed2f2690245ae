package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knitkart/internal/middleware"
	"knitkart/internal/models"
	"knitkart/internal/security"
	"knitkart/internal/service"
)

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func newUserResponse(id, name, email string, role models.UserRole) userResponse {
	return userResponse{ID: id, Name: name, Email: email, Role: string(role)}
}

func (h HandlerSet) startSession(c *gin.Context, result service.AuthResult) {
	middleware.SetSessionCookie(c, h.cookie, result.Token)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserResponse(result.User.ID, result.User.Name, result.User.Email, result.User.Role),
	})
}

// CheckAuth reports the session state. The session middleware has already
// renewed the cookie when due.
func (h HandlerSet) CheckAuth(c *gin.Context) {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          newUserResponse(p.ID, p.Name, p.Email, p.Role),
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, service.ErrMissingCredentials.Error())
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, err.Error())
	case err != nil:
		h.internalError(c, err, "login failed")
	default:
		h.startSession(c, result)
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h HandlerSet) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, service.ErrMissingCredentials.Error())
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	switch {
	case errors.Is(err, service.ErrMissingCredentials), errors.Is(err, security.ErrPasswordTooShort):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		fail(c, http.StatusConflict, err.Error())
	case err != nil:
		h.internalError(c, err, "register failed")
	default:
		h.startSession(c, result)
	}
}

// Logout clears the cookie. Tokens are stateless, so there is nothing to
// revoke server side.
func (h HandlerSet) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.cookie)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "email is required")
		return
	}

	err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		fail(c, http.StatusBadRequest, "email is required")
	case err != nil:
		h.internalError(c, err, "password reset request failed")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, service.ErrInvalidResetToken.Error())
		return
	}

	result, err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password)
	switch {
	case errors.Is(err, security.ErrPasswordTooShort), errors.Is(err, service.ErrInvalidResetToken):
		fail(c, http.StatusBadRequest, err.Error())
	case err != nil:
		h.internalError(c, err, "password reset failed")
	default:
		h.startSession(c, result)
	}
}
