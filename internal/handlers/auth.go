package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// AuthHandler serves registration, login, logout and the current profile.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Name                 string `json:"name" validate:"required,notblank,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, "User registered successfully.", result)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), req.Email, req.Password, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "Login successful.", result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	profile, err := h.auth.Me(user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := middleware.CurrentSession(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.auth.Logout(requestContext(c), session.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "Logged out successfully.", nil)
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user, ok := principal(c)
	if !ok {
		return
	}

	revoked, err := h.auth.LogoutAll(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "Logged out from all devices successfully.", gin.H{"revoked": revoked})
}
