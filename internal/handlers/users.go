package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// UserHandler exposes user administration and the assignable role list.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Name     string   `json:"name" validate:"required,notblank,max=255"`
	Email    string   `json:"email" validate:"required,email,max=255"`
	Password string   `json:"password" validate:"required,min=8"`
	Roles    []string `json:"roles" validate:"omitempty,dive,required"`
}

type updateUserRequest struct {
	Name     *string  `json:"name" validate:"omitempty,max=255"`
	Email    *string  `json:"email" validate:"omitempty,email,max=255"`
	Password *string  `json:"password" validate:"omitempty,min=8"`
	Roles    []string `json:"roles" validate:"omitempty,dive,required"`
}

// GET /api/rbac/users
func (h *UserHandler) List(c *gin.Context) {
	opts := services.UserListOptions{
		PageRequest: pageRequest(c),
		Search:      strings.TrimSpace(c.Query("search")),
		Role:        strings.TrimSpace(c.Query("role")),
	}

	users, total, err := h.users.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, listMeta(opts.PageRequest, total))
}

// POST /api/rbac/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.Roles,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusCreated, "User created successfully.", user)
}

// GET /api/rbac/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PUT|PATCH /api/rbac/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Update(requestContext(c), c.Param("id"), services.UpdateUserInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		RoleIDs:      req.Roles,
		ReplaceRoles: req.Roles != nil,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "User updated successfully.", user)
}

// DELETE /api/rbac/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}

	if err := h.users.Delete(requestContext(c), c.Param("id"), actor.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "User deleted successfully.", nil)
}

// GET /api/rbac/users/roles
func (h *UserHandler) Roles(c *gin.Context) {
	roles, err := h.users.ListAssignableRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}
