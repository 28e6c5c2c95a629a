package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// RoleHandler exposes role CRUD and the permission catalog.
type RoleHandler struct {
	roles *services.RoleService
}

func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,notblank,max=255"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=255"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

// GET /api/rbac/roles
func (h *RoleHandler) List(c *gin.Context) {
	opts := services.RoleListOptions{
		PageRequest: pageRequest(c),
		Search:      strings.TrimSpace(c.Query("search")),
	}

	roles, total, err := h.roles.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, roles, listMeta(opts.PageRequest, total))
}

// POST /api/rbac/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var req createRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.roles.Create(requestContext(c), services.CreateRoleInput{
		Name:          req.Name,
		PermissionIDs: req.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusCreated, "Role created successfully.", role)
}

// GET /api/rbac/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// PUT|PATCH /api/rbac/roles/:id
//
// An omitted name keeps the current one; an omitted permissions list keeps the
// current set while an empty list clears it.
func (h *RoleHandler) Update(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	id := c.Param("id")

	input := services.UpdateRoleInput{PermissionIDs: req.Permissions}
	if req.Name != nil {
		input.Name = *req.Name
	} else {
		current, err := h.roles.Get(ctx, id)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.Name = current.Name
	}

	role, err := h.roles.Update(ctx, id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "Role updated successfully.", role)
}

// DELETE /api/rbac/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "Role deleted successfully.", nil)
}

// GET /api/rbac/roles/permissions
func (h *RoleHandler) Permissions(c *gin.Context) {
	perms, err := h.roles.ListPermissions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}
