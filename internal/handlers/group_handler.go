package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/services"
	"github.com/edustream/groupchat-service/internal/utils"
	"github.com/edustream/groupchat-service/internal/validator"
)

type GroupHandler struct {
	BaseHandler
	groupService services.GroupService
	validator    *validator.Validator
}

func NewGroupHandler(
	groupService services.GroupService,
	validator *validator.Validator,
	logger utils.Logger,
) *GroupHandler {
	return &GroupHandler{
		BaseHandler:  NewBaseHandler(logger),
		groupService: groupService,
		validator:    validator,
	}
}

// CreateGroup creates a new group with the caller as its first admin.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	group, err := h.groupService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, group)
}

// GetGroup retrieves a group by ID.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	group, err := h.groupService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// GetGroupWithMembers retrieves a group including its member list.
func (h *GroupHandler) GetGroupWithMembers(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	group, err := h.groupService.GetByIDWithMembers(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// UpdateGroup updates group name, description or member limit.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating group", "group_id", id)

	var req services.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	group, err := h.groupService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// DeleteGroup deactivates a group.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting group", "group_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.groupService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListGroups lists the caller's groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := h.parseGroupFilters(c)

	groups, err := h.groupService.GetUserGroups(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, groups)
}

// JoinGroup adds the caller to a group.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	member, err := h.groupService.Join(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

// LeaveGroup removes the caller from a group.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.groupService.Leave(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type addMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// AddMember adds another user to the group. Admins only.
func (h *GroupHandler) AddMember(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	role := models.MemberRoleMember
	if req.Role == string(models.MemberRoleAdmin) {
		role = models.MemberRoleAdmin
	}

	member, err := h.groupService.AddMember(c.Request.Context(), id, req.UserID, role, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

// RemoveMember removes a user from the group. Admins only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	targetID := c.Param("user_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid user_id"})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.groupService.RemoveMember(c.Request.Context(), id, targetID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type updateMemberRoleRequest struct {
	Role models.MemberRole `json:"role" binding:"required"`
}

// UpdateMemberRole promotes or demotes a group member. Admins only.
func (h *GroupHandler) UpdateMemberRole(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	targetID := c.Param("user_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid user_id"})
		return
	}

	var req updateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if req.Role != models.MemberRoleAdmin && req.Role != models.MemberRoleMember {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid role"})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.groupService.UpdateMemberRole(c.Request.Context(), id, targetID, req.Role, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetMembers lists group members with their presence state.
func (h *GroupHandler) GetMembers(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	members, err := h.groupService.GetMembers(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

// UpdateSettings updates the group messaging and quiz policies.
func (h *GroupHandler) UpdateSettings(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.GroupSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	settings, err := h.groupService.UpdateSettings(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// GetStats returns group activity statistics.
func (h *GroupHandler) GetStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.groupService.GetStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *GroupHandler) parseGroupFilters(c *gin.Context) repositories.GroupFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.GroupFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filters.Search = &search
	}
	if isActive := c.Query("is_active"); isActive != "" {
		active := isActive == "true"
		filters.IsActive = &active
	}

	return filters
}

func (h *GroupHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var conflictError *services.ConflictError
	if errors.As(err, &conflictError) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: conflictError.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Group not found"})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "User not found"})
	case errors.Is(err, services.ErrGroupNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Group is not active"})
	case errors.Is(err, services.ErrGroupFull):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Group has reached its member limit"})
	case errors.Is(err, services.ErrAlreadyMember):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "User is already a member of this group"})
	case errors.Is(err, services.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "User is not a member of this group"})
	case errors.Is(err, services.ErrLastGroupAdmin):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Cannot remove the last admin of a group"})
	case errors.Is(err, services.ErrGroupCreatorImmutable):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "The group creator cannot be removed or demoted"})
	default:
		h.LogError(c, "Unhandled group service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
