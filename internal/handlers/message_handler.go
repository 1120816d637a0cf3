package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/services"
	"github.com/edustream/groupchat-service/internal/utils"
	"github.com/edustream/groupchat-service/internal/validator"
)

type MessageHandler struct {
	BaseHandler
	messageService services.MessageService
	validator      *validator.Validator
}

func NewMessageHandler(
	messageService services.MessageService,
	validator *validator.Validator,
	logger utils.Logger,
) *MessageHandler {
	return &MessageHandler{
		BaseHandler:    NewBaseHandler(logger),
		messageService: messageService,
		validator:      validator,
	}
}

// SendMessage appends a message to the group history.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	groupID := h.parseIDParam(c, "id")
	if groupID == 0 {
		return
	}

	var req services.SendMessageRequest
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

	message, err := h.messageService.Send(c.Request.Context(), groupID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// GetMessage retrieves one message.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	messageID := h.parseIDParam(c, "message_id")
	if messageID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	message, err := h.messageService.GetByID(c.Request.Context(), messageID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// EditMessage replaces the text of the caller's own message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID := h.parseIDParam(c, "message_id")
	if messageID == 0 {
		return
	}

	var req services.EditMessageRequest
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

	message, err := h.messageService.Edit(c.Request.Context(), messageID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// DeleteMessage soft-deletes a message.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID := h.parseIDParam(c, "message_id")
	if messageID == 0 {
		return
	}

	h.LogRequest(c, "Deleting message", "message_id", messageID)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	message, err := h.messageService.Delete(c.Request.Context(), messageID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// ListMessages pages through group history in chronological order.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	groupID := h.parseIDParam(c, "id")
	if groupID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := repositories.MessageFilters{
		Page:  h.parseIntQuery(c, "page", 1),
		Limit: h.parseIntQuery(c, "size", 50),
	}

	messages, err := h.messageService.List(c.Request.Context(), groupID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SearchMessages searches message content within a group.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	groupID := h.parseIDParam(c, "id")
	if groupID == 0 {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing search query"})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := h.parseSearchFilters(c, query)

	messages, err := h.messageService.Search(c.Request.Context(), groupID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkRead records a read receipt for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID := h.parseIDParam(c, "message_id")
	if messageID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	result, err := h.messageService.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// MarkAllRead records read receipts for every unread message in the group.
func (h *MessageHandler) MarkAllRead(c *gin.Context) {
	groupID := h.parseIDParam(c, "id")
	if groupID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	marked, err := h.messageService.MarkAllRead(c.Request.Context(), groupID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// UnreadCount returns how many messages the caller has not read yet.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	groupID := h.parseIDParam(c, "id")
	if groupID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	count, err := h.messageService.UnreadCount(c.Request.Context(), groupID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *MessageHandler) parseSearchFilters(c *gin.Context, query string) repositories.MessageSearchFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.MessageSearchFilters{
		Query:  query,
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if msgType := c.Query("type"); msgType != "" {
		t := models.MessageType(msgType)
		filters.Type = &t
	}
	if senderID := strings.TrimSpace(c.Query("sender_id")); senderID != "" {
		filters.SenderID = &senderID
	}
	if from := c.Query("date_from"); from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			filters.DateFrom = &parsed
		}
	}
	if to := c.Query("date_to"); to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			filters.DateTo = &parsed
		}
	}

	return filters
}

func (h *MessageHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Message not found"})
	case errors.Is(err, services.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Group not found"})
	case errors.Is(err, services.ErrMessageDeleted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Message has been deleted"})
	case errors.Is(err, services.ErrSystemMessageImmutable):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "System messages cannot be modified"})
	case errors.Is(err, services.ErrReplyNotInGroup):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Replied-to message does not belong to this group"})
	case errors.Is(err, services.ErrStudentMessagesDisabled):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Student messages are disabled in this group"})
	case errors.Is(err, services.ErrFileUploadsDisabled):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "File uploads are disabled in this group"})
	case errors.Is(err, services.ErrGroupNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Group is not active"})
	case errors.Is(err, services.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "User is not a member of this group"})
	default:
		h.LogError(c, "Unhandled message service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
