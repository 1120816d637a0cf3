package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/events"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/validator"
)

type messageService struct {
	repo           repositories.Repository
	groupService   GroupService
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewMessageService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) MessageService {
	return &messageService{
		repo:           repo,
		groupService:   NewGroupService(repo, db, logger, validator, publisher),
		db:             db,
		logger:         logger,
		validator:      validator,
		eventPublisher: publisher,
	}
}

// ===== CORE OPERATIONS =====

func (s *messageService) Send(ctx context.Context, groupID uint, req *SendMessageRequest, senderID string) (*MessageResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateMessageContent(req.Type, req.Content); err != nil {
		return nil, err
	}

	member, err := s.requireMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}

	group, err := s.repo.Group().GetByID(ctx, nil, groupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	if !group.IsActive {
		return nil, ErrGroupNotActive
	}

	if err := s.checkSendPolicy(ctx, groupID, member, req.Type, senderID); err != nil {
		return nil, err
	}

	if req.ReplyToID != nil {
		target, err := s.repo.Message().GetByID(ctx, nil, *req.ReplyToID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		if target.GroupID != groupID {
			return nil, ErrReplyNotInGroup
		}
	}

	content, err := marshalContent(req.Content)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		GroupID:   groupID,
		SenderID:  senderID,
		Type:      req.Type,
		Content:   content,
		ReplyToID: req.ReplyToID,
	}
	if err := s.repo.Message().Create(ctx, nil, message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	s.publishEvent(ctx, events.EventMessageSent, events.MessageEventData{
		MessageID: message.ID,
		GroupID:   groupID,
		SenderID:  senderID,
		Type:      string(req.Type),
	})

	s.logger.Info("Message sent", "message_id", message.ID, "group_id", groupID, "sender_id", senderID, "type", req.Type)

	full, err := s.repo.Message().GetByIDWithDetails(ctx, nil, message.ID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(full, senderID), nil
}

// SendSystemMessage appends an automated announcement. System messages have
// no human sender restrictions and are immutable afterwards.
func (s *messageService) SendSystemMessage(ctx context.Context, groupID uint, action, text string) (*MessageResponse, error) {
	content, err := marshalContent(models.SystemMessageContent{Text: text})
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		GroupID:      groupID,
		SenderID:     "system",
		Type:         models.MessageSystem,
		Content:      content,
		SystemAction: &action,
	}
	if err := s.repo.Message().Create(ctx, nil, message); err != nil {
		return nil, fmt.Errorf("failed to create system message: %w", err)
	}

	s.logger.Info("System message sent", "message_id", message.ID, "group_id", groupID, "action", action)
	return s.toResponse(message, ""), nil
}

func (s *messageService) GetByID(ctx context.Context, messageID uint, userID string) (*MessageResponse, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, message.GroupID, userID); err != nil {
		return nil, err
	}

	full, err := s.repo.Message().GetByIDWithDetails(ctx, nil, messageID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(full, userID), nil
}

// Edit rewrites a text message's body. Only the sender may edit, and only
// the original content survives in PreviousContent across repeated edits.
func (s *messageService) Edit(ctx context.Context, messageID uint, req *EditMessageRequest, userID string) (*MessageResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.SenderID != userID {
		return nil, NewPermissionError(userID, messageID, "message", "edit", "only the sender can edit a message")
	}
	if message.Type == models.MessageSystem {
		return nil, ErrSystemMessageImmutable
	}
	if !message.CanBeEdited() {
		return nil, ErrMessageDeleted
	}
	if message.Type != models.MessageText {
		return nil, NewConflictError("message", "only text messages can be edited")
	}

	content, err := marshalContent(models.TextMessageContent{Text: req.Text})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !message.IsEdited {
		message.PreviousContent = message.Content
	}
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now

	if err := s.repo.Message().Update(ctx, nil, message); err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	s.publishEvent(ctx, events.EventMessageEdited, events.MessageEventData{
		MessageID: message.ID,
		GroupID:   message.GroupID,
		SenderID:  message.SenderID,
		Type:      string(message.Type),
	})

	s.logger.Info("Message edited", "message_id", messageID, "user_id", userID)

	full, err := s.repo.Message().GetByIDWithDetails(ctx, nil, messageID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(full, userID), nil
}

// Delete soft-deletes a message. The row and its original content stay in
// the log; all read paths render the placeholder from now on.
func (s *messageService) Delete(ctx context.Context, messageID uint, userID string) (*MessageResponse, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if !message.CanBeDeleted() {
		return nil, ErrSystemMessageImmutable
	}

	if message.SenderID != userID {
		can, err := s.groupService.CanModerate(ctx, message.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if !can {
			return nil, NewPermissionError(userID, messageID, "message", "delete", "only the sender or a group admin can delete a message")
		}
	}

	if message.IsDeleted {
		return s.toResponse(message, userID), nil
	}

	now := time.Now().UTC()
	message.IsDeleted = true
	message.DeletedAt = &now

	if err := s.repo.Message().Update(ctx, nil, message); err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}

	s.publishEvent(ctx, events.EventMessageDeleted, events.MessageEventData{
		MessageID: message.ID,
		GroupID:   message.GroupID,
		SenderID:  message.SenderID,
		Type:      string(message.Type),
	})

	s.logger.Info("Message deleted", "message_id", messageID, "user_id", userID)
	return s.toResponse(message, userID), nil
}

// ===== HISTORY =====

// List returns one page of group history in chronological order. Storage
// pages newest-first; the page is reversed here so clients render oldest to
// newest within the page.
func (s *messageService) List(ctx context.Context, groupID uint, filters repositories.MessageFilters, userID string) (*MessageListResponse, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	messages, total, err := s.repo.Message().List(ctx, nil, groupID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	responses := make([]*MessageResponse, len(messages))
	for i, m := range messages {
		responses[len(messages)-1-i] = s.toResponse(m, userID)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	return &MessageListResponse{
		Messages: responses,
		Total:    total,
		Page:     page,
		Size:     len(responses),
	}, nil
}

func (s *messageService) Search(ctx context.Context, groupID uint, filters repositories.MessageSearchFilters, userID string) (*MessageListResponse, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	messages, total, err := s.repo.Message().Search(ctx, nil, groupID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	responses := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		responses = append(responses, s.toResponse(m, userID))
	}
	return &MessageListResponse{
		Messages: responses,
		Total:    total,
		Size:     len(responses),
	}, nil
}

// ===== READ RECEIPTS =====

// MarkRead records a read receipt. The operation is idempotent and a sender
// never gets a receipt on their own message.
func (s *messageService) MarkRead(ctx context.Context, messageID uint, userID string) (*MarkReadResult, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, message.GroupID, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &MarkReadResult{
		MessageID: messageID,
		GroupID:   message.GroupID,
		SenderID:  message.SenderID,
		UserID:    userID,
		ReadAt:    now,
	}

	if message.SenderID == userID {
		result.AlreadyRead = true
		return result, nil
	}

	inserted, err := s.repo.Message().MarkRead(ctx, nil, messageID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}
	result.AlreadyRead = !inserted

	if inserted {
		s.publishEvent(ctx, events.EventMessageRead, events.MessageReadEventData{
			MessageID: messageID,
			GroupID:   message.GroupID,
			UserID:    userID,
			ReadAt:    now,
		})
	}

	return result, nil
}

func (s *messageService) MarkAllRead(ctx context.Context, groupID uint, userID string) (int64, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return 0, err
	}

	count, err := s.repo.Message().MarkAllRead(ctx, nil, groupID, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}

	s.logger.Info("Marked all messages read", "group_id", groupID, "user_id", userID, "count", count)
	return count, nil
}

func (s *messageService) UnreadCount(ctx context.Context, groupID uint, userID string) (int64, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return 0, err
	}
	return s.repo.Message().UnreadCount(ctx, nil, groupID, userID)
}

// ===== HELPERS =====

func (s *messageService) getMessage(ctx context.Context, id uint) (*models.Message, error) {
	message, err := s.repo.Message().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

func (s *messageService) requireMember(ctx context.Context, groupID uint, userID string) (*models.GroupMember, error) {
	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return member, nil
}

// checkSendPolicy enforces the group's settings toggles against the sender's
// role. Group admins bypass the student toggles.
func (s *messageService) checkSendPolicy(ctx context.Context, groupID uint, member *models.GroupMember, msgType models.MessageType, senderID string) error {
	if member.IsGroupAdmin() {
		return nil
	}

	settings, err := s.repo.Group().GetSettings(ctx, nil, groupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return err
	}

	user, err := s.repo.User().GetByID(ctx, nil, senderID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return err
	}
	isStudent := err != nil || user.Role == models.RoleStudent

	if isStudent && !settings.AllowStudentMessages {
		return ErrStudentMessagesDisabled
	}
	if msgType == models.MessageFile && !settings.AllowFileUploads {
		return ErrFileUploadsDisabled
	}
	return nil
}

// toResponse builds the presentation form. Soft-deleted messages get their
// content replaced with the placeholder and their sender hidden here, at
// read time.
func (s *messageService) toResponse(message *models.Message, userID string) *MessageResponse {
	presented := *message
	if presented.IsDeleted {
		redacted, _ := marshalContent(models.TextMessageContent{Text: models.DeletedContentPlaceholder})
		presented.Content = redacted
		presented.PreviousContent = nil
		presented.SenderID = ""
		presented.Sender = models.User{}
	}
	if presented.ReplyTo != nil && presented.ReplyTo.IsDeleted {
		replyCopy := *presented.ReplyTo
		redacted, _ := marshalContent(models.TextMessageContent{Text: models.DeletedContentPlaceholder})
		replyCopy.Content = redacted
		replyCopy.SenderID = ""
		replyCopy.Sender = models.User{}
		presented.ReplyTo = &replyCopy
	}

	readBy := make([]string, 0, len(presented.Reads))
	for _, r := range presented.Reads {
		readBy = append(readBy, r.UserID)
	}

	// Permissions consult the stored row, not the redacted copy.
	return &MessageResponse{
		Message:   &presented,
		CanEdit:   !message.IsDeleted && message.Type == models.MessageText && message.SenderID == userID,
		CanDelete: message.Type != models.MessageSystem && message.SenderID == userID,
		ReadBy:    readBy,
	}
}

func marshalContent(content interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message content: %w", err)
	}
	return datatypes.JSON(data), nil
}

func (s *messageService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
