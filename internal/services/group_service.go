package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/events"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/validator"
)

type groupService struct {
	repo           repositories.Repository
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewGroupService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) GroupService {
	return &groupService{
		repo:           repo,
		db:             db,
		logger:         logger,
		validator:      validator,
		eventPublisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *groupService) Create(ctx context.Context, req *CreateGroupRequest, creatorID string) (*GroupResponse, error) {
	s.logger.Info("Creating group", "creator_id", creatorID, "name", req.Name)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var group *models.Group
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		group = &models.Group{
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   creatorID,
			MaxMembers:  req.MaxMembers,
			IsActive:    true,
		}
		if err := txRepo.Group().Create(ctx, nil, group); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		settings := s.buildSettings(group.ID, req.Settings)
		if err := txRepo.Group().UpdateSettings(ctx, nil, settings); err != nil {
			return fmt.Errorf("failed to create group settings: %w", err)
		}

		// The creator is the first admin member.
		member := &models.GroupMember{
			GroupID:  group.ID,
			UserID:   creatorID,
			Role:     models.MemberRoleAdmin,
			JoinedAt: time.Now().UTC(),
		}
		if err := txRepo.Group().AddMember(ctx, nil, member); err != nil {
			return fmt.Errorf("failed to add creator as member: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventGroupCreated, events.MembershipEventData{
		GroupID: group.ID,
		UserID:  creatorID,
		Role:    string(models.MemberRoleAdmin),
	})

	s.logger.Info("Group created", "group_id", group.ID)
	return s.GetByID(ctx, group.ID, creatorID)
}

func (s *groupService) GetByID(ctx context.Context, id uint, userID string) (*GroupResponse, error) {
	member, err := s.requireMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	group, err := s.getGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.Group().CountMembers(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	unread, err := s.repo.Message().UnreadCount(ctx, nil, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return &GroupResponse{
		Group:       group,
		MemberCount: int(count),
		UnreadCount: unread,
		CanManage:   member.IsGroupAdmin(),
	}, nil
}

func (s *groupService) GetByIDWithMembers(ctx context.Context, id uint, userID string) (*GroupResponse, error) {
	member, err := s.requireMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	group, err := s.repo.Group().GetByIDWithMembers(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	unread, err := s.repo.Message().UnreadCount(ctx, nil, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return &GroupResponse{
		Group:       group,
		MemberCount: group.MemberCount,
		UnreadCount: unread,
		CanManage:   member.IsGroupAdmin(),
	}, nil
}

func (s *groupService) Update(ctx context.Context, id uint, req *UpdateGroupRequest, userID string) (*GroupResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.requireModerator(ctx, id, userID, "update"); err != nil {
		return nil, err
	}

	group, err := s.getGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.Description != nil {
		group.Description = req.Description
	}
	if req.MaxMembers != nil {
		count, err := s.repo.Group().CountMembers(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if int64(*req.MaxMembers) < count {
			return nil, NewConflictError("group", "max_members cannot be lower than current member count")
		}
		group.MaxMembers = *req.MaxMembers
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}

	if err := s.repo.Group().Update(ctx, nil, group); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	if req.Settings != nil {
		if _, err := s.UpdateSettings(ctx, id, req.Settings, userID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Group updated", "group_id", id, "user_id", userID)
	return s.GetByID(ctx, id, userID)
}

// Delete deactivates the group. Messages and quizzes stay queryable.
func (s *groupService) Delete(ctx context.Context, id uint, userID string) error {
	if err := s.requireModerator(ctx, id, userID, "delete"); err != nil {
		return err
	}

	group, err := s.getGroup(ctx, id)
	if err != nil {
		return err
	}

	group.IsActive = false
	if err := s.repo.Group().Update(ctx, nil, group); err != nil {
		return fmt.Errorf("failed to deactivate group: %w", err)
	}

	s.logger.Info("Group deactivated", "group_id", id, "user_id", userID)
	return nil
}

// ===== LIST OPERATIONS =====

func (s *groupService) GetUserGroups(ctx context.Context, userID string, filters repositories.GroupFilters) (*GroupListResponse, error) {
	groups, total, err := s.repo.Group().GetByUser(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	return s.buildListResponse(ctx, groups, total, filters, userID)
}

func (s *groupService) List(ctx context.Context, filters repositories.GroupFilters, userID string) (*GroupListResponse, error) {
	groups, total, err := s.repo.Group().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return s.buildListResponse(ctx, groups, total, filters, userID)
}

// ===== MEMBERSHIP MANAGEMENT =====

func (s *groupService) Join(ctx context.Context, groupID uint, userID string) (*GroupMemberResponse, error) {
	return s.addMember(ctx, groupID, userID, models.MemberRoleMember, userID)
}

func (s *groupService) AddMember(ctx context.Context, groupID uint, targetUserID string, role models.MemberRole, actorID string) (*GroupMemberResponse, error) {
	if err := s.requireModerator(ctx, groupID, actorID, "add_member"); err != nil {
		return nil, err
	}
	return s.addMember(ctx, groupID, targetUserID, role, actorID)
}

func (s *groupService) addMember(ctx context.Context, groupID uint, userID string, role models.MemberRole, actorID string) (*GroupMemberResponse, error) {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsActive {
		return nil, ErrGroupNotActive
	}

	var member *models.GroupMember
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		exists, err := txRepo.Group().IsMember(ctx, nil, groupID, userID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyMember
		}

		count, err := txRepo.Group().CountMembers(ctx, nil, groupID)
		if err != nil {
			return err
		}
		if count >= int64(group.MaxMembers) {
			return ErrGroupFull
		}

		member = &models.GroupMember{
			GroupID:  groupID,
			UserID:   userID,
			Role:     role,
			JoinedAt: time.Now().UTC(),
		}
		return txRepo.Group().AddMember(ctx, nil, member)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventMemberJoined, events.MembershipEventData{
		GroupID: groupID,
		UserID:  userID,
		Role:    string(role),
	})

	s.logger.Info("Member added", "group_id", groupID, "user_id", userID, "actor_id", actorID)
	return &GroupMemberResponse{GroupMember: member}, nil
}

func (s *groupService) Leave(ctx context.Context, groupID uint, userID string) error {
	return s.removeMember(ctx, groupID, userID, userID)
}

func (s *groupService) RemoveMember(ctx context.Context, groupID uint, targetUserID string, actorID string) error {
	if targetUserID != actorID {
		if err := s.requireModerator(ctx, groupID, actorID, "remove_member"); err != nil {
			return err
		}
	}
	return s.removeMember(ctx, groupID, targetUserID, actorID)
}

func (s *groupService) removeMember(ctx context.Context, groupID uint, userID string, actorID string) error {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	// The creator anchors the group and can never drop out of it.
	if userID == group.CreatedBy {
		return ErrGroupCreatorImmutable
	}

	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrNotGroupMember
		}
		return err
	}

	if member.IsGroupAdmin() {
		admins, err := s.countAdmins(ctx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastGroupAdmin
		}
	}

	if err := s.repo.Group().RemoveMember(ctx, nil, groupID, userID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrNotGroupMember
		}
		return err
	}

	s.publishEvent(ctx, events.EventMemberLeft, events.MembershipEventData{
		GroupID: groupID,
		UserID:  userID,
		Role:    string(member.Role),
	})

	s.logger.Info("Member removed", "group_id", groupID, "user_id", userID, "actor_id", actorID)
	return nil
}

func (s *groupService) UpdateMemberRole(ctx context.Context, groupID uint, targetUserID string, role models.MemberRole, actorID string) error {
	if err := s.requireModerator(ctx, groupID, actorID, "update_member_role"); err != nil {
		return err
	}

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if targetUserID == group.CreatedBy && role != models.MemberRoleAdmin {
		return ErrGroupCreatorImmutable
	}

	member, err := s.repo.Group().GetMember(ctx, nil, groupID, targetUserID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrNotGroupMember
		}
		return err
	}

	// Demoting the last admin would orphan the group.
	if member.IsGroupAdmin() && role != models.MemberRoleAdmin {
		admins, err := s.countAdmins(ctx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastGroupAdmin
		}
	}

	if err := s.repo.Group().UpdateMemberRole(ctx, nil, groupID, targetUserID, role); err != nil {
		return err
	}

	s.logger.Info("Member role updated", "group_id", groupID, "user_id", targetUserID, "role", role, "actor_id", actorID)
	return nil
}

func (s *groupService) GetMembers(ctx context.Context, groupID uint, userID string) ([]*GroupMemberResponse, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	members, err := s.repo.Group().ListMembers(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	responses := make([]*GroupMemberResponse, 0, len(members))
	for _, m := range members {
		responses = append(responses, &GroupMemberResponse{GroupMember: m})
	}
	return responses, nil
}

// ===== SETTINGS =====

func (s *groupService) UpdateSettings(ctx context.Context, groupID uint, req *GroupSettingsRequest, userID string) (*models.GroupSettings, error) {
	if err := s.requireModerator(ctx, groupID, userID, "update_settings"); err != nil {
		return nil, err
	}

	settings, err := s.repo.Group().GetSettings(ctx, nil, groupID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, err
		}
		settings = &models.GroupSettings{GroupID: groupID, AllowStudentMessages: true, AllowFileUploads: true, AllowQuizCreation: true}
	}

	if req.AllowStudentMessages != nil {
		settings.AllowStudentMessages = *req.AllowStudentMessages
	}
	if req.AllowFileUploads != nil {
		settings.AllowFileUploads = *req.AllowFileUploads
	}
	if req.AllowQuizCreation != nil {
		settings.AllowQuizCreation = *req.AllowQuizCreation
	}

	if err := s.repo.Group().UpdateSettings(ctx, nil, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	s.logger.Info("Group settings updated", "group_id", groupID, "user_id", userID)
	return settings, nil
}

// ===== STATISTICS =====

func (s *groupService) GetStats(ctx context.Context, groupID uint, userID string) (*repositories.GroupStats, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.repo.Group().GetStats(ctx, nil, groupID)
}

// ===== AUTHORIZATION CHECKS =====

func (s *groupService) IsMember(ctx context.Context, groupID uint, userID string) (bool, error) {
	return s.repo.Group().IsMember(ctx, nil, groupID, userID)
}

// CanModerate reports whether the user holds group admin rights or a
// platform role that can moderate any group.
func (s *groupService) CanModerate(ctx context.Context, groupID uint, userID string) (bool, error) {
	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return s.isPlatformAdmin(ctx, userID)
		}
		return false, err
	}
	if member.IsGroupAdmin() {
		return true, nil
	}
	return s.isPlatformAdmin(ctx, userID)
}

// ===== HELPERS =====

func (s *groupService) getGroup(ctx context.Context, id uint) (*models.Group, error) {
	group, err := s.repo.Group().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

func (s *groupService) requireMember(ctx context.Context, groupID uint, userID string) (*models.GroupMember, error) {
	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return member, nil
}

func (s *groupService) requireModerator(ctx context.Context, groupID uint, userID string, action string) error {
	can, err := s.CanModerate(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !can {
		return NewPermissionError(userID, groupID, "group", action, "requires group admin role")
	}
	return nil
}

func (s *groupService) isPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return user.Role.CanModerate(), nil
}

func (s *groupService) countAdmins(ctx context.Context, groupID uint) (int, error) {
	members, err := s.repo.Group().ListMembers(ctx, nil, groupID)
	if err != nil {
		return 0, err
	}
	admins := 0
	for _, m := range members {
		if m.IsGroupAdmin() {
			admins++
		}
	}
	return admins, nil
}

func (s *groupService) buildSettings(groupID uint, req *GroupSettingsRequest) *models.GroupSettings {
	settings := &models.GroupSettings{
		GroupID:              groupID,
		AllowStudentMessages: true,
		AllowFileUploads:     true,
		AllowQuizCreation:    true,
	}
	if req == nil {
		return settings
	}
	if req.AllowStudentMessages != nil {
		settings.AllowStudentMessages = *req.AllowStudentMessages
	}
	if req.AllowFileUploads != nil {
		settings.AllowFileUploads = *req.AllowFileUploads
	}
	if req.AllowQuizCreation != nil {
		settings.AllowQuizCreation = *req.AllowQuizCreation
	}
	return settings
}

func (s *groupService) buildListResponse(ctx context.Context, groups []*models.Group, total int64, filters repositories.GroupFilters, userID string) (*GroupListResponse, error) {
	responses := make([]*GroupResponse, 0, len(groups))
	for _, g := range groups {
		count, err := s.repo.Group().CountMembers(ctx, nil, g.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.repo.Message().UnreadCount(ctx, nil, g.ID, userID)
		if err != nil {
			return nil, err
		}
		member, err := s.repo.Group().GetMember(ctx, nil, g.ID, userID)
		canManage := err == nil && member.IsGroupAdmin()

		responses = append(responses, &GroupResponse{
			Group:       g,
			MemberCount: int(count),
			UnreadCount: unread,
			CanManage:   canManage,
		})
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}
	return &GroupListResponse{
		Groups: responses,
		Total:  total,
		Page:   page,
		Size:   len(responses),
	}, nil
}

func (s *groupService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
